package commands

import (
	"github.com/mosaicnetworks/tabsync/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Tabsync config.Config `mapstructure:",squash"`

	// LogFiles mirrors info and debug logs to files in the data directory.
	LogFiles bool `mapstructure:"log-files"`

	// Quiet stops printing state changes to stdout.
	Quiet bool `mapstructure:"quiet"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Tabsync:  *config.NewDefaultConfig(),
		LogFiles: false,
		Quiet:    false,
	}
}
