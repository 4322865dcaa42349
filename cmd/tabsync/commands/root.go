package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for tabsync
var RootCmd = &cobra.Command{
	Use:              "tabsync",
	Short:            "state synchronization between browsing contexts",
	TraverseChildren: true,
}
