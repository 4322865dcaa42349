package main

import (
	"os"

	cmd "github.com/mosaicnetworks/tabsync/cmd/tabsync/commands"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewRunCmd(),
		cmd.NewRouterCmd(),
	)

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
