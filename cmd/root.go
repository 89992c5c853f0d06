package cmd

import (
	"fmt"
	"os"

	"gridloop/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gridloop",
	Short: "gridloop is a collaborative music project server.",
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
