package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skald",
	Short: "Skald is a deterministic interactive-fiction runtime",
	Long:  `Skald plays compiled story bundles one event at a time, with resumable sessions and a seeded random stream.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
