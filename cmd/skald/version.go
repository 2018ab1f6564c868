package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skald-lang/skald"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of skald",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skald version %s\n", skald.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
