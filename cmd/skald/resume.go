package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skald-lang/skald/internal/cli"
)

// resumeCmd restores a saved session and continues playing it.
var resumeCmd = &cobra.Command{
	Use:   "resume <bundle>",
	Short: "Resume a saved session",
	Long: `Loads the session snapshot, rebuilds the engine against the bundle it was
saved from, and re-presents the pending choice or input.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := runOptionsFromFlags(cmd, args[0])
		opts.Resume = true
		if opts.SessionID == "" {
			fmt.Println("Error: resume requires --session")
			os.Exit(1)
		}
		if err := cli.RunSession(opts); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
	addRunFlags(resumeCmd)
}
