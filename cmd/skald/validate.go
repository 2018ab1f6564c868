package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skald-lang/skald/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate <bundle>",
	Short: "Check a bundle for consistency",
	Long:  `Decodes the bundle and checks script, group and global references, reporting a short summary on success.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		report, err := cli.ValidateBundle(args[0])
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Bundle is valid: entry %q, %d script(s), %d group(s), %d node(s)\n",
			report.EntryScript, report.Scripts, report.Groups, report.Nodes)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
