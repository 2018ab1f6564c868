package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skald-lang/skald/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <bundle>",
	Short: "Play a story bundle interactively",
	Long: `Starts the engine on a compiled bundle and drives it on the terminal.
With --session, type :save at any choice or input to snapshot the session.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := runOptionsFromFlags(cmd, args[0])
		if err := cli.RunSession(opts); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func runOptionsFromFlags(cmd *cobra.Command, bundle string) cli.RunOptions {
	session, _ := cmd.Flags().GetString("session")
	saveDir, _ := cmd.Flags().GetString("save-dir")
	seed, _ := cmd.Flags().GetUint32("seed")
	stepLimit, _ := cmd.Flags().GetInt("step-limit")
	debug, _ := cmd.Flags().GetBool("debug")
	quiet, _ := cmd.Flags().GetBool("quiet")

	return cli.RunOptions{
		BundlePath: bundle,
		SessionID:  session,
		SaveDir:    saveDir,
		Seed:       seed,
		StepLimit:  stepLimit,
		Debug:      debug,
		Quiet:      quiet,
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("session", "s", "", "Session ID for saving and resuming")
	cmd.Flags().String("save-dir", "", "Directory for session files (default .skald/sessions)")
	cmd.Flags().Uint32("seed", 0, "Random seed (0 uses the default)")
	cmd.Flags().Int("step-limit", 100000, "Maximum silent steps between two events")
	cmd.Flags().Bool("debug", false, "Enable debug logging on stderr")
	cmd.Flags().BoolP("quiet", "q", false, "Suppress the banner and system messages")
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}
