package command

// root.go defines the root command and its global flags

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL  string // relay server base URL
	noColor bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "relayctl - inspect and follow a live timing relay",
	Long: `relayctl talks to a running relay server. It can:
- show the upstream connection and session liveness
- dump the reconstructed timing document
- follow the once-per-second broadcast stream

Use "relayctl [command] --help" to see the options of each command.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setColor(!noColor)
	},
}

// Execute adds all child commands to the root command and runs it. Called once by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:3000", "relay server URL")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(watchCmd)
}
