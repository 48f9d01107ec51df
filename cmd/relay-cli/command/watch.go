package command

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"livetiming/cmd/relay-cli/command/client"
)

var (
	watchRaw           bool
	watchRedisURL      string
	watchRedisPassword string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the broadcast stream",
	Long:  `Subscribe like a dashboard would and print one line per broadcast. Ctrl+C to stop.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		onPayload := func(payload []byte) error {
			stamp := dimColor.Sprint(time.Now().Format("15:04:05"))
			if watchRaw {
				fmt.Fprintf(out, "%s %s\n", stamp, payload)
				return nil
			}
			summary, err := client.Summarize(payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", stamp, formatSummary(summary))
			return nil
		}

		if watchRedisURL != "" {
			fmt.Fprintf(out, "Following mirror at %s...\n", watchRedisURL)
			return client.WatchMirror(ctx, watchRedisURL, watchRedisPassword, onPayload)
		}
		fmt.Fprintf(out, "Connecting to %s...\n", apiURL)
		return client.Watch(ctx, apiURL, onPayload)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchRaw, "raw", false, "print each payload as received")
	watchCmd.Flags().StringVar(&watchRedisURL, "redis", "", "follow the relay's Redis mirror instead of its websocket")
	watchCmd.Flags().StringVar(&watchRedisPassword, "redis-password", "", "password for --redis")
}
