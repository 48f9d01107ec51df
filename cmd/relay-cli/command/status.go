package command

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"livetiming/cmd/relay-cli/command/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show upstream connection and session liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		status, err := client.NewHTTPClient(apiURL).GetStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}
