package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"livetiming/cmd/relay-cli/command/client"
)

var stateCmd = &cobra.Command{
	Use:   "state [field...]",
	Short: "Print the reconstructed timing document",
	Long: `Print the document the relay currently holds, whether or not a session is live.
Pass field names to print only those top-level fields.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		raw, err := client.NewHTTPClient(apiURL).GetState(ctx)
		if err != nil {
			return fmt.Errorf("failed to get state: %w", err)
		}

		if len(args) > 0 {
			var doc map[string]json.RawMessage
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode state: %w", err)
			}
			selected := make(map[string]json.RawMessage, len(args))
			for _, name := range args {
				if v, ok := doc[name]; ok {
					selected[name] = v
				}
			}
			if raw, err = json.Marshal(selected); err != nil {
				return err
			}
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			return fmt.Errorf("format state: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
		return nil
	},
}
