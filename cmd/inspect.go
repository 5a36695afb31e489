package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angeloszaimis/querygate/internal/admin"
)

func newInspectCmd() *cobra.Command {
	var (
		adminURL string
		forget   string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the query keys tracked by a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := admin.NewClient(adminURL)

			if forget != "" {
				if err := client.Forget(ctx, forget); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", forget)
			}

			health, err := client.Health(ctx)
			if err != nil {
				return err
			}

			keys, err := client.Keys(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "status: %s (upstream healthy: %t)\n", health.Status, health.UpstreamHealthy)
			fmt.Fprintln(cmd.OutOrStdout(), admin.RenderKeys(keys.Keys))
			return nil
		},
	}

	cmd.Flags().StringVar(&adminURL, "admin", "http://localhost:9090", "admin API base URL")
	cmd.Flags().StringVar(&forget, "forget", "", "canonical key to clear before listing")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	return cmd
}
