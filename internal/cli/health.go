package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/api"
	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/http"
)

// newHealthCmd creates the 'health' command.
func newHealthCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the conversion service is reachable",
		Long: `Ask the conversion service for its health status.

With --wait, connection failures and server errors are retried with
exponential backoff, which is useful right after starting the service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := api.NewClient(cfg, GetLogger())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), constants.HTTPRequestTimeout)
			defer cancel()

			var status string
			check := func() error {
				var err error
				status, err = client.Health(ctx)
				return err
			}

			if wait {
				retryCfg := http.DefaultConfig()
				retryCfg.OnRetry = func(attempt int, err error, errType http.ErrorType) {
					GetLogger().Info().
						Int("attempt", attempt).
						Str("error_type", http.ErrorTypeName(errType)).
						Err(err).
						Msg("service not ready, retrying")
				}
				err = http.ExecuteWithRetry(ctx, retryCfg, check)
			} else {
				err = check()
			}
			if err != nil {
				return fmt.Errorf("%s is not reachable: %w", client.BaseURL(), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is %s\n", client.BaseURL(), status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Retry until the service answers")

	return cmd
}
