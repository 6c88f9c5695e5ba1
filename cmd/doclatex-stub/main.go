// doclatex-stub - local emulation of the conversion service for development
// and end-to-end testing of the doclatex client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/fakeservice"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/version"
)

func main() {
	var (
		addr    string
		delay   time.Duration
		fail    bool
		verbose bool
		rate    float64
		burst   int
	)

	cmd := &cobra.Command{
		Use:   "doclatex-stub",
		Short: "Run a local emulation of the conversion service",
		Long: `Run a local emulation of the Word-to-LaTeX conversion service.

It accepts the same requests as the real service, enforces the same upload
rules and answers with canned LaTeX and a zip archive.

Examples:
  doclatex-stub --addr :8000
  doclatex-stub --delay 5s
  doclatex-stub --fail
  doclatex-stub --rate 2 --burst 5`,
		Version:      version.Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewDefaultCLILogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			gin.SetMode(gin.ReleaseMode)

			svc := fakeservice.New(fakeservice.Options{
				Delay:             delay,
				FailConversions:   fail,
				RequestsPerSecond: rate,
				Burst:             burst,
				Logger:            logger,
			})
			return svc.Run(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Artificial conversion delay")
	cmd.Flags().BoolVar(&fail, "fail", false, "Fail every conversion")
	cmd.Flags().Float64Var(&rate, "rate", 0, "Requests per second before answering 429 (0 disables)")
	cmd.Flags().IntVar(&burst, "burst", 1, "Requests allowed back to back under --rate")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every request")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
