package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/diskspace"
	"github.com/doclatex/doclatex/internal/progress"
)

// newDownloadCmd creates the 'download' command.
func newDownloadCmd() *cobra.Command {
	var name, outDir string

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the output archive of a conversion",
		Long: `Download the output archive of a finished conversion by job id, for
example one listed by 'doclatex history list'. Each download creates a new
file; an existing file is never overwritten.

Examples:
  doclatex download 3f2b8c1e-...
  doclatex download 3f2b8c1e-... --name paper.zip --out ./build`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.OutputDir = outDir
			}

			ui := progress.NewDownloadUI()
			engine, err := newEngine(cmd.Context(), cfg, ui)
			if err != nil {
				return err
			}
			defer engine.Close()

			d, err := engine.Download(cmd.Context(), args[0], name)
			ui.Wait()
			if err != nil {
				if diskspace.IsInsufficientSpaceError(err) {
					return fmt.Errorf("download failed: %w (free up space or choose another directory with --out)", err)
				}
				return fmt.Errorf("download failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Location)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "File name when the service does not send one")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default from config)")

	return cmd
}
