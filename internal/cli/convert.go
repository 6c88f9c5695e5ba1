package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/core"
	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/models"
	"github.com/doclatex/doclatex/internal/progress"
	"github.com/doclatex/doclatex/internal/viewer"
)

type convertOptions struct {
	template   string
	outDir     string
	print      bool
	copy       bool
	noDownload bool
	timeout    time.Duration
}

// newConvertCmd creates the 'convert' command.
func newConvertCmd() *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert <file.docx>",
		Short: "Convert a Word document to LaTeX",
		Long: `Validate a .docx or .docm document, send it to the conversion service and
wait for the LaTeX result.

The document must be at most 10 MiB. On success the conversion metrics are
printed, the output archive is downloaded to the output directory and the
conversion is added to your history.

Examples:
  doclatex convert paper.docx
  doclatex convert paper.docx --template onecolumn --out ./build
  doclatex convert paper.docx --print --no-download > paper.tex
  doclatex convert paper.docx --copy --timeout 5m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.outDir != "" {
				cfg.OutputDir = opts.outDir
			}
			if opts.timeout > 0 {
				cfg.TimeoutSeconds = int((opts.timeout + time.Second - 1) / time.Second)
			}

			ctx := cmd.Context()
			ui := progress.NewDownloadUI()
			engine, err := newEngine(ctx, cfg, ui)
			if err != nil {
				return err
			}
			defer engine.Close()

			return runConvert(ctx, cmd, engine, args[0], opts, ui)
		},
	}

	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "Template id (default from config)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Directory for the output archive (default from config)")
	cmd.Flags().BoolVar(&opts.print, "print", false, "Print the LaTeX result to stdout")
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "Copy the LaTeX result to the clipboard")
	cmd.Flags().BoolVar(&opts.noDownload, "no-download", false, "Do not download the output archive")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Conversion timeout (default 180s)")

	return cmd
}

func runConvert(ctx context.Context, cmd *cobra.Command, engine *core.Engine, path string, opts convertOptions, ui *progress.DownloadUI) error {
	logger := GetLogger()
	errOut := cmd.ErrOrStderr()

	res, err := engine.SelectFile(path)
	if err != nil {
		return err
	}
	if !res.Accepted() {
		return res.Err
	}

	if err := selectTemplate(ctx, engine, opts.template); err != nil {
		return err
	}

	file := engine.SelectedFile()
	bar := progress.NewConversionBar(file.Name)
	progressCh := engine.Events().Subscribe(events.EventJobProgress)
	barDone := make(chan struct{})
	go func() {
		defer close(barDone)
		for ev := range progressCh {
			if p, ok := ev.(*events.JobProgressEvent); ok {
				bar.Set(p.Percent, p.Stage)
			}
		}
	}()

	if err := engine.Convert(ctx); err != nil {
		engine.Events().Unsubscribe(events.EventJobProgress, progressCh)
		<-barDone
		bar.Abort()
		return err
	}

	j, waitErr := engine.Wait(ctx)
	if waitErr != nil {
		engine.Cancel()
		j = engine.Job()
	}
	engine.Events().Unsubscribe(events.EventJobProgress, progressCh)
	<-barDone

	if waitErr != nil {
		bar.Abort()
		return fmt.Errorf("conversion cancelled: %w", waitErr)
	}
	if j.Status != models.StatusDone {
		bar.Abort()
		logger.Debug().Str("failure", string(j.FailureKind)).Msg("conversion failed")
		return fmt.Errorf("conversion failed: %s", j.ErrorMessage)
	}
	bar.Finish()

	fmt.Fprintf(errOut, "✓ Converted %s with template %s\n", j.SourceName, j.TemplateID)
	fmt.Fprintf(errOut, "  Job ID:  %s\n", j.JobID)
	fmt.Fprintf(errOut, "  Result:  %s\n", viewer.Summary(j))
	fmt.Fprintf(errOut, "  Elapsed: %s\n", j.Elapsed().Round(time.Millisecond))

	if opts.print {
		text, _ := engine.ResultText()
		fmt.Fprint(cmd.OutOrStdout(), text)
		if !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(cmd.OutOrStdout())
		}
	}
	if opts.copy {
		if err := engine.CopyResult(); err != nil {
			logger.Warn().Err(err).Msg("could not copy the result")
		} else {
			fmt.Fprintln(errOut, "✓ LaTeX copied to the clipboard")
		}
	}

	if !opts.noDownload {
		_, err := engine.DownloadArchive(ctx)
		ui.Wait()
		if err != nil {
			return fmt.Errorf("conversion succeeded but the archive download failed: %w (retry with: doclatex download %s)", err, j.JobID)
		}
	}
	return nil
}

// selectTemplate makes id active, refreshing the list first when the id or
// the configured default is a custom template the registry has not seen.
func selectTemplate(ctx context.Context, engine *core.Engine, id string) error {
	needsList := strings.HasPrefix(id, constants.CustomTemplatePrefix) ||
		strings.HasPrefix(engine.Config().DefaultTemplate, constants.CustomTemplatePrefix)
	if needsList {
		if _, err := engine.RefreshTemplates(ctx); err != nil {
			GetLogger().Warn().Err(err).Msg("could not refresh templates")
		}
	}
	if id == "" {
		return nil
	}
	if err := engine.UseTemplate(id); err != nil {
		return fmt.Errorf("template %q: %w", id, err)
	}
	return nil
}
