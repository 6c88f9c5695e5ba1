package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/core"
	"github.com/doclatex/doclatex/internal/models"
	"github.com/doclatex/doclatex/internal/templates"
)

// newTemplatesCmd creates the 'templates' command group.
func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "Manage formatting templates",
		Long: `Formatting template commands.

Commands:
  list    - List built-in and custom templates
  upload  - Upload a custom .tex template and make it the default
  delete  - Delete a custom template
  use     - Make a template the default for future conversions`,
	}

	cmd.AddCommand(newTemplatesListCmd())
	cmd.AddCommand(newTemplatesUploadCmd())
	cmd.AddCommand(newTemplatesDeleteCmd())
	cmd.AddCommand(newTemplatesUseCmd())

	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(engine *core.Engine) error {
				list, err := engine.RefreshTemplates(cmd.Context())
				if err != nil {
					GetLogger().Warn().Err(err).Msg("could not load templates from the service, showing built-ins only")
				}
				printTemplates(cmd.OutOrStdout(), list, engine.ActiveTemplate())
				return nil
			})
		},
	}
}

func newTemplatesUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <template.tex>",
		Short: "Upload a custom template",
		Long: `Upload a LaTeX template. The service accepts .tex files up to 2 MB that
contain \documentclass or \begin{document}. The uploaded template becomes
the default for future conversions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(engine *core.Engine) error {
				tmpl, err := engine.UploadTemplate(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("upload failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Uploaded template %s (%s)\n", tmpl.ID, tmpl.DisplayName)
				return saveDefaultTemplate(engine.Config(), tmpl.ID)
			})
		},
	}
}

func newTemplatesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a custom template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd, func(engine *core.Engine) error {
				// Load the list so the registry knows which ids are built in.
				if _, err := engine.RefreshTemplates(cmd.Context()); err != nil {
					GetLogger().Debug().Err(err).Msg("template list unavailable before delete")
				}
				if err := engine.RemoveTemplate(cmd.Context(), id); err != nil {
					if errors.Is(err, templates.ErrBuiltinTemplate) {
						return fmt.Errorf("%s is a built-in template and cannot be deleted", id)
					}
					return fmt.Errorf("delete failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted template %s\n", id)
				if engine.Config().DefaultTemplate == id {
					return saveDefaultTemplate(engine.Config(), engine.ActiveTemplate())
				}
				return nil
			})
		},
	}
}

func newTemplatesUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <template-id>",
		Short: "Set the default template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd, func(engine *core.Engine) error {
				if _, err := engine.RefreshTemplates(cmd.Context()); err != nil {
					GetLogger().Warn().Err(err).Msg("could not load templates from the service")
				}
				if err := engine.UseTemplate(id); err != nil {
					known := make([]string, 0, len(engine.Templates()))
					for _, t := range engine.Templates() {
						known = append(known, t.ID)
					}
					return fmt.Errorf("template %q: %w (available: %s)", id, err, strings.Join(known, ", "))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Default template is now %s\n", id)
				return saveDefaultTemplate(engine.Config(), id)
			})
		},
	}
}

func printTemplates(w io.Writer, list []models.Template, active string) {
	fmt.Fprintf(w, "%-2s %-32s %-28s %-9s %s\n", "", "ID", "NAME", "KIND", "SIZE")
	for _, t := range list {
		marker := ""
		if t.ID == active {
			marker = "*"
		}
		size := "-"
		if t.SizeBytes > 0 {
			size = fmt.Sprintf("%d B", t.SizeBytes)
		}
		fmt.Fprintf(w, "%-2s %-32s %-28s %-9s %s\n", marker, t.ID, t.DisplayName, t.Kind, size)
	}
}

// saveDefaultTemplate persists id as the default template in the config file.
func saveDefaultTemplate(cfg *config.Config, id string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := config.SetValue(path, "convert", "default_template", id); err != nil {
		return fmt.Errorf("failed to save default template: %w", err)
	}
	cfg.DefaultTemplate = id
	GetLogger().Debug().Str("template", id).Str("path", path).Msg("default template saved")
	return nil
}

// withEngine loads the config, builds an engine and runs fn with it.
func withEngine(cmd *cobra.Command, fn func(*core.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := newEngine(cmd.Context(), cfg, nil)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}
