package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tikcccc/Form-demo/internal/compiler"
	"github.com/tikcccc/Form-demo/internal/engine"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// ImportSummary lists the outcome of importing a catalog.
type ImportSummary struct {
	Catalog string                `json:"catalog"`
	Results []engine.ImportResult `json:"results"`
}

func (s ImportSummary) renderText(w io.Writer) {
	for _, r := range s.Results {
		verb := "updated"
		if r.Created {
			verb = "created"
		}
		fmt.Fprintf(w, "✓ %s %s (revision %d)\n", r.TemplateID, verb, r.Revision)
	}
	fmt.Fprintf(w, "Imported %d template(s) from %s\n", len(s.Results), s.Catalog)
}

// TemplateSummary is one row of the templates listing.
type TemplateSummary struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Published bool   `json:"published"`
	Actions   int    `json:"actions"`
	Fields    int    `json:"fields"`
	Revision  int64  `json:"revision"`
}

// TemplateList is the templates listing.
type TemplateList []TemplateSummary

func (l TemplateList) renderText(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tNAME\tPUBLISHED\tACTIONS\tFIELDS")
	for _, t := range l {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%d\n", t.ID, t.Code, t.Name, t.Published, t.Actions, t.Fields)
	}
	_ = tw.Flush()
}

func summarizeTemplate(t *ir.Template) TemplateSummary {
	return TemplateSummary{
		ID:        t.ID,
		Code:      t.Code,
		Name:      t.Name,
		Published: t.Published,
		Actions:   len(t.Actions),
		Fields:    len(t.Schema),
		Revision:  t.Revision,
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [catalog-dir]",
		Short: "Import catalog templates into the store",
		Long: `Compile a CUE catalog and upsert its templates into the configured store.

The catalog directory defaults to catalog.dir from the configuration.
Templates marked published must pass the publish gate; one failing
template rejects the whole import.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				dir := a.cfg.Catalog.Dir
				cat := a.catalog
				if len(args) == 1 && args[0] != dir {
					dir = args[0]
					var err error
					if cat, err = compiler.LoadCatalog(dir); err != nil {
						return formatter.Fail(err)
					}
				}
				results, err := a.eng.ImportTemplates(cmd.Context(), a.dir.AdminRoleID(), cat.Templates)
				if err != nil {
					return formatter.Fail(err)
				}
				return formatter.Success(ImportSummary{Catalog: dir, Results: results})
			})
		},
	}
	return cmd
}

// NewTemplatesCommand creates the templates listing command.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:           "templates",
		Short:         "List stored templates",
		Long:          "List the templates visible to a role. The admin role sees drafts too.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				templates, err := a.eng.ListTemplates(cmd.Context(), a.resolveRole(role))
				if err != nil {
					return formatter.Fail(err)
				}
				list := make(TemplateList, 0, len(templates))
				for i := range templates {
					list = append(list, summarizeTemplate(&templates[i]))
				}
				return formatter.Success(list)
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "acting role id (defaults to the admin role)")
	return cmd
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "publish <template-id>",
		Short: "Publish a stored template",
		Long: `Run the publish gate on a stored template and mark it published.

Exit codes:
  0 - Published
  1 - Rejected (PUBLISH_BLOCKED lists the gate issues)
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withApp(cmd.Context(), rootOpts, cmd.ErrOrStderr(), func(a *app) error {
				t, err := a.eng.PublishTemplate(cmd.Context(), a.resolveRole(role), args[0])
				if err != nil {
					var engErr *engine.Error
					if errors.As(err, &engErr) && rootOpts.Format != "json" {
						for _, issue := range engErr.Issues {
							fmt.Fprintf(cmd.ErrOrStderr(), "  issue: %s\n", issue)
						}
					}
					return formatter.Fail(err)
				}
				return formatter.Success(TemplateList{summarizeTemplate(t)})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "acting role id (defaults to the admin role)")
	return cmd
}
