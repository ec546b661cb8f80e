package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/compiler"
)

// ValidationResult holds the findings for a catalog.
type ValidationResult struct {
	Valid     bool                       `json:"valid"`
	Errors    []compiler.ValidationError `json:"errors,omitempty"`
	Templates []TemplateReport           `json:"templates"`
}

// TemplateReport holds the publish gate issues and flow notes of one
// template. Issues block publishing; notes are advisory.
type TemplateReport struct {
	ID        string              `json:"id"`
	Published bool                `json:"published"`
	Issues    []string            `json:"issues,omitempty"`
	Notes     []compiler.FlowNote `json:"notes,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate a template catalog",
		Long: `Compile a CUE template catalog and check it without touching a store.

Reports schema errors, publish gate issues of templates marked published,
and flow graph notes (loops, unreachable actions) for every template.

Exit codes:
  0 - Catalog valid
  1 - Catalog invalid
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, catalogDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := os.Stat(catalogDir); err != nil {
		msg := fmt.Sprintf("catalog directory not found: %s", catalogDir)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ErrCodeNotFound, msg))
	}
	cat, err := compiler.LoadCatalog(catalogDir)
	if err != nil {
		return formatter.Fail(err)
	}
	formatter.VerboseLog("Compiled %d role(s), %d template(s) from %s", len(cat.Roles), len(cat.Templates), catalogDir)

	result := ValidationResult{Errors: compiler.Validate(cat)}

	// Publish issues need a role directory; a broken role list is already
	// reported as a validation error.
	dir, dirErr := access.NewDirectory(cat.Roles)
	for i := range cat.Templates {
		t := &cat.Templates[i]
		report := TemplateReport{ID: t.ID, Published: t.Published, Notes: compiler.AnalyzeFlow(t)}
		if dirErr == nil && t.Published {
			report.Issues = compiler.PublishIssues(t, dir)
		}
		formatter.VerboseLog("Checked template %s: %d issue(s), %d note(s)", t.ID, len(report.Issues), len(report.Notes))
		result.Templates = append(result.Templates, report)
	}

	result.Valid = len(result.Errors) == 0
	for _, r := range result.Templates {
		if len(r.Issues) > 0 {
			result.Valid = false
		}
	}

	if !result.Valid {
		if opts.Format == "json" {
			_ = formatter.Error(ErrCodeInvalid, "catalog invalid", result)
		} else {
			result.renderText(formatter.Writer)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: catalog invalid", ErrCodeInvalid))
	}
	return formatter.Success(result)
}

func (r ValidationResult) renderText(w io.Writer) {
	for _, e := range r.Errors {
		fmt.Fprintf(w, "✗ %s\n", e.Error())
	}
	for _, t := range r.Templates {
		mark := "✓"
		if len(t.Issues) > 0 {
			mark = "✗"
		}
		state := "draft"
		if t.Published {
			state = "published"
		}
		fmt.Fprintf(w, "%s %s (%s)\n", mark, t.ID, state)
		for _, issue := range t.Issues {
			fmt.Fprintf(w, "  issue: %s\n", issue)
		}
		for _, n := range t.Notes {
			fmt.Fprintf(w, "  %s: %s [%s]\n", n.Level, n.Message, strings.Join(n.Path, " → "))
		}
	}
	if r.Valid {
		fmt.Fprintln(w, "✓ Catalog valid")
	}
}
