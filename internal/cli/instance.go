package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tikcccc/Form-demo/internal/engine"
	"github.com/tikcccc/Form-demo/internal/ir"
)

// instanceOptions holds flags shared by the instance subcommands.
type instanceOptions struct {
	*RootOptions
	Role string
}

// InstanceDetail renders one instance view.
type InstanceDetail struct {
	*engine.InstanceView
}

func (d InstanceDetail) renderText(w io.Writer) {
	inst := d.Instance
	fmt.Fprintf(w, "%s  %s\n", inst.TransmittalNo, inst.Title)
	fmt.Fprintf(w, "  id:        %s\n", inst.ID)
	fmt.Fprintf(w, "  template:  %s\n", inst.TemplateID)
	fmt.Fprintf(w, "  status:    %s\n", inst.Status)
	if d.CurrentTo != "" {
		fmt.Fprintf(w, "  with:      %s\n", d.CurrentTo)
	}
	if !d.DueDate.IsZero() {
		due := d.DueDate.Format(time.DateOnly)
		if d.Overdue {
			due += " (overdue)"
		}
		fmt.Fprintf(w, "  due:       %s\n", due)
	}
	if d.LoopCount > 0 {
		fmt.Fprintf(w, "  loops:     %d\n", d.LoopCount)
	}
	if len(d.AvailableActions) > 0 {
		fmt.Fprintf(w, "  actions:   %s\n", strings.Join(d.AvailableActions, ", "))
	}
	for i, s := range inst.Steps {
		opened := ""
		if s.IsOpened() {
			opened = " opened"
		}
		fmt.Fprintf(w, "  step %d:    %s by %s to %s%s\n", i+1, s.ActionLabel, s.FromRoleID, strings.Join(s.ToGroups, "+"), opened)
	}
}

// InstanceList renders an instance listing.
type InstanceList []*engine.InstanceView

func (l InstanceList) renderText(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSMITTAL\tSTATUS\tWITH\tINBOX\tTITLE")
	for _, v := range l {
		inbox := ""
		if v.Inbox {
			inbox = "●"
			if !v.Unread {
				inbox = "○"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", v.Instance.TransmittalNo, v.Instance.Status, v.CurrentTo, inbox, v.Instance.Title)
	}
	_ = tw.Flush()
}

type deleted struct {
	ID string `json:"deleted"`
}

func (d deleted) renderText(w io.Writer) {
	fmt.Fprintf(w, "✓ deleted %s\n", d.ID)
}

// NewInstanceCommand creates the instance command group.
func NewInstanceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &instanceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Create and route form instances",
		Long: `Create, inspect and route form instances in the configured store.

Every subcommand acts as the role given by --role. Rejected commands exit
with status 1 and report the rejection kind as error code.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Role, "role", "", "acting role id")
	_ = cmd.MarkPersistentFlagRequired("role")

	cmd.AddCommand(
		newInstanceCreateCommand(opts),
		newInstanceShowCommand(opts),
		newInstanceListCommand(opts),
		newInstanceFormCommand(opts),
		newInstanceSendCommand(opts),
		newInstanceOpenCommand(opts),
		newInstanceDelegateCommand(opts),
		newInstanceDeleteCommand(opts),
	)
	return cmd
}

// instanceRunner wraps a subcommand body with app setup and error output.
func instanceRunner(opts *instanceOptions, fn func(cmd *cobra.Command, args []string, a *app) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
		return withApp(cmd.Context(), opts.RootOptions, cmd.ErrOrStderr(), func(a *app) error {
			out, err := fn(cmd, args, a)
			if err != nil {
				return formatter.Fail(err)
			}
			return formatter.Success(out)
		})
	}
}

// describe renders the instance as the acting role sees it after a command.
func describe(cmd *cobra.Command, a *app, role string, inst *ir.Instance) (any, error) {
	view, err := a.eng.Describe(cmd.Context(), role, inst.ID)
	if err != nil {
		return nil, err
	}
	return InstanceDetail{view}, nil
}

func newInstanceCreateCommand(opts *instanceOptions) *cobra.Command {
	var title string
	var sets []string
	cmd := &cobra.Command{
		Use:           "create <template-id>",
		Short:         "Create a draft instance",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			values, err := parseValues(sets)
			if err != nil {
				return nil, err
			}
			inst, err := a.eng.CreateInstance(cmd.Context(), opts.Role, engine.CreateRequest{
				TemplateID:   args[0],
				Title:        title,
				CommonValues: values,
			})
			if err != nil {
				return nil, err
			}
			return describe(cmd, a, opts.Role, inst)
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "instance title")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "common field value as key=value (repeatable)")
	return cmd
}

func newInstanceShowCommand(opts *instanceOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <instance-id>",
		Short:         "Show an instance",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			view, err := a.eng.Describe(cmd.Context(), opts.Role, args[0])
			if err != nil {
				return nil, err
			}
			return InstanceDetail{view}, nil
		}),
	}
}

func newInstanceListCommand(opts *instanceOptions) *cobra.Command {
	var templateID, status string
	var inbox bool
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List instances visible to the role",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			insts, err := a.eng.ListInstances(cmd.Context(), opts.Role, engine.ListFilter{
				TemplateID: templateID,
				Status:     ir.Status(status),
				Inbox:      inbox,
			})
			if err != nil {
				return nil, err
			}
			list := make(InstanceList, 0, len(insts))
			for i := range insts {
				t, err := a.eng.GetTemplate(cmd.Context(), insts[i].TemplateID)
				if err != nil {
					return nil, err
				}
				list = append(list, a.eng.View(t, opts.Role, &insts[i]))
			}
			return list, nil
		}),
	}
	cmd.Flags().StringVar(&templateID, "template", "", "only instances of this template")
	cmd.Flags().StringVar(&status, "status", "", "only instances with this status (Draft|Sent|Received|Closed)")
	cmd.Flags().BoolVar(&inbox, "inbox", false, "only instances awaiting the role's group")
	return cmd
}

func newInstanceFormCommand(opts *instanceOptions) *cobra.Command {
	var actionID string
	var sets []string
	cmd := &cobra.Command{
		Use:           "form <instance-id>",
		Short:         "Update form values",
		Long:          "Update form values. Values are parsed as YAML scalars, so --set count=3 stores a number.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			values, err := parseValues(sets)
			if err != nil {
				return nil, err
			}
			inst, err := a.eng.UpdateFormData(cmd.Context(), opts.Role, args[0], engine.FormPatch{
				Values:   values,
				ActionID: actionID,
			})
			if err != nil {
				return nil, err
			}
			return describe(cmd, a, opts.Role, inst)
		}),
	}
	cmd.Flags().StringVar(&actionID, "action", "", "action being prepared")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as key=value (repeatable)")
	return cmd
}

func newInstanceSendCommand(opts *instanceOptions) *cobra.Command {
	var message string
	var toGroups []string
	var expectSteps int
	cmd := &cobra.Command{
		Use:           "send <instance-id> <action-id>",
		Short:         "Execute an action",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			req := engine.SendRequest{ActionID: args[1], ToGroups: toGroups, Message: message}
			if cmd.Flags().Changed("expect-steps") {
				req.ExpectedStepCount = &expectSteps
			}
			inst, err := a.eng.SendAction(cmd.Context(), opts.Role, args[0], req)
			if err != nil {
				return nil, err
			}
			return describe(cmd, a, opts.Role, inst)
		}),
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "step message (required for replies)")
	cmd.Flags().StringSliceVar(&toGroups, "to", nil, "recipient groups (defaults to the first candidate group)")
	cmd.Flags().IntVar(&expectSteps, "expect-steps", 0, "reject with CONFLICT unless the instance has this many steps")
	return cmd
}

func newInstanceOpenCommand(opts *instanceOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "open <instance-id>",
		Short:         "Acknowledge the latest step",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			inst, err := a.eng.MarkOpened(cmd.Context(), opts.Role, args[0])
			if err != nil {
				return nil, err
			}
			return describe(cmd, a, opts.Role, inst)
		}),
	}
}

func newInstanceDelegateCommand(opts *instanceOptions) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:           "delegate <instance-id> <group>",
		Short:         "Grant another group access to the latest step",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			inst, err := a.eng.DelegateStep(cmd.Context(), opts.Role, args[0], engine.DelegateRequest{
				ToGroup: args[1],
				Note:    note,
			})
			if err != nil {
				return nil, err
			}
			return describe(cmd, a, opts.Role, inst)
		}),
	}
	cmd.Flags().StringVar(&note, "note", "", "delegation note")
	return cmd
}

func newInstanceDeleteCommand(opts *instanceOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <instance-id>",
		Short:         "Delete an instance",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: instanceRunner(opts, func(cmd *cobra.Command, args []string, a *app) (any, error) {
			if err := a.eng.DeleteInstance(cmd.Context(), opts.Role, args[0]); err != nil {
				return nil, err
			}
			return deleted{ID: args[0]}, nil
		}),
	}
}

// parseValues turns key=value pairs into form values. Each value is read as
// a YAML scalar or flow sequence.
func parseValues(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --set %q: expected key=value", s))
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --set %q", s), err)
		}
		if v == nil {
			v = ""
		}
		values[key] = v
	}
	return values, nil
}
