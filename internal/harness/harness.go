package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/compiler"
	"github.com/tikcccc/Form-demo/internal/engine"
	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/logging"
	"github.com/tikcccc/Form-demo/internal/store"
	"github.com/tikcccc/Form-demo/internal/testutil"
)

// Harness executes the steps of one scenario.
type Harness struct {
	repo  *store.Memory
	eng   *engine.Engine
	clock *testutil.DeterministicClock

	instances   map[string]string // alias -> instance id
	attachments map[string]string // alias -> attachment id
}

// Run executes a scenario against a fresh engine and returns the result.
//
// Execution flow:
//  1. Compile the catalog and import its templates as the admin
//  2. Execute the steps, comparing each outcome with its expectation
//  3. Capture the final state of every aliased instance
//  4. Evaluate the assertions
//
// An error is returned only when the scenario cannot be executed at all;
// unmet expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	cat, err := compiler.LoadCatalog(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	dir, err := access.NewDirectory(cat.Roles)
	if err != nil {
		return nil, fmt.Errorf("build role directory: %w", err)
	}

	h := &Harness{
		repo:        store.NewMemory(),
		clock:       testutil.NewDeterministicClock(testutil.Epoch),
		instances:   map[string]string{},
		attachments: map[string]string{},
	}
	h.eng = engine.New(h.repo, dir,
		engine.WithClock(h.clock),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("id")),
		engine.WithCommonFields(cat.CommonFields),
		engine.WithLogger(logging.Discard()),
	)
	if _, err := h.eng.ImportTemplates(ctx, dir.AdminRoleID(), cat.Templates); err != nil {
		return nil, fmt.Errorf("import catalog templates: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Command, err)
		}
	}

	for alias, id := range h.instances {
		state, err := h.captureState(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("capture state of %q: %w", alias, err)
		}
		result.State[alias] = state
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	ev := TraceEvent{Command: step.Command, Role: step.Role, Instance: step.Instance, Outcome: OutcomeOK}

	if step.Command == CmdAdvanceClock {
		days, err := intArg(step.Args, "days")
		if err != nil {
			return err
		}
		hours, err := intArg(step.Args, "hours")
		if err != nil {
			return err
		}
		h.clock.Advance(time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour)
		result.addEvent(ev)
		return nil
	}

	cmdErr := h.dispatch(ctx, step)
	if cmdErr != nil {
		kind := engine.KindOf(cmdErr)
		if kind == "" {
			return cmdErr
		}
		ev.Outcome = string(kind)
	}

	if id, ok := h.instances[step.Instance]; ok {
		if inst, err := h.repo.GetInstance(ctx, id); err == nil {
			ev.Status = string(inst.Status)
			ev.TransmittalNo = inst.TransmittalNo
			ev.Steps = len(inst.Steps)
		}
	}
	result.addEvent(ev)

	want := step.Expect
	if want == "" {
		want = OutcomeOK
	}
	if ev.Outcome != want {
		msg := fmt.Sprintf("steps[%d] %s by %s: expected %s, got %s", index, step.Command, step.Role, want, ev.Outcome)
		if cmdErr != nil {
			msg += ": " + cmdErr.Error()
		}
		result.AddError(msg)
	}
	return nil
}

// dispatch runs the engine command of a step. Malformed arguments yield
// plain errors, which fail the run; engine rejections are step outcomes.
func (h *Harness) dispatch(ctx context.Context, step Step) error {
	args := step.Args
	id := h.instances[step.Instance]
	if step.Command != CmdCreate && id == "" {
		return fmt.Errorf("instance alias %q is not bound", step.Instance)
	}

	switch step.Command {
	case CmdCreate:
		common, err := mapArg(args, "common_values")
		if err != nil {
			return err
		}
		inst, cmdErr := h.eng.CreateInstance(ctx, step.Role, engine.CreateRequest{
			TemplateID:   stringArg(args, "template_id"),
			Title:        stringArg(args, "title"),
			CommonValues: common,
		})
		if cmdErr == nil {
			h.instances[step.Instance] = inst.ID
		}
		return cmdErr

	case CmdUpdateForm:
		values, err := mapArg(args, "values")
		if err != nil {
			return err
		}
		_, cmdErr := h.eng.UpdateFormData(ctx, step.Role, id, engine.FormPatch{
			Values:   values,
			ActionID: stringArg(args, "action_id"),
		})
		return cmdErr

	case CmdAddAttachment:
		size, err := intArg(args, "size")
		if err != nil {
			return err
		}
		_, attID, cmdErr := h.eng.AddAttachment(ctx, step.Role, id, engine.AttachmentInput{
			Name:    stringArg(args, "name"),
			Type:    stringArg(args, "type"),
			Version: stringArg(args, "version"),
			Size:    int64(size),
			Status:  stringArg(args, "status"),
		})
		if cmdErr == nil {
			h.attachments[step.Attachment] = attID
		}
		return cmdErr

	case CmdRemoveAttachment:
		_, cmdErr := h.eng.RemoveAttachment(ctx, step.Role, id, h.attachmentID(step.Attachment))
		return cmdErr

	case CmdSetAttachmentStatus:
		_, cmdErr := h.eng.UpdateAttachmentStatus(ctx, step.Role, id, h.attachmentID(step.Attachment), stringArg(args, "status"))
		return cmdErr

	case CmdSend:
		groups, err := stringsArg(args, "to_groups")
		if err != nil {
			return err
		}
		req := engine.SendRequest{
			ActionID: stringArg(args, "action_id"),
			ToGroups: groups,
			Message:  stringArg(args, "message"),
		}
		if _, ok := args["expected_step_count"]; ok {
			n, err := intArg(args, "expected_step_count")
			if err != nil {
				return err
			}
			req.ExpectedStepCount = &n
		}
		_, cmdErr := h.eng.SendAction(ctx, step.Role, id, req)
		return cmdErr

	case CmdDelegate:
		_, cmdErr := h.eng.DelegateStep(ctx, step.Role, id, engine.DelegateRequest{
			ToGroup: stringArg(args, "to_group"),
			Note:    stringArg(args, "note"),
		})
		return cmdErr

	case CmdOpen:
		_, cmdErr := h.eng.MarkOpened(ctx, step.Role, id)
		return cmdErr

	case CmdDelete:
		cmdErr := h.eng.DeleteInstance(ctx, step.Role, id)
		if cmdErr == nil {
			delete(h.instances, step.Instance)
		}
		return cmdErr
	}
	return fmt.Errorf("unknown command %q", step.Command)
}

// attachmentID resolves an alias; unbound aliases pass through so the engine
// reports them as not found.
func (h *Harness) attachmentID(alias string) string {
	if id, ok := h.attachments[alias]; ok {
		return id
	}
	return alias
}

func (h *Harness) captureState(ctx context.Context, id string) (map[string]any, error) {
	inst, err := h.repo.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := h.repo.GetTemplate(ctx, inst.TemplateID)
	if err != nil {
		return nil, err
	}
	activities := make([]string, len(inst.ActivityLog))
	for i, a := range inst.ActivityLog {
		activities[i] = string(a.Type)
	}
	state := map[string]any{
		"status":         string(inst.Status),
		"steps":          len(inst.Steps),
		"current_to":     engine.CurrentTo(inst),
		"title":          inst.Title,
		"transmittal_no": inst.TransmittalNo,
		"loop_count":     engine.LoopCount(t, inst),
		"overdue":        engine.IsOverdue(inst, h.clock.Now()),
		"activities":     activities,
	}
	for key, v := range inst.FormData {
		state["form."+key] = ir.ValueString(v)
	}
	return state, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("argument %q: expected an integer, got %T", key, v)
	}
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q: expected a list, got %T", key, raw)
	}
	out := make([]string, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q[%d]: expected a string, got %T", key, i, item)
		}
		out[i] = s
	}
	return out, nil
}

func mapArg(args map[string]any, key string) (map[string]any, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument %q: expected a mapping, got %T", key, raw)
	}
	return m, nil
}
