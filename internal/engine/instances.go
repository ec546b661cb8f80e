package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/store"
)

// CreateRequest starts a new instance of a published template.
type CreateRequest struct {
	TemplateID string

	// Title seeds the "title" field when CommonValues does not set it.
	Title string

	// CommonValues are plain or typed values for the shared fields.
	CommonValues map[string]any
}

// CreateInstance creates a Draft instance with default form data, the
// caller's common field values and the next transmittal number.
func (e *Engine) CreateInstance(ctx context.Context, roleID string, req CreateRequest) (_ *ir.Instance, err error) {
	ctx, span := e.startSpan(ctx, "create_instance", roleID, req.TemplateID)
	var created *ir.Instance
	defer func() {
		var attrs []any
		if created != nil {
			attrs = []any{"instance_id", created.ID, "transmittal_no", created.TransmittalNo}
		}
		e.finish(ctx, span, "create_instance", roleID, req.TemplateID, err, attrs...)
	}()

	t, err := e.loadTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !t.Published {
		return nil, preconditionNotMet(t.ID, "template %q is not published", t.ID)
	}
	if !e.CanInitiate(t, roleID) {
		return nil, permissionDenied(t.ID, "role %q may not create %q instances", roleID, t.ID)
	}

	data := BuildDefaultFormData(t)
	maps.Copy(data, BuildDefaultCommonData(e.common))

	fieldErrs := map[string]string{}
	for _, key := range slices.Sorted(maps.Keys(req.CommonValues)) {
		f, ok := e.commonField(key)
		if !ok {
			fieldErrs[key] = fmt.Sprintf("%q is not a common field", key)
			continue
		}
		v, err := ir.ParseValue(f.Field, req.CommonValues[key])
		if err != nil {
			fieldErrs[key] = err.Error()
			continue
		}
		data[key] = v
	}
	if len(fieldErrs) > 0 {
		return nil, validationFailed(t.ID, fieldErrs)
	}

	title := strings.TrimSpace(req.Title)
	if _, set := req.CommonValues["title"]; title != "" && !set {
		if f, ok := e.titleField(t); ok && f.Type.IsText() {
			data["title"] = ir.NewText(title)
		}
	}
	if errs := ValidateCommonFields(e.common, data); len(errs) > 0 {
		return nil, validationFailed(t.ID, errs)
	}

	now := e.clock.Now()
	inst := &ir.Instance{
		ID:          e.ids.Generate(),
		TemplateID:  t.ID,
		Title:       instanceTitle(t, data, title),
		Status:      ir.StatusDraft,
		CreatedBy:   roleID,
		CreatedAt:   now,
		FormData:    data,
		Attachments: []ir.Attachment{},
		Steps:       []ir.Step{},
		FormHistory: []ir.FormHistoryEntry{},
	}
	m := &mutation{roleID: roleID, inst: inst, tmpl: t, now: now}
	e.appendActivity(m, ir.ActivityCreate, fmt.Sprintf("%s created the form.", e.dir.LabelOf(roleID)), "")

	// Numbering reads then writes; serialize creations in this process and
	// let the store's unique constraint catch other writers.
	e.createMu.Lock()
	defer e.createMu.Unlock()

	prefix := TransmittalPrefix(t)
	year := now.Year()
	existing, err := e.repo.TransmittalNumbers(ctx, fmt.Sprintf("%s-%d-", prefix, year))
	if err != nil {
		return nil, fmt.Errorf("list transmittal numbers: %w", err)
	}
	inst.TransmittalNo = NextTransmittalNo(prefix, year, existing)

	if err := e.repo.SaveInstance(ctx, inst, 0); err != nil {
		return nil, e.storeError(err, inst.ID)
	}
	created = inst
	return inst, nil
}

func (e *Engine) commonField(key string) (ir.CommonField, bool) {
	for _, f := range e.common {
		if f.Key == key {
			return f, true
		}
	}
	return ir.CommonField{}, false
}

func (e *Engine) titleField(t *ir.Template) (ir.Field, bool) {
	if f, ok := e.commonField("title"); ok {
		return f.Field, true
	}
	return t.FieldByKey("title")
}

// instanceTitle prefers the title field, then the requested title.
func instanceTitle(t *ir.Template, data ir.FormData, requested string) string {
	if v, ok := data["title"]; ok && !ir.IsEmptyValue(v) {
		return ir.ValueString(v)
	}
	if requested != "" {
		return requested
	}
	name := t.Name
	if name == "" {
		name = t.ID
	}
	return "New " + name
}

// DeleteInstance removes an instance. Only the admin may delete.
func (e *Engine) DeleteInstance(ctx context.Context, roleID, instanceID string) (err error) {
	ctx, span := e.startSpan(ctx, "delete_instance", roleID, instanceID)
	defer func() { e.finish(ctx, span, "delete_instance", roleID, instanceID, err) }()

	if !e.dir.IsAdmin(roleID) {
		return permissionDenied(instanceID, "only the admin may delete instances")
	}
	unlock := e.lockInstance(instanceID)
	defer unlock()
	if err := e.repo.DeleteInstance(ctx, instanceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(instanceID, "instance %q not found", instanceID)
		}
		return fmt.Errorf("delete instance %s: %w", instanceID, err)
	}
	return nil
}

// GetInstance returns an instance the role may view.
func (e *Engine) GetInstance(ctx context.Context, roleID, instanceID string) (*ir.Instance, *ir.Template, error) {
	inst, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	t, err := e.loadTemplate(ctx, inst.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	if !e.CanView(t, roleID, inst) {
		return nil, nil, permissionDenied(instanceID, "role %q may not view this instance", roleID)
	}
	return inst, t, nil
}

// ListFilter narrows ListInstances.
type ListFilter struct {
	TemplateID string
	Status     ir.Status

	// Inbox keeps only instances awaiting a reply from the role's group.
	Inbox bool
}

// ListInstances returns the instances the role may view, newest first.
func (e *Engine) ListInstances(ctx context.Context, roleID string, filter ListFilter) ([]ir.Instance, error) {
	all, err := e.repo.ListInstances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	templates := map[string]*ir.Template{}
	var out []ir.Instance
	for i := range all {
		inst := &all[i]
		if filter.TemplateID != "" && inst.TemplateID != filter.TemplateID {
			continue
		}
		if filter.Status != "" && inst.Status != filter.Status {
			continue
		}
		if filter.Inbox && !e.IsInbox(inst, roleID) {
			continue
		}
		t, ok := templates[inst.TemplateID]
		if !ok {
			t, err = e.repo.GetTemplate(ctx, inst.TemplateID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("load template %s: %w", inst.TemplateID, err)
			}
			templates[inst.TemplateID] = t
		}
		if !e.CanView(t, roleID, inst) {
			continue
		}
		out = append(out, *inst)
	}
	slices.SortStableFunc(out, func(a, b ir.Instance) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.TransmittalNo, a.TransmittalNo)
	})
	return out, nil
}
