package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tikcccc/Form-demo/internal/compiler"
	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/store"
)

// DefaultTemplateName names templates created without a name.
const DefaultTemplateName = "Untitled Type"

// TemplatePatch replaces the non-nil parts of a template.
type TemplatePatch struct {
	Name              *string
	Code              *string
	Schema            *[]ir.Field
	Layout            *ir.Layout
	Actions           *[]ir.Action
	ActionFlowEnabled *bool
	InitiatorRoleIDs  *[]string
	RevisionActionIDs *[]string
	CloseOnOpen       *bool

	// Published set to false withdraws the template. Setting it to true runs
	// the publish gate like PublishTemplate.
	Published *bool
}

func (p TemplatePatch) apply(t *ir.Template) {
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Code != nil {
		t.Code = strings.TrimSpace(*p.Code)
	}
	if p.Schema != nil {
		t.Schema = slices.Clone(*p.Schema)
	}
	if p.Layout != nil {
		t.Layout = ir.Layout{Sections: slices.Clone(p.Layout.Sections)}
	}
	if p.Actions != nil {
		t.Actions = slices.Clone(*p.Actions)
	}
	if p.ActionFlowEnabled != nil {
		t.ActionFlowEnabled = *p.ActionFlowEnabled
	}
	if p.InitiatorRoleIDs != nil {
		t.InitiatorRoleIDs = slices.Clone(*p.InitiatorRoleIDs)
	}
	if p.RevisionActionIDs != nil {
		t.RevisionActionIDs = slices.Clone(*p.RevisionActionIDs)
	}
	if p.CloseOnOpen != nil {
		t.CloseOnOpen = *p.CloseOnOpen
	}
	if p.Published != nil {
		t.Published = *p.Published
	}
}

// mutateTemplate is the template counterpart of mutateInstance. Only the
// admin may change templates.
func (e *Engine) mutateTemplate(ctx context.Context, command, roleID, templateID string, fn func(t *ir.Template) error) (_ *ir.Template, err error) {
	ctx, span := e.startSpan(ctx, command, roleID, templateID)
	defer func() { e.finish(ctx, span, command, roleID, templateID, err) }()

	if !e.dir.IsAdmin(roleID) {
		return nil, permissionDenied(templateID, "only the admin may change templates")
	}
	stored, err := e.loadTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	t := stored.Clone()
	if err := fn(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = e.clock.Now()
	if err := e.repo.SaveTemplate(ctx, t, stored.Revision); err != nil {
		return nil, e.storeError(err, templateID)
	}
	return t, nil
}

// CreateTemplate creates an unpublished template, copied from sourceID when
// it is set. The name is trimmed and defaults to DefaultTemplateName.
func (e *Engine) CreateTemplate(ctx context.Context, roleID, sourceID, name string) (_ *ir.Template, err error) {
	ctx, span := e.startSpan(ctx, "create_template", roleID, sourceID)
	var created *ir.Template
	defer func() {
		var attrs []any
		if created != nil {
			attrs = []any{"template_id", created.ID}
		}
		e.finish(ctx, span, "create_template", roleID, sourceID, err, attrs...)
	}()

	if !e.dir.IsAdmin(roleID) {
		return nil, permissionDenied(sourceID, "only the admin may create templates")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTemplateName
	}

	t := &ir.Template{
		Schema:  []ir.Field{},
		Layout:  ir.Layout{Sections: []ir.Section{}},
		Actions: []ir.Action{},
	}
	if sourceID != "" {
		src, err := e.loadTemplate(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		t = src.Clone()
	}
	now := e.clock.Now()
	t.ID = e.ids.Generate()
	t.Name = name
	t.Published = false
	t.Revision = 0
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := e.repo.SaveTemplate(ctx, t, 0); err != nil {
		return nil, e.storeError(err, t.ID)
	}
	created = t
	return t, nil
}

// DuplicateTemplate copies a template under "<name> Copy".
func (e *Engine) DuplicateTemplate(ctx context.Context, roleID, templateID string) (*ir.Template, error) {
	src, err := e.loadTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return e.CreateTemplate(ctx, roleID, templateID, src.Name+" Copy")
}

// UpdateTemplate applies a patch. The result must keep field keys and action
// ids present and unique; anything else may stay unfinished until publish.
// A patch that publishes must also pass the publish gate.
func (e *Engine) UpdateTemplate(ctx context.Context, roleID, templateID string, patch TemplatePatch) (*ir.Template, error) {
	return e.mutateTemplate(ctx, "update_template", roleID, templateID, func(t *ir.Template) error {
		wasPublished := t.Published
		patch.apply(t)
		if err := e.checkTemplate(ctx, t); err != nil {
			return err
		}
		if t.Published && !wasPublished {
			if issues := compiler.PublishIssues(t, e.dir); len(issues) > 0 {
				return publishBlocked(t.ID, issues)
			}
		}
		return nil
	})
}

// PublishTemplate runs the publish gate and marks the template published.
// A blocked publish returns PublishBlocked carrying every issue in order.
func (e *Engine) PublishTemplate(ctx context.Context, roleID, templateID string) (*ir.Template, error) {
	return e.mutateTemplate(ctx, "publish_template", roleID, templateID, func(t *ir.Template) error {
		if err := e.checkTemplate(ctx, t); err != nil {
			return err
		}
		if issues := compiler.PublishIssues(t, e.dir); len(issues) > 0 {
			return publishBlocked(t.ID, issues)
		}
		t.Published = true
		return nil
	})
}

// DeleteTemplate removes a template that no instance refers to.
func (e *Engine) DeleteTemplate(ctx context.Context, roleID, templateID string) (err error) {
	ctx, span := e.startSpan(ctx, "delete_template", roleID, templateID)
	defer func() { e.finish(ctx, span, "delete_template", roleID, templateID, err) }()

	if !e.dir.IsAdmin(roleID) {
		return permissionDenied(templateID, "only the admin may delete templates")
	}
	instances, err := e.repo.ListInstances(ctx)
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	n := 0
	for _, inst := range instances {
		if inst.TemplateID == templateID {
			n++
		}
	}
	if n > 0 {
		return preconditionNotMet(templateID, "template %q has %d instances", templateID, n)
	}
	if err := e.repo.DeleteTemplate(ctx, templateID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound(templateID, "template %q not found", templateID)
		}
		return fmt.Errorf("delete template %s: %w", templateID, err)
	}
	return nil
}

// ImportResult reports what ImportTemplates did with one template.
type ImportResult struct {
	TemplateID string `json:"template_id"`
	Created    bool   `json:"created"`
	Revision   int64  `json:"revision"`
}

// ImportTemplates upserts compiled templates by id. Templates marked
// published must pass the publish gate; the first blocked template stops
// the import.
func (e *Engine) ImportTemplates(ctx context.Context, roleID string, templates []ir.Template) (_ []ImportResult, err error) {
	ctx, span := e.startSpan(ctx, "import_templates", roleID, "")
	defer func() { e.finish(ctx, span, "import_templates", roleID, "", err, "templates", len(templates)) }()

	if !e.dir.IsAdmin(roleID) {
		return nil, permissionDenied("", "only the admin may import templates")
	}
	for i := range templates {
		t := &templates[i]
		if err := e.checkTemplate(ctx, t); err != nil {
			return nil, err
		}
		if t.Published {
			if issues := compiler.PublishIssues(t, e.dir); len(issues) > 0 {
				return nil, publishBlocked(t.ID, issues)
			}
		}
	}

	now := e.clock.Now()
	results := make([]ImportResult, 0, len(templates))
	for i := range templates {
		t := templates[i].Clone()
		var expected int64
		existing, err := e.repo.GetTemplate(ctx, t.ID)
		switch {
		case err == nil:
			expected = existing.Revision
			t.CreatedAt = existing.CreatedAt
		case errors.Is(err, store.ErrNotFound):
			t.CreatedAt = now
		default:
			return results, fmt.Errorf("load template %s: %w", t.ID, err)
		}
		t.UpdatedAt = now
		if err := e.repo.SaveTemplate(ctx, t, expected); err != nil {
			return results, e.storeError(err, t.ID)
		}
		results = append(results, ImportResult{TemplateID: t.ID, Created: expected == 0, Revision: t.Revision})
	}
	return results, nil
}

// GetTemplate returns a template by id.
func (e *Engine) GetTemplate(ctx context.Context, templateID string) (*ir.Template, error) {
	return e.loadTemplate(ctx, templateID)
}

// ListTemplates returns the templates the role may see: all of them for the
// admin, published ones otherwise.
func (e *Engine) ListTemplates(ctx context.Context, roleID string) ([]ir.Template, error) {
	all, err := e.repo.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if e.dir.IsAdmin(roleID) {
		return all, nil
	}
	return slices.DeleteFunc(all, func(t ir.Template) bool { return !t.Published }), nil
}

// checkTemplate rejects a template that breaks the data model. Draft
// warnings are logged only.
func (e *Engine) checkTemplate(ctx context.Context, t *ir.Template) error {
	errs, warnings := compiler.CheckTemplate(t)
	if len(errs) > 0 {
		return templateInvalid(t.ID, errs)
	}
	for _, w := range warnings {
		e.logger.DebugContext(ctx, "template warning", "template_id", t.ID, "field", w.Field, "code", w.Code, "message", w.Message)
	}
	return nil
}

func templateInvalid(id string, errs []compiler.ValidationError) *Error {
	fields := make(map[string]string, len(errs))
	for _, ve := range errs {
		msg := fmt.Sprintf("[%s] %s", ve.Code, ve.Message)
		if prev, ok := fields[ve.Field]; ok {
			msg = prev + "; " + msg
		}
		fields[ve.Field] = msg
	}
	return &Error{Kind: KindValidationFailed, Message: "template is invalid", InstanceID: id, Fields: fields}
}

func publishBlocked(id string, issues []string) *Error {
	return &Error{Kind: KindPublishBlocked, Message: "template cannot be published", InstanceID: id, Issues: issues}
}
