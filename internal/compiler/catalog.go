package compiler

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/tikcccc/Form-demo/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// fieldSpec mirrors ir.Field with untyped default values as authored in CUE.
type fieldSpec struct {
	Key               string   `json:"key"`
	Label             string   `json:"label"`
	Type              string   `json:"type"`
	Required          bool     `json:"required"`
	Options           []string `json:"options"`
	Min               *float64 `json:"min"`
	Max               *float64 `json:"max"`
	MinLength         *int     `json:"min_length"`
	MaxLength         *int     `json:"max_length"`
	DefaultValue      any      `json:"default_value"`
	VisibleRoles      []string `json:"visible_roles"`
	EditableRoles     []string `json:"editable_roles"`
	EditableActionIDs []string `json:"editable_action_ids"`
}

type commonFieldSpec struct {
	fieldSpec
	Optional bool `json:"optional"`
}

type sectionSpec struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Fields      []string `json:"fields"`
	VisibleWhen *struct {
		Field  string `json:"field"`
		Equals any    `json:"equals"`
	} `json:"visible_when"`
}

type templateSpec struct {
	ID     string      `json:"id"`
	Code   string      `json:"code"`
	Name   string      `json:"name"`
	Schema []fieldSpec `json:"schema"`
	Layout struct {
		Sections []sectionSpec `json:"sections"`
	} `json:"layout"`
	Published         bool        `json:"published"`
	Actions           []ir.Action `json:"actions"`
	ActionFlowEnabled bool        `json:"action_flow_enabled"`
	InitiatorRoleIDs  []string    `json:"initiator_role_ids"`
	RevisionActionIDs []string    `json:"revision_action_ids"`
	CloseOnOpen       bool        `json:"close_on_open"`
}

// LoadCatalog loads every CUE file of the package in dir, unifies it with the
// embedded catalog schema and compiles the result.
func LoadCatalog(dir string) (*ir.Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &CompileError{Field: "catalog", Message: fmt.Sprintf("catalog directory not found: %s", dir)}
	}
	if !info.IsDir() {
		return nil, &CompileError{Field: "catalog", Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, &CompileError{Field: "catalog", Message: fmt.Sprintf("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, &CompileError{Field: "catalog", Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &CompileError{Field: "catalog", Message: "no CUE instances loaded"}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	value := ctx.BuildInstance(instances[0])
	return compileValue(ctx, value)
}

// CompileCatalogString compiles catalog source held in memory.
func CompileCatalogString(filename, src string) (*ir.Catalog, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	return compileValue(ctx, value)
}

func compileValue(ctx *cue.Context, value cue.Value) (*ir.Catalog, error) {
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("embedded schema: %w", err)
	}
	unified := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileCatalog(unified)
}

// CompileCatalog converts an already validated CUE catalog value.
func CompileCatalog(v cue.Value) (*ir.Catalog, error) {
	cat := &ir.Catalog{}

	if rolesVal := v.LookupPath(cue.ParsePath("roles")); rolesVal.Exists() {
		if err := rolesVal.Decode(&cat.Roles); err != nil {
			return nil, formatCUEError(err)
		}
	}

	if commonVal := v.LookupPath(cue.ParsePath("common_fields")); commonVal.Exists() {
		var specs []commonFieldSpec
		if err := commonVal.Decode(&specs); err != nil {
			return nil, formatCUEError(err)
		}
		for i, spec := range specs {
			f, err := spec.fieldSpec.toField()
			if err != nil {
				return nil, &CompileError{Field: fmt.Sprintf("common_fields[%d]", i), Message: err.Error(), Pos: commonVal.Pos()}
			}
			cat.CommonFields = append(cat.CommonFields, ir.CommonField{Field: f, Optional: spec.Optional})
		}
	}

	templatesVal := v.LookupPath(cue.ParsePath("templates"))
	if templatesVal.Exists() {
		iter, err := templatesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			t, err := CompileTemplate(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			cat.Templates = append(cat.Templates, *t)
		}
	}
	sort.SliceStable(cat.Templates, func(i, j int) bool { return cat.Templates[i].ID < cat.Templates[j].ID })

	return cat, nil
}

// CompileTemplate converts one template value. The struct label is the id
// unless the template sets one explicitly.
func CompileTemplate(label string, v cue.Value) (*ir.Template, error) {
	var spec templateSpec
	if err := v.Decode(&spec); err != nil {
		return nil, formatCUEError(err)
	}
	path := "templates." + label

	t := &ir.Template{
		ID:                spec.ID,
		Code:              spec.Code,
		Name:              spec.Name,
		Published:         spec.Published,
		Actions:           spec.Actions,
		ActionFlowEnabled: spec.ActionFlowEnabled,
		InitiatorRoleIDs:  spec.InitiatorRoleIDs,
		RevisionActionIDs: spec.RevisionActionIDs,
		CloseOnOpen:       spec.CloseOnOpen,
		Schema:            []ir.Field{},
		Layout:            ir.Layout{Sections: []ir.Section{}},
	}
	if t.ID == "" {
		t.ID = label
	}
	if t.Actions == nil {
		t.Actions = []ir.Action{}
	}

	for i, fs := range spec.Schema {
		f, err := fs.toField()
		if err != nil {
			return nil, &CompileError{Field: fmt.Sprintf("%s.schema[%d]", path, i), Message: err.Error(), Pos: v.Pos()}
		}
		t.Schema = append(t.Schema, f)
	}

	for i, ss := range spec.Layout.Sections {
		section := ir.Section{ID: ss.ID, Title: ss.Title, Fields: ss.Fields}
		if ss.VisibleWhen != nil {
			equals, err := guardValue(t, ss.VisibleWhen.Field, ss.VisibleWhen.Equals)
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("%s.layout.sections[%d].visible_when", path, i),
					Message: err.Error(),
					Pos:     v.Pos(),
				}
			}
			section.VisibleWhen = &ir.VisibleWhen{Field: ss.VisibleWhen.Field, Equals: equals}
		}
		t.Layout.Sections = append(t.Layout.Sections, section)
	}

	return t, nil
}

// toField converts the authored field, typing its default value.
func (fs fieldSpec) toField() (ir.Field, error) {
	f := ir.Field{
		Key:               fs.Key,
		Label:             fs.Label,
		Type:              ir.FieldType(fs.Type),
		Required:          fs.Required,
		Options:           fs.Options,
		Min:               fs.Min,
		Max:               fs.Max,
		MinLength:         fs.MinLength,
		MaxLength:         fs.MaxLength,
		VisibleRoles:      fs.VisibleRoles,
		EditableRoles:     fs.EditableRoles,
		EditableActionIDs: fs.EditableActionIDs,
	}
	if fs.DefaultValue != nil {
		v, err := ir.ParseValue(f, fs.DefaultValue)
		if err != nil {
			return ir.Field{}, fmt.Errorf("default_value: %w", err)
		}
		f.DefaultValue = v
	}
	return f, nil
}

// guardValue types a section guard with the type of the field it watches.
func guardValue(t *ir.Template, key string, raw any) (ir.FieldValue, error) {
	if f, ok := t.FieldByKey(key); ok {
		return ir.ParseValue(f, raw)
	}
	return ir.InferValue(raw)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return &CompileError{Field: "cue", Message: firstErr.Error()}
}
