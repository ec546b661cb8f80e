package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Template errors (E101-E119)
	ErrTemplateIDEmpty      = "E101" // template id is required
	ErrDuplicateTemplateID  = "E102" // two templates share an id
	ErrFieldKeyEmpty        = "E103" // field key is required
	ErrDuplicateFieldKey    = "E104" // field key declared twice
	ErrInvalidFieldType     = "E105" // unknown field type
	ErrInvalidBounds        = "E106" // min above max or negative length
	ErrUnknownFieldRef      = "E107" // section or guard names a missing field
	ErrActionIDEmpty        = "E108" // action id is required
	ErrDuplicateActionID    = "E109" // action id declared twice
	ErrUnknownActionRef     = "E110" // revision or editable action id is missing
	ErrUnknownRoleRef       = "E111" // role id not present in the catalog
	ErrSelectWithoutOptions = "E112" // select field declares no options
	ErrNegativeDueDays      = "E113" // due_days below zero

	// Catalog errors (E120-E129)
	ErrRoleIDEmpty     = "E120" // role id is required
	ErrDuplicateRoleID = "E121" // role id declared twice
	ErrCommonFieldKey  = "E122" // common field collides with a template field
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks compiled catalog data for structural problems.
// Returns all errors found (does not fail-fast).
// Flow graph problems are publish issues, not validation errors.
func Validate(v any) []ValidationError {
	switch x := v.(type) {
	case *ir.Catalog:
		return validateCatalog(x)
	case ir.Catalog:
		return validateCatalog(&x)
	case *ir.Template:
		return validateTemplate(x, nil, "")
	case ir.Template:
		return validateTemplate(&x, nil, "")
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// invariantCodes name the checks every stored template passes, published or
// not: ids and keys are present and unique and every field type is known.
var invariantCodes = map[string]bool{
	ErrTemplateIDEmpty:   true,
	ErrFieldKeyEmpty:     true,
	ErrDuplicateFieldKey: true,
	ErrInvalidFieldType:  true,
	ErrActionIDEmpty:     true,
	ErrDuplicateActionID: true,
}

// CheckTemplate splits the structural checks of one template in two. errs
// break the data model and must reject the edit. warnings describe an
// unfinished draft (a select without options, a section naming a field not
// yet added) and never block an edit or a publish.
func CheckTemplate(t *ir.Template) (errs, warnings []ValidationError) {
	for _, ve := range validateTemplate(t, nil, "") {
		if invariantCodes[ve.Code] {
			errs = append(errs, ve)
		} else {
			warnings = append(warnings, ve)
		}
	}
	return errs, warnings
}

func validateCatalog(cat *ir.Catalog) []ValidationError {
	var errs []ValidationError

	roleIDs := make(map[string]bool, len(cat.Roles))
	for i, r := range cat.Roles {
		path := fmt.Sprintf("roles[%d].id", i)
		if strings.TrimSpace(r.ID) == "" {
			errs = append(errs, ValidationError{Field: path, Message: "role id is required", Code: ErrRoleIDEmpty})
			continue
		}
		if roleIDs[r.ID] {
			errs = append(errs, ValidationError{Field: path, Message: fmt.Sprintf("duplicate role id: %q", r.ID), Code: ErrDuplicateRoleID})
		}
		roleIDs[r.ID] = true
	}

	commonKeys := make(map[string]bool, len(cat.CommonFields))
	for i, cf := range cat.CommonFields {
		path := fmt.Sprintf("common_fields[%d]", i)
		errs = append(errs, validateField(cf.Field, path)...)
		if cf.Key != "" && commonKeys[cf.Key] {
			errs = append(errs, ValidationError{Field: path + ".key", Message: fmt.Sprintf("duplicate field key: %q", cf.Key), Code: ErrDuplicateFieldKey})
		}
		commonKeys[cf.Key] = true
	}

	templateIDs := make(map[string]bool, len(cat.Templates))
	for i := range cat.Templates {
		t := &cat.Templates[i]
		prefix := fmt.Sprintf("templates[%d]", i)
		if t.ID != "" && templateIDs[t.ID] {
			errs = append(errs, ValidationError{Field: prefix + ".id", Message: fmt.Sprintf("duplicate template id: %q", t.ID), Code: ErrDuplicateTemplateID})
		}
		templateIDs[t.ID] = true

		errs = append(errs, validateTemplate(t, roleIDs, prefix)...)

		for j, f := range t.Schema {
			if commonKeys[f.Key] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.schema[%d].key", prefix, j),
					Message: fmt.Sprintf("field %q is already declared as a common field", f.Key),
					Code:    ErrCommonFieldKey,
				})
			}
		}
	}

	return errs
}

// validateTemplate checks one template. roleIDs may be nil when no role table
// is available, which skips role reference checks.
func validateTemplate(t *ir.Template, roleIDs map[string]bool, prefix string) []ValidationError {
	var errs []ValidationError
	at := func(field string) string {
		if prefix == "" {
			return field
		}
		return prefix + "." + field
	}

	if strings.TrimSpace(t.ID) == "" {
		errs = append(errs, ValidationError{Field: at("id"), Message: "template id is required", Code: ErrTemplateIDEmpty})
	}

	checkRoles := func(field string, ids []string) {
		if roleIDs == nil {
			return
		}
		for _, id := range ids {
			if !roleIDs[id] {
				errs = append(errs, ValidationError{Field: at(field), Message: fmt.Sprintf("unknown role: %q", id), Code: ErrUnknownRoleRef})
			}
		}
	}

	fieldKeys := make(map[string]bool, len(t.Schema))
	for i, f := range t.Schema {
		path := at(fmt.Sprintf("schema[%d]", i))
		errs = append(errs, validateField(f, path)...)
		if f.Key != "" && fieldKeys[f.Key] {
			errs = append(errs, ValidationError{Field: path + ".key", Message: fmt.Sprintf("duplicate field key: %q", f.Key), Code: ErrDuplicateFieldKey})
		}
		fieldKeys[f.Key] = true
		checkRoles(fmt.Sprintf("schema[%d].visible_roles", i), f.VisibleRoles)
		checkRoles(fmt.Sprintf("schema[%d].editable_roles", i), f.EditableRoles)
	}

	actionIDs := make(map[string]bool, len(t.Actions))
	for i, a := range t.Actions {
		path := at(fmt.Sprintf("actions[%d]", i))
		if strings.TrimSpace(a.ID) == "" {
			errs = append(errs, ValidationError{Field: path + ".id", Message: "action id is required", Code: ErrActionIDEmpty})
			continue
		}
		if actionIDs[a.ID] {
			errs = append(errs, ValidationError{Field: path + ".id", Message: fmt.Sprintf("duplicate action id: %q", a.ID), Code: ErrDuplicateActionID})
		}
		actionIDs[a.ID] = true
		if a.DueDays < 0 {
			errs = append(errs, ValidationError{Field: path + ".due_days", Message: "due_days must not be negative", Code: ErrNegativeDueDays})
		}
		checkRoles(fmt.Sprintf("actions[%d].allowed_roles", i), a.AllowedRoles)
		checkRoles(fmt.Sprintf("actions[%d].cc_role_ids", i), a.CCRoleIDs)
	}

	for i, s := range t.Layout.Sections {
		for j, key := range s.Fields {
			if !fieldKeys[key] {
				errs = append(errs, ValidationError{
					Field:   at(fmt.Sprintf("layout.sections[%d].fields[%d]", i, j)),
					Message: fmt.Sprintf("unknown field: %q", key),
					Code:    ErrUnknownFieldRef,
				})
			}
		}
		if s.VisibleWhen != nil && !fieldKeys[s.VisibleWhen.Field] {
			errs = append(errs, ValidationError{
				Field:   at(fmt.Sprintf("layout.sections[%d].visible_when.field", i)),
				Message: fmt.Sprintf("unknown field: %q", s.VisibleWhen.Field),
				Code:    ErrUnknownFieldRef,
			})
		}
	}

	for i, f := range t.Schema {
		for _, id := range f.EditableActionIDs {
			if !actionIDs[id] {
				errs = append(errs, ValidationError{
					Field:   at(fmt.Sprintf("schema[%d].editable_action_ids", i)),
					Message: fmt.Sprintf("unknown action: %q", id),
					Code:    ErrUnknownActionRef,
				})
			}
		}
	}
	for _, id := range t.RevisionActionIDs {
		if !actionIDs[id] {
			errs = append(errs, ValidationError{Field: at("revision_action_ids"), Message: fmt.Sprintf("unknown action: %q", id), Code: ErrUnknownActionRef})
		}
	}
	checkRoles("initiator_role_ids", t.InitiatorRoleIDs)

	return errs
}

func validateField(f ir.Field, path string) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(f.Key) == "" {
		errs = append(errs, ValidationError{Field: path + ".key", Message: "field key is required", Code: ErrFieldKeyEmpty})
	}
	if !slices.Contains(ir.ValidFieldTypes, f.Type) {
		errs = append(errs, ValidationError{
			Field:   path + ".type",
			Message: fmt.Sprintf("invalid field type %q for field %q", f.Type, f.Key),
			Code:    ErrInvalidFieldType,
		})
	}
	if f.Type == ir.FieldSelect && len(f.Options) == 0 {
		errs = append(errs, ValidationError{Field: path + ".options", Message: fmt.Sprintf("select field %q declares no options", f.Key), Code: ErrSelectWithoutOptions})
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		errs = append(errs, ValidationError{Field: path + ".min", Message: fmt.Sprintf("min %v exceeds max %v", *f.Min, *f.Max), Code: ErrInvalidBounds})
	}
	if (f.MinLength != nil && *f.MinLength < 0) || (f.MaxLength != nil && *f.MaxLength < 0) {
		errs = append(errs, ValidationError{Field: path + ".min_length", Message: "lengths must not be negative", Code: ErrInvalidBounds})
	} else if f.MinLength != nil && f.MaxLength != nil && *f.MinLength > *f.MaxLength {
		errs = append(errs, ValidationError{Field: path + ".min_length", Message: fmt.Sprintf("min_length %d exceeds max_length %d", *f.MinLength, *f.MaxLength), Code: ErrInvalidBounds})
	}

	return errs
}
