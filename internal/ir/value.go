package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// FieldValue is a sealed interface over the typed form values.
// Only TextValue, NumberValue, BoolValue and SelectValue implement it.
type FieldValue interface {
	fieldValue() // Sealed
	Kind() ValueKind
}

// ValueKind tags a FieldValue on the wire.
type ValueKind string

const (
	KindText   ValueKind = "text"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindSelect ValueKind = "select"
)

// TextValue holds text and textarea values. Construct with NewText so the
// content is NFC normalized.
type TextValue string

func (TextValue) fieldValue()     {}
func (TextValue) Kind() ValueKind { return KindText }

// NumberValue holds numeric values.
type NumberValue float64

func (NumberValue) fieldValue()     {}
func (NumberValue) Kind() ValueKind { return KindNumber }

// BoolValue holds boolean values.
type BoolValue bool

func (BoolValue) fieldValue()     {}
func (BoolValue) Kind() ValueKind { return KindBool }

// SelectValue holds one option of a select field.
type SelectValue string

func (SelectValue) fieldValue()     {}
func (SelectValue) Kind() ValueKind { return KindSelect }

// NewText returns an NFC-normalized TextValue.
func NewText(s string) TextValue {
	return TextValue(norm.NFC.String(s))
}

// NewSelect returns an NFC-normalized SelectValue.
func NewSelect(s string) SelectValue {
	return SelectValue(norm.NFC.String(s))
}

// IsEmptyValue reports whether a value counts as unset: nil, empty text,
// empty selection, or NaN. Booleans are never empty.
func IsEmptyValue(v FieldValue) bool {
	switch val := v.(type) {
	case nil:
		return true
	case TextValue:
		return val == ""
	case SelectValue:
		return val == ""
	case NumberValue:
		return math.IsNaN(float64(val))
	default:
		return false
	}
}

// EqualValues compares two values by kind and content. NaN equals NaN.
func EqualValues(a, b FieldValue) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := a.(NumberValue); ok {
		bn, ok := b.(NumberValue)
		if !ok {
			return false
		}
		if math.IsNaN(float64(an)) && math.IsNaN(float64(bn)) {
			return true
		}
		return an == bn
	}
	return a == b
}

// ValueString renders a value for messages and logs.
func ValueString(v FieldValue) string {
	switch val := v.(type) {
	case nil:
		return ""
	case TextValue:
		return string(val)
	case SelectValue:
		return string(val)
	case NumberValue:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case BoolValue:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// taggedValue is the wire form of a FieldValue.
type taggedValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func marshalTagged(kind ValueKind, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedValue{Kind: kind, Value: raw})
}

// MarshalJSON implements json.Marshaler.
func (v TextValue) MarshalJSON() ([]byte, error) { return marshalTagged(KindText, string(v)) }

// MarshalJSON implements json.Marshaler.
func (v SelectValue) MarshalJSON() ([]byte, error) { return marshalTagged(KindSelect, string(v)) }

// MarshalJSON implements json.Marshaler.
func (v BoolValue) MarshalJSON() ([]byte, error) { return marshalTagged(KindBool, bool(v)) }

// MarshalJSON implements json.Marshaler. NaN is written as null.
func (v NumberValue) MarshalJSON() ([]byte, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return marshalTagged(KindNumber, nil)
	}
	return marshalTagged(KindNumber, f)
}

// UnmarshalValue decodes the tagged wire form produced by MarshalJSON.
func UnmarshalValue(data []byte) (FieldValue, error) {
	var tv taggedValue
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tv); err != nil {
		return nil, fmt.Errorf("decode field value: %w", err)
	}
	switch tv.Kind {
	case KindText, KindSelect:
		var s string
		if err := json.Unmarshal(tv.Value, &s); err != nil {
			return nil, fmt.Errorf("%s value: %w", tv.Kind, err)
		}
		if tv.Kind == KindText {
			return NewText(s), nil
		}
		return NewSelect(s), nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(tv.Value, &b); err != nil {
			return nil, fmt.Errorf("bool value: %w", err)
		}
		return BoolValue(b), nil
	case KindNumber:
		if len(tv.Value) == 0 || string(tv.Value) == "null" {
			return NumberValue(math.NaN()), nil
		}
		var f float64
		if err := json.Unmarshal(tv.Value, &f); err != nil {
			return nil, fmt.Errorf("number value: %w", err)
		}
		return NumberValue(f), nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", tv.Kind)
	}
}

// ParseValue converts a plain decoded value (JSON, YAML or CUE) into the
// typed value a field expects. A nil input yields the field's empty value.
func ParseValue(field Field, raw any) (FieldValue, error) {
	if fv, ok := raw.(FieldValue); ok {
		return checkKind(field, fv)
	}
	switch field.Type {
	case FieldText, FieldTextarea:
		if raw == nil {
			return TextValue(""), nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q expects text, got %T", field.Key, raw)
		}
		return NewText(s), nil
	case FieldSelect:
		if raw == nil {
			return SelectValue(""), nil
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("field %q expects an option, got %T", field.Key, raw)
		}
		return checkKind(field, NewSelect(s))
	case FieldBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("field %q expects a boolean, got %T", field.Key, raw)
		}
		return BoolValue(b), nil
	case FieldNumber:
		if raw == nil {
			return NumberValue(math.NaN()), nil
		}
		f, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q expects a number: %w", field.Key, err)
		}
		return NumberValue(f), nil
	default:
		return nil, fmt.Errorf("field %q has unsupported type %q", field.Key, field.Type)
	}
}

// checkKind verifies a typed value against the field type and options.
func checkKind(field Field, v FieldValue) (FieldValue, error) {
	want := KindText
	switch field.Type {
	case FieldNumber:
		want = KindNumber
	case FieldBoolean:
		want = KindBool
	case FieldSelect:
		want = KindSelect
	}
	if v.Kind() != want {
		return nil, fmt.Errorf("field %q expects %s, got %s", field.Key, want, v.Kind())
	}
	if sv, ok := v.(SelectValue); ok && sv != "" && len(field.Options) > 0 {
		if !slices.Contains(field.Options, string(sv)) {
			return nil, fmt.Errorf("field %q: %q is not one of the options", field.Key, string(sv))
		}
	}
	return v, nil
}

// InferValue converts a plain value without a field definition.
// Strings become text.
func InferValue(raw any) (FieldValue, error) {
	switch val := raw.(type) {
	case FieldValue:
		return val, nil
	case string:
		return NewText(val), nil
	case bool:
		return BoolValue(val), nil
	default:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		return NumberValue(f), nil
	}
}

func toFloat(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("unsupported number type %T", raw)
	}
}

// FormData maps field keys to typed values.
type FormData map[string]FieldValue

// Clone returns a shallow copy; values are immutable.
func (d FormData) Clone() FormData {
	if d == nil {
		return nil
	}
	c := make(FormData, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// UnmarshalJSON decodes tagged values.
func (d *FormData) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FormData, len(raw))
	for k, r := range raw {
		if string(r) == "null" {
			out[k] = nil
			continue
		}
		v, err := UnmarshalValue(r)
		if err != nil {
			return fmt.Errorf("form data key %q: %w", k, err)
		}
		out[k] = v
	}
	*d = out
	return nil
}
