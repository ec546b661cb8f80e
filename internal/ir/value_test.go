package ir

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		field   Field
		raw     any
		want    FieldValue
		wantErr string
	}{
		{"text", Field{Key: "t", Type: FieldText}, "hello", TextValue("hello"), ""},
		{"textarea nil", Field{Key: "t", Type: FieldTextarea}, nil, TextValue(""), ""},
		{"number from int", Field{Key: "n", Type: FieldNumber}, 3, NumberValue(3), ""},
		{"number from float", Field{Key: "n", Type: FieldNumber}, 2.5, NumberValue(2.5), ""},
		{"number rejects text", Field{Key: "n", Type: FieldNumber}, "3", nil, "expects a number"},
		{"bool", Field{Key: "b", Type: FieldBoolean}, true, BoolValue(true), ""},
		{"bool rejects nil", Field{Key: "b", Type: FieldBoolean}, nil, nil, "expects a boolean"},
		{"select option", Field{Key: "s", Type: FieldSelect, Options: []string{"A", "B"}}, "B", SelectValue("B"), ""},
		{"select empty allowed", Field{Key: "s", Type: FieldSelect, Options: []string{"A"}}, "", SelectValue(""), ""},
		{"select unknown option", Field{Key: "s", Type: FieldSelect, Options: []string{"A"}}, "C", nil, "not one of the options"},
		{"typed kind mismatch", Field{Key: "t", Type: FieldText}, NumberValue(1), nil, "expects text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue(tt.field, tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValue_NormalizesText(t *testing.T) {
	decomposed := "Cafe\u0301"
	got, err := ParseValue(Field{Key: "t", Type: FieldText}, decomposed)
	require.NoError(t, err)
	assert.Equal(t, TextValue("Caf\u00e9"), got)
}

func TestIsEmptyValue(t *testing.T) {
	assert.True(t, IsEmptyValue(nil))
	assert.True(t, IsEmptyValue(TextValue("")))
	assert.True(t, IsEmptyValue(SelectValue("")))
	assert.True(t, IsEmptyValue(NumberValue(math.NaN())))
	assert.False(t, IsEmptyValue(NumberValue(0)))
	assert.False(t, IsEmptyValue(BoolValue(false)))
	assert.False(t, IsEmptyValue(TextValue(" ")))
}

func TestEqualValues(t *testing.T) {
	assert.True(t, EqualValues(nil, nil))
	assert.False(t, EqualValues(nil, TextValue("")))
	assert.True(t, EqualValues(TextValue("a"), TextValue("a")))
	assert.False(t, EqualValues(TextValue("a"), SelectValue("a")), "kinds differ")
	assert.True(t, EqualValues(NumberValue(math.NaN()), NumberValue(math.NaN())))
	assert.False(t, EqualValues(NumberValue(1), BoolValue(true)))
}

func TestFormData_JSONKeepsKinds(t *testing.T) {
	in := FormData{
		"title":    TextValue("Pump room"),
		"priority": SelectValue("High"),
		"qty":      NumberValue(4),
		"urgent":   BoolValue(true),
		"unset":    nil,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"priority":{"kind":"select","value":"High"}`)

	var out FormData
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalValue_RejectsUnknownKind(t *testing.T) {
	_, err := UnmarshalValue([]byte(`{"kind":"date","value":"2024-01-01"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown value kind")
}

func TestField_DefaultValueSurvivesJSON(t *testing.T) {
	f := Field{Key: "kind", Type: FieldSelect, Options: []string{"A", "B"}, DefaultValue: SelectValue("B")}
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var back Field
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, f, back)
}

func TestCommonField_KeepsOptional(t *testing.T) {
	data := []byte(`{"key":"ref","label":"Reference","type":"text","optional":true}`)
	var cf CommonField
	require.NoError(t, json.Unmarshal(data, &cf))
	assert.Equal(t, "ref", cf.Key)
	assert.True(t, cf.Optional)
}
