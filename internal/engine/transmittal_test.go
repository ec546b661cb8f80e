package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tikcccc/Form-demo/internal/ir"
)

func TestTransmittalPrefix(t *testing.T) {
	tests := []struct {
		name string
		tmpl ir.Template
		want string
	}{
		{"code wins", ir.Template{ID: "x", Code: "rfi", Name: "Request"}, "RFI"},
		{"name when no code", ir.Template{ID: "x", Name: "Site  Inspection / QA"}, "SITE-INSPECTION-QA"},
		{"id when no name", ir.Template{ID: "tpl-7"}, "TPL-7"},
		{"edges trimmed", ir.Template{Code: "--csf!"}, "CSF"},
		{"fallback", ir.Template{Code: "???"}, "DOC"},
		{"empty", ir.Template{}, "DOC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransmittalPrefix(&tt.tmpl))
		})
	}
}

func TestNextTransmittalNo(t *testing.T) {
	assert.Equal(t, "RFI-2025-0001", NextTransmittalNo("RFI", 2025, nil))

	existing := []string{
		"RFI-2025-0001",
		"RFI-2025-0007",
		"RFI-2024-0042",  // other year
		"RFIX-2025-0099", // other prefix
		"RFI-2025-12",    // malformed
	}
	assert.Equal(t, "RFI-2025-0008", NextTransmittalNo("RFI", 2025, existing))
	assert.Equal(t, "RFI-2024-0043", NextTransmittalNo("RFI", 2024, existing))
}
