package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// timeLayout stores timestamps as sortable UTC text.
const timeLayout = time.RFC3339Nano

// encodedRow is the serialized form of one snapshot.
type encodedRow struct {
	body string
	hash string
}

// encodeTemplate serializes a template. The revision inside the body is the
// one the caller is about to store.
func encodeTemplate(t *ir.Template) (encodedRow, error) {
	body, err := ir.MarshalCanonical(t)
	if err != nil {
		return encodedRow{}, fmt.Errorf("marshal template: %w", err)
	}
	hash, err := ir.TemplateHash(t)
	if err != nil {
		return encodedRow{}, fmt.Errorf("hash template: %w", err)
	}
	return encodedRow{body: string(body), hash: hash}, nil
}

func encodeInstance(inst *ir.Instance) (encodedRow, error) {
	body, err := ir.MarshalCanonical(inst)
	if err != nil {
		return encodedRow{}, fmt.Errorf("marshal instance: %w", err)
	}
	hash, err := ir.InstanceHash(inst)
	if err != nil {
		return encodedRow{}, fmt.Errorf("hash instance: %w", err)
	}
	return encodedRow{body: string(body), hash: hash}, nil
}

// decodeTemplate parses a stored body. The revision column wins over the
// body in case they ever disagree.
func decodeTemplate(body string, revision int64) (*ir.Template, error) {
	var t ir.Template
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	t.Revision = revision
	return &t, nil
}

func decodeInstance(body string, revision int64) (*ir.Instance, error) {
	var inst ir.Instance
	if err := json.Unmarshal([]byte(body), &inst); err != nil {
		return nil, fmt.Errorf("unmarshal instance: %w", err)
	}
	inst.Revision = revision
	return &inst, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
