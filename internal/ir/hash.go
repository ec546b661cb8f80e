package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for snapshot hashes.
// Version suffix enables future algorithm migration.
const (
	DomainInstance = "formflow/instance/v1"
	DomainTemplate = "formflow/template/v1"
	DomainArchive  = "formflow/archive/v1"
)

// MarshalCanonical produces deterministic JSON for hashing: struct fields in
// declaration order, map keys sorted, no HTML escaping, NFC-normalized text.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return norm.NFC.Bytes(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash hashes the canonical form of v under a domain prefix.
func SnapshotHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// InstanceHash is the content hash of an instance snapshot.
func InstanceHash(inst *Instance) (string, error) {
	return SnapshotHash(DomainInstance, inst)
}

// TemplateHash is the content hash of a template snapshot.
func TemplateHash(t *Template) (string, error) {
	return SnapshotHash(DomainTemplate, t)
}
