// Package archive exports closed instances as self-contained JSON bundles.
//
// Bundles are written through afs, so the archive root can be a local
// directory (file://), an in-process store (mem://) or any storage afs has a
// connector for. Each bundle is named after the instance's transmittal
// number and carries the template it was executed against.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/tikcccc/Form-demo/internal/ir"
)

const bundleExt = ".json"

// ErrNotFound is returned by Load for unknown transmittal numbers.
var ErrNotFound = errors.New("archive: bundle not found")

// Bundle is the exported form of one closed instance.
type Bundle struct {
	SchemaVersion string       `json:"schema_version"`
	Instance      *ir.Instance `json:"instance"`
	Template      *ir.Template `json:"template"`
	ExportedAt    time.Time    `json:"exported_at"`

	// Hash covers Instance and Template.
	Hash string `json:"hash"`
}

type hashedContent struct {
	Instance *ir.Instance `json:"instance"`
	Template *ir.Template `json:"template"`
}

func contentHash(inst *ir.Instance, tmpl *ir.Template) (string, error) {
	return ir.SnapshotHash(ir.DomainArchive, hashedContent{Instance: inst, Template: tmpl})
}

// Verify reports whether the bundle content still matches its hash.
func (b *Bundle) Verify() (bool, error) {
	h, err := contentHash(b.Instance, b.Template)
	if err != nil {
		return false, err
	}
	return h == b.Hash, nil
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithNow sets the time source for ExportedAt.
func WithNow(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithService sets the afs service. Defaults to afs.New().
func WithService(fs afs.Service) Option {
	return func(e *Exporter) {
		if fs != nil {
			e.fs = fs
		}
	}
}

// Exporter writes bundles under a base URL.
type Exporter struct {
	baseURL string
	fs      afs.Service
	now     func() time.Time
	mu      sync.Mutex
}

// New creates an exporter rooted at baseURL, creating the location if it
// does not exist. Plain paths are treated as file:// URLs.
func New(ctx context.Context, baseURL string, opts ...Option) (*Exporter, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("archive base URL cannot be empty")
	}
	e := &Exporter{
		baseURL: url.Normalize(baseURL, file.Scheme),
		fs:      afs.New(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	exists, err := e.fs.Exists(ctx, e.baseURL)
	if err != nil {
		return nil, fmt.Errorf("check archive location %s: %w", e.baseURL, err)
	}
	if !exists {
		if err := e.fs.Create(ctx, e.baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("create archive location %s: %w", e.baseURL, err)
		}
	}
	return e, nil
}

// BaseURL returns the normalized archive root.
func (e *Exporter) BaseURL() string {
	return e.baseURL
}

func (e *Exporter) bundleURL(transmittalNo string) string {
	return url.Join(e.baseURL, transmittalNo+bundleExt)
}

// Archive writes the bundle for inst, replacing an earlier export of the
// same transmittal number.
func (e *Exporter) Archive(ctx context.Context, inst *ir.Instance, tmpl *ir.Template) error {
	if inst == nil || inst.TransmittalNo == "" {
		return fmt.Errorf("archive: instance has no transmittal number")
	}
	hash, err := contentHash(inst, tmpl)
	if err != nil {
		return fmt.Errorf("hash bundle %s: %w", inst.TransmittalNo, err)
	}
	bundle := Bundle{
		SchemaVersion: ir.SchemaVersion,
		Instance:      inst,
		Template:      tmpl,
		ExportedAt:    e.now(),
		Hash:          hash,
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle %s: %w", inst.TransmittalNo, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	target := e.bundleURL(inst.TransmittalNo)
	if err := e.fs.Upload(ctx, target, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload bundle %s: %w", target, err)
	}
	return nil
}

// Load reads the bundle of a transmittal number.
func (e *Exporter) Load(ctx context.Context, transmittalNo string) (*Bundle, error) {
	target := e.bundleURL(transmittalNo)
	exists, err := e.fs.Exists(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("check bundle %s: %w", target, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	data, err := e.fs.DownloadWithURL(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("download bundle %s: %w", target, err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle %s: %w", target, err)
	}
	return &b, nil
}

// List returns the archived transmittal numbers in ascending order.
func (e *Exporter) List(ctx context.Context) ([]string, error) {
	objects, err := e.fs.List(ctx, e.baseURL, option.NewRecursive(false))
	if err != nil {
		return nil, fmt.Errorf("list archive %s: %w", e.baseURL, err)
	}
	numbers := []string{}
	for _, obj := range objects {
		if obj.IsDir() || !strings.HasSuffix(obj.Name(), bundleExt) {
			continue
		}
		numbers = append(numbers, strings.TrimSuffix(obj.Name(), bundleExt))
	}
	slices.Sort(numbers)
	return numbers, nil
}
