package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tikcccc/Form-demo/internal/access"
	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/store"
)

const tracerName = "github.com/tikcccc/Form-demo/internal/engine"

// Engine executes workflow commands against a Repository.
//
// Every command is a read-modify-write over one instance or one template:
// the snapshot is loaded, cloned, mutated and saved with an optimistic
// revision check. A rejected command never reaches Save, so stored state is
// unchanged on any error.
//
// Thread-safety model:
//   - commands on the same instance are serialized by a per-instance mutex
//   - commands on different instances run concurrently
//   - writers in other processes are caught by the revision check (Conflict)
type Engine struct {
	repo     Repository
	dir      *access.Directory
	common   []ir.CommonField
	clock    Clock
	ids      IDGenerator
	logger   *slog.Logger
	tracer   trace.Tracer
	archiver Archiver

	locks    instanceLocks
	createMu sync.Mutex
}

// EngineOption allows configuration of engine collaborators.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the wall clock. Defaults to SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithIDGenerator sets the id source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithCommonFields sets the catalog-level fields shared by every template.
func WithCommonFields(fields []ir.CommonField) EngineOption {
	return func(e *Engine) {
		e.common = append([]ir.CommonField(nil), fields...)
	}
}

// WithArchiver exports instances when they reach Closed.
func WithArchiver(a Archiver) EngineOption {
	return func(e *Engine) {
		e.archiver = a
	}
}

// WithTracerProvider sets the OpenTelemetry provider used for command spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an Engine over a repository and a role directory.
func New(repo Repository, dir *access.Directory, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:   repo,
		dir:    dir,
		clock:  SystemClock{},
		ids:    UUIDv7Generator{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Directory returns the role directory used for permission checks.
func (e *Engine) Directory() *access.Directory {
	return e.dir
}

// CommonFields returns the shared fields.
func (e *Engine) CommonFields() []ir.CommonField {
	return append([]ir.CommonField(nil), e.common...)
}

func (e *Engine) commonKeys() []string {
	keys := make([]string, len(e.common))
	for i, f := range e.common {
		keys[i] = f.Key
	}
	return keys
}

type expectedHashKey struct{}

// WithExpectedHash returns a context under which an instance command is
// rejected with Conflict unless the stored snapshot still hashes to hash.
// The comparison runs under the instance lock, before the command itself.
func WithExpectedHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, expectedHashKey{}, hash)
}

// ExpectedHash returns the hash set by WithExpectedHash.
func ExpectedHash(ctx context.Context) (string, bool) {
	hash, ok := ctx.Value(expectedHashKey{}).(string)
	return hash, ok && hash != ""
}

// mutation is the working state of one instance command. inst is a private
// clone; nothing is visible to other callers until the command returns nil.
type mutation struct {
	roleID string
	inst   *ir.Instance
	tmpl   *ir.Template
	now    time.Time

	// unchanged skips the save for commands that turn out to be no-ops.
	unchanged bool
}

func (e *Engine) lockInstance(id string) func() {
	return e.locks.lock(id)
}

func (e *Engine) startSpan(ctx context.Context, command, roleID, id string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "engine."+command, trace.WithAttributes(
		attribute.String("formflow.command", command),
		attribute.String("formflow.role_id", roleID),
		attribute.String("formflow.id", id),
	))
}

// finish records the outcome of a command on its span and in the log.
func (e *Engine) finish(ctx context.Context, span trace.Span, command, roleID, id string, err error, attrs ...any) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.DebugContext(ctx, "command rejected",
			"command", command, "id", id, "role_id", roleID,
			"kind", string(KindOf(err)), "error", err)
		return
	}
	args := append([]any{"command", command, "id", id, "role_id", roleID}, attrs...)
	e.logger.InfoContext(ctx, "command accepted", args...)
}

// mutateInstance runs fn on a clone of the stored instance and saves the
// result. Archiving happens after a successful save that closed the instance.
func (e *Engine) mutateInstance(ctx context.Context, command, roleID, instanceID string, fn func(*mutation) error) (_ *ir.Instance, err error) {
	ctx, span := e.startSpan(ctx, command, roleID, instanceID)
	var result *ir.Instance
	defer func() {
		var attrs []any
		if result != nil {
			attrs = []any{"status", string(result.Status), "revision", result.Revision}
		}
		e.finish(ctx, span, command, roleID, instanceID, err, attrs...)
	}()

	unlock := e.lockInstance(instanceID)
	defer unlock()

	stored, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if want, ok := ExpectedHash(ctx); ok {
		got, err := ir.InstanceHash(stored)
		if err != nil {
			return nil, fmt.Errorf("hash instance %s: %w", instanceID, err)
		}
		if got != want {
			return nil, newError(KindConflict, instanceID, "instance %s changed since snapshot %s", instanceID, want)
		}
	}
	tmpl, err := e.loadTemplate(ctx, stored.TemplateID)
	if err != nil {
		return nil, err
	}

	m := &mutation{roleID: roleID, inst: stored.Clone(), tmpl: tmpl, now: e.clock.Now()}
	if err := fn(m); err != nil {
		return nil, err
	}
	if m.unchanged {
		result = m.inst
		return result, nil
	}

	if err := e.repo.SaveInstance(ctx, m.inst, stored.Revision); err != nil {
		return nil, e.storeError(err, instanceID)
	}
	result = m.inst

	if !stored.IsClosed() && m.inst.IsClosed() {
		e.archive(ctx, m.inst, tmpl)
	}
	return result, nil
}

func (e *Engine) archive(ctx context.Context, inst *ir.Instance, tmpl *ir.Template) {
	if e.archiver == nil {
		return
	}
	if err := e.archiver.Archive(ctx, inst, tmpl); err != nil {
		e.logger.ErrorContext(ctx, "archive failed",
			"instance_id", inst.ID, "transmittal_no", inst.TransmittalNo, "error", err)
	}
}

func (e *Engine) loadInstance(ctx context.Context, id string) (*ir.Instance, error) {
	inst, err := e.repo.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(id, "instance %q not found", id)
		}
		return nil, fmt.Errorf("load instance %s: %w", id, err)
	}
	return inst, nil
}

func (e *Engine) loadTemplate(ctx context.Context, id string) (*ir.Template, error) {
	t, err := e.repo.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(id, "template %q not found", id)
		}
		return nil, fmt.Errorf("load template %s: %w", id, err)
	}
	return t, nil
}

// storeError maps repository sentinels to engine errors.
func (e *Engine) storeError(err error, id string) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return &Error{Kind: KindConflict, Message: "stored snapshot changed since it was read", InstanceID: id}
	case errors.Is(err, store.ErrNotFound):
		return notFound(id, "%q not found", id)
	default:
		return fmt.Errorf("save %s: %w", id, err)
	}
}

// checkStepCount rejects commands issued against an outdated view.
func checkStepCount(inst *ir.Instance, expected *int) error {
	if expected != nil && *expected != len(inst.Steps) {
		return &Error{
			Kind:       KindConflict,
			Message:    fmt.Sprintf("expected %d steps, instance has %d", *expected, len(inst.Steps)),
			InstanceID: inst.ID,
		}
	}
	return nil
}
