package engine

import (
	"context"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// Repository persists templates and instances. The engine reads the current
// snapshot before each command and writes the result after it; nothing is
// cached between commands.
//
// Save methods implement optimistic concurrency: the write succeeds only when
// the stored revision equals expectedRevision (0 inserts a new row), and sets
// the saved value's Revision to the new stored revision. Implementations
// return store.ErrConflict on a mismatch and store.ErrNotFound for unknown ids.
type Repository interface {
	GetTemplate(ctx context.Context, id string) (*ir.Template, error)
	ListTemplates(ctx context.Context) ([]ir.Template, error)
	SaveTemplate(ctx context.Context, t *ir.Template, expectedRevision int64) error
	DeleteTemplate(ctx context.Context, id string) error

	GetInstance(ctx context.Context, id string) (*ir.Instance, error)
	ListInstances(ctx context.Context) ([]ir.Instance, error)
	SaveInstance(ctx context.Context, inst *ir.Instance, expectedRevision int64) error
	DeleteInstance(ctx context.Context, id string) error

	// TransmittalNumbers returns every stored transmittal number that starts
	// with prefix.
	TransmittalNumbers(ctx context.Context, prefix string) ([]string, error)
}

// Archiver receives instances that just reached Closed.
type Archiver interface {
	Archive(ctx context.Context, inst *ir.Instance, tmpl *ir.Template) error
}
