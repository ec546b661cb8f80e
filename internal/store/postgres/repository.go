// Package postgres is the PostgreSQL repository for multi-process
// deployments. It follows the contract of package store: full JSON
// snapshots, compare-and-swap on a revision column, store.ErrNotFound and
// store.ErrConflict sentinels.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tikcccc/Form-demo/internal/ir"
	"github.com/tikcccc/Form-demo/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the SQLSTATE for UNIQUE and PRIMARY KEY violations.
const uniqueViolation = "23505"

// Repository stores templates and instances in PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// New creates a Repository over an existing pool.
func New(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Connect opens a pool for dsn and applies the schema.
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r := New(pool)
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Migrate creates the tables if they don't exist. Idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.db.Close()
	return nil
}

func (r *Repository) GetTemplate(ctx context.Context, id string) (*ir.Template, error) {
	var body []byte
	var revision int64
	err := r.db.QueryRow(ctx,
		"SELECT body, revision FROM formflow_templates WHERE id = $1", id,
	).Scan(&body, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return decodeTemplate(body, revision)
}

func (r *Repository) ListTemplates(ctx context.Context) ([]ir.Template, error) {
	rows, err := r.db.Query(ctx, "SELECT body, revision FROM formflow_templates ORDER BY id COLLATE \"C\"")
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	templates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ir.Template, error) {
		var body []byte
		var revision int64
		if err := row.Scan(&body, &revision); err != nil {
			return ir.Template{}, err
		}
		t, err := decodeTemplate(body, revision)
		if err != nil {
			return ir.Template{}, err
		}
		return *t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect templates: %w", err)
	}
	if templates == nil {
		templates = []ir.Template{}
	}
	return templates, nil
}

func (r *Repository) SaveTemplate(ctx context.Context, t *ir.Template, expectedRevision int64) error {
	prev := t.Revision
	t.Revision = expectedRevision + 1
	body, hash, err := encode(t, ir.DomainTemplate)
	if err != nil {
		t.Revision = prev
		return fmt.Errorf("save template: %w", err)
	}

	var tag pgconn.CommandTag
	if expectedRevision == 0 {
		tag, err = r.db.Exec(ctx, `
			INSERT INTO formflow_templates (id, name, published, revision, body, content_hash, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, t.ID, t.Name, t.Published, t.Revision, body, hash, t.UpdatedAt)
	} else {
		tag, err = r.db.Exec(ctx, `
			UPDATE formflow_templates
			SET name = $1, published = $2, revision = $3, body = $4, content_hash = $5, updated_at = $6
			WHERE id = $7 AND revision = $8
		`, t.Name, t.Published, t.Revision, body, hash, t.UpdatedAt, t.ID, expectedRevision)
	}
	if err := r.checkWrite(ctx, tag, err, "formflow_templates", t.ID); err != nil {
		t.Revision = prev
		return err
	}
	return nil
}

func (r *Repository) DeleteTemplate(ctx context.Context, id string) error {
	return r.deleteRow(ctx, "formflow_templates", id)
}

func (r *Repository) GetInstance(ctx context.Context, id string) (*ir.Instance, error) {
	var body []byte
	var revision int64
	err := r.db.QueryRow(ctx,
		"SELECT body, revision FROM formflow_instances WHERE id = $1", id,
	).Scan(&body, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instance: %w", err)
	}
	return decodeInstance(body, revision)
}

func (r *Repository) ListInstances(ctx context.Context) ([]ir.Instance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT body, revision FROM formflow_instances
		ORDER BY created_at ASC, id COLLATE "C" ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	instances, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ir.Instance, error) {
		var body []byte
		var revision int64
		if err := row.Scan(&body, &revision); err != nil {
			return ir.Instance{}, err
		}
		inst, err := decodeInstance(body, revision)
		if err != nil {
			return ir.Instance{}, err
		}
		return *inst, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect instances: %w", err)
	}
	if instances == nil {
		instances = []ir.Instance{}
	}
	return instances, nil
}

func (r *Repository) SaveInstance(ctx context.Context, inst *ir.Instance, expectedRevision int64) error {
	prev := inst.Revision
	inst.Revision = expectedRevision + 1
	body, hash, err := encode(inst, ir.DomainInstance)
	if err != nil {
		inst.Revision = prev
		return fmt.Errorf("save instance: %w", err)
	}

	var tag pgconn.CommandTag
	if expectedRevision == 0 {
		tag, err = r.db.Exec(ctx, `
			INSERT INTO formflow_instances
			(id, transmittal_no, template_id, status, created_at, revision, body, content_hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, inst.ID, inst.TransmittalNo, inst.TemplateID, string(inst.Status), inst.CreatedAt, inst.Revision, body, hash)
	} else {
		tag, err = r.db.Exec(ctx, `
			UPDATE formflow_instances
			SET status = $1, revision = $2, body = $3, content_hash = $4
			WHERE id = $5 AND revision = $6
		`, string(inst.Status), inst.Revision, body, hash, inst.ID, expectedRevision)
	}
	if err := r.checkWrite(ctx, tag, err, "formflow_instances", inst.ID); err != nil {
		inst.Revision = prev
		return err
	}
	return nil
}

func (r *Repository) DeleteInstance(ctx context.Context, id string) error {
	return r.deleteRow(ctx, "formflow_instances", id)
}

func (r *Repository) TransmittalNumbers(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT transmittal_no FROM formflow_instances
		WHERE left(transmittal_no, length($1)) = $1
		ORDER BY transmittal_no COLLATE "C"
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query transmittal numbers: %w", err)
	}
	numbers, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect transmittal numbers: %w", err)
	}
	if numbers == nil {
		numbers = []string{}
	}
	return numbers, nil
}

// checkWrite maps a write outcome to the store sentinels.
func (r *Repository) checkWrite(ctx context.Context, tag pgconn.CommandTag, err error, table, id string) error {
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("write %s: %w", table, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

// deleteRow is only called with constant table names.
func (r *Repository) deleteRow(ctx context.Context, table, id string) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func encode(v any, domain string) ([]byte, string, error) {
	body, err := ir.MarshalCanonical(v)
	if err != nil {
		return nil, "", err
	}
	hash, err := ir.SnapshotHash(domain, v)
	if err != nil {
		return nil, "", err
	}
	return body, hash, nil
}

func decodeTemplate(body []byte, revision int64) (*ir.Template, error) {
	var t ir.Template
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	t.Revision = revision
	return &t, nil
}

func decodeInstance(body []byte, revision int64) (*ir.Instance, error) {
	var inst ir.Instance
	if err := json.Unmarshal(body, &inst); err != nil {
		return nil, fmt.Errorf("unmarshal instance: %w", err)
	}
	inst.Revision = revision
	return &inst, nil
}
