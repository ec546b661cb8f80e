package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// SaveTemplate inserts (expectedRevision 0) or updates a template with a
// revision check. On success t.Revision holds the stored revision.
func (s *Store) SaveTemplate(ctx context.Context, t *ir.Template, expectedRevision int64) error {
	prev := t.Revision
	t.Revision = expectedRevision + 1
	row, err := encodeTemplate(t)
	if err != nil {
		t.Revision = prev
		return fmt.Errorf("save template: %w", err)
	}

	if expectedRevision == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO templates (id, name, published, revision, body, content_hash, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Name, t.Published, t.Revision, row.body, row.hash, formatTime(t.UpdatedAt))
		if err != nil {
			t.Revision = prev
			if isConstraintViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("save template: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET name = ?, published = ?, revision = ?, body = ?, content_hash = ?, updated_at = ?
		WHERE id = ? AND revision = ?
	`, t.Name, t.Published, t.Revision, row.body, row.hash, formatTime(t.UpdatedAt), t.ID, expectedRevision)
	if err != nil {
		t.Revision = prev
		return fmt.Errorf("save template: %w", err)
	}
	if err := s.checkUpdated(ctx, res, "templates", t.ID); err != nil {
		t.Revision = prev
		return err
	}
	return nil
}

// SaveInstance inserts (expectedRevision 0) or updates an instance with a
// revision check. On success inst.Revision holds the stored revision.
func (s *Store) SaveInstance(ctx context.Context, inst *ir.Instance, expectedRevision int64) error {
	prev := inst.Revision
	inst.Revision = expectedRevision + 1
	row, err := encodeInstance(inst)
	if err != nil {
		inst.Revision = prev
		return fmt.Errorf("save instance: %w", err)
	}

	if expectedRevision == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO instances
			(id, transmittal_no, template_id, status, created_at, revision, body, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			inst.ID,
			inst.TransmittalNo,
			inst.TemplateID,
			string(inst.Status),
			formatTime(inst.CreatedAt),
			inst.Revision,
			row.body,
			row.hash,
		)
		if err != nil {
			inst.Revision = prev
			if isConstraintViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("save instance: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE instances
		SET status = ?, revision = ?, body = ?, content_hash = ?
		WHERE id = ? AND revision = ?
	`, string(inst.Status), inst.Revision, row.body, row.hash, inst.ID, expectedRevision)
	if err != nil {
		inst.Revision = prev
		return fmt.Errorf("save instance: %w", err)
	}
	if err := s.checkUpdated(ctx, res, "instances", inst.ID); err != nil {
		inst.Revision = prev
		return err
	}
	return nil
}

// checkUpdated turns a zero-row update into ErrNotFound or ErrConflict.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	exists, err := s.exists(ctx, table, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// DeleteTemplate removes a template row.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "templates", id)
}

// DeleteInstance removes an instance row.
func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	return s.deleteRow(ctx, "instances", id)
}

// deleteRow is only called with constant table names.
func (s *Store) deleteRow(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
