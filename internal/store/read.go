package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// GetTemplate returns the stored template or ErrNotFound.
func (s *Store) GetTemplate(ctx context.Context, id string) (*ir.Template, error) {
	var body string
	var revision int64
	err := s.db.QueryRowContext(ctx,
		"SELECT body, revision FROM templates WHERE id = ?", id,
	).Scan(&body, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}
	return decodeTemplate(body, revision)
}

// ListTemplates returns every template ordered by id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListTemplates(ctx context.Context) ([]ir.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, revision FROM templates
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	templates := []ir.Template{}
	for rows.Next() {
		var body string
		var revision int64
		if err := rows.Scan(&body, &revision); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t, err := decodeTemplate(body, revision)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// GetInstance returns the stored instance or ErrNotFound.
func (s *Store) GetInstance(ctx context.Context, id string) (*ir.Instance, error) {
	var body string
	var revision int64
	err := s.db.QueryRowContext(ctx,
		"SELECT body, revision FROM instances WHERE id = ?", id,
	).Scan(&body, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instance: %w", err)
	}
	return decodeInstance(body, revision)
}

// ListInstances returns every instance ordered by creation time, then id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListInstances(ctx context.Context) ([]ir.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body, revision FROM instances
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	instances := []ir.Instance{}
	for rows.Next() {
		var body string
		var revision int64
		if err := rows.Scan(&body, &revision); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		inst, err := decodeInstance(body, revision)
		if err != nil {
			return nil, err
		}
		instances = append(instances, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return instances, nil
}

// TransmittalNumbers returns the stored transmittal numbers that start with
// prefix, in ascending order.
func (s *Store) TransmittalNumbers(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transmittal_no FROM instances
		WHERE substr(transmittal_no, 1, length(?)) = ?
		ORDER BY transmittal_no COLLATE BINARY ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query transmittal numbers: %w", err)
	}
	defer rows.Close()

	numbers := []string{}
	for rows.Next() {
		var no string
		if err := rows.Scan(&no); err != nil {
			return nil, fmt.Errorf("scan transmittal number: %w", err)
		}
		numbers = append(numbers, no)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transmittal numbers: %w", err)
	}
	return numbers, nil
}

// ContentHash returns the stored content hash of an instance.
func (s *Store) ContentHash(ctx context.Context, instanceID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT content_hash FROM instances WHERE id = ?", instanceID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query content hash: %w", err)
	}
	return hash, nil
}

// exists is only called with constant table names.
func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("query %s: %w", table, err)
	}
	return n > 0, nil
}
