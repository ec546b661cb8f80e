// Package access resolves roles to routing groups and decides, per field,
// what an actor may see and edit.
package access

import (
	"fmt"
	"slices"

	"github.com/tikcccc/Form-demo/internal/ir"
)

// DefaultAdminRoleID is the reserved super-role that bypasses permission checks.
const DefaultAdminRoleID = "project-admin"

// GroupOf resolves the routing group of a role: group, then label, then id.
func GroupOf(r ir.Role) string {
	switch {
	case r.Group != "":
		return r.Group
	case r.Label != "":
		return r.Label
	default:
		return r.ID
	}
}

// Directory is the role table consulted by every permission check.
// It is immutable after construction and safe for concurrent use.
type Directory struct {
	roles   []ir.Role
	byID    map[string]ir.Role
	adminID string
}

// Option configures a Directory.
type Option func(*Directory)

// WithAdminRoleID overrides the reserved admin role id.
func WithAdminRoleID(id string) Option {
	return func(d *Directory) {
		if id != "" {
			d.adminID = id
		}
	}
}

// NewDirectory builds a directory. Role ids must be non-empty and unique.
func NewDirectory(roles []ir.Role, opts ...Option) (*Directory, error) {
	d := &Directory{
		roles:   slices.Clone(roles),
		byID:    make(map[string]ir.Role, len(roles)),
		adminID: DefaultAdminRoleID,
	}
	for i, r := range roles {
		if r.ID == "" {
			return nil, fmt.Errorf("role[%d]: id is required", i)
		}
		if _, dup := d.byID[r.ID]; dup {
			return nil, fmt.Errorf("role[%d]: duplicate id %q", i, r.ID)
		}
		d.byID[r.ID] = r
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Roles returns the roles in declaration order.
func (d *Directory) Roles() []ir.Role {
	return slices.Clone(d.roles)
}

// Role looks up a role by id.
func (d *Directory) Role(id string) (ir.Role, bool) {
	r, ok := d.byID[id]
	return r, ok
}

// AdminRoleID returns the reserved admin role id.
func (d *Directory) AdminRoleID() string {
	return d.adminID
}

// IsAdmin reports whether roleID is the reserved admin role.
func (d *Directory) IsAdmin(roleID string) bool {
	return roleID != "" && roleID == d.adminID
}

// GroupOfRole resolves the group of a known role. Unknown roles have no group.
func (d *Directory) GroupOfRole(roleID string) (string, bool) {
	r, ok := d.byID[roleID]
	if !ok {
		return "", false
	}
	return GroupOf(r), true
}

// GroupOrID resolves the group of a role, falling back to the id itself for
// roles missing from the table.
func (d *Directory) GroupOrID(roleID string) string {
	if g, ok := d.GroupOfRole(roleID); ok {
		return g
	}
	return roleID
}

// LabelOf returns a role's label, falling back to its id.
func (d *Directory) LabelOf(roleID string) string {
	if r, ok := d.byID[roleID]; ok && r.Label != "" {
		return r.Label
	}
	return roleID
}

// Groups returns every distinct group in role order.
func (d *Directory) Groups() []string {
	var out []string
	for _, r := range d.roles {
		if g := GroupOf(r); g != "" && !slices.Contains(out, g) {
			out = append(out, g)
		}
	}
	return out
}
