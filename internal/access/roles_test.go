package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikcccc/Form-demo/internal/ir"
)

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	d, err := NewDirectory([]ir.Role{
		{ID: "project-admin", Label: "Project Admin", Group: "Admin"},
		{ID: "requester", Label: "Requester", Group: "Contractor"},
		{ID: "qa", Label: "QA Lead", Group: "QA"},
		{ID: "qa-2", Label: "QA Engineer", Group: "QA"},
		{ID: "designer", Label: "Designer"},
		{ID: "bare"},
	})
	require.NoError(t, err)
	return d
}

func TestGroupOf_Fallbacks(t *testing.T) {
	assert.Equal(t, "QA", GroupOf(ir.Role{ID: "qa", Label: "QA Lead", Group: "QA"}))
	assert.Equal(t, "Designer", GroupOf(ir.Role{ID: "designer", Label: "Designer"}))
	assert.Equal(t, "bare", GroupOf(ir.Role{ID: "bare"}))
}

func TestNewDirectory_RejectsBadRoles(t *testing.T) {
	_, err := NewDirectory([]ir.Role{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate id")

	_, err = NewDirectory([]ir.Role{{Label: "nameless"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestDirectory_Lookups(t *testing.T) {
	d := testDirectory(t)

	assert.True(t, d.IsAdmin("project-admin"))
	assert.False(t, d.IsAdmin("qa"))
	assert.False(t, d.IsAdmin(""))

	g, ok := d.GroupOfRole("designer")
	require.True(t, ok)
	assert.Equal(t, "Designer", g)

	_, ok = d.GroupOfRole("ghost")
	assert.False(t, ok)
	assert.Equal(t, "ghost", d.GroupOrID("ghost"))

	assert.Equal(t, "QA Lead", d.LabelOf("qa"))
	assert.Equal(t, "bare", d.LabelOf("bare"))
	assert.Equal(t, []string{"Admin", "Contractor", "QA", "Designer", "bare"}, d.Groups())
}

func TestWithAdminRoleID(t *testing.T) {
	d, err := NewDirectory([]ir.Role{{ID: "root"}}, WithAdminRoleID("root"))
	require.NoError(t, err)
	assert.True(t, d.IsAdmin("root"))
	assert.False(t, d.IsAdmin(DefaultAdminRoleID))
	assert.Equal(t, "root", d.AdminRoleID())
}
