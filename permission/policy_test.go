package permission

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := NewPolicy(DefaultRoles())
	require.NoError(t, err)
	return p
}

func TestInheritanceIsMonotonic(t *testing.T) {
	p := defaultPolicy(t)

	viewer, err := p.PermissionsFor(RoleViewer)
	require.NoError(t, err)
	editor, err := p.PermissionsFor(RoleEditor)
	require.NoError(t, err)
	admin, err := p.PermissionsFor(RoleAdmin)
	require.NoError(t, err)

	assert.Subset(t, editor, viewer)
	assert.Subset(t, admin, editor)
	assert.Greater(t, len(admin), len(editor))
	assert.Greater(t, len(editor), len(viewer))

	vm, _ := p.Mask(RoleViewer)
	em, _ := p.Mask(RoleEditor)
	am, _ := p.Mask(RoleAdmin)
	assert.True(t, em.Contains(vm))
	assert.True(t, am.Contains(em))
}

func TestPermissionsDeduplicated(t *testing.T) {
	p, err := NewPolicy([]RoleDef{
		{Name: "low", Level: 1, Permissions: []string{"a", "b"}},
		{Name: "high", Level: 2, Permissions: []string{"b", "c", "a"}},
	})
	require.NoError(t, err)

	perms, err := p.PermissionsFor("high")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, perms)
}

func TestHasPermissionAndLevels(t *testing.T) {
	p := defaultPolicy(t)

	assert.True(t, p.HasPermission(RoleAdmin, "deals:read"))
	assert.True(t, p.HasPermission(RoleEditor, "deals:read"))
	assert.False(t, p.HasPermission(RoleViewer, "deals:write"))
	assert.False(t, p.HasPermission(RoleViewer, "unknown:perm"))
	assert.False(t, p.HasPermission("ghost", "deals:read"))

	lvl, err := p.LevelOf(RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, 20, lvl)
	_, err = p.LevelOf("ghost")
	assert.ErrorIs(t, err, ErrUnknownRole)

	assert.True(t, p.AtLeast(RoleAdmin, RoleEditor))
	assert.True(t, p.AtLeast(RoleEditor, RoleEditor))
	assert.False(t, p.AtLeast(RoleViewer, RoleEditor))
	assert.Equal(t, RoleAdmin, p.Highest())
	assert.Equal(t, RoleViewer, p.Lowest())
}

func TestCanManageIsStrict(t *testing.T) {
	p := defaultPolicy(t)

	assert.True(t, p.CanManage(RoleAdmin, RoleEditor))
	assert.True(t, p.CanManage(RoleEditor, RoleViewer))
	assert.False(t, p.CanManage(RoleAdmin, RoleAdmin))
	assert.False(t, p.CanManage(RoleViewer, RoleEditor))
	assert.False(t, p.CanManage("ghost", RoleViewer))
}

func TestNewPolicyValidation(t *testing.T) {
	_, err := NewPolicy(nil)
	assert.Error(t, err)

	_, err = NewPolicy([]RoleDef{{Name: "a", Level: 1}, {Name: "b", Level: 1}})
	assert.Error(t, err)

	_, err = NewPolicy([]RoleDef{{Name: "a", Level: 1}, {Name: "a", Level: 2}})
	assert.Error(t, err)

	_, err = NewPolicy([]RoleDef{{Name: " ", Level: 1}})
	assert.Error(t, err)

	_, err = NewPolicy([]RoleDef{{Name: "a", Level: 1, Permissions: []string{""}}})
	assert.Error(t, err)
}

func TestRolesOrderedByLevel(t *testing.T) {
	p, err := NewPolicy([]RoleDef{
		{Name: "top", Level: 100},
		{Name: "bottom", Level: -5},
		{Name: "middle", Level: 7},
	})
	require.NoError(t, err)

	var names []string
	for _, r := range p.Roles() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"bottom", "middle", "top"}, names)
}

func TestLoadPolicyYAML(t *testing.T) {
	doc := `
roles:
  - name: admin
    level: 30
    permissions: [users:manage]
  - name: viewer
    level: 10
    permissions:
      - deals:read
`
	p, err := LoadPolicyYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.True(t, p.HasPermission("admin", "deals:read"))
	assert.False(t, p.HasPermission("viewer", "users:manage"))

	_, err = LoadPolicyYAML(strings.NewReader("roles:\n  - name: x\n    lvl: 1\n"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, err := r.Register("a")
	require.NoError(t, err)
	again, err := r.Register("a")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	for i := 1; i < 64; i++ {
		_, err := r.Register(fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}
	_, err = r.Register("overflow")
	assert.Error(t, err)

	r.Freeze()
	_, err = r.Register("late")
	assert.Error(t, err)
	assert.Equal(t, 64, r.Count())

	name, ok := r.Name(a)
	assert.True(t, ok)
	assert.Equal(t, "a", name)
}
