package permission

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Built-in role names.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Permissions referenced by the engine and the HTTP surface.
const (
	PermUsersRead      = "users:read"
	PermUsersManage    = "users:manage"
	PermSessionsManage = "sessions:manage"
)

var (
	// ErrUnknownRole is returned when a role name is not part of the policy.
	ErrUnknownRole = errors.New("unknown role")
)

// RoleDef declares one role: its level and the permissions it adds on top of
// every lower-level role.
type RoleDef struct {
	Name        string   `yaml:"name"`
	Level       int      `yaml:"level"`
	Permissions []string `yaml:"permissions"`
}

// DefaultRoles returns the built-in viewer < editor < admin hierarchy.
func DefaultRoles() []RoleDef {
	return []RoleDef{
		{Name: RoleViewer, Level: 10, Permissions: []string{"deals:read", "reports:view"}},
		{Name: RoleEditor, Level: 20, Permissions: []string{"deals:write", "reports:export"}},
		{Name: RoleAdmin, Level: 30, Permissions: []string{
			"deals:delete",
			PermUsersRead,
			PermUsersManage,
			PermSessionsManage,
			"settings:manage",
		}},
	}
}

type roleEntry struct {
	def       RoleDef
	effective Mask64
}

// Policy is an immutable leveled role table. Effective permission masks are
// computed once at construction.
type Policy struct {
	registry *Registry
	roles    map[string]roleEntry
	ordered  []string
}

// NewPolicy validates defs and precomputes the effective permissions of
// every role. Role names and levels must be unique.
func NewPolicy(defs []RoleDef) (*Policy, error) {
	if len(defs) == 0 {
		return nil, errors.New("policy requires at least one role")
	}

	sorted := make([]RoleDef, len(defs))
	copy(sorted, defs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	p := &Policy{
		registry: NewRegistry(),
		roles:    make(map[string]roleEntry, len(sorted)),
		ordered:  make([]string, 0, len(sorted)),
	}

	levels := make(map[int]string, len(sorted))
	var inherited Mask64
	for _, def := range sorted {
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" {
			return nil, errors.New("role name empty")
		}
		if _, exists := p.roles[def.Name]; exists {
			return nil, fmt.Errorf("role %q declared twice", def.Name)
		}
		if other, exists := levels[def.Level]; exists {
			return nil, fmt.Errorf("roles %q and %q share level %d", other, def.Name, def.Level)
		}
		levels[def.Level] = def.Name

		var own Mask64
		for _, perm := range def.Permissions {
			bit, err := p.registry.Register(strings.TrimSpace(perm))
			if err != nil {
				return nil, fmt.Errorf("role %q: %w", def.Name, err)
			}
			own.Set(bit)
		}

		inherited = inherited.Union(own)
		def.Permissions = append([]string(nil), def.Permissions...)
		p.roles[def.Name] = roleEntry{def: def, effective: inherited}
		p.ordered = append(p.ordered, def.Name)
	}
	p.registry.Freeze()

	return p, nil
}

// Roles returns the role definitions ordered by ascending level.
func (p *Policy) Roles() []RoleDef {
	out := make([]RoleDef, 0, len(p.ordered))
	for _, name := range p.ordered {
		out = append(out, p.roles[name].def)
	}
	return out
}

// Valid reports whether role is part of the policy.
func (p *Policy) Valid(role string) bool {
	_, ok := p.roles[role]
	return ok
}

// LevelOf returns the level of role.
func (p *Policy) LevelOf(role string) (int, error) {
	entry, ok := p.roles[role]
	if !ok {
		return 0, ErrUnknownRole
	}
	return entry.def.Level, nil
}

// Mask returns the effective permission mask of role.
func (p *Policy) Mask(role string) (Mask64, error) {
	entry, ok := p.roles[role]
	if !ok {
		return 0, ErrUnknownRole
	}
	return entry.effective, nil
}

// PermissionsFor returns the sorted, deduplicated effective permissions of
// role: its own plus those of every role with a lower or equal level.
func (p *Policy) PermissionsFor(role string) ([]string, error) {
	mask, err := p.Mask(role)
	if err != nil {
		return nil, err
	}
	return p.registry.Names(mask), nil
}

// HasPermission reports whether role effectively holds perm.
func (p *Policy) HasPermission(role, perm string) bool {
	entry, ok := p.roles[role]
	if !ok {
		return false
	}
	bit, ok := p.registry.Bit(perm)
	if !ok {
		return false
	}
	return entry.effective.Has(bit)
}

// AtLeast reports whether role's level is greater than or equal to required's.
func (p *Policy) AtLeast(role, required string) bool {
	have, ok := p.roles[role]
	if !ok {
		return false
	}
	want, ok := p.roles[required]
	if !ok {
		return false
	}
	return have.def.Level >= want.def.Level
}

// CanManage reports whether manager's level strictly exceeds target's.
func (p *Policy) CanManage(manager, target string) bool {
	m, ok := p.roles[manager]
	if !ok {
		return false
	}
	t, ok := p.roles[target]
	if !ok {
		return false
	}
	return m.def.Level > t.def.Level
}

// Highest returns the name of the highest-level role.
func (p *Policy) Highest() string {
	return p.ordered[len(p.ordered)-1]
}

// Lowest returns the name of the lowest-level role.
func (p *Policy) Lowest() string {
	return p.ordered[0]
}
