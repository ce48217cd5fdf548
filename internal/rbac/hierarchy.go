// Package rbac resolves the admin role hierarchy. Roles form a DAG in which a
// role authorizes itself and every role it (transitively) includes; a senior
// role therefore satisfies any requirement naming a junior role.
package rbac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gatehouse-cms/gatehouse/internal/model"
)

// Hierarchy is an immutable, precomputed view of the role graph. It is safe
// for concurrent use.
type Hierarchy struct {
	roles   map[string]model.Role
	order   []string            // role names by rank, most senior first
	closure map[string]map[string]bool
	perms   map[string][]string // cumulative permissions per role, sorted
}

// New validates role definitions and precomputes closures. It rejects
// duplicate names, includes that name unknown roles and inclusion cycles.
func New(roles []model.Role) (*Hierarchy, error) {
	h := &Hierarchy{
		roles:   make(map[string]model.Role, len(roles)),
		closure: make(map[string]map[string]bool, len(roles)),
		perms:   make(map[string][]string, len(roles)),
	}

	for _, r := range roles {
		if r.Name == "" {
			return nil, fmt.Errorf("role with empty name")
		}
		if _, dup := h.roles[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %q", r.Name)
		}
		h.roles[r.Name] = r
		h.order = append(h.order, r.Name)
	}
	for _, r := range roles {
		for _, inc := range r.Includes {
			if _, ok := h.roles[inc]; !ok {
				return nil, fmt.Errorf("role %q includes unknown role %q", r.Name, inc)
			}
		}
	}

	// Depth-first walk with colouring detects cycles and fills closures.
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int, len(roles))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch colour[name] {
		case grey:
			return fmt.Errorf("role inclusion cycle: %s", strings.Join(append(path, name), " -> "))
		case black:
			return nil
		}
		colour[name] = grey
		set := map[string]bool{name: true}
		for _, inc := range h.roles[name].Includes {
			if err := visit(inc, append(path, name)); err != nil {
				return err
			}
			for n := range h.closure[inc] {
				set[n] = true
			}
		}
		h.closure[name] = set
		colour[name] = black
		return nil
	}
	for _, name := range h.order {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(h.order, func(i, j int) bool {
		return h.roles[h.order[i]].Rank < h.roles[h.order[j]].Rank
	})

	for name, set := range h.closure {
		seen := map[string]bool{}
		for member := range set {
			for _, p := range h.roles[member].Permissions {
				seen[p] = true
			}
		}
		h.perms[name] = sortedKeys(seen)
	}
	return h, nil
}

// Has reports whether a role with the given name is defined.
func (h *Hierarchy) Has(role string) bool {
	_, ok := h.roles[role]
	return ok
}

// Roles returns all role definitions, most senior first.
func (h *Hierarchy) Roles() []model.Role {
	out := make([]model.Role, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.roles[name])
	}
	return out
}

// Authorizes reports whether a holder of actual satisfies at least one of
// the required roles. An empty requirement is satisfied by any known role.
// Unknown roles never authorize anything.
func (h *Hierarchy) Authorizes(actual string, required ...string) bool {
	set, ok := h.closure[actual]
	if !ok {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if set[r] {
			return true
		}
	}
	return false
}

// AllowedRoles returns every role that satisfies at least one of required:
// each required role together with all roles senior to it. The result is
// ordered by rank.
func (h *Hierarchy) AllowedRoles(required ...string) []string {
	var out []string
	for _, name := range h.order {
		if h.Authorizes(name, required...) {
			out = append(out, name)
		}
	}
	return out
}

// Permissions returns the cumulative permission set of a role: the union of
// the permissions of every role in its closure. The slice is shared; callers
// must not modify it.
func (h *Hierarchy) Permissions(role string) []string {
	return h.perms[role]
}

// Effective merges a role's cumulative permissions with an admin's
// individual grants.
func (h *Hierarchy) Effective(role string, individual []string) []string {
	if len(individual) == 0 {
		out := make([]string, len(h.perms[role]))
		copy(out, h.perms[role])
		return out
	}
	seen := make(map[string]bool, len(h.perms[role])+len(individual))
	for _, p := range h.perms[role] {
		seen[p] = true
	}
	for _, p := range individual {
		seen[p] = true
	}
	return sortedKeys(seen)
}

// HasPermission reports whether perms grants want. A grant matches when it
// is identical to want, when it is "*", or when it is a "prefix.*" wildcard
// covering want ("content.*" grants "content.edit" and "content.video.edit").
func HasPermission(perms []string, want string) bool {
	for _, p := range perms {
		if p == want || p == "*" {
			return true
		}
		if strings.HasSuffix(p, ".*") && strings.HasPrefix(want, strings.TrimSuffix(p, "*")) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
