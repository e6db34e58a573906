// Package access holds the route authorization policy and the per-request
// gate that evaluates it.
//
// A Policy is built once at startup and never mutated; it is safe for
// concurrent use without locking.
package access

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/chaiacademy/academy/internal/core/domain"
)

// Rule restricts every path under Prefix to the listed roles.
type Rule struct {
	Prefix string
	Roles  []domain.Role
}

// Allows reports whether role may access paths governed by r.
func (r Rule) Allows(role domain.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func (r Rule) covers(cleanPath string) bool {
	if r.Prefix == "/" {
		return true
	}
	return cleanPath == r.Prefix || strings.HasPrefix(cleanPath, r.Prefix+"/")
}

// DefaultRules is the stock route table of the academy.
func DefaultRules() []Rule {
	return []Rule{
		{Prefix: "/admin", Roles: []domain.Role{domain.RoleAdmin}},
		{Prefix: "/instructor", Roles: []domain.Role{domain.RoleAdmin, domain.RoleInstructor}},
		{Prefix: "/dashboard", Roles: []domain.Role{domain.RoleAdmin, domain.RoleInstructor, domain.RoleStaff}},
		{Prefix: "/profile", Roles: []domain.Role{domain.RoleAdmin, domain.RoleInstructor, domain.RoleStaff}},
	}
}

var ErrInvalidRule = errors.New("invalid route rule")

// Policy is an immutable, ordered route table. Longer prefixes are evaluated
// first so that a nested rule always takes precedence over its parent.
type Policy struct {
	rules []Rule
}

// NewPolicy validates rules and returns a Policy owning private copies of them.
func NewPolicy(rules ...Rule) (*Policy, error) {
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))

	for _, r := range rules {
		prefix := strings.TrimSpace(r.Prefix)
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("%w: prefix %q must be absolute", ErrInvalidRule, r.Prefix)
		}
		prefix = path.Clean(prefix)
		if _, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("%w: duplicate prefix %q", ErrInvalidRule, prefix)
		}
		seen[prefix] = struct{}{}

		if len(r.Roles) == 0 {
			return nil, fmt.Errorf("%w: prefix %q has no roles", ErrInvalidRule, prefix)
		}
		roles := make([]domain.Role, 0, len(r.Roles))
		for _, role := range r.Roles {
			if !role.Valid() {
				return nil, fmt.Errorf("%w: prefix %q: unknown role %q", ErrInvalidRule, prefix, role)
			}
			roles = append(roles, role)
		}
		out = append(out, Rule{Prefix: prefix, Roles: roles})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Prefix) > len(out[j].Prefix)
	})
	return &Policy{rules: out}, nil
}

// MustPolicy is NewPolicy for static tables; it panics on invalid input.
func MustPolicy(rules ...Rule) *Policy {
	p, err := NewPolicy(rules...)
	if err != nil {
		panic(err)
	}
	return p
}

// Match returns the rule governing urlPath. ok is false for unprotected paths.
// The returned Roles slice is shared with the policy and must not be modified.
func (p *Policy) Match(urlPath string) (rule Rule, ok bool) {
	clean := CleanPath(urlPath)
	for _, r := range p.rules {
		if r.covers(clean) {
			return r, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the table in evaluation order.
func (p *Policy) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		out[i] = Rule{Prefix: r.Prefix, Roles: append([]domain.Role(nil), r.Roles...)}
	}
	return out
}

// String renders the table in the ParseRules format.
func (p *Policy) String() string {
	parts := make([]string, 0, len(p.rules))
	for _, r := range p.rules {
		roles := make([]string, len(r.Roles))
		for i, role := range r.Roles {
			roles[i] = string(role)
		}
		parts = append(parts, r.Prefix+"="+strings.Join(roles, "|"))
	}
	return strings.Join(parts, ";")
}

// CleanPath resolves dot segments and duplicate slashes so that prefix
// matching sees the same path the router will.
func CleanPath(p string) string {
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

// ParseRules parses "/admin=ADMIN;/instructor=ADMIN|INSTRUCTOR".
func ParseRules(s string) ([]Rule, error) {
	var rules []Rule
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, roleList, found := strings.Cut(entry, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q is missing '='", ErrInvalidRule, entry)
		}

		var roles []domain.Role
		for _, name := range strings.Split(roleList, "|") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			role, err := domain.ParseRole(strings.ToUpper(name))
			if err != nil {
				return nil, fmt.Errorf("%w: %q: unknown role %q", ErrInvalidRule, entry, name)
			}
			roles = append(roles, role)
		}
		rules = append(rules, Rule{Prefix: strings.TrimSpace(prefix), Roles: roles})
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: empty policy", ErrInvalidRule)
	}
	return rules, nil
}
