package auth

import (
	"context"
	"fmt"
	"strings"
)

// Role is the closed set of caller categories known to the platform.
type Role uint8

const (
	// RoleUnknown is the zero value. It is never part of any RoleSet built
	// from a schema, so principals carrying it are denied everywhere.
	RoleUnknown Role = iota
	RolePatient
	RoleTherapist
	RoleStudent
	RoleAdmin
)

var roleNames = map[Role]string{
	RolePatient:   "patient",
	RoleTherapist: "therapist",
	RoleStudent:   "student",
	RoleAdmin:     "admin",
}

// Roles lists every assignable role in declaration order.
func Roles() []Role {
	return []Role{RolePatient, RoleTherapist, RoleStudent, RoleAdmin}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRole maps a role claim to a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for role, name := range roleNames {
		if name == s {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", s)
}

// RoleSet is a bitmask of roles.
type RoleSet uint8

// NewRoleSet builds a set containing the given roles. RoleUnknown is ignored.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		if r == RoleUnknown {
			continue
		}
		s |= 1 << r
	}
	return s
}

// Contains reports whether r is a member of the set.
func (s RoleSet) Contains(r Role) bool {
	if r == RoleUnknown {
		return false
	}
	return s&(1<<r) != 0
}

// Empty reports whether no role is in the set.
func (s RoleSet) Empty() bool { return s == 0 }

// Members returns the roles in the set in declaration order.
func (s RoleSet) Members() []Role {
	var out []Role
	for _, r := range Roles() {
		if s.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) String() string {
	members := s.Members()
	names := make([]string, len(members))
	for i, r := range members {
		names[i] = r.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// Principal is the authenticated caller of one request.
type Principal struct {
	Identity string
	Role     Role
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
