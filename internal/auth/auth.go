package auth

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
)

const (
	// RoleAnalyst may ask questions, run presets and manage session memory.
	RoleAnalyst = "analyst"
	// RoleSQLLab may run hand-written SQL.
	RoleSQLLab = "sql_lab"
)

var knownRoles = []string{RoleAnalyst, RoleSQLLab}

// Identity is the authenticated caller. Principal owns the sessions it
// creates.
type Identity struct {
	Principal string
	Roles     []string
}

// Local is used when authentication is disabled.
var Local = Identity{Principal: "local", Roles: []string{RoleAnalyst, RoleSQLLab}}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses comma separated key:principal:role|role
// entries.
func NewStaticAPIKeyValidator(raw string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		principal := strings.TrimSpace(parts[1])
		if key == "" || principal == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		if _, exists := validator.keys[key]; exists {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}

		roles := make([]string, 0, 2)
		for _, role := range strings.Split(parts[2], "|") {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			if !slices.Contains(knownRoles, role) {
				return nil, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
			}
			if !slices.Contains(roles, role) {
				roles = append(roles, role)
			}
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		sort.Strings(roles)
		validator.keys[key] = Identity{Principal: principal, Roles: roles}
	}
	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int {
	return len(v.keys)
}
