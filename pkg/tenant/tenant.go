package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxIDLength keeps identifiers DNS compatible so they can be embedded in
	// database names rendered from a DSN template.
	MaxIDLength = 63

	// DSNPlaceholder is replaced with the tenant id when rendering a DSN template.
	DSNPlaceholder = "{tenant}"
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ID identifies a tenant.
type ID string

func (id ID) String() string { return string(id) }

// Validate reports whether the identifier is well formed.
func (id ID) Validate() error {
	s := string(id)
	if s == "" || len(s) > MaxIDLength || !idPattern.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return nil
}

// IsolationMode selects how tenant data is separated.
type IsolationMode string

const (
	// ModeStrict gives every tenant its own database and its own pool.
	ModeStrict IsolationMode = "strict"
	// ModeShared keeps all tenants in one database, separated by tenant_id.
	ModeShared IsolationMode = "shared"
)

// ParseIsolationMode converts a configuration value into an IsolationMode.
func ParseIsolationMode(s string) (IsolationMode, error) {
	switch IsolationMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeStrict:
		return ModeStrict, nil
	case ModeShared, "":
		return ModeShared, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Profile describes how to reach a tenant's data. Profiles are built once per
// tenant by the Registry and never modified afterwards.
type Profile struct {
	ID       ID
	Mode     IsolationMode
	DSN      string
	MaxConns int32
}

// PoolKey returns the key of the connection pool serving this profile.
// All shared-mode tenants map to the same key.
func (p Profile) PoolKey() string {
	if p.Mode == ModeShared {
		return SharedPoolKey
	}
	return string(p.ID)
}

// SharedPoolKey is the pool key used in shared isolation mode.
const SharedPoolKey = "shared"

// RenderDSN substitutes the tenant id into a DSN template.
func RenderDSN(template string, id ID) string {
	return strings.ReplaceAll(template, DSNPlaceholder, string(id))
}
