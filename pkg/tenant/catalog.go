package tenant

import (
	"slices"
	"strings"
)

// Catalog lists the tenants known to the process.
// Implementations must be safe for concurrent use and must not perform I/O
// in Lookup, since resolution is on the request hot path.
type Catalog interface {
	// Lookup reports whether the tenant exists and returns its explicit DSN,
	// which is empty when the DSN should be rendered from a template.
	Lookup(id ID) (dsn string, ok bool)

	// IDs returns every known tenant in a stable order.
	IDs() []ID
}

// StaticCatalog is an immutable in-memory catalog built from configuration.
type StaticCatalog struct {
	dsns map[ID]string
	ids  []ID
}

// NewStaticCatalog builds a catalog from a list of tenant ids and optional
// per-tenant DSN overrides. Overrides for ids not in the list also register
// the tenant. Invalid identifiers are rejected.
func NewStaticCatalog(ids []string, overrides map[string]string) (*StaticCatalog, error) {
	c := &StaticCatalog{dsns: make(map[ID]string, len(ids)+len(overrides))}

	add := func(raw, dsn string) error {
		id := ID(strings.TrimSpace(raw))
		if id == "" {
			return nil
		}
		if err := id.Validate(); err != nil {
			return err
		}
		if _, exists := c.dsns[id]; !exists {
			c.ids = append(c.ids, id)
		}
		if dsn != "" || c.dsns[id] == "" {
			c.dsns[id] = dsn
		}
		return nil
	}

	for _, raw := range ids {
		if err := add(raw, ""); err != nil {
			return nil, err
		}
	}
	for raw, dsn := range overrides {
		if err := add(raw, strings.TrimSpace(dsn)); err != nil {
			return nil, err
		}
	}

	slices.Sort(c.ids)
	return c, nil
}

// Lookup implements Catalog.
func (c *StaticCatalog) Lookup(id ID) (string, bool) {
	dsn, ok := c.dsns[id]
	return dsn, ok
}

// IDs implements Catalog.
func (c *StaticCatalog) IDs() []ID {
	return slices.Clone(c.ids)
}
