package audit

import (
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// FilterAction defines what happens to a matched snapshot field.
type FilterAction string

const (
	FilterActionRemove FilterAction = "remove"
	FilterActionHash   FilterAction = "hash"
	FilterActionMask   FilterAction = "mask"
)

// MetadataFilter redacts sensitive values in entity snapshots before they are
// persisted. Changed fields are derived from the redacted snapshots: a removed
// field is never reported, a hashed field is reported when its value changes,
// and a masked field only when the masks differ.
type MetadataFilter struct {
	rules     map[string]FilterAction
	allowed   map[string]bool
	filterPII bool
}

// Default PII fields that should be filtered automatically
var defaultPIIFields = map[string]FilterAction{
	"password":               FilterActionRemove,
	"password_hash":          FilterActionRemove,
	"secret":                 FilterActionRemove,
	"token":                  FilterActionRemove,
	"api_key":                FilterActionRemove,
	"access_token":           FilterActionRemove,
	"refresh_token":          FilterActionRemove,
	"private_key":            FilterActionRemove,
	"*_secret":               FilterActionRemove,
	"ssn":                    FilterActionMask,
	"social_security_number": FilterActionMask,
	"iban":                   FilterActionMask,
	"card_number":            FilterActionMask,
	"phone":                  FilterActionMask,
	"phone_number":           FilterActionMask,
	"email":                  FilterActionHash,
	"date_of_birth":          FilterActionHash,
}

// FilterOption configures MetadataFilter behavior
type FilterOption func(*MetadataFilter)

// NewMetadataFilter creates a filter with default PII rules enabled.
func NewMetadataFilter(opts ...FilterOption) *MetadataFilter {
	f := &MetadataFilter{
		rules:     make(map[string]FilterAction),
		allowed:   make(map[string]bool),
		filterPII: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithCustomField adds a rule for a field name or a glob such as "*_token".
// Custom rules take precedence over the defaults.
func WithCustomField(field string, action FilterAction) FilterOption {
	return func(f *MetadataFilter) {
		f.rules[strings.ToLower(field)] = action
	}
}

// WithAllowedField lets a field through untouched.
func WithAllowedField(field string) FilterOption {
	return func(f *MetadataFilter) {
		f.allowed[strings.ToLower(field)] = true
	}
}

// WithoutPIIDefaults disables default PII field filtering
func WithoutPIIDefaults() FilterOption {
	return func(f *MetadataFilter) {
		f.filterPII = false
	}
}

// Filter returns a redacted copy of the snapshot. Nested maps are filtered
// recursively. A nil snapshot stays nil.
func (f *MetadataFilter) Filter(snapshot map[string]any) map[string]any {
	if f == nil || snapshot == nil {
		return snapshot
	}

	out := make(map[string]any, len(snapshot))
	for key, value := range snapshot {
		lower := strings.ToLower(key)
		if f.allowed[lower] {
			out[key] = value
			continue
		}

		action, ok := f.match(lower)
		if !ok {
			if nested, isMap := value.(map[string]any); isMap {
				value = f.Filter(nested)
			}
			out[key] = value
			continue
		}

		switch action {
		case FilterActionRemove:
		case FilterActionHash:
			out[key] = hashValue(value)
		case FilterActionMask:
			out[key] = maskValue(value)
		default:
			out[key] = value
		}
	}
	return out
}

func (f *MetadataFilter) match(key string) (FilterAction, bool) {
	if a, ok := lookup(f.rules, key); ok {
		return a, true
	}
	if f.filterPII {
		return lookup(defaultPIIFields, key)
	}
	return "", false
}

func lookup(rules map[string]FilterAction, key string) (FilterAction, bool) {
	if a, ok := rules[key]; ok {
		return a, true
	}
	for pattern, a := range rules {
		if !strings.ContainsAny(pattern, "*?[") {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			return a, true
		}
	}
	return "", false
}

func hashValue(value any) string {
	sum := blake2b.Sum256([]byte(fmt.Sprint(value)))
	return hex.EncodeToString(sum[:])
}

// maskValue keeps the first and last characters of longer values.
func maskValue(value any) string {
	s := fmt.Sprint(value)
	n := len(s)
	switch {
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:2] + strings.Repeat("*", n-4) + s[n-2:]
	}
}
