package audit

import (
	"slices"
	"time"
)

// ChangeKind classifies a recorded change.
type ChangeKind string

const (
	KindCreate            ChangeKind = "create"
	KindUpdate            ChangeKind = "update"
	KindStatusChange      ChangeKind = "status_change"
	KindResponsibleChange ChangeKind = "responsible_change"
	KindDelete            ChangeKind = "delete"
)

var allKinds = []ChangeKind{KindCreate, KindUpdate, KindStatusChange, KindResponsibleChange, KindDelete}

// Kinds returns every change kind in declaration order.
func Kinds() []ChangeKind { return slices.Clone(allKinds) }

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool { return slices.Contains(allKinds, k) }

// Entry is an immutable audit log record.
type Entry struct {
	ID            string         `json:"id"`
	Seq           int64          `json:"seq"`
	TenantID      string         `json:"tenant_id"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Kind          ChangeKind     `json:"kind"`
	ActorID       string         `json:"actor_id"`
	OldValues     map[string]any `json:"old_values,omitempty"`
	NewValues     map[string]any `json:"new_values,omitempty"`
	ChangedFields []string       `json:"changed_fields"`
	IP            string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	Note          string         `json:"note,omitempty"`
	Automatic     bool           `json:"automatic"`
	Critical      bool           `json:"is_critical"`
	Context       map[string]any `json:"context,omitempty"`
	Signature     string         `json:"signature"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Failed reports whether the entry records a failed operation.
func (e *Entry) Failed() bool {
	failed, _ := e.Context[ContextFailed].(bool)
	return failed
}

// Change is the input of Recorder.Record.
type Change struct {
	EntityType string
	EntityID   string
	Kind       ChangeKind

	// TenantID defaults to the scope's tenant; a different value is rejected.
	TenantID string

	// ActorID, IP and UserAgent default to the recorder's context extractors.
	ActorID   string
	IP        string
	UserAgent string

	Old map[string]any
	New map[string]any

	Note      string
	Automatic bool
	Context   map[string]any
}

// Context keys set on failure entries.
const (
	ContextFailed = "failed"
	ContextError  = "error"
)
