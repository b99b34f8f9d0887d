package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantcore/pkg/session"
)

// Table is the audit log table name.
const Table = "audit_log"

// Column names of the audit log table.
const (
	ColumnSeq           = "seq"
	ColumnID            = "id"
	ColumnEntityType    = "entity_type"
	ColumnEntityID      = "entity_id"
	ColumnKind          = "kind"
	ColumnActorID       = "actor_id"
	ColumnOldValues     = "old_values"
	ColumnNewValues     = "new_values"
	ColumnChangedFields = "changed_fields"
	ColumnIP            = "ip_address"
	ColumnUserAgent     = "user_agent"
	ColumnNote          = "note"
	ColumnAutomatic     = "automatic"
	ColumnCritical      = "is_critical"
	ColumnContext       = "context"
	ColumnSignature     = "signature"
	ColumnCreatedAt     = "created_at"
)

// Store persists entries inside a session scope. Implementations must only append.
type Store interface {
	Append(ctx context.Context, s *session.Scope, e *Entry) error
}

// SQLStore keeps entries in the audit_log table of the tenant's database.
type SQLStore struct{}

// NewSQLStore creates the SQL store.
func NewSQLStore() *SQLStore { return &SQLStore{} }

// Append implements Store.
func (*SQLStore) Append(ctx context.Context, s *session.Scope, e *Entry) error {
	oldJSON, err := encodeMap(e.OldValues)
	if err != nil {
		return err
	}
	newJSON, err := encodeMap(e.NewValues)
	if err != nil {
		return err
	}
	ctxJSON, err := encodeMap(e.Context)
	if err != nil {
		return err
	}
	changed, err := json.Marshal(e.ChangedFields)
	if err != nil {
		return err
	}

	return s.Insert(ctx, Table, session.Row{
		ColumnID:             e.ID,
		session.TenantColumn: e.TenantID,
		ColumnEntityType:     e.EntityType,
		ColumnEntityID:       e.EntityID,
		ColumnKind:           string(e.Kind),
		ColumnActorID:        e.ActorID,
		ColumnOldValues:      oldJSON,
		ColumnNewValues:      newJSON,
		ColumnChangedFields:  string(changed),
		ColumnIP:             e.IP,
		ColumnUserAgent:      e.UserAgent,
		ColumnNote:           e.Note,
		ColumnAutomatic:      e.Automatic,
		ColumnCritical:       e.Critical,
		ColumnContext:        ctxJSON,
		ColumnSignature:      e.Signature,
		ColumnCreatedAt:      e.CreatedAt,
	})
}

// Find returns the entries matching q.
func (*SQLStore) Find(ctx context.Context, s *session.Scope, q session.Query) ([]Entry, error) {
	rows, err := s.Find(ctx, Table, q)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := decodeEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// encodeMap stores nil as SQL NULL.
func encodeMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode audit values: %w", err)
	}
	return string(b), nil
}

func decodeEntry(row session.Row) (Entry, error) {
	var (
		e   Entry
		err error
	)
	e.ID = asString(row[ColumnID])
	e.Seq = asInt(row[ColumnSeq])
	e.TenantID = asString(row[session.TenantColumn])
	e.EntityType = asString(row[ColumnEntityType])
	e.EntityID = asString(row[ColumnEntityID])
	e.Kind = ChangeKind(asString(row[ColumnKind]))
	e.ActorID = asString(row[ColumnActorID])
	e.IP = asString(row[ColumnIP])
	e.UserAgent = asString(row[ColumnUserAgent])
	e.Note = asString(row[ColumnNote])
	e.Automatic = asBool(row[ColumnAutomatic])
	e.Critical = asBool(row[ColumnCritical])
	e.Signature = asString(row[ColumnSignature])

	if e.OldValues, err = decodeMap(row[ColumnOldValues]); err != nil {
		return e, err
	}
	if e.NewValues, err = decodeMap(row[ColumnNewValues]); err != nil {
		return e, err
	}
	if e.Context, err = decodeMap(row[ColumnContext]); err != nil {
		return e, err
	}

	e.ChangedFields = []string{}
	if raw := asString(row[ColumnChangedFields]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.ChangedFields); err != nil {
			return e, fmt.Errorf("decode changed fields of %s: %w", e.ID, err)
		}
	}

	if e.CreatedAt, err = asTime(row[ColumnCreatedAt]); err != nil {
		return e, fmt.Errorf("decode created_at of %s: %w", e.ID, err)
	}
	return e, nil
}

// decodeMap keeps numbers as json.Number so re-encoding for signature
// checks is byte-exact.
func decodeMap(v any) (map[string]any, error) {
	var raw []byte
	switch t := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return t, nil
	case string:
		raw = []byte(t)
	case []byte:
		raw = t
	default:
		return nil, fmt.Errorf("decode audit values: unexpected %T", v)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode audit values: %w", err)
	}
	return m, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

// sqliteTimeLayouts are the formats go-sqlite3 writes time.Time values in.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		for _, layout := range sqliteTimeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", t)
	}
	return time.Time{}, fmt.Errorf("unexpected time type %T", v)
}
