package audit

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"hash"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Signer computes tamper-evidence signatures: a keyed BLAKE2b-256 MAC over a
// canonical encoding of every entry field except Seq and Signature.
// Each entry is signed independently, so concurrent writers never contend
// on a shared chain head.
type Signer struct {
	key []byte
}

// NewSigner creates a signer. Keys longer than 64 bytes are rejected by
// BLAKE2b and must be hashed by the caller; an empty key yields an unkeyed
// integrity hash.
func NewSigner(key []byte) (*Signer, error) {
	if _, err := blake2b.New256(key); err != nil {
		return nil, err
	}
	return &Signer{key: append([]byte(nil), key...)}, nil
}

// Sign returns the hex signature of e.
func (s *Signer) Sign(e *Entry) string {
	h := s.hasher()
	_ = json.NewEncoder(h).Encode(canonicalize(e))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether e carries a valid signature.
func (s *Signer) Verify(e *Entry) bool {
	want, err := hex.DecodeString(e.Signature)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(s.Sign(e))
	return subtle.ConstantTimeCompare(want, got) == 1
}

func (s *Signer) hasher() hash.Hash {
	h, _ := blake2b.New256(s.key)
	return h
}

type canonicalEntry struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	Kind          ChangeKind     `json:"kind"`
	ActorID       string         `json:"actor_id"`
	OldValues     map[string]any `json:"old_values"`
	NewValues     map[string]any `json:"new_values"`
	ChangedFields []string       `json:"changed_fields"`
	IP            string         `json:"ip_address"`
	UserAgent     string         `json:"user_agent"`
	Note          string         `json:"note"`
	Automatic     bool           `json:"automatic"`
	Critical      bool           `json:"is_critical"`
	Context       map[string]any `json:"context"`
	CreatedAt     string         `json:"created_at"`
}

// canonicalize maps an entry to a stable form: empty and nil collections
// encode the same, timestamps are UTC at microsecond precision.
func canonicalize(e *Entry) canonicalEntry {
	emptyToNil := func(m map[string]any) map[string]any {
		if len(m) == 0 {
			return nil
		}
		return m
	}
	changed := e.ChangedFields
	if changed == nil {
		changed = []string{}
	}

	return canonicalEntry{
		ID:            e.ID,
		TenantID:      e.TenantID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		Kind:          e.Kind,
		ActorID:       e.ActorID,
		OldValues:     emptyToNil(e.OldValues),
		NewValues:     emptyToNil(e.NewValues),
		ChangedFields: changed,
		IP:            e.IP,
		UserAgent:     e.UserAgent,
		Note:          e.Note,
		Automatic:     e.Automatic,
		Critical:      e.Critical,
		Context:       emptyToNil(e.Context),
		CreatedAt:     e.CreatedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	}
}
