package audit

import (
	"bytes"
	"encoding/json"
	"reflect"
	"slices"
)

var (
	criticalEntities = []string{"workflow", "document", "user"}
	criticalKinds    = []ChangeKind{KindDelete, KindResponsibleChange}
)

// IsCritical reports whether a change needs heightened review. Entity type
// and kind are evaluated independently of whether any field changed.
func IsCritical(entityType string, kind ChangeKind) bool {
	return slices.Contains(criticalEntities, entityType) || slices.Contains(criticalKinds, kind)
}

// ChangedFields returns the sorted keys present in both snapshots whose
// values differ. It is empty when either snapshot is absent.
func ChangedFields(before, after map[string]any) []string {
	fields := []string{}
	if before == nil || after == nil {
		return fields
	}
	for k, ov := range before {
		nv, ok := after[k]
		if ok && !sameValue(ov, nv) {
			fields = append(fields, k)
		}
	}
	slices.Sort(fields)
	return fields
}

// sameValue compares by JSON encoding so that a snapshot read back from the
// store (int64, float64, string timestamps) matches one built in memory.
func sameValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}
