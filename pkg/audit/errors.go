package audit

import "errors"

var (
	// ErrAuditPersist indicates the audit entry itself could not be written.
	ErrAuditPersist = errors.New("audit.persist_failed")

	// ErrInvalidChange indicates a change without entity type, entity id or a known kind.
	ErrInvalidChange = errors.New("audit.invalid_change")

	// ErrUnknownEntity indicates an entity kind outside the closed set or without a snapshotter.
	ErrUnknownEntity = errors.New("audit.unknown_entity")

	// ErrNoSessions indicates RecordDetached was used on a recorder without a session runner.
	ErrNoSessions = errors.New("audit.no_sessions")
)
