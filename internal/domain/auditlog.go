package domain

import "time"

// MutationLogEntry is one committed structural mutation in the audit log.
// Renormalizations get their own entry so key rewrites are never hidden
// inside the move or insert that triggered them.
type MutationLogEntry struct {
	ID          string
	ProjectID   string
	ItemID      string
	Kind        MutationKind
	Detail      string
	CommittedAt time.Time
}
