package domain

import "fmt"

// ConflictReason classifies why the ledger rejected a mutation.
type ConflictReason string

const (
	ReasonCycle               ConflictReason = "cycle"
	ReasonCrossProject        ConflictReason = "cross-project"
	ReasonStaleInsertionPoint ConflictReason = "stale-insertion-point"
	ReasonParentNotFound      ConflictReason = "parent-not-found"
	ReasonVersionMismatch     ConflictReason = "version-mismatch"
)

// ConflictError reports a structural or optimistic-precondition rejection.
// The mutation was not applied; nothing changed on the server.
type ConflictError struct {
	Reason ConflictReason
	ItemID string
	Detail string
}

func (e *ConflictError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("mutation conflict (%s) on item %s", e.Reason, e.ItemID)
	}
	return fmt.Sprintf("mutation conflict (%s) on item %s: %s", e.Reason, e.ItemID, e.Detail)
}

// NewConflict builds a ConflictError for the given item and reason.
func NewConflict(reason ConflictReason, itemID, detail string) *ConflictError {
	return &ConflictError{Reason: reason, ItemID: itemID, Detail: detail}
}
