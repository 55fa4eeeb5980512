package domain

import "time"

// PendingStatus tracks the lifecycle of a client-side optimistic mutation.
type PendingStatus string

const (
	// StatusPending means the mutation was applied locally and is queued or
	// in flight.
	StatusPending PendingStatus = "pending"
	// StatusConfirmed means the server committed the mutation.
	StatusConfirmed PendingStatus = "confirmed"
	// StatusRejected means the server refused the mutation and the conflict
	// policy resolved it.
	StatusRejected PendingStatus = "rejected"
	// StatusSuperseded means a newer intent for the same item replaced this
	// one before it was sent.
	StatusSuperseded PendingStatus = "superseded"
	// StatusDegraded means transport retries were exhausted; the mutation's
	// fate on the server is unknown until connectivity returns.
	StatusDegraded PendingStatus = "degraded"
)

// PendingMutation is an optimistic mutation tracked by the sync engine.
// Status, Reason and Retried are written by the engine while the mutation is
// in flight; callers read them only once it has resolved.
type PendingMutation struct {
	ID         string
	Intent     MutationIntent
	Status     PendingStatus
	Reason     ConflictReason // set when Status is StatusRejected
	Retried    bool           // an automatic conflict retry was already spent
	EnqueuedAt time.Time
}

// SyncEvent is surfaced to the presentation layer whenever a pending
// mutation changes status. Redo carries the original intent when the
// resolution policy offers a replay against refreshed state.
type SyncEvent struct {
	ItemID string
	Status PendingStatus
	Reason ConflictReason
	Redo   *MutationIntent
}
