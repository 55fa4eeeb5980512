// Package conflict decides what becomes of a rejected optimistic mutation.
// Policies are pure decision functions: the sync engine supplies the rejected
// mutation and the server's verdict, the policy answers with a single next
// action. Swapping the policy never touches the sync protocol itself.
package conflict

import "github.com/alexanderramin/treeline/internal/domain"

// Decision is the action the sync engine takes for a rejected mutation.
type Decision int

const (
	// Discard drops the optimistic change, refreshes local state from the
	// server, and surfaces the original intent as a redo offer.
	Discard Decision = iota
	// Retry resends the intent once against refreshed server state.
	Retry
)

// Resolution is a policy's answer for one rejected mutation.
type Resolution struct {
	Decision Decision
	// Redo carries the original intent when the user should be offered a
	// replay against current state. nil means nothing to offer.
	Redo *domain.MutationIntent
}

// Policy turns a rejection into a resolution.
type Policy interface {
	Resolve(rejected domain.PendingMutation, conflict *domain.ConflictError) Resolution
}

// LastServerWins is the default policy: server state stands, the local
// change is discarded and offered back as a redo. The one exception is a
// stale insertion point, which is usually just a neighbor that moved away;
// that is retried automatically once before bothering the user.
type LastServerWins struct{}

func (LastServerWins) Resolve(rejected domain.PendingMutation, conflict *domain.ConflictError) Resolution {
	if conflict.Reason == domain.ReasonStaleInsertionPoint && !rejected.Retried {
		return Resolution{Decision: Retry}
	}
	intent := rejected.Intent
	return Resolution{Decision: Discard, Redo: &intent}
}
