package domain

// MutationKind identifies the class of a structural mutation.
type MutationKind string

const (
	MutationInsert      MutationKind = "insert"
	MutationMove        MutationKind = "move"
	MutationDelete      MutationKind = "delete"
	MutationRenormalize MutationKind = "renormalize"
)

// DeletePolicy controls what happens to a deleted item's children.
type DeletePolicy string

const (
	// DeletePromote re-points children to the deleted item's parent.
	DeletePromote DeletePolicy = "promote"
	// DeleteCascade deletes the whole subtree.
	DeleteCascade DeletePolicy = "cascade"
)

// MutationIntent describes a proposed structural mutation. It is produced by
// a client and consumed by the mutation ledger, which either commits it
// atomically or rejects it without side effects.
//
// The insertion point is expressed through LeftNeighborID/RightNeighborID.
// Both nil means append after the current last sibling. The ledger places the
// new position directly after the left neighbor when one is given, otherwise
// directly before the right neighbor.
type MutationIntent struct {
	Kind      MutationKind
	ProjectID string

	// ItemID identifies the item being moved or deleted. Empty for inserts;
	// the ledger assigns a fresh ID and returns it in the result.
	ItemID string

	// Title is only used by inserts.
	Title string

	// NewParentID is the target parent for inserts and moves. nil targets
	// the root level.
	NewParentID *string

	LeftNeighborID  *string
	RightNeighborID *string

	// ExpectedVersion, when non-nil, is the item version the caller derived
	// this intent from. The ledger rejects the mutation with a
	// version-mismatch conflict if it no longer matches.
	ExpectedVersion *int64

	// Policy applies to deletes only. Empty defaults to DeletePromote.
	Policy DeletePolicy
}

// ItemState is the committed structural state of one item, as returned by
// the ledger. Clients overwrite their local copy with these values.
type ItemState struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parentId"`
	OrderKey string  `json:"orderKey"`
	Version  int64   `json:"version"`
}

// MutationResult is the authoritative outcome of a committed mutation.
type MutationResult struct {
	MutationID string       `json:"mutationId"`
	Kind       MutationKind `json:"kind"`
	ProjectID  string       `json:"projectId"`

	// Item is the post-commit state of the inserted or moved item. Unset
	// for deletes.
	Item *ItemState `json:"item,omitempty"`

	// Promoted lists children re-pointed by a promote-policy delete.
	Promoted []ItemState `json:"promoted,omitempty"`

	// Removed lists the IDs deleted by this mutation (the item itself, plus
	// the subtree under a cascade-policy delete).
	Removed []string `json:"removed,omitempty"`

	// Renormalized lists every sibling whose order key was rewritten by a
	// renormalization performed inside this mutation's transaction.
	Renormalized []ItemState `json:"renormalized,omitempty"`
}

// ItemID returns the id of the mutated item: the inserted or moved item, or
// for deletes the root of the removed subtree.
func (r *MutationResult) ItemID() string {
	if r.Item != nil {
		return r.Item.ID
	}
	if len(r.Removed) > 0 {
		// deleteSubtree appends post-order, so the deleted root is last.
		return r.Removed[len(r.Removed)-1]
	}
	return ""
}
