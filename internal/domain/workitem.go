package domain

import "time"

// WorkItem is a single node in a project's work-breakdown tree.
//
// ParentID, OrderKey and Version are structural fields: only the mutation
// ledger writes them. OrderKey is unique within the item's sibling group
// (same ProjectID and ParentID) and its lexical order is the display order.
// Version increases by one on every committed structural change to the item.
type WorkItem struct {
	ID        string
	ProjectID string
	ParentID  *string // nil means root-level
	Title     string
	OrderKey  string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SiblingGroup identifies the set of items sharing a parent within a project.
type SiblingGroup struct {
	ProjectID string
	ParentID  *string
}
