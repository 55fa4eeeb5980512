package httpapi

import (
	"time"

	"github.com/alexanderramin/treeline/internal/domain"
)

// MutationRequest is the wire form of a mutation intent.
type MutationRequest struct {
	Kind            string  `json:"kind"`
	ItemID          string  `json:"itemId,omitempty"`
	Title           string  `json:"title,omitempty"`
	NewParentID     *string `json:"newParentId,omitempty"`
	LeftNeighborID  *string `json:"leftNeighborId,omitempty"`
	RightNeighborID *string `json:"rightNeighborId,omitempty"`
	ExpectedVersion *int64  `json:"expectedVersion,omitempty"`
	Policy          string  `json:"policy,omitempty"`
}

// Intent converts the request into a domain intent for the given project.
func (r MutationRequest) Intent(projectID string) domain.MutationIntent {
	return domain.MutationIntent{
		Kind:            domain.MutationKind(r.Kind),
		ProjectID:       projectID,
		ItemID:          r.ItemID,
		Title:           r.Title,
		NewParentID:     r.NewParentID,
		LeftNeighborID:  r.LeftNeighborID,
		RightNeighborID: r.RightNeighborID,
		ExpectedVersion: r.ExpectedVersion,
		Policy:          domain.DeletePolicy(r.Policy),
	}
}

func requestFromIntent(intent domain.MutationIntent) MutationRequest {
	return MutationRequest{
		Kind:            string(intent.Kind),
		ItemID:          intent.ItemID,
		Title:           intent.Title,
		NewParentID:     intent.NewParentID,
		LeftNeighborID:  intent.LeftNeighborID,
		RightNeighborID: intent.RightNeighborID,
		ExpectedVersion: intent.ExpectedVersion,
		Policy:          string(intent.Policy),
	}
}

// ConflictResponse is the 409 payload.
type ConflictResponse struct {
	Reason string `json:"reason"`
	ItemID string `json:"itemId"`
	Detail string `json:"detail,omitempty"`
}

// Item is the wire form of a work item.
type Item struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	ParentID  *string   `json:"parentId"`
	Title     string    `json:"title"`
	OrderKey  string    `json:"orderKey"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toItem(w *domain.WorkItem) Item {
	return Item{
		ID:        w.ID,
		ProjectID: w.ProjectID,
		ParentID:  w.ParentID,
		Title:     w.Title,
		OrderKey:  w.OrderKey,
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func toItems(items []*domain.WorkItem) []Item {
	out := make([]Item, len(items))
	for i, w := range items {
		out[i] = toItem(w)
	}
	return out
}

func fromItems(items []Item) []*domain.WorkItem {
	out := make([]*domain.WorkItem, len(items))
	for i, it := range items {
		w := domain.WorkItem{
			ID:        it.ID,
			ProjectID: it.ProjectID,
			ParentID:  it.ParentID,
			Title:     it.Title,
			OrderKey:  it.OrderKey,
			Version:   it.Version,
			CreatedAt: it.CreatedAt,
			UpdatedAt: it.UpdatedAt,
		}
		out[i] = &w
	}
	return out
}
