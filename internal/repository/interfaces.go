package repository

import (
	"context"

	"github.com/alexanderramin/treeline/internal/domain"
)

type ProjectRepo interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context) ([]*domain.Project, error)
	Delete(ctx context.Context, id string) error
}

// WorkItemRepo persists work-breakdown tree nodes. Implementations are
// constructed over a db.DBTX so the mutation ledger can run every read and
// write of one mutation inside a single transaction.
type WorkItemRepo interface {
	Create(ctx context.Context, w *domain.WorkItem) error
	GetByID(ctx context.Context, id string) (*domain.WorkItem, error)
	ListByProject(ctx context.Context, projectID string) ([]*domain.WorkItem, error)
	// ListChildren returns the sibling group in order-key order. A nil
	// parentID selects root-level items.
	ListChildren(ctx context.Context, projectID string, parentID *string) ([]*domain.WorkItem, error)
	// NextSibling returns the first child of the group whose order key sorts
	// after afterKey, or nil if afterKey belongs to the last sibling.
	NextSibling(ctx context.Context, projectID string, parentID *string, afterKey string) (*domain.WorkItem, error)
	// PrevSibling returns the last child of the group whose order key sorts
	// before beforeKey, or nil if beforeKey belongs to the first sibling.
	PrevSibling(ctx context.Context, projectID string, parentID *string, beforeKey string) (*domain.WorkItem, error)
	// LastChild returns the group's final sibling, or nil for an empty group.
	LastChild(ctx context.Context, projectID string, parentID *string) (*domain.WorkItem, error)
	// UpdateStructure writes the structural fields of one item.
	UpdateStructure(ctx context.Context, id string, parentID *string, orderKey string, version int64) error
	Delete(ctx context.Context, id string) error
}

// MutationLogRepo appends committed mutations to the audit log.
type MutationLogRepo interface {
	Append(ctx context.Context, e *domain.MutationLogEntry) error
	ListByProject(ctx context.Context, projectID string, limit int) ([]*domain.MutationLogEntry, error)
}
