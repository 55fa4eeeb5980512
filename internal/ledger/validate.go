package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexanderramin/treeline/internal/domain"
	"github.com/alexanderramin/treeline/internal/repository"
)

// validateTarget enforces the tree invariants for the intent's target
// position before any key is allocated or row written. moving is the item
// being relocated, or nil for inserts. Checks run in a fixed order and
// short-circuit on the first failure.
func validateTarget(ctx context.Context, items repository.WorkItemRepo, intent domain.MutationIntent, moving *domain.WorkItem) error {
	// 1. The parent exists and lives in the same project.
	var parent *domain.WorkItem
	if intent.NewParentID != nil {
		var err error
		parent, err = items.GetByID(ctx, *intent.NewParentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewConflict(domain.ReasonParentNotFound, itemIDForConflict(intent, moving),
					fmt.Sprintf("parent %s does not exist", *intent.NewParentID))
			}
			return err
		}
		if parent.ProjectID != intent.ProjectID {
			return domain.NewConflict(domain.ReasonCrossProject, itemIDForConflict(intent, moving),
				fmt.Sprintf("parent %s belongs to project %s", parent.ID, parent.ProjectID))
		}
	}

	// 2. The move does not introduce a cycle: the new parent is neither the
	// item itself nor one of its descendants. The committed tree is acyclic,
	// so walking the ancestor chain terminates within the tree depth.
	if moving != nil && parent != nil {
		if parent.ID == moving.ID {
			return domain.NewConflict(domain.ReasonCycle, moving.ID, "item cannot be its own parent")
		}
		ancestor := parent
		for ancestor.ParentID != nil {
			if *ancestor.ParentID == moving.ID {
				return domain.NewConflict(domain.ReasonCycle, moving.ID,
					fmt.Sprintf("%s is a descendant of the item", parent.ID))
			}
			next, err := items.GetByID(ctx, *ancestor.ParentID)
			if err != nil {
				return err
			}
			ancestor = next
		}
	}

	// 3. The insertion point names live children of the target parent. A
	// neighbor deleted or reparented since the caller read the tree makes
	// the intent stale.
	for _, neighborID := range []*string{intent.LeftNeighborID, intent.RightNeighborID} {
		if neighborID == nil {
			continue
		}
		neighbor, err := items.GetByID(ctx, *neighborID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NewConflict(domain.ReasonStaleInsertionPoint, itemIDForConflict(intent, moving),
					fmt.Sprintf("neighbor %s no longer exists", *neighborID))
			}
			return err
		}
		if neighbor.ProjectID != intent.ProjectID || !sameParent(neighbor.ParentID, intent.NewParentID) {
			return domain.NewConflict(domain.ReasonStaleInsertionPoint, itemIDForConflict(intent, moving),
				fmt.Sprintf("neighbor %s is no longer a child of %s", neighbor.ID, parentLabel(intent.NewParentID)))
		}
	}

	return nil
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func itemIDForConflict(intent domain.MutationIntent, moving *domain.WorkItem) string {
	if moving != nil {
		return moving.ID
	}
	return intent.ItemID
}
