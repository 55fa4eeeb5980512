package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alexanderramin/treeline/internal/domain"
	"github.com/alexanderramin/treeline/internal/orderkey"
	"github.com/alexanderramin/treeline/internal/repository"
)

// allocateKey computes the order key for the intent's insertion point in the
// target sibling group. The position is anchored to one neighbor: directly
// after the left neighbor when one is given, otherwise directly before the
// right neighbor, otherwise at the tail. Anchoring to a single neighbor keeps
// allocation well-defined even when the named pair is no longer adjacent.
//
// excludeID (the item being moved) is skipped when deriving adjacency so a
// same-group move never computes a gap bounded by the item's own old key.
//
// If the gap has no subdivision headroom left, the whole group is rewritten
// with fresh evenly spaced keys inside the same transaction and the
// allocation is retried; the rewritten states are returned alongside the key.
func (l *Ledger) allocateKey(ctx context.Context, items repository.WorkItemRepo, mlog repository.MutationLogRepo, intent domain.MutationIntent, excludeID string) (string, []domain.ItemState, error) {
	leftKey, rightKey, err := l.anchorKeys(ctx, items, intent, excludeID)
	if err != nil {
		return "", nil, err
	}

	key, err := orderkey.Between(leftKey, rightKey)
	if err == nil {
		return key, nil, nil
	}
	if !errors.Is(err, orderkey.ErrExhausted) {
		return "", nil, err
	}

	renormalized, err := l.renormalizeGroup(ctx, items, mlog, intent.ProjectID, intent.NewParentID, excludeID)
	if err != nil {
		return "", nil, err
	}

	// Neighbor keys changed; re-derive the anchor against the fresh group.
	leftKey, rightKey, err = l.anchorKeys(ctx, items, intent, excludeID)
	if err != nil {
		return "", nil, err
	}
	key, err = orderkey.Between(leftKey, rightKey)
	if err != nil {
		return "", nil, fmt.Errorf("allocating key after renormalization: %w", err)
	}
	return key, renormalized, nil
}

// anchorKeys resolves the intent's neighbor references to the pair of keys
// the new key must fall between. Empty strings stand for the group's open
// ends.
func (l *Ledger) anchorKeys(ctx context.Context, items repository.WorkItemRepo, intent domain.MutationIntent, excludeID string) (string, string, error) {
	projectID := intent.ProjectID
	parentID := intent.NewParentID

	switch {
	case intent.LeftNeighborID != nil:
		left, err := items.GetByID(ctx, *intent.LeftNeighborID)
		if err != nil {
			return "", "", err
		}
		next, err := nextSiblingExcluding(ctx, items, projectID, parentID, left.OrderKey, excludeID)
		if err != nil {
			return "", "", err
		}
		if next == nil {
			return left.OrderKey, "", nil
		}
		return left.OrderKey, next.OrderKey, nil

	case intent.RightNeighborID != nil:
		right, err := items.GetByID(ctx, *intent.RightNeighborID)
		if err != nil {
			return "", "", err
		}
		prev, err := prevSiblingExcluding(ctx, items, projectID, parentID, right.OrderKey, excludeID)
		if err != nil {
			return "", "", err
		}
		if prev == nil {
			return "", right.OrderKey, nil
		}
		return prev.OrderKey, right.OrderKey, nil

	default:
		last, err := lastChildExcluding(ctx, items, projectID, parentID, excludeID)
		if err != nil {
			return "", "", err
		}
		if last == nil {
			return "", "", nil
		}
		return last.OrderKey, "", nil
	}
}

// renormalizeGroup rewrites every key in the sibling group with evenly
// spaced fresh values and bumps each affected item's version by one. It runs
// inside the caller's transaction and is recorded as its own audit entry.
func (l *Ledger) renormalizeGroup(ctx context.Context, items repository.WorkItemRepo, mlog repository.MutationLogRepo, projectID string, parentID *string, excludeID string) ([]domain.ItemState, error) {
	children, err := items.ListChildren(ctx, projectID, parentID)
	if err != nil {
		return nil, err
	}
	group := children[:0]
	var mover *domain.WorkItem
	for _, c := range children {
		if c.ID == excludeID {
			mover = c
			continue
		}
		group = append(group, c)
	}
	if len(group) == 0 {
		return nil, nil
	}

	keys := orderkey.Spread(len(group))

	// Two passes: park every row on a placeholder outside the key alphabet
	// first, so fresh keys cannot transiently collide with rows that still
	// carry their old key under the sibling uniqueness index. The excluded
	// item gets no fresh key, but when it sits in this group its row still
	// holds the old one, so it is parked too.
	if mover != nil {
		if err := items.UpdateStructure(ctx, mover.ID, mover.ParentID, "!"+mover.ID, mover.Version); err != nil {
			return nil, err
		}
	}
	for _, c := range group {
		if err := items.UpdateStructure(ctx, c.ID, c.ParentID, "!"+c.ID, c.Version); err != nil {
			return nil, err
		}
	}
	states := make([]domain.ItemState, len(group))
	for i, c := range group {
		newVersion := c.Version + 1
		if err := items.UpdateStructure(ctx, c.ID, c.ParentID, keys[i], newVersion); err != nil {
			return nil, err
		}
		states[i] = domain.ItemState{ID: c.ID, ParentID: c.ParentID, OrderKey: keys[i], Version: newVersion}
	}

	entry := &domain.MutationLogEntry{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Kind:        domain.MutationRenormalize,
		Detail:      fmt.Sprintf("rewrote %d keys under %s", len(group), parentLabel(parentID)),
		CommittedAt: time.Now().UTC(),
	}
	if parentID != nil {
		entry.ItemID = *parentID
	}
	if err := mlog.Append(ctx, entry); err != nil {
		return nil, err
	}

	l.logger.WithFields(log.Fields{
		"project": projectID,
		"parent":  parentLabel(parentID),
		"count":   len(group),
	}).Info("sibling group renormalized")
	return states, nil
}

func nextSiblingExcluding(ctx context.Context, items repository.WorkItemRepo, projectID string, parentID *string, afterKey, excludeID string) (*domain.WorkItem, error) {
	key := afterKey
	for {
		next, err := items.NextSibling(ctx, projectID, parentID, key)
		if err != nil {
			return nil, err
		}
		if next == nil || next.ID != excludeID {
			return next, nil
		}
		key = next.OrderKey
	}
}

func prevSiblingExcluding(ctx context.Context, items repository.WorkItemRepo, projectID string, parentID *string, beforeKey, excludeID string) (*domain.WorkItem, error) {
	key := beforeKey
	for {
		prev, err := items.PrevSibling(ctx, projectID, parentID, key)
		if err != nil {
			return nil, err
		}
		if prev == nil || prev.ID != excludeID {
			return prev, nil
		}
		key = prev.OrderKey
	}
}

func lastChildExcluding(ctx context.Context, items repository.WorkItemRepo, projectID string, parentID *string, excludeID string) (*domain.WorkItem, error) {
	last, err := items.LastChild(ctx, projectID, parentID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.ID != excludeID {
		return last, nil
	}
	return prevSiblingExcluding(ctx, items, projectID, parentID, last.OrderKey, excludeID)
}
