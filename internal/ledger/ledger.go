// Package ledger is the single authoritative writer of work-item tree
// structure. Every structural mutation (insert, move, delete) is validated
// against committed state, assigned an order key, and committed atomically;
// callers either get the authoritative post-commit state or a typed
// rejection, never a partial write.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alexanderramin/treeline/internal/db"
	"github.com/alexanderramin/treeline/internal/domain"
	"github.com/alexanderramin/treeline/internal/orderkey"
	"github.com/alexanderramin/treeline/internal/repository"
)

// ErrTimeout is returned when a mutation ran out of time on the transaction
// boundary. It is distinct from conflict rejections: the caller's view was
// not necessarily stale, the attempt just did not finish.
var ErrTimeout = errors.New("mutation timed out")

// Ledger serializes mutations per project: a coarse per-project mutex plus a
// transaction per mutation. A reparent touches two sibling groups, so locking
// at sibling-group granularity would need deadlock-ordered lock pairs; at
// realistic tree sizes the coarse scope is not the bottleneck.
type Ledger struct {
	db     *sql.DB
	uow    db.UnitOfWork
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Ledger over the given database.
func New(database *sql.DB, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Ledger{
		db:     database,
		uow:    db.NewSQLiteUnitOfWork(database),
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Apply validates and commits one mutation. On success the returned result
// carries the authoritative state clients must converge to. Rejections are
// *domain.ConflictError values; the committed tree is untouched by them.
func (l *Ledger) Apply(ctx context.Context, intent domain.MutationIntent) (*domain.MutationResult, error) {
	if intent.ProjectID == "" {
		return nil, fmt.Errorf("mutation intent missing project id")
	}

	lock := l.projectLock(intent.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	var result *domain.MutationResult
	err := l.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		items := repository.NewSQLiteWorkItemRepo(tx)
		mlog := repository.NewSQLiteMutationLogRepo(tx)

		var txErr error
		switch intent.Kind {
		case domain.MutationInsert:
			result, txErr = l.applyInsert(ctx, items, mlog, intent)
		case domain.MutationMove:
			result, txErr = l.applyMove(ctx, items, mlog, intent)
		case domain.MutationDelete:
			result, txErr = l.applyDelete(ctx, items, mlog, intent)
		default:
			txErr = fmt.Errorf("unsupported mutation kind %q", intent.Kind)
		}
		return txErr
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("applying %s: %w", intent.Kind, ErrTimeout)
		}
		return nil, err
	}

	l.logger.WithFields(log.Fields{
		"project":  intent.ProjectID,
		"kind":     intent.Kind,
		"item":     result.ItemID(),
		"mutation": result.MutationID,
	}).Info("mutation committed")
	return result, nil
}

// Children returns the ordered sibling group. A nil parentID selects
// root-level items.
func (l *Ledger) Children(ctx context.Context, projectID string, parentID *string) ([]*domain.WorkItem, error) {
	items := repository.NewSQLiteWorkItemRepo(l.db)
	return items.ListChildren(ctx, projectID, parentID)
}

// Item returns the committed state of a single work item.
func (l *Ledger) Item(ctx context.Context, id string) (*domain.WorkItem, error) {
	items := repository.NewSQLiteWorkItemRepo(l.db)
	return items.GetByID(ctx, id)
}

// Snapshot returns every item of the project, ordered by sibling group. It
// backs client refreshes after a conflict.
func (l *Ledger) Snapshot(ctx context.Context, projectID string) ([]*domain.WorkItem, error) {
	items := repository.NewSQLiteWorkItemRepo(l.db)
	return items.ListByProject(ctx, projectID)
}

// History returns the most recent audit-log entries for a project.
func (l *Ledger) History(ctx context.Context, projectID string, limit int) ([]*domain.MutationLogEntry, error) {
	mlog := repository.NewSQLiteMutationLogRepo(l.db)
	return mlog.ListByProject(ctx, projectID, limit)
}

func (l *Ledger) projectLock(projectID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[projectID] = m
	}
	return m
}

func (l *Ledger) applyInsert(ctx context.Context, items repository.WorkItemRepo, mlog repository.MutationLogRepo, intent domain.MutationIntent) (*domain.MutationResult, error) {
	if err := validateTarget(ctx, items, intent, nil); err != nil {
		return nil, err
	}

	id := intent.ItemID
	if id == "" {
		id = uuid.New().String()
	}

	key, renormalized, err := l.allocateKey(ctx, items, mlog, intent, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &domain.WorkItem{
		ID:        id,
		ProjectID: intent.ProjectID,
		ParentID:  intent.NewParentID,
		Title:     intent.Title,
		OrderKey:  key,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := items.Create(ctx, item); err != nil {
		return nil, err
	}

	res := &domain.MutationResult{
		MutationID:   uuid.New().String(),
		Kind:         domain.MutationInsert,
		ProjectID:    intent.ProjectID,
		Item:         &domain.ItemState{ID: item.ID, ParentID: item.ParentID, OrderKey: item.OrderKey, Version: item.Version},
		Renormalized: renormalized,
	}
	if err := appendLog(ctx, mlog, res, fmt.Sprintf("inserted %q", intent.Title)); err != nil {
		return nil, err
	}
	return res, nil
}

func (l *Ledger) applyMove(ctx context.Context, items repository.WorkItemRepo, mlog repository.MutationLogRepo, intent domain.MutationIntent) (*domain.MutationResult, error) {
	item, err := items.GetByID(ctx, intent.ItemID)
	if err != nil {
		return nil, err
	}
	if item.ProjectID != intent.ProjectID {
		return nil, domain.NewConflict(domain.ReasonCrossProject, item.ID,
			fmt.Sprintf("item belongs to project %s", item.ProjectID))
	}
	if intent.ExpectedVersion != nil && *intent.ExpectedVersion != item.Version {
		return nil, domain.NewConflict(domain.ReasonVersionMismatch, item.ID,
			fmt.Sprintf("expected version %d, item is at %d", *intent.ExpectedVersion, item.Version))
	}
	if err := validateTarget(ctx, items, intent, item); err != nil {
		return nil, err
	}

	key, renormalized, err := l.allocateKey(ctx, items, mlog, intent, item.ID)
	if err != nil {
		return nil, err
	}

	newVersion := item.Version + 1
	if err := items.UpdateStructure(ctx, item.ID, intent.NewParentID, key, newVersion); err != nil {
		return nil, err
	}

	res := &domain.MutationResult{
		MutationID:   uuid.New().String(),
		Kind:         domain.MutationMove,
		ProjectID:    intent.ProjectID,
		Item:         &domain.ItemState{ID: item.ID, ParentID: intent.NewParentID, OrderKey: key, Version: newVersion},
		Renormalized: renormalized,
	}
	if err := appendLog(ctx, mlog, res, fmt.Sprintf("moved under %s", parentLabel(intent.NewParentID))); err != nil {
		return nil, err
	}
	return res, nil
}

func (l *Ledger) applyDelete(ctx context.Context, items repository.WorkItemRepo, mlog repository.MutationLogRepo, intent domain.MutationIntent) (*domain.MutationResult, error) {
	item, err := items.GetByID(ctx, intent.ItemID)
	if err != nil {
		return nil, err
	}
	if item.ProjectID != intent.ProjectID {
		return nil, domain.NewConflict(domain.ReasonCrossProject, item.ID,
			fmt.Sprintf("item belongs to project %s", item.ProjectID))
	}
	if intent.ExpectedVersion != nil && *intent.ExpectedVersion != item.Version {
		return nil, domain.NewConflict(domain.ReasonVersionMismatch, item.ID,
			fmt.Sprintf("expected version %d, item is at %d", *intent.ExpectedVersion, item.Version))
	}

	policy := intent.Policy
	if policy == "" {
		policy = domain.DeletePromote
	}

	res := &domain.MutationResult{
		MutationID: uuid.New().String(),
		Kind:       domain.MutationDelete,
		ProjectID:  intent.ProjectID,
	}

	switch policy {
	case domain.DeletePromote:
		promoted, renormalized, err := l.promoteChildren(ctx, items, mlog, item)
		if err != nil {
			return nil, err
		}
		res.Promoted = promoted
		res.Renormalized = renormalized
		if err := items.Delete(ctx, item.ID); err != nil {
			return nil, err
		}
		res.Removed = []string{item.ID}

	case domain.DeleteCascade:
		removed, err := deleteSubtree(ctx, items, item)
		if err != nil {
			return nil, err
		}
		res.Removed = removed

	default:
		return nil, fmt.Errorf("unsupported delete policy %q", policy)
	}

	if err := appendLog(ctx, mlog, res, fmt.Sprintf("deleted %s (%s policy, %d removed)", item.ID, policy, len(res.Removed))); err != nil {
		return nil, err
	}
	return res, nil
}

// promoteChildren re-points the deleted item's children at its parent,
// appending them after the current last sibling in their existing order.
// Appending never exhausts the allocator in practice (tail keys stay short),
// but the renormalization path is still honored for completeness.
func (l *Ledger) promoteChildren(ctx context.Context, items repository.WorkItemRepo, mlog repository.MutationLogRepo, item *domain.WorkItem) ([]domain.ItemState, []domain.ItemState, error) {
	children, err := items.ListChildren(ctx, item.ProjectID, &item.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(children) == 0 {
		return nil, nil, nil
	}

	lastKey := ""
	last, err := lastChildExcluding(ctx, items, item.ProjectID, item.ParentID, item.ID)
	if err != nil {
		return nil, nil, err
	}
	if last != nil {
		lastKey = last.OrderKey
	}

	var renormalized []domain.ItemState
	promoted := make([]domain.ItemState, 0, len(children))
	for _, child := range children {
		key, err := orderkey.Between(lastKey, "")
		if errors.Is(err, orderkey.ErrExhausted) {
			states, renormErr := l.renormalizeGroup(ctx, items, mlog, item.ProjectID, item.ParentID, item.ID)
			if renormErr != nil {
				return nil, nil, renormErr
			}
			renormalized = append(renormalized, states...)
			// Children promoted earlier in this loop were re-keyed too.
			for i := range promoted {
				for _, s := range states {
					if s.ID == promoted[i].ID {
						promoted[i] = s
					}
				}
			}
			last, lastErr := lastChildExcluding(ctx, items, item.ProjectID, item.ParentID, item.ID)
			if lastErr != nil {
				return nil, nil, lastErr
			}
			lastKey = ""
			if last != nil {
				lastKey = last.OrderKey
			}
			key, err = orderkey.Between(lastKey, "")
		}
		if err != nil {
			return nil, nil, err
		}
		newVersion := child.Version + 1
		if err := items.UpdateStructure(ctx, child.ID, item.ParentID, key, newVersion); err != nil {
			return nil, nil, err
		}
		promoted = append(promoted, domain.ItemState{ID: child.ID, ParentID: item.ParentID, OrderKey: key, Version: newVersion})
		lastKey = key
	}
	return promoted, renormalized, nil
}

// deleteSubtree removes item and all its descendants, deepest first so child
// rows never outlive their parent reference.
func deleteSubtree(ctx context.Context, items repository.WorkItemRepo, item *domain.WorkItem) ([]string, error) {
	var order []string
	var walk func(id string) error
	walk = func(id string) error {
		children, err := items.ListChildren(ctx, item.ProjectID, &id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(child.ID); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}
	if err := walk(item.ID); err != nil {
		return nil, err
	}
	for _, id := range order {
		if err := items.Delete(ctx, id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func appendLog(ctx context.Context, mlog repository.MutationLogRepo, res *domain.MutationResult, detail string) error {
	return mlog.Append(ctx, &domain.MutationLogEntry{
		ID:          res.MutationID,
		ProjectID:   res.ProjectID,
		ItemID:      res.ItemID(),
		Kind:        res.Kind,
		Detail:      detail,
		CommittedAt: time.Now().UTC(),
	})
}

func parentLabel(parentID *string) string {
	if parentID == nil {
		return "root"
	}
	return *parentID
}
