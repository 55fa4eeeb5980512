// Package sync keeps a client-side projection of a project tree converged
// with the mutation ledger. User actions are applied locally first, then
// shipped to the server; authoritative responses are always reconciled back,
// so the projection may be briefly ahead of the server but never permanently
// diverged from it.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/alexanderramin/treeline/internal/conflict"
	"github.com/alexanderramin/treeline/internal/domain"
)

// Transport delivers mutation intents to the ledger and brings authoritative
// state back. Propose returns *domain.ConflictError for structural and
// version rejections; any other error is a transport failure and is retried.
type Transport interface {
	Propose(ctx context.Context, intent domain.MutationIntent) (*domain.MutationResult, error)
	Fetch(ctx context.Context, projectID string) ([]*domain.WorkItem, error)
}

// Config tunes transport retry behavior and event delivery.
type Config struct {
	RetryInitial time.Duration
	RetryMax     time.Duration
	MaxAttempts  int
	EventBuffer  int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		RetryInitial: 250 * time.Millisecond,
		RetryMax:     10 * time.Second,
		MaxAttempts:  5,
		EventBuffer:  256,
	}
}

// itemQueue serializes mutations per item: one in flight, at most one
// waiting. A newer waiting intent supersedes the previous unsent one.
type itemQueue struct {
	inflight *domain.PendingMutation
	waiting  *domain.PendingMutation
}

// Engine is the optimistic sync engine for one client.
type Engine struct {
	transport  Transport
	policy     conflict.Policy
	projection *Projection
	logger     *log.Logger
	cfg        Config

	events chan domain.SyncEvent

	mu     stdsync.Mutex
	queues map[string]*itemQueue
	wg     stdsync.WaitGroup
}

// NewEngine creates an Engine over the given transport. A nil policy falls
// back to conflict.LastServerWins.
func NewEngine(transport Transport, policy conflict.Policy, logger *log.Logger, cfg Config) *Engine {
	if policy == nil {
		policy = conflict.LastServerWins{}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.RetryInitial <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		transport:  transport,
		policy:     policy,
		projection: NewProjection(),
		logger:     logger,
		cfg:        cfg,
		events:     make(chan domain.SyncEvent, cfg.EventBuffer),
		queues:     make(map[string]*itemQueue),
	}
}

// Projection exposes the local tree for rendering. Read-only by convention.
func (e *Engine) Projection() *Projection {
	return e.projection
}

// Events surfaces pending-mutation status changes for the UI layer.
func (e *Engine) Events() <-chan domain.SyncEvent {
	return e.events
}

// Refresh replaces the projection with the server's current snapshot.
func (e *Engine) Refresh(ctx context.Context, projectID string) error {
	items, err := e.transport.Fetch(ctx, projectID)
	if err != nil {
		return fmt.Errorf("refreshing projection: %w", err)
	}
	e.projection.Load(items)
	return nil
}

// Propose applies the intent to the local projection immediately and queues
// it for the server. Mutations for the same item are serialized; mutations
// for different items fly concurrently.
//
// The returned PendingMutation is owned by the engine until it resolves: the
// dispatch goroutine writes its Status, Reason and Retried fields. Track
// progress through Events, and read the fields themselves only after the
// mutation's terminal event has been received or after Wait returns.
func (e *Engine) Propose(ctx context.Context, intent domain.MutationIntent) (*domain.PendingMutation, error) {
	if intent.ProjectID == "" {
		return nil, fmt.Errorf("mutation intent missing project id")
	}
	if intent.Kind == domain.MutationInsert && intent.ItemID == "" {
		intent.ItemID = uuid.New().String()
	}
	if intent.Kind != domain.MutationInsert && intent.ExpectedVersion == nil {
		if it, ok := e.projection.Get(intent.ItemID); ok {
			v := it.Version
			intent.ExpectedVersion = &v
		}
	}

	e.projection.applyIntent(intent)

	pm := &domain.PendingMutation{
		ID:         uuid.New().String(),
		Intent:     intent,
		Status:     domain.StatusPending,
		EnqueuedAt: time.Now().UTC(),
	}

	e.mu.Lock()
	q, ok := e.queues[intent.ItemID]
	if !ok {
		q = &itemQueue{}
		e.queues[intent.ItemID] = q
	}
	if q.inflight == nil {
		q.inflight = pm
		e.wg.Add(1)
		go e.dispatch(ctx, pm)
	} else {
		if q.waiting != nil {
			superseded := q.waiting
			superseded.Status = domain.StatusSuperseded
			e.emit(domain.SyncEvent{ItemID: superseded.Intent.ItemID, Status: domain.StatusSuperseded})
		}
		q.waiting = pm
	}
	e.mu.Unlock()

	return pm, nil
}

// Wait blocks until every queued mutation has resolved. Test and shutdown
// helper.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// dispatch sends one pending mutation and reconciles its outcome. Once a
// request is on the wire its response is always folded back in, even if a
// newer intent has been queued meanwhile: the server may have committed it.
func (e *Engine) dispatch(ctx context.Context, pm *domain.PendingMutation) {
	defer e.finish(ctx, pm)

	backoff := e.cfg.RetryInitial
	for attempt := 1; ; attempt++ {
		res, err := e.transport.Propose(ctx, pm.Intent)
		if err == nil {
			e.confirm(pm, res)
			return
		}

		var conflictErr *domain.ConflictError
		if errors.As(err, &conflictErr) {
			e.resolve(ctx, pm, conflictErr)
			return
		}

		if attempt >= e.cfg.MaxAttempts {
			pm.Status = domain.StatusDegraded
			e.logger.WithFields(log.Fields{
				"item":     pm.Intent.ItemID,
				"attempts": attempt,
			}).Warn("transport retries exhausted, sync degraded")
			e.emit(domain.SyncEvent{ItemID: pm.Intent.ItemID, Status: domain.StatusDegraded})
			return
		}

		e.logger.WithFields(log.Fields{
			"item":    pm.Intent.ItemID,
			"attempt": attempt,
			"backoff": backoff,
		}).Debug("transport failure, retrying")

		select {
		case <-ctx.Done():
			pm.Status = domain.StatusDegraded
			e.emit(domain.SyncEvent{ItemID: pm.Intent.ItemID, Status: domain.StatusDegraded})
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > e.cfg.RetryMax {
			backoff = e.cfg.RetryMax
		}
	}
}

func (e *Engine) confirm(pm *domain.PendingMutation, res *domain.MutationResult) {
	e.projection.ApplyResult(res)
	pm.Status = domain.StatusConfirmed
	e.emit(domain.SyncEvent{ItemID: pm.Intent.ItemID, Status: domain.StatusConfirmed})
}

// resolve hands a rejection to the conflict policy. Every rejected mutation
// ends in either one bounded automatic retry or a visible status event,
// never a silent drop.
func (e *Engine) resolve(ctx context.Context, pm *domain.PendingMutation, conflictErr *domain.ConflictError) {
	pm.Status = domain.StatusRejected
	pm.Reason = conflictErr.Reason

	resolution := e.policy.Resolve(*pm, conflictErr)

	if resolution.Decision == conflict.Retry && !pm.Retried {
		pm.Retried = true
		if err := e.Refresh(ctx, pm.Intent.ProjectID); err != nil {
			e.logger.WithField("item", pm.Intent.ItemID).WithError(err).Warn("refresh before retry failed")
		} else {
			retry := e.rebuildIntent(pm.Intent)
			res, err := e.transport.Propose(ctx, retry)
			if err == nil {
				pm.Intent = retry
				e.confirm(pm, res)
				return
			}
			var again *domain.ConflictError
			if errors.As(err, &again) {
				pm.Reason = again.Reason
				conflictErr = again
			}
		}
		// The single automatic retry is spent; ask the policy again so the
		// discard still carries its redo offer.
		resolution = e.policy.Resolve(*pm, conflictErr)
	}

	if err := e.Refresh(ctx, pm.Intent.ProjectID); err != nil {
		e.logger.WithField("item", pm.Intent.ItemID).WithError(err).Warn("refresh after rejection failed")
	}
	pm.Status = domain.StatusRejected
	e.emit(domain.SyncEvent{
		ItemID: pm.Intent.ItemID,
		Status: domain.StatusRejected,
		Reason: pm.Reason,
		Redo:   resolution.Redo,
	})
}

// rebuildIntent re-anchors an intent against the refreshed projection:
// neighbors that disappeared are dropped, and the expected version is
// re-read from current state.
func (e *Engine) rebuildIntent(intent domain.MutationIntent) domain.MutationIntent {
	rebuilt := intent
	if intent.LeftNeighborID != nil {
		if _, ok := e.projection.Get(*intent.LeftNeighborID); !ok {
			rebuilt.LeftNeighborID = nil
		}
	}
	if intent.RightNeighborID != nil {
		if _, ok := e.projection.Get(*intent.RightNeighborID); !ok {
			rebuilt.RightNeighborID = nil
		}
	}
	if intent.Kind != domain.MutationInsert {
		if it, ok := e.projection.Get(intent.ItemID); ok {
			v := it.Version
			rebuilt.ExpectedVersion = &v
		}
	}
	return rebuilt
}

// finish releases the item's queue slot and launches the next waiting
// mutation, if any.
func (e *Engine) finish(ctx context.Context, pm *domain.PendingMutation) {
	e.mu.Lock()
	q := e.queues[pm.Intent.ItemID]
	if q != nil {
		q.inflight = nil
		if q.waiting != nil {
			next := q.waiting
			q.waiting = nil
			q.inflight = next
			e.wg.Add(1)
			go e.dispatch(ctx, next)
		} else {
			delete(e.queues, pm.Intent.ItemID)
		}
	}
	e.mu.Unlock()
	e.wg.Done()
}

func (e *Engine) emit(ev domain.SyncEvent) {
	select {
	case e.events <- ev:
	default:
		e.logger.WithFields(log.Fields{
			"item":   ev.ItemID,
			"status": ev.Status,
		}).Warn("event buffer full, dropping sync event")
	}
}
