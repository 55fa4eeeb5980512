package sync

import (
	"context"
	"errors"
	"io"
	stdsync "sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderramin/treeline/internal/domain"
)

// fakeTransport scripts server behavior per call and records every proposed
// intent in order.
type fakeTransport struct {
	mu        stdsync.Mutex
	proposals []domain.MutationIntent
	propose   func(call int, intent domain.MutationIntent) (*domain.MutationResult, error)
	snapshot  []*domain.WorkItem
	gate      chan struct{} // when set, Propose blocks until the gate closes
}

func (f *fakeTransport) Propose(ctx context.Context, intent domain.MutationIntent) (*domain.MutationResult, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.proposals = append(f.proposals, intent)
	call := len(f.proposals)
	f.mu.Unlock()
	return f.propose(call, intent)
}

func (f *fakeTransport) Fetch(ctx context.Context, projectID string) ([]*domain.WorkItem, error) {
	return f.snapshot, nil
}

func (f *fakeTransport) proposed() []domain.MutationIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.MutationIntent, len(f.proposals))
	copy(out, f.proposals)
	return out
}

func newTestEngine(transport Transport) *Engine {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return NewEngine(transport, nil, logger, Config{
		RetryInitial: time.Millisecond,
		RetryMax:     5 * time.Millisecond,
		MaxAttempts:  3,
		EventBuffer:  32,
	})
}

func drainEvents(e *Engine) []domain.SyncEvent {
	var events []domain.SyncEvent
	for {
		select {
		case ev := <-e.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestEngine_InsertConfirmedReconcilesAuthoritativeKey(t *testing.T) {
	transport := &fakeTransport{
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			return &domain.MutationResult{
				Kind:      intent.Kind,
				ProjectID: intent.ProjectID,
				Item:      &domain.ItemState{ID: intent.ItemID, OrderKey: "server-assigned-Z", Version: 0},
			}, nil
		},
	}
	e := newTestEngine(transport)

	pm, err := e.Propose(context.Background(), domain.MutationIntent{
		Kind:      domain.MutationInsert,
		ProjectID: "p1",
		Title:     "Task",
	})
	require.NoError(t, err)
	require.NotEmpty(t, pm.Intent.ItemID, "insert must be assigned an id before going optimistic")

	// Visible immediately, before the server answers anything.
	_, ok := e.Projection().Get(pm.Intent.ItemID)
	assert.True(t, ok)

	e.Wait()
	assert.Equal(t, domain.StatusConfirmed, pm.Status)

	item, ok := e.Projection().Get(pm.Intent.ItemID)
	require.True(t, ok)
	assert.Equal(t, "server-assigned-Z", item.OrderKey)

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusConfirmed, events[0].Status)
}

func TestEngine_MoveFillsExpectedVersionFromProjection(t *testing.T) {
	transport := &fakeTransport{
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			return &domain.MutationResult{
				Kind:      intent.Kind,
				ProjectID: intent.ProjectID,
				Item:      &domain.ItemState{ID: intent.ItemID, OrderKey: "k", Version: 4},
			}, nil
		},
	}
	e := newTestEngine(transport)
	e.Projection().Load([]*domain.WorkItem{
		{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 3},
	})

	_, err := e.Propose(context.Background(), domain.MutationIntent{
		Kind:      domain.MutationMove,
		ProjectID: "p1",
		ItemID:    "a",
	})
	require.NoError(t, err)
	e.Wait()

	proposals := transport.proposed()
	require.Len(t, proposals, 1)
	require.NotNil(t, proposals[0].ExpectedVersion)
	assert.Equal(t, int64(3), *proposals[0].ExpectedVersion)
}

func TestEngine_RejectionDiscardsAndOffersRedo(t *testing.T) {
	transport := &fakeTransport{
		snapshot: []*domain.WorkItem{
			{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 5},
		},
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			return nil, domain.NewConflict(domain.ReasonVersionMismatch, intent.ItemID, "stale")
		},
	}
	e := newTestEngine(transport)
	e.Projection().Load([]*domain.WorkItem{
		{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 2},
	})

	pm, err := e.Propose(context.Background(), domain.MutationIntent{
		Kind:        domain.MutationMove,
		ProjectID:   "p1",
		ItemID:      "a",
		NewParentID: nil,
	})
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, domain.StatusRejected, pm.Status)
	assert.Equal(t, domain.ReasonVersionMismatch, pm.Reason)

	// Projection was refreshed to server truth.
	a, ok := e.Projection().Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(5), a.Version)

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusRejected, events[0].Status)
	assert.Equal(t, domain.ReasonVersionMismatch, events[0].Reason)
	require.NotNil(t, events[0].Redo, "discarded mutation must surface a redo offer")
	assert.Equal(t, "a", events[0].Redo.ItemID)
}

func TestEngine_StaleInsertionPointRetriedOnce(t *testing.T) {
	transport := &fakeTransport{
		// The left neighbor is gone from server state.
		snapshot: []*domain.WorkItem{
			{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 1},
		},
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			if call == 1 {
				return nil, domain.NewConflict(domain.ReasonStaleInsertionPoint, intent.ItemID, "neighbor vanished")
			}
			return &domain.MutationResult{
				Kind:      intent.Kind,
				ProjectID: intent.ProjectID,
				Item:      &domain.ItemState{ID: intent.ItemID, ParentID: intent.NewParentID, OrderKey: "k", Version: 2},
			}, nil
		},
	}
	e := newTestEngine(transport)
	e.Projection().Load([]*domain.WorkItem{
		{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 1},
		{ID: "gone", ProjectID: "p1", OrderKey: "V", Version: 0},
	})

	gone := "gone"
	pm, err := e.Propose(context.Background(), domain.MutationIntent{
		Kind:           domain.MutationMove,
		ProjectID:      "p1",
		ItemID:         "a",
		LeftNeighborID: &gone,
	})
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, domain.StatusConfirmed, pm.Status)
	assert.True(t, pm.Retried)

	proposals := transport.proposed()
	require.Len(t, proposals, 2, "exactly one automatic retry")
	assert.NotNil(t, proposals[0].LeftNeighborID)
	assert.Nil(t, proposals[1].LeftNeighborID, "vanished neighbor must be dropped on retry")

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusConfirmed, events[0].Status)
}

func TestEngine_StaleRetryFailsThenDiscards(t *testing.T) {
	transport := &fakeTransport{
		snapshot: []*domain.WorkItem{},
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			return nil, domain.NewConflict(domain.ReasonStaleInsertionPoint, intent.ItemID, "still stale")
		},
	}
	e := newTestEngine(transport)
	e.Projection().Load([]*domain.WorkItem{
		{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 1},
	})

	pm, err := e.Propose(context.Background(), domain.MutationIntent{
		Kind:      domain.MutationMove,
		ProjectID: "p1",
		ItemID:    "a",
	})
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, domain.StatusRejected, pm.Status)
	require.Len(t, transport.proposed(), 2, "retry budget is one, then give up")

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusRejected, events[0].Status)
	require.NotNil(t, events[0].Redo)
}

// Status fields on a returned pending mutation are engine-owned while the
// mutation is in flight; receiving its terminal event is enough ordering to
// read them afterwards, without calling Wait.
func TestEngine_StatusReadableAfterTerminalEvent(t *testing.T) {
	gate := make(chan struct{})
	transport := &fakeTransport{
		gate: gate,
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			return &domain.MutationResult{
				Kind:      intent.Kind,
				ProjectID: intent.ProjectID,
				Item:      &domain.ItemState{ID: intent.ItemID, OrderKey: "k", Version: 0},
			}, nil
		},
	}
	e := newTestEngine(transport)

	pm, err := e.Propose(context.Background(), domain.MutationIntent{
		Kind:      domain.MutationInsert,
		ProjectID: "p1",
		Title:     "Task",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pm.Status)

	close(gate)
	ev := <-e.Events()
	assert.Equal(t, domain.StatusConfirmed, ev.Status)
	assert.Equal(t, domain.StatusConfirmed, pm.Status)
	e.Wait()
}

func TestEngine_TransportFailureDegradesAfterRetries(t *testing.T) {
	transport := &fakeTransport{
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	e := newTestEngine(transport)

	pm, err := e.Propose(context.Background(), domain.MutationIntent{
		Kind:      domain.MutationInsert,
		ProjectID: "p1",
		Title:     "offline",
	})
	require.NoError(t, err)
	e.Wait()

	assert.Equal(t, domain.StatusDegraded, pm.Status)
	assert.Len(t, transport.proposed(), 3)

	// The optimistic change survives locally while sync is degraded.
	_, ok := e.Projection().Get(pm.Intent.ItemID)
	assert.True(t, ok)

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusDegraded, events[0].Status)
}

func TestEngine_NewerWaitingMutationSupersedesOlder(t *testing.T) {
	gate := make(chan struct{})
	transport := &fakeTransport{
		gate: gate,
		propose: func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
			return &domain.MutationResult{
				Kind:      intent.Kind,
				ProjectID: intent.ProjectID,
				Item:      &domain.ItemState{ID: intent.ItemID, ParentID: intent.NewParentID, OrderKey: "k", Version: 1},
			}, nil
		},
	}
	e := newTestEngine(transport)
	e.Projection().Load([]*domain.WorkItem{
		{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 0},
		{ID: "x", ProjectID: "p1", OrderKey: "V", Version: 0},
		{ID: "y", ProjectID: "p1", OrderKey: "b", Version: 0},
	})
	ctx := context.Background()

	x, y := "x", "y"
	first, err := e.Propose(ctx, domain.MutationIntent{Kind: domain.MutationMove, ProjectID: "p1", ItemID: "a", NewParentID: &x})
	require.NoError(t, err)
	second, err := e.Propose(ctx, domain.MutationIntent{Kind: domain.MutationMove, ProjectID: "p1", ItemID: "a", NewParentID: &y})
	require.NoError(t, err)
	third, err := e.Propose(ctx, domain.MutationIntent{Kind: domain.MutationMove, ProjectID: "p1", ItemID: "a"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSuperseded, second.Status)

	close(gate)
	e.Wait()

	assert.Equal(t, domain.StatusConfirmed, first.Status)
	assert.Equal(t, domain.StatusConfirmed, third.Status)

	// The superseded intent never reached the wire.
	proposals := transport.proposed()
	require.Len(t, proposals, 2)
	require.NotNil(t, proposals[0].NewParentID)
	assert.Equal(t, "x", *proposals[0].NewParentID)
	assert.Nil(t, proposals[1].NewParentID)
}

func TestEngine_DifferentItemsFlyConcurrently(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})
	transport := &fakeTransport{}
	transport.propose = func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
		return &domain.MutationResult{
			Kind:      intent.Kind,
			ProjectID: intent.ProjectID,
			Item:      &domain.ItemState{ID: intent.ItemID, OrderKey: "k", Version: 1},
		}, nil
	}
	base := transport.propose
	transport.propose = func(call int, intent domain.MutationIntent) (*domain.MutationResult, error) {
		started <- intent.ItemID
		<-release
		return base(call, intent)
	}

	e := newTestEngine(transport)
	e.Projection().Load([]*domain.WorkItem{
		{ID: "a", ProjectID: "p1", OrderKey: "G", Version: 0},
		{ID: "b", ProjectID: "p1", OrderKey: "V", Version: 0},
	})
	ctx := context.Background()

	_, err := e.Propose(ctx, domain.MutationIntent{Kind: domain.MutationMove, ProjectID: "p1", ItemID: "a"})
	require.NoError(t, err)
	_, err = e.Propose(ctx, domain.MutationIntent{Kind: domain.MutationMove, ProjectID: "p1", ItemID: "b"})
	require.NoError(t, err)

	// Both requests are on the wire at the same time.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("mutations for different items did not dispatch concurrently")
		}
	}
	assert.True(t, seen["a"] && seen["b"])

	close(release)
	e.Wait()
}
