package sync

import (
	"sort"
	stdsync "sync"

	"github.com/alexanderramin/treeline/internal/domain"
	"github.com/alexanderramin/treeline/internal/orderkey"
)

// Projection is the client's read-mostly copy of a project tree. It is
// patched optimistically when the user acts and overwritten by authoritative
// results as they arrive; nothing outside the sync engine mutates it.
type Projection struct {
	mu    stdsync.RWMutex
	items map[string]*domain.WorkItem
}

// NewProjection creates an empty projection.
func NewProjection() *Projection {
	return &Projection{items: make(map[string]*domain.WorkItem)}
}

// Load replaces the projection's contents with an authoritative snapshot.
func (p *Projection) Load(items []*domain.WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = make(map[string]*domain.WorkItem, len(items))
	for _, it := range items {
		cp := *it
		p.items[it.ID] = &cp
	}
}

// Get returns a copy of the item, if present.
func (p *Projection) Get(id string) (domain.WorkItem, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	it, ok := p.items[id]
	if !ok {
		return domain.WorkItem{}, false
	}
	return *it, true
}

// Children returns copies of the sibling group in order-key order.
func (p *Projection) Children(projectID string, parentID *string) []domain.WorkItem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.childrenLocked(projectID, parentID)
}

func (p *Projection) childrenLocked(projectID string, parentID *string) []domain.WorkItem {
	var out []domain.WorkItem
	for _, it := range p.items {
		if it.ProjectID == projectID && sameParent(it.ParentID, parentID) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderKey < out[j].OrderKey })
	return out
}

// ApplyResult folds an authoritative mutation result into the projection.
// It is idempotent: replaying a result leaves the projection unchanged, and
// states older than what the projection already holds are ignored.
func (p *Projection) ApplyResult(res *domain.MutationResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range res.Removed {
		delete(p.items, id)
	}
	for _, s := range res.Renormalized {
		p.patchLocked(res.ProjectID, s)
	}
	for _, s := range res.Promoted {
		p.patchLocked(res.ProjectID, s)
	}
	if res.Item != nil {
		p.patchLocked(res.ProjectID, *res.Item)
	}
}

func (p *Projection) patchLocked(projectID string, s domain.ItemState) {
	it, ok := p.items[s.ID]
	if !ok {
		// Another client created this item; descriptive fields arrive with
		// the next refresh.
		p.items[s.ID] = &domain.WorkItem{
			ID:        s.ID,
			ProjectID: projectID,
			ParentID:  s.ParentID,
			OrderKey:  s.OrderKey,
			Version:   s.Version,
		}
		return
	}
	if s.Version < it.Version {
		return
	}
	it.ParentID = s.ParentID
	it.OrderKey = s.OrderKey
	it.Version = s.Version
}

// applyIntent applies a mutation optimistically, before the server has seen
// it. Order keys assigned here are provisional; the authoritative result
// overwrites them on confirmation.
func (p *Projection) applyIntent(intent domain.MutationIntent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch intent.Kind {
	case domain.MutationInsert:
		key := p.provisionalKeyLocked(intent)
		p.items[intent.ItemID] = &domain.WorkItem{
			ID:        intent.ItemID,
			ProjectID: intent.ProjectID,
			ParentID:  intent.NewParentID,
			Title:     intent.Title,
			OrderKey:  key,
			Version:   0,
		}

	case domain.MutationMove:
		it, ok := p.items[intent.ItemID]
		if !ok {
			return
		}
		it.ParentID = intent.NewParentID
		it.OrderKey = p.provisionalKeyLocked(intent)

	case domain.MutationDelete:
		it, ok := p.items[intent.ItemID]
		if !ok {
			return
		}
		policy := intent.Policy
		if policy == "" {
			policy = domain.DeletePromote
		}
		children := p.childrenLocked(it.ProjectID, &it.ID)
		if policy == domain.DeleteCascade {
			p.removeSubtreeLocked(it)
			return
		}
		for i := range children {
			child := p.items[children[i].ID]
			child.ParentID = it.ParentID
		}
		delete(p.items, it.ID)
	}
}

func (p *Projection) removeSubtreeLocked(it *domain.WorkItem) {
	for _, child := range p.childrenLocked(it.ProjectID, &it.ID) {
		p.removeSubtreeLocked(p.items[child.ID])
	}
	delete(p.items, it.ID)
}

// provisionalKeyLocked mirrors the ledger's anchoring rule against local
// state. Exhaustion is resolved by renormalizing the local group; the server
// performs its own renormalization independently and its keys win.
func (p *Projection) provisionalKeyLocked(intent domain.MutationIntent) string {
	left, right := p.anchorLocked(intent)
	key, err := orderkey.Between(left, right)
	if err == nil {
		return key
	}
	siblings := p.childrenLocked(intent.ProjectID, intent.NewParentID)
	keys := orderkey.Spread(len(siblings))
	for i := range siblings {
		if it, ok := p.items[siblings[i].ID]; ok && it.ID != intent.ItemID {
			it.OrderKey = keys[i]
		}
	}
	left, right = p.anchorLocked(intent)
	key, err = orderkey.Between(left, right)
	if err != nil {
		// Fall back to the tail; the authoritative key replaces this anyway.
		key, _ = orderkey.Between(p.lastKeyLocked(intent.ProjectID, intent.NewParentID, intent.ItemID), "")
	}
	return key
}

func (p *Projection) anchorLocked(intent domain.MutationIntent) (string, string) {
	siblings := p.childrenLocked(intent.ProjectID, intent.NewParentID)
	live := siblings[:0]
	for _, s := range siblings {
		if s.ID != intent.ItemID {
			live = append(live, s)
		}
	}

	if intent.LeftNeighborID != nil {
		for i, s := range live {
			if s.ID == *intent.LeftNeighborID {
				if i+1 < len(live) {
					return s.OrderKey, live[i+1].OrderKey
				}
				return s.OrderKey, ""
			}
		}
	}
	if intent.RightNeighborID != nil {
		for i, s := range live {
			if s.ID == *intent.RightNeighborID {
				if i > 0 {
					return live[i-1].OrderKey, s.OrderKey
				}
				return "", s.OrderKey
			}
		}
	}
	if len(live) > 0 {
		return live[len(live)-1].OrderKey, ""
	}
	return "", ""
}

func (p *Projection) lastKeyLocked(projectID string, parentID *string, excludeID string) string {
	siblings := p.childrenLocked(projectID, parentID)
	for i := len(siblings) - 1; i >= 0; i-- {
		if siblings[i].ID != excludeID {
			return siblings[i].OrderKey
		}
	}
	return ""
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
