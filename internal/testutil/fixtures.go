package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/alexanderramin/treeline/internal/domain"
)

// Project options
type ProjectOption func(*domain.Project)

func WithProjectID(id string) ProjectOption {
	return func(p *domain.Project) {
		p.ID = id
	}
}

func NewTestProject(name string, opts ...ProjectOption) *domain.Project {
	now := time.Now().UTC()
	p := &domain.Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkItem options
type ItemOption func(*domain.WorkItem)

func WithItemID(id string) ItemOption {
	return func(w *domain.WorkItem) {
		w.ID = id
	}
}

func WithParent(id string) ItemOption {
	return func(w *domain.WorkItem) {
		w.ParentID = &id
	}
}

func WithOrderKey(k string) ItemOption {
	return func(w *domain.WorkItem) {
		w.OrderKey = k
	}
}

func WithVersion(v int64) ItemOption {
	return func(w *domain.WorkItem) {
		w.Version = v
	}
}

func NewTestItem(projectID, title, orderKey string, opts ...ItemOption) *domain.WorkItem {
	now := time.Now().UTC()
	w := &domain.WorkItem{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Title:     title,
		OrderKey:  orderKey,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}
