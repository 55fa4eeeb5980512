// Package cache keeps recently read sibling groups in redis so the hot read
// path (tree rendering polls) can skip SQLite. Entries are invalidated on
// every commit that touches the group, so a hit is at most TTL-stale only
// when invalidation itself failed.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/alexanderramin/treeline/internal/domain"
)

const childrenPrefix = "ch"

// envelope is the stored JSON payload.
type envelope struct {
	CachedAt time.Time          `json:"cachedAt"`
	Items    []*domain.WorkItem `json:"items"`
}

// Children caches ordered sibling groups keyed by (project, parent).
type Children struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewChildren creates a cache over the given redis client.
func NewChildren(rdb *redis.Client, ttl time.Duration, logger *log.Logger) *Children {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Children{rdb: rdb, ttl: ttl, logger: logger}
}

func groupKey(projectID string, parentID *string) string {
	parent := "root"
	if parentID != nil {
		parent = *parentID
	}
	return childrenPrefix + ":" + projectID + ":" + parent
}

// Get returns the cached group and whether it was present. Cache errors are
// logged and reported as misses; reads never fail because redis did.
func (c *Children) Get(ctx context.Context, projectID string, parentID *string) ([]*domain.WorkItem, bool) {
	raw, err := c.rdb.Get(ctx, groupKey(projectID, parentID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("children cache read failed")
		}
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.WithError(err).Warn("children cache entry corrupt, ignoring")
		return nil, false
	}
	return env.Items, true
}

// Set stores the group with the configured TTL.
func (c *Children) Set(ctx context.Context, projectID string, parentID *string, items []*domain.WorkItem) {
	raw, err := json.Marshal(envelope{CachedAt: time.Now().UTC(), Items: items})
	if err != nil {
		c.logger.WithError(err).Warn("children cache encode failed")
		return
	}
	if err := c.rdb.Set(ctx, groupKey(projectID, parentID), raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("children cache write failed")
	}
}

// Invalidate drops the cached entries for every sibling group a committed
// mutation touched.
func (c *Children) Invalidate(ctx context.Context, projectID string, parentIDs ...*string) {
	seen := make(map[string]struct{}, len(parentIDs))
	for _, parentID := range parentIDs {
		key := groupKey(projectID, parentID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			c.logger.WithError(err).Warn("children cache invalidation failed")
		}
	}
}
