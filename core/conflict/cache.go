package conflict

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// SnapshotCache memoizes document snapshots read at immutable refs.
// A nil *SnapshotCache is valid and caches nothing.
type SnapshotCache struct {
	lru *expirable.LRU[string, Snapshot]
	sf  singleflight.Group
}

// NewSnapshotCache returns a cache holding up to size snapshots for ttl.
// It returns nil when size is not positive, which disables caching.
func NewSnapshotCache(size int, ttl time.Duration) *SnapshotCache {
	if size <= 0 {
		return nil
	}
	return &SnapshotCache{
		lru: expirable.NewLRU[string, Snapshot](size, nil, ttl),
	}
}

func snapshotKey(store, table, documentID, ref string) string {
	return strings.Join([]string{store, table, documentID, ref}, "|")
}

// Get returns the cached snapshot for key or loads it.
// Uses singleflight so concurrent misses on one key load once. The shared
// load keeps the first caller's deadline but not its cancellation; a caller
// whose ctx ends stops waiting without failing the others.
func (c *SnapshotCache) Get(ctx context.Context, key string, load func(context.Context) (Snapshot, error)) (Snapshot, error) {
	if c == nil {
		return load(ctx)
	}

	// Fast path
	if s, ok := c.lru.Get(key); ok {
		return s, nil
	}

	// Slow path: load using singleflight to prevent stampedes
	ch := c.sf.DoChan(key, func() (interface{}, error) {
		if s, ok := c.lru.Get(key); ok {
			return s, nil
		}
		lctx, cancel := detach(ctx)
		defer cancel()
		s, err := load(lctx)
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, s)
		return s, nil
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Snapshot{}, r.Err
		}
		return r.Val.(Snapshot), nil
	}
}

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	d := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(d, deadline)
	}
	return context.WithCancel(d)
}

// Len returns the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Purge drops every cached snapshot.
func (c *SnapshotCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}
