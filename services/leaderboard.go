package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// LeaderboardWriter receives the mirrored point totals.
type LeaderboardWriter interface {
	WriteLeaderboardEntry(ctx context.Context, e models.LeaderboardEntry) error
}

// LeaderboardReader answers ranking queries.
type LeaderboardReader interface {
	TopEntries(ctx context.Context, n int) ([]models.LeaderboardEntry, error)
	Standing(ctx context.Context, userID uint) (models.Standing, error)
}

// Leaderboard is a ranked projection of account points.
type Leaderboard interface {
	LeaderboardWriter
	LeaderboardReader
}

// LeaderboardCache is a derived board that can be reloaded from the source of truth.
type LeaderboardCache interface {
	Leaderboard
	// Rebuild replaces the whole ranking with entries.
	Rebuild(ctx context.Context, entries []models.LeaderboardEntry) error
	// Synced reports whether the board still holds a complete ranking.
	Synced(ctx context.Context) (bool, error)
}

const (
	topCachePrefix = "leaderboard:top:"
	topCacheTTL    = 30 * time.Second
)

var errNoLeaderboard = errors.New("no leaderboard configured")

type cachedBoard struct {
	LeaderboardCache
	stale atomic.Bool
}

// LeaderboardChain writes every entry to the source board and all caches. Reads prefer a cache
// that is known to be complete. A cache that missed a write, or lost its data, is rebuilt from
// the source before it serves again; until then reads fall through to the source.
// Top lists are cached in redis and invalidated on every write.
type LeaderboardChain struct {
	source Leaderboard
	caches []*cachedBoard
	// writes share the lock, rebuilds hold it alone
	mu sync.RWMutex
}

// NewLeaderboardChain ranks from source and fronts it with caches, in read preference order.
// Nil caches are skipped.
func NewLeaderboardChain(source Leaderboard, caches ...LeaderboardCache) *LeaderboardChain {
	c := &LeaderboardChain{source: source}
	for _, b := range caches {
		if b != nil {
			c.caches = append(c.caches, &cachedBoard{LeaderboardCache: b})
		}
	}
	return c
}

func (c *LeaderboardChain) WriteLeaderboardEntry(ctx context.Context, e models.LeaderboardEntry) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var errs []error
	if c.source != nil {
		if err := c.source.WriteLeaderboardEntry(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", c.source, err))
		}
	}
	for _, cb := range c.caches {
		if err := cb.WriteLeaderboardEntry(ctx, e); err != nil {
			cb.stale.Store(true)
			errs = append(errs, fmt.Errorf("%T: %w", cb.LeaderboardCache, err))
		}
	}
	utils.InvalidateByPrefix(topCachePrefix)
	return errors.Join(errs...)
}

// Sync reloads every cache from the source. It runs at startup.
func (c *LeaderboardChain) Sync(ctx context.Context) error {
	var errs []error
	for _, cb := range c.caches {
		if err := c.rebuild(ctx, cb); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", cb.LeaderboardCache, err))
		}
	}
	return errors.Join(errs...)
}

func (c *LeaderboardChain) rebuild(ctx context.Context, cb *cachedBoard) error {
	if c.source == nil {
		return errNoLeaderboard
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.source.TopEntries(ctx, 0)
	if err != nil {
		return err
	}
	if err := cb.Rebuild(ctx, entries); err != nil {
		cb.stale.Store(true)
		return err
	}
	cb.stale.Store(false)
	utils.InvalidateByPrefix(topCachePrefix)
	utils.Sugar.Infof("leaderboard %T rebuilt with %d entries", cb.LeaderboardCache, len(entries))
	return nil
}

// ready reports whether cb may serve a read, rebuilding it first when it missed a write or
// no longer holds a complete ranking.
func (c *LeaderboardChain) ready(ctx context.Context, cb *cachedBoard) bool {
	if !cb.stale.Load() {
		synced, err := cb.Synced(ctx)
		if err != nil {
			utils.Sugar.Warnf("leaderboard %T unavailable: %v", cb.LeaderboardCache, err)
			cb.stale.Store(true)
			return false
		}
		if synced {
			return true
		}
	}
	if err := c.rebuild(ctx, cb); err != nil {
		utils.Sugar.Warnf("leaderboard %T rebuild failed: %v", cb.LeaderboardCache, err)
		return false
	}
	return true
}

func (c *LeaderboardChain) TopEntries(ctx context.Context, n int) ([]models.LeaderboardEntry, error) {
	key := fmt.Sprintf("%s%d", topCachePrefix, n)
	var cached []models.LeaderboardEntry
	if utils.CacheGetJSON(key, &cached) {
		return cached, nil
	}

	for _, cb := range c.caches {
		if !c.ready(ctx, cb) {
			continue
		}
		out, err := cb.TopEntries(ctx, n)
		if err == nil {
			utils.CacheSetJSON(key, out, topCacheTTL)
			return out, nil
		}
		cb.stale.Store(true)
		utils.Sugar.Warnf("leaderboard %T top entries failed: %v", cb.LeaderboardCache, err)
	}
	if c.source == nil {
		return nil, errNoLeaderboard
	}
	out, err := c.source.TopEntries(ctx, n)
	if err != nil {
		utils.Sugar.Warnf("leaderboard %T top entries failed: %v", c.source, err)
		return nil, err
	}
	utils.CacheSetJSON(key, out, topCacheTTL)
	return out, nil
}

func (c *LeaderboardChain) Standing(ctx context.Context, userID uint) (models.Standing, error) {
	for _, cb := range c.caches {
		if !c.ready(ctx, cb) {
			continue
		}
		st, err := cb.Standing(ctx, userID)
		if err == nil {
			return st, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			cb.stale.Store(true)
			utils.Sugar.Warnf("leaderboard %T standing failed: %v", cb.LeaderboardCache, err)
		}
	}
	if c.source == nil {
		return models.Standing{}, errNoLeaderboard
	}
	st, err := c.source.Standing(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		utils.Sugar.Warnf("leaderboard %T standing failed: %v", c.source, err)
	}
	return st, err
}
