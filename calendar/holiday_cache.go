package calendar

import (
	"context"
	"fmt"
	"sync"

	"github.com/warp/settlement-engine/generic"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// HOLIDAY CACHE - Read-through, fully invalidated on any holiday change
// =============================================================================

// HolidayCache memoizes IsHoliday per day. Concurrent misses for the same day
// on the same store collapse into one lookup.
type HolidayCache struct {
	mu         sync.RWMutex
	days       map[generic.Day]bool
	generation uint64
	group      singleflight.Group
}

func NewHolidayCache() *HolidayCache {
	return &HolidayCache{days: make(map[generic.Day]bool)}
}

// IsHoliday answers from the cache or asks store.
func (c *HolidayCache) IsHoliday(ctx context.Context, store generic.HolidayStore, day generic.Day) (bool, error) {
	c.mu.RLock()
	hit, ok := c.days[day]
	gen := c.generation
	c.mu.RUnlock()
	if ok {
		return hit, nil
	}

	// Keyed by store as well: a caller inside a transaction must never wait
	// on a lookup that needs the connection it holds.
	// The shared lookup must outlive any single waiter's cancellation.
	key := fmt.Sprintf("%s@%p", day, store)
	lookupCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return store.IsHoliday(lookupCtx, day)
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		holiday := res.Val.(bool)
		c.mu.Lock()
		if c.generation == gen {
			c.days[day] = holiday
		}
		c.mu.Unlock()
		return holiday, nil
	}
}

// Invalidate drops every cached answer. Lookups already in flight do not
// repopulate the cache.
func (c *HolidayCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.days = make(map[generic.Day]bool)
	c.generation++
}

// Len returns the number of cached days.
func (c *HolidayCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.days)
}
