/*
Package lock provides an in-process read/write lock per key.

PURPOSE:
  Serializes operations on one account id while letting different accounts
  run in parallel. Writers (withdrawal, closing, realization) take Write;
  admission reads take Read.

OWNERSHIP:
  Go has no goroutine identity, so ownership travels in the context
  returned by Acquire. Passing that context down makes nested acquisition
  of the same key re-entrant:
    held Write, want Write or Read -> no-op
    held Read,  want Read          -> no-op
    held Read,  want Write         -> ErrLockUpgrade (would self-deadlock)

EVICTION:
  Entries are reference counted (holders and waiters) and removed from the
  map when the count drops to zero, so the map stays bounded by the number
  of keys currently in use.

There is no timeout: a holder that never releases starves the key.
*/
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Mode selects the side of the lock.
type Mode int

const (
	Read Mode = iota + 1
	Write
)

func (m Mode) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ErrLockUpgrade is returned when Write is requested on a key the context
// already holds for Read.
var ErrLockUpgrade = errors.New("lock: cannot upgrade read lock to write")

// =============================================================================
// REGISTRY
// =============================================================================

type entry struct {
	rw   sync.RWMutex
	refs int
}

// Registry hands out one RWMutex per key.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Acquire blocks until the key is held in mode. The returned context records
// the ownership; release must be called exactly once (extra calls are no-ops).
func (r *Registry) Acquire(ctx context.Context, key string, mode Mode) (context.Context, func(), error) {
	if mode != Read && mode != Write {
		return ctx, noop, fmt.Errorf("lock: invalid mode %v", mode)
	}
	if err := ctx.Err(); err != nil {
		return ctx, noop, err
	}

	if held, ok := heldMode(ctx, r, key); ok {
		if held == Read && mode == Write {
			return ctx, noop, fmt.Errorf("%w: key %q", ErrLockUpgrade, key)
		}
		return ctx, noop, nil
	}

	e := r.retain(key)
	if mode == Write {
		e.rw.Lock()
	} else {
		e.rw.RLock()
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if mode == Write {
				e.rw.Unlock()
			} else {
				e.rw.RUnlock()
			}
			r.releaseRef(key, e)
		})
	}

	return context.WithValue(ctx, holdingKey{}, &holding{reg: r, key: key, mode: mode, parent: holdingFrom(ctx)}), release, nil
}

// Call runs fn while holding key in mode.
func (r *Registry) Call(ctx context.Context, key string, mode Mode, fn func(ctx context.Context) error) error {
	lockedCtx, release, err := r.Acquire(ctx, key, mode)
	if err != nil {
		return err
	}
	defer release()
	return fn(lockedCtx)
}

// Len returns the number of keys with a holder or waiter.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) retain(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	return e
}

func (r *Registry) releaseRef(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(r.entries, key)
	}
}

func noop() {}

// =============================================================================
// OWNERSHIP IN CONTEXT
// =============================================================================

type holdingKey struct{}

type holding struct {
	reg    *Registry
	key    string
	mode   Mode
	parent *holding
}

func holdingFrom(ctx context.Context) *holding {
	h, _ := ctx.Value(holdingKey{}).(*holding)
	return h
}

// heldMode returns the strongest mode ctx holds on key in r.
func heldMode(ctx context.Context, r *Registry, key string) (Mode, bool) {
	var (
		best  Mode
		found bool
	)
	for h := holdingFrom(ctx); h != nil; h = h.parent {
		if h.reg == r && h.key == key {
			found = true
			if h.mode > best {
				best = h.mode
			}
		}
	}
	return best, found
}

// Holds reports whether ctx already holds key in at least mode.
func (r *Registry) Holds(ctx context.Context, key string, mode Mode) bool {
	held, ok := heldMode(ctx, r, key)
	return ok && held >= mode
}
