package container

import (
	"sync"
	"sync/atomic"
)

// ── Lifecycle state ───────────────────────────────────────────────────────────

// State tracks how far a component instance has progressed through its
// lifecycle.
type State uint8

const (
	StateNotStarted State = iota
	StateInstantiated
	StatePopulating
	StateInitialized
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateInstantiated:
		return "instantiated"
	case StatePopulating:
		return "populating"
	case StateInitialized:
		return "initialized"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// ── Instance record ───────────────────────────────────────────────────────────

// record tracks one construction of one component: the working instance, its
// lifecycle state, and the early-reference bookkeeping used inside cycles.
// The early* fields are only touched under the cache lock.
type record struct {
	def   *Definition
	state atomic.Int32

	// instance is the raw object the factory returned.
	instance any

	// final is the committed external identity, set at promotion.
	final any

	// Early exposure: set when a cycle peer materialized a reference to this
	// instance before its construction finished.
	earlyDone bool
	earlyRef  any
	earlyErr  error

	// earlyPath is the cycle path that triggered the exposure, kept for the
	// commit-time identity check's error message.
	earlyPath []string
}

func newRecord(def *Definition) *record {
	return &record{def: def}
}

func (r *record) setState(s State) { r.state.Store(int32(s)) }
func (r *record) getState() State  { return State(r.state.Load()) }

// ── Tiered singleton cache ────────────────────────────────────────────────────

// materializer produces the early reference for an in-progress instance,
// applying the substitution subset of the processor chain.
type materializer func() (any, error)

type factoryEntry struct {
	rec *record
	fn  materializer
}

// tieredCache is the staged-visibility cache for singletons.
//
// Tier 1 (finished) holds committed instances, readable without the lock.
// Tier 2 (early) holds references handed out to cycle peers mid-construction.
// Tier 3 (factories) holds materializers for instances that exist but have
// not been requested by a peer yet. An id lives in at most one tier, and only
// moves up: factory to early to finished.
type tieredCache struct {
	finished sync.Map // id → *record

	mu        sync.Mutex
	early     map[string]*record
	factories map[string]factoryEntry
	order     []string // promotion order, drives reverse teardown
	destroyed map[string]struct{}
}

func newTieredCache() *tieredCache {
	return &tieredCache{
		early:     make(map[string]*record),
		factories: make(map[string]factoryEntry),
		destroyed: make(map[string]struct{}),
	}
}

// getFinished returns the committed record for id, lock-free.
func (c *tieredCache) getFinished(id string) (*record, bool) {
	v, ok := c.finished.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

// putFactory stages a materializer for a freshly instantiated component,
// entering it into tier 3.
func (c *tieredCache) putFactory(id string, rec *record, fn materializer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[id] = factoryEntry{rec: rec, fn: fn}
}

// getEarly returns the early reference for an in-progress id, running the
// staged materializer on first request and caching its outcome, success or
// failure, for the rest of this construction. ok is false when id has nothing
// staged.
//
// The materializer runs outside the lock so substituters may resolve other
// components. Materializations cannot race: only the call tree constructing
// id can request its early reference.
func (c *tieredCache) getEarly(id string) (obj any, ok bool, err error) {
	c.mu.Lock()
	if rec, found := c.early[id]; found {
		c.mu.Unlock()
		return rec.earlyRef, true, rec.earlyErr
	}
	entry, found := c.factories[id]
	c.mu.Unlock()
	if !found {
		return nil, false, nil
	}

	obj, err = entry.fn()

	c.mu.Lock()
	entry.rec.earlyDone = true
	entry.rec.earlyRef = obj
	entry.rec.earlyErr = err
	delete(c.factories, id)
	c.early[id] = entry.rec
	c.mu.Unlock()
	return obj, true, err
}

// earlyState reports whether a peer materialized an early reference for rec,
// and with what outcome.
func (c *tieredCache) earlyState(rec *record) (done bool, ref any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return rec.earlyDone, rec.earlyRef, rec.earlyErr
}

// promoteToFinished commits rec as the finished instance of id, clearing the
// lower tiers and recording completion order.
func (c *tieredCache) promoteToFinished(id string, rec *record) {
	c.mu.Lock()
	delete(c.early, id)
	delete(c.factories, id)
	c.order = append(c.order, id)
	c.mu.Unlock()
	c.finished.Store(id, rec)
}

// evict removes id from every tier. Called on failed construction and on
// destruction, so a later Get starts from a clean slate.
func (c *tieredCache) evict(id string) {
	c.mu.Lock()
	delete(c.early, id)
	delete(c.factories, id)
	c.mu.Unlock()
	c.finished.Delete(id)
}

// completed returns the finished records in reverse promotion order, the
// teardown order for Close.
func (c *tieredCache) completed() []*record {
	c.mu.Lock()
	order := make([]string, len(c.order))
	copy(order, c.order)
	c.mu.Unlock()

	out := make([]*record, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		if rec, ok := c.getFinished(order[i]); ok {
			out = append(out, rec)
		}
	}
	return out
}

// markDestroyed remembers that id went through teardown, for introspection
// after Close.
func (c *tieredCache) markDestroyed(id string) {
	c.mu.Lock()
	c.destroyed[id] = struct{}{}
	c.order = sliceWithout(c.order, id)
	c.mu.Unlock()
}

func (c *tieredCache) wasDestroyed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.destroyed[id]
	return ok
}

func sliceWithout(s []string, drop string) []string {
	out := s[:0]
	for _, v := range s {
		if v != drop {
			out = append(out, v)
		}
	}
	return out
}
