package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ── Post-processor SPI ────────────────────────────────────────────────────────

// PostProcessor observes every constructed component after initialization and
// may replace it, typically to wrap it in a proxy. Processors run in
// registration order; each receives the previous processor's result.
//
// Cross-cutting machinery such as transaction weaving or tracing plugs in
// here; the container itself has no proxying technology.
type PostProcessor interface {
	ProcessAfterInit(ctx context.Context, id string, obj any) (any, error)
}

// Substituter is an optional PostProcessor capability: producing the
// substituted identity of a component before its construction finishes, so
// that cycle peers holding an early reference see the same wrapper as
// everyone else.
//
// The engine applies substitution exactly once per component, at early
// materialization when a cycle demands it, or through ProcessAfterInit
// otherwise. Implementations therefore wrap in both methods and never need
// their own bookkeeping.
type Substituter interface {
	Substitute(ctx context.Context, id string, obj any) (any, error)
}

// DestructionAware is an optional PostProcessor capability: a callback before
// a component is destroyed, running ahead of io.Closer and destroy hooks.
type DestructionAware interface {
	BeforeDestruction(ctx context.Context, id string, obj any) error
}

// ── Chain ─────────────────────────────────────────────────────────────────────

// processorChain holds the registered processors. It freezes at the first
// resolution so every component sees the same chain.
type processorChain struct {
	mu     sync.RWMutex
	frozen atomic.Bool
	procs  []PostProcessor
}

func newProcessorChain() *processorChain {
	return &processorChain{}
}

func (pc *processorChain) add(p PostProcessor) error {
	if pc.frozen.Load() {
		return errors.New("container: post-processors must be registered before first use")
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.procs = append(pc.procs, p)
	return nil
}

func (pc *processorChain) freeze() { pc.frozen.Store(true) }

func (pc *processorChain) snapshot() []PostProcessor {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	out := make([]PostProcessor, len(pc.procs))
	copy(out, pc.procs)
	return out
}

// substitute runs the Substituter subset against obj, in chain order.
func (pc *processorChain) substitute(ctx context.Context, id string, obj any) (any, error) {
	for _, p := range pc.snapshot() {
		sub, ok := p.(Substituter)
		if !ok {
			continue
		}
		next, err := sub.Substitute(ctx, id, obj)
		if err != nil {
			return nil, &PostProcessingError{ID: id, Stage: fmt.Sprintf("substitution by %T", p), Err: err}
		}
		obj = next
	}
	return obj, nil
}

// afterInit runs ProcessAfterInit in chain order. When skipSubstituters is
// set, processors implementing Substituter are skipped: their replacement has
// already been applied at early materialization.
func (pc *processorChain) afterInit(ctx context.Context, id string, obj any, skipSubstituters bool) (any, error) {
	for _, p := range pc.snapshot() {
		if skipSubstituters {
			if _, ok := p.(Substituter); ok {
				continue
			}
		}
		next, err := p.ProcessAfterInit(ctx, id, obj)
		if err != nil {
			return nil, &PostProcessingError{ID: id, Stage: fmt.Sprintf("post-processor %T", p), Err: err}
		}
		obj = next
	}
	return obj, nil
}

// beforeDestruction notifies the DestructionAware subset, in chain order.
// All processors are notified even if earlier ones fail.
func (pc *processorChain) beforeDestruction(ctx context.Context, id string, obj any) error {
	var errs []error
	for _, p := range pc.snapshot() {
		da, ok := p.(DestructionAware)
		if !ok {
			continue
		}
		if err := da.BeforeDestruction(ctx, id, obj); err != nil {
			errs = append(errs, fmt.Errorf("destruction callback %T: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
