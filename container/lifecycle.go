package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/km-arc/go-container/graph"
)

// ── Seal ──────────────────────────────────────────────────────────────────────

// Seal transitions the container from registration to serving: it seals the
// registry, validates references, scopes, and the dependency graph, and then
// eagerly constructs every non-lazy singleton in registration order.
//
// If an eager construction fails, the singletons built so far are destroyed
// in reverse order and the failure is returned; registration stays closed,
// but Seal may be called again once the cause is fixed. A successful Seal is
// idempotent.
func (c *Container) Seal(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.sealMu.Lock()
	defer c.sealMu.Unlock()
	if c.sealed {
		return nil
	}

	ctx = c.withLogger(ctx)
	c.reg.seal()
	c.chain.freeze()

	if err := c.validate(); err != nil {
		return err
	}
	if c.opts.eagerInit {
		if err := c.eagerInit(ctx); err != nil {
			return err
		}
	}

	c.sealed = true
	clog(ctx).Log(ctx, slog.LevelInfo, "container sealed",
		slog.Int("definitions", c.reg.len()))
	return nil
}

// validate checks that every reference resolves, every scope has a handler,
// and no statically hopeless cycle exists. Problems are collected rather than
// reported one at a time.
func (c *Container) validate() error {
	var errs []error
	for def := range c.reg.all() {
		if scope := def.scope(); scope != ScopeSingleton && scope != ScopePrototype {
			if _, ok := c.scopeHandler(scope); !ok {
				errs = append(errs, &UnknownScopeError{ID: def.ID, Scope: scope})
			}
		}
		for _, dep := range def.DependsOn {
			if _, err := c.reg.resolveRef(dep.Ref); err != nil {
				errs = append(errs, fmt.Errorf("component %q: %w", def.ID, err))
			}
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	g, err := c.buildGraph()
	if err != nil {
		return err
	}
	return c.validateCycles(g)
}

// validateCycles flags cycle clusters that no resolution order can ever
// satisfy: a non-singleton member, or a cluster wired entirely through
// construction arguments, leaving no point at which an early reference could
// be staged. Mixed clusters are left to the runtime check, which knows the
// actual entry order.
func (c *Container) validateCycles(g *graph.Graph) error {
	var errs []error
	for _, members := range g.StronglyConnected() {
		if len(members) == 1 && !g.HasEdge(members[0], members[0]) {
			continue
		}
		inCluster := make(map[string]bool, len(members))
		for _, id := range members {
			inCluster[id] = true
		}

		var reason string
		for _, id := range members {
			def, err := c.reg.lookup(id)
			if err != nil {
				return err
			}
			if scope := def.scope(); scope != ScopeSingleton {
				reason = fmt.Sprintf("%q is %s-scoped and cannot be exposed early", id, scope)
				break
			}
		}
		if reason == "" {
			anyPopulate := false
			for _, id := range members {
				for _, e := range g.EdgesFrom(id) {
					if !e.Lazy && inCluster[e.To] && e.Kind == graph.EdgePopulate {
						anyPopulate = true
					}
				}
			}
			if !anyPopulate {
				reason = "every edge in the cycle is a construction argument"
			}
		}
		if reason != "" {
			errs = append(errs, &UnresolvableCircularDependencyError{
				Path:   g.CycleWithin(members),
				Reason: reason,
			})
		}
	}
	return errors.Join(errs...)
}

// buildGraph projects the registered definitions into a dependency graph,
// resolving by-contract references to concrete ids.
func (c *Container) buildGraph() (*graph.Graph, error) {
	g := graph.New()
	for def := range c.reg.all() {
		if err := g.AddVertex(def.ID); err != nil {
			return nil, err
		}
	}
	for def := range c.reg.all() {
		for _, dep := range def.DependsOn {
			targetID, err := c.reg.resolveRef(dep.Ref)
			if err != nil {
				return nil, fmt.Errorf("component %q: %w", def.ID, err)
			}
			kind := graph.EdgePopulate
			if dep.argument() {
				kind = graph.EdgeArgument
			}
			if err := g.AddEdge(def.ID, targetID, kind, dep.Lazy); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Graph returns the dependency graph of the registered definitions, for
// diagnostics and tooling. By-contract references appear resolved to ids.
func (c *Container) Graph() (*graph.Graph, error) {
	return c.buildGraph()
}

// eagerInit constructs non-lazy singletons in registration order, rolling
// back on the first failure.
func (c *Container) eagerInit(ctx context.Context) error {
	for def := range c.reg.all() {
		if def.IsLazy || def.scope() != ScopeSingleton {
			continue
		}
		if _, err := c.Get(ctx, def.ID); err != nil {
			if rbErr := c.destroySingletons(ctx); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return fmt.Errorf("eager initialization: %w", err)
		}
	}
	return nil
}

// ── Teardown ──────────────────────────────────────────────────────────────────

// Close destroys all finished singletons in reverse construction order, then
// closes the registered scope handlers. Failures are collected; no teardown
// is skipped because a sibling failed. Close is idempotent and later calls
// return the recorded result.
func (c *Container) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed.Load() {
		return c.closeErr
	}
	c.closed.Store(true)

	ctx = c.withLogger(ctx)
	var errs []error
	if err := c.destroySingletons(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, h := range c.sortedScopeHandlers() {
		if err := h.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closeErr = errors.Join(errs...)
	clog(ctx).Log(ctx, slog.LevelInfo, "container closed")
	return c.closeErr
}

// destroySingletons tears down finished singletons, most recently constructed
// first. It drains in passes so promotions racing the teardown are caught.
func (c *Container) destroySingletons(ctx context.Context) error {
	var errs []error
	for recs := c.cache.completed(); len(recs) > 0; recs = c.cache.completed() {
		for _, rec := range recs {
			id := rec.def.ID
			if err := c.destroyInstance(ctx, rec.def, rec.final); err != nil {
				errs = append(errs, &DestructionError{ID: id, Err: err})
				destructionFailuresTotal.Inc()
			}
			rec.setState(StateDestroyed)
			c.cache.evict(id)
			c.cache.markDestroyed(id)
			liveSingletons.Dec()
			destructionsTotal.Inc()
		}
	}
	return errors.Join(errs...)
}

// Destroy runs the teardown sequence for an instance the caller owns,
// typically a prototype obtained from Get. The container does not track
// prototype instances; callers decide when they end.
func (c *Container) Destroy(ctx context.Context, id string, obj any) error {
	def, err := c.reg.lookup(id)
	if err != nil {
		return err
	}
	ctx = c.withLogger(ctx)
	if err := c.destroyInstance(ctx, def, obj); err != nil {
		destructionFailuresTotal.Inc()
		return &DestructionError{ID: id, Err: err}
	}
	destructionsTotal.Inc()
	return nil
}

// destroyInstance runs one instance through the teardown sequence:
// destruction-aware processors, io.Closer, then destroy hooks in order. All
// stages run even if earlier ones fail.
func (c *Container) destroyInstance(ctx context.Context, def *Definition, obj any) error {
	clog(ctx).Log(ctx, slog.LevelDebug, "destroying component", slog.String("id", def.ID))

	var errs []error
	if err := c.chain.beforeDestruction(ctx, def.ID, obj); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := obj.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("io.Closer: %w", err))
		}
	}
	for _, h := range def.DestroyHooks {
		if err := h.Run(ctx, obj); err != nil {
			errs = append(errs, fmt.Errorf("destroy hook %q: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}
