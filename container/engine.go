package container

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"strings"

	slogcontext "github.com/veqryn/slog-context"
)

// clog returns the ambient logger for container internals.
func clog(ctx context.Context) *slog.Logger {
	return slogcontext.FromCtx(ctx).With(slog.String("realm", "container"))
}

// ── In-progress set ───────────────────────────────────────────────────────────

// resolution tracks the construction path behind the current component: the
// ids being built on this path and their records, for cycle detection and
// early-exposure decisions. Each construction flight works on its own copy,
// so a caller that stops waiting can unwind its tree while the flight keeps
// building.
type resolution struct {
	path []string
	recs map[string]*record
}

func newResolution() *resolution {
	return &resolution{recs: make(map[string]*record)}
}

func (r *resolution) has(id string) bool {
	_, ok := r.recs[id]
	return ok
}

func (r *resolution) rec(id string) *record { return r.recs[id] }

func (r *resolution) push(id string, rec *record) {
	r.path = append(r.path, id)
	r.recs[id] = rec
}

func (r *resolution) pop(id string) {
	r.path = r.path[:len(r.path)-1]
	delete(r.recs, id)
}

// clone gives a construction flight its own copy of the path. Records are
// shared; the caller's slice and map stay untouched by the flight's pushes
// and pops.
func (r *resolution) clone() *resolution {
	return &resolution{
		path: slices.Clone(r.path),
		recs: maps.Clone(r.recs),
	}
}

// cyclePath returns the active path from the first occurrence of id, closed
// with id again: ["a", "b", "a"].
func (r *resolution) cyclePath(id string) []string {
	for i, v := range r.path {
		if v == id {
			out := make([]string, 0, len(r.path)-i+1)
			out = append(out, r.path[i:]...)
			return append(out, id)
		}
	}
	return []string{id}
}

// ── Resolution ────────────────────────────────────────────────────────────────

// resolve is the per-id resolution step. The fast path and the cycle check
// run before any cross-goroutine coordination, so a call tree can never
// deadlock against itself.
func (c *Container) resolve(ctx context.Context, id string, res *resolution) (any, error) {
	if rec, ok := c.cache.getFinished(id); ok {
		return rec.final, nil
	}
	if res.has(id) {
		return c.resolveCycle(ctx, id, res)
	}

	def, err := c.reg.lookup(id)
	if err != nil {
		return nil, err
	}

	switch def.scope() {
	case ScopeSingleton:
		return c.resolveSingleton(ctx, id, def, res)
	case ScopePrototype:
		return c.construct(ctx, def, res, false)
	default:
		return c.resolveScoped(ctx, id, def, res)
	}
}

// resolveCycle handles a request for an id that is already on the active
// path. Singletons that have been instantiated can hand out an early
// reference; everything else makes the cycle unresolvable.
func (c *Container) resolveCycle(ctx context.Context, id string, res *resolution) (any, error) {
	rec := res.rec(id)
	path := res.cyclePath(id)

	if scope := rec.def.scope(); scope != ScopeSingleton {
		return nil, &UnresolvableCircularDependencyError{
			Path:   path,
			Reason: fmt.Sprintf("%q is %s-scoped and cannot be exposed early", id, scope),
		}
	}
	if rec.getState() < StateInstantiated {
		return nil, &UnresolvableCircularDependencyError{
			Path:   path,
			Reason: fmt.Sprintf("%q is needed as a construction argument before its factory has run", id),
		}
	}

	rec.earlyPath = path
	obj, ok, err := c.cache.getEarly(id)
	if !ok {
		return nil, &UnresolvableCircularDependencyError{
			Path:   path,
			Reason: fmt.Sprintf("no early reference available for %q", id),
		}
	}
	if err != nil {
		return nil, err
	}

	earlyExposuresTotal.Inc()
	clog(ctx).Log(ctx, slog.LevelDebug, "materialized early reference",
		slog.String("id", id), slog.String("cycle", strings.Join(path, " -> ")))
	return obj, nil
}

// resolveSingleton funnels concurrent requests for one id through a single
// construction flight. A caller can miss the finished tier and land its
// DoChan after the previous flight has published and dropped its key, so the
// flight re-checks the cache before building anything. The key is dropped
// when the call finishes, so a failed attempt is never cached across calls.
//
// The flight body runs detached from the initiating caller's cancellation,
// bounded by its own resolve-timeout window. Co-waiters receive the real
// outcome of the construction, not whatever the first caller's deadline made
// of it.
func (c *Container) resolveSingleton(ctx context.Context, id string, def *Definition, res *resolution) (any, error) {
	snap := res.clone()
	ch := c.flight.DoChan(id, func() (any, error) {
		if rec, ok := c.cache.getFinished(id); ok {
			return rec.final, nil
		}
		fctx, cancel := c.flightContext(ctx)
		defer cancel()
		return c.construct(fctx, def, snap, true)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val, nil
	case <-ctx.Done():
		// The owning construction keeps running; this caller gives up.
		return nil, fmt.Errorf("container: waiting for %q: %w", id, ctx.Err())
	}
}

// flightContext derives the context a construction flight runs under: the
// caller's values without its cancellation, bounded by the configured resolve
// timeout. With no timeout configured the flight is unbounded.
func (c *Container) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	fctx := context.WithoutCancel(ctx)
	if c.opts.resolveTimeout > 0 {
		return context.WithTimeout(fctx, c.opts.resolveTimeout)
	}
	return fctx, func() {}
}

// resolveScoped delegates instance caching to the scope's handler. The create
// callback runs the full construction pipeline and hands back a destroyer for
// the scope to run when its carrier ends.
func (c *Container) resolveScoped(ctx context.Context, id string, def *Definition, res *resolution) (any, error) {
	handler, ok := c.scopeHandler(def.scope())
	if !ok {
		return nil, &UnknownScopeError{ID: id, Scope: def.scope()}
	}
	return handler.Get(ctx, id, func(cctx context.Context) (any, func(context.Context) error, error) {
		obj, err := c.construct(cctx, def, res, false)
		if err != nil {
			return nil, nil, err
		}
		destroy := func(dctx context.Context) error {
			return c.destroyInstance(dctx, def, obj)
		}
		return obj, destroy, nil
	})
}

// resolveDependency resolves one declared dependency. Lazy dependencies
// short-circuit to a Provider and never recurse at wiring time.
func (c *Container) resolveDependency(ctx context.Context, dep Dependency, res *resolution) (any, error) {
	targetID, err := c.reg.resolveRef(dep.Ref)
	if err != nil {
		return nil, err
	}
	if dep.Lazy {
		return Provider(func(pctx context.Context) (any, error) {
			return c.Get(pctx, targetID)
		}), nil
	}
	return c.resolve(ctx, targetID, res)
}

// ── Construction pipeline ─────────────────────────────────────────────────────

// construct drives one component through instantiate, populate, initialize,
// and commit. Singletons additionally move through the cache tiers; any
// failure evicts them so the next Get starts clean.
func (c *Container) construct(ctx context.Context, def *Definition, res *resolution, singleton bool) (any, error) {
	id := def.ID
	scope := def.scope()
	clog(ctx).Log(ctx, slog.LevelDebug, "constructing component",
		slog.String("id", id), slog.String("scope", scope.String()))

	rec := newRecord(def)
	res.push(id, rec)
	defer res.pop(id)

	fail := func(stage string) {
		if singleton {
			c.cache.evict(id)
		}
		constructionFailuresTotal.WithLabelValues(stage).Inc()
		clog(ctx).Log(ctx, slog.LevelDebug, "construction failed",
			slog.String("id", id), slog.String("stage", stage))
	}

	// Construction arguments, declaration order.
	var args Deps
	for _, dep := range def.DependsOn {
		if !dep.argument() {
			continue
		}
		val, err := c.resolveDependency(ctx, dep, res)
		if err != nil {
			fail("arguments")
			return nil, &DependencyResolutionError{ID: id, Ref: dep.Ref.String(), Err: err}
		}
		args = append(args, val)
	}

	obj, err := def.Build(ctx, args)
	if err != nil {
		fail("factory")
		return nil, fmt.Errorf("container: constructing %q: %w", id, err)
	}
	if obj == nil {
		fail("factory")
		return nil, fmt.Errorf("container: factory for %q returned nil", id)
	}
	rec.instance = obj
	rec.setState(StateInstantiated)

	if singleton {
		c.cache.putFactory(id, rec, func() (any, error) {
			return c.chain.substitute(ctx, id, obj)
		})
	}

	// Population, declaration order.
	rec.setState(StatePopulating)
	for _, dep := range def.DependsOn {
		if dep.argument() {
			continue
		}
		val, err := c.resolveDependency(ctx, dep, res)
		if err == nil {
			if bindErr := dep.Bind(obj, val); bindErr != nil {
				err = fmt.Errorf("binding: %w", bindErr)
			}
		}
		if err != nil {
			fail("population")
			return nil, &DependencyResolutionError{ID: id, Ref: dep.Ref.String(), Err: err}
		}
	}

	// Initialization: the Initializer interface first, then hooks in order.
	if init, ok := obj.(Initializer); ok {
		if err := init.InitComponent(ctx); err != nil {
			fail("init")
			return nil, &PostProcessingError{ID: id, Stage: "Initializer interface", Err: err}
		}
	}
	for _, h := range def.InitHooks {
		if err := h.Run(ctx, obj); err != nil {
			fail("init")
			return nil, &PostProcessingError{ID: id, Stage: fmt.Sprintf("init hook %q", h.Name), Err: err}
		}
	}

	// Commit. If a cycle peer materialized an early reference, that reference
	// is the committed identity: substitution already ran there, and a
	// replacement by any later processor cannot be reconciled with the
	// references already handed out.
	var earlyDone bool
	var earlyRef any
	if singleton {
		var earlyErr error
		earlyDone, earlyRef, earlyErr = c.cache.earlyState(rec)
		if earlyErr != nil {
			fail("substitution")
			return nil, earlyErr
		}
	}

	final, err := c.chain.afterInit(ctx, id, obj, earlyDone)
	if err != nil {
		fail("post-processing")
		return nil, err
	}

	if earlyDone {
		if !sameInstance(final, obj) {
			fail("commit")
			path := rec.earlyPath
			if len(path) == 0 {
				path = []string{id, id}
			}
			return nil, &UnresolvableCircularDependencyError{
				Path:   path,
				Reason: fmt.Sprintf("a post-processor replaced %q after its early reference was exposed", id),
			}
		}
		final = earlyRef
	}

	rec.final = final
	rec.setState(StateInitialized)

	if singleton {
		c.cache.promoteToFinished(id, rec)
		liveSingletons.Inc()
	}
	constructionsTotal.WithLabelValues(scope.String()).Inc()
	clog(ctx).Log(ctx, slog.LevelDebug, "component constructed",
		slog.String("id", id), slog.String("scope", scope.String()))
	return final, nil
}

// sameInstance reports whether a and b are the same instance. Reference kinds
// compare by pointer; other comparable kinds by value.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Map, reflect.Func, reflect.Slice, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	default:
		if !ra.Comparable() {
			return false
		}
		return a == b
	}
}
