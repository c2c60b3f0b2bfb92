package container

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/singleflight"
)

// ── Container ─────────────────────────────────────────────────────────────────

// Container manages the lifecycle of components declared through Definitions:
// construction, dependency wiring, post-processing, scoped caching, and
// teardown.
//
// The zero value is not usable; create one with New. Typical lifecycle:
//
//  1. Create: c := container.New(opts...)
//  2. Register definitions, processors, scopes (directly or via Registrars)
//  3. Seal: c.Seal(ctx) validates wiring and eagerly builds singletons
//  4. Serve: c.Get / container.Resolve[T]
//  5. Close: c.Close(ctx) destroys singletons in reverse build order
type Container struct {
	reg    *registry
	cache  *tieredCache
	chain  *processorChain
	flight singleflight.Group

	scopeMu       sync.RWMutex
	scopeHandlers map[Scope]ScopeHandler

	opts options

	sealMu sync.Mutex
	sealed bool

	closed   atomic.Bool
	closeMu  sync.Mutex
	closeErr error
}

// New creates an empty container.
func New(opts ...Option) *Container {
	return &Container{
		reg:           newRegistry(),
		cache:         newTieredCache(),
		chain:         newProcessorChain(),
		scopeHandlers: make(map[Scope]ScopeHandler),
		opts:          newOptions(opts),
	}
}

// withLogger routes container logging through the configured base logger,
// unless the caller's context already carries one.
func (c *Container) withLogger(ctx context.Context) context.Context {
	if c.opts.logger == nil {
		return ctx
	}
	return slogcontext.NewCtx(ctx, c.opts.logger)
}

// ── Registration ──────────────────────────────────────────────────────────────

// Register adds a component definition. It fails on malformed definitions,
// duplicate ids, and after the registry has been sealed.
func (c *Container) Register(def *Definition) error {
	return c.reg.register(def)
}

// MustRegister is Register panicking on error, for wiring code where a
// registration failure is a programming mistake.
func (c *Container) MustRegister(def *Definition) {
	if err := c.Register(def); err != nil {
		panic(err)
	}
}

// Use appends a post-processor to the chain. Processors must be registered
// before the first resolution so every component passes through the same
// chain.
func (c *Container) Use(p PostProcessor) error {
	if c.reg.isSealed() {
		return fmt.Errorf("registering post-processor: %w", ErrSealed)
	}
	return c.chain.add(p)
}

// RegisterScope installs a handler for a custom scope. The built-in singleton
// and prototype policies cannot be replaced. Registering the same scope again
// before sealing replaces the handler.
func (c *Container) RegisterScope(scope Scope, h ScopeHandler) error {
	if scope == ScopeSingleton || scope == ScopePrototype {
		return fmt.Errorf("container: scope %q is built in and cannot be replaced", scope)
	}
	if c.reg.isSealed() {
		return fmt.Errorf("registering scope %q: %w", scope, ErrSealed)
	}
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()
	c.scopeHandlers[scope] = h
	return nil
}

func (c *Container) scopeHandler(scope Scope) (ScopeHandler, bool) {
	c.scopeMu.RLock()
	defer c.scopeMu.RUnlock()
	h, ok := c.scopeHandlers[scope]
	return h, ok
}

// sortedScopeHandlers returns the custom scope handlers in scope-name order.
func (c *Container) sortedScopeHandlers() []ScopeHandler {
	c.scopeMu.RLock()
	defer c.scopeMu.RUnlock()
	names := make([]Scope, 0, len(c.scopeHandlers))
	for name := range c.scopeHandlers {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]ScopeHandler, 0, len(names))
	for _, name := range names {
		out = append(out, c.scopeHandlers[name])
	}
	return out
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Get resolves the component registered under id, constructing it and its
// dependency closure as needed. Concurrent calls for the same singleton share
// one construction. With WithResolveTimeout set, the caller's wait is bounded;
// the construction itself runs on its own window and keeps going for later
// callers even when this one gives up.
func (c *Container) Get(ctx context.Context, id string) (any, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.chain.freeze()
	ctx = c.withLogger(ctx)
	if c.opts.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.resolveTimeout)
		defer cancel()
	}

	start := time.Now()
	obj, err := c.resolve(ctx, id, newResolution())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	resolveDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return obj, err
}

// Resolve is a generic wrapper around Get that type-asserts the result.
//
//	store, err := container.Resolve[*pgstore.Store](ctx, c, "store")
func Resolve[T any](ctx context.Context, c *Container, id string) (T, error) {
	obj, err := c.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("container: Resolve[%T]: component %q resolved to %T", zero, id, obj)
	}
	return typed, nil
}

// MustResolve is Resolve panicking on error, for bootstrap code.
func MustResolve[T any](ctx context.Context, c *Container, id string) T {
	typed, err := Resolve[T](ctx, c, id)
	if err != nil {
		panic(err)
	}
	return typed
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Has reports whether a definition is registered under id.
func (c *Container) Has(id string) bool { return c.reg.has(id) }

// IDs returns all registered component ids in registration order.
func (c *Container) IDs() []string { return c.reg.ids() }

// Definitions returns all registered definitions in registration order.
func (c *Container) Definitions() []*Definition {
	out := make([]*Definition, 0, c.reg.len())
	for def := range c.reg.all() {
		out = append(out, def)
	}
	return out
}

// State reports the lifecycle state of the singleton registered under id:
// StateInitialized once committed, StateDestroyed after teardown, and
// StateNotStarted otherwise. In-flight intermediate states are internal to
// the construction and not observable here.
func (c *Container) State(id string) State {
	if rec, ok := c.cache.getFinished(id); ok {
		return rec.getState()
	}
	if c.cache.wasDestroyed(id) {
		return StateDestroyed
	}
	return StateNotStarted
}
