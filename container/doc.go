// Package container provides a managed-object container for Go: components
// are declared as factory recipes, and the container constructs, wires,
// post-processes, and destroys them.
//
// # Overview
//
// A component is declared by a Definition: an id, a factory, its
// dependencies, its scope, and its lifecycle hooks. The container resolves
// dependencies between components, including reference-holding cycles, using
// a staged-visibility singleton cache: an instance that is still being
// populated can hand out an early reference to a cycle peer, and both end up
// holding the same final identity. There is no classpath scanning and no
// struct-tag reflection; wiring is explicit factory code.
//
// # Container Lifecycle
//
//  1. Create: c := container.New(opts...)
//  2. Register: c.Register(&container.Definition{...}), c.Apply(registrars...)
//  3. Seal: c.Seal(ctx) validates wiring and eagerly builds singletons
//  4. Serve: c.Get(ctx, "id") / container.Resolve[T](ctx, c, "id")
//  5. Close: c.Close(ctx) runs reverse-order teardown
//
// # Definitions
//
//	c.Register(&container.Definition{
//	    ID:    "store",
//	    Scope: container.ScopeSingleton,
//	    Build: func(ctx context.Context, _ container.Deps) (any, error) {
//	        return store.Open(ctx)
//	    },
//	    DestroyHooks: []container.Hook{{Name: "flush", Run: func(ctx context.Context, obj any) error {
//	        return obj.(*store.Store).Flush(ctx)
//	    }}},
//	})
//
// Dependencies come in two forms. A construction argument (no Bind) is
// resolved before the factory runs and passed in Deps:
//
//	c.Register(&container.Definition{
//	    ID:        "indexer",
//	    DependsOn: []container.Dependency{{Ref: container.ByID("store")}},
//	    Build: func(ctx context.Context, deps container.Deps) (any, error) {
//	        return index.New(container.Arg[*store.Store](deps, 0)), nil
//	    },
//	})
//
// A bound dependency is attached after the factory has returned, which is
// what lets two components reference each other:
//
//	c.Register(&container.Definition{
//	    ID: "publisher",
//	    DependsOn: []container.Dependency{{
//	        Ref:  container.ByID("auditor"),
//	        Bind: container.TypedBind(func(p *Publisher, a *Auditor) { p.Auditor = a }),
//	    }},
//	    Build: func(ctx context.Context, _ container.Deps) (any, error) {
//	        return &Publisher{}, nil
//	    },
//	})
//
// A dependency may also be referenced by contract type instead of id, if the
// target declared one:
//
//	Type: container.TypeFor[*redis.Client](),   // on the target
//	Ref:  container.ByType[*redis.Client](),    // on the dependent
//
// # Cycles
//
// A cycle is resolvable when every member is a singleton and the edges
// closing the loop are bound dependencies: the first member to be
// instantiated stages an early reference, the peer receives it during its
// own population, and when the dust settles both hold the same instance. A
// cycle that runs through a construction argument of a not-yet-instantiated
// member, or through a prototype or custom scope, fails with
// UnresolvableCircularDependencyError naming the path. Marking a dependency
// Lazy sidesteps cycle participation entirely: the dependent receives a
// Provider and resolves it after construction.
//
// # Post-processors
//
// Processors see every component after initialization and may replace it,
// which is where proxy-based machinery hooks in:
//
//	type Tracer struct{}
//
//	func (Tracer) ProcessAfterInit(ctx context.Context, id string, obj any) (any, error) {
//	    return wrapTraced(id, obj), nil
//	}
//
//	func (Tracer) Substitute(ctx context.Context, id string, obj any) (any, error) {
//	    return wrapTraced(id, obj), nil
//	}
//
// Implementing Substitute keeps cycle peers consistent: when an early
// reference must be handed out, substitution runs there instead of after
// initialization, and the engine guarantees it runs exactly once per
// component either way.
//
// # Scopes
//
// Singletons are cached until Close; prototypes are built per Get and owned
// by the caller (see Destroy). Request-like and session-like policies plug
// in as ScopeHandlers:
//
//	c.RegisterScope(container.ScopeRequest, container.NewRequestScope())
//
//	ctx := container.WithRequestScope(r.Context())
//	defer container.ReleaseRequestScope(ctx)
//	tx := container.MustResolve[*Tx](ctx, c, "tx")
//
// # Concurrency
//
// Get is safe for concurrent use. Concurrent requests for one singleton
// share a single construction; a failed construction is not cached, so the
// next Get retries cleanly. WithResolveTimeout bounds every top-level Get,
// including time spent waiting on a construction owned by another goroutine.
package container
