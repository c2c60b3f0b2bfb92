package container_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/km-arc/go-container/container"
)

// ── fixtures ──────────────────────────────────────────────────────────────────

// pingSvc and pongSvc reference each other through bound dependencies.
type pingSvc struct{ Pong *pongSvc }

type pongSvc struct{ Ping *pingSvc }

func registerPingPong(c *container.Container) {
	c.MustRegister(&container.Definition{
		ID: "ping",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("pong"),
			Bind: container.TypedBind(func(p *pingSvc, dep *pongSvc) { p.Pong = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &pingSvc{}, nil },
	})
	c.MustRegister(&container.Definition{
		ID: "pong",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("ping"),
			Bind: container.TypedBind(func(p *pongSvc, dep *pingSvc) { p.Ping = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &pongSvc{}, nil },
	})
}

// ── Resolvable cycles ─────────────────────────────────────────────────────────

func TestCycle_BoundPairResolves(t *testing.T) {
	c := container.New()
	registerPingPong(c)

	ctx := context.Background()
	ping, err := container.Resolve[*pingSvc](ctx, c, "ping")
	if err != nil {
		t.Fatalf("Get ping: %v", err)
	}
	if ping.Pong == nil || ping.Pong.Ping != ping {
		t.Fatal("cycle not closed: pong should hold the same ping instance")
	}

	pong, err := container.Resolve[*pongSvc](ctx, c, "pong")
	if err != nil {
		t.Fatalf("Get pong: %v", err)
	}
	if pong != ping.Pong {
		t.Error("pong resolved later should be the committed cycle member")
	}
}

type ringA struct{ B *ringB }

type ringB struct{ C *ringC }

type ringC struct{ A *ringA }

func TestCycle_ThreeMemberRing(t *testing.T) {
	c := container.New()
	c.MustRegister(&container.Definition{
		ID: "a",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("b"),
			Bind: container.TypedBind(func(a *ringA, dep *ringB) { a.B = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &ringA{}, nil },
	})
	c.MustRegister(&container.Definition{
		ID: "b",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("c"),
			Bind: container.TypedBind(func(b *ringB, dep *ringC) { b.C = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &ringB{}, nil },
	})
	c.MustRegister(&container.Definition{
		ID: "c",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("a"),
			Bind: container.TypedBind(func(cc *ringC, dep *ringA) { cc.A = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &ringC{}, nil },
	})

	ctx := context.Background()
	if err := c.Seal(ctx); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	a, err := container.Resolve[*ringA](ctx, c, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.B == nil || a.B.C == nil || a.B.C.A != a {
		t.Error("ring should close back on the entry instance")
	}
}

// ── Substitution inside cycles ────────────────────────────────────────────────

// greetService is the contract the wrapping processor preserves.
type greetService interface{ Greet() string }

type greetImpl struct{ audit *auditImpl }

func (g *greetImpl) Greet() string { return "hello" }

type auditImpl struct{ greet greetService }

// tracingGreeter wraps a greetService, standing in for proxy machinery.
type tracingGreeter struct{ inner greetService }

func (w *tracingGreeter) Greet() string { return "traced " + w.inner.Greet() }

// greeterWrapper wraps the component registered as "greet", applying the same
// wrap through Substitute and ProcessAfterInit.
type greeterWrapper struct {
	wraps atomic.Int32
}

func (p *greeterWrapper) wrap(id string, obj any) (any, error) {
	if id != "greet" {
		return obj, nil
	}
	p.wraps.Add(1)
	return &tracingGreeter{inner: obj.(greetService)}, nil
}

func (p *greeterWrapper) ProcessAfterInit(_ context.Context, id string, obj any) (any, error) {
	return p.wrap(id, obj)
}

func (p *greeterWrapper) Substitute(_ context.Context, id string, obj any) (any, error) {
	return p.wrap(id, obj)
}

func registerGreeterAudit(c *container.Container) {
	c.MustRegister(&container.Definition{
		ID: "greet",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("audit"),
			Bind: container.TypedBind(func(g *greetImpl, dep *auditImpl) { g.audit = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &greetImpl{}, nil },
	})
	c.MustRegister(&container.Definition{
		ID: "audit",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("greet"),
			Bind: container.TypedBind(func(a *auditImpl, dep greetService) { a.greet = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &auditImpl{}, nil },
	})
}

func TestCycle_SubstitutedIdentityShared(t *testing.T) {
	c := container.New()
	wrapper := &greeterWrapper{}
	if err := c.Use(wrapper); err != nil {
		t.Fatalf("Use: %v", err)
	}
	registerGreeterAudit(c)

	ctx := context.Background()
	got, err := c.Get(ctx, "greet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := got.(*tracingGreeter); !ok {
		t.Fatalf("committed greet is %T, want the substituted wrapper", got)
	}

	audit, err := container.Resolve[*auditImpl](ctx, c, "audit")
	if err != nil {
		t.Fatalf("Get audit: %v", err)
	}
	if any(audit.greet) != got {
		t.Error("cycle peer should hold the same substituted identity")
	}
	if n := wrapper.wraps.Load(); n != 1 {
		t.Errorf("substitution applied %d times, want exactly once", n)
	}
}

func TestSubstituter_AppliedOnceWithoutCycle(t *testing.T) {
	c := container.New()
	wrapper := &greeterWrapper{}
	if err := c.Use(wrapper); err != nil {
		t.Fatalf("Use: %v", err)
	}
	c.MustRegister(&container.Definition{
		ID:    "greet",
		Build: func(context.Context, container.Deps) (any, error) { return &greetImpl{}, nil },
	})

	got, err := c.Get(context.Background(), "greet")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := got.(*tracingGreeter); !ok {
		t.Fatalf("got %T, want the wrapper", got)
	}
	if n := wrapper.wraps.Load(); n != 1 {
		t.Errorf("wrap count: got %d, want 1", n)
	}
}

// replacingFinalizer swaps one component for a fresh object. It does not
// implement Substitute, so inside a cycle the swap comes too late.
type replacingFinalizer struct{ target string }

func (p replacingFinalizer) ProcessAfterInit(_ context.Context, id string, obj any) (any, error) {
	if id != p.target {
		return obj, nil
	}
	return &thing{name: "replacement"}, nil
}

func TestCycle_LateReplacementRejected(t *testing.T) {
	c := container.New()
	if err := c.Use(replacingFinalizer{target: "ping"}); err != nil {
		t.Fatalf("Use: %v", err)
	}
	registerPingPong(c)

	_, err := c.Get(context.Background(), "ping")
	var circ *container.UnresolvableCircularDependencyError
	if !errors.As(err, &circ) {
		t.Fatalf("got %v, want UnresolvableCircularDependencyError", err)
	}
	if !strings.Contains(circ.Reason, "replaced") {
		t.Errorf("reason: got %q, want the replacement explanation", circ.Reason)
	}
	want := []string{"ping", "pong", "ping"}
	if !slices.Equal(circ.Path, want) {
		t.Errorf("path: got %v, want %v", circ.Path, want)
	}
}

// ── Unresolvable cycles at runtime ────────────────────────────────────────────

func TestCycle_ArgumentEdgesFail(t *testing.T) {
	c := container.New()
	c.MustRegister(&container.Definition{
		ID:        "a",
		DependsOn: []container.Dependency{{Ref: container.ByID("b")}},
		Build: func(_ context.Context, deps container.Deps) (any, error) {
			return container.Arg[*thing](deps, 0), nil
		},
	})
	c.MustRegister(&container.Definition{
		ID:        "b",
		DependsOn: []container.Dependency{{Ref: container.ByID("a")}},
		Build: func(_ context.Context, deps container.Deps) (any, error) {
			return container.Arg[*thing](deps, 0), nil
		},
	})

	_, err := c.Get(context.Background(), "a")
	var circ *container.UnresolvableCircularDependencyError
	if !errors.As(err, &circ) {
		t.Fatalf("got %v, want UnresolvableCircularDependencyError", err)
	}
	if !strings.Contains(circ.Reason, "before its factory has run") {
		t.Errorf("reason: got %q", circ.Reason)
	}
	want := []string{"a", "b", "a"}
	if !slices.Equal(circ.Path, want) {
		t.Errorf("path: got %v, want %v", circ.Path, want)
	}
}

// argConsumer takes its peer as a construction argument; bindConsumer accepts
// it after instantiation.
type argConsumer struct{ peer *bindConsumer }

type bindConsumer struct{ peer *argConsumer }

func registerMixedPair(c *container.Container) {
	c.MustRegister(&container.Definition{
		ID:        "arg-side",
		DependsOn: []container.Dependency{{Ref: container.ByID("bind-side")}},
		Build: func(_ context.Context, deps container.Deps) (any, error) {
			return &argConsumer{peer: container.Arg[*bindConsumer](deps, 0)}, nil
		},
	})
	c.MustRegister(&container.Definition{
		ID: "bind-side",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("arg-side"),
			Bind: container.TypedBind(func(b *bindConsumer, dep *argConsumer) { b.peer = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &bindConsumer{}, nil },
	})
}

func TestCycle_MixedEdgesDependOnEntry(t *testing.T) {
	ctx := context.Background()

	// Entering through the argument side needs bind-side before anything has
	// been instantiated: unresolvable.
	c := container.New()
	registerMixedPair(c)
	_, err := c.Get(ctx, "arg-side")
	var circ *container.UnresolvableCircularDependencyError
	if !errors.As(err, &circ) {
		t.Fatalf("arg-side entry: got %v, want UnresolvableCircularDependencyError", err)
	}

	// Entering through the bound side reaches arg-side only after bind-side
	// has been instantiated, so an early reference is available.
	c = container.New()
	registerMixedPair(c)
	got, err := container.Resolve[*bindConsumer](ctx, c, "bind-side")
	if err != nil {
		t.Fatalf("bind-side entry: %v", err)
	}
	if got.peer == nil || got.peer.peer != got {
		t.Error("cycle should close through the early reference")
	}
}

func TestCycle_PrototypeReentryFails(t *testing.T) {
	c := container.New()
	c.MustRegister(&container.Definition{
		ID: "ping",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("pong"),
			Bind: container.TypedBind(func(p *pingSvc, dep *pongSvc) { p.Pong = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &pingSvc{}, nil },
	})
	c.MustRegister(&container.Definition{
		ID:    "pong",
		Scope: container.ScopePrototype,
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("ping"),
			Bind: container.TypedBind(func(p *pongSvc, dep *pingSvc) { p.Ping = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &pongSvc{}, nil },
	})

	// Entering through the prototype re-enters it while its peer still builds.
	_, err := c.Get(context.Background(), "pong")
	var circ *container.UnresolvableCircularDependencyError
	if !errors.As(err, &circ) {
		t.Fatalf("got %v, want UnresolvableCircularDependencyError", err)
	}
	if !strings.Contains(circ.Reason, "prototype-scoped") {
		t.Errorf("reason: got %q", circ.Reason)
	}

	// Entering through the singleton hands the prototype an early reference.
	ping, err := container.Resolve[*pingSvc](context.Background(), c, "ping")
	if err != nil {
		t.Fatalf("Get ping: %v", err)
	}
	if ping.Pong == nil || ping.Pong.Ping != ping {
		t.Error("prototype peer should hold the singleton's early reference")
	}
}

// ── Lazy dependencies ─────────────────────────────────────────────────────────

// reportSvc consumes its collaborator through a Provider, deferring the
// actual resolution to call time.
type reportSvc struct {
	source container.Provider
}

type sourceSvc struct{ report *reportSvc }

func TestCycle_LazyProviderBreaks(t *testing.T) {
	c := container.New()
	c.MustRegister(&container.Definition{
		ID:        "report",
		DependsOn: []container.Dependency{{Ref: container.ByID("source"), Lazy: true}},
		Build: func(_ context.Context, deps container.Deps) (any, error) {
			return &reportSvc{source: container.Arg[container.Provider](deps, 0)}, nil
		},
	})
	c.MustRegister(&container.Definition{
		ID: "source",
		DependsOn: []container.Dependency{{
			Ref:  container.ByID("report"),
			Bind: container.TypedBind(func(s *sourceSvc, dep *reportSvc) { s.report = dep }),
		}},
		Build: func(context.Context, container.Deps) (any, error) { return &sourceSvc{}, nil },
	})

	ctx := context.Background()
	if err := c.Seal(ctx); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	report, err := container.Resolve[*reportSvc](ctx, c, "report")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	src, err := container.ProviderOf[*sourceSvc](report.source)(ctx)
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if src.report != report {
		t.Error("provider should resolve the committed collaborator")
	}
}
