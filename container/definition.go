package container

import (
	"context"
	"fmt"
	"reflect"
)

// ── Factory types ─────────────────────────────────────────────────────────────

// Deps carries the resolved construction arguments of a component, in the
// order the argument dependencies were declared. Only dependencies without a
// Bind function appear here; bound dependencies are attached after the factory
// has returned.
type Deps []any

// Arg returns the i-th construction argument as T.
//
//	Build: func(ctx context.Context, deps container.Deps) (any, error) {
//	    return sink.New(container.Arg[*Store](deps, 0)), nil
//	}
func Arg[T any](deps Deps, i int) T {
	if i < 0 || i >= len(deps) {
		panic(fmt.Sprintf("container: Arg[%T]: index %d out of range (have %d args)", *new(T), i, len(deps)))
	}
	typed, ok := deps[i].(T)
	if !ok {
		panic(fmt.Sprintf("container: Arg[%T]: argument %d is %T", *new(T), i, deps[i]))
	}
	return typed
}

// Factory builds a bare component instance. Construction arguments arrive in
// deps; dependencies declared with a Bind function are attached afterwards, so
// the instance a Factory returns may still be unpopulated.
type Factory func(ctx context.Context, deps Deps) (any, error)

// Provider resolves a component on first call instead of at wiring time. It is
// what a lazy dependency delivers: invoking it after construction has finished
// returns the fully initialized component.
type Provider func(ctx context.Context) (any, error)

// ProviderOf adapts an untyped Provider into one returning T.
//
//	var users Provider = ...
//	repo, err := container.ProviderOf[*UserRepo](users)(ctx)
func ProviderOf[T any](p Provider) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		v, err := p(ctx)
		if err != nil {
			var zero T
			return zero, err
		}
		typed, ok := v.(T)
		if !ok {
			var zero T
			return zero, fmt.Errorf("container: ProviderOf[%T]: provider yielded %T", zero, v)
		}
		return typed, nil
	}
}

// ── References ────────────────────────────────────────────────────────────────

// Ref identifies the target of a dependency, either by component id or by
// contract type. By-contract references are resolved against the registry and
// must match exactly one definition.
type Ref struct {
	id  string
	typ reflect.Type
}

// ByID references a component by its registered id.
func ByID(id string) Ref { return Ref{id: id} }

// ByType references the single component registered with contract type T.
//
//	Ref: container.ByType[*redis.Client]()
func ByType[T any]() Ref { return Ref{typ: reflect.TypeFor[T]()} }

// IsZero reports whether the reference is empty.
func (r Ref) IsZero() bool { return r.id == "" && r.typ == nil }

func (r Ref) String() string {
	if r.typ != nil {
		return "type:" + r.typ.String()
	}
	return r.id
}

// TypeFor returns the reflect.Type of T, for use as a Definition contract.
//
//	Type: container.TypeFor[storage.Store]()
func TypeFor[T any]() reflect.Type { return reflect.TypeFor[T]() }

// ── Dependencies ──────────────────────────────────────────────────────────────

// BindFunc attaches a resolved dependency to a target instance after the
// target's factory has returned.
type BindFunc func(target, dep any) error

// TypedBind wraps a typed attachment function into a BindFunc.
//
//	container.TypedBind(func(s *Server, db *DB) { s.DB = db })
func TypedBind[T, D any](fn func(target T, dep D)) BindFunc {
	return func(target, dep any) error {
		t, ok := target.(T)
		if !ok {
			return fmt.Errorf("bind: target is %T, want %T", target, *new(T))
		}
		d, ok := dep.(D)
		if !ok {
			return fmt.Errorf("bind: dependency is %T, want %T", dep, *new(D))
		}
		fn(t, d)
		return nil
	}
}

// Dependency declares one inbound edge of a component.
//
// With Bind set, the dependency is resolved after the factory has returned and
// attached via Bind: the population style that staged exposure can satisfy
// inside a cycle. Without Bind, the dependency is a construction argument,
// resolved before the factory runs and passed in Deps: a member of a cycle
// whose in-cycle edge is an argument edge cannot be constructed.
//
// Lazy delivers a Provider instead of the resolved value, deferring the actual
// resolution to the first Provider call.
type Dependency struct {
	Ref  Ref
	Bind BindFunc
	Lazy bool
}

// argument reports whether the dependency is consumed by the factory itself.
func (d Dependency) argument() bool { return d.Bind == nil }

// ── Lifecycle hooks ───────────────────────────────────────────────────────────

// Hook is a named lifecycle callback, run against the component instance.
type Hook struct {
	Name string
	Run  func(ctx context.Context, obj any) error
}

// Initializer is implemented by component instances that want an init callback
// without registering a hook. It runs before any InitHooks.
type Initializer interface {
	InitComponent(ctx context.Context) error
}

// ── Definition ────────────────────────────────────────────────────────────────

// Definition is the declarative recipe for one managed component. Definitions
// are immutable once registered.
type Definition struct {
	// ID is the unique component id. Required.
	ID string

	// Type optionally declares the contract this component provides, enabling
	// ByType references to it.
	Type reflect.Type

	// Scope selects the instance policy. Empty means ScopeSingleton.
	Scope Scope

	// DependsOn lists dependencies in declaration order.
	DependsOn []Dependency

	// Build constructs the bare instance. Required.
	Build Factory

	// InitHooks run after population and the Initializer interface, in order.
	InitHooks []Hook

	// DestroyHooks run at teardown, after DestructionAware processors and
	// io.Closer, in order.
	DestroyHooks []Hook

	// IsLazy excludes the component from eager instantiation at Seal. It is
	// still constructed on first Get.
	IsLazy bool
}

// scope returns the effective scope, defaulting empty to singleton.
func (d *Definition) scope() Scope {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}

// arguments returns the construction-argument subset of DependsOn, in order.
func (d *Definition) arguments() []Dependency {
	var args []Dependency
	for _, dep := range d.DependsOn {
		if dep.argument() {
			args = append(args, dep)
		}
	}
	return args
}

// validate checks structural well-formedness. Reference and scope resolution
// happen later, against the registry.
func (d *Definition) validate() error {
	if d.ID == "" {
		return fmt.Errorf("container: definition has no id")
	}
	if d.Build == nil {
		return fmt.Errorf("container: definition %q has no Build factory", d.ID)
	}
	for i, dep := range d.DependsOn {
		if dep.Ref.IsZero() {
			return fmt.Errorf("container: definition %q: dependency %d has an empty reference", d.ID, i)
		}
		if dep.Ref.id == d.ID && dep.argument() && !dep.Lazy {
			return fmt.Errorf("container: definition %q depends on itself as a construction argument", d.ID)
		}
	}
	for i, h := range d.InitHooks {
		if h.Run == nil {
			return fmt.Errorf("container: definition %q: init hook %d (%q) has no Run", d.ID, i, h.Name)
		}
	}
	for i, h := range d.DestroyHooks {
		if h.Run == nil {
			return fmt.Errorf("container: definition %q: destroy hook %d (%q) has no Run", d.ID, i, h.Name)
		}
	}
	return nil
}
