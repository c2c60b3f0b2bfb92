package container

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ── Scope ─────────────────────────────────────────────────────────────────────

// Scope names the instance policy of a component.
type Scope string

const (
	// ScopeSingleton components are constructed once and cached until Close.
	ScopeSingleton Scope = "singleton"

	// ScopePrototype components are constructed fresh on every Get and never
	// retained; the caller owns teardown (see Container.Destroy).
	ScopePrototype Scope = "prototype"

	// ScopeRequest is the conventional name for the request-carrier scope
	// served by NewRequestScope. The handler must still be registered.
	ScopeRequest Scope = "request"

	// ScopeSession is the conventional name for the named-session scope
	// served by NewSessionScope.
	ScopeSession Scope = "session"
)

func (s Scope) String() string { return string(s) }

// ── ScopeHandler SPI ──────────────────────────────────────────────────────────

// ScopedCreate constructs a scoped instance on demand. The returned destroy
// function, if non-nil, tears the instance down when the scope ends.
type ScopedCreate func(ctx context.Context) (obj any, destroy func(context.Context) error, err error)

// ScopeHandler stores instances for one custom scope. Implementations decide
// what a "scope carrier" is: a request context, a named session, a tenant.
//
// Components in custom scopes do not participate in staged exposure: a
// dependency cycle can only resolve by re-entering at a singleton member,
// never at the scoped one.
type ScopeHandler interface {
	// Get returns the instance of id for the carrier identified by ctx,
	// running create when none is stored yet. Concurrent first touches may
	// each run create; exactly one result is retained per carrier and the
	// losers are destroyed.
	Get(ctx context.Context, id string, create ScopedCreate) (any, error)

	// Remove drops the instance of id from the carrier without destroying it.
	Remove(ctx context.Context, id string) error

	// Close ends every live carrier, destroying retained instances. Called by
	// Container.Close after singleton teardown.
	Close(ctx context.Context) error
}

// ── Scoped instance store ─────────────────────────────────────────────────────

// scopeStore holds the instances of one scope carrier. Destroyers run in
// reverse insertion order at release.
type scopeStore struct {
	mu         sync.Mutex
	released   bool
	instances  map[string]any
	destroyers map[string]func(context.Context) error
	order      []string
}

func newScopeStore() *scopeStore {
	return &scopeStore{
		instances:  make(map[string]any),
		destroyers: make(map[string]func(context.Context) error),
	}
}

func (s *scopeStore) get(ctx context.Context, id string, create ScopedCreate) (any, error) {
	s.mu.Lock()
	if v, ok := s.instances[id]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	// Construction happens outside the store lock: scoped components may
	// depend on other components of the same scope.
	obj, destroy, err := create(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if v, ok := s.instances[id]; ok {
		// Lost a concurrent first touch; keep the winner, discard ours.
		s.mu.Unlock()
		if destroy != nil {
			_ = destroy(ctx)
		}
		return v, nil
	}
	s.instances[id] = obj
	if destroy != nil {
		s.destroyers[id] = destroy
		s.order = append(s.order, id)
	}
	s.mu.Unlock()
	return obj, nil
}

func (s *scopeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
	delete(s.destroyers, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
}

// release destroys retained instances in reverse insertion order. Safe to call
// more than once; later calls are no-ops.
func (s *scopeStore) release(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	order := s.order
	destroyers := s.destroyers
	s.instances = make(map[string]any)
	s.destroyers = make(map[string]func(context.Context) error)
	s.order = nil
	s.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if destroy := destroyers[order[i]]; destroy != nil {
			if err := destroy(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ── Request scope ─────────────────────────────────────────────────────────────

type requestScopeKey struct{}

// WithRequestScope opens a fresh request carrier on ctx. Every component in
// ScopeRequest resolved through the returned context shares one instance set.
//
//	ctx := container.WithRequestScope(r.Context())
//	defer container.ReleaseRequestScope(ctx)
func WithRequestScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestScopeKey{}, newScopeStore())
}

// ReleaseRequestScope ends the request carrier on ctx, destroying its
// instances in reverse creation order. No-op if ctx carries no scope.
func ReleaseRequestScope(ctx context.Context) error {
	store, ok := ctx.Value(requestScopeKey{}).(*scopeStore)
	if !ok {
		return nil
	}
	return store.release(ctx)
}

// RequestScope serves ScopeRequest from a context-carried store. The handler
// itself is stateless; carriers live and die with their contexts.
type RequestScope struct{}

// NewRequestScope returns a handler for ScopeRequest.
func NewRequestScope() *RequestScope { return &RequestScope{} }

func (*RequestScope) store(ctx context.Context) (*scopeStore, error) {
	store, ok := ctx.Value(requestScopeKey{}).(*scopeStore)
	if !ok {
		return nil, &ScopeNotActiveError{Scope: ScopeRequest}
	}
	return store, nil
}

func (s *RequestScope) Get(ctx context.Context, id string, create ScopedCreate) (any, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.get(ctx, id, create)
}

func (s *RequestScope) Remove(ctx context.Context, id string) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}
	store.remove(id)
	return nil
}

func (*RequestScope) Close(context.Context) error { return nil }

// ── Session scope ─────────────────────────────────────────────────────────────

type sessionKey struct{}

// WithSession tags ctx with the session name that ScopeSession components
// resolve against.
func WithSession(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, sessionKey{}, name)
}

// SessionScope serves ScopeSession from named stores. Sessions are created on
// first use and live until End or Close.
type SessionScope struct {
	mu       sync.Mutex
	sessions map[string]*scopeStore
}

// NewSessionScope returns a handler for ScopeSession.
func NewSessionScope() *SessionScope {
	return &SessionScope{sessions: make(map[string]*scopeStore)}
}

func (s *SessionScope) store(ctx context.Context, createMissing bool) (*scopeStore, error) {
	name, ok := ctx.Value(sessionKey{}).(string)
	if !ok || name == "" {
		return nil, &ScopeNotActiveError{Scope: ScopeSession}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	store, ok := s.sessions[name]
	if !ok {
		if !createMissing {
			return nil, nil
		}
		store = newScopeStore()
		s.sessions[name] = store
	}
	return store, nil
}

func (s *SessionScope) Get(ctx context.Context, id string, create ScopedCreate) (any, error) {
	store, err := s.store(ctx, true)
	if err != nil {
		return nil, err
	}
	return store.get(ctx, id, create)
}

func (s *SessionScope) Remove(ctx context.Context, id string) error {
	store, err := s.store(ctx, false)
	if err != nil || store == nil {
		return err
	}
	store.remove(id)
	return nil
}

// End releases one named session, destroying its instances.
func (s *SessionScope) End(ctx context.Context, name string) error {
	s.mu.Lock()
	store, ok := s.sessions[name]
	delete(s.sessions, name)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return store.release(ctx)
}

// Close releases every live session in name order.
func (s *SessionScope) Close(ctx context.Context) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	stores := make(map[string]*scopeStore, len(names))
	for _, name := range names {
		stores[name] = s.sessions[name]
	}
	s.sessions = make(map[string]*scopeStore)
	s.mu.Unlock()

	slices.Sort(names)
	var errs []error
	for _, name := range names {
		if err := stores[name].release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
