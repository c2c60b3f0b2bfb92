package container

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ── Sentinels ─────────────────────────────────────────────────────────────────

var (
	// ErrSealed is returned when a definition, processor, or scope handler is
	// registered after the registry has been sealed.
	ErrSealed = errors.New("container: registry is sealed")

	// ErrClosed is returned by Get and Seal after Close has been called.
	ErrClosed = errors.New("container: container is closed")
)

// ── Registration errors ───────────────────────────────────────────────────────

// DuplicateIDError reports a second registration under an id that is already
// taken.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("container: component id %q is already registered", e.ID)
}

// UnknownComponentError reports a lookup for an id no definition was
// registered under.
type UnknownComponentError struct {
	ID string
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("container: no component registered with id %q", e.ID)
}

// AmbiguousContractError reports a by-contract reference that matches more
// than one registered definition.
type AmbiguousContractError struct {
	Contract reflect.Type
	IDs      []string
}

func (e *AmbiguousContractError) Error() string {
	return fmt.Sprintf("container: contract %s is provided by multiple components: %s",
		e.Contract, strings.Join(e.IDs, ", "))
}

// ── Construction errors ───────────────────────────────────────────────────────

// UnresolvableCircularDependencyError reports a dependency cycle that staged
// exposure cannot break: a member is not a singleton, a member is needed
// before it has been instantiated, or a finalizer replaced an instance whose
// early reference had already been handed out.
type UnresolvableCircularDependencyError struct {
	// Path is the cycle, first id repeated last: ["a", "b", "a"].
	Path []string

	// Reason qualifies why the cycle could not be resolved. Optional.
	Reason string
}

func (e *UnresolvableCircularDependencyError) Error() string {
	msg := "container: unresolvable circular dependency: " + strings.Join(e.Path, " -> ")
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// DependencyResolutionError reports that a component could not be constructed
// because one of its declared dependencies failed. The chain of wrapped errors
// leads to the root cause.
type DependencyResolutionError struct {
	// ID is the component whose construction failed.
	ID string

	// Ref describes the dependency that could not be resolved.
	Ref string

	// Err is the underlying failure.
	Err error
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("container: component %q: resolving dependency %s: %v", e.ID, e.Ref, e.Err)
}

func (e *DependencyResolutionError) Unwrap() error { return e.Err }

// PostProcessingError reports a failed lifecycle callback during construction:
// a post-processor, a substitution hook, or a named init hook.
type PostProcessingError struct {
	// ID is the component being constructed.
	ID string

	// Stage names the failing participant, e.g. `post-processor *tracing.Wrapper`
	// or `init hook "warm-cache"`.
	Stage string

	// Err is the underlying failure.
	Err error
}

func (e *PostProcessingError) Error() string {
	return fmt.Sprintf("container: component %q: %s: %v", e.ID, e.Stage, e.Err)
}

func (e *PostProcessingError) Unwrap() error { return e.Err }

// ── Destruction errors ────────────────────────────────────────────────────────

// DestructionError reports a failed teardown of a single component. Close
// collects one per failing component and joins them; sibling teardown is never
// skipped because of an earlier failure.
type DestructionError struct {
	ID  string
	Err error
}

func (e *DestructionError) Error() string {
	return fmt.Sprintf("container: destroying component %q: %v", e.ID, e.Err)
}

func (e *DestructionError) Unwrap() error { return e.Err }

// ── Scope errors ──────────────────────────────────────────────────────────────

// ScopeNotActiveError reports a resolution of a scoped component outside an
// active carrier of that scope, e.g. a request-scoped component resolved with
// a context that WithRequestScope never touched.
type ScopeNotActiveError struct {
	Scope Scope
}

func (e *ScopeNotActiveError) Error() string {
	return fmt.Sprintf("container: scope %q is not active in this context", e.Scope)
}

// UnknownScopeError reports a definition whose scope has no registered handler.
type UnknownScopeError struct {
	ID    string
	Scope Scope
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("container: component %q uses unknown scope %q", e.ID, e.Scope)
}
