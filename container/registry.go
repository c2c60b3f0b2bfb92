package container

import (
	"fmt"
	"iter"
	"reflect"
	"sync"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ── Definition registry ───────────────────────────────────────────────────────

// registry stores definitions in registration order. It is open for
// registration until sealed; iteration order is registration order, which is
// also the eager-instantiation order at Seal.
type registry struct {
	mu     sync.RWMutex
	defs   *orderedmap.OrderedMap[string, *Definition]
	byType map[reflect.Type][]string
	sealed atomic.Bool
}

func newRegistry() *registry {
	return &registry{
		defs:   orderedmap.New[string, *Definition](),
		byType: make(map[reflect.Type][]string),
	}
}

// register adds a definition. Fails on structural problems, duplicate ids, and
// after sealing.
func (r *registry) register(def *Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	if r.sealed.Load() {
		return fmt.Errorf("registering %q: %w", def.ID, ErrSealed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs.Get(def.ID); exists {
		return &DuplicateIDError{ID: def.ID}
	}
	r.defs.Set(def.ID, def)
	if def.Type != nil {
		r.byType[def.Type] = append(r.byType[def.Type], def.ID)
	}
	return nil
}

// lookup returns the definition registered under id.
func (r *registry) lookup(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs.Get(id)
	if !ok {
		return nil, &UnknownComponentError{ID: id}
	}
	return def, nil
}

// resolveRef maps a reference to a concrete component id. By-contract
// references must match exactly one definition.
func (r *registry) resolveRef(ref Ref) (string, error) {
	if ref.typ == nil {
		r.mu.RLock()
		_, ok := r.defs.Get(ref.id)
		r.mu.RUnlock()
		if !ok {
			return "", &UnknownComponentError{ID: ref.id}
		}
		return ref.id, nil
	}

	r.mu.RLock()
	ids := r.byType[ref.typ]
	r.mu.RUnlock()
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return "", &UnknownComponentError{ID: ref.String()}
	default:
		return "", &AmbiguousContractError{Contract: ref.typ, IDs: ids}
	}
}

// seal freezes the registry. Idempotent.
func (r *registry) seal() { r.sealed.Store(true) }

func (r *registry) isSealed() bool { return r.sealed.Load() }

func (r *registry) has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs.Get(id)
	return ok
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defs.Len()
}

// all iterates definitions in registration order. The sequence walks a
// snapshot, so it stays valid while other goroutines register.
func (r *registry) all() iter.Seq[*Definition] {
	r.mu.RLock()
	snapshot := make([]*Definition, 0, r.defs.Len())
	for pair := r.defs.Oldest(); pair != nil; pair = pair.Next() {
		snapshot = append(snapshot, pair.Value)
	}
	r.mu.RUnlock()

	return func(yield func(*Definition) bool) {
		for _, def := range snapshot {
			if !yield(def) {
				return
			}
		}
	}
}

// ids returns all component ids in registration order.
func (r *registry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, r.defs.Len())
	for pair := r.defs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}
