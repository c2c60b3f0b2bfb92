package container

import "fmt"

// ── Registrar ─────────────────────────────────────────────────────────────────

// Registrar contributes definitions, processors, and scope handlers to a
// container before it is sealed. It is the programmatic end of definition
// discovery: whatever produces component recipes hands them over as a
// Registrar, and the container stays ignorant of where they came from.
//
//	type StorageComponents struct{}
//
//	func (StorageComponents) RegisterComponents(c *container.Container) error {
//	    return c.Register(&container.Definition{
//	        ID:    "store",
//	        Build: func(ctx context.Context, _ container.Deps) (any, error) {
//	            return store.Open(ctx)
//	        },
//	    })
//	}
type Registrar interface {
	RegisterComponents(c *Container) error
}

// RegistrarFunc adapts a plain function into a Registrar.
type RegistrarFunc func(c *Container) error

func (f RegistrarFunc) RegisterComponents(c *Container) error { return f(c) }

// Apply runs registrars in order, stopping at the first failure. Call it
// before Seal.
func (c *Container) Apply(registrars ...Registrar) error {
	for _, r := range registrars {
		if err := r.RegisterComponents(c); err != nil {
			return fmt.Errorf("container: applying registrar %T: %w", r, err)
		}
	}
	return nil
}
