package suite

import (
	"errors"
	"fmt"
)

// ErrRegistryClosed is returned by Register once scheduling has started.
var ErrRegistryClosed = errors.New("registry is closed")

// Registry is the ordered set of known units.
//
// Units are registered once, before the first scheduling pass, and are
// iterated in insertion order. The first RunPhase closes the registry.
type Registry struct {
	units  []*Unit
	byName map[string]*Unit
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Unit)}
}

// Register appends units in order. It rejects empty or duplicate names,
// invalid phases and registration after Close.
func (r *Registry) Register(units ...*Unit) error {
	for _, u := range units {
		if u == nil {
			return errors.New("register: nil unit")
		}
		if r.closed {
			return fmt.Errorf("register %q: %w", u.Name, ErrRegistryClosed)
		}
		if u.Name == "" {
			return errors.New("register: unit name is required")
		}
		if !u.Phase.Valid() {
			return fmt.Errorf("register %q: invalid phase %d", u.Name, int(u.Phase))
		}
		if _, dup := r.byName[u.Name]; dup {
			return fmt.Errorf("register %q: duplicate unit name", u.Name)
		}
		u.setup = SetupNotRun
		r.units = append(r.units, u)
		r.byName[u.Name] = u
	}
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(units ...*Unit) {
	if err := r.Register(units...); err != nil {
		panic(err)
	}
}

// Close stops further registration. It is idempotent.
func (r *Registry) Close() {
	r.closed = true
}

// Closed reports whether registration has been closed.
func (r *Registry) Closed() bool {
	return r.closed
}

// Lookup finds a unit by exact name.
func (r *Registry) Lookup(name string) (*Unit, bool) {
	u, ok := r.byName[name]
	return u, ok
}

// Units returns the units in registration order. The slice is a copy.
func (r *Registry) Units() []*Unit {
	out := make([]*Unit, len(r.units))
	copy(out, r.units)
	return out
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	return len(r.units)
}
