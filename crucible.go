// Package crucible implements a hierarchical dependency injection container.
//
// A Container holds type-to-factory bindings with one of three lifetimes
// (Transient, Singleton, Scoped) and may have child containers. Resolution
// walks from the container a request was made on up through its ancestors,
// so children can shadow parent bindings. Disposal cascades depth first
// through the container tree.
//
// Bindings are created through a fluent builder chain:
//
//	c := crucible.New()
//	err := c.Register(NewUserService).
//	    Singleton().
//	    As((*UserAPI)(nil)).
//	    Err()
//
// and resolved either through the reflect-based container API or the typed
// helpers:
//
//	svc, err := crucible.Resolve[UserAPI](c)
package crucible

import "reflect"

// Factory creates a service instance. The container passed to a factory is a
// resolution view that shares the cycle guard of the resolution call tree in
// flight, so factories may resolve further dependencies through it.
// The requested type is the closed contract type being resolved, which open
// generic factories use to decide what to build.
type Factory func(c *Container, requested reflect.Type) (any, error)

// Disposable is implemented by services that need cleanup when the container
// that created them is disposed.
type Disposable interface {
	Dispose() error
}

var disposableType = reflect.TypeOf((*Disposable)(nil)).Elem()

// New creates a new root container.
func New(opts ...Option) *Container {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	st := &state{
		bindings:     make(map[bindingKey][]*resolver),
		children:     make(map[*state]*Container),
		flags:        cfg.flags,
		middleware:   newMiddlewareChain(cfg.middleware),
		introspector: newTypeIntrospector(),
	}

	return &Container{st: st}
}

func labelOf(label []string) string {
	if len(label) == 0 {
		return ""
	}

	return label[0]
}
