package crucible

import (
	"reflect"
	"sync"
)

// Lifetime controls how instances produced by a binding are cached.
type Lifetime uint8

const (
	// Transient creates a new instance on every resolution.
	Transient Lifetime = iota

	// Singleton creates a single instance, lazily, against the registering
	// container. Every descendant observes the same instance.
	Singleton

	// Scoped creates one instance per container, lazily per container,
	// sharing the same factory logic.
	Scoped
)

// String returns the string representation of the lifetime.
func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	default:
		return "transient"
	}
}

// resolver is one registered (factory, lifetime) pair bound under one or more
// binding keys. The same resolver may be pushed under several keys (AsSelf
// plus interfaces, for example); duplicate insertion under one key is a no-op
// checked by resolver identity.
type resolver struct {
	factory  Factory
	lifetime Lifetime
	concrete reflect.Type // produced type when known, nil for open generics
	owner    *state       // registering container

	mu     sync.RWMutex
	done   bool
	value  any
	scoped map[*state]any
}

// resolve produces an instance for the requested contract type against the
// given resolution view.
func (r *resolver) resolve(s *Container, requested reflect.Type) (any, error) {
	switch r.lifetime {
	case Singleton:
		return r.resolveSingleton(s, requested)
	case Scoped:
		return r.resolveScoped(s, requested)
	default:
		return r.invoke(s, s.st, requested)
	}
}

// resolveSingleton memoizes the instance against the registering container.
// Concurrent first resolutions serialize on the resolver lock, so double
// construction is not observable. A failed construction is not cached and
// the next resolution retries.
func (r *resolver) resolveSingleton(s *Container, requested reflect.Type) (any, error) {
	r.mu.RLock()
	if r.done {
		value := r.value
		r.mu.RUnlock()

		return value, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return r.value, nil
	}

	// Construct against the registering container, carrying the in-flight
	// guard so nested resolution stays within the same call tree.
	owner := &Container{st: r.owner, guard: s.guard}

	instance, err := r.invoke(owner, r.owner, requested)
	if err != nil {
		return nil, err
	}

	r.value = instance
	r.done = true

	return instance, nil
}

// resolveScoped keeps one lazily created instance per resolving container.
// The resolving container records which resolvers cache an instance for it,
// so its disposal can release the entry.
func (r *resolver) resolveScoped(s *Container, requested reflect.Type) (any, error) {
	st := s.st

	r.mu.Lock()
	defer r.mu.Unlock()

	if instance, ok := r.scoped[st]; ok {
		return instance, nil
	}

	instance, err := r.invoke(s, st, requested)
	if err != nil {
		return nil, err
	}

	// A container disposed mid-resolution gets no cache entry; the instance
	// is still handed to the caller.
	if !st.trackScoped(r) {
		return instance, nil
	}

	if r.scoped == nil {
		r.scoped = make(map[*state]any)
	}

	r.scoped[st] = instance

	return instance, nil
}

// dropScoped releases the scoped instance cached for a disposed container.
func (r *resolver) dropScoped(st *state) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.scoped, st)
}

// invoke calls the factory under the cycle guard and tracks disposable
// instances on the container that owns their lifetime: the registering
// container for singletons, the resolving container for scoped and transient
// instances. Memoized values never re-enter the guard; only actual
// construction does.
func (r *resolver) invoke(s *Container, owner *state, requested reflect.Type) (any, error) {
	target := r.concrete
	if target == nil {
		target = requested
	}

	if s.st.flags.circularCheck && s.guard != nil {
		if err := s.guard.enter(target); err != nil {
			return nil, err
		}
		defer s.guard.exit()
	}

	instance, err := r.factory(s, requested)
	if err != nil {
		return nil, err
	}

	if d, ok := instance.(Disposable); ok {
		owner.addDisposable(d)
	}

	return instance, nil
}
