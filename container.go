package crucible

import (
	"reflect"
	"sync"

	"go.uber.org/multierr"
)

// Container is a scope holding contract-to-factory bindings, with an
// optional parent and zero or more children. Registration is always local to
// one container; resolution reads the container's own registry first and
// falls through to ancestors at lookup time.
//
// A Container value handed to a factory during resolution is a view sharing
// all state with the original container plus the cycle guard of the call
// tree in flight.
type Container struct {
	st    *state
	guard *resolveGuard
}

// state is the shared backing store of a container and all its resolution
// views. Scoped instances and child bookkeeping key off the state identity.
type state struct {
	parent *state

	mu          sync.RWMutex
	bindings    map[bindingKey][]*resolver
	children    map[*state]*Container
	disposables []Disposable
	scopedIn    []*resolver
	disposed    bool

	flags        containerFlags
	middleware   *middlewareChain
	introspector *typeIntrospector
}

// session returns a resolution view carrying a cycle guard. Nested calls
// made through a factory's container reuse the in-flight guard.
func (c *Container) session() *Container {
	if c.guard != nil {
		return c
	}

	return &Container{st: c.st, guard: newResolveGuard()}
}

// CreateChildContainer creates a new empty container whose lookups fall
// through to this container. The child inherits configuration flags and
// middleware; options override the inherited configuration. Disposing the
// parent disposes the child.
func (c *Container) CreateChildContainer(opts ...Option) *Container {
	cfg := config{
		flags:      c.st.flags,
		middleware: c.st.middleware.snapshot(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	st := &state{
		parent:       c.st,
		bindings:     make(map[bindingKey][]*resolver),
		children:     make(map[*state]*Container),
		flags:        cfg.flags,
		middleware:   newMiddlewareChain(cfg.middleware),
		introspector: c.st.introspector,
	}

	child := &Container{st: st}

	c.st.mu.Lock()
	if c.st.disposed {
		// A disposed parent cannot host children; the child comes back
		// pre-disposed so every operation on it fails.
		st.disposed = true
	} else {
		c.st.children[st] = child
	}
	c.st.mu.Unlock()

	return child
}

// Use adds middleware to this container. Children created afterwards
// inherit it.
func (c *Container) Use(mw Middleware) {
	c.st.middleware.use(mw)
}

// IsRegistered reports whether this container itself holds a binding for the
// contract type, ignoring ancestors.
func (c *Container) IsRegistered(t reflect.Type, label ...string) bool {
	if t == nil || c.st.isDisposed() {
		return false
	}

	lbl := labelOf(label)
	if len(c.st.stack(typeKeyOf(t, lbl))) > 0 {
		return true
	}

	if name, arity, ok := openNameArity(t); ok {
		return len(c.st.stack(openKeyOf(name, arity, lbl))) > 0
	}

	return false
}

// IsRegisteredInHierarchy reports whether this container or any ancestor
// holds a binding for the contract type.
func (c *Container) IsRegisteredInHierarchy(t reflect.Type, label ...string) bool {
	if t == nil || c.st.isDisposed() {
		return false
	}

	lbl := labelOf(label)
	name, arity, generic := openNameArity(t)

	for st := c.st; st != nil; st = st.parent {
		if len(st.stack(typeKeyOf(t, lbl))) > 0 {
			return true
		}

		if generic && len(st.stack(openKeyOf(name, arity, lbl))) > 0 {
			return true
		}
	}

	return false
}

// Dispose tears down the container: children are disposed first, depth
// first, then every disposable instance this container created, newest
// first, then the registry is cleared and the container detaches from its
// parent. Errors from individual Dispose calls are combined and returned;
// the cascade itself continues past them. Every later operation on the
// container fails with ErrContainerDisposed.
func (c *Container) Dispose() error {
	st := c.st

	st.mu.Lock()
	if st.disposed {
		st.mu.Unlock()

		return ErrContainerDisposed
	}

	st.disposed = true

	children := make([]*Container, 0, len(st.children))
	for _, child := range st.children {
		children = append(children, child)
	}

	disposables := st.disposables
	scopedIn := st.scopedIn
	st.mu.Unlock()

	var err error
	for _, child := range children {
		err = multierr.Append(err, child.Dispose())
	}

	for i := len(disposables) - 1; i >= 0; i-- {
		err = multierr.Append(err, disposables[i].Dispose())
	}

	// Release the scoped instances ancestor resolvers cached for this
	// container, so a disposed child's state is not retained forever.
	for _, r := range scopedIn {
		r.dropScoped(st)
	}

	st.mu.Lock()
	st.bindings = nil
	st.disposables = nil
	st.children = nil
	st.scopedIn = nil
	st.mu.Unlock()

	if st.parent != nil {
		st.parent.removeChild(st)
	}

	st.middleware.afterDispose(err)

	return err
}

// =============================================================================
// STATE ACCESS
// =============================================================================

func (st *state) isDisposed() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return st.disposed
}

// push inserts a resolver at the front of the stack for a key. Pushing a
// resolver that is already present under the key is a no-op, which makes
// repeated binding calls idempotent per key. Returns false when nothing was
// inserted.
func (st *state) push(key bindingKey, r *resolver) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.disposed {
		return false
	}

	current := st.bindings[key]
	for _, existing := range current {
		if existing == r {
			return false
		}
	}

	// Stacks are copy-on-write so resolution can iterate a snapshot without
	// holding the registry lock.
	next := make([]*resolver, 0, len(current)+1)
	next = append(next, r)
	next = append(next, current...)
	st.bindings[key] = next

	return true
}

// stack returns the resolver stack for a key, most recently registered
// first. The returned slice is never mutated after publication.
func (st *state) stack(key bindingKey) []*resolver {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return st.bindings[key]
}

// trackScoped records that a resolver holds a scoped instance for this
// container. Returns false when the container is already disposed, in which
// case the resolver must not cache the instance.
func (st *state) trackScoped(r *resolver) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.disposed {
		return false
	}

	st.scopedIn = append(st.scopedIn, r)

	return true
}

func (st *state) addDisposable(d Disposable) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.disposed {
		return
	}

	st.disposables = append(st.disposables, d)
}

func (st *state) removeChild(child *state) {
	st.mu.Lock()
	defer st.mu.Unlock()

	delete(st.children, child)
}
