package crucible

import "sync"

// Lazy defers resolution of T until first use and memoizes the result,
// including a resolution error. Useful for breaking construction order
// dependencies without paying for unresolved services.
//
//	lazyDB := crucible.NewLazy[*Database](c)
//	...
//	db, err := lazyDB.Get()
type Lazy[T any] struct {
	c     *Container
	label string

	once  sync.Once
	value T
	err   error
}

// NewLazy creates a lazy handle on T in the given container.
func NewLazy[T any](c *Container, label ...string) *Lazy[T] {
	return &Lazy[T]{c: c, label: labelOf(label)}
}

// Get resolves T on first call and returns the memoized result afterwards.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.value, l.err = Resolve[T](l.c, l.label)
	})

	return l.value, l.err
}

// MustGet is like Get but panics on failure.
func (l *Lazy[T]) MustGet() T {
	value, err := l.Get()
	if err != nil {
		panic(err)
	}

	return value
}

// Provider resolves T freshly on every call, so transient and scoped
// lifetimes keep their semantics. Factories can depend on a Provider to pull
// new instances on demand instead of capturing one at construction time.
type Provider[T any] struct {
	c     *Container
	label string
}

// NewProvider creates a provider of T in the given container.
func NewProvider[T any](c *Container, label ...string) *Provider[T] {
	return &Provider[T]{c: c, label: labelOf(label)}
}

// Provide resolves a T through the container.
func (p *Provider[T]) Provide() (T, error) {
	return Resolve[T](p.c, p.label)
}
