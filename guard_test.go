package crucible

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceA struct {
	b *serviceB
}

type serviceB struct {
	a *serviceA
}

func newServiceA(b *serviceB) *serviceA { return &serviceA{b: b} }

func newServiceB(a *serviceA) *serviceB { return &serviceB{a: a} }

func TestCircularDependency_Detected(t *testing.T) {
	c := New()

	require.NoError(t, c.Register(newServiceA).Singleton().AsSelf().Err())
	require.NoError(t, c.Register(newServiceB).Singleton().AsSelf().Err())

	_, err := Resolve[*serviceA](c)
	require.Error(t, err)

	var cycleErr *CircularDependencyError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, CodeCircularDependency, cycleErr.Code())
	assert.Equal(t, reflect.TypeOf((*serviceA)(nil)), cycleErr.Type)

	// The chain ends with the repeated type.
	require.NotEmpty(t, cycleErr.Chain)
	assert.Equal(t, cycleErr.Chain[0], cycleErr.Chain[len(cycleErr.Chain)-1])
}

func TestCircularDependency_SelfReference(t *testing.T) {
	type node struct{ next *node }

	c := New()
	require.NoError(t, c.Register(func(next *node) *node {
		return &node{next: next}
	}).Transient().AsSelf().Err())

	_, err := Resolve[*node](c)

	var cycleErr *CircularDependencyError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestCircularDependency_FactoryReentry(t *testing.T) {
	c := New()

	require.NoError(t, c.RegisterFactory((*serviceA)(nil), func(s *Container, _ reflect.Type) (any, error) {
		b, err := Resolve[*serviceB](s)
		if err != nil {
			return nil, err
		}

		return &serviceA{b: b}, nil
	}).Transient().AsSelf().Err())

	require.NoError(t, c.RegisterFactory((*serviceB)(nil), func(s *Container, _ reflect.Type) (any, error) {
		a, err := Resolve[*serviceA](s)
		if err != nil {
			return nil, err
		}

		return &serviceB{a: a}, nil
	}).Transient().AsSelf().Err())

	_, err := Resolve[*serviceA](c)

	var cycleErr *CircularDependencyError
	assert.ErrorAs(t, err, &cycleErr)
}

type decoratorParams struct {
	In

	Raw *database `name:"raw"`
}

func TestCircularCheck_InstanceDecoratorIsNotACycle(t *testing.T) {
	// A constructor producing T from an already-constructed, labeled T is
	// acyclic: memoized values are never under construction.
	c := New()

	raw := &database{dsn: "raw"}
	require.NoError(t, c.RegisterInstance(raw).AsSelf("raw").Err())
	require.NoError(t, c.Register(func(p decoratorParams) *database {
		return &database{dsn: p.Raw.dsn + "+pool"}
	}).Transient().AsSelf().Err())

	resolved, err := Resolve[*database](c)
	require.NoError(t, err)
	assert.Equal(t, "raw+pool", resolved.dsn)
}

func TestCircularCheck_MemoizedSingletonOnStack(t *testing.T) {
	c := New()

	require.NoError(t, c.Register(newDatabase).Singleton().AsSelf().Err())

	// Materialize the singleton, then resolve it again from inside a factory
	// constructing the same type under a label.
	_, err := Resolve[*database](c)
	require.NoError(t, err)

	require.NoError(t, c.Register(func(p decoratorParams) *database {
		return &database{dsn: p.Raw.dsn + "+wrapped"}
	}).Transient().AsSelf("wrapped").Err())
	require.NoError(t, c.Register(newDatabase).Singleton().AsSelf("raw").Err())

	_, err = Resolve[*database](c, "raw")
	require.NoError(t, err)

	resolved, err := Resolve[*database](c, "wrapped")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost+wrapped", resolved.dsn)
}

func TestCircularCheck_DoesNotAffectDiamonds(t *testing.T) {
	// A diamond (two paths to a shared dependency) is acyclic and must
	// resolve.
	type shared struct{}

	type left struct{ s *shared }

	type right struct{ s *shared }

	type top struct {
		l *left
		r *right
	}

	c := New()
	require.NoError(t, c.Register(func() *shared { return &shared{} }).Singleton().AsSelf().Err())
	require.NoError(t, c.Register(func(s *shared) *left { return &left{s: s} }).Transient().AsSelf().Err())
	require.NoError(t, c.Register(func(s *shared) *right { return &right{s: s} }).Transient().AsSelf().Err())
	require.NoError(t, c.Register(func(l *left, r *right) *top { return &top{l: l, r: r} }).Transient().AsSelf().Err())

	resolved, err := Resolve[*top](c)
	require.NoError(t, err)
	assert.Same(t, resolved.l.s, resolved.r.s)
}

func TestCircularCheck_GuardResetsBetweenCalls(t *testing.T) {
	c := New()

	require.NoError(t, c.Register(newDatabase).Transient().AsSelf().Err())

	_, err := Resolve[*database](c)
	require.NoError(t, err)

	// A second top level resolve of the same type starts a fresh guard.
	_, err = Resolve[*database](c)
	assert.NoError(t, err)
}
