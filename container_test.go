package crucible

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shared fixtures for the container tests.

type database struct {
	dsn string
}

func newDatabase() *database {
	return &database{dsn: "postgres://localhost"}
}

type cache struct {
	db *database
}

func newCache(db *database) *cache {
	return &cache{db: db}
}

type store interface {
	DSN() string
}

func (d *database) DSN() string { return d.dsn }

// tracked records disposal into a shared log so tests can assert order.
type tracked struct {
	name string
	log  *[]string
	err  error
}

func (d *tracked) Dispose() error {
	*d.log = append(*d.log, d.name)

	return d.err
}

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Empty(t, c.Bindings())
}

func TestCreateChildContainer(t *testing.T) {
	parent := New()
	child := parent.CreateChildContainer()
	require.NotNil(t, child)

	err := parent.Register(newDatabase).Singleton().AsSelf().Err()
	require.NoError(t, err)

	// Child sees the parent binding through the hierarchy but does not own it.
	assert.False(t, child.IsRegistered(reflect.TypeOf((*database)(nil))))
	assert.True(t, child.IsRegisteredInHierarchy(reflect.TypeOf((*database)(nil))))
}

func TestChildShadowsParentBinding(t *testing.T) {
	parent := New()
	child := parent.CreateChildContainer()

	parentDB := &database{dsn: "parent"}
	childDB := &database{dsn: "child"}

	require.NoError(t, parent.RegisterInstance(parentDB).As((*store)(nil)).Err())
	require.NoError(t, child.RegisterInstance(childDB).As((*store)(nil)).Err())

	fromChild, err := Resolve[store](child)
	require.NoError(t, err)
	assert.Same(t, childDB, fromChild)

	fromParent, err := Resolve[store](parent)
	require.NoError(t, err)
	assert.Same(t, parentDB, fromParent)
}

func TestMostRecentRegistrationWins(t *testing.T) {
	c := New()

	first := &database{dsn: "first"}
	second := &database{dsn: "second"}

	require.NoError(t, c.RegisterInstance(first).As((*store)(nil)).Err())
	require.NoError(t, c.RegisterInstance(second).As((*store)(nil)).Err())

	resolved, err := Resolve[store](c)
	require.NoError(t, err)
	assert.Same(t, second, resolved)
}

func TestRepeatedBindIsIdempotent(t *testing.T) {
	c := New()

	b := c.RegisterInstance(&database{dsn: "x"})
	require.NoError(t, b.AsSelf().AsSelf().Err())

	infos := c.QueryBindings(BindingQuery{LocalOnly: true})
	assert.Len(t, infos, 1)

	group, err := TryResolveGroup[*database](c)
	require.NoError(t, err)
	assert.Len(t, group, 1)
}

func TestIsRegistered_NilType(t *testing.T) {
	c := New()
	assert.False(t, c.IsRegistered(nil))
	assert.False(t, c.IsRegisteredInHierarchy(nil))
}

func TestDispose_CascadesDepthFirst(t *testing.T) {
	var log []string

	root := New()
	child := root.CreateChildContainer()
	grandchild := child.CreateChildContainer()

	require.NoError(t, root.Register(func() *tracked {
		return &tracked{name: "root", log: &log}
	}).Singleton().AsSelf().Err())
	require.NoError(t, child.Register(func() *tracked {
		return &tracked{name: "child", log: &log}
	}).Singleton().AsSelf().Err())
	require.NoError(t, grandchild.Register(func() *tracked {
		return &tracked{name: "grandchild", log: &log}
	}).Singleton().AsSelf().Err())

	_, err := Resolve[*tracked](root)
	require.NoError(t, err)
	_, err = Resolve[*tracked](child)
	require.NoError(t, err)
	_, err = Resolve[*tracked](grandchild)
	require.NoError(t, err)

	require.NoError(t, root.Dispose())

	assert.Equal(t, []string{"grandchild", "child", "root"}, log)
}

func TestDispose_MiddleOfTreeLeavesRootUntouched(t *testing.T) {
	var log []string

	root := New()
	child := root.CreateChildContainer()
	grandchild := child.CreateChildContainer()

	require.NoError(t, root.Register(func() *tracked {
		return &tracked{name: "conn", log: &log}
	}).Transient().AsSelf().Err())

	// Transient disposables are tracked on the resolving container.
	_, err := Resolve[*tracked](root)
	require.NoError(t, err)
	_, err = Resolve[*tracked](child)
	require.NoError(t, err)
	_, err = Resolve[*tracked](grandchild)
	require.NoError(t, err)

	log = log[:0]

	require.NoError(t, child.Dispose())

	// Child's and grandchild's instances disposed exactly once each.
	assert.Equal(t, []string{"conn", "conn"}, log)

	// The root is untouched and still resolvable.
	_, err = Resolve[*tracked](root)
	require.NoError(t, err)

	require.NoError(t, root.Dispose())
}

func TestDispose_NewestFirstWithinContainer(t *testing.T) {
	var log []string

	c := New()

	require.NoError(t, c.RegisterFactory((*tracked)(nil), func(*Container, reflect.Type) (any, error) {
		return &tracked{name: "a", log: &log}, nil
	}).Singleton().AsSelf("a").Err())
	require.NoError(t, c.RegisterFactory((*tracked)(nil), func(*Container, reflect.Type) (any, error) {
		return &tracked{name: "b", log: &log}, nil
	}).Singleton().AsSelf("b").Err())

	_, err := Resolve[*tracked](c, "a")
	require.NoError(t, err)
	_, err = Resolve[*tracked](c, "b")
	require.NoError(t, err)

	require.NoError(t, c.Dispose())

	assert.Equal(t, []string{"b", "a"}, log)
}

func TestDispose_CollectsErrorsAndContinues(t *testing.T) {
	var log []string

	bad := errors.New("close failed")

	c := New()
	require.NoError(t, c.RegisterFactory((*tracked)(nil), func(*Container, reflect.Type) (any, error) {
		return &tracked{name: "bad", log: &log, err: bad}, nil
	}).Singleton().AsSelf("bad").Err())
	require.NoError(t, c.RegisterFactory((*tracked)(nil), func(*Container, reflect.Type) (any, error) {
		return &tracked{name: "good", log: &log}, nil
	}).Singleton().AsSelf("good").Err())

	_, err := Resolve[*tracked](c, "bad")
	require.NoError(t, err)
	_, err = Resolve[*tracked](c, "good")
	require.NoError(t, err)

	err = c.Dispose()
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, []string{"good", "bad"}, log)
}

func TestDispose_ReleasesScopedInstances(t *testing.T) {
	parent := New()
	require.NoError(t, parent.Register(newDatabase).Scoped().AsSelf().Err())

	// Repeated child lifecycles must not accumulate state on the parent's
	// scoped resolver.
	for i := 0; i < 100; i++ {
		child := parent.CreateChildContainer()

		_, err := Resolve[*database](child)
		require.NoError(t, err)
		require.NoError(t, child.Dispose())
	}

	r := parent.st.stack(typeKeyOf(reflect.TypeOf((*database)(nil)), ""))[0]

	r.mu.RLock()
	cached := len(r.scoped)
	r.mu.RUnlock()

	assert.Zero(t, cached)

	// The parent's own scoped instance survives child disposal.
	first, err := Resolve[*database](parent)
	require.NoError(t, err)

	second, err := Resolve[*database](parent)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestDispose_SecondCallFails(t *testing.T) {
	c := New()
	require.NoError(t, c.Dispose())
	assert.ErrorIs(t, c.Dispose(), ErrContainerDisposed)
}

func TestDisposedContainerRejectsOperations(t *testing.T) {
	c := New()
	require.NoError(t, c.Dispose())

	assert.ErrorIs(t, c.Register(newDatabase).Singleton().AsSelf().Err(), ErrContainerDisposed)

	_, err := Resolve[*database](c)
	assert.ErrorIs(t, err, ErrContainerDisposed)

	assert.False(t, c.IsRegistered(reflect.TypeOf((*database)(nil))))
}

func TestDispose_ChildOfDisposedParent(t *testing.T) {
	parent := New()
	require.NoError(t, parent.Dispose())

	child := parent.CreateChildContainer()

	_, err := Resolve[*database](child)
	assert.ErrorIs(t, err, ErrContainerDisposed)
}

func TestDispose_DetachesFromParent(t *testing.T) {
	parent := New()
	child := parent.CreateChildContainer()

	require.NoError(t, child.Dispose())

	// Disposing the parent afterwards must not touch the detached child again.
	require.NoError(t, parent.Dispose())
}

func TestRegisterInstance_NotTrackedForDisposal(t *testing.T) {
	var log []string

	c := New()
	require.NoError(t, c.RegisterInstance(&tracked{name: "external", log: &log}).AsSelf().Err())

	_, err := Resolve[*tracked](c)
	require.NoError(t, err)

	require.NoError(t, c.Dispose())
	assert.Empty(t, log)
}
