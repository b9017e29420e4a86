package crucible

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler struct {
	DB    *database `inject:""`
	Cache *database `inject:"" name:"cache"`
	Opt   *cache    `inject:"" optional:"true"`

	store store
}

func (h *handler) InjectStore(s store) {
	h.store = s
}

func TestInjectAll_Fields(t *testing.T) {
	c := New()

	main := &database{dsn: "main"}
	side := &database{dsn: "side"}

	require.NoError(t, c.RegisterInstance(main).AsSelf().As((*store)(nil)).Err())
	require.NoError(t, c.RegisterInstance(side).AsSelf("cache").Err())

	h := &handler{}
	require.NoError(t, c.InjectAll(h))

	assert.Same(t, main, h.DB)
	assert.Same(t, side, h.Cache)
	assert.Nil(t, h.Opt)
	assert.Same(t, main, h.store)
}

func TestInjectAll_MissingRequired(t *testing.T) {
	c := New()

	h := &handler{}
	err := c.InjectAll(h)
	require.Error(t, err)

	var injErr *InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Equal(t, CodeInjection, injErr.Code())
}

func TestInjectAll_NilInstance(t *testing.T) {
	c := New()
	assert.Error(t, c.InjectAll(nil))
}

type sealed struct {
	db *database `inject:""`
}

func TestInjectAll_UnexportedField(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance(newDatabase()).AsSelf().Err())

	err := c.InjectAll(&sealed{})
	require.Error(t, err)

	var injErr *InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Equal(t, "db", injErr.Member)
}

type initable struct {
	db  *database
	err error
}

func (i *initable) InjectDatabase(db *database) error {
	i.db = db

	return i.err
}

func TestInjectAll_MethodError(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance(newDatabase()).AsSelf().Err())

	boom := errors.New("init failed")

	err := c.InjectAll(&initable{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestInjectAll_Method(t *testing.T) {
	c := New()
	db := newDatabase()
	require.NoError(t, c.RegisterInstance(db).AsSelf().Err())

	i := &initable{}
	require.NoError(t, c.InjectAll(i))
	assert.Same(t, db, i.db)
}

func TestInstantiate(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(newDatabase).Singleton().AsSelf().Err())

	built, err := Instantiate[*cache](c, newCache)
	require.NoError(t, err)
	assert.NotNil(t, built.db)

	// Instantiate does not register the constructed type.
	assert.False(t, IsRegistered[*cache](c))
}

func TestInstantiate_MemberInjection(t *testing.T) {
	c := New()
	db := newDatabase()
	require.NoError(t, c.RegisterInstance(db).AsSelf().As((*store)(nil)).Err())

	built, err := Instantiate[*handler](c, func() *handler {
		return &handler{}
	})
	require.Error(t, err)

	// The cache label is unbound, so member injection fails; bind it and
	// retry.
	require.NoError(t, c.RegisterInstance(&database{dsn: "side"}).AsSelf("cache").Err())

	built, err = Instantiate[*handler](c, func() *handler {
		return &handler{}
	})
	require.NoError(t, err)
	assert.Same(t, db, built.DB)
	assert.Same(t, db, built.store)
}

func TestInstantiate_NotAFunction(t *testing.T) {
	c := New()

	_, err := c.Instantiate(42)
	require.Error(t, err)

	var regErr *RegistrationError
	assert.ErrorAs(t, err, &regErr)
}

type paramObject struct {
	In

	DB    *database
	Cache *database `name:"cache"`
	Extra *cache    `optional:"true"`
}

type composite struct {
	db    *database
	cache *database
	extra *cache
}

func newComposite(p paramObject) *composite {
	return &composite{db: p.DB, cache: p.Cache, extra: p.Extra}
}

func TestRegister_ParamStruct(t *testing.T) {
	c := New()

	main := &database{dsn: "main"}
	side := &database{dsn: "side"}

	require.NoError(t, c.RegisterInstance(main).AsSelf().Err())
	require.NoError(t, c.RegisterInstance(side).AsSelf("cache").Err())
	require.NoError(t, c.Register(newComposite).Transient().AsSelf().Err())

	built, err := Resolve[*composite](c)
	require.NoError(t, err)
	assert.Same(t, main, built.db)
	assert.Same(t, side, built.cache)
	assert.Nil(t, built.extra)
}

func TestRegister_ParamStructPointer(t *testing.T) {
	c := New()

	require.NoError(t, c.RegisterInstance(newDatabase()).AsSelf().Err())
	require.NoError(t, c.RegisterInstance(&database{dsn: "side"}).AsSelf("cache").Err())

	require.NoError(t, c.Register(func(p *paramObject) *composite {
		return &composite{db: p.DB, cache: p.Cache}
	}).Transient().AsSelf().Err())

	built, err := Resolve[*composite](c)
	require.NoError(t, err)
	assert.NotNil(t, built.db)
	assert.NotNil(t, built.cache)
}

// BaseParams is embedded exported so nested parameter structs expand through
// reflection.
type BaseParams struct {
	In

	DB *database
}

type extendedParams struct {
	BaseParams

	Side *database `name:"cache"`
}

func TestRegister_EmbeddedParamStruct(t *testing.T) {
	c := New()

	main := &database{dsn: "main"}
	side := &database{dsn: "side"}

	require.NoError(t, c.RegisterInstance(main).AsSelf().Err())
	require.NoError(t, c.RegisterInstance(side).AsSelf("cache").Err())
	require.NoError(t, c.Register(func(p extendedParams) *composite {
		return &composite{db: p.DB, cache: p.Side}
	}).Transient().AsSelf().Err())

	built, err := Resolve[*composite](c)
	require.NoError(t, err)
	assert.Same(t, main, built.db)
	assert.Same(t, side, built.cache)
}

func TestRegister_VariadicConstructor(t *testing.T) {
	c := New()

	require.NoError(t, c.RegisterInstance(&database{dsn: "a"}).As((*store)(nil)).Err())
	require.NoError(t, c.RegisterInstance(&database{dsn: "b"}).As((*store)(nil)).Err())

	type fanin struct{ stores []store }

	require.NoError(t, c.Register(func(stores ...store) *fanin {
		return &fanin{stores: stores}
	}).Transient().AsSelf().Err())

	built, err := Resolve[*fanin](c)
	require.NoError(t, err)
	assert.Len(t, built.stores, 2)
}
