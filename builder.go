package crucible

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// Register starts a registration for a constructor function. Parameters of
// the constructor are treated as dependencies resolved by type; the
// constructor must return exactly one non-error value and may return a
// trailing error. Parameter structs embedding In expand into per-field
// dependencies with optional labels.
//
// The chain continues with an optional With call, a lifetime choice and one
// or more contract bindings, and must be checked with Err:
//
//	err := c.Register(NewCache).
//	    Singleton().
//	    As((*Cache)(nil)).
//	    Err()
func (c *Container) Register(constructor any) *RegistrationBuilder {
	b := &RegistrationBuilder{c: c}

	if c.st.isDisposed() {
		b.err = ErrContainerDisposed

		return b
	}

	if constructor == nil {
		b.err = newRegistrationError(nil, "constructor cannot be nil", nil)

		return b
	}

	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func {
		b.err = newRegistrationError(reflect.TypeOf(constructor), "constructor must be a function", nil)

		return b
	}

	info, err := c.st.introspector.constructorFor(fn.Type())
	if err != nil {
		b.err = err

		return b
	}

	b.info = info
	b.fn = fn
	b.concrete = info.result

	return b
}

// RegisterFactory starts a registration for a caller supplied factory. The
// prototype fixes the concrete type the factory produces, for example
// (*Database)(nil).
func (c *Container) RegisterFactory(prototype any, factory Factory) *RegistrationBuilder {
	b := &RegistrationBuilder{c: c}

	if c.st.isDisposed() {
		b.err = ErrContainerDisposed

		return b
	}

	if prototype == nil {
		b.err = newRegistrationError(nil, "factory prototype cannot be nil", nil)

		return b
	}

	if factory == nil {
		b.err = newRegistrationError(reflect.TypeOf(prototype), "factory cannot be nil", nil)

		return b
	}

	b.concrete = reflect.TypeOf(prototype)
	b.factory = factory

	return b
}

// RegisterGeneric starts a registration for an open generic type. The
// prototype is any instantiation of the generic type, for example
// (*Repository[any])(nil); the factory receives the closed type actually
// requested and builds an instance for it. The factory signature must be
// exactly that of Factory; anything else fails at registration time.
//
// Example:
//
//	c.RegisterGeneric((*Repository[any])(nil),
//	    func(c *crucible.Container, requested reflect.Type) (any, error) {
//	        return buildRepository(requested)
//	    },
//	).Transient().AsSelf()
func (c *Container) RegisterGeneric(prototype any, factory any) *RegistrationBuilder {
	b := &RegistrationBuilder{c: c}

	if c.st.isDisposed() {
		b.err = ErrContainerDisposed

		return b
	}

	if prototype == nil {
		b.err = newRegistrationError(nil, "open generic prototype cannot be nil", nil)

		return b
	}

	pt := reflect.TypeOf(prototype)

	name, arity, ok := openNameArity(pt)
	if !ok {
		b.err = newRegistrationError(pt, "prototype is not an instantiated generic type", nil)

		return b
	}

	fn, ok := factory.(func(c *Container, requested reflect.Type) (any, error))
	if !ok {
		if typed, isFactory := factory.(Factory); isFactory {
			fn = typed
		} else {
			b.err = newRegistrationError(pt,
				errors.Errorf("open generic factory has signature %T, want func(*Container, reflect.Type) (any, error)", factory).Error(), nil)

			return b
		}
	}

	b.open = true
	b.openName = name
	b.arity = arity
	b.factory = Factory(fn)

	return b
}

// RegisterInstance binds an already constructed value with an implicit
// Singleton lifetime. The chain continues directly with contract bindings.
// The container does not take ownership of the instance: it is not tracked
// for disposal because the container did not create it.
func (c *Container) RegisterInstance(value any) *BindingBuilder {
	b := &BindingBuilder{c: c}

	if c.st.isDisposed() {
		b.err = ErrContainerDisposed

		return b
	}

	if lv, ok := value.(labeledValue); ok {
		// Accept Labeled values so installers can share value lists with
		// With overrides; the label only applies through AsSelf.
		b.label = lv.label
		value = lv.value
	}

	if value == nil {
		b.err = newRegistrationError(nil, "instance cannot be nil", nil)

		return b
	}

	t := reflect.TypeOf(value)
	b.concrete = t
	b.r = &resolver{
		factory: func(*Container, reflect.Type) (any, error) {
			return value, nil
		},
		lifetime: Singleton,
		concrete: t,
		owner:    c.st,
		done:     true,
		value:    value,
	}

	return b
}

// =============================================================================
// REGISTRATION BUILDER
// =============================================================================

// RegistrationBuilder is the first stage of the registration chain, holding
// the factory source before a lifetime is chosen.
type RegistrationBuilder struct {
	c        *Container
	err      error
	concrete reflect.Type
	info     *ctorInfo
	fn       reflect.Value
	factory  Factory
	open     bool
	openName string
	arity    int
	extras   *overrides
}

// With supplies values consulted only while resolving this registration's
// constructor parameters, overriding or supplementing the surrounding
// container. Plain values match parameters by type; use Labeled to target a
// labeled parameter.
func (b *RegistrationBuilder) With(values ...any) *RegistrationBuilder {
	if b.err != nil {
		return b
	}

	if b.info == nil {
		b.err = newRegistrationError(b.concrete, "With requires a constructor registration", nil)

		return b
	}

	if b.extras == nil {
		b.extras = &overrides{}
	}

	for _, value := range values {
		if err := b.extras.add(value); err != nil {
			b.err = err

			return b
		}
	}

	return b
}

// Transient selects a fresh instance on every resolution.
func (b *RegistrationBuilder) Transient() *BindingBuilder {
	return b.lifetime(Transient)
}

// Singleton selects a single lazily created instance, memoized against the
// registering container and shared with every descendant.
func (b *RegistrationBuilder) Singleton() *BindingBuilder {
	return b.lifetime(Singleton)
}

// Scoped selects one lazily created instance per resolving container.
func (b *RegistrationBuilder) Scoped() *BindingBuilder {
	return b.lifetime(Scoped)
}

func (b *RegistrationBuilder) lifetime(lt Lifetime) *BindingBuilder {
	bb := &BindingBuilder{
		c:        b.c,
		concrete: b.concrete,
		open:     b.open,
		openName: b.openName,
		arity:    b.arity,
	}

	if b.err != nil {
		bb.err = b.err

		return bb
	}

	if lt == Transient && b.c.st.flags.forbidDisposableTransients &&
		b.concrete != nil && b.concrete.Implements(disposableType) {
		bb.err = newRegistrationError(b.concrete, "transient lifetime is not allowed for disposable types", nil)

		return bb
	}

	factory := b.factory
	if b.info != nil {
		factory = b.c.buildConstructedFactory(b.info, b.fn, b.extras)
	}

	bb.r = &resolver{
		factory:  factory,
		lifetime: lt,
		concrete: b.concrete,
		owner:    b.c.st,
	}

	return bb
}

// Err returns the first error recorded by the chain so far.
func (b *RegistrationBuilder) Err() error { return b.err }

// =============================================================================
// BINDING BUILDER
// =============================================================================

// BindingBuilder is the terminal stage of the registration chain: each As
// call pushes the registration's resolver at the front of the stack for one
// binding key.
type BindingBuilder struct {
	c        *Container
	r        *resolver
	err      error
	concrete reflect.Type
	label    string
	open     bool
	openName string
	arity    int
	wrapped  map[reflect.Type]*resolver
}

// Err returns the first error recorded by the chain so far.
func (b *BindingBuilder) Err() error { return b.err }

// AsSelf binds the registration under its own concrete type, or under the
// open generic definition for open generic registrations.
func (b *BindingBuilder) AsSelf(label ...string) *BindingBuilder {
	if b.err != nil {
		return b
	}

	lbl := labelOf(label)
	if lbl == "" {
		lbl = b.label
	}

	if b.open {
		b.push(openKeyOf(b.openName, b.arity, lbl), b.r)

		return b
	}

	b.push(typeKeyOf(b.concrete, lbl), b.r)

	return b
}

// As binds the registration under an explicit contract type, given as an
// interface pointer prototype such as (*Reader)(nil). The concrete type must
// be assignable to the contract. For open generic registrations the target
// must itself be a generic prototype of matching arity.
func (b *BindingBuilder) As(target any, label ...string) *BindingBuilder {
	if b.err != nil {
		return b
	}

	if target == nil {
		b.err = newRegistrationError(b.concrete, "contract target cannot be nil", nil)

		return b
	}

	tt := reflect.TypeOf(target)

	if b.open {
		name, arity, ok := openNameArity(tt)
		if !ok {
			b.err = newRegistrationError(tt, "open generic contract must be an instantiated generic type", nil)

			return b
		}

		if arity != b.arity {
			b.err = newRegistrationError(tt,
				errors.Errorf("open generic contract arity %d does not match registration arity %d", arity, b.arity).Error(), nil)

			return b
		}

		b.push(openKeyOf(name, arity, labelOf(label)), b.r)

		return b
	}

	contract := tt
	if tt.Kind() == reflect.Ptr && tt.Elem().Kind() == reflect.Interface {
		contract = tt.Elem()
	}

	if !b.concrete.AssignableTo(contract) {
		b.err = newRegistrationError(b.concrete,
			errors.Errorf("%s is not assignable to contract %s", b.concrete, contract).Error(), nil)

		return b
	}

	b.push(typeKeyOf(contract, labelOf(label)), b.r)

	return b
}

// AsInterfaces binds the registration under every interface the concrete
// type declares by embedding. Go interfaces are structural, so the full set
// of implemented interfaces is open ended; the embedded ones are the
// enumerable declared set. Use As for interfaces satisfied structurally.
func (b *BindingBuilder) AsInterfaces(label ...string) *BindingBuilder {
	if b.err != nil {
		return b
	}

	if b.open {
		b.err = newRegistrationError(nil, "AsInterfaces is not supported for open generic registrations", nil)

		return b
	}

	base := b.concrete
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}

	if base.Kind() != reflect.Struct {
		return b
	}

	lbl := labelOf(label)
	for i := 0; i < base.NumField(); i++ {
		field := base.Field(i)
		if !field.Anonymous || field.Type.Kind() != reflect.Interface {
			continue
		}

		if !b.concrete.AssignableTo(field.Type) {
			continue
		}

		b.push(typeKeyOf(field.Type, lbl), b.r)
	}

	return b
}

// AsBases binds the registration under every struct type the concrete type
// embeds. For pointer registrations the contract is a pointer to the
// embedded struct and resolution yields the address of the embedded field
// inside the instance; for value registrations the contract is the embedded
// type and resolution yields a copy of the field.
func (b *BindingBuilder) AsBases(label ...string) *BindingBuilder {
	if b.err != nil {
		return b
	}

	if b.open {
		b.err = newRegistrationError(nil, "AsBases is not supported for open generic registrations", nil)

		return b
	}

	base := b.concrete
	isPtr := base.Kind() == reflect.Ptr
	if isPtr {
		base = base.Elem()
	}

	if base.Kind() != reflect.Struct {
		return b
	}

	lbl := labelOf(label)
	for i := 0; i < base.NumField(); i++ {
		field := base.Field(i)
		if !field.Anonymous || field.Type.Kind() != reflect.Struct || !field.IsExported() {
			continue
		}

		contract := field.Type
		if isPtr {
			contract = reflect.PtrTo(field.Type)
		}

		b.push(typeKeyOf(contract, lbl), b.fieldResolver(contract, i, isPtr))
	}

	return b
}

// fieldResolver wraps the base resolver to surface an embedded field as its
// own contract. Wrappers are memoized per contract so repeated AsBases calls
// stay idempotent.
func (b *BindingBuilder) fieldResolver(contract reflect.Type, index int, addr bool) *resolver {
	if wr, ok := b.wrapped[contract]; ok {
		return wr
	}

	base := b.r
	concrete := b.concrete

	wr := &resolver{
		lifetime: Transient,
		concrete: contract,
		owner:    b.c.st,
		factory: func(s *Container, _ reflect.Type) (any, error) {
			instance, err := base.resolve(s, concrete)
			if err != nil {
				return nil, err
			}

			v := reflect.ValueOf(instance)
			if v.Kind() == reflect.Ptr {
				v = v.Elem()
			}

			if addr {
				return v.Field(index).Addr().Interface(), nil
			}

			return v.Field(index).Interface(), nil
		},
	}

	if b.wrapped == nil {
		b.wrapped = make(map[reflect.Type]*resolver)
	}

	b.wrapped[contract] = wr

	return wr
}

func (b *BindingBuilder) push(key bindingKey, r *resolver) {
	if b.c.st.isDisposed() {
		b.err = ErrContainerDisposed

		return
	}

	if !b.c.st.push(key, r) {
		return
	}

	concrete := ""
	if r.concrete != nil {
		concrete = r.concrete.String()
	}

	b.c.st.middleware.afterRegister(BindingInfo{
		Contract: key.String(),
		Concrete: concrete,
		Label:    key.label,
		Lifetime: r.lifetime,
	})
}

// =============================================================================
// WITH OVERRIDES
// =============================================================================

// overrides holds the extra values supplied through With, consulted before
// the container hierarchy while resolving one registration's parameters.
type overrides struct {
	values []overrideValue
}

type overrideValue struct {
	typ   reflect.Type
	label string
	value any
}

func (o *overrides) add(value any) error {
	label := ""
	if lv, ok := value.(labeledValue); ok {
		label = lv.label
		value = lv.value
	}

	if value == nil {
		return newRegistrationError(nil, "With value cannot be nil", nil)
	}

	o.values = append(o.values, overrideValue{
		typ:   reflect.TypeOf(value),
		label: label,
		value: value,
	})

	return nil
}

func (o *overrides) lookup(want reflect.Type, label string) (any, bool) {
	for _, ov := range o.values {
		if ov.label != label {
			continue
		}

		if ov.typ == want || ov.typ.AssignableTo(want) {
			return ov.value, true
		}
	}

	return nil, false
}

// =============================================================================
// CONSTRUCTED FACTORY
// =============================================================================

// buildConstructedFactory turns analyzed constructor metadata into a
// Factory. With argument preallocation enabled the argument buffer is pooled
// per registration.
func (c *Container) buildConstructedFactory(info *ctorInfo, fn reflect.Value, extras *overrides) Factory {
	var pool *sync.Pool

	argc := len(info.params)
	if c.st.flags.preallocArgs && argc > 0 {
		pool = &sync.Pool{
			New: func() any {
				buf := make([]reflect.Value, argc)

				return &buf
			},
		}
	}

	variadic := info.fnType.IsVariadic()
	result := info.result

	return func(s *Container, _ reflect.Type) (any, error) {
		var args []reflect.Value

		var buf *[]reflect.Value
		if pool != nil {
			buf = pool.Get().(*[]reflect.Value)
			args = *buf
			defer func() {
				for i := range args {
					args[i] = reflect.Value{}
				}
				pool.Put(buf)
			}()
		} else if argc > 0 {
			args = make([]reflect.Value, argc)
		}

		for i, param := range info.params {
			value, err := resolveParamSpec(s, param, extras)
			if err != nil {
				return nil, errors.Wrapf(err, "constructing %s: parameter %d (%s)", result, i, param.typ)
			}

			args[i] = value
		}

		var out []reflect.Value
		if variadic {
			out = fn.CallSlice(args)
		} else {
			out = fn.Call(args)
		}

		if info.hasErr {
			if errv := out[len(out)-1]; !errv.IsNil() {
				return nil, errv.Interface().(error)
			}
		}

		return out[0].Interface(), nil
	}
}

// resolveParamSpec resolves one constructor or method parameter, expanding
// In parameter structs field by field.
func resolveParamSpec(s *Container, param paramSpec, extras *overrides) (reflect.Value, error) {
	if !param.isIn {
		return resolveDependency(s, param.typ, param.label, param.optional, extras)
	}

	base := param.typ
	isPtr := base.Kind() == reflect.Ptr
	if isPtr {
		base = base.Elem()
	}

	sv := reflect.New(base).Elem()
	for _, field := range param.fields {
		var (
			value reflect.Value
			err   error
		)

		if field.isIn {
			value, err = resolveParamSpec(s, field, extras)
		} else {
			value, err = resolveDependency(s, field.typ, field.label, field.optional, extras)
		}

		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "field %s", field.name)
		}

		sv.Field(field.index).Set(value)
	}

	if isPtr {
		pv := reflect.New(base)
		pv.Elem().Set(sv)

		return pv, nil
	}

	return sv, nil
}
