package crucible

import (
	"reflect"

	"github.com/pkg/errors"
)

// InjectAll populates an existing instance from the container: fields
// carrying an `inject` tag are assigned and exported methods whose name
// starts with Inject are invoked with resolved arguments. The instance must
// be a pointer for field injection to take effect.
//
//	type Handler struct {
//	    DB    *Database `inject:""`
//	    Cache *Cache    `inject:"" name:"redis"`
//	}
//
//	h := &Handler{}
//	err := c.InjectAll(h)
func (c *Container) InjectAll(instance any) error {
	if c.st.isDisposed() {
		return ErrContainerDisposed
	}

	if instance == nil {
		return newInjectionError(nil, "", "instance cannot be nil", nil)
	}

	t := reflect.TypeOf(instance)

	plan, err := c.st.introspector.planFor(t)
	if err != nil {
		return err
	}

	return plan.apply(c.session(), instance)
}

// Instantiate constructs a value through the container without registering
// it: the constructor's dependencies are resolved from this container's
// hierarchy, and the fresh instance is member injected before being
// returned. The container does not track the instance for disposal.
func (c *Container) Instantiate(constructor any) (any, error) {
	if c.st.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if constructor == nil {
		return nil, newRegistrationError(nil, "constructor cannot be nil", nil)
	}

	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func {
		return nil, newRegistrationError(reflect.TypeOf(constructor), "constructor must be a function", nil)
	}

	info, err := c.st.introspector.constructorFor(fn.Type())
	if err != nil {
		return nil, err
	}

	s := c.session()

	instance, err := c.buildConstructedFactory(info, fn, nil)(s, info.result)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, nil
	}

	plan, err := c.st.introspector.planFor(reflect.TypeOf(instance))
	if err != nil {
		return nil, err
	}

	if err := plan.apply(s, instance); err != nil {
		return nil, err
	}

	return instance, nil
}

// apply runs the plan against one instance on a session view.
func (p *injectPlan) apply(s *Container, instance any) error {
	v := reflect.ValueOf(instance)
	if v.Type() != p.typ {
		return newInjectionError(v.Type(), "", "instance type does not match plan", nil)
	}

	if len(p.fields) > 0 {
		ev := v.Elem()
		for _, field := range p.fields {
			value, err := resolveDependency(s, field.typ, field.label, field.optional, nil)
			if err != nil {
				return newInjectionError(p.typ, field.name, "dependency resolution failed", err)
			}

			ev.Field(field.index).Set(value)
		}
	}

	for _, method := range p.methods {
		m := v.Method(method.index)

		args := make([]reflect.Value, 0, len(method.params))
		for _, param := range method.params {
			value, err := resolveParamSpec(s, param, nil)
			if err != nil {
				return newInjectionError(p.typ, method.name,
					errors.Wrapf(err, "parameter %d (%s)", param.index, param.typ).Error(), err)
			}

			args = append(args, value)
		}

		var out []reflect.Value
		if m.Type().IsVariadic() {
			out = m.CallSlice(args)
		} else {
			out = m.Call(args)
		}

		if method.hasErr {
			if errv := out[0]; !errv.IsNil() {
				return newInjectionError(p.typ, method.name, "injectable method failed", errv.Interface().(error))
			}
		}
	}

	return nil
}
