package crucible

import (
	"reflect"

	"github.com/pkg/errors"
)

type lookupMode uint8

const (
	// lookupPublic is the mode for direct Resolve calls: an empty group
	// result counts as not found.
	lookupPublic lookupMode = iota

	// lookupInternal is the mode for constructor parameters and injected
	// members: an empty group result materializes as an empty slice.
	lookupInternal
)

// Resolve returns an instance for the contract type, searching this
// container first and then its ancestors. The innermost container wins, and
// within one container the most recent registration wins. Slice types with
// no direct binding aggregate one instance per registration of the element
// type across the whole ancestor chain. Parameterized types with no direct
// binding fall back to their open generic registration.
func (c *Container) Resolve(t reflect.Type, label ...string) (any, error) {
	lbl := labelOf(label)

	if c.st.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if t == nil {
		return nil, newResolutionError(nil, lbl, errors.New("contract type is nil"))
	}

	if err := c.st.middleware.beforeResolve(t, lbl); err != nil {
		return nil, err
	}

	instance, ok, err := c.session().lookup(t, lbl, lookupPublic)
	if err == nil && !ok {
		err = newResolutionError(t, lbl, nil)
	}

	if mwErr := c.st.middleware.afterResolve(t, lbl, instance, err); mwErr != nil {
		return nil, mwErr
	}

	if err != nil {
		return nil, err
	}

	return instance, nil
}

// TryResolve is like Resolve but reports a missing binding through the ok
// result instead of an error. Construction failures are still returned.
func (c *Container) TryResolve(t reflect.Type, label ...string) (any, bool, error) {
	lbl := labelOf(label)

	if c.st.isDisposed() {
		return nil, false, ErrContainerDisposed
	}

	if t == nil {
		return nil, false, nil
	}

	return c.session().lookup(t, lbl, lookupPublic)
}

// ResolveGroup aggregates one instance per registration of the element type
// across the whole ancestor chain, ordered innermost container first and
// most recent registration first within each container. It fails when
// nothing is registered for the element type.
func (c *Container) ResolveGroup(elem reflect.Type) ([]any, error) {
	if c.st.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if elem == nil {
		return nil, newResolutionError(nil, "", errors.New("element type is nil"))
	}

	instances, err := c.session().collectGroup(elem, "")
	if err != nil {
		return nil, err
	}

	if len(instances) == 0 {
		return nil, newResolutionError(elem, "", errors.New("group resolution produced no instances"))
	}

	return instances, nil
}

// TryResolveGroup is like ResolveGroup but returns an empty result instead
// of an error when nothing is registered.
func (c *Container) TryResolveGroup(elem reflect.Type) ([]any, error) {
	if c.st.isDisposed() {
		return nil, ErrContainerDisposed
	}

	if elem == nil {
		return nil, nil
	}

	return c.session().collectGroup(elem, "")
}

// lookup runs the resolution algorithm on a session view. The ok result is
// false when no binding matched; err is set only for construction failures
// or cycle detection.
func (c *Container) lookup(t reflect.Type, label string, mode lookupMode) (any, bool, error) {
	// Direct match: first stack found walking up the ancestor chain, most
	// recent registration within it.
	key := typeKeyOf(t, label)
	for st := c.st; st != nil; st = st.parent {
		if stack := st.stack(key); len(stack) > 0 {
			instance, err := stack[0].resolve(c, t)
			if err != nil {
				return nil, false, err
			}

			return instance, true, nil
		}
	}

	// Slice fallback: aggregate the element type across the chain.
	if t.Kind() == reflect.Slice {
		instances, err := c.collectGroup(t.Elem(), label)
		if err != nil {
			return nil, false, err
		}

		if len(instances) == 0 && mode == lookupPublic {
			return nil, false, nil
		}

		slice := reflect.MakeSlice(t, 0, len(instances))
		for _, instance := range instances {
			if instance == nil {
				slice = reflect.Append(slice, reflect.Zero(t.Elem()))
				continue
			}

			slice = reflect.Append(slice, reflect.ValueOf(instance))
		}

		return slice.Interface(), true, nil
	}

	// Open generic fallback: retry with the generic definition as the key,
	// handing the originally requested closed type to the factory.
	if name, arity, ok := openNameArity(t); ok {
		gkey := openKeyOf(name, arity, label)
		for st := c.st; st != nil; st = st.parent {
			if stack := st.stack(gkey); len(stack) > 0 {
				instance, err := stack[0].resolve(c, t)
				if err != nil {
					return nil, false, err
				}

				if it := reflect.TypeOf(instance); it != nil && !it.AssignableTo(t) {
					return nil, false, newResolutionError(t, label,
						errors.Errorf("open generic factory for %s produced %s", name, it))
				}

				return instance, true, nil
			}
		}
	}

	return nil, false, nil
}

// collectGroup gathers one instance per resolver bound to the element type,
// innermost container first, most recent registration first within each
// container. Falls back to open generic registrations of the element type
// when no direct binding exists anywhere in the chain.
func (c *Container) collectGroup(elem reflect.Type, label string) ([]any, error) {
	var out []any

	key := typeKeyOf(elem, label)
	for st := c.st; st != nil; st = st.parent {
		for _, r := range st.stack(key) {
			instance, err := r.resolve(c, elem)
			if err != nil {
				return nil, err
			}

			out = append(out, instance)
		}
	}

	if out != nil {
		return out, nil
	}

	name, arity, ok := openNameArity(elem)
	if !ok {
		return nil, nil
	}

	gkey := openKeyOf(name, arity, label)
	for st := c.st; st != nil; st = st.parent {
		for _, r := range st.stack(gkey) {
			instance, err := r.resolve(c, elem)
			if err != nil {
				return nil, err
			}

			out = append(out, instance)
		}
	}

	return out, nil
}

// resolveDependency resolves one constructor parameter or injected member.
// With overrides are consulted first, then the container hierarchy. Optional
// dependencies fall back to their zero value when unresolved.
func resolveDependency(s *Container, typ reflect.Type, label string, optional bool, extras *overrides) (reflect.Value, error) {
	if extras != nil {
		if value, ok := extras.lookup(typ, label); ok {
			return reflect.ValueOf(value), nil
		}
	}

	instance, ok, err := s.lookup(typ, label, lookupInternal)
	if err != nil {
		return reflect.Value{}, err
	}

	if !ok {
		if optional {
			return reflect.Zero(typ), nil
		}

		return reflect.Value{}, newResolutionError(typ, label, nil)
	}

	if instance == nil {
		return reflect.Zero(typ), nil
	}

	return reflect.ValueOf(instance), nil
}
