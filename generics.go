package crucible

import (
	"fmt"
	"reflect"
)

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Resolve is the typed counterpart of Container.Resolve.
//
//	db, err := crucible.Resolve[*Database](c)
func Resolve[T any](c *Container, label ...string) (T, error) {
	instance, err := c.Resolve(typeOf[T](), label...)
	if err != nil {
		var zero T

		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		var zero T

		return zero, newResolutionError(typeOf[T](), labelOf(label),
			fmt.Errorf("resolved instance has type %T", instance))
	}

	return typed, nil
}

// MustResolve is like Resolve but panics on failure. Intended for program
// startup where a missing binding is unrecoverable.
func MustResolve[T any](c *Container, label ...string) T {
	typed, err := Resolve[T](c, label...)
	if err != nil {
		panic(err)
	}

	return typed
}

// TryResolve is the typed counterpart of Container.TryResolve.
func TryResolve[T any](c *Container, label ...string) (T, bool, error) {
	var zero T

	instance, ok, err := c.TryResolve(typeOf[T](), label...)
	if err != nil || !ok {
		return zero, false, err
	}

	typed, isT := instance.(T)
	if !isT {
		return zero, false, nil
	}

	return typed, true, nil
}

// ResolveGroup is the typed counterpart of Container.ResolveGroup.
func ResolveGroup[T any](c *Container) ([]T, error) {
	instances, err := c.ResolveGroup(typeOf[T]())
	if err != nil {
		return nil, err
	}

	return typedGroup[T](instances)
}

// TryResolveGroup is the typed counterpart of Container.TryResolveGroup.
func TryResolveGroup[T any](c *Container) ([]T, error) {
	instances, err := c.TryResolveGroup(typeOf[T]())
	if err != nil {
		return nil, err
	}

	return typedGroup[T](instances)
}

func typedGroup[T any](instances []any) ([]T, error) {
	out := make([]T, 0, len(instances))

	for _, instance := range instances {
		typed, ok := instance.(T)
		if !ok {
			return nil, newResolutionError(typeOf[T](), "",
				fmt.Errorf("group instance has type %T", instance))
		}

		out = append(out, typed)
	}

	return out, nil
}

// Instantiate constructs a value through the container without registering
// it, typed.
func Instantiate[T any](c *Container, constructor any) (T, error) {
	instance, err := c.Instantiate(constructor)
	if err != nil {
		var zero T

		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		var zero T

		return zero, newResolutionError(typeOf[T](), "",
			fmt.Errorf("constructed instance has type %T", instance))
	}

	return typed, nil
}

// IsRegistered reports whether the container itself holds a binding for T.
func IsRegistered[T any](c *Container, label ...string) bool {
	return c.IsRegistered(typeOf[T](), label...)
}

// IsRegisteredInHierarchy reports whether the container or any ancestor
// holds a binding for T.
func IsRegisteredInHierarchy[T any](c *Container, label ...string) bool {
	return c.IsRegisteredInHierarchy(typeOf[T](), label...)
}

// Label pairs a contract type with a label at compile time, so call sites
// cannot mix up which type a label belongs to.
//
//	var PrimaryDB = crucible.NewLabel[*Database]("primary")
//
//	db, err := PrimaryDB.Resolve(c)
type Label[T any] struct {
	name string
}

// NewLabel creates a typed label.
func NewLabel[T any](name string) Label[T] {
	return Label[T]{name: name}
}

// Name returns the label string.
func (l Label[T]) Name() string { return l.name }

// Resolve resolves T under this label.
func (l Label[T]) Resolve(c *Container) (T, error) {
	return Resolve[T](c, l.name)
}

// TryResolve resolves T under this label, reporting a missing binding
// through the ok result.
func (l Label[T]) TryResolve(c *Container) (T, bool, error) {
	return TryResolve[T](c, l.name)
}

// IsRegisteredInHierarchy reports whether T is bound under this label
// anywhere in the chain.
func (l Label[T]) IsRegisteredInHierarchy(c *Container) bool {
	return c.IsRegisteredInHierarchy(typeOf[T](), l.name)
}

// ResolveLabeled resolves T under a label given as a plain string.
func ResolveLabeled[T any](c *Container, label string) (T, error) {
	return Resolve[T](c, label)
}
