package crucible

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

// =============================================================================
// ERROR CODES
// =============================================================================

const (
	// CodeRegistration indicates an invalid registration: bad constructor,
	// contract mismatch, malformed open generic factory, or a forbidden
	// disposable transient.
	CodeRegistration = "REGISTRATION_ERROR"

	// CodeResolution indicates a contract type could not be resolved anywhere
	// in the container hierarchy.
	CodeResolution = "RESOLUTION_ERROR"

	// CodeCircularDependency indicates a constructor cycle was detected.
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"

	// CodeInjection indicates a member injection failure.
	CodeInjection = "INJECTION_ERROR"

	// CodeContainerDisposed indicates an operation on a disposed container.
	CodeContainerDisposed = "CONTAINER_DISPOSED"
)

// ErrContainerDisposed is returned by every operation on a disposed container.
var ErrContainerDisposed = errors.New("container has been disposed")

// =============================================================================
// REGISTRATION
// =============================================================================

// RegistrationError reports an invalid registration.
type RegistrationError struct {
	Type   reflect.Type
	Reason string
	cause  error
}

func newRegistrationError(t reflect.Type, reason string, cause error) *RegistrationError {
	return &RegistrationError{Type: t, Reason: reason, cause: cause}
}

func (e *RegistrationError) Error() string {
	if e.Type != nil {
		return fmt.Sprintf("registration of %s failed: %s", e.Type, e.Reason)
	}

	return fmt.Sprintf("registration failed: %s", e.Reason)
}

func (e *RegistrationError) Unwrap() error { return e.cause }

// Code returns the stable error code for this error kind.
func (e *RegistrationError) Code() string { return CodeRegistration }

// =============================================================================
// RESOLUTION
// =============================================================================

// ResolutionError reports that a contract type could not be resolved.
type ResolutionError struct {
	Type  reflect.Type
	Label string
	cause error
}

func newResolutionError(t reflect.Type, label string, cause error) *ResolutionError {
	return &ResolutionError{Type: t, Label: label, cause: cause}
}

func (e *ResolutionError) Error() string {
	name := "<nil>"
	if e.Type != nil {
		name = e.Type.String()
	}

	msg := fmt.Sprintf("no binding found for %s", name)
	if e.Label != "" {
		msg = fmt.Sprintf("no binding found for %s (label %q)", name, e.Label)
	}

	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}

	return msg
}

func (e *ResolutionError) Unwrap() error { return e.cause }

// Code returns the stable error code for this error kind.
func (e *ResolutionError) Code() string { return CodeResolution }

// =============================================================================
// CIRCULAR DEPENDENCY
// =============================================================================

// CircularDependencyError reports a constructor cycle. Chain holds the types
// under construction at detection time, ending with the repeated type.
type CircularDependencyError struct {
	Type  reflect.Type
	Chain []reflect.Type
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, t := range e.Chain {
		parts[i] = t.String()
	}

	return fmt.Sprintf("circular dependency detected for %s: %s", e.Type, strings.Join(parts, " -> "))
}

// Code returns the stable error code for this error kind.
func (e *CircularDependencyError) Code() string { return CodeCircularDependency }

// =============================================================================
// INJECTION
// =============================================================================

// InjectionError reports a member injection failure on a specific type.
type InjectionError struct {
	Type   reflect.Type
	Member string
	Reason string
	cause  error
}

func newInjectionError(t reflect.Type, member, reason string, cause error) *InjectionError {
	return &InjectionError{Type: t, Member: member, Reason: reason, cause: cause}
}

func (e *InjectionError) Error() string {
	name := "<nil>"
	if e.Type != nil {
		name = e.Type.String()
	}

	msg := fmt.Sprintf("injection into %s failed", name)
	if e.Member != "" {
		msg = fmt.Sprintf("injection of %s.%s failed", name, e.Member)
	}

	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}

	return msg
}

func (e *InjectionError) Unwrap() error { return e.cause }

// Code returns the stable error code for this error kind.
func (e *InjectionError) Code() string { return CodeInjection }
