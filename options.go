package crucible

import "go.uber.org/zap"

// containerFlags holds per container configuration, fixed at creation time
// and inherited by children.
type containerFlags struct {
	circularCheck              bool
	preallocArgs               bool
	forbidDisposableTransients bool
}

type config struct {
	flags      containerFlags
	middleware []Middleware
}

func defaultConfig() config {
	return config{
		flags: containerFlags{circularCheck: true},
	}
}

// Option configures a container at creation time. Child containers inherit
// the parent configuration; options passed to CreateChildContainer override
// the inherited values.
type Option func(*config)

// WithCircularCheck enables or disables circular dependency detection.
// It is enabled by default. With the check disabled a genuine constructor
// cycle blocks the calling thread instead of failing cleanly; disabling is a
// performance trade-off for graphs known to be acyclic.
func WithCircularCheck(enabled bool) Option {
	return func(c *config) {
		c.flags.circularCheck = enabled
	}
}

// WithArgPreallocation enables reuse of constructor argument buffers through
// a per registration pool, trading memory for fewer allocations on hot
// resolution paths. Disabled by default.
func WithArgPreallocation(enabled bool) Option {
	return func(c *config) {
		c.flags.preallocArgs = enabled
	}
}

// WithDisposableTransientPrevention makes registration of a disposable type
// with Transient lifetime fail. Transient disposables have no deterministic
// owner and tend to accumulate on the resolving container until it is
// disposed. Disabled by default.
func WithDisposableTransientPrevention(enabled bool) Option {
	return func(c *config) {
		c.flags.forbidDisposableTransients = enabled
	}
}

// WithMiddleware installs middleware at creation time. Equivalent to calling
// Use for each middleware after New.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithLogger installs the logging middleware on the given zap logger.
// Shorthand for WithMiddleware(NewLoggingMiddleware(log)).
func WithLogger(log *zap.Logger) Option {
	return WithMiddleware(NewLoggingMiddleware(log))
}

// labeledValue carries a value together with its label for With overrides
// and labeled instance registration.
type labeledValue struct {
	label string
	value any
}

// Labeled wraps a value with a label for use with RegistrationBuilder.With,
// so a specific labeled constructor parameter can be overridden.
//
// Example:
//
//	c.Register(NewReportJob).
//	    With(crucible.Labeled("output", customWriter)).
//	    Transient().
//	    AsSelf()
func Labeled(label string, value any) any {
	return labeledValue{label: label, value: value}
}
