package crucible

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Middleware provides hooks for intercepting container operations.
// Middleware can be used for logging, metrics, security, testing, etc.
type Middleware interface {
	// BeforeResolve is called before resolving a contract type.
	// Return error to abort resolution.
	BeforeResolve(t reflect.Type, label string) error

	// AfterResolve is called after resolving a contract type.
	// Called even if resolution failed (instance and err may both be set).
	AfterResolve(t reflect.Type, label string, instance any, err error) error

	// AfterRegister is called after a binding is pushed into the registry.
	AfterRegister(info BindingInfo)

	// AfterDispose is called after the container and its subtree were
	// disposed, with the combined disposal error if any.
	AfterDispose(err error)
}

// middlewareChain manages multiple middleware.
type middlewareChain struct {
	mu  sync.RWMutex
	mws []Middleware
}

func newMiddlewareChain(mws []Middleware) *middlewareChain {
	chain := &middlewareChain{}
	chain.mws = append(chain.mws, mws...)

	return chain
}

func (m *middlewareChain) use(mw Middleware) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mws = append(m.mws, mw)
}

func (m *middlewareChain) snapshot() []Middleware {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Middleware, len(m.mws))
	copy(out, m.mws)

	return out
}

func (m *middlewareChain) beforeResolve(t reflect.Type, label string) error {
	for _, mw := range m.snapshot() {
		if err := mw.BeforeResolve(t, label); err != nil {
			return err
		}
	}

	return nil
}

func (m *middlewareChain) afterResolve(t reflect.Type, label string, instance any, err error) error {
	for _, mw := range m.snapshot() {
		if mwErr := mw.AfterResolve(t, label, instance, err); mwErr != nil {
			return mwErr
		}
	}

	return nil
}

func (m *middlewareChain) afterRegister(info BindingInfo) {
	for _, mw := range m.snapshot() {
		mw.AfterRegister(info)
	}
}

func (m *middlewareChain) afterDispose(err error) {
	for _, mw := range m.snapshot() {
		mw.AfterDispose(err)
	}
}

// FuncMiddleware wraps functions as Middleware.
type FuncMiddleware struct {
	BeforeResolveFunc func(t reflect.Type, label string) error
	AfterResolveFunc  func(t reflect.Type, label string, instance any, err error) error
	AfterRegisterFunc func(info BindingInfo)
	AfterDisposeFunc  func(err error)
}

// BeforeResolve implements Middleware.
func (f *FuncMiddleware) BeforeResolve(t reflect.Type, label string) error {
	if f.BeforeResolveFunc != nil {
		return f.BeforeResolveFunc(t, label)
	}

	return nil
}

// AfterResolve implements Middleware.
func (f *FuncMiddleware) AfterResolve(t reflect.Type, label string, instance any, err error) error {
	if f.AfterResolveFunc != nil {
		return f.AfterResolveFunc(t, label, instance, err)
	}

	return nil
}

// AfterRegister implements Middleware.
func (f *FuncMiddleware) AfterRegister(info BindingInfo) {
	if f.AfterRegisterFunc != nil {
		f.AfterRegisterFunc(info)
	}
}

// AfterDispose implements Middleware.
func (f *FuncMiddleware) AfterDispose(err error) {
	if f.AfterDisposeFunc != nil {
		f.AfterDisposeFunc(err)
	}
}

// loggingMiddleware logs container operations at debug level.
type loggingMiddleware struct {
	log *zap.Logger
}

// NewLoggingMiddleware creates middleware that logs registrations,
// resolutions and disposal through the given zap logger.
//
// Example:
//
//	c := crucible.New(crucible.WithMiddleware(
//	    crucible.NewLoggingMiddleware(logger),
//	))
func NewLoggingMiddleware(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}

	return &loggingMiddleware{log: log}
}

func (l *loggingMiddleware) BeforeResolve(t reflect.Type, label string) error {
	l.log.Debug("resolving",
		zap.Stringer("type", t),
		zap.String("label", label),
	)

	return nil
}

func (l *loggingMiddleware) AfterResolve(t reflect.Type, label string, _ any, err error) error {
	if err != nil {
		l.log.Debug("resolution failed",
			zap.Stringer("type", t),
			zap.String("label", label),
			zap.Error(err),
		)

		return nil
	}

	l.log.Debug("resolved",
		zap.Stringer("type", t),
		zap.String("label", label),
	)

	return nil
}

func (l *loggingMiddleware) AfterRegister(info BindingInfo) {
	l.log.Debug("registered",
		zap.String("contract", info.Contract),
		zap.String("concrete", info.Concrete),
		zap.String("label", info.Label),
		zap.Stringer("lifetime", info.Lifetime),
	)
}

func (l *loggingMiddleware) AfterDispose(err error) {
	if err != nil {
		l.log.Debug("disposed with errors", zap.Error(err))

		return
	}

	l.log.Debug("disposed")
}
