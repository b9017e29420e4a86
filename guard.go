package crucible

import "reflect"

// resolveGuard tracks the types currently under construction within a single
// resolution call tree. It is created fresh for every top level Resolve call
// and handed down to factories through the resolution view, so re-entrant
// resolves inside factories share it. It is not safe for use from multiple
// goroutines; a factory that resolves from another goroutine forfeits cycle
// detection for that branch.
type resolveGuard struct {
	stack []reflect.Type
}

func newResolveGuard() *resolveGuard {
	return &resolveGuard{}
}

// enter pushes a type onto the construction stack. It fails if the type is
// already being constructed, which means the constructor graph has a cycle.
func (g *resolveGuard) enter(t reflect.Type) error {
	for _, cur := range g.stack {
		if cur == t {
			chain := make([]reflect.Type, 0, len(g.stack)+1)
			chain = append(chain, g.stack...)
			chain = append(chain, t)

			return &CircularDependencyError{Type: t, Chain: chain}
		}
	}

	g.stack = append(g.stack, t)

	return nil
}

// exit pops the most recent type. Callers must pair every successful enter
// with exactly one exit, including on failure paths.
func (g *resolveGuard) exit() {
	g.stack = g.stack[:len(g.stack)-1]
}
