package crucible

import (
	"fmt"
	"reflect"
	"strings"
)

// bindingKey identifies one contract binding in a container registry. Either
// typ is set (closed type binding) or open and arity are set (open generic
// binding keyed by the generic definition name). The label distinguishes
// multiple bindings of the same contract.
type bindingKey struct {
	typ   reflect.Type
	open  string
	arity int
	label string
}

// String returns a human readable representation of the binding key.
func (k bindingKey) String() string {
	name := k.open
	if k.typ != nil {
		name = k.typ.String()
	}

	if k.label == "" {
		return name
	}

	return fmt.Sprintf("%s[label=%s]", name, k.label)
}

func typeKeyOf(t reflect.Type, label string) bindingKey {
	return bindingKey{typ: t, label: label}
}

func openKeyOf(name string, arity int, label string) bindingKey {
	return bindingKey{open: name, arity: arity, label: label}
}

// openNameArity derives the open generic definition name and type argument
// count for an instantiated generic type, based on the textual form reflect
// reports for parameterized named types. Non-generic and unnamed types
// (slices, maps, channels) report ok as false.
func openNameArity(t reflect.Type) (string, int, bool) {
	if t == nil {
		return "", 0, false
	}

	s := t.String()

	i := strings.IndexByte(s, '[')
	if i <= 0 || !strings.HasSuffix(s, "]") {
		return "", 0, false
	}

	if strings.HasPrefix(s, "map[") || strings.HasPrefix(s, "[]") {
		return "", 0, false
	}

	// Count top level commas between the brackets to get the arity.
	inner := s[i+1 : len(s)-1]
	arity := 1
	depth := 0

	for _, r := range inner {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				arity++
			}
		}
	}

	return s[:i], arity, true
}
