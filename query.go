package crucible

import (
	"sort"
	"strings"
)

// BindingInfo describes one registered binding for introspection and
// middleware. Depth is the distance from the container the query ran on: 0
// for its own bindings, 1 for its parent's, and so on.
type BindingInfo struct {
	Contract string
	Concrete string
	Label    string
	Lifetime Lifetime
	Depth    int
}

// Bindings returns every binding visible from this container, its own first,
// then each ancestor's. Within one container the order follows resolution
// order: most recent registration first per contract, contracts sorted by
// name for stable output.
func (c *Container) Bindings() []BindingInfo {
	var out []BindingInfo

	depth := 0
	for st := c.st; st != nil; st = st.parent {
		out = append(out, st.bindingInfos(depth)...)
		depth++
	}

	return out
}

func (st *state) bindingInfos(depth int) []BindingInfo {
	st.mu.RLock()

	keys := make([]bindingKey, 0, len(st.bindings))
	for key := range st.bindings {
		keys = append(keys, key)
	}

	stacks := make(map[bindingKey][]*resolver, len(keys))
	for _, key := range keys {
		stacks[key] = st.bindings[key]
	}
	st.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	var out []BindingInfo

	for _, key := range keys {
		for _, r := range stacks[key] {
			concrete := ""
			if r.concrete != nil {
				concrete = r.concrete.String()
			}

			out = append(out, BindingInfo{
				Contract: key.String(),
				Concrete: concrete,
				Label:    key.label,
				Lifetime: r.lifetime,
				Depth:    depth,
			})
		}
	}

	return out
}

// BindingQuery filters binding introspection results. Zero fields match
// everything.
type BindingQuery struct {
	// ContractContains matches bindings whose contract name contains the
	// substring.
	ContractContains string

	// Label matches bindings registered under exactly this label.
	Label string

	// Lifetime restricts results to one lifetime.
	Lifetime *Lifetime

	// LocalOnly restricts results to the queried container's own bindings.
	LocalOnly bool
}

// QueryBindings returns the visible bindings matching the query, in the same
// order as Bindings.
func (c *Container) QueryBindings(q BindingQuery) []BindingInfo {
	var out []BindingInfo

	for _, info := range c.Bindings() {
		if q.LocalOnly && info.Depth != 0 {
			continue
		}

		if q.ContractContains != "" && !strings.Contains(info.Contract, q.ContractContains) {
			continue
		}

		if q.Label != "" && info.Label != q.Label {
			continue
		}

		if q.Lifetime != nil && info.Lifetime != *q.Lifetime {
			continue
		}

		out = append(out, info)
	}

	return out
}

// FindByLifetime returns the visible bindings registered with the given
// lifetime.
func (c *Container) FindByLifetime(lt Lifetime) []BindingInfo {
	return c.QueryBindings(BindingQuery{Lifetime: &lt})
}
