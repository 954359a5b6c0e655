package system

import (
	"fmt"
	"strings"

	"github.com/l1jgo/rewind/internal/core/ecs"
	"go.uber.org/multierr"
)

type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (b bitset) set(i int)      { b[i/64] |= 1 << (i % 64) }
func (b bitset) has(i int) bool { return b[i/64]&(1<<(i%64)) != 0 }

func (b bitset) or(o bitset) {
	for i := range b {
		b[i] |= o[i]
	}
}

// Plan is the wavefront layering of a fixed system set. It is a pure
// function of the descriptors and their declaration order.
type Plan struct {
	names   []string
	descs   []Descriptor
	layers  [][]int
	layerOf []int
	succ    []bitset
}

// newPlan resolves groups and ordering hints, adds declaration-order edges
// between conflicting systems that are not yet ordered, and assigns each
// system to 1 + the deepest layer of its predecessors.
func newPlan(groups []Group, descs []Descriptor, components int) (*Plan, error) {
	n := len(descs)
	total := n + len(groups)
	names := make([]string, total)
	before := make([][]string, total)
	after := make([][]string, total)
	parents := make([]string, total)
	for i, d := range descs {
		names[i], before[i], after[i], parents[i] = d.Name, d.Before, d.After, d.Parent
	}
	for gi, g := range groups {
		names[n+gi], before[n+gi], after[n+gi], parents[n+gi] = g.Name, g.Before, g.After, g.Parent
	}

	var errs error
	index := make(map[string]int, total)
	for i, name := range names {
		if name == "" {
			errs = multierr.Append(errs, fmt.Errorf("system or group #%d has no name", i))
			continue
		}
		if _, dup := index[name]; dup {
			errs = multierr.Append(errs, &DuplicateError{Name: name})
			continue
		}
		index[name] = i
	}

	var registered ecs.Mask
	for c := 0; c < components; c++ {
		registered.Set(uint(c))
	}
	for _, d := range descs {
		d.Reads.Or(d.Writes).AndNot(registered).Each(func(c uint) {
			errs = multierr.Append(errs, &UnregisteredComponentError{System: d.Name, Component: ecs.ComponentID(c)})
		})
	}

	parent := make([]int, total)
	for i := range names {
		parent[i] = -1
		for _, ref := range before[i] {
			if _, ok := index[ref]; !ok {
				errs = multierr.Append(errs, &ReferenceError{System: names[i], Kind: "before", Ref: ref})
			}
		}
		for _, ref := range after[i] {
			if _, ok := index[ref]; !ok {
				errs = multierr.Append(errs, &ReferenceError{System: names[i], Kind: "after", Ref: ref})
			}
		}
		if parents[i] == "" {
			continue
		}
		p, ok := index[parents[i]]
		if !ok || p < n {
			errs = multierr.Append(errs, &ReferenceError{System: names[i], Kind: "parent", Ref: parents[i]})
			continue
		}
		parent[i] = p
	}
	if errs != nil {
		return nil, errs
	}

	// Ancestor chains, then group membership.
	ancestors := make([][]int, total)
	for i := range names {
		for p := parent[i]; p >= 0; p = parent[p] {
			if p == i || len(ancestors[i]) > total {
				chain := []string{names[i]}
				for _, a := range ancestors[i] {
					chain = append(chain, names[a])
				}
				return nil, &CycleError{Systems: chain}
			}
			ancestors[i] = append(ancestors[i], p)
		}
	}
	members := make([][]int, total)
	for i := 0; i < n; i++ {
		members[i] = []int{i}
		for _, a := range ancestors[i] {
			members[a] = append(members[a], i)
		}
	}

	succ := make([]bitset, n)
	for i := range succ {
		succ[i] = newBitset(n)
	}
	for i := 0; i < n; i++ {
		scopes := append([]int{i}, ancestors[i]...)
		for _, sc := range scopes {
			for _, ref := range after[sc] {
				for _, m := range members[index[ref]] {
					if m != i {
						succ[m].set(i)
					}
				}
			}
			for _, ref := range before[sc] {
				for _, m := range members[index[ref]] {
					if m != i {
						succ[i].set(m)
					}
				}
			}
		}
	}

	order, done := topoSort(succ)
	if len(order) < n {
		return nil, &CycleError{Systems: findCycle(succ, done, names)}
	}

	reach := make([]bitset, n)
	for k := n - 1; k >= 0; k-- {
		v := order[k]
		reach[v] = newBitset(n)
		for w := 0; w < n; w++ {
			if succ[v].has(w) {
				reach[v].set(w)
				reach[v].or(reach[w])
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !conflicts(&descs[i], &descs[j]) || reach[i].has(j) || reach[j].has(i) {
				continue
			}
			succ[i].set(j)
			for x := 0; x < n; x++ {
				if x == i || reach[x].has(i) {
					reach[x].set(j)
					reach[x].or(reach[j])
				}
			}
		}
	}

	order, _ = topoSort(succ)
	layerOf := make([]int, n)
	depth := 0
	for _, v := range order {
		for w := 0; w < n; w++ {
			if succ[v].has(w) && layerOf[w] < layerOf[v]+1 {
				layerOf[w] = layerOf[v] + 1
			}
		}
		depth = max(depth, layerOf[v]+1)
	}
	layers := make([][]int, depth)
	for i := 0; i < n; i++ {
		layers[layerOf[i]] = append(layers[layerOf[i]], i)
	}

	return &Plan{
		names:   names[:n],
		descs:   descs,
		layers:  layers,
		layerOf: layerOf,
		succ:    succ,
	}, nil
}

// topoSort returns the nodes in a topological order. When the graph has a
// cycle the order is short and done marks the nodes that were placed.
func topoSort(succ []bitset) (order []int, done []bool) {
	n := len(succ)
	indeg := make([]int, n)
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if succ[u].has(v) {
				indeg[v]++
			}
		}
	}
	done = make([]bool, n)
	order = make([]int, 0, n)
	for progressed := true; progressed && len(order) < n; {
		progressed = false
		for v := 0; v < n; v++ {
			if done[v] || indeg[v] != 0 {
				continue
			}
			done[v] = true
			order = append(order, v)
			progressed = true
			for w := 0; w < n; w++ {
				if succ[v].has(w) {
					indeg[w]--
				}
			}
		}
	}
	return order, done
}

// findCycle walks predecessors among the unplaced nodes, each of which has
// at least one unplaced predecessor, until a node repeats.
func findCycle(succ []bitset, done []bool, names []string) []string {
	start := -1
	for v := range done {
		if !done[v] {
			start = v
			break
		}
	}
	seen := make(map[int]int)
	var path []int
	for v := start; ; {
		if at, ok := seen[v]; ok {
			path = path[at:]
			break
		}
		seen[v] = len(path)
		path = append(path, v)
		for u := range succ {
			if !done[u] && succ[u].has(v) {
				v = u
				break
			}
		}
	}
	out := make([]string, 0, len(path)+1)
	for k := len(path) - 1; k >= 0; k-- {
		out = append(out, names[path[k]])
	}
	return append(out, out[0])
}

// Len returns the number of layers.
func (p *Plan) Len() int { return len(p.layers) }

// Layers returns system names per layer in declaration order.
func (p *Plan) Layers() [][]string {
	out := make([][]string, len(p.layers))
	for l, layer := range p.layers {
		for _, i := range layer {
			out[l] = append(out[l], p.names[i])
		}
	}
	return out
}

// Layer returns the layer a system was assigned to.
func (p *Plan) Layer(name string) (int, bool) {
	for i, n := range p.names {
		if n == name {
			return p.layerOf[i], true
		}
	}
	return 0, false
}

// Verify checks the layering structurally: no two conflicting systems
// share a layer and every ordering edge points to a later layer.
func (p *Plan) Verify() error {
	var errs error
	for l, layer := range p.layers {
		for a := 0; a < len(layer); a++ {
			for b := a + 1; b < len(layer); b++ {
				i, j := layer[a], layer[b]
				if conflicts(&p.descs[i], &p.descs[j]) {
					errs = multierr.Append(errs, &ConflictError{Layer: l, A: p.names[i], B: p.names[j]})
				}
			}
		}
	}
	for u := range p.succ {
		for v := range p.succ {
			if p.succ[u].has(v) && p.layerOf[u] >= p.layerOf[v] {
				errs = multierr.Append(errs, &ConflictError{Layer: p.layerOf[v], A: p.names[u], B: p.names[v]})
			}
		}
	}
	return errs
}

func (p *Plan) String() string {
	var sb strings.Builder
	for l, names := range p.Layers() {
		fmt.Fprintf(&sb, "layer %d: %s\n", l, strings.Join(names, ", "))
	}
	return sb.String()
}
