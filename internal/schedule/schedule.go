// Package schedule produces message-passing schedules for a factor graph: the
// order in which belief propagation sends messages.
package schedule

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/bpgrad/internal/graph"
	"github.com/pkg/errors"
)

// ItemKind tags the variant of an Item.
type ItemKind int

const (
	// EdgeItem sends the message along one edge.
	EdgeItem ItemKind = iota
	// GlobalItem sends every outgoing message of one global factor at once.
	GlobalItem
)

// Item is one step of a schedule.
type Item struct {
	Kind ItemKind
	// Edge is the edge id of an EdgeItem.
	Edge int
	// Factor is the factor node index of a GlobalItem.
	Factor int
}

// String implements fmt.Stringer.
func (it Item) String() string {
	if it.Kind == GlobalItem {
		return fmt.Sprintf("global(factor#%d)", it.Factor)
	}
	return fmt.Sprintf("edge#%d", it.Edge)
}

// Schedule yields the items of one sweep.
type Schedule interface {
	Items() []Item
}

// Fixed is a schedule returning the same items on every sweep.
type Fixed []Item

// Items implements Schedule.
func (f Fixed) Items() []Item { return f }

// collapse turns edge ids into items, replacing the factor-to-var edges of a
// global factor by a single GlobalItem at the position of the first one.
func collapse(fg *graph.FactorGraph, ids []int) []Item {
	items := make([]Item, 0, len(ids))
	seen := make(map[int]bool)
	for _, id := range ids {
		e := fg.Edge(id)
		if !e.IsVarToFactor() && fg.Factor(e.Factor).Kind() == graph.Global {
			if !seen[e.Factor] {
				seen[e.Factor] = true
				items = append(items, Item{Kind: GlobalItem, Factor: e.Factor})
			}
			continue
		}
		items = append(items, Item{Kind: EdgeItem, Edge: id})
	}
	return items
}

// AllEdges returns every edge (in id order), with each global factor's
// outgoing messages as one item. It is the item set of a parallel sweep.
func AllEdges(fg *graph.FactorGraph) []Item {
	ids := make([]int, fg.NumEdges())
	for i := range ids {
		ids[i] = i
	}
	return collapse(fg, ids)
}

// BFSTreeLike returns a schedule that computes exact marginals on an acyclic
// graph in a single sweep: for each connected component, messages flow from
// the leaves up to a root and then back down.
//
// The root of a component is its global factor if it has one (several global
// factors in one component is an error), else its first node. A component
// with a cycle is an error.
func BFSTreeLike(fg *graph.FactorGraph) (Fixed, error) {
	var ids []int
	for ci, comp := range fg.ConnectedComponents() {
		root := comp[0]
		numGlobal := 0
		for _, n := range comp {
			if !n.IsVar && fg.Factor(n.Index).Kind() == graph.Global {
				numGlobal++
				root = n
			}
		}
		if numGlobal > 1 {
			return nil, errors.Errorf("schedule: component %d (containing %v) has %d global factors, at most one is supported", ci, comp[0], numGlobal)
		}
		edges, acyclic := fg.BFS(root)
		if !acyclic {
			return nil, errors.Errorf("schedule: component %d (containing %v) has a cycle, a tree-like schedule needs a forest", ci, comp[0])
		}
		// Leaves to root: the reverse edges in reverse BFS order.
		for i := len(edges) - 1; i >= 0; i-- {
			ids = append(ids, graph.Opposite(edges[i]))
		}
		ids = append(ids, edges...)
	}
	return Fixed(collapse(fg, ids)), nil
}

// Random is a schedule over every item, reshuffled on each sweep.
type Random struct {
	items []Item
	rng   *rand.Rand
}

// NewRandom creates a random schedule drawing permutations from rng.
func NewRandom(fg *graph.FactorGraph, rng *rand.Rand) *Random {
	return &Random{items: AllEdges(fg), rng: rng}
}

// Items implements Schedule. The returned slice is a fresh permutation.
func (r *Random) Items() []Item {
	items := append([]Item(nil), r.items...)
	r.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	return items
}
