// Package toposort orders the nodes of a directed acyclic graph so that every
// node comes after its dependencies.
//
// Nodes are any comparable values; the graph is given as a root and a
// function returning each node's dependencies. Traversals are iterative, so
// deep graphs (long unrolled message-passing programs) cannot overflow the
// goroutine stack.
package toposort

import (
	"github.com/pkg/errors"
)

// DepsFunc returns the dependencies (inputs) of a node.
type DepsFunc[T comparable] func(T) []T

type visitState uint8

const (
	unvisited visitState = iota
	onStack
	done
)

type frame[T comparable] struct {
	node T
	deps []T
	next int
}

// Sort returns the nodes reachable from root in dependency order, root last.
//
// If leaves is non-empty, traversal stops at the leaves: they are excluded
// from the result, and so is everything only reachable through them. The
// leaf set is validated first with CheckIsValidLeafSet.
//
// A cycle is reported as an error naming one node on it.
func Sort[T comparable](root T, deps DepsFunc[T], leaves ...T) ([]T, error) {
	leafSet := make(map[T]bool, len(leaves))
	for _, l := range leaves {
		leafSet[l] = true
	}
	if len(leaves) > 0 {
		if err := CheckIsValidLeafSet(root, deps, leaves); err != nil {
			return nil, err
		}
	}
	if leafSet[root] {
		return nil, nil
	}

	state := make(map[T]visitState)
	var order []T
	stack := []frame[T]{{node: root, deps: deps(root)}}
	state[root] = onStack
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next < len(top.deps) {
			d := top.deps[top.next]
			top.next++
			if leafSet[d] {
				continue
			}
			switch state[d] {
			case onStack:
				return nil, errors.Errorf("toposort: cycle detected at node %v", d)
			case done:
				continue
			}
			state[d] = onStack
			stack = append(stack, frame[T]{node: d, deps: deps(d)})
			continue
		}
		state[top.node] = done
		order = append(order, top.node)
		stack = stack[:len(stack)-1]
	}
	return order, nil
}

// CheckIsValidLeafSet verifies that every leaf is a proper descendant of root
// and that the leaves form a complete cut: every path from root down to a
// node without dependencies passes through a leaf.
func CheckIsValidLeafSet[T comparable](root T, deps DepsFunc[T], leaves []T) error {
	leafSet := make(map[T]bool, len(leaves))
	for _, l := range leaves {
		leafSet[l] = true
	}

	// Pass 1: descendants of root.
	descendants := make(map[T]bool)
	stack := append([]T(nil), deps(root)...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if descendants[n] {
			continue
		}
		descendants[n] = true
		stack = append(stack, deps(n)...)
	}
	for _, l := range leaves {
		if !descendants[l] {
			return errors.Errorf("toposort: leaf %v is not a descendant of the root", l)
		}
	}

	// Pass 2: no true leaf reachable without crossing the cut.
	visited := make(map[T]bool)
	stack = append(stack[:0], root)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] || leafSet[n] {
			continue
		}
		visited[n] = true
		ds := deps(n)
		if len(ds) == 0 {
			return errors.Errorf("toposort: node %v is reachable from the root without passing through the leaf set", n)
		}
		stack = append(stack, ds...)
	}
	return nil
}
