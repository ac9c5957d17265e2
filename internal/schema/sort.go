package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------
// 3. Sorting Algorithm (Depth-first topological order)
// ---------------------------------------------------------------------

// DependencyNode is one table in the FK graph built for a single sort
// request. References are the tables it points to (its parents),
// ReferencedBy the tables pointing at it.
type DependencyNode struct {
	Table        *Table
	References   []*DependencyNode
	ReferencedBy []*DependencyNode
}

func (n *DependencyNode) key() string { return n.Table.ID.Key() }

// buildGraph builds nodes for tables only; edges to tables outside the set
// and self references are ignored.
func buildGraph(tables []*Table) []*DependencyNode {
	nodes := make(map[string]*DependencyNode, len(tables))
	var ordered []*DependencyNode
	for _, t := range tables {
		if _, dup := nodes[t.ID.Key()]; dup {
			continue
		}
		n := &DependencyNode{Table: t}
		nodes[t.ID.Key()] = n
		ordered = append(ordered, n)
	}
	for _, n := range ordered {
		for _, fk := range n.Table.ForeignKeys {
			parent, ok := nodes[NormalizeName(fk.RefTable)]
			if !ok || parent == n || containsNode(n.References, parent) {
				continue
			}
			n.References = append(n.References, parent)
			parent.ReferencedBy = append(parent.ReferencedBy, n)
		}
		sortNodes(n.References)
	}
	sortNodes(ordered)
	for _, n := range ordered {
		sortNodes(n.ReferencedBy)
	}
	return ordered
}

// SortForInsert orders tables so every table follows the tables it
// references. Cycles are broken deterministically and reported in warnings;
// the result is always a permutation of the input.
func SortForInsert(tables []*Table) ([]*Table, []string) {
	nodes := buildGraph(tables)

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(nodes))
	sorted := make([]*Table, 0, len(nodes))
	var warnings []string
	var path []*DependencyNode

	var visit func(n *DependencyNode)
	visit = func(n *DependencyNode) {
		state[n.key()] = inProgress
		path = append(path, n)
		for _, parent := range n.References {
			switch state[parent.key()] {
			case unvisited:
				visit(parent)
			case inProgress:
				// Back edge: the parent is on the current path. Drop this edge;
				// the cycle members are the path suffix starting at parent.
				warnings = append(warnings, cycleWarning(path, parent, n))
			}
		}
		path = path[:len(path)-1]
		state[n.key()] = done
		sorted = append(sorted, n.Table)
	}

	// Lexical order of roots makes the traversal, and therefore the point at
	// which a cycle is broken, deterministic.
	for _, n := range nodes {
		if state[n.key()] == unvisited {
			visit(n)
		}
	}
	return sorted, warnings
}

// SortForDelete is the exact reverse of SortForInsert: children first.
func SortForDelete(tables []*Table) ([]*Table, []string) {
	sorted, warnings := SortForInsert(tables)
	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted, warnings
}

func cycleWarning(path []*DependencyNode, parent, child *DependencyNode) string {
	start := 0
	for i, p := range path {
		if p == parent {
			start = i
			break
		}
	}
	names := make([]string, 0, len(path)-start)
	for _, p := range path[start:] {
		names = append(names, p.Table.ID.Name)
	}
	sort.Strings(names)
	return fmt.Sprintf("circular foreign key dependency between %s; ordering ignores the reference %s -> %s",
		strings.Join(names, ", "), child.Table.ID.Name, parent.Table.ID.Name)
}

func sortNodes(nodes []*DependencyNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].key() < nodes[j].key() })
}

func containsNode(nodes []*DependencyNode, n *DependencyNode) bool {
	for _, c := range nodes {
		if c == n {
			return true
		}
	}
	return false
}
