// Package orgchart turns flat position rows into a reporting forest, lays it
// out, computes connector geometry and mutates positions through a
// persistence backend.
package orgchart

import (
	"sort"

	"organigramm/internal/domain"
)

// Node wraps a position with its direct reports.
type Node struct {
	Position domain.Position `json:"position"`
	Children []*Node         `json:"children"`
}

// BuildForest links positions by ParentID. A position whose parent is absent
// from the input becomes a root. Children are ordered by DisplayOrder with a
// stable sort; roots keep their input order. Positions caught in a parent
// cycle are not reachable from any root and are left out. When an id repeats,
// the first row wins.
func BuildForest(positions []domain.Position) []*Node {
	byID := make(map[string]*Node, len(positions))
	for _, p := range positions {
		if _, dup := byID[p.ID]; dup {
			continue
		}
		byID[p.ID] = &Node{Position: p, Children: []*Node{}}
	}
	roots := []*Node{}
	placed := make(map[string]bool, len(byID))
	for _, p := range positions {
		if placed[p.ID] {
			continue
		}
		placed[p.ID] = true
		node := byID[p.ID]
		if p.ParentID != nil {
			if parent, ok := byID[*p.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}
	for _, root := range roots {
		sortChildren(root)
	}
	return roots
}

func sortChildren(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		return n.Children[i].Position.DisplayOrder < n.Children[j].Position.DisplayOrder
	})
	for _, c := range n.Children {
		sortChildren(c)
	}
}

// Walk visits the forest depth first, parents before children. Returning
// false from fn skips the node's subtree.
func Walk(forest []*Node, fn func(n *Node, depth int) bool) {
	var visit func(n *Node, depth int)
	visit = func(n *Node, depth int) {
		if !fn(n, depth) {
			return
		}
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	for _, root := range forest {
		visit(root, 0)
	}
}

// Flatten lists the forest's positions in display order.
func Flatten(forest []*Node) []domain.Position {
	var out []domain.Position
	Walk(forest, func(n *Node, _ int) bool {
		out = append(out, n.Position)
		return true
	})
	return out
}

// Hidden returns the ids of positions that are not part of the forest,
// which only happens when their parent chain loops.
func Hidden(positions []domain.Position, forest []*Node) []string {
	seen := make(map[string]bool, len(positions))
	Walk(forest, func(n *Node, _ int) bool {
		seen[n.Position.ID] = true
		return true
	})
	var hidden []string
	for _, p := range positions {
		if !seen[p.ID] {
			hidden = append(hidden, p.ID)
		}
	}
	return hidden
}

// Descendants returns id and every position that reports to it, directly or
// not.
func Descendants(positions []domain.Position, id string) map[string]bool {
	children := make(map[string][]string, len(positions))
	for _, p := range positions {
		if p.ParentID != nil {
			children[*p.ParentID] = append(children[*p.ParentID], p.ID)
		}
	}
	out := map[string]bool{id: true}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if out[c] {
				continue
			}
			out[c] = true
			queue = append(queue, c)
		}
	}
	return out
}

// AvailableParents lists the positions id may report to: everything except
// itself and its own subtree. An empty id means a new position, so every
// position qualifies.
func AvailableParents(positions []domain.Position, id string) []domain.Position {
	excluded := map[string]bool{}
	if id != "" {
		excluded = Descendants(positions, id)
	}
	out := []domain.Position{}
	for _, p := range positions {
		if !excluded[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// WouldCycle reports whether making parentID the parent of id would close a
// loop. It climbs from parentID towards the root and stops at the first
// missing parent or repeated id.
func WouldCycle(positions []domain.Position, id, parentID string) bool {
	if parentID == "" {
		return false
	}
	if parentID == id {
		return true
	}
	byID := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		byID[p.ID] = p
	}
	seen := map[string]bool{}
	cur := parentID
	for cur != "" && !seen[cur] {
		if cur == id {
			return true
		}
		seen[cur] = true
		p, ok := byID[cur]
		if !ok || p.ParentID == nil {
			return false
		}
		cur = *p.ParentID
	}
	return false
}

func lookup(positions []domain.Position, id string) (domain.Position, bool) {
	for _, p := range positions {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Position{}, false
}
