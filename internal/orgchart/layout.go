package orgchart

import "organigramm/internal/domain"

// Rect is an axis-aligned box in layout units (pixels for the canvas preset,
// cells for the terminal).
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) CenterX() int { return r.X + r.W/2 }
func (r Rect) Right() int   { return r.X + r.W }
func (r Rect) Bottom() int  { return r.Y + r.H }

// Size is what a measurer reports for one rendered position.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// SizeFunc measures the rendered form of a position.
type SizeFunc func(p domain.Position) Size

// FixedSize measures every position as a w x h box.
func FixedSize(w, h int) SizeFunc {
	return func(domain.Position) Size { return Size{W: w, H: h} }
}

// Spacing controls the gaps between boxes.
type Spacing struct {
	HGap       int `json:"h_gap"`
	VGap       int `json:"v_gap"`
	RootGap    int `json:"root_gap"`
	Margin     int `json:"margin"`
	StemHeight int `json:"stem_height"`
}

// CanvasSpacing matches the browser canvas: 300x140 cards with 80/120 gaps.
var CanvasSpacing = Spacing{HGap: 80, VGap: 120, RootGap: 120, Margin: 40, StemHeight: 60}

// TerminalSpacing fits box-drawn cards into a monospace grid.
var TerminalSpacing = Spacing{HGap: 2, VGap: 3, RootGap: 4, Margin: 0, StemHeight: 1}

func (s Spacing) normalized() Spacing {
	if s.VGap < 2 {
		s.VGap = 2
	}
	if s.StemHeight < 1 || s.StemHeight >= s.VGap {
		s.StemHeight = s.VGap / 2
	}
	if s.HGap < 0 {
		s.HGap = 0
	}
	if s.RootGap < 0 {
		s.RootGap = 0
	}
	if s.Margin < 0 {
		s.Margin = 0
	}
	return s
}

// Layout is the result of the layout pass. Boxes hold the node rectangles;
// Blocks hold the horizontal extent of each node's whole subtree.
type Layout struct {
	Boxes   map[string]Rect `json:"boxes"`
	Blocks  map[string]Rect `json:"blocks"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Spacing Spacing         `json:"spacing"`
}

// Box returns the rectangle placed for id.
func (l Layout) Box(id string) (Rect, bool) {
	r, ok := l.Boxes[id]
	return r, ok
}

// Arrange places every node of the forest without drawing any connector.
// A subtree is as wide as the wider of its own box and its children's
// blocks side by side; the node is centered over it and the children row is
// centered under the node. All nodes of one depth share a row whose height is
// the tallest box of that depth.
func Arrange(forest []*Node, measure SizeFunc, spacing Spacing) Layout {
	sp := spacing.normalized()
	l := Layout{
		Boxes:   map[string]Rect{},
		Blocks:  map[string]Rect{},
		Spacing: sp,
	}
	if len(forest) == 0 {
		return l
	}

	sizes := map[*Node]Size{}
	var rowHeights []int
	Walk(forest, func(n *Node, depth int) bool {
		s := measure(n.Position)
		sizes[n] = s
		for len(rowHeights) <= depth {
			rowHeights = append(rowHeights, 0)
		}
		if s.H > rowHeights[depth] {
			rowHeights[depth] = s.H
		}
		return true
	})
	rowY := make([]int, len(rowHeights))
	y := sp.Margin
	for d, h := range rowHeights {
		rowY[d] = y
		y += h + sp.VGap
	}
	l.Height = y - sp.VGap + sp.Margin

	widths := map[*Node]int{}
	var blockWidth func(n *Node) int
	blockWidth = func(n *Node) int {
		if w, ok := widths[n]; ok {
			return w
		}
		w := sizes[n].W
		if row := childrenWidth(n, blockWidth, sp.HGap); row > w {
			w = row
		}
		widths[n] = w
		return w
	}

	var place func(n *Node, left, depth int)
	place = func(n *Node, left, depth int) {
		bw := blockWidth(n)
		s := sizes[n]
		l.Boxes[n.Position.ID] = Rect{X: left + (bw-s.W)/2, Y: rowY[depth], W: s.W, H: s.H}
		l.Blocks[n.Position.ID] = Rect{X: left, Y: rowY[depth], W: bw, H: s.H}
		x := left + (bw-childrenWidth(n, blockWidth, sp.HGap))/2
		for _, c := range n.Children {
			place(c, x, depth+1)
			x += blockWidth(c) + sp.HGap
		}
	}

	left := sp.Margin
	for i, root := range forest {
		if i > 0 {
			left += sp.RootGap
		}
		place(root, left, 0)
		left += blockWidth(root)
	}
	l.Width = left + sp.Margin
	return l
}

func childrenWidth(n *Node, blockWidth func(*Node) int, gap int) int {
	if len(n.Children) == 0 {
		return 0
	}
	w := gap * (len(n.Children) - 1)
	for _, c := range n.Children {
		w += blockWidth(c)
	}
	return w
}
