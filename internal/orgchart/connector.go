package orgchart

// Segment is a straight vertical or horizontal line.
type Segment struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Rail is the horizontal bar joining the first and last child, relative to
// the left edge of the children's container.
type Rail struct {
	Start int `json:"start"`
	Width int `json:"width"`
}

// Connector is the manager/report line geometry below one parent.
type Connector struct {
	ParentID string `json:"parent_id"`
	// Container spans the children's subtree blocks; Y is the rail row.
	Container Rect    `json:"container"`
	Stem      Segment `json:"stem"`
	Rail      *Rail   `json:"rail,omitempty"`
	// Bend joins the stem to a lone child's drop on the rail row when the
	// two centers are not aligned.
	Bend  *Segment  `json:"bend,omitempty"`
	Drops []Segment `json:"drops"`
}

// ComputeRail spans from the center of the first child to the center of the
// last one. There is no rail for fewer than two children.
func ComputeRail(containerLeft int, children []Rect) (Rail, bool) {
	if len(children) < 2 {
		return Rail{}, false
	}
	start := children[0].CenterX() - containerLeft
	end := children[len(children)-1].CenterX() - containerLeft
	return Rail{Start: start, Width: end - start}, true
}

// Measure is the second pass: it reads the final boxes of an arranged
// forest and derives one connector per parent. Nodes missing from the layout
// are skipped.
func Measure(forest []*Node, l Layout) []Connector {
	stem := l.Spacing.normalized().StemHeight
	var out []Connector
	Walk(forest, func(n *Node, _ int) bool {
		if len(n.Children) == 0 {
			return true
		}
		parent, ok := l.Boxes[n.Position.ID]
		if !ok {
			return false
		}
		children := make([]Rect, 0, len(n.Children))
		var container Rect
		for _, c := range n.Children {
			box, ok := l.Boxes[c.Position.ID]
			if !ok {
				continue
			}
			block := l.Blocks[c.Position.ID]
			if len(children) == 0 {
				container = Rect{X: block.X, W: block.W}
			} else {
				left, right := min(container.X, block.X), max(container.Right(), block.Right())
				container = Rect{X: left, W: right - left}
			}
			children = append(children, box)
		}
		if len(children) == 0 {
			return true
		}
		railY := parent.Bottom() + stem
		container.Y = railY
		conn := Connector{
			ParentID:  n.Position.ID,
			Container: container,
			Stem:      Segment{X1: parent.CenterX(), Y1: parent.Bottom(), X2: parent.CenterX(), Y2: railY},
		}
		if rail, ok := ComputeRail(container.X, children); ok {
			conn.Rail = &rail
			for _, c := range children {
				conn.Drops = append(conn.Drops, Segment{X1: c.CenterX(), Y1: railY, X2: c.CenterX(), Y2: c.Y})
			}
		} else {
			child := children[0]
			if x := child.CenterX(); x != parent.CenterX() {
				conn.Bend = &Segment{X1: min(x, parent.CenterX()), Y1: railY, X2: max(x, parent.CenterX()), Y2: railY}
			}
			conn.Drops = []Segment{{X1: child.CenterX(), Y1: railY, X2: child.CenterX(), Y2: child.Y}}
		}
		out = append(out, conn)
		return true
	})
	return out
}
