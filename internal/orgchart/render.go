package orgchart

import (
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"organigramm/internal/domain"
)

const maxCardText = 26

// TextRenderer draws a chart into a monospace grid. Cards are rendered
// without color so they can be placed cell by cell; only the legend is
// colored, using the renderer bound to the output writer.
type TextRenderer struct {
	card    lipgloss.Style
	colors  *lipgloss.Renderer
	palette Palette
}

// NewTextRenderer builds a renderer for out. Colors are dropped when out is
// not a terminal.
func NewTextRenderer(out io.Writer, palette Palette) *TextRenderer {
	plain := lipgloss.NewRenderer(io.Discard)
	if palette == nil {
		palette = DefaultPalette
	}
	return &TextRenderer{
		card: plain.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Align(lipgloss.Center),
		colors:  lipgloss.NewRenderer(out),
		palette: palette,
	}
}

// Card renders one position as a bordered box.
func (r *TextRenderer) Card(p domain.Position) string {
	lines := []string{clip(p.Title)}
	switch {
	case p.UserID != nil && *p.UserID != "":
		lines = append(lines, clip(*p.UserID))
	case p.TeamID != nil && *p.TeamID != "":
		lines = append(lines, clip("Team "+*p.TeamID))
	default:
		lines = append(lines, VacantLabel)
	}
	if p.Department != nil && *p.Department != "" {
		lines = append(lines, clip(*p.Department))
	}
	return r.card.Render(strings.Join(lines, "\n"))
}

// Measure reports the cell size of a rendered card; it is the SizeFunc for
// terminal layouts.
func (r *TextRenderer) Measure(p domain.Position) Size {
	card := r.Card(p)
	return Size{W: lipgloss.Width(card), H: lipgloss.Height(card)}
}

// Draw paints cards and connectors of snap. Positions are looked up in the
// snapshot forest.
func (r *TextRenderer) Draw(snap Snapshot) string {
	l := snap.Layout
	if l.Width == 0 || l.Height == 0 {
		return ""
	}
	g := newGrid(l.Width, l.Height)
	// lines start and end on the card borders, which the cards then cover
	for _, c := range snap.Connectors {
		g.vertical(c.Stem.X1, c.Stem.Y1-1, c.Stem.Y2)
		if c.Rail != nil {
			x0 := c.Container.X + c.Rail.Start
			g.horizontal(c.Container.Y, x0, x0+c.Rail.Width)
		}
		if c.Bend != nil {
			g.horizontal(c.Bend.Y1, c.Bend.X1, c.Bend.X2)
		}
		for _, d := range c.Drops {
			g.vertical(d.X1, d.Y1, d.Y2)
		}
	}
	Walk(snap.Forest, func(n *Node, _ int) bool {
		box, ok := l.Boxes[n.Position.ID]
		if !ok {
			return false
		}
		for i, line := range strings.Split(r.Card(n.Position), "\n") {
			g.text(box.X, box.Y+i, line)
		}
		return true
	})
	for _, c := range snap.Connectors {
		g.attach(c.Stem.X1, c.Stem.Y1-1, '─', '┬')
		for _, d := range c.Drops {
			g.attach(d.X2, d.Y2, '─', '┴')
		}
	}
	return g.String()
}

// Legend lists the roles present in positions with their colors.
func (r *TextRenderer) Legend(positions []domain.Position) string {
	seen := map[string]bool{}
	for _, p := range positions {
		seen[ClassifyRole(roleLabel(p), r.palette)] = true
	}
	roles := make([]string, 0, len(seen))
	for role := range seen {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	parts := make([]string, 0, len(roles))
	for _, role := range roles {
		swatch := r.colors.NewStyle().Foreground(lipgloss.Color(r.palette.Color(role))).Render("■")
		name := role
		if role == RoleDefault {
			name = "Sonstige"
		}
		parts = append(parts, swatch+" "+name)
	}
	return strings.Join(parts, "  ")
}

// roleLabel is what role colors are derived from: the department, falling
// back to the title.
func roleLabel(p domain.Position) string {
	if p.Department != nil && strings.TrimSpace(*p.Department) != "" {
		return *p.Department
	}
	return p.Title
}

// RoleColor resolves the display color of p: its own color unless it is the
// default, otherwise the palette color of its role.
func RoleColor(p domain.Position, palette Palette) string {
	if p.Color != "" && !strings.EqualFold(p.Color, DefaultColor) {
		return p.Color
	}
	return palette.Color(roleLabel(p))
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxCardText {
		return s
	}
	return string(r[:maxCardText-1]) + "…"
}

const (
	up = 1 << iota
	down
	left
	right
)

var junctions = map[int]rune{
	up:                       '│',
	down:                     '│',
	up | down:                '│',
	left:                     '─',
	right:                    '─',
	left | right:             '─',
	down | right:             '┌',
	down | left:              '┐',
	up | right:               '└',
	up | left:                '┘',
	up | down | right:        '├',
	up | down | left:         '┤',
	left | right | down:      '┬',
	left | right | up:        '┴',
	up | down | left | right: '┼',
}

type grid struct {
	w, h  int
	cells [][]rune
	links [][]int
}

func newGrid(w, h int) *grid {
	g := &grid{w: w, h: h, cells: make([][]rune, h), links: make([][]int, h)}
	for y := range g.cells {
		g.cells[y] = []rune(strings.Repeat(" ", w))
		g.links[y] = make([]int, w)
	}
	return g
}

func (g *grid) link(x, y, dir int) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	g.links[y][x] |= dir
	g.cells[y][x] = junctions[g.links[y][x]]
}

// vertical links the cells from y1 down to y2, both included.
func (g *grid) vertical(x, y1, y2 int) {
	for y := y1; y <= y2; y++ {
		if y > y1 {
			g.link(x, y, up)
		}
		if y < y2 {
			g.link(x, y, down)
		}
	}
}

// attach replaces a border cell where a line meets a card.
func (g *grid) attach(x, y int, want, with rune) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	if g.cells[y][x] == want {
		g.cells[y][x] = with
	}
}

func (g *grid) horizontal(y, x1, x2 int) {
	for x := x1; x <= x2; x++ {
		if x > x1 {
			g.link(x, y, left)
		}
		if x < x2 {
			g.link(x, y, right)
		}
	}
}

func (g *grid) text(x, y int, s string) {
	if y < 0 || y >= g.h {
		return
	}
	for i, r := range []rune(s) {
		if x+i >= 0 && x+i < g.w {
			g.cells[y][x+i] = r
		}
	}
}

func (g *grid) String() string {
	lines := make([]string, g.h)
	for y, row := range g.cells {
		lines[y] = strings.TrimRight(string(row), " ")
	}
	return strings.Join(lines, "\n") + "\n"
}
