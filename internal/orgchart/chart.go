package orgchart

import (
	"sync"

	"organigramm/internal/domain"
)

// Snapshot is one consistent view of the chart: the forest, where every node
// went, and the lines between them.
type Snapshot struct {
	Forest     []*Node     `json:"forest"`
	Layout     Layout      `json:"layout"`
	Connectors []Connector `json:"connectors"`
	Hidden     []string    `json:"hidden,omitempty"`
	Stats      Stats       `json:"stats"`
}

// Compute runs both passes over positions.
func Compute(positions []domain.Position, measure SizeFunc, spacing Spacing) Snapshot {
	forest := BuildForest(positions)
	layout := Arrange(forest, measure, spacing)
	return Snapshot{
		Forest:     forest,
		Layout:     layout,
		Connectors: Measure(forest, layout),
		Hidden:     Hidden(positions, forest),
		Stats:      Summarize(positions),
	}
}

// Chart keeps the latest snapshot and recomputes it whenever the positions
// change. Refresh fits Editor.Observe so that every confirmed mutation is
// followed by a new layout and measure pass.
type Chart struct {
	measure SizeFunc
	spacing Spacing

	mu         sync.RWMutex
	current    Snapshot
	generation int
}

func NewChart(measure SizeFunc, spacing Spacing) *Chart {
	return &Chart{measure: measure, spacing: spacing}
}

// Refresh recomputes the chart from positions.
func (c *Chart) Refresh(positions []domain.Position) {
	snap := Compute(positions, c.measure, c.spacing)
	c.mu.Lock()
	c.current = snap
	c.generation++
	c.mu.Unlock()
}

// Snapshot returns the latest computed chart.
func (c *Chart) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Generation counts how many times the chart was recomputed.
func (c *Chart) Generation() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}
