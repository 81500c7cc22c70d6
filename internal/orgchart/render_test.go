package orgchart_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

func TestTextRendererDrawsCardsAndLines(t *testing.T) {
	positions := []domain.Position{
		{ID: "a", Title: "Praxisleitung", UserID: ptr("Dr. Weber"), Active: true},
		{ID: "b", Title: "MFA", ParentID: ptr("a"), Active: true},
		{ID: "c", Title: "Verwaltung", ParentID: ptr("a"), DisplayOrder: 1, TeamID: ptr("Büro"), Active: true},
	}
	var buf bytes.Buffer
	r := orgchart.NewTextRenderer(&buf, nil)
	snap := orgchart.Compute(positions, r.Measure, orgchart.TerminalSpacing)
	out := r.Draw(snap)

	for _, want := range []string{"Praxisleitung", "Dr. Weber", "Vakant", "Team Büro", "┌", "┐", "┬", "╭"} {
		assert.Contains(t, out, want)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, snap.Layout.Height)
	for _, line := range lines {
		assert.LessOrEqual(t, len([]rune(line)), snap.Layout.Width)
	}
}

func TestTextRendererEmptyChart(t *testing.T) {
	r := orgchart.NewTextRenderer(&bytes.Buffer{}, nil)
	assert.Empty(t, r.Draw(orgchart.Compute(nil, r.Measure, orgchart.TerminalSpacing)))
}

func TestTextRendererClipsLongTitles(t *testing.T) {
	r := orgchart.NewTextRenderer(&bytes.Buffer{}, nil)
	card := r.Card(domain.Position{Title: strings.Repeat("Weiterbildung", 4)})
	require.Contains(t, card, "…")
	size := r.Measure(domain.Position{Title: strings.Repeat("Weiterbildung", 4)})
	assert.Equal(t, 26+4, size.W)
	assert.Equal(t, 4, size.H)
}

func TestLegendListsRolesOnce(t *testing.T) {
	r := orgchart.NewTextRenderer(&bytes.Buffer{}, nil)
	legend := r.Legend([]domain.Position{
		{Title: "Arzt"},
		{Title: "Oberarzt"},
		{Title: "Putzdienst"},
		{Title: "MFA"},
	})
	assert.Equal(t, 1, strings.Count(legend, "Arzt"))
	assert.Contains(t, legend, "MFA")
	assert.Contains(t, legend, "Sonstige")
}
