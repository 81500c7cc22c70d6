package orgchart_test

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

func ptr[T any](v T) *T { return &v }

func pos(id string, parent *string, order int) domain.Position {
	return domain.Position{ID: id, Title: "Position " + id, ParentID: parent, DisplayOrder: order, Active: true}
}

func ids(nodes []*orgchart.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Position.ID)
	}
	return out
}

func TestBuildForestExample(t *testing.T) {
	forest := orgchart.BuildForest([]domain.Position{
		pos("a", nil, 0),
		pos("b", ptr("a"), 1),
		pos("c", ptr("a"), 0),
		pos("x", ptr("missing"), 0),
	})

	require.Equal(t, []string{"a", "x"}, ids(forest))
	assert.Equal(t, []string{"c", "b"}, ids(forest[0].Children))
	assert.Empty(t, forest[1].Children)
}

func TestBuildForestEmpty(t *testing.T) {
	forest := orgchart.BuildForest(nil)
	assert.NotNil(t, forest)
	assert.Empty(t, forest)
}

func TestBuildForestPromotesOrphans(t *testing.T) {
	forest := orgchart.BuildForest([]domain.Position{
		pos("lead", nil, 0),
		pos("orphan", ptr("deleted"), 3),
		pos("report", ptr("orphan"), 0),
	})

	require.Equal(t, []string{"lead", "orphan"}, ids(forest))
	assert.Equal(t, []string{"report"}, ids(forest[1].Children))
}

func TestBuildForestSiblingOrderIsStable(t *testing.T) {
	siblings := []domain.Position{
		pos("s1", ptr("root"), 1),
		pos("s2", ptr("root"), 0),
		pos("s3", ptr("root"), 1),
		pos("s4", ptr("root"), 0),
	}
	for _, perm := range permutations(siblings) {
		input := append([]domain.Position{pos("root", nil, 0)}, perm...)
		forest := orgchart.BuildForest(input)
		require.Len(t, forest, 1)

		want := append([]domain.Position(nil), perm...)
		sort.SliceStable(want, func(i, j int) bool { return want[i].DisplayOrder < want[j].DisplayOrder })
		wantIDs := make([]string, len(want))
		for i, p := range want {
			wantIDs[i] = p.ID
		}
		if diff := cmp.Diff(wantIDs, ids(forest[0].Children)); diff != "" {
			t.Fatalf("children order for input %v (-want +got):\n%s", idsOf(perm), diff)
		}
	}
}

func TestBuildForestSortsPerParentOnly(t *testing.T) {
	forest := orgchart.BuildForest([]domain.Position{
		pos("r1", nil, 9),
		pos("r2", nil, 0),
		pos("a", ptr("r1"), 5),
		pos("b", ptr("r2"), 1),
	})
	// roots keep input order, only siblings are sorted
	assert.Equal(t, []string{"r1", "r2"}, ids(forest))
}

func TestBuildForestWellFormed(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(40)
		var positions []domain.Position
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("p%d", i)
			var parent *string
			switch r := rng.Intn(10); {
			case r == 0:
				parent = ptr("ghost")
			case r < 3 || i == 0:
			default:
				parent = ptr(fmt.Sprintf("p%d", rng.Intn(i)))
			}
			positions = append(positions, pos(id, parent, rng.Intn(4)))
		}
		rng.Shuffle(len(positions), func(i, j int) { positions[i], positions[j] = positions[j], positions[i] })

		forest := orgchart.BuildForest(positions)
		known := map[string]bool{}
		for _, p := range positions {
			known[p.ID] = true
		}
		seen := map[string]int{}
		orgchart.Walk(forest, func(n *orgchart.Node, depth int) bool {
			seen[n.Position.ID]++
			for i, c := range n.Children {
				require.NotNil(t, c.Position.ParentID)
				assert.Equal(t, n.Position.ID, *c.Position.ParentID)
				if i > 0 {
					assert.LessOrEqual(t, n.Children[i-1].Position.DisplayOrder, c.Position.DisplayOrder)
				}
			}
			return true
		})
		for _, root := range forest {
			if root.Position.ParentID != nil {
				assert.False(t, known[*root.Position.ParentID], "root %s has a known parent", root.Position.ID)
			}
		}
		require.Len(t, seen, len(positions))
		for id, count := range seen {
			assert.Equal(t, 1, count, "position %s", id)
		}
	}
}

func TestBuildForestDropsCycles(t *testing.T) {
	positions := []domain.Position{
		pos("root", nil, 0),
		pos("self", ptr("self"), 0),
		pos("x", ptr("y"), 0),
		pos("y", ptr("x"), 0),
		pos("below", ptr("x"), 0),
	}
	forest := orgchart.BuildForest(positions)

	assert.Equal(t, []string{"root"}, ids(forest))
	assert.ElementsMatch(t, []string{"self", "x", "y", "below"}, orgchart.Hidden(positions, forest))
}

func TestBuildForestFirstDuplicateWins(t *testing.T) {
	first := pos("a", nil, 0)
	first.Title = "first"
	second := pos("a", ptr("a"), 0)
	second.Title = "second"

	forest := orgchart.BuildForest([]domain.Position{first, second})
	require.Len(t, forest, 1)
	assert.Equal(t, "first", forest[0].Position.Title)
	assert.Empty(t, forest[0].Children)
}

func TestAvailableParentsExcludesSubtree(t *testing.T) {
	positions := []domain.Position{
		pos("ceo", nil, 0),
		pos("lead", ptr("ceo"), 0),
		pos("mfa", ptr("lead"), 0),
		pos("azubi", ptr("mfa"), 0),
		pos("admin", ptr("ceo"), 1),
	}

	assert.Equal(t, []string{"ceo", "admin"}, idsOf(orgchart.AvailableParents(positions, "lead")))
	assert.Len(t, orgchart.AvailableParents(positions, ""), len(positions))
}

func TestWouldCycle(t *testing.T) {
	positions := []domain.Position{
		pos("a", nil, 0),
		pos("b", ptr("a"), 0),
		pos("c", ptr("b"), 0),
		pos("loop1", ptr("loop2"), 0),
		pos("loop2", ptr("loop1"), 0),
	}
	cases := []struct {
		id, parent string
		want       bool
	}{
		{"a", "c", true},
		{"a", "a", true},
		{"c", "a", false},
		{"b", "", false},
		{"a", "unknown", false},
		{"a", "loop1", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, orgchart.WouldCycle(positions, tc.id, tc.parent), "%s under %s", tc.id, tc.parent)
	}
}

func TestFlattenFollowsDisplayOrder(t *testing.T) {
	forest := orgchart.BuildForest([]domain.Position{
		pos("a", nil, 0),
		pos("b", ptr("a"), 1),
		pos("c", ptr("a"), 0),
		pos("d", ptr("c"), 0),
	})
	assert.Equal(t, []string{"a", "c", "d", "b"}, idsOf(orgchart.Flatten(forest)))
}

func idsOf(positions []domain.Position) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = p.ID
	}
	return out
}

func permutations(in []domain.Position) [][]domain.Position {
	if len(in) <= 1 {
		return [][]domain.Position{append([]domain.Position(nil), in...)}
	}
	var out [][]domain.Position
	for i := range in {
		rest := make([]domain.Position, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]domain.Position{in[i]}, p...))
		}
	}
	return out
}
