package orgchart_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

// memoryBackend is an in-process Persistence that records every call.
type memoryBackend struct {
	mu      sync.Mutex
	items   []domain.Position
	nextID  int
	fail    error
	calls   int
	drafts  []domain.PositionDraft
	patches []domain.PositionPatch
}

func (b *memoryBackend) ListPositions(_ context.Context, practiceID string) ([]domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail != nil {
		return nil, b.fail
	}
	out := make([]domain.Position, 0, len(b.items))
	for _, p := range b.items {
		if p.PracticeID == practiceID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (b *memoryBackend) CreatePosition(_ context.Context, practiceID string, draft domain.PositionDraft) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.drafts = append(b.drafts, draft)
	if b.fail != nil {
		return domain.Position{}, b.fail
	}
	b.nextID++
	p := domain.Position{
		ID:           fmt.Sprintf("new-%d", b.nextID),
		PracticeID:   practiceID,
		Title:        draft.Title,
		Department:   draft.Department,
		UserID:       draft.UserID,
		TeamID:       draft.TeamID,
		ParentID:     draft.ParentID,
		Level:        draft.Level,
		Color:        orgchart.DefaultColor,
		IsManagement: draft.IsManagement,
		Active:       true,
		Version:      1,
		CreatedAt:    "2024-01-01T00:00:00Z",
		UpdatedAt:    "2024-01-01T00:00:00Z",
	}
	if draft.DisplayOrder != nil {
		p.DisplayOrder = *draft.DisplayOrder
	}
	b.items = append(b.items, p)
	return p.Clone(), nil
}

func (b *memoryBackend) UpdatePosition(_ context.Context, _ string, id string, patch domain.PositionPatch) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.patches = append(b.patches, patch)
	if b.fail != nil {
		return domain.Position{}, b.fail
	}
	for i := range b.items {
		p := &b.items[i]
		if p.ID != id {
			continue
		}
		if patch.ExpectedVersion != nil && *patch.ExpectedVersion != p.Version {
			return domain.Position{}, orgchart.ErrConflict
		}
		if patch.Title != nil {
			p.Title = *patch.Title
		}
		if patch.ParentID != nil {
			if *patch.ParentID == "" {
				p.ParentID = nil
			} else {
				parent := *patch.ParentID
				p.ParentID = &parent
			}
		}
		if patch.Level != nil {
			p.Level = *patch.Level
		}
		if patch.DisplayOrder != nil {
			p.DisplayOrder = *patch.DisplayOrder
		}
		p.Version++
		p.UpdatedAt = "2024-02-02T00:00:00Z"
		return p.Clone(), nil
	}
	return domain.Position{}, orgchart.ErrNotFound
}

func (b *memoryBackend) DeletePosition(_ context.Context, _ string, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail != nil {
		return b.fail
	}
	for i, p := range b.items {
		if p.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return nil
		}
	}
	return orgchart.ErrNotFound
}

func (b *memoryBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func seeded(t *testing.T, positions ...domain.Position) (*orgchart.Editor, *memoryBackend) {
	t.Helper()
	b := &memoryBackend{}
	for _, p := range positions {
		p.PracticeID = "praxis"
		if p.Version == 0 {
			p.Version = 1
		}
		b.items = append(b.items, p)
	}
	ed := orgchart.NewEditor(b, "praxis")
	require.NoError(t, ed.Load(context.Background()))
	return ed, b
}

func leveled(id string, parent *string, level, order int) domain.Position {
	p := pos(id, parent, order)
	p.Level = level
	return p
}

func TestEditorLoadSkipsInactive(t *testing.T) {
	gone := leveled("gone", nil, 0, 1)
	gone.Active = false
	deleted := leveled("deleted", nil, 0, 2)
	deleted.DeletedAt = ptr("2024-01-01T00:00:00Z")

	ed, _ := seeded(t, leveled("a", nil, 0, 0), gone, deleted)
	assert.Equal(t, []string{"a"}, idsOf(ed.Positions()))
}

func TestEditorCreateAssignsLevelAndOrder(t *testing.T) {
	ctx := context.Background()
	ed, b := seeded(t,
		leveled("a", nil, 0, 0),
		leveled("b", ptr("a"), 1, 0),
	)

	root, err := ed.Create(ctx, orgchart.CreateInput{Title: "  Praxisleitung  "})
	require.NoError(t, err)
	assert.Equal(t, "Praxisleitung", root.Title)
	assert.Equal(t, 0, root.Level)
	assert.Equal(t, 1, root.DisplayOrder)
	assert.Nil(t, root.ParentID)

	under, err := ed.Create(ctx, orgchart.CreateInput{Title: "MFA", ParentID: ptr("a")})
	require.NoError(t, err)
	assert.Equal(t, 1, under.Level)
	assert.Equal(t, 1, under.DisplayOrder)

	deeper, err := ed.Create(ctx, orgchart.CreateInput{Title: "Azubi", ParentID: ptr("b")})
	require.NoError(t, err)
	assert.Equal(t, 2, deeper.Level)
	assert.Equal(t, 0, deeper.DisplayOrder)

	require.Len(t, b.drafts, 3)
	assert.Equal(t, ptr("a"), b.drafts[1].ParentID)
	assert.Len(t, ed.Positions(), 5)
}

func TestEditorCreateValidatesBeforeCalling(t *testing.T) {
	ctx := context.Background()
	ed, b := seeded(t, leveled("a", nil, 0, 0))
	before := b.callCount()

	_, err := ed.Create(ctx, orgchart.CreateInput{Title: "   "})
	var ve orgchart.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)
	assert.Equal(t, "Bitte geben Sie einen Titel für die Position ein", orgchart.FailureMessage(orgchart.OpCreate, err))

	_, err = ed.Create(ctx, orgchart.CreateInput{Title: "MFA", ParentID: ptr("nobody")})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "parent_id", ve.Field)

	assert.Equal(t, before, b.callCount())
}

func TestEditorFailuresLeaveStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	ops := map[string]func(ed *orgchart.Editor) error{
		"create": func(ed *orgchart.Editor) error {
			_, err := ed.Create(ctx, orgchart.CreateInput{Title: "MFA", ParentID: ptr("a")})
			return err
		},
		"update": func(ed *orgchart.Editor) error {
			_, err := ed.Update(ctx, "b", domain.PositionPatch{Title: ptr("Leitung"), ParentID: ptr("")})
			return err
		},
		"delete": func(ed *orgchart.Editor) error {
			return ed.Delete(ctx, "a")
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			ed, b := seeded(t, leveled("a", nil, 0, 0), leveled("b", ptr("a"), 1, 0))
			notified := 0
			ed.Observe(func([]domain.Position) { notified++ })
			before := ed.Positions()

			b.fail = boom
			err := op(ed)
			require.ErrorIs(t, err, boom)

			if diff := cmp.Diff(before, ed.Positions()); diff != "" {
				t.Fatalf("store changed after failed %s (-before +after):\n%s", name, diff)
			}
			assert.Zero(t, notified)
		})
	}
}

func TestEditorDeleteDoesNotCascade(t *testing.T) {
	ed, _ := seeded(t,
		leveled("a", nil, 0, 0),
		leveled("b", ptr("a"), 1, 0),
		leveled("c", ptr("b"), 2, 0),
	)

	require.NoError(t, ed.Delete(context.Background(), "a"))

	positions := ed.Positions()
	assert.Equal(t, []string{"b", "c"}, idsOf(positions))
	assert.Equal(t, ptr("a"), positions[0].ParentID)

	forest := ed.Forest()
	require.Equal(t, []string{"b"}, ids(forest))
	assert.Equal(t, []string{"c"}, ids(forest[0].Children))
}

func TestEditorDeleteUnknown(t *testing.T) {
	ed, b := seeded(t, leveled("a", nil, 0, 0))
	before := b.callCount()
	err := ed.Delete(context.Background(), "zzz")
	require.ErrorIs(t, err, orgchart.ErrNotFound)
	assert.Equal(t, before, b.callCount())
}

func TestEditorUpdateReparentRecomputesLevel(t *testing.T) {
	ctx := context.Background()
	ed, b := seeded(t,
		leveled("a", nil, 0, 0),
		leveled("b", ptr("a"), 1, 0),
		leveled("c", ptr("a"), 1, 1),
	)

	moved, err := ed.Update(ctx, "c", domain.PositionPatch{ParentID: ptr("b")})
	require.NoError(t, err)
	require.Len(t, b.patches, 1)
	require.NotNil(t, b.patches[0].Level)
	assert.Equal(t, 2, *b.patches[0].Level)
	require.NotNil(t, b.patches[0].ExpectedVersion)
	assert.Equal(t, int64(1), *b.patches[0].ExpectedVersion)
	assert.Equal(t, 2, moved.Level)

	top, err := ed.Update(ctx, "c", domain.PositionPatch{ParentID: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, top.ParentID)
	assert.Equal(t, 0, top.Level)
}

func TestEditorUpdateKeepsLevelWithoutReparent(t *testing.T) {
	ed, b := seeded(t, leveled("a", nil, 0, 0), leveled("b", ptr("a"), 1, 0))

	_, err := ed.Update(context.Background(), "b", domain.PositionPatch{Title: ptr("MFA Empfang"), ParentID: ptr("a")})
	require.NoError(t, err)
	require.Len(t, b.patches, 1)
	assert.Nil(t, b.patches[0].Level)
}

func TestEditorUpdateTakesServerVersion(t *testing.T) {
	ed, _ := seeded(t, leveled("a", nil, 0, 0))

	updated, err := ed.Update(context.Background(), "a", domain.PositionPatch{Title: ptr("Inhaberin")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "2024-02-02T00:00:00Z", updated.UpdatedAt)

	if diff := cmp.Diff([]domain.Position{updated}, ed.Positions()); diff != "" {
		t.Fatalf("local entry differs from server response (-server +local):\n%s", diff)
	}
}

func TestEditorUpdateRejectsCycle(t *testing.T) {
	ed, b := seeded(t,
		leveled("a", nil, 0, 0),
		leveled("b", ptr("a"), 1, 0),
		leveled("c", ptr("b"), 2, 0),
	)
	before := b.callCount()

	_, err := ed.Update(context.Background(), "a", domain.PositionPatch{ParentID: ptr("c")})
	require.ErrorIs(t, err, orgchart.ErrCycle)
	_, err = ed.Update(context.Background(), "a", domain.PositionPatch{ParentID: ptr("a")})
	require.ErrorIs(t, err, orgchart.ErrCycle)
	_, err = ed.Update(context.Background(), "a", domain.PositionPatch{Title: ptr(" ")})
	var ve orgchart.ValidationError
	require.ErrorAs(t, err, &ve)

	assert.Equal(t, before, b.callCount())
}

func TestEditorUpdateStaleVersionConflicts(t *testing.T) {
	ed, b := seeded(t, leveled("a", nil, 0, 0))
	b.items[0].Version = 5

	_, err := ed.Update(context.Background(), "a", domain.PositionPatch{Title: ptr("Neu")})
	require.ErrorIs(t, err, orgchart.ErrConflict)
	assert.Equal(t, "Die Position wurde zwischenzeitlich geändert, bitte neu laden", orgchart.FailureMessage(orgchart.OpUpdate, err))
	assert.Equal(t, "Position a", ed.Positions()[0].Title)
}

func TestEditorEmptyPatchSkipsBackend(t *testing.T) {
	ed, b := seeded(t, leveled("a", nil, 0, 0))
	before := b.callCount()

	got, err := ed.Update(context.Background(), "a", domain.PositionPatch{})
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, before, b.callCount())
}

func TestEditorObserversRefreshChart(t *testing.T) {
	b := &memoryBackend{items: []domain.Position{{ID: "a", PracticeID: "praxis", Title: "Leitung", Active: true, Version: 1}}}
	ed := orgchart.NewEditor(b, "praxis")
	chart := orgchart.NewChart(orgchart.FixedSize(10, 4), tight)
	ed.Observe(chart.Refresh)

	ctx := context.Background()
	require.NoError(t, ed.Load(ctx))
	assert.Equal(t, 1, chart.Generation())

	created, err := ed.Create(ctx, orgchart.CreateInput{Title: "MFA", ParentID: ptr("a")})
	require.NoError(t, err)
	assert.Equal(t, 2, chart.Generation())

	snap := chart.Snapshot()
	_, ok := snap.Layout.Box(created.ID)
	assert.True(t, ok)
	require.Len(t, snap.Connectors, 1)
	assert.Nil(t, snap.Connectors[0].Rail)

	require.NoError(t, ed.Delete(ctx, created.ID))
	assert.Equal(t, 3, chart.Generation())
	assert.Empty(t, chart.Snapshot().Connectors)
}

func TestEditorSlowObserverEndsOnLatestStore(t *testing.T) {
	ed, _ := seeded(t, leveled("a", nil, 0, 0))
	chart := orgchart.NewChart(orgchart.FixedSize(10, 4), tight)
	started := make(chan struct{})
	var once sync.Once
	ed.Observe(func(ps []domain.Position) {
		if len(ps) == 2 {
			once.Do(func() {
				close(started)
				time.Sleep(100 * time.Millisecond)
			})
		}
		chart.Refresh(ps)
	})

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := ed.Create(ctx, orgchart.CreateInput{Title: "MFA", ParentID: ptr("a")})
		done <- err
	}()
	<-started
	_, err := ed.Create(ctx, orgchart.CreateInput{Title: "Empfang", ParentID: ptr("a")})
	require.NoError(t, err)
	require.NoError(t, <-done)

	require.Len(t, ed.Positions(), 3)
	snap := chart.Snapshot()
	assert.Equal(t, 3, snap.Stats.Positions)
	for _, p := range ed.Positions() {
		_, ok := snap.Layout.Box(p.ID)
		assert.True(t, ok, p.ID)
	}
}

func TestEditorObserverGetsPrivateCopy(t *testing.T) {
	ed, _ := seeded(t, leveled("a", nil, 0, 0))
	ed.Observe(func(ps []domain.Position) {
		for i := range ps {
			ps[i].Title = "tampered"
		}
	})
	_, err := ed.Create(context.Background(), orgchart.CreateInput{Title: "MFA"})
	require.NoError(t, err)
	for _, p := range ed.Positions() {
		assert.NotEqual(t, "tampered", p.Title)
	}
}

func TestEditorConcurrentCreates(t *testing.T) {
	ed, _ := seeded(t, leveled("a", nil, 0, 0))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ed.Create(context.Background(), orgchart.CreateInput{Title: fmt.Sprintf("MFA %d", i), ParentID: ptr("a")})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, ed.Positions(), 9)
}

func TestFailureMessageNamesTheAction(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	assert.Equal(t, "Organigramm konnte nicht geladen werden", orgchart.FailureMessage(orgchart.OpLoad, boom))
	assert.Equal(t, "Position konnte nicht gelöscht werden", orgchart.FailureMessage(orgchart.OpDelete, boom))
	assert.Equal(t, "Position nicht gefunden", orgchart.FailureMessage(orgchart.OpDelete, fmt.Errorf("x: %w", orgchart.ErrNotFound)))
	assert.Empty(t, orgchart.FailureMessage(orgchart.OpCreate, nil))
}
