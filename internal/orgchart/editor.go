package orgchart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"organigramm/internal/domain"
)

// Persistence is the backend positions are read from and written to. The
// HTTP SDK client and the local engine adapter both implement it.
type Persistence interface {
	ListPositions(ctx context.Context, practiceID string) ([]domain.Position, error)
	CreatePosition(ctx context.Context, practiceID string, draft domain.PositionDraft) (domain.Position, error)
	UpdatePosition(ctx context.Context, practiceID, id string, patch domain.PositionPatch) (domain.Position, error)
	DeletePosition(ctx context.Context, practiceID, id string) error
}

// CreateInput describes a new position. Nil pointers are left empty.
type CreateInput struct {
	Title        string
	Department   *string
	UserID       *string
	TeamID       *string
	ParentID     *string
	Color        *string
	IsManagement bool
}

// Editor owns the in-memory position store of one practice. Every mutation
// validates locally, makes exactly one backend call and only touches the
// store once that call succeeded. The lock is never held during a backend
// call, so mutations may overlap; whichever response is applied last wins.
type Editor struct {
	practiceID string
	backend    Persistence

	mu        sync.Mutex
	positions []domain.Position
	observers []func([]domain.Position)
	seq       uint64

	// notifyMu serializes observer calls. It is taken before mu, never while
	// holding it.
	notifyMu  sync.Mutex
	delivered uint64
}

func NewEditor(backend Persistence, practiceID string) *Editor {
	return &Editor{practiceID: practiceID, backend: backend}
}

func (e *Editor) PracticeID() string { return e.practiceID }

// Observe registers fn to receive a copy of the store after Load and after
// every confirmed mutation. Calls are never concurrent and never go back to an
// older store, so the last call always carries the current store. fn must not
// mutate the Editor.
func (e *Editor) Observe(fn func([]domain.Position)) {
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// Positions returns a deep copy of the store.
func (e *Editor) Positions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clonePositions(e.positions)
}

// Forest builds the reporting forest from the current store.
func (e *Editor) Forest() []*Node {
	return BuildForest(e.Positions())
}

// Load replaces the store with the practice's active positions.
func (e *Editor) Load(ctx context.Context) error {
	items, err := e.backend.ListPositions(ctx, e.practiceID)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	active := make([]domain.Position, 0, len(items))
	for _, p := range items {
		if p.Active && p.DeletedAt == nil {
			active = append(active, p.Clone())
		}
	}
	e.commit(func() { e.positions = active })
	return nil
}

// Create adds a position under in.ParentID, or at the top when it is nil.
// Level is the parent's level plus one and DisplayOrder is the number of
// active positions already on that level.
func (e *Editor) Create(ctx context.Context, in CreateInput) (domain.Position, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Position{}, ValidationError{Field: "title", Reason: "required"}
	}
	draft := domain.PositionDraft{
		Title:        title,
		Department:   trimmed(in.Department),
		UserID:       trimmed(in.UserID),
		TeamID:       trimmed(in.TeamID),
		Color:        trimmed(in.Color),
		IsManagement: in.IsManagement,
	}

	e.mu.Lock()
	if parentID := trimmed(in.ParentID); parentID != nil {
		parent, ok := lookup(e.positions, *parentID)
		if !ok {
			e.mu.Unlock()
			return domain.Position{}, ValidationError{Field: "parent_id", Reason: "unknown position " + *parentID}
		}
		draft.ParentID = parentID
		draft.Level = parent.Level + 1
	}
	order := countActiveAtLevel(e.positions, draft.Level)
	draft.DisplayOrder = &order
	e.mu.Unlock()

	created, err := e.backend.CreatePosition(ctx, e.practiceID, draft)
	if err != nil {
		return domain.Position{}, fmt.Errorf("create position: %w", err)
	}
	e.commit(func() { e.positions = append(e.positions, created.Clone()) })
	return created, nil
}

// Update applies patch to id. A parent change is checked for cycles and the
// level is recomputed from the new parent. The stored version is sent along
// so the backend can refuse a stale write. The backend's answer replaces the
// local entry.
func (e *Editor) Update(ctx context.Context, id string, patch domain.PositionPatch) (domain.Position, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.Position{}, ValidationError{Field: "title", Reason: "required"}
		}
		patch.Title = &title
	}

	e.mu.Lock()
	current, ok := lookup(e.positions, id)
	if !ok {
		e.mu.Unlock()
		return domain.Position{}, fmt.Errorf("update position %s: %w", id, ErrNotFound)
	}
	if patch.ParentID != nil {
		next := strings.TrimSpace(*patch.ParentID)
		patch.ParentID = &next
		if next != deref(current.ParentID) {
			level := 0
			if next != "" {
				parent, ok := lookup(e.positions, next)
				if !ok {
					e.mu.Unlock()
					return domain.Position{}, ValidationError{Field: "parent_id", Reason: "unknown position " + next}
				}
				if WouldCycle(e.positions, id, next) {
					e.mu.Unlock()
					return domain.Position{}, fmt.Errorf("update position %s: %w", id, ErrCycle)
				}
				level = parent.Level + 1
			}
			patch.Level = &level
		}
	}
	if patch.ExpectedVersion == nil && current.Version > 0 {
		v := current.Version
		patch.ExpectedVersion = &v
	}
	e.mu.Unlock()

	if patch.Empty() {
		return current.Clone(), nil
	}
	updated, err := e.backend.UpdatePosition(ctx, e.practiceID, id, patch)
	if err != nil {
		return domain.Position{}, fmt.Errorf("update position %s: %w", id, err)
	}
	e.commit(func() {
		for i := range e.positions {
			if e.positions[i].ID == id {
				e.positions[i] = updated.Clone()
				return
			}
		}
	})
	return updated, nil
}

// Delete removes id. Positions reporting to it keep their ParentID and show
// up as roots on the next forest build.
func (e *Editor) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	_, ok := lookup(e.positions, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("delete position %s: %w", id, ErrNotFound)
	}
	if err := e.backend.DeletePosition(ctx, e.practiceID, id); err != nil {
		return fmt.Errorf("delete position %s: %w", id, err)
	}
	e.commit(func() {
		kept := e.positions[:0:0]
		for _, p := range e.positions {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		e.positions = kept
	})
	return nil
}

// commit applies fn under the lock and then notifies observers outside it.
// Overlapping commits are coalesced: a notifier that finds its change already
// delivered by a later snapshot skips the call.
func (e *Editor) commit(fn func()) {
	e.mu.Lock()
	fn()
	e.seq++
	mine := e.seq
	e.mu.Unlock()

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	if e.delivered >= mine {
		return
	}
	e.mu.Lock()
	snapshot := clonePositions(e.positions)
	observers := append([]func([]domain.Position){}, e.observers...)
	e.delivered = e.seq
	e.mu.Unlock()
	for _, obs := range observers {
		obs(clonePositions(snapshot))
	}
}

func countActiveAtLevel(positions []domain.Position, level int) int {
	n := 0
	for _, p := range positions {
		if p.Active && p.Level == level {
			n++
		}
	}
	return n
}

func clonePositions(in []domain.Position) []domain.Position {
	if in == nil {
		return nil
	}
	out := make([]domain.Position, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
