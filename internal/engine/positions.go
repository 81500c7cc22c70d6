package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"organigramm/internal/domain"
	"organigramm/internal/events"
	"organigramm/internal/orgchart"
	"organigramm/internal/repo"
)

// PositionCreateOptions are parameters for creating a position.
type PositionCreateOptions struct {
	PracticeID   string  `json:"practice_id" validate:"required"`
	Title        string  `json:"title" validate:"required,max=200"`
	Department   *string `json:"department" validate:"omitempty,max=200"`
	UserID       *string `json:"user_id" validate:"omitempty,max=200"`
	TeamID       *string `json:"team_id" validate:"omitempty,max=200"`
	ParentID     *string `json:"parent_id"`
	DisplayOrder *int    `json:"display_order" validate:"omitempty,gte=0"`
	Color        *string `json:"color" validate:"omitempty,hexcolor"`
	IsManagement bool    `json:"is_management"`
	ActorID      string  `json:"actor_id" validate:"required"`
}

// CreatePosition inserts a position below ParentID, or at the top. The level
// is always derived from the stored parent; the display order defaults to
// the number of active positions on that level.
func (e Engine) CreatePosition(ctx context.Context, opts PositionCreateOptions) (p domain.Position, err error) {
	defer func() { observeMutation("create", err) }()

	opts.Title = strings.TrimSpace(opts.Title)
	opts.Department = trimmedOrNil(opts.Department)
	opts.UserID = trimmedOrNil(opts.UserID)
	opts.TeamID = trimmedOrNil(opts.TeamID)
	opts.ParentID = trimmedOrNil(opts.ParentID)
	opts.Color = trimmedOrNil(opts.Color)
	if err := check(opts); err != nil {
		return domain.Position{}, err
	}
	if _, err := e.Repo.GetPractice(ctx, opts.PracticeID); err != nil {
		return domain.Position{}, err
	}

	now := e.stamp()
	p = domain.Position{
		ID:           uuid.NewString(),
		PracticeID:   opts.PracticeID,
		Title:        opts.Title,
		Department:   opts.Department,
		UserID:       opts.UserID,
		TeamID:       opts.TeamID,
		Color:        orgchart.DefaultColor,
		IsManagement: opts.IsManagement,
		Active:       true,
		Version:      1,
		CreatedBy:    opts.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if opts.Color != nil {
		p.Color = *opts.Color
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Position{}, err
	}
	defer tx.Rollback()

	if opts.ParentID != nil {
		parent, err := e.activeParent(ctx, tx, opts.PracticeID, *opts.ParentID)
		if err != nil {
			return domain.Position{}, err
		}
		p.ParentID = opts.ParentID
		p.Level = parent.Level + 1
	}
	if opts.DisplayOrder != nil {
		p.DisplayOrder = *opts.DisplayOrder
	} else {
		n, err := e.Repo.CountActiveAtLevel(ctx, tx, opts.PracticeID, p.Level)
		if err != nil {
			return domain.Position{}, err
		}
		p.DisplayOrder = n
	}
	if err := e.Repo.InsertPosition(ctx, tx, p); err != nil {
		return domain.Position{}, fmt.Errorf("insert position: %w", err)
	}
	payload := events.EventPayload{"title": p.Title, "level": p.Level, "display_order": p.DisplayOrder}
	if p.ParentID != nil {
		payload["parent_id"] = *p.ParentID
	}
	if _, err := e.Events.Append(ctx, tx, events.PositionCreate, p.PracticeID, "position", p.ID, opts.ActorID, payload); err != nil {
		return domain.Position{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Position{}, err
	}
	e.invalidate(ctx, p.PracticeID)
	e.log().Debug("position created", zap.String("practice_id", p.PracticeID), zap.String("position_id", p.ID))
	return p, nil
}

// PositionUpdateOptions carries a partial update. Nil fields are kept; an
// empty string clears a nullable field, and an empty ParentID moves the
// position to the top.
type PositionUpdateOptions struct {
	PracticeID      string  `json:"practice_id" validate:"required"`
	ID              string  `json:"id" validate:"required"`
	Title           *string `json:"title" validate:"omitempty,max=200"`
	Department      *string `json:"department" validate:"omitempty,max=200"`
	UserID          *string `json:"user_id" validate:"omitempty,max=200"`
	TeamID          *string `json:"team_id" validate:"omitempty,max=200"`
	ParentID        *string `json:"parent_id"`
	DisplayOrder    *int    `json:"display_order" validate:"omitempty,gte=0"`
	Color           *string `json:"color" validate:"omitempty,hexcolor"`
	IsManagement    *bool   `json:"is_management"`
	ExpectedVersion *int64  `json:"expected_version" validate:"omitempty,gte=1"`
	ActorID         string  `json:"actor_id" validate:"required"`
}

// UpdatePosition applies opts. A parent change is rejected when the new
// parent is unknown, inactive, the position itself or one of its
// descendants; otherwise the level is recomputed from the new parent. Only
// the moved position's level changes.
func (e Engine) UpdatePosition(ctx context.Context, opts PositionUpdateOptions) (p domain.Position, err error) {
	defer func() { observeMutation("update", err) }()

	if opts.Title != nil {
		title := strings.TrimSpace(*opts.Title)
		if title == "" {
			return domain.Position{}, orgchart.ValidationError{Field: "title", Reason: "required"}
		}
		opts.Title = &title
	}
	if opts.Color != nil && strings.TrimSpace(*opts.Color) == "" {
		def := orgchart.DefaultColor
		opts.Color = &def
	}
	if err := check(opts); err != nil {
		return domain.Position{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Position{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetPosition(ctx, tx, opts.PracticeID, opts.ID)
	if err != nil {
		return domain.Position{}, err
	}
	if !current.Active || current.DeletedAt != nil {
		return domain.Position{}, fmt.Errorf("position %s: %w", opts.ID, repo.ErrNotFound)
	}
	if opts.ExpectedVersion != nil && *opts.ExpectedVersion != current.Version {
		versionConflicts.Inc()
		return domain.Position{}, fmt.Errorf("position %s is at version %d, not %d: %w",
			opts.ID, current.Version, *opts.ExpectedVersion, ErrVersionConflict)
	}

	next := current.Clone()
	changed := []string{}
	if opts.Title != nil && *opts.Title != next.Title {
		next.Title = *opts.Title
		changed = append(changed, "title")
	}
	for _, f := range []struct {
		name string
		in   *string
		dst  **string
	}{
		{"department", opts.Department, &next.Department},
		{"user_id", opts.UserID, &next.UserID},
		{"team_id", opts.TeamID, &next.TeamID},
	} {
		if f.in == nil {
			continue
		}
		v := trimmedOrNil(f.in)
		if deref(v) != deref(*f.dst) {
			*f.dst = v
			changed = append(changed, f.name)
		}
	}
	if opts.DisplayOrder != nil && *opts.DisplayOrder != next.DisplayOrder {
		next.DisplayOrder = *opts.DisplayOrder
		changed = append(changed, "display_order")
	}
	if opts.Color != nil && *opts.Color != next.Color {
		next.Color = strings.TrimSpace(*opts.Color)
		changed = append(changed, "color")
	}
	if opts.IsManagement != nil && *opts.IsManagement != next.IsManagement {
		next.IsManagement = *opts.IsManagement
		changed = append(changed, "is_management")
	}
	if opts.ParentID != nil {
		parentID := trimmedOrNil(opts.ParentID)
		if deref(parentID) != deref(current.ParentID) {
			level, err := e.reparentLevel(ctx, tx, current, parentID)
			if err != nil {
				return domain.Position{}, err
			}
			next.ParentID = parentID
			next.Level = level
			changed = append(changed, "parent_id")
		}
	}
	if len(changed) == 0 {
		return current, nil
	}

	next.UpdatedAt = e.stamp()
	updated, err := e.Repo.UpdatePosition(ctx, tx, next)
	if errors.Is(err, repo.ErrStale) {
		versionConflicts.Inc()
		return domain.Position{}, fmt.Errorf("position %s: %w", opts.ID, ErrVersionConflict)
	}
	if err != nil {
		return domain.Position{}, err
	}
	payload := events.EventPayload{"changed": changed, "version": updated.Version}
	if containsString(changed, "parent_id") {
		payload["parent_id"] = deref(updated.ParentID)
		payload["level"] = updated.Level
	}
	if _, err := e.Events.Append(ctx, tx, events.PositionUpdate, updated.PracticeID, "position", updated.ID, opts.ActorID, payload); err != nil {
		return domain.Position{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Position{}, err
	}
	e.invalidate(ctx, updated.PracticeID)
	return updated, nil
}

// reparentLevel validates moving current below parentID and returns the new
// level.
func (e Engine) reparentLevel(ctx context.Context, tx *sql.Tx, current domain.Position, parentID *string) (int, error) {
	if parentID == nil {
		return 0, nil
	}
	if *parentID == current.ID {
		return 0, fmt.Errorf("position %s: %w", current.ID, orgchart.ErrCycle)
	}
	parent, err := e.activeParent(ctx, tx, current.PracticeID, *parentID)
	if err != nil {
		return 0, err
	}
	all, err := e.Repo.ListPositions(ctx, tx, repo.PositionFilters{PracticeID: current.PracticeID})
	if err != nil {
		return 0, err
	}
	if orgchart.WouldCycle(all, current.ID, parent.ID) {
		return 0, fmt.Errorf("position %s below %s: %w", current.ID, parent.ID, orgchart.ErrCycle)
	}
	return parent.Level + 1, nil
}

func (e Engine) activeParent(ctx context.Context, tx *sql.Tx, practiceID, parentID string) (domain.Position, error) {
	parent, err := e.Repo.GetPosition(ctx, tx, practiceID, parentID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && (!parent.Active || parent.DeletedAt != nil)) {
		return domain.Position{}, orgchart.ValidationError{Field: "parent_id", Reason: "unknown position " + parentID}
	}
	return parent, err
}

// DeletePosition deactivates a position. Its reports keep their parent id
// and are shown as top-level positions from then on.
func (e Engine) DeletePosition(ctx context.Context, practiceID, id, actorID string) (err error) {
	defer func() { observeMutation("delete", err) }()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := e.Repo.GetPosition(ctx, tx, practiceID, id)
	if err != nil {
		return err
	}
	if current.DeletedAt != nil {
		return fmt.Errorf("position %s: %w", id, repo.ErrNotFound)
	}
	if err := e.Repo.SoftDeletePosition(ctx, tx, practiceID, id, e.stamp()); err != nil {
		return err
	}
	if _, err := e.Events.Append(ctx, tx, events.PositionDelete, practiceID, "position", id, actorID, events.EventPayload{"title": current.Title}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.invalidate(ctx, practiceID)
	return nil
}

// ListPositions returns the active positions of a practice ordered by level
// and display order.
func (e Engine) ListPositions(ctx context.Context, practiceID string) ([]domain.Position, error) {
	if _, err := e.Repo.GetPractice(ctx, practiceID); err != nil {
		return nil, err
	}
	var gen uint64
	if e.Cache != nil {
		cached, g, ok := e.Cache.Get(ctx, practiceID)
		if ok {
			positionCacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		}
		positionCacheLookups.WithLabelValues("miss").Inc()
		gen = g
	}
	positions, err := e.Repo.ListPositions(ctx, nil, repo.PositionFilters{PracticeID: practiceID})
	if err != nil {
		return nil, err
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	if e.Cache != nil {
		e.Cache.Set(ctx, practiceID, gen, positions)
	}
	return positions, nil
}

// GetPosition returns one active position.
func (e Engine) GetPosition(ctx context.Context, practiceID, id string) (domain.Position, error) {
	p, err := e.Repo.GetPosition(ctx, nil, practiceID, id)
	if err != nil {
		return domain.Position{}, err
	}
	if !p.Active || p.DeletedAt != nil {
		return domain.Position{}, fmt.Errorf("position %s: %w", id, repo.ErrNotFound)
	}
	return p, nil
}

// ParentCandidates lists the positions id may report to: everything except
// the position itself and its subtree. An empty id lists every position.
func (e Engine) ParentCandidates(ctx context.Context, practiceID, id string) ([]domain.Position, error) {
	positions, err := e.ListPositions(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	if id != "" {
		if _, err := e.GetPosition(ctx, practiceID, id); err != nil {
			return nil, err
		}
	}
	return orgchart.AvailableParents(positions, id), nil
}

// Chart lays out the practice's positions with its configured canvas
// geometry.
func (e Engine) Chart(ctx context.Context, practiceID string) (orgchart.Snapshot, error) {
	cfg, err := e.PracticeConfig(ctx, practiceID)
	if err != nil {
		return orgchart.Snapshot{}, err
	}
	positions, err := e.ListPositions(ctx, practiceID)
	if err != nil {
		return orgchart.Snapshot{}, err
	}
	return orgchart.Compute(positions, cfg.NodeSize(), cfg.Spacing()), nil
}

// Stats summarizes the practice's active positions.
func (e Engine) Stats(ctx context.Context, practiceID string) (orgchart.Stats, error) {
	positions, err := e.ListPositions(ctx, practiceID)
	if err != nil {
		return orgchart.Stats{}, err
	}
	return orgchart.Summarize(positions), nil
}

func trimmedOrNil(s *string) *string {
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

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
