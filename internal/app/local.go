package app

import (
	"context"
	"errors"
	"fmt"

	"organigramm/internal/domain"
	"organigramm/internal/engine"
	"organigramm/internal/orgchart"
	"organigramm/internal/repo"
)

// LocalPersistence lets an orgchart.Editor work directly on the workspace
// database. Every call is made as ActorID.
type LocalPersistence struct {
	Engine  engine.Engine
	ActorID string
}

var _ orgchart.Persistence = LocalPersistence{}

func (l LocalPersistence) actor() string {
	if l.ActorID == "" {
		return DefaultActor
	}
	return l.ActorID
}

func (l LocalPersistence) ListPositions(ctx context.Context, practiceID string) ([]domain.Position, error) {
	positions, err := l.Engine.ListPositions(ctx, practiceID)
	return positions, notFound(err)
}

func (l LocalPersistence) CreatePosition(ctx context.Context, practiceID string, draft domain.PositionDraft) (domain.Position, error) {
	p, err := l.Engine.CreatePosition(ctx, engine.PositionCreateOptions{
		PracticeID:   practiceID,
		Title:        draft.Title,
		Department:   draft.Department,
		UserID:       draft.UserID,
		TeamID:       draft.TeamID,
		ParentID:     draft.ParentID,
		DisplayOrder: draft.DisplayOrder,
		Color:        draft.Color,
		IsManagement: draft.IsManagement,
		ActorID:      l.actor(),
	})
	return p, notFound(err)
}

// UpdatePosition ignores patch.Level; the engine derives it from the parent.
func (l LocalPersistence) UpdatePosition(ctx context.Context, practiceID, id string, patch domain.PositionPatch) (domain.Position, error) {
	p, err := l.Engine.UpdatePosition(ctx, engine.PositionUpdateOptions{
		PracticeID:      practiceID,
		ID:              id,
		Title:           patch.Title,
		Department:      patch.Department,
		UserID:          patch.UserID,
		TeamID:          patch.TeamID,
		ParentID:        patch.ParentID,
		DisplayOrder:    patch.DisplayOrder,
		Color:           patch.Color,
		IsManagement:    patch.IsManagement,
		ExpectedVersion: patch.ExpectedVersion,
		ActorID:         l.actor(),
	})
	return p, notFound(err)
}

func (l LocalPersistence) DeletePosition(ctx context.Context, practiceID, id string) error {
	return notFound(l.Engine.DeletePosition(ctx, practiceID, id, l.actor()))
}

// notFound adds orgchart.ErrNotFound to storage misses so editor callers can
// match on a single sentinel.
func notFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %w", orgchart.ErrNotFound, err)
	}
	return err
}
