package app

import (
	"context"
	"errors"
	"fmt"

	"organigramm/internal/config"
	"organigramm/internal/engine"
	"organigramm/internal/repo"
)

// DefaultActor is used by local commands when no actor is configured.
const DefaultActor = "local-user"

// ResolvePractice picks the active practice and returns it with its config.
// An explicit override wins; otherwise the only practice in the database is
// used. A named practice that does not exist yet is created on the fly and
// seeded from the workspace orgchart.yml when that file names it.
func ResolvePractice(ctx context.Context, eng engine.Engine, workspace, override, actorID string) (string, *config.Config, error) {
	if actorID == "" {
		actorID = DefaultActor
	}
	practiceID := override
	if practiceID == "" {
		p, err := eng.Repo.SinglePractice(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("practice not specified; use --practice")
		}
		practiceID = p.ID
	}

	_, err := eng.GetPractice(ctx, practiceID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		if err := createPractice(ctx, eng, workspace, practiceID, actorID); err != nil {
			return "", nil, err
		}
	case err != nil:
		return "", nil, err
	}
	cfg, err := eng.PracticeConfig(ctx, practiceID)
	if err != nil {
		return "", nil, err
	}
	cfg.Practice.ID = practiceID
	return practiceID, cfg, nil
}

func createPractice(ctx context.Context, eng engine.Engine, workspace, practiceID, actorID string) error {
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	name := ""
	if seed != nil && seed.Practice.ID == practiceID {
		name = seed.Practice.Name
	}
	if _, err := eng.CreatePractice(ctx, engine.PracticeCreateOptions{ID: practiceID, Name: name, ActorID: actorID}); err != nil {
		return fmt.Errorf("create practice: %w", err)
	}
	if seed != nil && seed.Practice.ID == practiceID {
		if err := eng.ImportConfig(ctx, practiceID, seed, actorID); err != nil {
			return fmt.Errorf("seed practice config: %w", err)
		}
	}
	return nil
}
