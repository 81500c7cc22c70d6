package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"organigramm/internal/db"
)

// Permissions seeded by the migrations.
const (
	PracticeAdmin = "practice.admin"
	PositionRead  = "position.read"
	PositionWrite = "position.write"
	EventsRead    = "events.read"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	PracticeID string
}

func (e ForbiddenError) Error() string {
	if e.PracticeID == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required in practice %s", e.Permission, e.PracticeID)
}

// Service provides RBAC checks backed by SQL.
type Service struct {
	DB      *sql.DB
	Dialect db.Dialect
}

func (s Service) q(query string) string {
	return sqlx.Rebind(s.Dialect.BindType(), query)
}

func (s Service) ActorHasPermission(ctx context.Context, practiceID, actorID, perm string) (bool, error) {
	row := s.DB.QueryRowContext(ctx, s.q(`
SELECT 1 FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.practice_id=? AND ar.actor_id=? AND rp.permission_id=? LIMIT 1`),
		practiceID, actorID, perm)
	var n int
	err := row.Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Require returns a ForbiddenError unless actorID holds perm in practiceID.
func (s Service) Require(ctx context.Context, practiceID, actorID, perm string) error {
	if actorID == "" {
		return ForbiddenError{Permission: perm, PracticeID: practiceID}
	}
	ok, err := s.ActorHasPermission(ctx, practiceID, actorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: perm, PracticeID: practiceID}
	}
	return nil
}

func (s Service) ActorPermissions(ctx context.Context, practiceID, actorID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, s.q(`
SELECT DISTINCT rp.permission_id
FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id=ar.role_id
WHERE ar.practice_id=? AND ar.actor_id=?
ORDER BY rp.permission_id`), practiceID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
