package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"organigramm/internal/domain"
)

// ErrStale is returned when a versioned write finds a different version.
var ErrStale = errors.New("stale version")

const positionColumns = `id,practice_id,title,department,user_id,team_id,parent_id,level,display_order,color,is_management,active,version,created_by,created_at,updated_at,deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var (
		p                                          domain.Position
		department, userID, teamID, parentID, gone sql.NullString
	)
	err := row.Scan(&p.ID, &p.PracticeID, &p.Title, &department, &userID, &teamID, &parentID,
		&p.Level, &p.DisplayOrder, &p.Color, &p.IsManagement, &p.Active, &p.Version,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &gone)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Department = stringPtr(department)
	p.UserID = stringPtr(userID)
	p.TeamID = stringPtr(teamID)
	p.ParentID = stringPtr(parentID)
	p.DeletedAt = stringPtr(gone)
	return p, nil
}

func (r Repo) InsertPosition(ctx context.Context, tx *sql.Tx, p domain.Position) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO positions(`+positionColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		p.ID, p.PracticeID, p.Title, nullableStringPtr(p.Department), nullableStringPtr(p.UserID), nullableStringPtr(p.TeamID),
		nullableStringPtr(p.ParentID), p.Level, p.DisplayOrder, p.Color, p.IsManagement, p.Active, p.Version,
		p.CreatedBy, p.CreatedAt, p.UpdatedAt, nullableStringPtr(p.DeletedAt))
	return err
}

// GetPosition returns a position of the practice, deleted or not.
func (r Repo) GetPosition(ctx context.Context, tx *sql.Tx, practiceID, id string) (domain.Position, error) {
	return scanPosition(r.conn(tx).QueryRowContext(ctx,
		r.q(`SELECT `+positionColumns+` FROM positions WHERE practice_id=? AND id=?`), practiceID, id))
}

type PositionFilters struct {
	PracticeID      string
	IncludeInactive bool
	ParentID        *string
	Department      string
}

// ListPositions returns positions ordered by level and display order.
func (r Repo) ListPositions(ctx context.Context, tx *sql.Tx, f PositionFilters) ([]domain.Position, error) {
	clauses := []string{"practice_id=?"}
	args := []any{f.PracticeID}
	if !f.IncludeInactive {
		clauses = append(clauses, "active=?", "deleted_at IS NULL")
		args = append(args, true)
	}
	if f.ParentID != nil {
		if *f.ParentID == "" {
			clauses = append(clauses, "parent_id IS NULL")
		} else {
			clauses = append(clauses, "parent_id=?")
			args = append(args, *f.ParentID)
		}
	}
	if f.Department != "" {
		clauses = append(clauses, "LOWER(department)=LOWER(?)")
		args = append(args, f.Department)
	}
	query := fmt.Sprintf(`SELECT %s FROM positions WHERE %s ORDER BY level, display_order, created_at, id`,
		positionColumns, strings.Join(clauses, " AND "))
	rows, err := r.conn(tx).QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// CountActiveAtLevel counts the practice's active positions on level.
func (r Repo) CountActiveAtLevel(ctx context.Context, tx *sql.Tx, practiceID string, level int) (int, error) {
	var n int
	err := r.conn(tx).QueryRowContext(ctx,
		r.q(`SELECT COUNT(*) FROM positions WHERE practice_id=? AND level=? AND active=? AND deleted_at IS NULL`),
		practiceID, level, true).Scan(&n)
	return n, err
}

// UpdatePosition writes p and bumps its version. The row must still carry
// p.Version; otherwise ErrStale is returned.
func (r Repo) UpdatePosition(ctx context.Context, tx *sql.Tx, p domain.Position) (domain.Position, error) {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`UPDATE positions SET
title=?, department=?, user_id=?, team_id=?, parent_id=?, level=?, display_order=?, color=?, is_management=?,
version=version+1, updated_at=?
WHERE practice_id=? AND id=? AND version=? AND deleted_at IS NULL`),
		p.Title, nullableStringPtr(p.Department), nullableStringPtr(p.UserID), nullableStringPtr(p.TeamID),
		nullableStringPtr(p.ParentID), p.Level, p.DisplayOrder, p.Color, p.IsManagement,
		p.UpdatedAt, p.PracticeID, p.ID, p.Version)
	if err != nil {
		return domain.Position{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetPosition(ctx, tx, p.PracticeID, p.ID); err != nil {
			return domain.Position{}, err
		}
		return domain.Position{}, ErrStale
	}
	return r.GetPosition(ctx, tx, p.PracticeID, p.ID)
}

// SoftDeletePosition deactivates a position. Reports of it are not touched.
func (r Repo) SoftDeletePosition(ctx context.Context, tx *sql.Tx, practiceID, id, now string) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`UPDATE positions SET active=?, deleted_at=?, updated_at=?, version=version+1
WHERE practice_id=? AND id=? AND deleted_at IS NULL`), false, now, now, practiceID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
