package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"organigramm/internal/config"
	"organigramm/internal/db"
	"organigramm/internal/domain"
)

// Repo is the SQL access layer. Queries are written with ? placeholders and
// rebound for the dialect.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) conn(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r Repo) q(query string) string {
	return sqlx.Rebind(r.Dialect.BindType(), query)
}

func (r Repo) InsertPractice(ctx context.Context, tx *sql.Tx, p domain.Practice) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO practices(id,name,created_at) VALUES (?,?,?)`),
		p.ID, p.Name, p.CreatedAt)
	return err
}

func (r Repo) GetPractice(ctx context.Context, id string) (domain.Practice, error) {
	var p domain.Practice
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT id,name,created_at FROM practices WHERE id=?`), id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListPractices(ctx context.Context) ([]domain.Practice, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM practices ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Practice
	for rows.Next() {
		var p domain.Practice
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// SinglePractice returns the only practice of the database.
func (r Repo) SinglePractice(ctx context.Context) (domain.Practice, error) {
	practices, err := r.ListPractices(ctx)
	if err != nil {
		return domain.Practice{}, err
	}
	switch len(practices) {
	case 0:
		return domain.Practice{}, ErrNotFound
	case 1:
		return practices[0], nil
	}
	return domain.Practice{}, fmt.Errorf("multiple practices exist; specify --practice")
}

func (r Repo) UpsertPracticeConfig(ctx context.Context, tx *sql.Tx, practiceID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Practice.ID = practiceID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO practice_configs(practice_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(practice_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`),
		practiceID, string(payload), now, now)
	return err
}

func (r Repo) GetPracticeConfig(ctx context.Context, practiceID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, r.q(`SELECT config_json FROM practice_configs WHERE practice_id=?`), practiceID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg := config.Default(practiceID, "")
	cfg.Roles = nil
	if err := json.Unmarshal([]byte(payload), cfg); err != nil {
		return nil, err
	}
	if cfg.Practice.ID == "" {
		cfg.Practice.ID = practiceID
	}
	return cfg, cfg.Validate()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
