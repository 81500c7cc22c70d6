package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"organigramm/internal/db"
)

// Event types written by the engine.
const (
	PracticeCreate = "practice.create"
	PositionCreate = "position.create"
	PositionUpdate = "position.update"
	PositionDelete = "position.delete"
	RBACGrant      = "rbac.grant"
	RBACRevoke     = "rbac.revoke"
	ConfigUpdate   = "config.update"
)

type Writer struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx and returns its id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, practiceID, entityKind, entityID, actorID string, payload EventPayload) (int64, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	query := sqlx.Rebind(w.Dialect.BindType(),
		`INSERT INTO events(ts,type,practice_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?) RETURNING id`)
	var id int64
	err = tx.QueryRowContext(ctx, query, ts, evtType, nullable(practiceID), entityKind, nullable(entityID), actorID, string(data)).Scan(&id)
	return id, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
