package server

import (
	"encoding/json"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

// Request payloads

type CreatePracticeRequest struct {
	ID   string `json:"id" maxLength:"64"`
	Name string `json:"name,omitempty" maxLength:"200"`
}

type CreatePositionRequest struct {
	Title        string  `json:"title" maxLength:"200"`
	Department   *string `json:"department,omitempty"`
	UserID       *string `json:"user_id,omitempty"`
	TeamID       *string `json:"team_id,omitempty"`
	ParentID     *string `json:"parent_id,omitempty" nullable:"true"`
	DisplayOrder *int    `json:"display_order,omitempty" minimum:"0"`
	Color        *string `json:"color,omitempty"`
	IsManagement bool    `json:"is_management,omitempty"`
}

// UpdatePositionRequest is a partial update. A null parent_id moves the
// position to the top; a null department, user_id or team_id clears it.
type UpdatePositionRequest struct {
	Title           *string `json:"title,omitempty"`
	Department      *string `json:"department,omitempty" nullable:"true"`
	UserID          *string `json:"user_id,omitempty" nullable:"true"`
	TeamID          *string `json:"team_id,omitempty" nullable:"true"`
	ParentID        *string `json:"parent_id,omitempty" nullable:"true"`
	Level           *int    `json:"level,omitempty" doc:"Ignored; the level follows the parent."`
	DisplayOrder    *int    `json:"display_order,omitempty" minimum:"0"`
	Color           *string `json:"color,omitempty"`
	IsManagement    *bool   `json:"is_management,omitempty"`
	ExpectedVersion *int64  `json:"expected_version,omitempty" minimum:"1"`
}

type RoleGrantRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id" enum:"admin,editor,viewer"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type PracticeResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type PositionResponse = domain.Position

type ChartResponse struct {
	PracticeID string `json:"practice_id"`
	orgchart.Snapshot
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	PracticeID string          `json:"practice_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	PracticeID  string   `json:"practice_id,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source,omitempty"`
}

func practiceResponse(p domain.Practice) PracticeResponse {
	return PracticeResponse{ID: p.ID, Name: p.Name, CreatedAt: p.CreatedAt}
}

func mapPractices(items []domain.Practice) []PracticeResponse {
	out := make([]PracticeResponse, 0, len(items))
	for _, p := range items {
		out = append(out, practiceResponse(p))
	}
	return out
}

func nonNilPositions(items []domain.Position) []PositionResponse {
	if items == nil {
		return []PositionResponse{}
	}
	return items
}

func eventResponse(evt domain.Event) EventResponse {
	resp := EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		PracticeID: evt.PracticeID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
	}
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		resp.Payload = json.RawMessage(evt.Payload)
	}
	return resp
}

func nonNilSlice(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
