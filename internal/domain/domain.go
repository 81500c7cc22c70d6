package domain

// Practice is the tenant every position, event and role binding belongs to.
type Practice struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Position is a node of the organizational hierarchy.
type Position struct {
	ID           string  `json:"id"`
	PracticeID   string  `json:"practice_id"`
	Title        string  `json:"title"`
	Department   *string `json:"department,omitempty"`
	UserID       *string `json:"user_id,omitempty"`
	TeamID       *string `json:"team_id,omitempty"`
	ParentID     *string `json:"parent_id,omitempty"`
	Level        int     `json:"level"`
	DisplayOrder int     `json:"display_order"`
	Color        string  `json:"color,omitempty"`
	IsManagement bool    `json:"is_management"`
	Active       bool    `json:"active"`
	Version      int64   `json:"version"`
	CreatedBy    string  `json:"created_by,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
	DeletedAt    *string `json:"deleted_at,omitempty" format:"date-time"`
}

// Filled reports whether someone is assigned to the position.
func (p Position) Filled() bool {
	return (p.UserID != nil && *p.UserID != "") || (p.TeamID != nil && *p.TeamID != "")
}

// Clone returns a copy that shares no pointers with p.
func (p Position) Clone() Position {
	c := p
	c.Department = cloneString(p.Department)
	c.UserID = cloneString(p.UserID)
	c.TeamID = cloneString(p.TeamID)
	c.ParentID = cloneString(p.ParentID)
	c.DeletedAt = cloneString(p.DeletedAt)
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// PositionDraft is the create payload sent to a persistence backend.
type PositionDraft struct {
	Title        string  `json:"title"`
	Department   *string `json:"department,omitempty"`
	UserID       *string `json:"user_id,omitempty"`
	TeamID       *string `json:"team_id,omitempty"`
	ParentID     *string `json:"parent_id,omitempty"`
	Level        int     `json:"level"`
	DisplayOrder *int    `json:"display_order,omitempty"`
	Color        *string `json:"color,omitempty"`
	IsManagement bool    `json:"is_management,omitempty"`
}

// PositionPatch carries a partial update. Nil fields are left untouched;
// an empty string on a nullable field clears it.
type PositionPatch struct {
	Title           *string `json:"title,omitempty"`
	Department      *string `json:"department,omitempty"`
	UserID          *string `json:"user_id,omitempty"`
	TeamID          *string `json:"team_id,omitempty"`
	ParentID        *string `json:"parent_id,omitempty"`
	Level           *int    `json:"level,omitempty"`
	DisplayOrder    *int    `json:"display_order,omitempty"`
	Color           *string `json:"color,omitempty"`
	IsManagement    *bool   `json:"is_management,omitempty"`
	ExpectedVersion *int64  `json:"expected_version,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p PositionPatch) Empty() bool {
	return p.Title == nil && p.Department == nil && p.UserID == nil && p.TeamID == nil &&
		p.ParentID == nil && p.Level == nil && p.DisplayOrder == nil && p.Color == nil && p.IsManagement == nil
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	PracticeID string `json:"practice_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Membership lists what an actor may do inside a practice.
type Membership struct {
	PracticeID  string   `json:"practice_id"`
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
