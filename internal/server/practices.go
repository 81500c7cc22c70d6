package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"organigramm/internal/domain"
	"organigramm/internal/engine"
	"organigramm/internal/engine/auth"
	"organigramm/internal/repo"
)

const devTokenTTL = 12 * time.Hour

func registerPractices(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-practice",
		Method:        http.MethodPost,
		Path:          "/practices",
		Summary:       "Create practice",
		Description:   "The calling actor becomes admin of the new practice.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreatePracticeRequest `json:"body"`
	}) (*struct {
		Body PracticeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePractice(ctx, engine.PracticeCreateOptions{ID: input.Body.ID, Name: input.Body.Name, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PracticeResponse `json:"body"`
		}{Body: practiceResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-practices",
		Method:      http.MethodGet,
		Path:        "/practices",
		Summary:     "List the practices the caller belongs to",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PracticeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		memberships, err := e.Repo.Memberships(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]domain.Practice, 0, len(memberships))
		for _, m := range memberships {
			p, err := e.GetPractice(ctx, m.PracticeID)
			if err != nil {
				return nil, handleError(err)
			}
			items = append(items, p)
		}
		return &struct {
			Body []PracticeResponse `json:"body"`
		}{Body: mapPractices(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-practice",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}",
		Summary:     "Get practice",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PracticeID string `path:"practice_id"`
	}) (*struct {
		Body PracticeResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.GetPractice(ctx, input.PracticeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PracticeResponse `json:"body"`
		}{Body: practiceResponse(p)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PracticeID string `path:"practice_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"practice,position,rbac"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.EventsRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			PracticeID: input.PracticeID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRBAC(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}/me/permissions",
		Summary:     "Current actor permissions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PracticeID string `path:"practice_id"`
	}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetPractice(ctx, input.PracticeID); err != nil {
			return nil, handleError(err)
		}
		m, err := e.Repo.Membership(ctx, nil, input.PracticeID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			PracticeID:  input.PracticeID,
			Roles:       nonNilSlice(m.Roles),
			Permissions: nonNilSlice(m.Permissions),
			Source:      principal.Source,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grant-role",
		Method:      http.MethodPost,
		Path:        "/practices/{practice_id}/rbac/roles/grant",
		Summary:     "Grant role",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PracticeID string           `path:"practice_id"`
		Body       RoleGrantRequest `json:"body"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PracticeAdmin); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.GrantRole(ctx, input.PracticeID, input.Body.ActorID, input.Body.RoleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-role",
		Method:      http.MethodPost,
		Path:        "/practices/{practice_id}/rbac/roles/revoke",
		Summary:     "Revoke role",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PracticeID string           `path:"practice_id"`
		Body       RoleGrantRequest `json:"body"`
	}) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PracticeAdmin); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, input.PracticeID, input.Body.ActorID, input.Body.RoleID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles := principal.Roles
		perms := principal.Permissions
		if len(roles) == 0 {
			if memberships, err := e.Repo.Memberships(ctx, principal.ActorID); err == nil {
				for _, m := range memberships {
					for _, r := range m.Roles {
						roles = append(roles, m.PracticeID+":"+r)
					}
				}
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:     principal.ActorID,
			Roles:       nonNilSlice(roles),
			Permissions: nonNilSlice(perms),
			Source:      principal.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	if !authCfg.DevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, input.Body.Roles, input.Body.Permissions, devTokenTTL)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
