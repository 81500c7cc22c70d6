package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"organigramm/internal/engine"
	"organigramm/internal/engine/auth"
	"organigramm/internal/orgchart"
)

type positionPath struct {
	PracticeID string `path:"practice_id"`
	ID         string `path:"id"`
}

type positionOutput struct {
	ETag string           `header:"ETag"`
	Body PositionResponse `json:"body"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerPositions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-positions",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}/positions",
		Summary:     "List active positions",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PracticeID string `path:"practice_id"`
	}) (*struct {
		Body []PositionResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListPositions(ctx, input.PracticeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PositionResponse `json:"body"`
		}{Body: nonNilPositions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-position",
		Method:        http.MethodPost,
		Path:          "/practices/{practice_id}/positions",
		Summary:       "Create position",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		PracticeID string                `path:"practice_id"`
		Body       CreatePositionRequest `json:"body"`
	}) (*positionOutput, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePosition(ctx, engine.PositionCreateOptions{
			PracticeID:   input.PracticeID,
			Title:        input.Body.Title,
			Department:   input.Body.Department,
			UserID:       input.Body.UserID,
			TeamID:       input.Body.TeamID,
			ParentID:     input.Body.ParentID,
			DisplayOrder: input.Body.DisplayOrder,
			Color:        input.Body.Color,
			IsManagement: input.Body.IsManagement,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &positionOutput{ETag: etag(p.Version), Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-position",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}/positions/{id}",
		Summary:     "Get position",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *positionPath) (*positionOutput, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.GetPosition(ctx, input.PracticeID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &positionOutput{ETag: etag(p.Version), Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-position",
		Method:      http.MethodPatch,
		Path:        "/practices/{practice_id}/positions/{id}",
		Summary:     "Update position",
		Description: "Partial update. Send If-Match or expected_version to refuse writes over a newer version.",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		PracticeID string                `path:"practice_id"`
		ID         string                `path:"id"`
		IfMatch    string                `header:"If-Match"`
		Body       UpdatePositionRequest `json:"body"`
	}) (*positionOutput, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		expected, err := parseIfMatch(input.IfMatch)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"header": "If-Match"})
		}
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if expected == nil {
			expected = input.Body.ExpectedVersion
		}
		opts := engine.PositionUpdateOptions{
			PracticeID:      input.PracticeID,
			ID:              input.ID,
			Title:           input.Body.Title,
			Department:      input.Body.Department,
			UserID:          input.Body.UserID,
			TeamID:          input.Body.TeamID,
			ParentID:        input.Body.ParentID,
			DisplayOrder:    input.Body.DisplayOrder,
			Color:           input.Body.Color,
			IsManagement:    input.Body.IsManagement,
			ExpectedVersion: expected,
			ActorID:         actorID,
		}
		bodyMap := rawBodyMap(ctx)
		for field, dst := range map[string]**string{
			"parent_id":  &opts.ParentID,
			"department": &opts.Department,
			"user_id":    &opts.UserID,
			"team_id":    &opts.TeamID,
		} {
			if isNullRaw(bodyMap[field]) {
				empty := ""
				*dst = &empty
			}
		}
		if isNullRaw(bodyMap["title"]) {
			return nil, handleError(orgchart.ValidationError{Field: "title", Reason: "required"})
		}
		p, err := e.UpdatePosition(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &positionOutput{ETag: etag(p.Version), Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-position",
		Method:        http.MethodDelete,
		Path:          "/practices/{practice_id}/positions/{id}",
		Summary:       "Delete position",
		Description:   "Soft delete. Reports of the position keep their parent and are shown at the top level.",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *positionPath) (*struct{}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionWrite); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePosition(ctx, input.PracticeID, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "parent-candidates",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}/positions/{id}/parent-candidates",
		Summary:     "Positions the position may report to",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *positionPath) (*struct {
		Body []PositionResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ParentCandidates(ctx, input.PracticeID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PositionResponse `json:"body"`
		}{Body: nonNilPositions(items)}, nil
	})
}

func registerChart(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-chart",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}/chart",
		Summary:     "Forest, layout and connectors of the practice",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PracticeID string `path:"practice_id"`
	}) (*struct {
		Body ChartResponse `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionRead); err != nil {
			return nil, handleError(err)
		}
		snap, err := e.Chart(ctx, input.PracticeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChartResponse `json:"body"`
		}{Body: ChartResponse{PracticeID: input.PracticeID, Snapshot: snap}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/practices/{practice_id}/stats",
		Summary:     "Summary counts of the practice",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PracticeID string `path:"practice_id"`
	}) (*struct {
		Body orgchart.Stats `json:"body"`
	}, error) {
		if err := requirePermission(ctx, e, input.PracticeID, auth.PositionRead); err != nil {
			return nil, handleError(err)
		}
		stats, err := e.Stats(ctx, input.PracticeID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body orgchart.Stats `json:"body"`
		}{Body: stats}, nil
	})
}
