package organigrammsdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"organigramm/internal/domain"
	"organigramm/internal/orgchart"
)

type recorded struct {
	method  string
	path    string
	ifMatch string
	apiKey  string
	body    map[string]any
}

func newFakeServer(t *testing.T, status int, reply any) (*Client, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.RequestURI()
		rec.ifMatch = r.Header.Get("If-Match")
		rec.apiKey = r.Header.Get("X-Api-Key")
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if reply != nil {
			_ = json.NewEncoder(w).Encode(reply)
		}
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL + "/")
	c.APIKey = "secret"
	c.HTTPClient = srv.Client()
	return c, rec
}

func errorEnvelope(code string, details map[string]any) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": code, "details": details}}
}

func TestCreatePositionSendsDraftWithoutLevel(t *testing.T) {
	parent := "ceo"
	c, rec := newFakeServer(t, http.StatusCreated, domain.Position{ID: "p1", Title: "CTO", ParentID: &parent, Level: 1, Version: 1})

	got, err := c.CreatePosition(context.Background(), "praxis", domain.PositionDraft{Title: "CTO", ParentID: &parent, Level: 7})
	require.NoError(t, err)

	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/v0/practices/praxis/positions", rec.path)
	assert.Equal(t, "secret", rec.apiKey)
	assert.Equal(t, "ceo", rec.body["parent_id"])
	assert.NotContains(t, rec.body, "level")
	assert.NotContains(t, rec.body, "department")
}

func TestUpdatePositionMovesExpectedVersionToIfMatch(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusOK, domain.Position{ID: "p1", Version: 4})
	title := "Head of Care"
	version := int64(3)
	level := 2

	_, err := c.UpdatePosition(context.Background(), "praxis", "p1", domain.PositionPatch{
		Title:           &title,
		Level:           &level,
		ExpectedVersion: &version,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, rec.method)
	assert.Equal(t, "/v0/practices/praxis/positions/p1", rec.path)
	assert.Equal(t, `"3"`, rec.ifMatch)
	assert.Equal(t, map[string]any{"title": "Head of Care"}, rec.body)
}

func TestDeletePositionAcceptsNoContent(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusNoContent, nil)

	require.NoError(t, c.DeletePosition(context.Background(), "praxis", "p1"))
	assert.Equal(t, http.MethodDelete, rec.method)
}

func TestConcurrentFirstRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]domain.Position{{ID: "p1", Title: "CEO", Active: true}})
	}))
	t.Cleanup(srv.Close)

	for name, c := range map[string]*Client{
		"constructed": New(srv.URL),
		"literal":     {BaseURL: srv.URL},
	} {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			errs := make([]error, 8)
			for i := range errs {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					items, err := c.ListPositions(context.Background(), "praxis")
					if err == nil && len(items) != 1 {
						err = errors.New("unexpected list length")
					}
					errs[i] = err
				}(i)
			}
			wg.Wait()
			for _, err := range errs {
				assert.NoError(t, err)
			}
		})
	}
	assert.NotNil(t, New(srv.URL).HTTPClient)
}

func TestEventsPageEncodesCursor(t *testing.T) {
	c, rec := newFakeServer(t, http.StatusOK, PaginatedEvents{Items: []Event{{ID: 9, Type: "position.create"}}, NextCursor: "9"})

	page, err := c.EventsPage(context.Background(), "praxis", 1, "12")
	require.NoError(t, err)

	assert.Equal(t, "/v0/practices/praxis/events?cursor=12&limit=1", rec.path)
	assert.Equal(t, "9", page.NextCursor)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "position.create", page.Items[0].Type)
}

func TestAPIErrorUnwrapsToChartErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  any
		check  func(t *testing.T, err error)
	}{
		{
			name:   "conflict",
			status: http.StatusConflict,
			reply:  errorEnvelope("conflict", nil),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, orgchart.ErrConflict)
			},
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			reply:  errorEnvelope("not_found", nil),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, orgchart.ErrNotFound)
			},
		},
		{
			name:   "cycle",
			status: http.StatusUnprocessableEntity,
			reply:  errorEnvelope("validation_failed", map[string]any{"field": "parent_id", "reason": "cycle"}),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, orgchart.ErrCycle)
			},
		},
		{
			name:   "validation",
			status: http.StatusUnprocessableEntity,
			reply:  errorEnvelope("validation_failed", map[string]any{"field": "title", "reason": "required"}),
			check: func(t *testing.T, err error) {
				var ve orgchart.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, "title", ve.Field)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			reply:  errorEnvelope("internal_error", nil),
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "internal_error", apiErr.Code)
				assert.NotErrorIs(t, err, orgchart.ErrConflict)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newFakeServer(t, tt.status, tt.reply)
			_, err := c.ListPositions(context.Background(), "praxis")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestEditorSurfacesRemoteConflict(t *testing.T) {
	var ifMatch string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]domain.Position{{ID: "p1", Title: "CEO", Active: true, Version: 2}})
		case http.MethodPatch:
			ifMatch = r.Header.Get("If-Match")
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(errorEnvelope("conflict", nil))
		}
	}))
	t.Cleanup(srv.Close)
	c := New(srv.URL)
	c.HTTPClient = srv.Client()
	ed := orgchart.NewEditor(c, "praxis")
	require.NoError(t, ed.Load(context.Background()))

	title := "Chief"
	_, err := ed.Update(context.Background(), "p1", domain.PositionPatch{Title: &title})

	assert.ErrorIs(t, err, orgchart.ErrConflict)
	assert.Equal(t, `"2"`, ifMatch)
	assert.Equal(t, "CEO", ed.Positions()[0].Title)
}
