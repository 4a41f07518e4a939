package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerationService struct {
	generation *model.Generation
	usage      *model.UserUsage
	recent     []model.Generation
	err        error
	calls      int
}

func (f *fakeGenerationService) Generate(ctx context.Context, userID, title string, keywords []string) (*model.Generation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.generation, nil
}

func (f *fakeGenerationService) ListRecent(ctx context.Context, userID string, limit int) ([]model.Generation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recent, nil
}

func (f *fakeGenerationService) Usage(ctx context.Context, userID string) (*model.UserUsage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.usage, nil
}

func newGenerationHandler(svc service.GenerationService) *GenerationHandler {
	return NewGenerationHandler(svc, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(req.Context(), middleware.UserContextKey, "user-1")
	return req.WithContext(ctx)
}

func TestGenerateSuccess(t *testing.T) {
	svc := &fakeGenerationService{generation: &model.Generation{OutputMarkdown: "# Copy"}}
	h := newGenerationHandler(svc)

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodPost, "/generations", `{"title":"Headphones","keywords":"bluetooth, comfort"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "# Copy", resp["output_markdown"])
}

func TestGenerateMissingTitleReturns400(t *testing.T) {
	svc := &fakeGenerationService{}
	h := newGenerationHandler(svc)

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodPost, "/generations", `{"title":"","keywords":"bluetooth"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "Title")
	assert.Equal(t, 0, svc.calls)
}

func TestGenerateQuotaExceededReturns403(t *testing.T) {
	svc := &fakeGenerationService{err: &service.QuotaExceededError{DailyLimit: 5}}
	h := newGenerationHandler(svc)

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodPost, "/generations", `{"title":"Headphones","keywords":"bluetooth"}`))

	require.Equal(t, http.StatusForbidden, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Daily limit reached (5/day on Free)", resp["error"])
}

func TestGenerateUpstreamFailureReturns500(t *testing.T) {
	svc := &fakeGenerationService{err: assert.AnError}
	h := newGenerationHandler(svc)

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodPost, "/generations", `{"title":"Headphones","keywords":"bluetooth"}`))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGenerateWithoutIdentityReturns401(t *testing.T) {
	h := newGenerationHandler(&fakeGenerationService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generations", strings.NewReader(`{"title":"Headphones","keywords":"bluetooth"}`))
	h.handleGenerations(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateInvalidJSONReturns400(t *testing.T) {
	h := newGenerationHandler(&fakeGenerationService{})

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodPost, "/generations", `{"title":`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListGenerations(t *testing.T) {
	svc := &fakeGenerationService{recent: []model.Generation{
		{ID: "gen-2", ProductTitle: "Headphones", Keywords: []string{"bluetooth"}, OutputMarkdown: "# B", CreatedAt: time.Now()},
		{ID: "gen-1", ProductTitle: "Speaker", Keywords: []string{"bass"}, OutputMarkdown: "# A", CreatedAt: time.Now().Add(-time.Hour)},
	}}
	h := newGenerationHandler(svc)

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodGet, "/generations", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "gen-2", resp[0]["id"])
}

func TestListGenerationsInvalidLimit(t *testing.T) {
	h := newGenerationHandler(&fakeGenerationService{})

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodGet, "/generations?limit=zero", ""))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUsage(t *testing.T) {
	svc := &fakeGenerationService{usage: &model.UserUsage{UserID: "user-1", IsPro: false, TodayCount: 3, DailyLimit: 5}}
	h := newGenerationHandler(svc)

	rec := httptest.NewRecorder()
	h.getUsage(rec, authedRequest(http.MethodGet, "/usage", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["is_pro"])
	assert.Equal(t, float64(3), resp["today_count"])
	assert.Equal(t, float64(5), resp["daily_limit"])
}

func TestGenerationsMethodNotAllowed(t *testing.T) {
	h := newGenerationHandler(&fakeGenerationService{})

	rec := httptest.NewRecorder()
	h.handleGenerations(rec, authedRequest(http.MethodDelete, "/generations", ""))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
