package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"sitewatch/internal/orchestrator"
	"sitewatch/internal/types"
)

const testAdminKey = "s3cret-admin-key"

type fakeRunner struct {
	got     orchestrator.RunOptions
	summary *types.RunSummary
	err     error
}

func (f *fakeRunner) Run(_ context.Context, opts orchestrator.RunOptions) (*types.RunSummary, error) {
	f.got = opts
	return f.summary, f.err
}

type fakeReader struct {
	runs map[string]*types.RunSummary
}

func (f *fakeReader) GetRunSummary(_ context.Context, id string) (*types.RunSummary, error) {
	if s, ok := f.runs[id]; ok {
		return s, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundRun, "run not found", nil)
}

type mockThresholds struct {
	mock.Mock
}

func (m *mockThresholds) UpsertThresholds(ctx context.Context, targetID string, cfg types.ThresholdConfig) error {
	return m.Called(ctx, targetID, cfg).Error(0)
}

type harness struct {
	server     *Server
	runner     *fakeRunner
	runs       *fakeReader
	dryRuns    *fakeReader
	thresholds *mockThresholds
}

func newHarness(t *testing.T, probes ...HealthProbe) *harness {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)

	h := &harness{
		runner:     &fakeRunner{summary: &types.RunSummary{ID: "run_1", TotalTargets: 2, Succeeded: 2}},
		runs:       &fakeReader{runs: map[string]*types.RunSummary{"run_1": {ID: "run_1"}}},
		dryRuns:    &fakeReader{runs: map[string]*types.RunSummary{"run_dry": {ID: "run_dry", DebugMode: true}}},
		thresholds: new(mockThresholds),
	}
	h.server, err = NewServer(Deps{
		Runner:     h.runner,
		Runs:       h.runs,
		DryRuns:    h.dryRuns,
		Thresholds: h.thresholds,
		Probes:     probes,
	}, string(hash), "1.2.3", nil)
	require.NoError(t, err)
	return h
}

func (h *harness) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req.Header.Set(AdminKeyHeader, testAdminKey)
	}
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{}, "", "", nil)
	assert.Error(t, err)
}

func TestTriggerRun(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/runs", `{"debug_mode": true, "reference_time": "2026-01-15T06:00:00-07:00"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, h.runner.got.DebugMode)
	assert.Equal(t, time.Date(2026, 1, 15, 13, 0, 0, 0, time.UTC), h.runner.got.ReferenceTime)

	var resp struct {
		Data types.RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run_1", resp.Data.ID)
	assert.Equal(t, 2, resp.Data.Succeeded)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestTriggerRun_EmptyBody(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/runs", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.runner.got.DebugMode)
	assert.True(t, h.runner.got.ReferenceTime.IsZero())
}

func TestTriggerRun_BadBody(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/runs", `{"debug": true}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidJSON), decodeError(t, rec).Code)
}

func TestTriggerRun_EnumerationFailure(t *testing.T) {
	h := newHarness(t)
	h.runner.err = errors.New("enumerate targets: connection refused")

	rec := h.do(http.MethodPost, "/v1/runs", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "an unexpected error occurred", decodeError(t, rec).Message, "internal detail is not exposed")
}

func TestAdminKey(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/v1/runs", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthKeyMissing), decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
	req.Header.Set(AdminKeyHeader, "wrong")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthKeyInvalid), decodeError(t, rec).Code)
}

func TestAdminKey_EmptyHashRejectsAll(t *testing.T) {
	called := false
	handler := RequireAdminKey(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(AdminKeyHeader, "anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestGetRun(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/v1/runs/run_1", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"run_1"`)

	rec = h.do(http.MethodGet, "/v1/runs/run_dry?dry_run=true", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"debug_mode":true`)

	rec = h.do(http.MethodGet, "/v1/runs/run_dry", "", true)
	require.Equal(t, http.StatusOK, rec.Code, "ids missing from the run store are read from the dry-run store")
	assert.Contains(t, rec.Body.String(), `"debug_mode":true`)

	rec = h.do(http.MethodGet, "/v1/runs/run_1?dry_run=true", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code, "dry_run=true reads only the dry-run store")

	rec = h.do(http.MethodGet, "/v1/runs/run_missing", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/v1/runs/not-a-run", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRun_NoDryRunStore(t *testing.T) {
	h := newHarness(t)
	h.server.dryRuns = nil

	rec := h.do(http.MethodGet, "/v1/runs/run_dry?dry_run=1", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/v1/runs/run_dry", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/v1/runs/run_1", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPutThresholds(t *testing.T) {
	h := newHarness(t)
	want := types.ThresholdConfig{MinTemperature: 20, MaxTemperature: 90, MaxWindSpeed: 30}
	h.thresholds.On("UpsertThresholds", mock.Anything, "js1", want).Return(nil)

	rec := h.do(http.MethodPut, "/v1/thresholds/js1", `{"min_temperature":20,"max_temperature":90,"max_wind_speed":30}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	h.thresholds.AssertExpectations(t)
}

func TestPutThresholds_Invalid(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPut, "/v1/thresholds/js1", `{"min_temperature":90,"max_temperature":20}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationThresholds), decodeError(t, rec).Code)

	rec = h.do(http.MethodPut, "/v1/thresholds/js1", `{"precipitation_threshold":"high"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPut, "/v1/thresholds/js1", ``, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.thresholds.AssertNotCalled(t, "UpsertThresholds", mock.Anything, mock.Anything, mock.Anything)
}

func TestPutThresholds_StoreError(t *testing.T) {
	h := newHarness(t)
	h.thresholds.On("UpsertThresholds", mock.Anything, "u1", mock.Anything).
		Return(types.NewAppError(types.ErrCodeInternalDB, "failed to save weather settings", errors.New("timeout")))

	rec := h.do(http.MethodPut, "/v1/thresholds/u1", `{"snow_threshold":2}`, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalDB), decodeError(t, rec).Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","version":"1.2.3"}`, rec.Body.String())
}

func TestHealth_ProbeFailure(t *testing.T) {
	h := newHarness(t,
		NewProbe("database", func(context.Context) error { return nil }),
		NewProbe("redis", func(context.Context) error { return errors.New("connection refused") }),
		NewProbe("broken", func(context.Context) error { panic("boom") }),
	)

	rec := h.do(http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "connection refused", resp.Components["redis"].Message)
	assert.Contains(t, resp.Components["broken"].Message, "panicked")
}

func TestHealth_ProbeTimeout(t *testing.T) {
	h := newHarness(t, NewProbe("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	}))

	rec := h.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "timed out")
}

func TestRecoverer(t *testing.T) {
	h := newHarness(t)
	handler := h.server.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), decodeError(t, rec).Code)
}

func TestRequestIDPropagated(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}
