package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/monitoring"
	"github.com/sells-group/atlas-research/internal/resilience"
	"github.com/sells-group/atlas-research/internal/session"
	"github.com/sells-group/atlas-research/internal/store"
)

type mockUploads struct{ mock.Mock }

func (m *mockUploads) Accept(ctx context.Context, original string, r io.Reader) (model.Upload, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(ctx, original, string(data))
	return args.Get(0).(model.Upload), args.Error(1)
}

type mockRuns struct{ mock.Mock }

func (m *mockRuns) GetRun(ctx context.Context, id string) (*model.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*model.Run)
	return run, args.Error(1)
}

func (m *mockRuns) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	runs, _ := args.Get(0).([]model.Run)
	return runs, args.Error(1)
}

func (m *mockRuns) GetBatch(ctx context.Context, id string) (*model.BatchSummary, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*model.BatchSummary)
	return b, args.Error(1)
}

type mockMetrics struct{ mock.Mock }

func (m *mockMetrics) Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error) {
	args := m.Called(ctx, lookbackHours)
	snap, _ := args.Get(0).(*monitoring.MetricsSnapshot)
	return snap, args.Error(1)
}

type dirReports struct{ dir string }

func (d dirReports) Path(name string) (string, error) {
	if name != filepath.Base(name) || !strings.HasSuffix(name, ".xlsx") {
		return "", eris.New("invalid name")
	}
	p := filepath.Join(d.dir, name)
	if _, err := os.Stat(p); err != nil {
		return "", err
	}
	return p, nil
}

func multipartBody(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv := New(Config{})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

type fakeBreakers map[string]resilience.CircuitState

func (f fakeBreakers) States() map[string]resilience.CircuitState { return f }

func TestHealth_Degraded(t *testing.T) {
	t.Parallel()
	srv := New(Config{Breakers: fakeBreakers{
		"jina":       resilience.CircuitClosed,
		"perplexity": resilience.CircuitOpen,
	}})
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status    string            `json:"status"`
		Providers map[string]string `json:"providers"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"jina": "closed", "perplexity": "open"}, body.Providers)
}

func TestUpload(t *testing.T) {
	t.Parallel()
	uploads := &mockUploads{}
	uploads.On("Accept", mock.Anything, "list.csv", "domain\nacme.com\n").
		Return(model.Upload{Filename: "0b6c.csv", State: model.UploadUploaded}, nil)
	srv := New(Config{Uploads: uploads})

	body, ct := multipartBody(t, "file", "list.csv", "domain\nacme.com\n")
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var up model.Upload
	decode(t, rec, &up)
	assert.Equal(t, "0b6c.csv", up.Filename)
	assert.Equal(t, model.UploadUploaded, up.State)
	uploads.AssertExpectations(t)
}

func TestUpload_Rejected(t *testing.T) {
	t.Parallel()
	uploads := &mockUploads{}
	uploads.On("Accept", mock.Anything, "list.pdf", mock.Anything).
		Return(model.Upload{}, model.NewValidationError("list.pdf", "unsupported file type, expected .csv or .xlsx"))
	srv := New(Config{Uploads: uploads})

	body, ct := multipartBody(t, "file", "list.pdf", "%PDF")
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decode(t, rec, &resp)
	assert.Contains(t, resp["error"], "unsupported file type")
}

func TestUpload_InternalError(t *testing.T) {
	t.Parallel()
	uploads := &mockUploads{}
	uploads.On("Accept", mock.Anything, "list.csv", mock.Anything).
		Return(model.Upload{}, eris.New("disk full"))
	srv := New(Config{Uploads: uploads})

	body, ct := multipartBody(t, "file", "list.csv", "domain\n")
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestUpload_MissingField(t *testing.T) {
	t.Parallel()
	srv := New(Config{Uploads: &mockUploads{}})

	body, ct := multipartBody(t, "attachment", "list.csv", "domain\n")
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `multipart field \"file\" is required`)
}

func TestDownload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Bulk_Report_20260101_000000.xlsx"), []byte("xlsx-bytes"), 0o644))
	srv := New(Config{Reports: dirReports{dir: dir}})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/Bulk_Report_20260101_000000.xlsx", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Bulk_Report_20260101_000000.xlsx")

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/missing.xlsx", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	runs := &mockRuns{}
	runs.On("ListRuns", mock.Anything, store.RunFilter{Status: model.RunStatusFailed, BatchID: "job-1", Limit: 5, Offset: 10}).
		Return([]model.Run{{ID: "r1", Status: model.RunStatusFailed}}, nil)
	srv := New(Config{Runs: runs})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?status=failed&batch_id=job-1&limit=5&offset=10", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got []model.Run
	decode(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
	runs.AssertExpectations(t)
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	t.Parallel()
	runs := &mockRuns{}
	runs.On("ListRuns", mock.Anything, store.RunFilter{}).Return(nil, nil)
	srv := New(Config{Runs: runs})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListRuns_BadLimit(t *testing.T) {
	t.Parallel()
	srv := New(Config{Runs: &mockRuns{}})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun(t *testing.T) {
	t.Parallel()
	runs := &mockRuns{}
	runs.On("GetRun", mock.Anything, "r1").Return(&model.Run{ID: "r1", Target: model.Target{Key: "acme.com"}}, nil)
	runs.On("GetRun", mock.Anything, "nope").Return(nil, eris.Wrap(store.ErrNotFound, "store: get run nope"))
	runs.On("GetRun", mock.Anything, "boom").Return(nil, eris.New("connection reset"))
	srv := New(Config{Runs: runs})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var got model.Run
	decode(t, rec, &got)
	assert.Equal(t, "acme.com", got.Target.Key)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetBatch(t *testing.T) {
	t.Parallel()
	runs := &mockRuns{}
	runs.On("GetBatch", mock.Anything, "job-1").Return(&model.BatchSummary{ID: "job-1", Total: 3}, nil)
	runs.On("GetBatch", mock.Anything, "job-2").Return(nil, eris.Wrap(store.ErrNotFound, "store: get batch job-2"))
	srv := New(Config{Runs: runs})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/job-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/job-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRuns_NotConfigured(t *testing.T) {
	t.Parallel()
	srv := New(Config{})

	for _, path := range []string{"/api/runs", "/api/runs/r1", "/api/batches/b1", "/api/metrics"} {
		rec := httptest.NewRecorder()
		srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	m := new(mockMetrics)
	m.On("Collect", mock.Anything, 6).Return(&monitoring.MetricsSnapshot{Total: 4, Failed: 1, FailRate: 0.25, LookbackHours: 6}, nil)
	m.On("Collect", mock.Anything, 24).Return(nil, eris.New("db down"))
	srv := New(Config{Metrics: m})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics?hours=6", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4, got.Total)
	assert.InDelta(t, 0.25, got.FailRate, 1e-9)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics?hours=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	m.AssertExpectations(t)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	srv := New(Config{AllowedOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/uploads", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

// stubResearcher completes every target immediately with one log line.
type stubResearcher struct{}

func (stubResearcher) Start(_ context.Context, target model.Target) (<-chan model.Event, <-chan model.Outcome) {
	events := make(chan model.Event, 1)
	out := make(chan model.Outcome, 1)
	events <- model.LogEventOf(model.LogEvent{Target: target.Label(), Phase: model.PhaseSearching, Content: "Connection established"})
	close(events)
	rec := model.NewExtractionRecord(target)
	out <- model.Outcome{Target: target, Phase: model.PhaseCompleted, Record: &rec}
	close(out)
	return events, out
}

func TestStream_SingleTarget(t *testing.T) {
	t.Parallel()
	srv := New(Config{Session: session.Deps{Researcher: stubResearcher{}}})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?target=acme.com"
	c, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer c.CloseNow() //nolint:errcheck

	var types []string
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		types = append(types, msg["type"].(string))
	}
	assert.Equal(t, []string{session.TypeLog, session.TypeResult}, types)
}
