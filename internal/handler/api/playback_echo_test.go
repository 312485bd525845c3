package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/render"
	"AnomalyReplay/internal/repository"
	"AnomalyReplay/internal/service/cache"
	"AnomalyReplay/internal/service/ratelimit"
	"AnomalyReplay/internal/services/windowing"
)

type fakeController struct {
	ds    *models.Dataset
	st    models.PlaybackStatus
	zooms []models.TimeRange
}

func (f *fakeController) Play(context.Context) (models.PlaybackStatus, error) {
	f.st.State = models.StateRunning
	return f.st, nil
}

func (f *fakeController) Pause(context.Context) (models.PlaybackStatus, error) {
	f.st.State = models.StatePaused
	return f.st, nil
}

func (f *fakeController) Stop(context.Context) (models.PlaybackStatus, error) {
	f.st.State, f.st.Index = models.StateStopped, 0
	return f.st, nil
}

func (f *fakeController) SetSpeed(_ context.Context, v float64) (models.PlaybackStatus, error) {
	sp, err := models.ParseSpeed(v)
	if err != nil {
		return f.st, err
	}
	f.st.Speed = sp
	return f.st, nil
}

func (f *fakeController) Status(context.Context) (models.PlaybackStatus, error) { return f.st, nil }

func (f *fakeController) View(_ context.Context, zoom models.TimeRange) (*models.View, error) {
	f.zooms = append(f.zooms, zoom)
	if zoom.From != nil && zoom.To != nil && zoom.From.After(*zoom.To) {
		return nil, models.ErrInvalidRange
	}
	if f.st.Index == 0 {
		return &models.View{Mode: models.ViewIdle, Status: f.st}, nil
	}
	an, err := windowing.BuildAnalysis(f.ds, f.st.Index, zoom)
	if err != nil {
		return nil, err
	}
	return &models.View{Mode: models.ViewAnalysis, Status: f.st, Analysis: an}, nil
}

func testDataset(n int) *models.Dataset {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]models.Record, n)
	for i := range recs {
		recs[i] = models.Record{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Value:     float64(i % 9),
			IsAnomaly: models.Bool(i%5 == 0),
			Bands:     []models.Band{{Upper: 10, Lower: -1}},
		}
	}
	return models.NewDataset("api.csv", recs, []models.ModelInfo{models.KnownModels[0]})
}

func newTestServer(t *testing.T, ctrl *fakeController, opts ...HandlerOption) *echo.Echo {
	t.Helper()
	alerts := repository.NewMemoryAlertStore("s1", 10)
	charts := render.NewCachedRenderer(render.NewRenderer(400, 300), cache.NewTTLCache(), time.Minute)
	h := NewPlaybackEchoHandler(nil, ctrl, ctrl.ds, alerts, charts, opts...)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestControlRoutes(t *testing.T) {
	ctrl := &fakeController{ds: testDataset(50), st: models.PlaybackStatus{State: models.StateStopped, Speed: models.SpeedDefault}}
	e := newTestServer(t, ctrl)

	rec := do(e, http.MethodPost, "/api/play", "")
	if rec.Code != http.StatusOK || ctrl.st.State != models.StateRunning {
		t.Fatalf("play: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodPost, "/api/pause", "")
	if rec.Code != http.StatusOK || ctrl.st.State != models.StatePaused {
		t.Fatalf("pause: %d", rec.Code)
	}

	rec = do(e, http.MethodPut, "/api/speed", `{"speed":0.01}`)
	if rec.Code != http.StatusOK || ctrl.st.Speed != models.SpeedFast {
		t.Fatalf("speed: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodPut, "/api/speed", `{"speed":0.3}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ERR_INVALID_SPEED") {
		t.Fatalf("unsupported speed: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodPut, "/api/speed", `{"speed":5}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ERR_LTE") {
		t.Fatalf("out of range speed: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/state", "")
	var resp struct {
		Data models.PlaybackStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if resp.Data.State != models.StatePaused || resp.Data.Speed != models.SpeedFast {
		t.Fatalf("state = %+v", resp.Data)
	}

	rec = do(e, http.MethodPost, "/api/stop", "")
	if rec.Code != http.StatusOK || ctrl.st.State != models.StateStopped {
		t.Fatalf("stop: %d", rec.Code)
	}
}

func TestViewRoute(t *testing.T) {
	ctrl := &fakeController{ds: testDataset(50), st: models.PlaybackStatus{State: models.StatePaused, Index: 50, Total: 50}}
	e := newTestServer(t, ctrl)

	rec := do(e, http.MethodGet, "/api/view?from=2024-03-01T00:10:00Z&to=2024-03-01T00:20:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("view: %d %s", rec.Code, rec.Body.String())
	}
	z := ctrl.zooms[len(ctrl.zooms)-1]
	if z.From == nil || z.To == nil || z.To.Sub(*z.From) != 10*time.Minute {
		t.Fatalf("zoom not forwarded: %+v", z)
	}

	rec = do(e, http.MethodGet, "/api/view?from=2024-03-01T00:20:00Z&to=2024-03-01T00:10:00Z", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed range: %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/api/view?from=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad timestamp: %d", rec.Code)
	}
}

func TestChartRoute(t *testing.T) {
	ctrl := &fakeController{ds: testDataset(50), st: models.PlaybackStatus{State: models.StatePaused, Index: 50, Total: 50, Dataset: "api.csv"}}
	e := newTestServer(t, ctrl)

	rec := do(e, http.MethodGet, "/api/chart.png?width=400&height=300", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("chart: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderContentType) != "image/png" || rec.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("headers = %v", rec.Header())
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("body is not a png")
	}
	if rec = do(e, http.MethodGet, "/api/chart.png?width=400&height=300", ""); rec.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second render should hit the cache")
	}
	if rec = do(e, http.MethodGet, "/api/chart.png?width=50", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("tiny chart: %d", rec.Code)
	}

	ctrl.st = models.PlaybackStatus{State: models.StateStopped}
	if rec = do(e, http.MethodGet, "/api/chart.png", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("idle chart: %d", rec.Code)
	}
}

func TestAlertsAndDatasetRoutes(t *testing.T) {
	ctrl := &fakeController{ds: testDataset(20)}
	e := newTestServer(t, ctrl)

	rec := do(e, http.MethodGet, "/api/alerts?limit=5", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":0`) {
		t.Fatalf("alerts: %d %s", rec.Code, rec.Body.String())
	}
	if rec = do(e, http.MethodGet, "/api/alerts?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit: %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/dataset", "")
	var resp struct {
		Data DatasetInfo `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode dataset: %v", err)
	}
	if resp.Data.Records != 20 || resp.Data.ValueRange.Max != 8 || len(resp.Data.Models) != 1 {
		t.Fatalf("dataset = %+v", resp.Data)
	}
}

func TestControlRateLimit(t *testing.T) {
	ctrl := &fakeController{ds: testDataset(10)}
	e := newTestServer(t, ctrl, WithControlRateLimit(ratelimit.New(), 0.001, 1))

	if rec := do(e, http.MethodPost, "/api/play", ""); rec.Code != http.StatusOK {
		t.Fatalf("first play: %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/pause", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second control: %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/state", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads are not limited: %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, &fakeController{ds: testDataset(5)})
	if rec := do(e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
}
