package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type routes struct{}

type speedReq struct {
	Speed float64 `json:"speed" validate:"required,gt=0"`
	Limit int     `json:"limit" default:"100" validate:"lte=1000"`
}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/panic", func(echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundError("no such thing")) })
	e.PUT("/speed", func(c echo.Context) error {
		var req speedReq
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewServer([]Handler{routes{}}, WithMetrics("/metrics", reg, reg))
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServerMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodGet, "/panic", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic status = %d", rec.Code)
	}

	rec = do(s, http.MethodGet, "/missing", "")
	var resp struct {
		Status int        `json:"status"`
		Data   []AppError `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusNotFound || resp.Status != http.StatusNotFound || resp.Data[0].Code != "ERR_NOT_FOUND" {
		t.Fatalf("app error response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "http://localhost:3000" {
		t.Fatalf("cors header missing")
	}

	rec = do(s, http.MethodOptions, "/speed", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}

	rec = do(s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "http_requests_total") {
		t.Fatalf("metrics endpoint: %d", rec.Code)
	}
}

func TestReadAndValidateRequest(t *testing.T) {
	s := newTestServer(t)

	rec := do(s, http.MethodPut, "/speed", `{"limit": 5000}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Data []ValidationError `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	codes := map[string]string{}
	for _, e := range resp.Data {
		codes[e.Field] = e.Code
	}
	if codes["speed"] != "ERR_REQUIRED" || codes["limit"] != "ERR_LTE" {
		t.Fatalf("validation errors %+v", resp.Data)
	}

	rec = do(s, http.MethodPut, "/speed", `{"speed": 0.5}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"limit":100`) {
		t.Fatalf("defaults not applied: %s", rec.Body.String())
	}
}

func TestParseOptionalTime(t *testing.T) {
	if ts, err := ParseOptionalTime("from", ""); ts != nil || err != nil {
		t.Fatalf("empty bound must be open")
	}
	if ts, err := ParseOptionalTime("from", "2024-01-01T00:00:00Z"); err != nil || ts == nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if _, err := ParseOptionalTime("to", "yesterday"); err == nil || err.Field != "to" {
		t.Fatalf("expected field error, got %v", err)
	}
}

func TestServerWithoutCORS(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewServer([]Handler{routes{}}, WithMetrics("", reg, reg), WithCORS(false))

	rec := do(s, http.MethodGet, "/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Fatalf("cors header set with cors disabled: %q", got)
	}
}
