package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"AnomalyReplay/internal/domain/models"
	domrepo "AnomalyReplay/internal/domain/repository"
	"AnomalyReplay/internal/render"
	apimetrics "AnomalyReplay/internal/service/metrics"
	"AnomalyReplay/internal/service/ratelimit"
	"AnomalyReplay/internal/usecase"
	xhttp "AnomalyReplay/pkg/http"
	xlogger "AnomalyReplay/pkg/logger"
)

// DatasetInfo summarises the loaded dataset.
type DatasetInfo struct {
	Source     string             `json:"source"`
	Records    int                `json:"records"`
	Models     []models.ModelInfo `json:"models"`
	ValueRange models.ValueRange  `json:"value_range"`
	Start      time.Time          `json:"start"`
	End        time.Time          `json:"end"`
}

// PlaybackEchoHandler serves the playback control and view API.
type PlaybackEchoHandler struct {
	logger  *xlogger.Logger
	ctrl    usecase.Controller
	dataset *models.Dataset
	alerts  domrepo.AlertStore
	charts  *render.CachedRenderer
	limiter *ratelimit.Limiter

	burst float64
	rate  float64
}

type HandlerOption func(*PlaybackEchoHandler)

// WithControlRateLimit limits control requests per remote to burst, refilled
// at rate per second. A zero burst disables limiting.
func WithControlRateLimit(l *ratelimit.Limiter, rate, burst float64) HandlerOption {
	return func(h *PlaybackEchoHandler) {
		h.limiter, h.rate, h.burst = l, rate, burst
	}
}

func NewPlaybackEchoHandler(logger *xlogger.Logger, ctrl usecase.Controller, ds *models.Dataset, alerts domrepo.AlertStore, charts *render.CachedRenderer, opts ...HandlerOption) *PlaybackEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &PlaybackEchoHandler{logger: logger.Component("api"), ctrl: ctrl, dataset: ds, alerts: alerts, charts: charts}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *PlaybackEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.instrument("health", h.Health))

	g := e.Group("/api")
	g.GET("/state", h.instrument("state", h.State))
	g.GET("/dataset", h.instrument("dataset", h.Dataset))
	g.POST("/play", h.instrument("play", h.Play), h.rateLimit("play"))
	g.POST("/pause", h.instrument("pause", h.Pause), h.rateLimit("pause"))
	g.POST("/stop", h.instrument("stop", h.Stop), h.rateLimit("stop"))
	g.PUT("/speed", h.instrument("speed", h.Speed), h.rateLimit("speed"))
	g.GET("/view", h.instrument("view", h.View))
	g.GET("/chart.png", h.instrument("chart", h.Chart))
	g.GET("/alerts", h.instrument("alerts", h.Alerts))
}

func (h *PlaybackEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	st, err := h.ctrl.Status(ctx)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("playback loop is not running").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"status": "ok", "state": st.State, "index": st.Index})
}

func (h *PlaybackEchoHandler) State(c echo.Context) error {
	st, err := h.ctrl.Status(c.Request().Context())
	if err != nil {
		return h.fail(c, "state", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *PlaybackEchoHandler) Dataset(c echo.Context) error {
	ds := h.dataset
	info := DatasetInfo{
		Source:     ds.Source,
		Records:    ds.Len(),
		Models:     ds.Models,
		ValueRange: models.ValueRange{Min: ds.ValueMin, Max: ds.ValueMax},
	}
	if ds.Len() > 0 {
		info.Start = ds.Records[0].Timestamp
		info.End = ds.Records[ds.Len()-1].Timestamp
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return xhttp.SuccessResponse(c, info)
}

func (h *PlaybackEchoHandler) Play(c echo.Context) error {
	return h.control(c, "play", h.ctrl.Play)
}

func (h *PlaybackEchoHandler) Pause(c echo.Context) error {
	return h.control(c, "pause", h.ctrl.Pause)
}

func (h *PlaybackEchoHandler) Stop(c echo.Context) error {
	return h.control(c, "stop", h.ctrl.Stop)
}

func (h *PlaybackEchoHandler) Speed(c echo.Context) error {
	req := &models.SpeedRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.control(c, "speed", func(ctx context.Context) (models.PlaybackStatus, error) {
		return h.ctrl.SetSpeed(ctx, req.Speed)
	})
}

func (h *PlaybackEchoHandler) control(c echo.Context, action string, fn func(context.Context) (models.PlaybackStatus, error)) error {
	st, err := fn(c.Request().Context())
	if err != nil {
		return h.fail(c, action, err)
	}
	h.logger.Info("control via http", xlogger.String("action", action), xlogger.String("state", string(st.State)), xlogger.String("remote", c.RealIP()))
	return xhttp.SuccessResponse(c, st)
}

func (h *PlaybackEchoHandler) View(c echo.Context) error {
	req := &models.ViewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	zoom, aerr := parseZoom(req.From, req.To)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	v, err := h.ctrl.View(c.Request().Context(), zoom)
	if err != nil {
		return h.fail(c, "view", err)
	}
	return xhttp.SuccessResponse(c, v)
}

func (h *PlaybackEchoHandler) Chart(c echo.Context) error {
	req := &models.ChartRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	zoom, aerr := parseZoom(req.From, req.To)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	v, err := h.ctrl.View(c.Request().Context(), zoom)
	if err != nil {
		return h.fail(c, "chart", err)
	}
	png, hit, err := h.charts.PNG(v, req.Width, req.Height)
	if err != nil {
		return h.fail(c, "chart", err)
	}
	cacheState := "MISS"
	if hit {
		cacheState = "HIT"
	}
	c.Response().Header().Set("X-Cache", cacheState)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

func (h *PlaybackEchoHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.alerts == nil {
		return xhttp.ListResponse(c, []domrepo.ArchivedAlert{}, 0)
	}
	rows, err := h.alerts.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "alerts", err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func parseZoom(from, to string) (models.TimeRange, *xhttp.AppError) {
	var zoom models.TimeRange
	var aerr *xhttp.AppError
	if zoom.From, aerr = xhttp.ParseOptionalTime("from", from); aerr != nil {
		return zoom, aerr
	}
	if zoom.To, aerr = xhttp.ParseOptionalTime("to", to); aerr != nil {
		return zoom, aerr
	}
	return zoom, nil
}

// fail maps domain errors to API errors and logs the unexpected ones.
func (h *PlaybackEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	var aerr *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrInvalidSpeed):
		aerr = xhttp.NewAppError("ERR_INVALID_SPEED", "speed", err.Error(), http.StatusBadRequest).
			WithParam("options", models.Speeds)
	case errors.Is(err, models.ErrInvalidRange):
		aerr = xhttp.BadRequestError("from must not be after to")
	case errors.Is(err, render.ErrNothingToRender):
		aerr = xhttp.NotFoundError("nothing to render while stopped at the start")
	case errors.Is(err, usecase.ErrDriverClosed):
		aerr = xhttp.ServiceUnavailableError("playback loop is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		aerr = xhttp.ServiceUnavailableError("request cancelled")
	default:
		h.logger.Error(endpoint+" failed", xlogger.Error(err))
		aerr = xhttp.InternalError("internal error")
	}
	return xhttp.AppErrorResponse(c, aerr.WithError(err))
}

func (h *PlaybackEchoHandler) instrument(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
		return err
	}
}

func (h *PlaybackEchoHandler) rateLimit(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.limiter == nil || h.burst <= 0 {
				return next(c)
			}
			if !h.limiter.Allow(c.RealIP(), h.burst, h.rate) {
				apimetrics.RateLimited.WithLabelValues(endpoint).Inc()
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many control requests"))
			}
			return next(c)
		}
	}
}
