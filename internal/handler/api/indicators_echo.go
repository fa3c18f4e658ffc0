package api

import (
	"errors"
	"net/http"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/internal/usecase"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Forced refreshes hit the upstream providers directly, so they are token
// bucketed per indicator: a small burst, then one refresh every 20 seconds.
const (
	refreshBurst     = 3
	refreshPerSecond = 0.05
)

// IndicatorsEchoHandler serves the indicator pipeline over HTTP.
type IndicatorsEchoHandler struct {
	logger  *xlogger.Logger
	svc     *usecase.IndicatorService
	store   drepo.TimeSeriesStore
	limiter *ratelimit.Limiter
}

func NewIndicatorsEchoHandler(logger *xlogger.Logger, svc *usecase.IndicatorService, store drepo.TimeSeriesStore) *IndicatorsEchoHandler {
	return &IndicatorsEchoHandler{logger: logger, svc: svc, store: store, limiter: ratelimit.New()}
}

func (h *IndicatorsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/indicators", h.List)
	g.GET("/indicators/:kind", h.Snapshot)
	g.GET("/indicators/:kind/history", h.History)
	g.POST("/indicators/:kind/refresh", h.Refresh)
	e.GET("/healthz", h.Health)
}

// Snapshot serves the current snapshot. The body is the bare snapshot shape
// the dashboard consumes, not the envelope the other endpoints use. Pipeline
// failures still come back 200 with an error-status snapshot; the dashboard
// must always receive a well-formed object.
func (h *IndicatorsEchoHandler) Snapshot(c echo.Context) error {
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind := models.IndicatorKind(req.Kind)
	if !models.IsValidKind(kind) {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("unknown indicator %q", req.Kind))
	}

	snap, err := h.svc.Snapshot(c.Request().Context(), kind)
	if err != nil {
		if errors.Is(err, usecase.ErrUnknownIndicator) {
			return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("unknown indicator %q", req.Kind))
		}
		h.logger.Error("snapshot usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, snap)
}

// Refresh forces a fetch regardless of the freshness window.
func (h *IndicatorsEchoHandler) Refresh(c echo.Context) error {
	req := &models.RefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind := models.IndicatorKind(req.Kind)
	if !models.IsValidKind(kind) {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("unknown indicator %q", req.Kind))
	}
	if !h.limiter.Allow(string(kind), refreshBurst, refreshPerSecond) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsErrorf("refresh rate limit exceeded for %q", req.Kind))
	}

	snap, err := h.svc.Refresh(c.Request().Context(), kind)
	if err != nil {
		h.logger.Error("refresh usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// History serves the sparkline bucket for trend charts.
func (h *IndicatorsEchoHandler) History(c echo.Context) error {
	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	kind := models.IndicatorKind(req.Kind)
	if !models.IsValidKind(kind) {
		return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("unknown indicator %q", req.Kind))
	}
	tf := drepo.NormalizeTimeframe(req.Timeframe)

	points, err := h.svc.History(c.Request().Context(), kind, tf)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	points = filterPointRange(points, c.QueryParam("from"), c.QueryParam("to"))
	if limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 0); limit > 0 && limit < len(points) {
		points = points[len(points)-limit:]
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"indicator": kind,
		"timeframe": tf,
		"points":    points,
	})
}

// filterPointRange keeps the points inside the optional from/to bounds.
// Bounds accept RFC3339 or unix seconds and are compared at day granularity;
// an unparseable bound is ignored.
func filterPointRange(points []models.HistoryPoint, fromRaw, toRaw string) []models.HistoryPoint {
	from, okFrom := xhttp.ParseTime(fromRaw)
	to, okTo := xhttp.ParseTime(toRaw)
	if !okFrom && !okTo {
		return points
	}
	out := make([]models.HistoryPoint, 0, len(points))
	for _, p := range points {
		if okFrom && p.Date < models.Day(from) {
			continue
		}
		if okTo && p.Date > models.Day(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// indicatorSummary is one row of the list endpoint.
type indicatorSummary struct {
	Kind          models.IndicatorKind `json:"indicator"`
	Status        models.Status        `json:"status"`
	IsApproximate bool                 `json:"isApproximate"`
	LastUpdated   *string              `json:"lastUpdated"`
}

// List reports every tracked indicator with its cached state; it never
// triggers a fetch.
func (h *IndicatorsEchoHandler) List(c echo.Context) error {
	kinds := h.svc.Kinds()
	rows := make([]indicatorSummary, 0, len(kinds))
	for _, kind := range kinds {
		row := indicatorSummary{Kind: kind, Status: models.StatusError}
		if snap := h.svc.Cached(kind); snap != nil {
			ts := snap.FetchedAt.UTC().Format(time.RFC3339)
			row.Status = snap.Status
			row.IsApproximate = snap.IsApproximate
			row.LastUpdated = &ts
		}
		rows = append(rows, row)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Health checks the store dependency.
func (h *IndicatorsEchoHandler) Health(c echo.Context) error {
	if err := h.store.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
