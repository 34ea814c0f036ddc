package api

import (
	"context"
	"net/http"
	"time"

	"TickStockApp/internal/domain/models"
	"TickStockApp/internal/service/redisvalidator"
	"TickStockApp/internal/usecase"
	xhttp "TickStockApp/pkg/http"
	xlogger "TickStockApp/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReportSource exposes the startup validation report.
type ReportSource interface {
	LastReport() *redisvalidator.ValidationReport
}

// IntegrationEchoHandler serves the diagnostics endpoints and the websocket upgrade.
type IntegrationEchoHandler struct {
	logger   *xlogger.Logger
	detector usecase.HealthSource
	redis    Pinger
	reports  ReportSource
	ws       http.Handler
}

func NewIntegrationEchoHandler(logger *xlogger.Logger, detector usecase.HealthSource, redis Pinger, reports ReportSource, ws http.Handler) *IntegrationEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &IntegrationEchoHandler{logger: logger, detector: detector, redis: redis, reports: reports, ws: ws}
}

func (h *IntegrationEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	if h.ws != nil {
		e.GET("/ws", echo.WrapHandler(h.ws))
	}

	g := e.Group("/api")
	g.GET("/fallback/stats", h.Stats)
	g.GET("/fallback/health", h.DetectorHealth)
	g.GET("/integration/redis", h.RedisReport)
}

type healthResponse struct {
	Status   string              `json:"status"`
	Redis    string              `json:"redis"`
	Detector models.HealthStatus `json:"detector"`
}

// Health reports 503 when Redis is unreachable.
func (h *IntegrationEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Redis: "ok", Detector: h.detector.HealthStatus()}
	if err := h.redis.Ping(ctx); err != nil {
		h.logger.Warn("health check: redis unreachable", xlogger.Error(err))
		res.Status, res.Redis = "degraded", err.Error()
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

type statsRequest struct {
	Symbol string `query:"symbol" validate:"omitempty,max=16,uppercase"`
}

// Stats returns detector counters, optionally narrowed to one symbol's buffer.
func (h *IntegrationEchoHandler) Stats(c echo.Context) error {
	req := &statsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	stats := h.detector.Stats()
	if req.Symbol != "" {
		n, ok := stats.BufferSizes[req.Symbol]
		if !ok {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundError("symbol not buffered").WithParam("symbol", req.Symbol))
		}
		stats.BufferSizes = map[string]int{req.Symbol: n}
	}
	return xhttp.SuccessResponse(c, stats)
}

type detectorHealthResponse struct {
	Status models.HealthStatus   `json:"status"`
	Stats  usecase.DetectorStats `json:"stats"`
}

func (h *IntegrationEchoHandler) DetectorHealth(c echo.Context) error {
	return xhttp.SuccessResponse(c, detectorHealthResponse{
		Status: h.detector.HealthStatus(),
		Stats:  h.detector.Stats(),
	})
}

// RedisReport returns the last startup validation report.
func (h *IntegrationEchoHandler) RedisReport(c echo.Context) error {
	report := h.reports.LastReport()
	if report == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("redis validation has not run"))
	}
	return xhttp.SuccessResponse(c, report)
}

var _ xhttp.Handler = (*IntegrationEchoHandler)(nil)
