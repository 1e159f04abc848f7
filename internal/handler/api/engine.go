package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/service/ratelimit"
	"FinSignal/internal/usecase"
	xhttp "FinSignal/pkg/http"
	xlogger "FinSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Engine is the worker surface the handlers read from and trigger.
type Engine interface {
	Snapshot() models.WorkerSnapshot
	Signals(symbol, timeframe string, limit int) []models.Signal
	RunOnce(ctx context.Context) (models.WorkerSnapshot, bool)
	Running() bool
}

// PerformanceReader aggregates recorded outcomes.
type PerformanceReader interface {
	Summary(symbol, timeframe string) models.PerformanceSummary
}

// Planner replays a recorded signal through the trade plan.
type Planner interface {
	Plan(ctx context.Context, id string) (models.TradePlanResult, error)
}

// EngineHandler serves the signal query surface.
type EngineHandler struct {
	logger  *xlogger.Logger
	engine  Engine
	perf    PerformanceReader
	planner Planner
	status  models.EngineStatus
	limiter *ratelimit.Limiter
}

func NewEngineHandler(logger *xlogger.Logger, engine Engine, perf PerformanceReader, planner Planner, status models.EngineStatus, limiter *ratelimit.Limiter) *EngineHandler {
	return &EngineHandler{logger: logger, engine: engine, perf: perf, planner: planner, status: status, limiter: limiter}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/signals", h.Signals)
	e.GET("/signals/:id/plan", h.Plan)
	e.POST("/refresh", h.Refresh)
	e.GET("/status", h.Status)
	e.GET("/health", h.Health)
	e.GET("/performance", h.Performance)
}

type signalsResponse struct {
	LastRun time.Time        `json:"lastRun"`
	RunMs   int64            `json:"runMs"`
	Status  models.RunStatus `json:"status"`
	Count   int              `json:"count"`
	Signals []models.Signal  `json:"signals"`
}

// Signals lists recorded signals, newest first.
func (h *EngineHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap := h.engine.Snapshot()
	list := h.engine.Signals(req.Symbol, req.Timeframe, req.Limit)
	return xhttp.JSONResponse(c, signalsResponse{
		LastRun: snap.LastRun,
		RunMs:   snap.RunMs,
		Status:  snap.Status,
		Count:   len(list),
		Signals: list,
	})
}

type refreshResponse struct {
	models.WorkerSnapshot
	Refreshed bool `json:"refreshed"`
}

// Refresh runs one cycle synchronously. While a cycle is already running
// it returns the current snapshot with refreshed=false.
func (h *EngineHandler) Refresh(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("refresh rate limit exceeded"))
	}
	snap, ran := h.engine.RunOnce(c.Request().Context())
	if !ran {
		h.logger.Debug("refresh skipped, cycle in progress")
	}
	return xhttp.JSONResponse(c, refreshResponse{WorkerSnapshot: snap, Refreshed: ran})
}

type statusResponse struct {
	models.EngineStatus
	Running bool `json:"running"`
}

func (h *EngineHandler) Status(c echo.Context) error {
	return xhttp.JSONResponse(c, statusResponse{EngineStatus: h.status, Running: h.engine.Running()})
}

type healthResponse struct {
	OK      bool             `json:"ok"`
	LastRun time.Time        `json:"lastRun"`
	Status  models.RunStatus `json:"status"`
}

func (h *EngineHandler) Health(c echo.Context) error {
	snap := h.engine.Snapshot()
	return c.JSON(http.StatusOK, healthResponse{
		OK:      snap.Status == models.RunOK,
		LastRun: snap.LastRun,
		Status:  snap.Status,
	})
}

func (h *EngineHandler) Performance(c echo.Context) error {
	req := &models.PerformanceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.JSONResponse(c, h.perf.Summary(req.Symbol, req.Timeframe))
}

// Plan simulates partial targets and the trend-flip exit for one signal.
func (h *EngineHandler) Plan(c echo.Context) error {
	res, err := h.planner.Plan(c.Request().Context(), c.Param("id"))
	if errors.Is(err, usecase.ErrSignalNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("signal not found"))
	}
	if err != nil {
		h.logger.Error("trade plan failed", xlogger.String("id", c.Param("id")), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.JSONResponse(c, res)
}
