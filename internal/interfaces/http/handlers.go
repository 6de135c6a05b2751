package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/office-ledger/internal/application/port"
	"github.com/garyjia/office-ledger/internal/application/service"
	"github.com/garyjia/office-ledger/internal/domain/apperror"
	"github.com/garyjia/office-ledger/internal/domain/entity"
	"github.com/garyjia/office-ledger/internal/infrastructure/worker"
)

// Scheduler is the reminder scheduler as seen by the API
type Scheduler interface {
	RunNow(ctx context.Context) *entity.NotificationRun
	Status(ctx context.Context) (*worker.SchedulerStatus, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	ledger    service.LedgerService
	guard     service.GuardService
	records   service.RecordService
	scheduler Scheduler
	gateway   port.MessagingGateway
	health    HealthProbe
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		ledger:    deps.Ledger,
		guard:     deps.Guard,
		records:   deps.Records,
		scheduler: deps.Scheduler,
		gateway:   deps.Gateway,
		health:    deps.Health,
		logger:    logger,
	}
}

// Response represents a standard JSON response. Conflict and dependency
// failures carry the rule or the blocking counts next to the message.
type Response struct {
	Success      bool           `json:"success"`
	Data         interface{}    `json:"data,omitempty"`
	Error        string         `json:"error,omitempty"`
	Rule         string         `json:"rule,omitempty"`
	Irreversible bool           `json:"irreversible,omitempty"`
	BlockedBy    map[string]int `json:"blocked_by,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	MessagingMode string            `json:"messaging_mode,omitempty"`
	Components    map[string]string `json:"components,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.gateway != nil {
		response.MessagingMode = h.gateway.Mode()
	}

	code := http.StatusOK
	if h.health != nil {
		healthy, components := h.health(c.Request.Context())
		response.Components = components
		if !healthy {
			response.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data:    response,
	})
}

// GetClient handles GET /api/clients/:id
func (h *Handlers) GetClient(c *gin.Context) {
	id, ok := h.pathID(c, "client")
	if !ok {
		return
	}

	client, err := h.records.GetClient(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, "get client", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    client,
	})
}

// DeleteRecord returns the handler for DELETE on a guarded record kind
func (h *Handlers) DeleteRecord(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c, kind)
		if !ok {
			return
		}

		if err := h.guard.DeleteRecord(c.Request.Context(), actorFrom(c), kind, id); err != nil {
			h.writeError(c, "delete "+kind, err)
			return
		}

		c.JSON(http.StatusOK, Response{
			Success: true,
			Data:    gin.H{"kind": kind, "id": id, "deleted": true},
		})
	}
}

func (h *Handlers) pathID(c *gin.Context, kind string) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid " + kind + " ID",
		})
		return 0, false
	}
	return id, true
}

// writeError maps the domain error taxonomy onto status codes. Unexpected
// errors are logged and hidden behind a generic message.
func (h *Handlers) writeError(c *gin.Context, op string, err error) {
	var (
		denied     *apperror.AuthorizationError
		invalid    *apperror.ValidationError
		missing    *apperror.NotFoundError
		conflict   *apperror.ConflictError
		dependency *apperror.DependencyError
	)

	switch {
	case errors.As(err, &denied):
		c.JSON(http.StatusForbidden, Response{Error: denied.Error()})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, Response{Error: invalid.Error()})
	case errors.As(err, &missing):
		c.JSON(http.StatusNotFound, Response{Error: missing.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, Response{
			Error:        conflict.Error(),
			Rule:         conflict.Rule,
			Irreversible: conflict.Irreversible,
		})
	case errors.As(err, &dependency):
		c.JSON(http.StatusFailedDependency, Response{
			Error:     dependency.Error(),
			BlockedBy: dependency.Counts,
		})
	default:
		h.logger.Error("Request failed", "operation", op, "error", err)
		c.JSON(http.StatusInternalServerError, Response{Error: op + " failed"})
	}
}
