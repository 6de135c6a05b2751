package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/office-ledger/internal/application/policy"
	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// NotificationStatusResponse is the body of GET /api/notifications/status
type NotificationStatusResponse struct {
	Running       bool               `json:"running"`
	MessagingMode string             `json:"messaging_mode"`
	FiringTimes   []string           `json:"firing_times"`
	Timezone      string             `json:"timezone"`
	NextRunAt     string             `json:"next_run_at"`
	LastRunAt     *string            `json:"last_run_at,omitempty"`
	LastTrigger   string             `json:"last_trigger,omitempty"`
	LastTally     *entity.CycleTally `json:"last_tally,omitempty"`
}

// RunNow handles POST /api/notifications/run-now
func (h *Handlers) RunNow(c *gin.Context) {
	actor := actorFrom(c)
	if err := policy.Authorize(actor, policy.ActionTrigger, policy.Deployment(policy.ResourceNotification)).Err(); err != nil {
		h.writeError(c, "run reminders", err)
		return
	}

	h.logger.Info("Manual reminder cycle requested", "actor_id", actor.ID)
	run := h.scheduler.RunNow(c.Request.Context())

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    run,
	})
}

// NotificationStatus handles GET /api/notifications/status
func (h *Handlers) NotificationStatus(c *gin.Context) {
	if err := policy.Authorize(actorFrom(c), policy.ActionRead, policy.Deployment(policy.ResourceNotification)).Err(); err != nil {
		h.writeError(c, "notification status", err)
		return
	}

	status, err := h.scheduler.Status(c.Request.Context())
	if err != nil {
		h.writeError(c, "notification status", err)
		return
	}

	resp := NotificationStatusResponse{
		Running:     status.Running,
		FiringTimes: status.FiringTimes,
		Timezone:    status.Timezone,
		NextRunAt:   status.NextRun.Format(time.RFC3339),
	}
	if h.gateway != nil {
		resp.MessagingMode = h.gateway.Mode()
	}
	if last := status.LastRun; last != nil {
		at := last.StartedAt.Format(time.RFC3339)
		resp.LastRunAt = &at
		resp.LastTrigger = last.Trigger
		tally := last.Tally
		resp.LastTally = &tally
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    resp,
	})
}
