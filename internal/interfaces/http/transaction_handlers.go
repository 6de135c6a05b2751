package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/office-ledger/internal/application/service"
	"github.com/garyjia/office-ledger/internal/domain/entity"
)

// CreateTransactionRequest is the body of POST /api/transactions. Amount
// accepts a JSON string or number.
type CreateTransactionRequest struct {
	BranchID    int64           `json:"branch_id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     string          `json:"due_date"`
	ClientID    *int64          `json:"client_id"`
	ProcessID   *int64          `json:"process_id"`
	Description string          `json:"description"`
}

// RescheduleRequest is the body of PATCH /api/transactions/:id/due-date
type RescheduleRequest struct {
	DueDate string `json:"due_date"`
}

// ListTransactionsRequest represents query parameters for listing
type ListTransactionsRequest struct {
	Status   string `form:"status"`
	BranchID int64  `form:"branch_id"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// TransactionResponse represents a transaction in API responses. Status is
// always the effective status.
type TransactionResponse struct {
	ID          int64   `json:"id"`
	BranchID    int64   `json:"branch_id"`
	Kind        string  `json:"kind"`
	Amount      string  `json:"amount"`
	DueDate     string  `json:"due_date"`
	Status      string  `json:"status"`
	ClientID    *int64  `json:"client_id,omitempty"`
	ProcessID   *int64  `json:"process_id,omitempty"`
	Description string  `json:"description,omitempty"`
	PaidAt      *string `json:"paid_at,omitempty"`
	Version     int64   `json:"version"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// CreateTransaction handles POST /api/transactions
func (h *Handlers) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body: " + err.Error()})
		return
	}

	due, ok := parseDate(c, req.DueDate, true)
	if !ok {
		return
	}

	view, err := h.ledger.Create(c.Request.Context(), actorFrom(c), service.CreateTransactionInput{
		BranchID:    req.BranchID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		DueDate:     due,
		ClientID:    req.ClientID,
		ProcessID:   req.ProcessID,
		Description: req.Description,
	})
	if err != nil {
		h.writeError(c, "create transaction", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toTransactionResponse(view),
	})
}

// ListTransactions handles GET /api/transactions
func (h *Handlers) ListTransactions(c *gin.Context) {
	var req ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid query parameters"})
		return
	}

	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	views, err := h.ledger.List(c.Request.Context(), actorFrom(c), service.ListQuery{
		Status:   req.Status,
		BranchID: req.BranchID,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		h.writeError(c, "list transactions", err)
		return
	}

	out := make([]TransactionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toTransactionResponse(v))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    out,
	})
}

// GetTransaction handles GET /api/transactions/:id
func (h *Handlers) GetTransaction(c *gin.Context) {
	id, ok := h.pathID(c, "transaction")
	if !ok {
		return
	}

	view, err := h.ledger.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, "get transaction", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(view),
	})
}

// MarkPaid handles POST /api/transactions/:id/mark-paid
func (h *Handlers) MarkPaid(c *gin.Context) {
	id, ok := h.pathID(c, "transaction")
	if !ok {
		return
	}

	view, err := h.ledger.MarkPaid(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, "mark paid", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(view),
	})
}

// Reschedule handles PATCH /api/transactions/:id/due-date
func (h *Handlers) Reschedule(c *gin.Context) {
	id, ok := h.pathID(c, "transaction")
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request body: " + err.Error()})
		return
	}
	due, ok := parseDate(c, req.DueDate, false)
	if !ok {
		return
	}

	view, err := h.ledger.Reschedule(c.Request.Context(), actorFrom(c), id, due)
	if err != nil {
		h.writeError(c, "reschedule", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toTransactionResponse(view),
	})
}

// DeleteTransaction handles DELETE /api/transactions/:id
func (h *Handlers) DeleteTransaction(c *gin.Context) {
	id, ok := h.pathID(c, "transaction")
	if !ok {
		return
	}

	if err := h.ledger.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.writeError(c, "delete transaction", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"kind": entity.RecordTransaction, "id": id, "deleted": true},
	})
}

// ListDispatches handles GET /api/transactions/:id/dispatches
func (h *Handlers) ListDispatches(c *gin.Context) {
	id, ok := h.pathID(c, "transaction")
	if !ok {
		return
	}

	records, err := h.ledger.Dispatches(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.writeError(c, "list dispatches", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    records,
	})
}

// parseDate reads a YYYY-MM-DD value. An empty value is left to the ledger
// to reject when optional is true.
func parseDate(c *gin.Context, value string, optional bool) (time.Time, bool) {
	if value == "" && optional {
		return time.Time{}, true
	}
	due, err := time.Parse(entity.DateLayout, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "validation failed: due_date: must be a date in YYYY-MM-DD format"})
		return time.Time{}, false
	}
	return due, true
}

func toTransactionResponse(v *service.TransactionView) TransactionResponse {
	resp := TransactionResponse{
		ID:          v.ID,
		BranchID:    v.BranchID,
		Kind:        v.Kind,
		Amount:      v.Amount.StringFixed(2),
		DueDate:     v.DueDate.Format(entity.DateLayout),
		Status:      string(v.Effective),
		ClientID:    v.ClientID,
		ProcessID:   v.ProcessID,
		Description: v.Description,
		Version:     v.Version,
		CreatedAt:   v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   v.UpdatedAt.Format(time.RFC3339),
	}

	if v.PaidAt != nil {
		paidAt := v.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paidAt
	}

	return resp
}
