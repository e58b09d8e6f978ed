package handler

import (
	"context"
	"net/http"

	"qonto-reconciliation-backend/internal/clients/qonto"
	"qonto-reconciliation-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const idempotencyKeyHeader = "Idempotency-Key"

type QuoteService interface {
	Create(ctx context.Context, params qonto.CreateQuoteParams, idempotencyKey, actor string) (*models.FinancialDocument, error)
	Finalize(ctx context.Context, id uuid.UUID, actor string) (*models.FinancialDocument, error)
}

type QuoteHandler struct {
	quotes QuoteService
}

func NewQuoteHandler(quotes QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

// Create forwards the caller's Idempotency-Key so a retried request does not
// create a second quote at Qonto.
func (h *QuoteHandler) Create(c *gin.Context) {
	var params qonto.CreateQuoteParams
	if err := c.ShouldBindJSON(&params); err != nil {
		badRequest(c, "invalid quote payload")
		return
	}

	doc, err := h.quotes.Create(c.Request.Context(), params, c.GetHeader(idempotencyKeyHeader), actor(c))
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "quote created", "quote": doc})
}

func (h *QuoteHandler) Finalize(c *gin.Context) {
	id, ok := parseID(c, "quote")
	if !ok {
		return
	}
	doc, err := h.quotes.Finalize(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "quote finalized", "quote": doc})
}
