package handler

import (
	"context"
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/services/matching"
	service "qonto-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Matcher runs one automatic matching pass
type Matcher interface {
	Run(ctx context.Context) (matching.Result, error)
}

type ReconciliationHandler struct {
	service *service.ReconciliationService
	matcher Matcher
	log     zerolog.Logger
}

func NewReconciliationHandler(s *service.ReconciliationService, matcher Matcher, log zerolog.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		service: s,
		matcher: matcher,
		log:     log.With().Str("handler", "reconciliation").Logger(),
	}
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *ReconciliationHandler) ReconcileInvoice(c *gin.Context) {
	invoiceID, ok := parseID(c, "invoice")
	if !ok {
		return
	}

	var payload struct {
		TransactionID string `json:"transactionId" binding:"required,uuid"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "transactionId is required and must be a UUID")
		return
	}
	txID := uuid.MustParse(payload.TransactionID)

	result, err := h.service.ReconcileInvoice(c.Request.Context(), invoiceID, txID, actor(c))
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "invoice reconciled",
		"invoice":     result.Invoice,
		"transaction": result.Transaction,
	})
}

func (h *ReconciliationHandler) ValidateToDraft(c *gin.Context) {
	id, ok := parseID(c, "invoice")
	if !ok {
		return
	}
	doc, err := h.service.ValidateToDraft(c.Request.Context(), id, actor(c))
	h.respondInvoice(c, doc, err, "invoice validated to draft")
}

func (h *ReconciliationHandler) FinalizeInvoice(c *gin.Context) {
	id, ok := parseID(c, "invoice")
	if !ok {
		return
	}
	doc, err := h.service.FinalizeInvoice(c.Request.Context(), id, actor(c))
	h.respondInvoice(c, doc, err, "invoice finalized")
}

func (h *ReconciliationHandler) SendInvoice(c *gin.Context) {
	id, ok := parseID(c, "invoice")
	if !ok {
		return
	}

	var payload struct {
		Emails []string `json:"emails" binding:"required,min=1,dive,email"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "emails must be a non-empty list of addresses")
		return
	}

	doc, err := h.service.SendInvoice(c.Request.Context(), id, payload.Emails, actor(c))
	h.respondInvoice(c, doc, err, "invoice sent")
}

func (h *ReconciliationHandler) CancelInvoice(c *gin.Context) {
	id, ok := parseID(c, "invoice")
	if !ok {
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&payload)

	doc, err := h.service.CancelInvoice(c.Request.Context(), id, actor(c), payload.Reason)
	h.respondInvoice(c, doc, err, "invoice cancelled")
}

func (h *ReconciliationHandler) ArchiveInvoice(c *gin.Context) {
	id, ok := parseID(c, "invoice")
	if !ok {
		return
	}
	doc, err := h.service.ArchiveInvoice(c.Request.Context(), id, actor(c))
	h.respondInvoice(c, doc, err, "invoice archived")
}

func (h *ReconciliationHandler) UnarchiveInvoice(c *gin.Context) {
	id, ok := parseID(c, "invoice")
	if !ok {
		return
	}
	doc, err := h.service.UnarchiveInvoice(c.Request.Context(), id, actor(c))
	h.respondInvoice(c, doc, err, "invoice unarchived")
}

func (h *ReconciliationHandler) respondInvoice(c *gin.Context, doc *models.FinancialDocument, err error, msg string) {
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "invoice": doc})
}

// SearchInvoices backs the manual reconciliation picker
func (h *ReconciliationHandler) SearchInvoices(c *gin.Context) {
	var statuses []string
	if raw := c.Query("workflow_status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}
	includeArchived, _ := strconv.ParseBool(c.DefaultQuery("include_archived", "false"))

	docs, err := h.service.SearchInvoices(c.Request.Context(), c.Query("q"), statuses, includeArchived)
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": docs})
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	status := c.Query("status")
	cursor := c.Query("cursor")
	search := c.Query("search")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx := c.Request.Context()
	items, nextCursor, hasMore, err := h.service.ListTransactions(ctx, status, cursor, limit, search)
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	stats, err := h.service.TransactionStats(ctx)
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
		"stats":       stats,
	})
}

func (h *ReconciliationHandler) TransactionStats(c *gin.Context) {
	stats, err := h.service.TransactionStats(c.Request.Context())
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

var missingInvoiceColumns = []string{
	"id", "external_transaction_id", "emitted_at", "amount", "currency",
	"side", "label", "counterparty_name", "bank_account_id",
}

// MissingInvoices lists unmatched transactions without a receipt, as JSON or CSV
func (h *ReconciliationHandler) MissingInvoices(c *gin.Context) {
	txs, err := h.service.ListMissingInvoices(c.Request.Context())
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}

	if c.Query("format") != "csv" {
		c.JSON(http.StatusOK, gin.H{"items": txs, "count": len(txs)})
		return
	}

	filename := "missing-invoices-" + time.Now().UTC().Format("2006-01-02") + ".csv"
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(missingInvoiceColumns)
	for _, tx := range txs {
		_ = w.Write([]string{
			tx.ID.String(),
			tx.ExternalTransactionID,
			tx.EmittedAt.UTC().Format(time.RFC3339),
			tx.Amount.StringFixed(2),
			tx.Currency,
			string(tx.Side),
			tx.Label,
			tx.CounterpartyName,
			tx.BankAccountID,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log := requestLog(c)
		log.Error().Err(err).Msg("failed to write missing invoices csv")
	}
}

func (h *ReconciliationHandler) IgnoreTransaction(c *gin.Context) {
	id, ok := parseID(c, "transaction")
	if !ok {
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&payload)

	tx, err := h.service.IgnoreTransaction(c.Request.Context(), id, actor(c), payload.Reason)
	h.respondTransaction(c, tx, err, "transaction ignored")
}

func (h *ReconciliationHandler) UnignoreTransaction(c *gin.Context) {
	id, ok := parseID(c, "transaction")
	if !ok {
		return
	}
	tx, err := h.service.UnignoreTransaction(c.Request.Context(), id, actor(c))
	h.respondTransaction(c, tx, err, "transaction unignored")
}

func (h *ReconciliationHandler) UpdateVat(c *gin.Context) {
	var payload struct {
		TransactionID string           `json:"transaction_id" binding:"required,uuid"`
		VatRate       *decimal.Decimal `json:"vat_rate"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	tx, err := h.service.UpdateManualVat(c.Request.Context(), uuid.MustParse(payload.TransactionID), payload.VatRate, actor(c))
	h.respondTransaction(c, tx, err, "vat updated")
}

func (h *ReconciliationHandler) TransactionHistory(c *gin.Context) {
	id, ok := parseID(c, "transaction")
	if !ok {
		return
	}
	entries, err := h.service.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

func (h *ReconciliationHandler) respondTransaction(c *gin.Context, tx *models.BankTransaction, err error, msg string) {
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "transaction": tx})
}

// RunMatching triggers an automatic matching pass outside of a sync
func (h *ReconciliationHandler) RunMatching(c *gin.Context) {
	result, err := h.matcher.Run(c.Request.Context())
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	h.log.Info().
		Int("matched", result.Matched).
		Int("ambiguous", result.Ambiguous).
		Msg("manual matching run")
	c.JSON(http.StatusOK, gin.H{"message": "matching completed", "result": result})
}
