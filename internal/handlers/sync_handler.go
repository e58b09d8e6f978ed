package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"qonto-reconciliation-backend/internal/models"
	"qonto-reconciliation-backend/internal/services/qontosync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type Syncer interface {
	SyncTransactions(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
	SyncInvoices(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
	SyncCreditNotes(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
	SyncQuotes(ctx context.Context, opts qontosync.Options) (*qontosync.Result, error)
	LastRun(ctx context.Context, resource string) (*models.SyncRun, error)
}

type SyncHandler struct {
	syncer Syncer
	log    zerolog.Logger
}

func NewSyncHandler(syncer Syncer, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{syncer: syncer, log: log.With().Str("handler", "sync").Logger()}
}

// Trigger runs a sync inline and returns the run summary.
// A failed run still answers with its summary so the caller sees the errors.
func (h *SyncHandler) Trigger(c *gin.Context) {
	opts := qontosync.Options{Scope: models.SyncScope(c.Query("scope"))}

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			badRequest(c, "invalid from date, expected YYYY-MM-DD")
			return
		}
		opts.FromDate = &from
	}
	if raw := c.Query("auto_create_expenses"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "auto_create_expenses must be a boolean")
			return
		}
		opts.AutoCreateExpenses = v
	}

	var (
		result *qontosync.Result
		err    error
	)
	ctx := c.Request.Context()
	switch resource := c.DefaultQuery("resource", models.ResourceTransactions); resource {
	case models.ResourceTransactions:
		result, err = h.syncer.SyncTransactions(ctx, opts)
	case models.ResourceClientInvoices:
		result, err = h.syncer.SyncInvoices(ctx, opts)
	case models.ResourceCreditNotes:
		result, err = h.syncer.SyncCreditNotes(ctx, opts)
	case models.ResourceQuotes:
		result, err = h.syncer.SyncQuotes(ctx, opts)
	default:
		badRequest(c, "unknown resource "+strconv.Quote(resource))
		return
	}
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, result)
}

func (h *SyncHandler) Status(c *gin.Context) {
	run, err := h.syncer.LastRun(c.Request.Context(), c.Query("resource"))
	if err != nil {
		respondError(c, requestLog(c), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lastSync": run})
}
