package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	handler "qonto-reconciliation-backend/internal/handlers"
	service "qonto-reconciliation-backend/internal/services/reconciliation"
)

// Dependencies are built once in cmd/server and shared by every handler
type Dependencies struct {
	Reconciliation *service.ReconciliationService
	Matcher        handler.Matcher
	Syncer         handler.Syncer
	Quotes         handler.QuoteService
	Attachments    handler.AttachmentOpener
	Health         handler.HealthChecker
	Log            zerolog.Logger
}

func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	reconHandler := handler.NewReconciliationHandler(deps.Reconciliation, deps.Matcher, deps.Log)
	syncHandler := handler.NewSyncHandler(deps.Syncer, deps.Log)
	quoteHandler := handler.NewQuoteHandler(deps.Quotes)
	attachmentHandler := handler.NewAttachmentHandler(deps.Attachments)
	healthHandler := handler.NewHealthHandler(deps.Health)

	api := r.Group("/api")

	// Health check
	api.GET("/health", healthHandler.Check)

	// Qonto sync
	api.POST("/sync", syncHandler.Trigger)
	api.GET("/sync", syncHandler.Status)

	api.POST("/matching/run", reconHandler.RunMatching)

	api.GET("/attachments/:id", attachmentHandler.Get)

	// Invoice routes
	invoices := api.Group("/invoices")
	{
		invoices.GET("", reconHandler.SearchInvoices)
		invoices.POST("/:id/reconcile", reconHandler.ReconcileInvoice)
		invoices.POST("/:id/validate-to-draft", reconHandler.ValidateToDraft)
		invoices.POST("/:id/finalize", reconHandler.FinalizeInvoice)
		invoices.POST("/:id/send", reconHandler.SendInvoice)
		invoices.POST("/:id/cancel", reconHandler.CancelInvoice)
		invoices.POST("/:id/archive", reconHandler.ArchiveInvoice)
		invoices.POST("/:id/unarchive", reconHandler.UnarchiveInvoice)
	}

	quotes := api.Group("/quotes")
	{
		quotes.POST("", quoteHandler.Create)
		quotes.POST("/:id/finalize", quoteHandler.Finalize)
	}

	// Transaction-level routes
	tx := api.Group("/transactions")
	tx.GET("", reconHandler.ListTransactions)
	tx.GET("/stats", reconHandler.TransactionStats)
	tx.GET("/missing-invoices", reconHandler.MissingInvoices)
	tx.POST("/update-vat", reconHandler.UpdateVat)
	tx.GET("/:id/history", reconHandler.TransactionHistory)
	tx.POST("/:id/ignore", reconHandler.IgnoreTransaction)
	tx.POST("/:id/unignore", reconHandler.UnignoreTransaction)
}
