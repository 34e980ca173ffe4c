package api

import (
	v1 "github.com/factuurly/factuurly/internal/api/v1"
	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/rest/middleware"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Health  *v1.HealthHandler
	Invoice *v1.InvoiceHandler
	Payment *v1.PaymentHandler
	Webhook *v1.WebhookHandler
}

func NewRouter(handlers Handlers, cfg *config.Configuration, logger *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware,
		middleware.CORSMiddleware,
		middleware.SentryMiddleware(cfg),
		middleware.ErrorHandler(),
	)

	router.GET("/health", handlers.Health.Health)

	// webhooks authenticate by signature, not by caller identity
	router.POST("/webhooks/:provider", handlers.Webhook.HandleWebhook)

	private := router.Group("/v1")
	private.Use(middleware.AuthenticateMiddleware(cfg, logger))
	{
		invoices := private.Group("/invoices")
		{
			invoices.POST("", handlers.Invoice.CreateInvoice)
			invoices.GET("", handlers.Invoice.ListInvoices)
			invoices.GET("/:id", handlers.Invoice.GetInvoice)
			invoices.PUT("/:id", handlers.Invoice.UpdateInvoice)
			invoices.POST("/:id/finalize", handlers.Invoice.FinalizeInvoice)
			invoices.POST("/:id/overdue", handlers.Invoice.MarkOverdue)
			invoices.POST("/:id/mark-paid", handlers.Payment.MarkInvoicePaid)
			invoices.GET("/:id/attempts", handlers.Payment.GetAttempts)
		}

		payments := private.Group("/payments")
		{
			payments.POST("/links", handlers.Payment.CreatePaymentLink)
			payments.POST("/status", handlers.Payment.CheckPaymentStatus)
		}
	}

	return router
}
