package service

import (
	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/reconcile"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	InvoiceRepo invoice.Repository
	PaymentRepo payment.Repository

	// Payment rails and reconciliation
	Registry *provider.Registry
	Engine   *reconcile.Engine
	Poller   *reconcile.Poller
}
