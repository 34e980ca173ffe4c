package service

import (
	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/reconcile"
)

// NewServiceParams assembles the common dependency bundle injected into
// every service constructor
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	invoiceRepo invoice.Repository,
	paymentRepo payment.Repository,
	registry *provider.Registry,
	engine *reconcile.Engine,
	poller *reconcile.Poller,
) ServiceParams {
	return ServiceParams{
		Logger:      logger,
		Config:      config,
		InvoiceRepo: invoiceRepo,
		PaymentRepo: paymentRepo,
		Registry:    registry,
		Engine:      engine,
		Poller:      poller,
	}
}
