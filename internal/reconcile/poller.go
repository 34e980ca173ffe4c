package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// Poller is the correctness backstop for missed or slow webhook delivery.
// Every cycle it re-queries the provider for each outstanding invoice and
// feeds the result to the engine as an ordinary reconciliation event. Right
// after a payment request is created it follows a short fast cadence for
// that one invoice, tapering to the baseline interval afterwards.
type Poller struct {
	cfg         config.PollingConfig
	invoiceRepo invoice.Repository
	attemptRepo payment.Repository
	registry    *provider.Registry
	engine      *Engine
	logger      *logger.Logger

	mu     sync.Mutex
	bursts map[string]struct{}
}

func NewPoller(
	cfg *config.Configuration,
	invoiceRepo invoice.Repository,
	attemptRepo payment.Repository,
	registry *provider.Registry,
	engine *Engine,
	logger *logger.Logger,
) *Poller {
	return &Poller{
		cfg:         cfg.Polling,
		invoiceRepo: invoiceRepo,
		attemptRepo: attemptRepo,
		registry:    registry,
		engine:      engine,
		logger:      logger,
		bursts:      make(map[string]struct{}),
	}
}

// Run polls at the baseline interval until the context is cancelled
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Infow("poller started",
		"interval", p.cfg.Interval,
		"max_concurrent", p.cfg.MaxConcurrent)

	for {
		select {
		case <-ctx.Done():
			p.logger.Infow("poller stopped")
			return nil
		case <-ticker.C:
			p.Cycle(ctx)
		}
	}
}

// Cycle polls every outstanding invoice once. Provider calls run on a
// bounded pool; one invoice failing never blocks the others.
func (p *Poller) Cycle(ctx context.Context) {
	outstanding, err := p.outstanding(ctx)
	if err != nil {
		p.logger.Errorw("failed to list outstanding invoices", "error", err)
		return
	}
	if len(outstanding) == 0 {
		return
	}

	workers := pool.New().WithMaxGoroutines(p.cfg.MaxConcurrent)
	for _, inv := range outstanding {
		inv := inv
		workers.Go(func() {
			if err := p.pollInvoice(ctx, inv.ID); err != nil {
				p.logger.Warnw("poll cycle skipping invoice",
					"invoice_id", inv.ID,
					"error", err)
			}
		})
	}
	workers.Wait()
}

// outstanding returns the invoices still awaiting funds. Overdue invoices
// keep their active attempt and stay polled, so a late payment or a
// re-opened request is still picked up.
func (p *Poller) outstanding(ctx context.Context) ([]*invoice.Invoice, error) {
	sent, err := p.invoiceRepo.ListByStatus(ctx, types.InvoiceStatusSent)
	if err != nil {
		return nil, err
	}
	overdue, err := p.invoiceRepo.ListByStatus(ctx, types.InvoiceStatusOverdue)
	if err != nil {
		return nil, err
	}
	return append(sent, overdue...), nil
}

// pollInvoice performs one status observation for one invoice
func (p *Poller) pollInvoice(ctx context.Context, invoiceID string) error {
	attempt, err := p.attemptRepo.GetActiveByInvoice(ctx, invoiceID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}

	// bank transfers have no external system to ask
	if attempt.Provider == types.ProviderTypeBankTransfer {
		return nil
	}

	adapter, err := p.registry.Get(attempt.Provider)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	status, err := adapter.GetPaymentStatus(callCtx, attempt.ExternalPaymentID)
	if err != nil {
		p.recordFailure(ctx, attempt, err)
		return err
	}

	event := NewEvent(invoiceID, attempt.Provider, types.EventSourcePoll, status.Status)
	event.ExternalStatus = status.ExternalStatus
	event.AmountPaid = status.AmountPaid

	_, err = p.engine.Apply(ctx, event)
	return err
}

// recordFailure stores the failed provider call on the attempt so it is
// visible on inspection. Failures self-heal on the next successful cycle.
func (p *Poller) recordFailure(ctx context.Context, attempt *payment.Attempt, cause error) {
	now := time.Now().UTC()
	attempt.LastCheckedAt = &now
	msg := cause.Error()
	attempt.ErrorMessage = &msg

	if err := p.attemptRepo.Update(ctx, attempt); err != nil {
		p.logger.Errorw("failed to record poll failure",
			"invoice_id", attempt.InvoiceID,
			"error", err)
	}
}

// KickBurst starts the fast cadence for a freshly created payment request.
// It returns immediately; the burst goroutine stops when the invoice leaves
// the outstanding set, when the attempt budget runs out, or when the
// context is cancelled. At most one burst runs per invoice.
func (p *Poller) KickBurst(ctx context.Context, invoiceID string) {
	if p.cfg.BurstInterval <= 0 || p.cfg.BurstAttempts <= 0 {
		return
	}

	p.mu.Lock()
	if _, running := p.bursts[invoiceID]; running {
		p.mu.Unlock()
		return
	}
	p.bursts[invoiceID] = struct{}{}
	p.mu.Unlock()

	go p.burst(ctx, invoiceID)
}

func (p *Poller) burst(ctx context.Context, invoiceID string) {
	defer func() {
		p.mu.Lock()
		delete(p.bursts, invoiceID)
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.cfg.BurstInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < p.cfg.BurstAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		inv, err := p.invoiceRepo.GetByID(ctx, invoiceID)
		if err != nil {
			p.logger.Warnw("burst poll lost its invoice",
				"invoice_id", invoiceID,
				"error", err)
			return
		}
		if inv.InvoiceStatus.IsTerminal() {
			return
		}

		if err := p.pollInvoice(ctx, invoiceID); err != nil {
			p.logger.Debugw("burst poll attempt failed",
				"invoice_id", invoiceID,
				"attempt", attempt+1,
				"error", err)
		}
	}
}
