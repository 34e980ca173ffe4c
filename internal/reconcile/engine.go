package reconcile

import (
	"context"
	"time"

	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/notify"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// Result describes what one event application did to an invoice
type Result struct {
	InvoiceID string              `json:"invoice_id"`
	From      types.InvoiceStatus `json:"from"`
	To        types.InvoiceStatus `json:"to"`
	// Updated is false for no-op applications (idempotent redelivery)
	Updated bool `json:"updated"`
	// Notified is true when a payment-received signal went out
	Notified bool `json:"notified"`
}

// Engine owns the canonical invoice payment status. Every observation from
// the webhook and poll channels goes through Apply, which serializes events
// per invoice so two near-simultaneous observations cannot both commit.
// Events for different invoices proceed in parallel.
type Engine struct {
	invoiceRepo invoice.Repository
	attemptRepo payment.Repository
	notifier    *notify.Notifier
	logger      *logger.Logger
	locks       *keyedMutex
}

func NewEngine(
	invoiceRepo invoice.Repository,
	attemptRepo payment.Repository,
	notifier *notify.Notifier,
	logger *logger.Logger,
) *Engine {
	return &Engine{
		invoiceRepo: invoiceRepo,
		attemptRepo: attemptRepo,
		notifier:    notifier,
		logger:      logger,
		locks:       newKeyedMutex(),
	}
}

// Apply reconciles one observation into the canonical invoice status.
// The transition rules, in order:
//
//	paid and not already paid        -> paid, amount and paid-at recorded
//	cancelled or expired, from sent  -> cancelled
//	pending, from draft or overdue   -> sent
//	unknown                          -> logged and discarded
//
// A computed target equal to the current status is a no-op, which makes
// redelivered webhooks and overlapping poll cycles safe. A paid invoice
// never regresses, whatever arrives afterwards.
func (e *Engine) Apply(ctx context.Context, event *Event) (*Result, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(event.InvoiceID)
	defer unlock()

	// webhook deliveries and poll cycles carry no caller identity, so the
	// invoice is resolved by id alone and the rest of the application runs
	// under the tenant the row belongs to
	inv, err := e.invoiceRepo.GetByID(ctx, event.InvoiceID)
	if err != nil {
		return nil, err
	}
	ctx = types.SetTenantID(ctx, inv.TenantID)

	// the received amount is authoritative over a pending label
	status := provider.ResolveStatus(event.Status, event.AmountPaid)

	if status == types.NormalizedStatusUnknown {
		e.logger.Warnw("discarding unknown status observation",
			"invoice_id", event.InvoiceID,
			"provider", event.Provider,
			"source", event.Source,
			"external_status", event.ExternalStatus)
		return &Result{
			InvoiceID: inv.ID,
			From:      inv.InvoiceStatus,
			To:        inv.InvoiceStatus,
		}, nil
	}

	if err := e.recordObservation(ctx, event, status); err != nil {
		// attempt bookkeeping must not block the canonical transition
		e.logger.Errorw("failed to record observation on payment attempt",
			"invoice_id", event.InvoiceID,
			"error", err)
	}

	result := &Result{
		InvoiceID: inv.ID,
		From:      inv.InvoiceStatus,
		To:        inv.InvoiceStatus,
	}

	target, ok := targetStatus(inv.InvoiceStatus, status)
	if !ok || target == inv.InvoiceStatus {
		e.logger.Debugw("no-op reconciliation event",
			"invoice_id", inv.ID,
			"invoice_status", inv.InvoiceStatus,
			"observed_status", status,
			"source", event.Source)
		return result, nil
	}

	inv.InvoiceStatus = target
	if target == types.InvoiceStatusPaid {
		inv.AmountPaid = paidAmount(event, inv)
		if inv.PaidAt == nil {
			paidAt := event.ObservedAt
			if paidAt.IsZero() {
				paidAt = time.Now().UTC()
			}
			inv.PaidAt = &paidAt
		}
	}

	if err := e.invoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	result.To = target
	result.Updated = true

	e.logger.Infow("invoice status transitioned",
		"invoice_id", inv.ID,
		"from", result.From,
		"to", result.To,
		"source", event.Source,
		"provider", event.Provider)

	if target == types.InvoiceStatusPaid {
		notified, err := e.notifier.PaymentReceived(ctx, &notify.PaymentReceivedEvent{
			InvoiceID:  inv.ID,
			AmountPaid: inv.AmountPaid,
			Currency:   inv.Currency,
			Source:     event.Source.String(),
			PaidAt:     *inv.PaidAt,
		})
		if err != nil {
			e.logger.Errorw("failed to publish payment notification",
				"invoice_id", inv.ID,
				"error", err)
		}
		result.Notified = notified
	}

	return result, nil
}

// targetStatus computes the canonical status an observation should produce,
// or reports that no transition applies
func targetStatus(current types.InvoiceStatus, observed types.NormalizedStatus) (types.InvoiceStatus, bool) {
	switch observed {
	case types.NormalizedStatusPaid:
		if current != types.InvoiceStatusPaid {
			return types.InvoiceStatusPaid, true
		}
	case types.NormalizedStatusCancelled, types.NormalizedStatusExpired:
		if current == types.InvoiceStatusSent {
			return types.InvoiceStatusCancelled, true
		}
	case types.NormalizedStatusPending:
		// covers re-opening after a stale overdue mark; terminal
		// statuses are never left on a pending observation
		if current == types.InvoiceStatusDraft || current == types.InvoiceStatusOverdue {
			return types.InvoiceStatusSent, true
		}
	}
	return current, false
}

// paidAmount prefers the provider-reported amount, falling back to the
// invoice total when the provider only confirmed the label
func paidAmount(event *Event, inv *invoice.Invoice) decimal.Decimal {
	if event.AmountPaid.GreaterThan(decimal.Zero) {
		return event.AmountPaid
	}
	return inv.Total
}

// recordObservation updates the active payment attempt with what was just
// observed. The attempt's own normalized status never regresses from paid.
func (e *Engine) recordObservation(ctx context.Context, event *Event, status types.NormalizedStatus) error {
	attempt, err := e.attemptRepo.GetActiveByInvoice(ctx, event.InvoiceID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	attempt.LastCheckedAt = &now
	if event.ExternalStatus != "" {
		attempt.ExternalStatus = event.ExternalStatus
	}
	if status.Rank() > attempt.NormalizedStatus.Rank() {
		attempt.NormalizedStatus = status
	}
	attempt.ErrorMessage = nil

	return e.attemptRepo.Update(ctx, attempt)
}
