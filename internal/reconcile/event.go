package reconcile

import (
	"time"

	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// Event is one status observation for an invoice, produced either by a
// verified webhook delivery or by a poll cycle. Both channels feed the same
// engine; the engine does not care which one got there first.
type Event struct {
	ID        string
	InvoiceID string
	// Provider that produced the observation
	Provider types.ProviderType
	// Source is webhook or poll
	Source types.EventSource
	// Status is the provider-agnostic status observed
	Status types.NormalizedStatus
	// ExternalStatus is the provider-native label, for the attempt record
	ExternalStatus string
	// AmountPaid is the amount the provider reports as received
	AmountPaid decimal.Decimal
	ObservedAt time.Time
}

// NewEvent creates a reconciliation event with a fresh id and timestamp
func NewEvent(invoiceID string, p types.ProviderType, source types.EventSource, status types.NormalizedStatus) *Event {
	return &Event{
		ID:         types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RECONCILIATION),
		InvoiceID:  invoiceID,
		Provider:   p,
		Source:     source,
		Status:     status,
		AmountPaid: decimal.Zero,
		ObservedAt: time.Now().UTC(),
	}
}

// Validate validates the reconciliation event
func (e *Event) Validate() error {
	if e.InvoiceID == "" {
		return ierr.NewError("invalid invoice id").
			WithHint("Invoice id is required").
			Mark(ierr.ErrValidation)
	}
	if err := e.Provider.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Provider is invalid").
			Mark(ierr.ErrValidation)
	}
	if err := e.Status.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Status is invalid").
			Mark(ierr.ErrValidation)
	}
	return nil
}
