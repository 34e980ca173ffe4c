package payment

import (
	"time"

	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// Attempt is the record of one provider-specific payment request created
// against an invoice. Exactly one attempt per invoice is active at a time;
// creating a new one supersedes the prior one for reconciliation purposes.
// Attempts are never deleted, only superseded.
type Attempt struct {
	// Unique identifier for this payment attempt
	ID string `db:"id" json:"id"`
	// The invoice this attempt collects payment for
	InvoiceID string `db:"invoice_id" json:"invoice_id"`
	// The payment rail used for this attempt
	Provider types.ProviderType `db:"provider" json:"provider"`
	// Identifier of the payment in the external system
	ExternalPaymentID string `db:"external_payment_id" json:"external_payment_id"`
	// Link the payer follows to complete the payment (optional for bank transfers)
	PaymentLink string `db:"payment_link" json:"payment_link,omitempty"`
	// The provider-native status string as last observed (optional)
	ExternalStatus string `db:"external_status" json:"external_status,omitempty"`
	// The last known provider-agnostic status
	NormalizedStatus types.NormalizedStatus `db:"normalized_status" json:"normalized_status"`
	// The requested amount
	Amount decimal.Decimal `db:"amount" json:"amount"`
	// Three-letter ISO currency code
	Currency string `db:"currency" json:"currency"`
	// Active is cleared when a newer attempt supersedes this one
	Active bool `db:"active" json:"active"`
	// When a newer attempt superseded this one (optional)
	SupersededAt *time.Time `db:"superseded_at" json:"superseded_at,omitempty"`
	// When the poller or a webhook last observed provider status (optional)
	LastCheckedAt *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	// Details of the last failed provider call (optional)
	ErrorMessage *string `db:"error_message" json:"error_message,omitempty"`
	// Additional custom key-value pairs (optional)
	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`

	types.BaseModel
}

// Validate validates the payment attempt
func (a *Attempt) Validate() error {
	if a.InvoiceID == "" {
		return ierr.NewError("invalid invoice id").
			WithHint("Invoice id is required").
			Mark(ierr.ErrValidation)
	}
	if err := a.Provider.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Provider is invalid").
			Mark(ierr.ErrValidation)
	}
	if a.ExternalPaymentID == "" {
		return ierr.NewError("invalid external payment id").
			WithHint("External payment id is required").
			Mark(ierr.ErrValidation)
	}
	if a.Amount.IsZero() || a.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if a.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the payment attempt
func (a *Attempt) TableName() string {
	return "payment_attempts"
}
