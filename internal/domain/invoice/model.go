package invoice

import (
	"time"

	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice represents the invoice domain model. Once a payment attempt exists
// the canonical status is owned by the reconciliation engine; the CRUD layer
// only touches draft invoices.
type Invoice struct {
	// Unique identifier for this invoice
	ID string `db:"id" json:"id"`
	// The customer this invoice is addressed to
	CustomerID string `db:"customer_id" json:"customer_id"`
	// Human-facing invoice number, e.g. FD-X7K2M1 (optional until finalized)
	InvoiceNumber *string `db:"invoice_number" json:"invoice_number,omitempty"`
	// The canonical payment state (draft, sent, paid, cancelled, overdue)
	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`
	// Three-letter ISO currency code
	Currency string `db:"currency" json:"currency"`
	// The invoiced total
	Total decimal.Decimal `db:"total" json:"total"`
	// The amount actually received, recorded on the paid transition
	AmountPaid decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	// Free-form description shown on the payment request
	Description string `db:"description" json:"description,omitempty"`
	// Payment rail of the active payment attempt (optional)
	PaymentProvider *types.ProviderType `db:"payment_provider" json:"payment_provider,omitempty"`
	// Identifier of the payment in the external system (optional)
	ExternalPaymentID *string `db:"external_payment_id" json:"external_payment_id,omitempty"`
	// Link the payer follows to complete the payment (optional)
	PaymentLink *string `db:"payment_link" json:"payment_link,omitempty"`
	// When payment is due; used for the overdue transition (optional)
	DueDate *time.Time `db:"due_date" json:"due_date,omitempty"`
	// Set exactly once, on the first paid observation (optional)
	PaidAt *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	// Additional custom key-value pairs (optional)
	Metadata types.Metadata `db:"metadata" json:"metadata,omitempty"`
	// Version increments on every committed status transition
	Version int `db:"version" json:"version"`

	types.BaseModel
}

// Validate validates the invoice
func (i *Invoice) Validate() error {
	if i.CustomerID == "" {
		return ierr.NewError("invalid customer id").
			WithHint("Customer id is required").
			Mark(ierr.ErrValidation)
	}
	if i.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	if i.Total.IsNegative() {
		return ierr.NewError("invalid total").
			WithHint("Invoice total must not be negative").
			Mark(ierr.ErrValidation)
	}
	if err := i.InvoiceStatus.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Invoice status is invalid").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the invoice
func (i *Invoice) TableName() string {
	return "invoices"
}
