package provider

import (
	"context"

	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest is the generic "create payment" request an adapter
// translates into a provider-specific call. The invoice reference travels in
// the provider metadata end-to-end so webhooks can be resolved back.
type CreatePaymentRequest struct {
	InvoiceID     string
	InvoiceNumber string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	// RedirectURL is where the provider sends the payer after checkout
	RedirectURL string
	Metadata    types.Metadata
}

// CreatePaymentResult holds the provider-issued identifiers for a new payment
type CreatePaymentResult struct {
	ExternalPaymentID string
	PaymentLink       string
}

// StatusResult is a normalized status observation for one external payment
type StatusResult struct {
	Status types.NormalizedStatus
	// ExternalStatus is the provider-native label, kept for the attempt record
	ExternalStatus string
	// AmountPaid is the amount the provider reports as received, zero if none
	AmountPaid decimal.Decimal
}

// Adapter is implemented once per payment rail. Adapters are pure and
// stateless: they translate requests, normalize responses and never touch
// the invoice or the payment record store.
type Adapter interface {
	// Provider returns the rail this adapter serves
	Provider() types.ProviderType

	// CreatePayment creates a payment request at the provider and returns
	// the external payment id and the link the payer should follow
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResult, error)

	// GetPaymentStatus re-queries the provider for the current status of an
	// earlier payment request
	GetPaymentStatus(ctx context.Context, externalPaymentID string) (*StatusResult, error)
}

// ResolveStatus applies the amount-overrides-label rule: some sandboxes
// report a nominally open request that has nonetheless received funds, so a
// non-zero paid amount is authoritative over a pending label.
func ResolveStatus(label types.NormalizedStatus, amountPaid decimal.Decimal) types.NormalizedStatus {
	if label == types.NormalizedStatusPending && amountPaid.GreaterThan(decimal.Zero) {
		return types.NormalizedStatusPaid
	}
	return label
}
