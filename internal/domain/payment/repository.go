package payment

import (
	"context"

	"github.com/factuurly/factuurly/internal/types"
)

// Repository defines the interface for payment attempt persistence.
// The reconciliation engine is the only writer.
type Repository interface {
	// Create stores a new attempt and marks any previously active attempt
	// for the same invoice as superseded, atomically
	Create(ctx context.Context, attempt *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	Update(ctx context.Context, attempt *Attempt) error
	List(ctx context.Context, filter *types.PaymentAttemptFilter) ([]*Attempt, error)
	// GetActiveByInvoice returns the single active attempt for an invoice
	GetActiveByInvoice(ctx context.Context, invoiceID string) (*Attempt, error)
	// GetByExternalID resolves a provider-pushed event back to an attempt
	GetByExternalID(ctx context.Context, provider types.ProviderType, externalPaymentID string) (*Attempt, error)
}
