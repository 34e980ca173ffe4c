package invoice

import (
	"context"

	"github.com/factuurly/factuurly/internal/types"
)

// Repository defines the interface for invoice persistence.
// Update must be an atomic read-modify-write guarded by the Version column
// so concurrent transitions for the same invoice cannot both commit.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	// GetByID looks the invoice up by id alone, without tenant scoping.
	// The reconciliation channels (webhooks, poll cycles) carry no caller
	// identity; invoice ids are globally unique and the row itself names
	// the tenant.
	GetByID(ctx context.Context, id string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, filter *types.InvoiceFilter) ([]*Invoice, error)
	Count(ctx context.Context, filter *types.InvoiceFilter) (int, error)
	// ListByStatus returns invoices with the given canonical status,
	// used by the poller to find outstanding invoices
	ListByStatus(ctx context.Context, status types.InvoiceStatus) ([]*Invoice, error)
}
