package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/factuurly/factuurly/internal/domain/invoice"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/samber/lo"
)

// InMemoryInvoiceStore implements invoice.Repository with the same
// version-guarded update semantics as the postgres implementation, so
// concurrency behavior can be exercised without a database
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
	mu sync.Mutex
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").
			WithHint("Invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}

	stored := *inv
	return s.InMemoryStore.Create(ctx, inv.ID, &stored)
}

// Get scopes the lookup to the tenant in context, mirroring the postgres
// store, so code running without a caller identity cannot accidentally
// rely on it
func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			WithReportableDetails(map[string]any{"invoice_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return inv, nil
}

func (s *InMemoryInvoiceStore) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			WithReportableDetails(map[string]any{"invoice_id": id}).
			Mark(ierr.ErrNotFound)
	}

	copied := *inv
	return &copied, nil
}

// Update commits only if the caller read the current version, mirroring the
// optimistic lock in the postgres store
func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").
			WithHint("Invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.InMemoryStore.Get(ctx, inv.ID)
	if err != nil {
		return ierr.NewError("invoice not found").
			WithHint("Invoice not found").
			Mark(ierr.ErrNotFound)
	}

	if current.Version != inv.Version {
		return ierr.NewError("invoice was modified concurrently").
			WithHint("Please retry the operation").
			WithReportableDetails(map[string]any{
				"invoice_id":       inv.ID,
				"expected_version": inv.Version,
				"current_version":  current.Version,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	stored := *inv
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, inv.ID, &stored)
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	items, err := s.InMemoryStore.List(ctx, filter, invoiceFilterFn, invoiceSortFn)
	if err != nil {
		return nil, err
	}

	out := make([]*invoice.Invoice, len(items))
	for i, inv := range items {
		copied := *inv
		out[i] = &copied
	}
	return out, nil
}

func (s *InMemoryInvoiceStore) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, invoiceFilterFn)
}

func (s *InMemoryInvoiceStore) ListByStatus(ctx context.Context, status types.InvoiceStatus) ([]*invoice.Invoice, error) {
	return s.List(ctx, &types.InvoiceFilter{
		QueryFilter:   types.NewNoLimitQueryFilter(),
		InvoiceStatus: lo.ToPtr(status.String()),
	})
}

func invoiceFilterFn(ctx context.Context, inv *invoice.Invoice, filter interface{}) bool {
	f, ok := filter.(*types.InvoiceFilter)
	if !ok || f == nil {
		return true
	}

	if len(f.InvoiceIDs) > 0 && !lo.Contains(f.InvoiceIDs, inv.ID) {
		return false
	}
	if f.CustomerID != nil && inv.CustomerID != *f.CustomerID {
		return false
	}
	if f.InvoiceStatus != nil && inv.InvoiceStatus.String() != *f.InvoiceStatus {
		return false
	}
	return true
}

func invoiceSortFn(i, j *invoice.Invoice) bool {
	return i.CreatedAt.After(j.CreatedAt)
}
