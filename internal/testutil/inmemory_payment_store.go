package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Attempt]
	mu sync.Mutex
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore[*payment.Attempt](),
	}
}

// Create stores the attempt and supersedes any previously active attempt for
// the same invoice, like the postgres store does in one transaction
func (s *InMemoryPaymentStore) Create(ctx context.Context, attempt *payment.Attempt) error {
	if attempt == nil {
		return ierr.NewError("attempt cannot be nil").
			WithHint("Payment attempt cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	active, err := s.getActiveLocked(ctx, attempt.InvoiceID)
	if err == nil {
		active.Active = false
		active.SupersededAt = &now
		if err := s.InMemoryStore.Update(ctx, active.ID, active); err != nil {
			return err
		}
	}

	stored := *attempt
	stored.Active = true
	return s.InMemoryStore.Create(ctx, attempt.ID, &stored)
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Attempt, error) {
	attempt, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("payment attempt not found").
			WithHint("Payment attempt not found").
			WithReportableDetails(map[string]any{"attempt_id": id}).
			Mark(ierr.ErrNotFound)
	}

	copied := *attempt
	return &copied, nil
}

func (s *InMemoryPaymentStore) Update(ctx context.Context, attempt *payment.Attempt) error {
	if attempt == nil {
		return ierr.NewError("attempt cannot be nil").
			WithHint("Payment attempt cannot be nil").
			Mark(ierr.ErrValidation)
	}

	stored := *attempt
	stored.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, attempt.ID, &stored)
}

func (s *InMemoryPaymentStore) List(ctx context.Context, filter *types.PaymentAttemptFilter) ([]*payment.Attempt, error) {
	items, err := s.InMemoryStore.List(ctx, filter, attemptFilterFn, attemptSortFn)
	if err != nil {
		return nil, err
	}

	out := make([]*payment.Attempt, len(items))
	for i, a := range items {
		copied := *a
		out[i] = &copied
	}
	return out, nil
}

func (s *InMemoryPaymentStore) GetActiveByInvoice(ctx context.Context, invoiceID string) (*payment.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, err := s.getActiveLocked(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	copied := *attempt
	return &copied, nil
}

func (s *InMemoryPaymentStore) getActiveLocked(ctx context.Context, invoiceID string) (*payment.Attempt, error) {
	items, err := s.InMemoryStore.List(ctx, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	for _, a := range items {
		if a.InvoiceID == invoiceID && a.Active {
			return a, nil
		}
	}

	return nil, ierr.NewError("no active payment attempt").
		WithHint("No active payment attempt for this invoice").
		WithReportableDetails(map[string]any{"invoice_id": invoiceID}).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryPaymentStore) GetByExternalID(ctx context.Context, provider types.ProviderType, externalPaymentID string) (*payment.Attempt, error) {
	items, err := s.InMemoryStore.List(ctx, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	for _, a := range items {
		if a.Provider == provider && a.ExternalPaymentID == externalPaymentID {
			copied := *a
			return &copied, nil
		}
	}

	return nil, ierr.NewError("payment attempt not found").
		WithHint("No payment attempt with this external id").
		WithReportableDetails(map[string]any{
			"provider":            provider.String(),
			"external_payment_id": externalPaymentID,
		}).
		Mark(ierr.ErrNotFound)
}

func attemptFilterFn(ctx context.Context, a *payment.Attempt, filter interface{}) bool {
	f, ok := filter.(*types.PaymentAttemptFilter)
	if !ok || f == nil {
		return true
	}

	if f.InvoiceID != nil && a.InvoiceID != *f.InvoiceID {
		return false
	}
	if f.Provider != nil && a.Provider.String() != *f.Provider {
		return false
	}
	if f.ActiveOnly && !a.Active {
		return false
	}
	return true
}

func attemptSortFn(i, j *payment.Attempt) bool {
	return i.CreatedAt.After(j.CreatedAt)
}
