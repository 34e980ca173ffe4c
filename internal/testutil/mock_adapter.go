package testutil

import (
	"context"
	"sync"

	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
)

// MockAdapter is a scriptable provider adapter for tests. Set StatusFn or
// CreateFn to control responses; calls are counted for assertions.
type MockAdapter struct {
	ProviderType types.ProviderType
	CreateFn     func(ctx context.Context, req *provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error)
	StatusFn     func(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error)

	mu          sync.Mutex
	createCalls int
	statusCalls int
}

func NewMockAdapter(p types.ProviderType) *MockAdapter {
	return &MockAdapter{ProviderType: p}
}

func (m *MockAdapter) Provider() types.ProviderType {
	return m.ProviderType
}

func (m *MockAdapter) CreatePayment(ctx context.Context, req *provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()

	if m.CreateFn != nil {
		return m.CreateFn(ctx, req)
	}
	return &provider.CreatePaymentResult{
		ExternalPaymentID: "ext_" + req.InvoiceID,
		PaymentLink:       "https://pay.example.com/" + req.InvoiceID,
	}, nil
}

func (m *MockAdapter) GetPaymentStatus(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
	m.mu.Lock()
	m.statusCalls++
	m.mu.Unlock()

	if m.StatusFn != nil {
		return m.StatusFn(ctx, externalPaymentID)
	}
	return nil, ierr.NewError("no status scripted").
		WithHint("Set StatusFn on the mock adapter").
		Mark(ierr.ErrProvider)
}

// CreateCalls returns how many times CreatePayment was invoked
func (m *MockAdapter) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// StatusCalls returns how many times GetPaymentStatus was invoked
func (m *MockAdapter) StatusCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls
}
