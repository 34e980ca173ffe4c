package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/notify"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/testutil"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type PollerTestSuite struct {
	testutil.BaseServiceTestSuite
	engine  *Engine
	adapter *testutil.MockAdapter
	poller  *Poller
	cfg     config.Configuration
}

func TestPoller(t *testing.T) {
	suite.Run(t, new(PollerTestSuite))
}

func (s *PollerTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	s.cfg = *s.GetConfig()
	s.cfg.Polling.BurstInterval = 5 * time.Millisecond
	s.cfg.Polling.BurstAttempts = 40
	s.cfg.Polling.RequestTimeout = time.Second

	notifier := notify.NewNotifier(s.GetConfig(), s.GetPubSub(), s.GetCache(), s.GetLogger())
	s.engine = NewEngine(
		s.GetStores().InvoiceRepo,
		s.GetStores().PaymentRepo,
		notifier,
		s.GetLogger(),
	)

	s.adapter = testutil.NewMockAdapter(types.ProviderTypeNLPaymentRequest)
	registry := provider.NewRegistry(
		s.adapter,
		testutil.NewMockAdapter(types.ProviderTypeBankTransfer),
	)

	s.poller = NewPoller(
		&s.cfg,
		s.GetStores().InvoiceRepo,
		s.GetStores().PaymentRepo,
		registry,
		s.engine,
		s.GetLogger(),
	)
}

func (s *PollerTestSuite) createOutstanding(id string, p types.ProviderType) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:            id,
		CustomerID:    "cust_test",
		InvoiceStatus: types.InvoiceStatusSent,
		Currency:      "EUR",
		Total:         decimal.NewFromInt(100),
		AmountPaid:    decimal.Zero,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().InvoiceRepo.Create(s.GetContext(), inv))

	attempt := &payment.Attempt{
		ID:                "attempt_" + id,
		InvoiceID:         id,
		Provider:          p,
		ExternalPaymentID: "ext_" + id,
		NormalizedStatus:  types.NormalizedStatusPending,
		Amount:            inv.Total,
		Currency:          "EUR",
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().PaymentRepo.Create(s.GetContext(), attempt))
	return inv
}

func (s *PollerTestSuite) TestCycleTransitionsPaidInvoice() {
	inv := s.createOutstanding("inv_cycle", types.ProviderTypeNLPaymentRequest)

	s.adapter.StatusFn = func(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
		return &provider.StatusResult{
			Status:         types.NormalizedStatusPaid,
			ExternalStatus: "CLOSED",
			AmountPaid:     decimal.NewFromInt(100),
		}, nil
	}

	s.poller.Cycle(s.GetContext())

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
	s.Equal(1, s.adapter.StatusCalls())
}

func (s *PollerTestSuite) TestCycleIsolatesFailures() {
	bad := s.createOutstanding("inv_bad", types.ProviderTypeNLPaymentRequest)
	good := s.createOutstanding("inv_good", types.ProviderTypeNLPaymentRequest)

	s.adapter.StatusFn = func(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
		if externalPaymentID == "ext_inv_bad" {
			return nil, ierr.NewError("provider unavailable").Mark(ierr.ErrTransient)
		}
		return &provider.StatusResult{
			Status:     types.NormalizedStatusPaid,
			AmountPaid: decimal.NewFromInt(100),
		}, nil
	}

	s.poller.Cycle(s.GetContext())

	gotGood, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), good.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, gotGood.InvoiceStatus)

	gotBad, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), bad.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusSent, gotBad.InvoiceStatus)

	// the failure is visible on the attempt and self-heals later
	attempt, err := s.GetStores().PaymentRepo.GetActiveByInvoice(s.GetContext(), bad.ID)
	s.NoError(err)
	s.NotNil(attempt.ErrorMessage)
	s.NotNil(attempt.LastCheckedAt)
}

func (s *PollerTestSuite) TestCycleSkipsBankTransfers() {
	s.createOutstanding("inv_manual", types.ProviderTypeBankTransfer)

	s.poller.Cycle(s.GetContext())

	s.Equal(0, s.adapter.StatusCalls())
}

func (s *PollerTestSuite) TestCycleSkipsInvoicesWithoutAttempt() {
	inv := &invoice.Invoice{
		ID:            "inv_no_attempt",
		CustomerID:    "cust_test",
		InvoiceStatus: types.InvoiceStatusSent,
		Currency:      "EUR",
		Total:         decimal.NewFromInt(10),
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().InvoiceRepo.Create(s.GetContext(), inv))

	s.poller.Cycle(s.GetContext())

	s.Equal(0, s.adapter.StatusCalls())
}

func (s *PollerTestSuite) TestCyclePollsOverdueInvoices() {
	inv := s.createOutstanding("inv_overdue_poll", types.ProviderTypeNLPaymentRequest)
	inv.InvoiceStatus = types.InvoiceStatusOverdue
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	s.adapter.StatusFn = func(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
		return &provider.StatusResult{
			Status:     types.NormalizedStatusPaid,
			AmountPaid: decimal.NewFromInt(100),
		}, nil
	}

	s.poller.Cycle(s.GetContext())

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
}

// the poll loop runs on the process context, which carries no tenant
func (s *PollerTestSuite) TestCycleRunsWithoutCallerIdentity() {
	inv := s.createOutstanding("inv_cycle_bg", types.ProviderTypeNLPaymentRequest)

	s.adapter.StatusFn = func(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
		return &provider.StatusResult{
			Status:     types.NormalizedStatusPaid,
			AmountPaid: decimal.NewFromInt(100),
		}, nil
	}

	s.poller.Cycle(context.Background())

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
}

func (s *PollerTestSuite) TestBurstStopsOnTerminalStatus() {
	inv := s.createOutstanding("inv_burst", types.ProviderTypeNLPaymentRequest)

	s.adapter.StatusFn = func(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
		return &provider.StatusResult{
			Status:     types.NormalizedStatusPaid,
			AmountPaid: decimal.NewFromInt(100),
		}, nil
	}

	s.poller.KickBurst(s.GetContext(), inv.ID)

	s.Require().Eventually(func() bool {
		got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
		return err == nil && got.InvoiceStatus == types.InvoiceStatusPaid
	}, time.Second, 5*time.Millisecond)

	// the burst exits once the invoice is terminal
	s.Require().Eventually(func() bool {
		s.poller.mu.Lock()
		defer s.poller.mu.Unlock()
		_, running := s.poller.bursts[inv.ID]
		return !running
	}, time.Second, 5*time.Millisecond)

	calls := s.adapter.StatusCalls()
	s.Less(calls, s.cfg.Polling.BurstAttempts)
}

func (s *PollerTestSuite) TestBurstRunsOncePerInvoice() {
	inv := s.createOutstanding("inv_burst_once", types.ProviderTypeNLPaymentRequest)

	ctx, cancel := context.WithCancel(s.GetContext())
	defer cancel()

	s.poller.KickBurst(ctx, inv.ID)
	s.poller.KickBurst(ctx, inv.ID)

	s.poller.mu.Lock()
	running := len(s.poller.bursts)
	s.poller.mu.Unlock()
	s.Equal(1, running)
}
