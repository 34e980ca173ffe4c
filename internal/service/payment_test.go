package service

import (
	"context"
	"testing"

	"github.com/factuurly/factuurly/internal/api/dto"
	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/notify"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/reconcile"
	"github.com/factuurly/factuurly/internal/testutil"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type PaymentServiceSuite struct {
	testutil.BaseServiceTestSuite
	service PaymentService
	adapter *testutil.MockAdapter
	bank    *testutil.MockAdapter
}

func TestPaymentService(t *testing.T) {
	suite.Run(t, new(PaymentServiceSuite))
}

func (s *PaymentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	s.adapter = testutil.NewMockAdapter(types.ProviderTypeNLPaymentRequest)
	s.bank = testutil.NewMockAdapter(types.ProviderTypeBankTransfer)
	registry := provider.NewRegistry(s.adapter, s.bank)

	notifier := notify.NewNotifier(s.GetConfig(), s.GetPubSub(), s.GetCache(), s.GetLogger())
	engine := reconcile.NewEngine(
		s.GetStores().InvoiceRepo,
		s.GetStores().PaymentRepo,
		notifier,
		s.GetLogger(),
	)

	s.service = NewPaymentService(ServiceParams{
		Logger:      s.GetLogger(),
		Config:      s.GetConfig(),
		InvoiceRepo: s.GetStores().InvoiceRepo,
		PaymentRepo: s.GetStores().PaymentRepo,
		Registry:    registry,
		Engine:      engine,
	})
}

func (s *PaymentServiceSuite) createInvoice(id string, status types.InvoiceStatus) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:            id,
		CustomerID:    "cust_test",
		InvoiceStatus: status,
		Currency:      "EUR",
		Total:         decimal.NewFromInt(120),
		AmountPaid:    decimal.Zero,
		Description:   "Consulting, June",
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().InvoiceRepo.Create(s.GetContext(), inv))
	return inv
}

func (s *PaymentServiceSuite) TestCreatePaymentLink() {
	inv := s.createInvoice("inv_link", types.InvoiceStatusDraft)

	resp, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeNLPaymentRequest,
	})
	s.NoError(err)
	s.Equal(inv.ID, resp.InvoiceID)
	s.Equal("ext_"+inv.ID, resp.ExternalPaymentID)
	s.NotEmpty(resp.PaymentLink)
	s.Equal(types.InvoiceStatusSent, resp.InvoiceStatus)
	s.Equal(1, s.adapter.CreateCalls())

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusSent, got.InvoiceStatus)
	s.Equal(types.ProviderTypeNLPaymentRequest, *got.PaymentProvider)
	s.Equal("ext_"+inv.ID, *got.ExternalPaymentID)

	attempt, err := s.GetStores().PaymentRepo.GetActiveByInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(attempt.Active)
	s.Equal(types.NormalizedStatusPending, attempt.NormalizedStatus)
	s.True(attempt.Amount.Equal(inv.Total))
}

func (s *PaymentServiceSuite) TestCreatePaymentLinkSupersedesPriorAttempt() {
	inv := s.createInvoice("inv_switch", types.InvoiceStatusDraft)

	_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeNLPaymentRequest,
	})
	s.NoError(err)

	// the customer switches rails; the old request stops being reconciled
	s.bank.CreateFn = func(ctx context.Context, req *provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
		return &provider.CreatePaymentResult{ExternalPaymentID: "btr_manual"}, nil
	}
	_, err = s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeBankTransfer,
	})
	s.NoError(err)

	active, err := s.GetStores().PaymentRepo.GetActiveByInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.ProviderTypeBankTransfer, active.Provider)
	s.Equal("btr_manual", active.ExternalPaymentID)

	attempts, err := s.service.GetAttempts(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Len(attempts, 2)
	activeCount := lo.CountBy(attempts, func(a *payment.Attempt) bool { return a.Active })
	s.Equal(1, activeCount)
}

func (s *PaymentServiceSuite) TestCreatePaymentLinkRejectsSettledInvoice() {
	for _, status := range []types.InvoiceStatus{types.InvoiceStatusPaid, types.InvoiceStatusCancelled} {
		inv := s.createInvoice("inv_settled_"+string(status), status)

		_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
			InvoiceID: inv.ID,
			Provider:  types.ProviderTypeNLPaymentRequest,
		})
		s.Require().Error(err)
		s.True(ierr.IsInvalidOperation(err))
	}
	s.Equal(0, s.adapter.CreateCalls())
}

func (s *PaymentServiceSuite) TestCreatePaymentLinkRejectsUnregisteredProvider() {
	inv := s.createInvoice("inv_norail", types.InvoiceStatusDraft)

	_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeLocalBankRedirect,
	})
	s.Require().Error(err)
	s.True(ierr.IsConfiguration(err))
}

func (s *PaymentServiceSuite) TestCheckPaymentStatusAppliesObservation() {
	inv := s.createInvoice("inv_check", types.InvoiceStatusDraft)
	_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeNLPaymentRequest,
	})
	s.NoError(err)

	s.adapter.StatusFn = func(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
		return &provider.StatusResult{
			Status:         types.NormalizedStatusPaid,
			ExternalStatus: "CLOSED",
			AmountPaid:     decimal.NewFromInt(120),
		}, nil
	}

	resp, err := s.service.CheckPaymentStatus(s.GetContext(), &dto.CheckPaymentStatusRequest{InvoiceID: inv.ID})
	s.NoError(err)
	s.True(resp.Updated)
	s.Equal(types.InvoiceStatusPaid, resp.InvoiceStatus)
	s.Equal(types.NormalizedStatusPaid, resp.NormalizedStatus)
	s.True(resp.AmountPaid.Equal(decimal.NewFromInt(120)))

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
}

func (s *PaymentServiceSuite) TestCheckPaymentStatusRejectsStaleReference() {
	inv := s.createInvoice("inv_stale", types.InvoiceStatusDraft)
	_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeNLPaymentRequest,
	})
	s.NoError(err)

	_, err = s.service.CheckPaymentStatus(s.GetContext(), &dto.CheckPaymentStatusRequest{
		InvoiceID:         inv.ID,
		ExternalPaymentID: "ext_superseded",
	})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *PaymentServiceSuite) TestCheckPaymentStatusWithoutAttempt() {
	inv := s.createInvoice("inv_noattempt", types.InvoiceStatusDraft)

	_, err := s.service.CheckPaymentStatus(s.GetContext(), &dto.CheckPaymentStatusRequest{InvoiceID: inv.ID})
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *PaymentServiceSuite) TestMarkInvoicePaidDefaultsToTotal() {
	inv := s.createInvoice("inv_manual", types.InvoiceStatusDraft)
	_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeBankTransfer,
	})
	s.NoError(err)

	resp, err := s.service.MarkInvoicePaid(s.GetContext(), inv.ID, &dto.MarkPaidRequest{})
	s.NoError(err)
	s.True(resp.Updated)
	s.Equal(types.InvoiceStatusPaid, resp.InvoiceStatus)
	s.True(resp.AmountPaid.Equal(inv.Total))

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(got.AmountPaid.Equal(inv.Total))
	s.NotNil(got.PaidAt)
}

func (s *PaymentServiceSuite) TestMarkInvoicePaidWithExplicitAmount() {
	inv := s.createInvoice("inv_partial", types.InvoiceStatusDraft)
	_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeBankTransfer,
	})
	s.NoError(err)

	amount := decimal.NewFromInt(100)
	resp, err := s.service.MarkInvoicePaid(s.GetContext(), inv.ID, &dto.MarkPaidRequest{AmountPaid: &amount})
	s.NoError(err)
	s.True(resp.AmountPaid.Equal(amount))

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(got.AmountPaid.Equal(amount))
}

func (s *PaymentServiceSuite) TestMarkInvoicePaidRejectsNonPositiveAmount() {
	inv := s.createInvoice("inv_zero", types.InvoiceStatusDraft)
	_, err := s.service.CreatePaymentLink(s.GetContext(), &dto.CreatePaymentLinkRequest{
		InvoiceID: inv.ID,
		Provider:  types.ProviderTypeBankTransfer,
	})
	s.NoError(err)

	_, err = s.service.MarkInvoicePaid(s.GetContext(), inv.ID, &dto.MarkPaidRequest{AmountPaid: &decimal.Zero})
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}
