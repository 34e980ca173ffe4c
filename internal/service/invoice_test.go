package service

import (
	"testing"
	"time"

	"github.com/factuurly/factuurly/internal/api/dto"
	"github.com/factuurly/factuurly/internal/domain/invoice"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/testutil"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service InvoiceService
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	s.service = NewInvoiceService(ServiceParams{
		Logger:      s.GetLogger(),
		Config:      s.GetConfig(),
		InvoiceRepo: s.GetStores().InvoiceRepo,
		PaymentRepo: s.GetStores().PaymentRepo,
	})
}

func (s *InvoiceServiceSuite) createDraft(total decimal.Decimal, due *time.Time) *dto.InvoiceResponse {
	resp, err := s.service.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		CustomerID:  "cust_test",
		Currency:    "EUR",
		Total:       total,
		Description: "Web design retainer",
		DueDate:     due,
	})
	s.Require().NoError(err)
	return resp
}

func (s *InvoiceServiceSuite) TestCreateInvoice() {
	resp := s.createDraft(decimal.NewFromInt(250), nil)

	s.NotEmpty(resp.ID)
	s.Equal(types.InvoiceStatusDraft, resp.InvoiceStatus)
	s.Nil(resp.InvoiceNumber)
	s.True(resp.AmountPaid.IsZero())
	s.Equal(types.DefaultTenantID, resp.TenantID)
}

func (s *InvoiceServiceSuite) TestCreateInvoiceValidation() {
	cases := []dto.CreateInvoiceRequest{
		{Currency: "EUR", Total: decimal.NewFromInt(10)},                          // no customer
		{CustomerID: "cust_test", Currency: "EURO", Total: decimal.NewFromInt(1)}, // bad currency
		{CustomerID: "cust_test", Currency: "EUR", Total: decimal.Zero},           // zero total
		{CustomerID: "cust_test", Currency: "EUR", Total: decimal.NewFromInt(-5)}, // negative
	}
	for i := range cases {
		_, err := s.service.CreateInvoice(s.GetContext(), &cases[i])
		s.Require().Error(err, "case %d must fail", i)
		s.True(ierr.IsValidation(err))
	}
}

func (s *InvoiceServiceSuite) TestUpdateInvoiceDraftOnly() {
	resp := s.createDraft(decimal.NewFromInt(100), nil)

	updated, err := s.service.UpdateInvoice(s.GetContext(), resp.ID, &dto.UpdateInvoiceRequest{
		Description: lo.ToPtr("Updated description"),
		Total:       lo.ToPtr(decimal.NewFromInt(150)),
	})
	s.NoError(err)
	s.Equal("Updated description", updated.Description)
	s.True(updated.Total.Equal(decimal.NewFromInt(150)))

	// once sent, edits are rejected
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.ID)
	s.NoError(err)
	inv.InvoiceStatus = types.InvoiceStatusSent
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	_, err = s.service.UpdateInvoice(s.GetContext(), resp.ID, &dto.UpdateInvoiceRequest{
		Description: lo.ToPtr("Too late"),
	})
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *InvoiceServiceSuite) TestFinalizeInvoice() {
	resp := s.createDraft(decimal.NewFromInt(100), nil)

	finalized, err := s.service.FinalizeInvoice(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Require().NotNil(finalized.InvoiceNumber)
	s.Contains(*finalized.InvoiceNumber, "FD-")

	// finalizing again keeps the number
	again, err := s.service.FinalizeInvoice(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(*finalized.InvoiceNumber, *again.InvoiceNumber)
}

func (s *InvoiceServiceSuite) TestMarkOverdue() {
	resp := s.createDraft(decimal.NewFromInt(100), nil)

	// only sent invoices go overdue
	_, err := s.service.MarkOverdue(s.GetContext(), resp.ID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidOperation(err))

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.ID)
	s.NoError(err)
	inv.InvoiceStatus = types.InvoiceStatusSent
	s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))

	marked, err := s.service.MarkOverdue(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusOverdue, marked.InvoiceStatus)
}

func (s *InvoiceServiceSuite) TestSweepOverdue() {
	pastDue := s.createDraft(decimal.NewFromInt(10), lo.ToPtr(time.Now().UTC().Add(-24*time.Hour)))
	notDue := s.createDraft(decimal.NewFromInt(10), lo.ToPtr(time.Now().UTC().Add(24*time.Hour)))
	noDue := s.createDraft(decimal.NewFromInt(10), nil)

	for _, id := range []string{pastDue.ID, notDue.ID, noDue.ID} {
		inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), id)
		s.NoError(err)
		inv.InvoiceStatus = types.InvoiceStatusSent
		s.NoError(s.GetStores().InvoiceRepo.Update(s.GetContext(), inv))
	}

	// drafts past their due date are not swept
	draftPastDue := s.createDraft(decimal.NewFromInt(10), lo.ToPtr(time.Now().UTC().Add(-24*time.Hour)))

	count, err := s.service.SweepOverdue(s.GetContext())
	s.NoError(err)
	s.Equal(1, count)

	s.Equal(types.InvoiceStatusOverdue, s.mustGet(pastDue.ID).InvoiceStatus)
	s.Equal(types.InvoiceStatusSent, s.mustGet(notDue.ID).InvoiceStatus)
	s.Equal(types.InvoiceStatusSent, s.mustGet(noDue.ID).InvoiceStatus)
	s.Equal(types.InvoiceStatusDraft, s.mustGet(draftPastDue.ID).InvoiceStatus)
}

func (s *InvoiceServiceSuite) TestListInvoices() {
	for i := 0; i < 3; i++ {
		s.createDraft(decimal.NewFromInt(int64(10+i)), nil)
	}

	resp, err := s.service.ListInvoices(s.GetContext(), nil)
	s.NoError(err)
	s.Equal(3, resp.Total)
	s.Len(resp.Items, 3)

	filtered, err := s.service.ListInvoices(s.GetContext(), &types.InvoiceFilter{
		QueryFilter:   types.NewDefaultQueryFilter(),
		InvoiceStatus: lo.ToPtr(types.InvoiceStatusDraft.String()),
	})
	s.NoError(err)
	s.Equal(3, filtered.Total)

	filtered, err = s.service.ListInvoices(s.GetContext(), &types.InvoiceFilter{
		QueryFilter:   types.NewDefaultQueryFilter(),
		InvoiceStatus: lo.ToPtr(types.InvoiceStatusPaid.String()),
	})
	s.NoError(err)
	s.Equal(0, filtered.Total)
}

func (s *InvoiceServiceSuite) TestGetInvoiceNotFound() {
	_, err := s.service.GetInvoice(s.GetContext(), "inv_missing")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *InvoiceServiceSuite) mustGet(id string) *invoice.Invoice {
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return inv
}
