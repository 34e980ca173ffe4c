package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/factuurly/factuurly/internal/domain/invoice"
	"github.com/factuurly/factuurly/internal/domain/payment"
	"github.com/factuurly/factuurly/internal/notify"
	"github.com/factuurly/factuurly/internal/testutil"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type EngineTestSuite struct {
	testutil.BaseServiceTestSuite
	engine *Engine
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	notifier := notify.NewNotifier(s.GetConfig(), s.GetPubSub(), s.GetCache(), s.GetLogger())
	s.engine = NewEngine(
		s.GetStores().InvoiceRepo,
		s.GetStores().PaymentRepo,
		notifier,
		s.GetLogger(),
	)
}

func (s *EngineTestSuite) createInvoice(id string, status types.InvoiceStatus, total decimal.Decimal) *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:            id,
		CustomerID:    "cust_test",
		InvoiceStatus: status,
		Currency:      "EUR",
		Total:         total,
		AmountPaid:    decimal.Zero,
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().InvoiceRepo.Create(s.GetContext(), inv))
	return inv
}

func (s *EngineTestSuite) createAttempt(invoiceID string, p types.ProviderType) *payment.Attempt {
	attempt := &payment.Attempt{
		ID:                "attempt_" + invoiceID,
		InvoiceID:         invoiceID,
		Provider:          p,
		ExternalPaymentID: "ext_" + invoiceID,
		NormalizedStatus:  types.NormalizedStatusPending,
		Amount:            decimal.NewFromInt(100),
		Currency:          "EUR",
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().PaymentRepo.Create(s.GetContext(), attempt))
	return attempt
}

func (s *EngineTestSuite) event(invoiceID string, source types.EventSource, status types.NormalizedStatus) *Event {
	return NewEvent(invoiceID, types.ProviderTypeNLPaymentRequest, source, status)
}

func (s *EngineTestSuite) TestPaidEventTransitionsAndNotifies() {
	inv := s.createInvoice("inv_paid", types.InvoiceStatusSent, decimal.NewFromInt(120))
	s.createAttempt(inv.ID, types.ProviderTypeNLPaymentRequest)

	ev := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid)
	ev.AmountPaid = decimal.NewFromInt(120)

	result, err := s.engine.Apply(s.GetContext(), ev)
	s.NoError(err)
	s.True(result.Updated)
	s.True(result.Notified)
	s.Equal(types.InvoiceStatusSent, result.From)
	s.Equal(types.InvoiceStatusPaid, result.To)

	got, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
	s.True(got.AmountPaid.Equal(decimal.NewFromInt(120)))
	s.NotNil(got.PaidAt)

	s.Len(s.GetPubSub().Messages(notify.TopicPaymentReceived), 1)
}

func (s *EngineTestSuite) TestDuplicatePaidEventIsNoOp() {
	inv := s.createInvoice("inv_dup", types.InvoiceStatusSent, decimal.NewFromInt(50))
	s.createAttempt(inv.ID, types.ProviderTypeNLPaymentRequest)

	first := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid)
	first.AmountPaid = decimal.NewFromInt(50)
	result, err := s.engine.Apply(s.GetContext(), first)
	s.NoError(err)
	s.True(result.Updated)

	paidAt := s.mustGetInvoice(inv.ID).PaidAt

	// a redelivered webhook or overlapping poll observes paid again
	second := s.event(inv.ID, types.EventSourcePoll, types.NormalizedStatusPaid)
	second.AmountPaid = decimal.NewFromInt(50)
	result, err = s.engine.Apply(s.GetContext(), second)
	s.NoError(err)
	s.False(result.Updated)
	s.False(result.Notified)
	s.Equal(types.InvoiceStatusPaid, result.From)
	s.Equal(types.InvoiceStatusPaid, result.To)

	got := s.mustGetInvoice(inv.ID)
	s.Equal(paidAt, got.PaidAt)
	s.Len(s.GetPubSub().Messages(notify.TopicPaymentReceived), 1)
}

func (s *EngineTestSuite) TestAmountOverridesPendingLabel() {
	inv := s.createInvoice("inv_amount", types.InvoiceStatusSent, decimal.NewFromInt(75))
	s.createAttempt(inv.ID, types.ProviderTypeNLPaymentRequest)

	// provider still reports an open request but money already arrived
	ev := s.event(inv.ID, types.EventSourcePoll, types.NormalizedStatusPending)
	ev.AmountPaid = decimal.NewFromInt(75)

	result, err := s.engine.Apply(s.GetContext(), ev)
	s.NoError(err)
	s.True(result.Updated)
	s.Equal(types.InvoiceStatusPaid, result.To)

	got := s.mustGetInvoice(inv.ID)
	s.True(got.AmountPaid.Equal(decimal.NewFromInt(75)))
}

func (s *EngineTestSuite) TestUnknownStatusDiscarded() {
	inv := s.createInvoice("inv_unknown", types.InvoiceStatusSent, decimal.NewFromInt(30))
	attempt := s.createAttempt(inv.ID, types.ProviderTypeNLPaymentRequest)

	ev := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusUnknown)
	ev.ExternalStatus = "SOMETHING_NEW"

	result, err := s.engine.Apply(s.GetContext(), ev)
	s.NoError(err)
	s.False(result.Updated)
	s.Equal(types.InvoiceStatusSent, result.To)

	got := s.mustGetInvoice(inv.ID)
	s.Equal(types.InvoiceStatusSent, got.InvoiceStatus)

	// the attempt record is not touched either
	gotAttempt, err := s.GetStores().PaymentRepo.Get(s.GetContext(), attempt.ID)
	s.NoError(err)
	s.Nil(gotAttempt.LastCheckedAt)
	s.Equal(types.NormalizedStatusPending, gotAttempt.NormalizedStatus)
}

func (s *EngineTestSuite) TestCancelledOnlyFromSent() {
	sent := s.createInvoice("inv_cancel_sent", types.InvoiceStatusSent, decimal.NewFromInt(10))
	draft := s.createInvoice("inv_cancel_draft", types.InvoiceStatusDraft, decimal.NewFromInt(10))
	overdue := s.createInvoice("inv_cancel_overdue", types.InvoiceStatusOverdue, decimal.NewFromInt(10))

	result, err := s.engine.Apply(s.GetContext(), s.event(sent.ID, types.EventSourceWebhook, types.NormalizedStatusExpired))
	s.NoError(err)
	s.True(result.Updated)
	s.Equal(types.InvoiceStatusCancelled, result.To)

	result, err = s.engine.Apply(s.GetContext(), s.event(draft.ID, types.EventSourceWebhook, types.NormalizedStatusCancelled))
	s.NoError(err)
	s.False(result.Updated)
	s.Equal(types.InvoiceStatusDraft, s.mustGetInvoice(draft.ID).InvoiceStatus)

	result, err = s.engine.Apply(s.GetContext(), s.event(overdue.ID, types.EventSourceWebhook, types.NormalizedStatusCancelled))
	s.NoError(err)
	s.False(result.Updated)
	s.Equal(types.InvoiceStatusOverdue, s.mustGetInvoice(overdue.ID).InvoiceStatus)
}

func (s *EngineTestSuite) TestPaidNeverRegresses() {
	inv := s.createInvoice("inv_final", types.InvoiceStatusSent, decimal.NewFromInt(20))

	ev := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid)
	ev.AmountPaid = decimal.NewFromInt(20)
	_, err := s.engine.Apply(s.GetContext(), ev)
	s.NoError(err)

	for _, status := range []types.NormalizedStatus{
		types.NormalizedStatusPending,
		types.NormalizedStatusCancelled,
		types.NormalizedStatusExpired,
	} {
		result, err := s.engine.Apply(s.GetContext(), s.event(inv.ID, types.EventSourcePoll, status))
		s.NoError(err)
		s.False(result.Updated, "status %s must not move a paid invoice", status)
		s.Equal(types.InvoiceStatusPaid, s.mustGetInvoice(inv.ID).InvoiceStatus)
	}
}

func (s *EngineTestSuite) TestPendingReopensOverdue() {
	inv := s.createInvoice("inv_reopen", types.InvoiceStatusOverdue, decimal.NewFromInt(40))

	result, err := s.engine.Apply(s.GetContext(), s.event(inv.ID, types.EventSourcePoll, types.NormalizedStatusPending))
	s.NoError(err)
	s.True(result.Updated)
	s.Equal(types.InvoiceStatusOverdue, result.From)
	s.Equal(types.InvoiceStatusSent, result.To)
}

func (s *EngineTestSuite) TestPendingDoesNotTouchSent() {
	inv := s.createInvoice("inv_pending_sent", types.InvoiceStatusSent, decimal.NewFromInt(40))

	result, err := s.engine.Apply(s.GetContext(), s.event(inv.ID, types.EventSourcePoll, types.NormalizedStatusPending))
	s.NoError(err)
	s.False(result.Updated)
	s.Equal(types.InvoiceStatusSent, s.mustGetInvoice(inv.ID).InvoiceStatus)
}

func (s *EngineTestSuite) TestLatePaymentAfterCancellation() {
	inv := s.createInvoice("inv_late", types.InvoiceStatusSent, decimal.NewFromInt(60))

	_, err := s.engine.Apply(s.GetContext(), s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusExpired))
	s.NoError(err)
	s.Equal(types.InvoiceStatusCancelled, s.mustGetInvoice(inv.ID).InvoiceStatus)

	// the payer completed an already-expired request; the money is real
	ev := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid)
	ev.AmountPaid = decimal.NewFromInt(60)
	result, err := s.engine.Apply(s.GetContext(), ev)
	s.NoError(err)
	s.True(result.Updated)
	s.Equal(types.InvoiceStatusPaid, result.To)
}

func (s *EngineTestSuite) TestPaidAmountFallsBackToTotal() {
	inv := s.createInvoice("inv_fallback", types.InvoiceStatusSent, decimal.NewFromInt(99))

	// the provider confirmed the label but reported no amount
	result, err := s.engine.Apply(s.GetContext(), s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid))
	s.NoError(err)
	s.True(result.Updated)

	got := s.mustGetInvoice(inv.ID)
	s.True(got.AmountPaid.Equal(decimal.NewFromInt(99)))
}

func (s *EngineTestSuite) TestAttemptBookkeeping() {
	inv := s.createInvoice("inv_attempt", types.InvoiceStatusSent, decimal.NewFromInt(15))
	attempt := s.createAttempt(inv.ID, types.ProviderTypeNLPaymentRequest)

	ev := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid)
	ev.ExternalStatus = "CLOSED"
	ev.AmountPaid = decimal.NewFromInt(15)
	_, err := s.engine.Apply(s.GetContext(), ev)
	s.NoError(err)

	got, err := s.GetStores().PaymentRepo.Get(s.GetContext(), attempt.ID)
	s.NoError(err)
	s.Equal(types.NormalizedStatusPaid, got.NormalizedStatus)
	s.Equal("CLOSED", got.ExternalStatus)
	s.NotNil(got.LastCheckedAt)

	// a later weaker observation updates the label but not the status
	later := s.event(inv.ID, types.EventSourcePoll, types.NormalizedStatusPending)
	later.ExternalStatus = "OPEN"
	_, err = s.engine.Apply(s.GetContext(), later)
	s.NoError(err)

	got, err = s.GetStores().PaymentRepo.Get(s.GetContext(), attempt.ID)
	s.NoError(err)
	s.Equal(types.NormalizedStatusPaid, got.NormalizedStatus)
	s.Equal("OPEN", got.ExternalStatus)
}

func (s *EngineTestSuite) TestConcurrentObservationsStrongestWins() {
	inv := s.createInvoice("inv_race", types.InvoiceStatusSent, decimal.NewFromInt(200))
	s.createAttempt(inv.ID, types.ProviderTypeNLPaymentRequest)

	// a webhook reporting paid races a poll reporting expired; whatever
	// the interleaving, paid must win
	var wg sync.WaitGroup
	for _, status := range []types.NormalizedStatus{
		types.NormalizedStatusPaid,
		types.NormalizedStatusExpired,
	} {
		wg.Add(1)
		go func(status types.NormalizedStatus) {
			defer wg.Done()
			ev := s.event(inv.ID, types.EventSourceWebhook, status)
			if status == types.NormalizedStatusPaid {
				ev.AmountPaid = decimal.NewFromInt(200)
			}
			_, err := s.engine.Apply(s.GetContext(), ev)
			s.NoError(err)
		}(status)
	}
	wg.Wait()

	s.Equal(types.InvoiceStatusPaid, s.mustGetInvoice(inv.ID).InvoiceStatus)
}

func (s *EngineTestSuite) TestPaidAtRecordedFromObservation() {
	inv := s.createInvoice("inv_paidat", types.InvoiceStatusSent, decimal.NewFromInt(10))

	observedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ev := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid)
	ev.AmountPaid = decimal.NewFromInt(10)
	ev.ObservedAt = observedAt

	_, err := s.engine.Apply(s.GetContext(), ev)
	s.NoError(err)

	got := s.mustGetInvoice(inv.ID)
	s.NotNil(got.PaidAt)
	s.True(got.PaidAt.Equal(observedAt))
}

// webhook deliveries and poll cycles run on contexts carrying no tenant
// or user; the engine must resolve the invoice from the row itself
func (s *EngineTestSuite) TestAppliesEventsWithoutCallerIdentity() {
	inv := s.createInvoice("inv_background", types.InvoiceStatusSent, decimal.NewFromInt(80))
	s.createAttempt(inv.ID, types.ProviderTypeNLPaymentRequest)

	ev := s.event(inv.ID, types.EventSourceWebhook, types.NormalizedStatusPaid)
	ev.AmountPaid = decimal.NewFromInt(80)

	result, err := s.engine.Apply(context.Background(), ev)
	s.NoError(err)
	s.True(result.Updated)
	s.True(result.Notified)
	s.Equal(types.InvoiceStatusPaid, result.To)

	got := s.mustGetInvoice(inv.ID)
	s.Equal(types.InvoiceStatusPaid, got.InvoiceStatus)
	s.True(got.AmountPaid.Equal(decimal.NewFromInt(80)))
}

func (s *EngineTestSuite) TestEventValidation() {
	_, err := s.engine.Apply(s.GetContext(), &Event{})
	s.Error(err)

	_, err = s.engine.Apply(s.GetContext(), s.event("inv_missing", types.EventSourcePoll, types.NormalizedStatusPaid))
	s.Error(err)
}

func (s *EngineTestSuite) mustGetInvoice(id string) *invoice.Invoice {
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return inv
}
