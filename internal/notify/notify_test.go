package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/factuurly/factuurly/internal/testutil"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type NotifierTestSuite struct {
	testutil.BaseServiceTestSuite
	notifier *Notifier
}

func TestNotifier(t *testing.T) {
	suite.Run(t, new(NotifierTestSuite))
}

func (s *NotifierTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.notifier = NewNotifier(s.GetConfig(), s.GetPubSub(), s.GetCache(), s.GetLogger())
}

func (s *NotifierTestSuite) paymentEvent(invoiceID string) *PaymentReceivedEvent {
	return &PaymentReceivedEvent{
		InvoiceID:  invoiceID,
		AmountPaid: decimal.NewFromInt(120),
		Currency:   "EUR",
		Source:     types.EventSourceWebhook.String(),
		PaidAt:     time.Now().UTC(),
	}
}

func (s *NotifierTestSuite) TestPublishesPaymentReceived() {
	notified, err := s.notifier.PaymentReceived(s.GetContext(), s.paymentEvent("inv_1"))
	s.NoError(err)
	s.True(notified)

	msgs := s.GetPubSub().Messages(TopicPaymentReceived)
	s.Require().Len(msgs, 1)

	var event PaymentReceivedEvent
	s.NoError(json.Unmarshal(msgs[0].Payload, &event))
	s.Equal("inv_1", event.InvoiceID)
	s.True(event.AmountPaid.Equal(decimal.NewFromInt(120)))
	s.Equal("EUR", event.Currency)
	s.NotEmpty(event.ID)
}

func (s *NotifierTestSuite) TestSuppressesDuplicateWithinCoolDown() {
	notified, err := s.notifier.PaymentReceived(s.GetContext(), s.paymentEvent("inv_dup"))
	s.NoError(err)
	s.True(notified)

	// the poll channel confirms the same payment moments later
	notified, err = s.notifier.PaymentReceived(s.GetContext(), s.paymentEvent("inv_dup"))
	s.NoError(err)
	s.False(notified)

	s.Len(s.GetPubSub().Messages(TopicPaymentReceived), 1)
}

func (s *NotifierTestSuite) TestSuppressionIsPerInvoice() {
	notified, err := s.notifier.PaymentReceived(s.GetContext(), s.paymentEvent("inv_a"))
	s.NoError(err)
	s.True(notified)

	notified, err = s.notifier.PaymentReceived(s.GetContext(), s.paymentEvent("inv_b"))
	s.NoError(err)
	s.True(notified)

	s.Len(s.GetPubSub().Messages(TopicPaymentReceived), 2)
}

func (s *NotifierTestSuite) TestNotifiesAgainAfterCoolDown() {
	cfg := *s.GetConfig()
	cfg.Notification.CoolDown = 10 * time.Millisecond
	notifier := NewNotifier(&cfg, s.GetPubSub(), s.GetCache(), s.GetLogger())

	notified, err := notifier.PaymentReceived(s.GetContext(), s.paymentEvent("inv_window"))
	s.NoError(err)
	s.True(notified)

	time.Sleep(20 * time.Millisecond)

	notified, err = notifier.PaymentReceived(s.GetContext(), s.paymentEvent("inv_window"))
	s.NoError(err)
	s.True(notified)

	s.Len(s.GetPubSub().Messages(TopicPaymentReceived), 2)
}
