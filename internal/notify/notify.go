package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/factuurly/factuurly/internal/cache"
	"github.com/factuurly/factuurly/internal/config"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/pubsub"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// TopicPaymentReceived carries one message per notified paid transition
const TopicPaymentReceived = "invoice.payment.received"

// PaymentReceivedEvent is the payload published when an invoice is paid
type PaymentReceivedEvent struct {
	ID         string          `json:"id"`
	InvoiceID  string          `json:"invoice_id"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Currency   string          `json:"currency"`
	Source     string          `json:"source"`
	PaidAt     time.Time       `json:"paid_at"`
}

// Notifier emits at most one payment-received signal per invoice per
// cool-down window. Webhook and poll channels can both detect the same paid
// transition; suppression keeps the user from seeing it twice. This is a
// best-effort UX guarantee, the state transition itself is already idempotent.
type Notifier struct {
	publisher pubsub.Publisher
	cache     cache.Cache
	coolDown  time.Duration
	logger    *logger.Logger
}

func NewNotifier(
	cfg *config.Configuration,
	publisher pubsub.Publisher,
	cache cache.Cache,
	logger *logger.Logger,
) *Notifier {
	return &Notifier{
		publisher: publisher,
		cache:     cache,
		coolDown:  cfg.Notification.CoolDown,
		logger:    logger,
	}
}

// ShouldNotify reports whether a payment-received signal for this invoice is
// allowed right now, and if so records a suppression entry for the cool-down
// window.
func (n *Notifier) ShouldNotify(ctx context.Context, invoiceID string) bool {
	key := cache.GenerateKey(cache.PrefixNotificationSuppress, invoiceID)
	if _, found := n.cache.Get(ctx, key); found {
		return false
	}
	n.cache.Set(ctx, key, true, n.coolDown)
	return true
}

// PaymentReceived publishes a payment-received event unless one was already
// emitted for this invoice within the cool-down window. Returns whether a
// notification went out.
func (n *Notifier) PaymentReceived(ctx context.Context, event *PaymentReceivedEvent) (bool, error) {
	if !n.ShouldNotify(ctx, event.InvoiceID) {
		n.logger.Debugw("payment notification suppressed",
			"invoice_id", event.InvoiceID)
		return false, nil
	}

	if event.ID == "" {
		event.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return false, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	msg := message.NewMessage(event.ID, payload)
	if err := n.publisher.Publish(ctx, TopicPaymentReceived, msg); err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to publish payment notification").
			Mark(ierr.ErrSystem)
	}

	n.logger.Infow("payment received notification published",
		"invoice_id", event.InvoiceID,
		"amount_paid", event.AmountPaid,
		"currency", event.Currency,
		"source", event.Source)
	return true, nil
}
