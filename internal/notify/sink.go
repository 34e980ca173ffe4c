package notify

import (
	"context"
	"encoding/json"

	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/pubsub"
)

// Sink consumes payment-received events and surfaces them. The default sink
// only logs; an email or push channel can subscribe to the same topic
// independently.
type Sink struct {
	subscriber pubsub.Subscriber
	logger     *logger.Logger
}

func NewSink(subscriber pubsub.Subscriber, logger *logger.Logger) *Sink {
	return &Sink{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Run consumes events until the context is cancelled or the subscription
// channel closes
func (s *Sink) Run(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, TopicPaymentReceived)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var event PaymentReceivedEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				s.logger.Errorw("failed to decode payment notification",
					"message_id", msg.UUID,
					"error", err)
				msg.Ack()
				continue
			}

			s.logger.Infow("payment received",
				"invoice_id", event.InvoiceID,
				"amount_paid", event.AmountPaid,
				"currency", event.Currency,
				"source", event.Source)
			msg.Ack()
		}
	}
}
