package memory

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a payment can land in the instant between process start and the
// notification sink subscribing; the channel must hold it until then
func TestLateSubscriberReceivesEarlierMessages(t *testing.T) {
	ps := NewPubSub(logger.GetDefaultLogger())
	defer ps.Close()

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"invoice_id":"inv_1"}`))
	require.NoError(t, ps.Publish(context.Background(), "invoice.payment.received", msg))

	ch, err := ps.Subscribe(context.Background(), "invoice.payment.received")
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, msg.Payload, got.Payload)
		got.Ack()
	case <-time.After(time.Second):
		t.Fatal("message published before subscribe was not delivered")
	}
}
