package tikkie

import (
	"context"
	"testing"

	"github.com/factuurly/factuurly/internal/config"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePaymentRejectsNonPositiveAmount(t *testing.T) {
	adapter := NewAdapter(config.GetDefaultConfig(), nil, logger.GetDefaultLogger())

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := adapter.CreatePayment(context.Background(), &provider.CreatePaymentRequest{
			InvoiceID: "inv_1",
			Amount:    amount,
			Currency:  "EUR",
		})
		require.Error(t, err, "amount %s", amount)
		assert.True(t, ierr.IsValidation(err), "amount %s", amount)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := []struct {
		status string
		want   types.NormalizedStatus
	}{
		{"OPEN", types.NormalizedStatusPending},
		{"CLOSED", types.NormalizedStatusPaid},
		{"MAX_YIELD_REACHED", types.NormalizedStatusPaid},
		{"MAX_SUCCESSFUL_PAYMENTS_REACHED", types.NormalizedStatusPaid},
		{"EXPIRED", types.NormalizedStatusExpired},
		{"SOMETHING_NEW", types.NormalizedStatusUnknown},
		{"", types.NormalizedStatusUnknown},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeStatus(tc.status), "status %q", tc.status)
	}
}
