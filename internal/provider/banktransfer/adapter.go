package banktransfer

import (
	"context"

	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// Adapter implements the manual bank transfer rail. There is no external
// system: the "payment request" is a locally generated reference the payer
// quotes in their transfer, and status only changes when someone marks the
// invoice paid by hand. Polling a bank transfer always reports pending.
type Adapter struct {
	logger *logger.Logger
}

func NewAdapter(logger *logger.Logger) *Adapter {
	return &Adapter{logger: logger}
}

func (a *Adapter) Provider() types.ProviderType {
	return types.ProviderTypeBankTransfer
}

func (a *Adapter) CreatePayment(ctx context.Context, req *provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}

	reference := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BANK_TRANSFER)

	a.logger.Infow("created bank transfer reference",
		"invoice_id", req.InvoiceID,
		"reference", reference)

	return &provider.CreatePaymentResult{
		ExternalPaymentID: reference,
		// no link: the payer transfers manually using the reference
		PaymentLink: "",
	}, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
	return &provider.StatusResult{
		Status:     types.NormalizedStatusPending,
		AmountPaid: decimal.Zero,
	}, nil
}
