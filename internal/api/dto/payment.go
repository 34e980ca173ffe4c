package dto

import (
	"github.com/factuurly/factuurly/internal/types"
	"github.com/factuurly/factuurly/internal/validator"
	"github.com/shopspring/decimal"
)

type CreatePaymentLinkRequest struct {
	InvoiceID string             `json:"invoice_id" validate:"required"`
	Provider  types.ProviderType `json:"provider" validate:"required"`
}

func (r *CreatePaymentLinkRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	return r.Provider.Validate()
}

type PaymentLinkResponse struct {
	InvoiceID         string              `json:"invoice_id"`
	Provider          types.ProviderType  `json:"provider"`
	AttemptID         string              `json:"attempt_id"`
	ExternalPaymentID string              `json:"external_payment_id"`
	PaymentLink       string              `json:"payment_link,omitempty"`
	InvoiceStatus     types.InvoiceStatus `json:"invoice_status"`
}

// CheckPaymentStatusRequest asks for one fresh provider observation
type CheckPaymentStatusRequest struct {
	InvoiceID         string `json:"invoice_id" validate:"required"`
	ExternalPaymentID string `json:"external_payment_id,omitempty"`
}

func (r *CheckPaymentStatusRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type PaymentStatusResponse struct {
	InvoiceID        string                 `json:"invoice_id"`
	Provider         types.ProviderType     `json:"provider"`
	NormalizedStatus types.NormalizedStatus `json:"normalized_status"`
	ExternalStatus   string                 `json:"external_status,omitempty"`
	AmountPaid       decimal.Decimal        `json:"amount_paid"`
	// Updated reports whether this check transitioned the invoice
	Updated       bool                `json:"updated"`
	InvoiceStatus types.InvoiceStatus `json:"invoice_status"`
}

// MarkPaidRequest records a manually confirmed payment, used for the bank
// transfer rail
type MarkPaidRequest struct {
	AmountPaid *decimal.Decimal `json:"amount_paid,omitempty"`
}
