package dto

import (
	"context"
	"time"

	"github.com/factuurly/factuurly/internal/domain/invoice"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/factuurly/factuurly/internal/validator"
	"github.com/shopspring/decimal"
)

type CreateInvoiceRequest struct {
	CustomerID  string          `json:"customer_id" validate:"required"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Total       decimal.Decimal `json:"total" validate:"required"`
	Description string          `json:"description,omitempty"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	Metadata    types.Metadata  `json:"metadata,omitempty"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Total.LessThanOrEqual(decimal.Zero) {
		return ierr.NewError("invalid total").
			WithHint("Invoice total must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *CreateInvoiceRequest) ToInvoice(ctx context.Context) *invoice.Invoice {
	return &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		CustomerID:    r.CustomerID,
		InvoiceStatus: types.InvoiceStatusDraft,
		Currency:      r.Currency,
		Total:         r.Total,
		AmountPaid:    decimal.Zero,
		Description:   r.Description,
		DueDate:       r.DueDate,
		Metadata:      r.Metadata,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}

type UpdateInvoiceRequest struct {
	Description *string          `json:"description,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	Metadata    types.Metadata   `json:"metadata,omitempty"`
}

func (r *UpdateInvoiceRequest) Validate() error {
	if r.Total != nil && r.Total.LessThanOrEqual(decimal.Zero) {
		return ierr.NewError("invalid total").
			WithHint("Invoice total must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type InvoiceResponse struct {
	*invoice.Invoice
}

func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	return &InvoiceResponse{Invoice: inv}
}

type ListInvoicesResponse struct {
	Items []*InvoiceResponse `json:"items"`
	Total int                `json:"total"`
}
