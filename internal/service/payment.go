package service

import (
	"context"
	"fmt"

	"github.com/factuurly/factuurly/internal/api/dto"
	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/reconcile"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// PaymentService creates payment requests against invoices and exposes the
// on-demand status check. Creation errors surface synchronously to the
// caller; reconciliation errors never do.
type PaymentService interface {
	// CreatePaymentLink creates a payment request at the chosen provider,
	// records the attempt and moves the invoice to sent
	CreatePaymentLink(ctx context.Context, req *dto.CreatePaymentLinkRequest) (*dto.PaymentLinkResponse, error)
	// CheckPaymentStatus fetches one fresh observation from the provider
	// and reconciles it immediately
	CheckPaymentStatus(ctx context.Context, req *dto.CheckPaymentStatusRequest) (*dto.PaymentStatusResponse, error)
	// MarkInvoicePaid records a manually confirmed payment, used for the
	// bank transfer rail
	MarkInvoicePaid(ctx context.Context, invoiceID string, req *dto.MarkPaidRequest) (*dto.PaymentStatusResponse, error)
	// GetAttempts lists the payment attempts for an invoice, newest first
	GetAttempts(ctx context.Context, invoiceID string) ([]*payment.Attempt, error)
}

type paymentService struct {
	ServiceParams
}

func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{ServiceParams: params}
}

func (s *paymentService) CreatePaymentLink(ctx context.Context, req *dto.CreatePaymentLinkRequest) (*dto.PaymentLinkResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	if inv.InvoiceStatus.IsTerminal() {
		return nil, ierr.NewError("invoice is already settled").
			WithHint("A paid or cancelled invoice cannot receive a new payment request").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"status":     inv.InvoiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if inv.Total.LessThanOrEqual(decimal.Zero) {
		return nil, ierr.NewError("invalid amount").
			WithHint("Invoice total must be greater than 0").
			Mark(ierr.ErrValidation)
	}

	adapter, err := s.Registry.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	invoiceNumber := inv.ID
	if inv.InvoiceNumber != nil {
		invoiceNumber = *inv.InvoiceNumber
	}

	result, err := adapter.CreatePayment(ctx, &provider.CreatePaymentRequest{
		InvoiceID:     inv.ID,
		InvoiceNumber: invoiceNumber,
		Amount:        inv.Total,
		Currency:      inv.Currency,
		Description:   paymentDescription(invoiceNumber, inv.Description),
		RedirectURL:   s.redirectURL(inv.ID),
		Metadata:      inv.Metadata,
	})
	if err != nil {
		return nil, err
	}

	attempt := &payment.Attempt{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT_ATTEMPT),
		InvoiceID:         inv.ID,
		Provider:          req.Provider,
		ExternalPaymentID: result.ExternalPaymentID,
		PaymentLink:       result.PaymentLink,
		NormalizedStatus:  types.NormalizedStatusPending,
		Amount:            inv.Total,
		Currency:          inv.Currency,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}
	if err := attempt.Validate(); err != nil {
		return nil, err
	}

	if err := s.PaymentRepo.Create(ctx, attempt); err != nil {
		return nil, err
	}

	inv.PaymentProvider = lo.ToPtr(req.Provider)
	inv.ExternalPaymentID = lo.ToPtr(result.ExternalPaymentID)
	if result.PaymentLink != "" {
		inv.PaymentLink = lo.ToPtr(result.PaymentLink)
	}
	if inv.InvoiceStatus != types.InvoiceStatusSent {
		inv.InvoiceStatus = types.InvoiceStatusSent
	}

	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("payment link created",
		"invoice_id", inv.ID,
		"provider", req.Provider,
		"external_payment_id", result.ExternalPaymentID)

	// start the fast poll cadence; the request context ends with the
	// response, so the burst runs on a detached one
	if s.Poller != nil {
		s.Poller.KickBurst(context.WithoutCancel(ctx), inv.ID)
	}

	return &dto.PaymentLinkResponse{
		InvoiceID:         inv.ID,
		Provider:          req.Provider,
		AttemptID:         attempt.ID,
		ExternalPaymentID: result.ExternalPaymentID,
		PaymentLink:       result.PaymentLink,
		InvoiceStatus:     inv.InvoiceStatus,
	}, nil
}

func (s *paymentService) CheckPaymentStatus(ctx context.Context, req *dto.CheckPaymentStatusRequest) (*dto.PaymentStatusResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	attempt, err := s.PaymentRepo.GetActiveByInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if req.ExternalPaymentID != "" && req.ExternalPaymentID != attempt.ExternalPaymentID {
		return nil, ierr.NewError("external payment id does not match the active attempt").
			WithHint("The payment reference is stale").
			Mark(ierr.ErrValidation)
	}

	adapter, err := s.Registry.Get(attempt.Provider)
	if err != nil {
		return nil, err
	}

	status, err := adapter.GetPaymentStatus(ctx, attempt.ExternalPaymentID)
	if err != nil {
		return nil, err
	}

	event := reconcile.NewEvent(req.InvoiceID, attempt.Provider, types.EventSourcePoll, status.Status)
	event.ExternalStatus = status.ExternalStatus
	event.AmountPaid = status.AmountPaid

	result, err := s.Engine.Apply(ctx, event)
	if err != nil {
		return nil, err
	}

	return &dto.PaymentStatusResponse{
		InvoiceID:        req.InvoiceID,
		Provider:         attempt.Provider,
		NormalizedStatus: status.Status,
		ExternalStatus:   status.ExternalStatus,
		AmountPaid:       status.AmountPaid,
		Updated:          result.Updated,
		InvoiceStatus:    result.To,
	}, nil
}

func (s *paymentService) MarkInvoicePaid(ctx context.Context, invoiceID string, req *dto.MarkPaidRequest) (*dto.PaymentStatusResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.PaymentRepo.GetActiveByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	amount := inv.Total
	if req != nil && req.AmountPaid != nil {
		if req.AmountPaid.LessThanOrEqual(decimal.Zero) {
			return nil, ierr.NewError("invalid amount").
				WithHint("Paid amount must be greater than 0").
				Mark(ierr.ErrValidation)
		}
		amount = *req.AmountPaid
	}

	event := reconcile.NewEvent(invoiceID, attempt.Provider, types.EventSourceManual, types.NormalizedStatusPaid)
	event.AmountPaid = amount

	result, err := s.Engine.Apply(ctx, event)
	if err != nil {
		return nil, err
	}

	return &dto.PaymentStatusResponse{
		InvoiceID:        invoiceID,
		Provider:         attempt.Provider,
		NormalizedStatus: types.NormalizedStatusPaid,
		AmountPaid:       amount,
		Updated:          result.Updated,
		InvoiceStatus:    result.To,
	}, nil
}

func (s *paymentService) GetAttempts(ctx context.Context, invoiceID string) ([]*payment.Attempt, error) {
	return s.PaymentRepo.List(ctx, &types.PaymentAttemptFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
		InvoiceID:   lo.ToPtr(invoiceID),
	})
}

func (s *paymentService) redirectURL(invoiceID string) string {
	base := s.Config.Server.RedirectBaseURL
	if base == "" {
		base = "http://localhost:8080"
	}
	return fmt.Sprintf("%s/invoices/%s/payment-complete", base, invoiceID)
}

func paymentDescription(invoiceNumber, description string) string {
	if description != "" {
		return description
	}
	return fmt.Sprintf("Invoice %s", invoiceNumber)
}
