package service

import (
	"context"
	"time"

	"github.com/factuurly/factuurly/internal/api/dto"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/samber/lo"
)

// InvoiceService handles the CRUD side of invoices. Once a payment attempt
// exists the canonical status belongs to the reconciliation engine; this
// service only mutates drafts and performs the time-triggered overdue mark.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error)
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error)
	UpdateInvoice(ctx context.Context, id string, req *dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error)
	// FinalizeInvoice assigns the human-facing invoice number
	FinalizeInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	// MarkOverdue moves one sent invoice to overdue
	MarkOverdue(ctx context.Context, id string) (*dto.InvoiceResponse, error)
	// SweepOverdue marks every sent invoice past its due date as overdue
	// and returns how many were marked
	SweepOverdue(ctx context.Context) (int, error)
}

type invoiceService struct {
	ServiceParams
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{ServiceParams: params}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv := req.ToInvoice(ctx)
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice created",
		"invoice_id", inv.ID,
		"customer_id", inv.CustomerID,
		"total", inv.Total)

	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, filter *types.InvoiceFilter) (*dto.ListInvoicesResponse, error) {
	if filter == nil {
		filter = &types.InvoiceFilter{QueryFilter: types.NewDefaultQueryFilter()}
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid list parameters").
			Mark(ierr.ErrValidation)
	}

	invoices, err := s.InvoiceRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	total, err := s.InvoiceRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.InvoiceResponse, len(invoices))
	for i, inv := range invoices {
		items[i] = dto.NewInvoiceResponse(inv)
	}

	return &dto.ListInvoicesResponse{Items: items, Total: total}, nil
}

func (s *invoiceService) UpdateInvoice(ctx context.Context, id string, req *dto.UpdateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.InvoiceStatus != types.InvoiceStatusDraft {
		return nil, ierr.NewError("invoice is no longer editable").
			WithHint("Only draft invoices can be edited").
			WithReportableDetails(map[string]any{
				"invoice_id": id,
				"status":     inv.InvoiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if req.Description != nil {
		inv.Description = *req.Description
	}
	if req.Total != nil {
		inv.Total = *req.Total
	}
	if req.DueDate != nil {
		inv.DueDate = req.DueDate
	}
	if req.Metadata != nil {
		inv.Metadata = req.Metadata
	}

	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) FinalizeInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.InvoiceNumber != nil {
		return dto.NewInvoiceResponse(inv), nil
	}

	if inv.InvoiceStatus != types.InvoiceStatusDraft {
		return nil, ierr.NewError("invoice cannot be finalized").
			WithHint("Only draft invoices can be finalized").
			Mark(ierr.ErrInvalidOperation)
	}

	inv.InvoiceNumber = lo.ToPtr(types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE_NUMBER))
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice finalized",
		"invoice_id", inv.ID,
		"invoice_number", *inv.InvoiceNumber)

	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) MarkOverdue(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if inv.InvoiceStatus != types.InvoiceStatusSent {
		return nil, ierr.NewError("invoice cannot be marked overdue").
			WithHint("Only sent invoices can be marked overdue").
			WithReportableDetails(map[string]any{
				"invoice_id": id,
				"status":     inv.InvoiceStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	inv.InvoiceStatus = types.InvoiceStatusOverdue
	if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("invoice marked overdue", "invoice_id", inv.ID)
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) SweepOverdue(ctx context.Context) (int, error) {
	sent, err := s.InvoiceRepo.ListByStatus(ctx, types.InvoiceStatusSent)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	marked := 0
	for _, inv := range sent {
		if inv.DueDate == nil || inv.DueDate.After(now) {
			continue
		}

		inv.InvoiceStatus = types.InvoiceStatusOverdue
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			// a reconciliation transition won the race, skip it
			s.Logger.Warnw("skipping overdue mark",
				"invoice_id", inv.ID,
				"error", err)
			continue
		}
		marked++
	}

	if marked > 0 {
		s.Logger.Infow("overdue sweep complete", "marked", marked)
	}
	return marked, nil
}
