package v1

import (
	"net/http"

	"github.com/factuurly/factuurly/internal/api/dto"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/service"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	service service.InvoiceService
	log     *logger.Logger
}

func NewInvoiceHandler(service service.InvoiceService, log *logger.Logger) *InvoiceHandler {
	return &InvoiceHandler{service: service, log: log}
}

func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateInvoice(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("Failed to create invoice", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to get invoice", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	var filter types.InvoiceFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.ListInvoices(c.Request.Context(), &filter)
	if err != nil {
		h.log.Error("Failed to list invoices", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	var req dto.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UpdateInvoice(c.Request.Context(), id, &req)
	if err != nil {
		h.log.Error("Failed to update invoice", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *InvoiceHandler) FinalizeInvoice(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.FinalizeInvoice(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to finalize invoice", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *InvoiceHandler) MarkOverdue(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.MarkOverdue(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to mark invoice overdue", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
