package v1

import (
	"net/http"

	"github.com/factuurly/factuurly/internal/api/dto"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/service"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service service.PaymentService
	log     *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, log: log}
}

func (h *PaymentHandler) CreatePaymentLink(c *gin.Context) {
	var req dto.CreatePaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreatePaymentLink(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("Failed to create payment link", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *PaymentHandler) CheckPaymentStatus(c *gin.Context) {
	var req dto.CheckPaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CheckPaymentStatus(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("Failed to check payment status", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) MarkInvoicePaid(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	var req dto.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.MarkInvoicePaid(c.Request.Context(), id, &req)
	if err != nil {
		h.log.Error("Failed to mark invoice paid", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) GetAttempts(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Invoice ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	attempts, err := h.service.GetAttempts(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to list payment attempts", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": attempts, "total": len(attempts)})
}
