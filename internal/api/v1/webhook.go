package v1

import (
	"io"
	"net/http"

	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/factuurly/factuurly/internal/webhook"
	"github.com/gin-gonic/gin"
)

// signatureHeaders maps each rail to the header its signature travels in
var signatureHeaders = map[types.ProviderType]string{
	types.ProviderTypeCardLink:            "Stripe-Signature",
	types.ProviderTypeNLPaymentRequest:    "X-Signature",
	types.ProviderTypeLocalBankRedirect:   "X-Signature",
	types.ProviderTypeInternationalWallet: "X-Signature",
}

type WebhookHandler struct {
	service *webhook.Service
	log     *logger.Logger
}

func NewWebhookHandler(service *webhook.Service, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, log: log}
}

// HandleWebhook receives one provider webhook delivery. The raw body is
// read before any parsing because signature verification requires the exact
// bytes. Only a verification failure produces a 4xx; everything else gets a
// 2xx so the provider stops retrying.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	providerType := types.ProviderType(c.Param("provider"))
	if err := providerType.Validate(); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Unknown payment provider").
			Mark(ierr.ErrValidation))
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Failed to read request body").
			Mark(ierr.ErrValidation))
		return
	}

	signature := c.GetHeader(signatureHeaders[providerType])

	result, err := h.service.Ingest(c.Request.Context(), providerType, rawBody, signature)
	if err != nil {
		switch {
		case ierr.IsVerification(err):
			h.log.Warnw("webhook verification failed", "provider", providerType)
			c.JSON(http.StatusUnauthorized, gin.H{"received": false})
		case ierr.IsMetadataMissing(err):
			// logged and dropped; 2xx stops provider redelivery
			h.log.Warnw("webhook without invoice reference dropped",
				"provider", providerType,
				"error", err)
			c.JSON(http.StatusOK, gin.H{"received": true})
		default:
			// reconciliation errors self-heal via the poller
			h.log.Errorw("webhook processing failed",
				"provider", providerType,
				"error", err)
			c.JSON(http.StatusOK, gin.H{"received": true})
		}
		return
	}

	if result == nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"updated":  result.Updated,
		"status":   result.To,
	})
}
