package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/factuurly/factuurly/internal/config"
	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider/mollie"
	"github.com/factuurly/factuurly/internal/provider/tikkie"
	"github.com/factuurly/factuurly/internal/reconcile"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

// metadataInvoiceKeys are the payload fields an invoice reference may
// travel in, depending on the rail
var metadataInvoiceKeys = []string{"factuurly_invoice_id", "invoice_id"}

// observation is a decoded, verified webhook payload before it becomes a
// reconciliation event. A nil observation means the delivery was valid but
// intentionally ignored (an event type we do not act on).
type observation struct {
	invoiceID         string
	externalPaymentID string
	status            types.NormalizedStatus
	externalStatus    string
	amountPaid        decimal.Decimal
}

// Service verifies and decodes inbound provider webhooks and feeds them to
// the reconciliation engine. Verification always happens on the raw body,
// before any JSON parsing.
type Service struct {
	cfg         *config.Configuration
	attemptRepo payment.Repository
	engine      *reconcile.Engine
	logger      *logger.Logger
	tolerance   time.Duration
}

func NewService(
	cfg *config.Configuration,
	attemptRepo payment.Repository,
	engine *reconcile.Engine,
	logger *logger.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		attemptRepo: attemptRepo,
		engine:      engine,
		logger:      logger,
		tolerance:   DefaultTolerance,
	}
}

// Ingest verifies one webhook delivery and applies it to the engine.
// A nil result with a nil error means the delivery was valid but ignored;
// the caller should still respond 2xx so the provider stops retrying.
// A verification failure is the only error class that warrants a 4xx.
func (s *Service) Ingest(ctx context.Context, providerType types.ProviderType, rawBody []byte, signatureHeader string) (*reconcile.Result, error) {
	var (
		obs *observation
		err error
	)

	switch providerType {
	case types.ProviderTypeCardLink:
		obs, err = s.parseStripe(rawBody, signatureHeader)
	case types.ProviderTypeNLPaymentRequest:
		obs, err = s.parseTikkie(rawBody, signatureHeader)
	case types.ProviderTypeLocalBankRedirect:
		obs, err = s.parseMollie(rawBody, signatureHeader)
	case types.ProviderTypeInternationalWallet:
		obs, err = s.parsePayPal(rawBody, signatureHeader)
	default:
		return nil, ierr.NewError("no webhook channel for provider").
			WithHint("This provider does not deliver webhooks").
			Mark(ierr.ErrValidation)
	}
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, nil
	}

	invoiceID, err := s.resolveInvoice(ctx, providerType, obs)
	if err != nil {
		return nil, err
	}

	event := reconcile.NewEvent(invoiceID, providerType, types.EventSourceWebhook, obs.status)
	event.ExternalStatus = obs.externalStatus
	event.AmountPaid = obs.amountPaid

	return s.engine.Apply(ctx, event)
}

// resolveInvoice finds the invoice a webhook refers to, preferring the
// metadata reference carried end-to-end and falling back to an external
// payment id lookup
func (s *Service) resolveInvoice(ctx context.Context, providerType types.ProviderType, obs *observation) (string, error) {
	if obs.invoiceID != "" {
		return obs.invoiceID, nil
	}

	if obs.externalPaymentID != "" {
		attempt, err := s.attemptRepo.GetByExternalID(ctx, providerType, obs.externalPaymentID)
		if err == nil {
			return attempt.InvoiceID, nil
		}
		if !ierr.IsNotFound(err) {
			return "", err
		}
	}

	return "", ierr.NewError("webhook payload carries no invoice reference").
		WithHint("The event cannot be matched to an invoice").
		WithReportableDetails(map[string]any{
			"provider":            providerType.String(),
			"external_payment_id": obs.externalPaymentID,
		}).
		Mark(ierr.ErrMetadataMissing)
}

func (s *Service) parseStripe(rawBody []byte, signatureHeader string) (*observation, error) {
	secret := s.cfg.Providers.Stripe.WebhookSecret
	if secret == "" {
		return nil, ierr.NewError("webhook signature verification failed").
			WithHint("The webhook could not be verified").
			Mark(ierr.ErrVerification)
	}

	event, err := stripewebhook.ConstructEventWithOptions(rawBody, signatureHeader, secret,
		stripewebhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("The webhook could not be verified").
			Mark(ierr.ErrVerification)
	}

	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
	default:
		s.logger.Debugw("ignoring stripe event", "type", event.Type)
		return nil, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed checkout session payload").
			Mark(ierr.ErrProvider)
	}

	obs := &observation{
		externalPaymentID: session.ID,
		externalStatus:    string(session.Status),
		amountPaid:        decimal.Zero,
	}
	for _, key := range metadataInvoiceKeys {
		if v, ok := session.Metadata[key]; ok && v != "" {
			obs.invoiceID = v
			break
		}
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			obs.status = types.NormalizedStatusPaid
			obs.amountPaid = decimal.NewFromInt(session.AmountTotal).Div(decimal.NewFromInt(100))
		} else {
			// completed with an async method still settling
			obs.status = types.NormalizedStatusPending
		}
	case "checkout.session.async_payment_failed":
		obs.status = types.NormalizedStatusCancelled
	case "checkout.session.expired":
		obs.status = types.NormalizedStatusExpired
	}

	return obs, nil
}

type tikkiePayload struct {
	PaymentRequestToken string `json:"paymentRequestToken"`
	ReferenceID         string `json:"referenceId"`
	Status              string `json:"status"`
	AmountInCents       int64  `json:"amountInCents"`
}

func (s *Service) parseTikkie(rawBody []byte, signatureHeader string) (*observation, error) {
	if err := verifySignature(s.cfg.Providers.Tikkie.WebhookSecret, signatureHeader, rawBody, s.tolerance); err != nil {
		return nil, err
	}

	var payload tikkiePayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed webhook payload").
			Mark(ierr.ErrProvider)
	}

	amountPaid := decimal.NewFromInt(payload.AmountInCents).Div(decimal.NewFromInt(100))

	return &observation{
		invoiceID:         payload.ReferenceID,
		externalPaymentID: payload.PaymentRequestToken,
		status:            tikkie.NormalizeStatus(payload.Status),
		externalStatus:    payload.Status,
		amountPaid:        amountPaid,
	}, nil
}

type molliePayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Amount   struct {
		Value string `json:"value"`
	} `json:"amount"`
}

func (s *Service) parseMollie(rawBody []byte, signatureHeader string) (*observation, error) {
	if err := verifySignature(s.cfg.Providers.Mollie.WebhookSecret, signatureHeader, rawBody, s.tolerance); err != nil {
		return nil, err
	}

	var payload molliePayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed webhook payload").
			Mark(ierr.ErrProvider)
	}

	status := mollie.NormalizeStatus(payload.Status)
	amountPaid := decimal.Zero
	if status == types.NormalizedStatusPaid {
		if v, err := decimal.NewFromString(payload.Amount.Value); err == nil {
			amountPaid = v
		}
	}

	obs := &observation{
		externalPaymentID: payload.ID,
		status:            status,
		externalStatus:    payload.Status,
		amountPaid:        amountPaid,
	}
	for _, key := range metadataInvoiceKeys {
		if v, ok := payload.Metadata[key]; ok && v != "" {
			obs.invoiceID = v
			break
		}
	}
	return obs, nil
}

type paypalPayload struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		CustomID string `json:"custom_id"`
		Amount   struct {
			Value string `json:"value"`
		} `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (s *Service) parsePayPal(rawBody []byte, signatureHeader string) (*observation, error) {
	if err := verifySignature(s.cfg.Providers.PayPal.WebhookSecret, signatureHeader, rawBody, s.tolerance); err != nil {
		return nil, err
	}

	var payload paypalPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Malformed webhook payload").
			Mark(ierr.ErrProvider)
	}

	obs := &observation{
		invoiceID:      payload.Resource.CustomID,
		externalStatus: payload.Resource.Status,
		amountPaid:     decimal.Zero,
	}

	switch payload.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		obs.status = types.NormalizedStatusPaid
		if v, err := decimal.NewFromString(payload.Resource.Amount.Value); err == nil {
			obs.amountPaid = v
		}
	case "CHECKOUT.ORDER.APPROVED":
		obs.status = types.NormalizedStatusPending
	case "PAYMENT.CAPTURE.DENIED", "CHECKOUT.ORDER.VOIDED":
		obs.status = types.NormalizedStatusCancelled
	default:
		s.logger.Debugw("ignoring paypal event", "type", payload.EventType)
		return nil, nil
	}

	// capture events reference the order through supplementary data
	obs.externalPaymentID = payload.Resource.SupplementaryData.RelatedIDs.OrderID
	if obs.externalPaymentID == "" {
		obs.externalPaymentID = payload.Resource.ID
	}

	return obs, nil
}
