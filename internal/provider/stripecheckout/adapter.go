package stripecheckout

import (
	"context"

	"github.com/factuurly/factuurly/internal/config"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

const metadataInvoiceKey = "factuurly_invoice_id"

// Adapter implements the card-link rail via Stripe hosted checkout sessions
type Adapter struct {
	cfg    config.StripeConfig
	logger *logger.Logger
}

// NewAdapter creates a new Stripe checkout adapter
func NewAdapter(cfg *config.Configuration, logger *logger.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg.Providers.Stripe,
		logger: logger,
	}
}

func (a *Adapter) Provider() types.ProviderType {
	return types.ProviderTypeCardLink
}

func (a *Adapter) client() (*stripe.Client, error) {
	if a.cfg.SecretKey == "" {
		return nil, ierr.NewError("stripe secret key not configured").
			WithHint("Card payments are not activated for your account").
			Mark(ierr.ErrConfiguration)
	}
	return stripe.NewClient(a.cfg.SecretKey, nil), nil
}

func (a *Adapter) CreatePayment(ctx context.Context, req *provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}

	// Stripe expects amounts in the smallest currency unit
	amountCents := req.Amount.Mul(decimal.NewFromInt(100)).IntPart()

	metadata := map[string]string{
		metadataInvoiceKey: req.InvoiceID,
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	params := &stripe.CheckoutSessionCreateParams{
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.InvoiceNumber),
						Description: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String("payment"),
		SuccessURL: stripe.String(req.RedirectURL),
		CancelURL:  stripe.String(req.RedirectURL),
		Metadata:   metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: metadata,
		},
	}

	session, err := client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		a.logger.Errorw("failed to create stripe checkout session",
			"error", err,
			"invoice_id", req.InvoiceID)
		return nil, ierr.WithError(err).
			WithHint("Unable to create card payment link").
			WithReportableDetails(map[string]any{
				"invoice_id": req.InvoiceID,
			}).
			Mark(ierr.ErrProvider)
	}

	return &provider.CreatePaymentResult{
		ExternalPaymentID: session.ID,
		PaymentLink:       session.URL,
	}, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}

	session, err := client.V1CheckoutSessions.Retrieve(ctx, externalPaymentID, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to retrieve checkout session").
			WithReportableDetails(map[string]any{
				"session_id": externalPaymentID,
			}).
			Mark(ierr.ErrProvider)
	}

	amountPaid := decimal.Zero
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid && session.AmountTotal > 0 {
		amountPaid = decimal.NewFromInt(session.AmountTotal).Div(decimal.NewFromInt(100))
	}

	return &provider.StatusResult{
		Status:         provider.ResolveStatus(normalizeSession(session), amountPaid),
		ExternalStatus: string(session.Status),
		AmountPaid:     amountPaid,
	}, nil
}

// normalizeSession maps the checkout session state onto the common
// status vocabulary. The payment status field, not the session lifecycle
// status, decides whether funds arrived.
func normalizeSession(session *stripe.CheckoutSession) types.NormalizedStatus {
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return types.NormalizedStatusPaid
	}

	switch session.Status {
	case stripe.CheckoutSessionStatusOpen:
		return types.NormalizedStatusPending
	case stripe.CheckoutSessionStatusExpired:
		return types.NormalizedStatusExpired
	case stripe.CheckoutSessionStatusComplete:
		// complete but unpaid means an async payment method is settling
		return types.NormalizedStatusPending
	default:
		return types.NormalizedStatusUnknown
	}
}
