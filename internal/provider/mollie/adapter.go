package mollie

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/factuurly/factuurly/internal/config"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/httpclient"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// Adapter implements the local bank redirect rail on the Mollie payments
// API, using iDEAL as the payment method.
type Adapter struct {
	cfg    config.MollieConfig
	client httpclient.Client
	logger *logger.Logger
}

func NewAdapter(cfg *config.Configuration, client httpclient.Client, logger *logger.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg.Providers.Mollie,
		client: client,
		logger: logger,
	}
}

func (a *Adapter) Provider() types.ProviderType {
	return types.ProviderTypeLocalBankRedirect
}

func (a *Adapter) headers() (map[string]string, error) {
	if a.cfg.APIKey == "" {
		return nil, ierr.NewError("mollie api key not configured").
			WithHint("iDEAL payments are not activated for your account").
			Mark(ierr.ErrConfiguration)
	}
	return map[string]string{
		"Authorization": "Bearer " + a.cfg.APIKey,
	}, nil
}

type amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type createPaymentBody struct {
	Amount      amount            `json:"amount"`
	Description string            `json:"description"`
	RedirectURL string            `json:"redirectUrl"`
	Method      string            `json:"method"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   amount            `json:"amount"`
	PaidAt   string            `json:"paidAt,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Links    struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req *provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}

	headers, err := a.headers()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(createPaymentBody{
		Amount: amount{
			Currency: req.Currency,
			// Mollie requires exactly two decimals
			Value: req.Amount.StringFixed(2),
		},
		Description: req.Description,
		RedirectURL: req.RedirectURL,
		Method:      "ideal",
		Metadata: map[string]string{
			"invoice_id": req.InvoiceID,
		},
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/payments", a.cfg.BaseURL),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, a.wrapProviderError(err, req.InvoiceID)
	}

	var out paymentResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unexpected response from Mollie").
			Mark(ierr.ErrProvider)
	}

	return &provider.CreatePaymentResult{
		ExternalPaymentID: out.ID,
		PaymentLink:       out.Links.Checkout.Href,
	}, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
	headers, err := a.headers()
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/payments/%s", a.cfg.BaseURL, externalPaymentID),
		Headers: headers,
	})
	if err != nil {
		return nil, a.wrapProviderError(err, externalPaymentID)
	}

	var out paymentResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unexpected response from Mollie").
			Mark(ierr.ErrProvider)
	}

	amountPaid := decimal.Zero
	if out.Status == "paid" {
		amountPaid, err = decimal.NewFromString(out.Amount.Value)
		if err != nil {
			amountPaid = decimal.Zero
		}
	}

	return &provider.StatusResult{
		Status:         provider.ResolveStatus(NormalizeStatus(out.Status), amountPaid),
		ExternalStatus: out.Status,
		AmountPaid:     amountPaid,
	}, nil
}

func (a *Adapter) wrapProviderError(err error, ref string) error {
	if ierr.IsTransient(err) {
		return err
	}
	if httpErr, ok := httpclient.IsHTTPError(err); ok {
		return ierr.WithError(httpErr).
			WithHint("Mollie rejected the request").
			WithReportableDetails(map[string]any{
				"reference":   ref,
				"status_code": httpErr.StatusCode,
			}).
			Mark(ierr.ErrProvider)
	}
	return ierr.WithError(err).
		WithHint("Mollie call failed").
		Mark(ierr.ErrProvider)
}

func NormalizeStatus(status string) types.NormalizedStatus {
	switch status {
	case "open", "pending", "authorized":
		return types.NormalizedStatusPending
	case "paid":
		return types.NormalizedStatusPaid
	case "canceled", "failed":
		return types.NormalizedStatusCancelled
	case "expired":
		return types.NormalizedStatusExpired
	default:
		return types.NormalizedStatusUnknown
	}
}
