package tikkie

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

// Adapter implements the Dutch payment request rail on the Tikkie API.
// Tikkie only supports EUR and amounts are expressed in cents.
type Adapter struct {
	cfg    config.TikkieConfig
	client httpclient.Client
	logger *logger.Logger
}

func NewAdapter(cfg *config.Configuration, client httpclient.Client, logger *logger.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg.Providers.Tikkie,
		client: client,
		logger: logger,
	}
}

func (a *Adapter) Provider() types.ProviderType {
	return types.ProviderTypeNLPaymentRequest
}

func (a *Adapter) headers() (map[string]string, error) {
	if a.cfg.APIKey == "" || a.cfg.AppToken == "" {
		return nil, ierr.NewError("tikkie credentials not configured").
			WithHint("Tikkie payment requests are not activated for your account").
			Mark(ierr.ErrConfiguration)
	}
	return map[string]string{
		"API-Key":     a.cfg.APIKey,
		"X-App-Token": a.cfg.AppToken,
	}, nil
}

type createPaymentRequestBody struct {
	AmountInCents int64  `json:"amountInCents"`
	Description   string `json:"description"`
	ExpiryDate    string `json:"expiryDate,omitempty"`
	ReferenceID   string `json:"referenceId"`
}

type paymentRequestResponse struct {
	PaymentRequestToken string `json:"paymentRequestToken"`
	URL                 string `json:"url"`
	Status              string `json:"status"`
	ReferenceID         string `json:"referenceId"`
	Payments            []struct {
		AmountInCents int64 `json:"amountInCents"`
	} `json:"payments"`
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

	if !types.IsMatchingCurrency(req.Currency, "EUR") {
		return nil, ierr.NewError("unsupported currency").
			WithHint("Tikkie payment requests only support EUR").
			WithReportableDetails(map[string]any{
				"currency": req.Currency,
			}).
			Mark(ierr.ErrValidation)
	}

	body, err := json.Marshal(createPaymentRequestBody{
		AmountInCents: req.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Description:   req.Description,
		ReferenceID:   req.InvoiceID,
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/paymentrequests", a.cfg.BaseURL),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, a.wrapProviderError(err, req.InvoiceID)
	}

	var out paymentRequestResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unexpected response from Tikkie").
			Mark(ierr.ErrProvider)
	}

	return &provider.CreatePaymentResult{
		ExternalPaymentID: out.PaymentRequestToken,
		PaymentLink:       out.URL,
	}, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
	headers, err := a.headers()
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/paymentrequests/%s", a.cfg.BaseURL, externalPaymentID),
		Headers: headers,
	})
	if err != nil {
		return nil, a.wrapProviderError(err, externalPaymentID)
	}

	var out paymentRequestResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unexpected response from Tikkie").
			Mark(ierr.ErrProvider)
	}

	amountPaid := decimal.Zero
	for _, p := range out.Payments {
		amountPaid = amountPaid.Add(decimal.NewFromInt(p.AmountInCents))
	}
	amountPaid = amountPaid.Div(decimal.NewFromInt(100))

	// The Tikkie sandbox keeps a request OPEN after a simulated payment
	// lands, so the received amount decides before the label does.
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
			WithHint("Tikkie rejected the request").
			WithReportableDetails(map[string]any{
				"reference":   ref,
				"status_code": httpErr.StatusCode,
			}).
			Mark(ierr.ErrProvider)
	}
	return ierr.WithError(err).
		WithHint("Tikkie call failed").
		Mark(ierr.ErrProvider)
}

func NormalizeStatus(status string) types.NormalizedStatus {
	switch status {
	case "OPEN":
		return types.NormalizedStatusPending
	case "CLOSED", "MAX_YIELD_REACHED", "MAX_SUCCESSFUL_PAYMENTS_REACHED":
		return types.NormalizedStatusPaid
	case "EXPIRED":
		return types.NormalizedStatusExpired
	default:
		return types.NormalizedStatusUnknown
	}
}
