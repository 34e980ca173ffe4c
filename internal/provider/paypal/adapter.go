package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/factuurly/factuurly/internal/config"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/httpclient"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/provider"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/shopspring/decimal"
)

// tokenSkew is subtracted from the token lifetime so we refresh before
// PayPal actually rejects it
const tokenSkew = 60 * time.Second

// Adapter implements the international wallet rail on the PayPal Orders
// API. Access tokens are fetched lazily via the client credentials grant
// and cached until shortly before expiry.
type Adapter struct {
	cfg    config.PayPalConfig
	client httpclient.Client
	logger *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewAdapter(cfg *config.Configuration, client httpclient.Client, logger *logger.Logger) *Adapter {
	return &Adapter{
		cfg:    cfg.Providers.PayPal,
		client: client,
		logger: logger,
	}
}

func (a *Adapter) Provider() types.ProviderType {
	return types.ProviderTypeInternationalWallet
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *Adapter) token(ctx context.Context) (string, error) {
	if a.cfg.ClientID == "" || a.cfg.ClientSecret == "" {
		return "", ierr.NewError("paypal credentials not configured").
			WithHint("PayPal payments are not activated for your account").
			Mark(ierr.ErrConfiguration)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))

	var out tokenResponse
	op := func() error {
		resp, err := a.client.Send(ctx, &httpclient.Request{
			Method: http.MethodPost,
			URL:    fmt.Sprintf("%s/v1/oauth2/token", a.cfg.BaseURL),
			Headers: map[string]string{
				"Authorization": "Basic " + basic,
				"Content-Type":  "application/x-www-form-urlencoded",
			},
			Body: []byte("grant_type=client_credentials"),
		})
		if err != nil {
			if httpErr, ok := httpclient.IsHTTPError(err); ok && httpErr.StatusCode < 500 {
				// auth failures will not heal on retry
				return backoff.Permanent(err)
			}
			return err
		}
		return json.Unmarshal(resp.Body, &out)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to authenticate with PayPal").
			Mark(ierr.ErrProvider)
	}

	a.accessToken = out.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn)*time.Second - tokenSkew)
	return a.accessToken, nil
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	ReferenceID string      `json:"reference_id,omitempty"`
	CustomID    string      `json:"custom_id,omitempty"`
	Description string      `json:"description,omitempty"`
	Amount      orderAmount `json:"amount"`
	Payments    *struct {
		Captures []struct {
			Status string      `json:"status"`
			Amount orderAmount `json:"amount"`
		} `json:"captures"`
	} `json:"payments,omitempty"`
}

type createOrderBody struct {
	Intent             string         `json:"intent"`
	PurchaseUnits      []purchaseUnit `json:"purchase_units"`
	ApplicationContext struct {
		ReturnURL string `json:"return_url,omitempty"`
		CancelURL string `json:"cancel_url,omitempty"`
	} `json:"application_context"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Links         []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (a *Adapter) CreatePayment(ctx context.Context, req *provider.CreatePaymentRequest) (*provider.CreatePaymentResult, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}

	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	payload := createOrderBody{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{
			{
				ReferenceID: req.InvoiceNumber,
				CustomID:    req.InvoiceID,
				Description: req.Description,
				Amount: orderAmount{
					CurrencyCode: req.Currency,
					Value:        req.Amount.StringFixed(2),
				},
			},
		},
	}
	payload.ApplicationContext.ReturnURL = req.RedirectURL
	payload.ApplicationContext.CancelURL = req.RedirectURL

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/v2/checkout/orders", a.cfg.BaseURL),
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
		Body: body,
	})
	if err != nil {
		return nil, a.wrapProviderError(err, req.InvoiceID)
	}

	var out orderResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unexpected response from PayPal").
			Mark(ierr.ErrProvider)
	}

	var approveLink string
	for _, l := range out.Links {
		if l.Rel == "approve" {
			approveLink = l.Href
			break
		}
	}

	return &provider.CreatePaymentResult{
		ExternalPaymentID: out.ID,
		PaymentLink:       approveLink,
	}, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, externalPaymentID string) (*provider.StatusResult, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Send(ctx, &httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v2/checkout/orders/%s", a.cfg.BaseURL, externalPaymentID),
		Headers: map[string]string{
			"Authorization": "Bearer " + token,
		},
	})
	if err != nil {
		return nil, a.wrapProviderError(err, externalPaymentID)
	}

	var out orderResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unexpected response from PayPal").
			Mark(ierr.ErrProvider)
	}

	amountPaid := decimal.Zero
	for _, pu := range out.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, c := range pu.Payments.Captures {
			if c.Status != "COMPLETED" {
				continue
			}
			v, err := decimal.NewFromString(c.Amount.Value)
			if err != nil {
				continue
			}
			amountPaid = amountPaid.Add(v)
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
		if httpErr.StatusCode == http.StatusUnauthorized {
			// force a token refresh on the next call
			a.mu.Lock()
			a.accessToken = ""
			a.mu.Unlock()
		}
		return ierr.WithError(httpErr).
			WithHint("PayPal rejected the request").
			WithReportableDetails(map[string]any{
				"reference":   ref,
				"status_code": httpErr.StatusCode,
			}).
			Mark(ierr.ErrProvider)
	}
	return ierr.WithError(err).
		WithHint("PayPal call failed").
		Mark(ierr.ErrProvider)
}

func NormalizeStatus(status string) types.NormalizedStatus {
	switch status {
	case "CREATED", "SAVED", "APPROVED", "PAYER_ACTION_REQUIRED":
		return types.NormalizedStatusPending
	case "COMPLETED":
		return types.NormalizedStatusPaid
	case "VOIDED":
		return types.NormalizedStatusCancelled
	default:
		return types.NormalizedStatusUnknown
	}
}
