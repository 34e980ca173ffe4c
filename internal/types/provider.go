package types

import (
	"fmt"

	"github.com/samber/lo"
)

// ProviderType identifies a payment rail. Adapters are selected via a
// registry lookup on this type, never via string comparisons in business code.
type ProviderType string

const (
	// ProviderTypeCardLink is a hosted card checkout link (Stripe)
	ProviderTypeCardLink ProviderType = "card_link"
	// ProviderTypeNLPaymentRequest is a Dutch payment-request service (Tikkie)
	ProviderTypeNLPaymentRequest ProviderType = "nl_payment_request"
	// ProviderTypeInternationalWallet is a cross-border wallet (PayPal)
	ProviderTypeInternationalWallet ProviderType = "international_wallet"
	// ProviderTypeLocalBankRedirect is a local bank redirect flow (Mollie iDEAL)
	ProviderTypeLocalBankRedirect ProviderType = "local_bank_redirect"
	// ProviderTypeBankTransfer is a manual SEPA transfer with no external API
	ProviderTypeBankTransfer ProviderType = "bank_transfer"
)

func (p ProviderType) String() string {
	return string(p)
}

func (p ProviderType) Validate() error {
	allowed := []ProviderType{
		ProviderTypeCardLink,
		ProviderTypeNLPaymentRequest,
		ProviderTypeInternationalWallet,
		ProviderTypeLocalBankRedirect,
		ProviderTypeBankTransfer,
	}
	if !lo.Contains(allowed, p) {
		return fmt.Errorf("invalid provider type: %s", p)
	}
	return nil
}

// NormalizedStatus is the provider-agnostic status vocabulary every adapter
// maps its native responses onto.
type NormalizedStatus string

const (
	NormalizedStatusPending   NormalizedStatus = "PENDING"
	NormalizedStatusPaid      NormalizedStatus = "PAID"
	NormalizedStatusCancelled NormalizedStatus = "CANCELLED"
	NormalizedStatusExpired   NormalizedStatus = "EXPIRED"
	NormalizedStatusUnknown   NormalizedStatus = "UNKNOWN"
)

func (s NormalizedStatus) String() string {
	return string(s)
}

func (s NormalizedStatus) Validate() error {
	allowed := []NormalizedStatus{
		NormalizedStatusPending,
		NormalizedStatusPaid,
		NormalizedStatusCancelled,
		NormalizedStatusExpired,
		NormalizedStatusUnknown,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid normalized status: %s", s)
	}
	return nil
}

// Rank orders statuses by strength for concurrent reconciliation: when two
// observations for the same invoice race, the stronger one wins regardless
// of arrival order. PAID outranks everything.
func (s NormalizedStatus) Rank() int {
	switch s {
	case NormalizedStatusPaid:
		return 3
	case NormalizedStatusCancelled, NormalizedStatusExpired:
		return 2
	case NormalizedStatusPending:
		return 1
	default:
		return 0
	}
}

// EventSource identifies which channel produced a reconciliation event
type EventSource string

const (
	EventSourceWebhook EventSource = "webhook"
	EventSourcePoll    EventSource = "poll"
	// EventSourceManual covers operator actions, like marking a bank
	// transfer as received
	EventSourceManual EventSource = "manual"
)

func (s EventSource) String() string {
	return string(s)
}
