package types

import (
	"fmt"

	"github.com/samber/lo"
)

// InvoiceStatus is the canonical payment state of an invoice, as opposed to
// any one provider's native status string.
type InvoiceStatus string

const (
	// InvoiceStatusDraft means no payment has been requested yet
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	// InvoiceStatusSent means a payment link or request was created and funds are awaited
	InvoiceStatusSent InvoiceStatus = "SENT"
	// InvoiceStatusPaid is terminal
	InvoiceStatusPaid InvoiceStatus = "PAID"
	// InvoiceStatusCancelled is terminal (provider-side cancellation or expiry)
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
	// InvoiceStatusOverdue is non-terminal and re-enterable to SENT or PAID
	InvoiceStatusOverdue InvoiceStatus = "OVERDUE"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowed := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusSent,
		InvoiceStatusPaid,
		InvoiceStatusCancelled,
		InvoiceStatusOverdue,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid invoice status: %s", s)
	}
	return nil
}

// IsTerminal reports whether the status may never be left by reconciliation.
// A manual override (out of reconciliation scope) is the only way back.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}
