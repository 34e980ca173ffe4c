package types

import (
	"fmt"

	"github.com/samber/lo"
)

const (
	FilterDefaultLimit = 50
	FilterMaxLimit     = 1000
)

// BaseFilter is the pagination behavior every list filter shares
type BaseFilter interface {
	GetLimit() int
	GetOffset() int
	IsUnlimited() bool
	Validate() error
}

// QueryFilter carries common pagination fields for list operations
type QueryFilter struct {
	Limit  *int `form:"limit" json:"limit,omitempty"`
	Offset *int `form:"offset" json:"offset,omitempty"`
}

func NewDefaultQueryFilter() *QueryFilter {
	return &QueryFilter{
		Limit:  lo.ToPtr(FilterDefaultLimit),
		Offset: lo.ToPtr(0),
	}
}

// NewNoLimitQueryFilter returns a filter that fetches everything
func NewNoLimitQueryFilter() *QueryFilter {
	return &QueryFilter{
		Offset: lo.ToPtr(0),
	}
}

func (f *QueryFilter) GetLimit() int {
	if f == nil || f.Limit == nil {
		return FilterDefaultLimit
	}
	return *f.Limit
}

func (f *QueryFilter) GetOffset() int {
	if f == nil || f.Offset == nil {
		return 0
	}
	return *f.Offset
}

// IsUnlimited returns true if the filter has no limit
func (f *QueryFilter) IsUnlimited() bool {
	return f != nil && f.Limit == nil
}

func (f *QueryFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.Limit != nil && (*f.Limit < 0 || *f.Limit > FilterMaxLimit) {
		return fmt.Errorf("limit must be between 0 and %d", FilterMaxLimit)
	}
	if f.Offset != nil && *f.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return nil
}

// InvoiceFilter represents the filter for listing invoices
type InvoiceFilter struct {
	*QueryFilter

	InvoiceIDs    []string `form:"invoice_ids"`
	CustomerID    *string  `form:"customer_id"`
	InvoiceStatus *string  `form:"invoice_status"`
}

func (f *InvoiceFilter) Validate() error {
	if f == nil {
		return nil
	}
	return f.QueryFilter.Validate()
}

// PaymentAttemptFilter represents the filter for listing payment attempts
type PaymentAttemptFilter struct {
	*QueryFilter

	InvoiceID  *string `form:"invoice_id"`
	Provider   *string `form:"provider"`
	ActiveOnly bool    `form:"active_only"`
}

func (f *PaymentAttemptFilter) Validate() error {
	if f == nil {
		return nil
	}
	return f.QueryFilter.Validate()
}
