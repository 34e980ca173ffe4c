package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/factuurly/factuurly/internal/domain/invoice"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/postgres"
	"github.com/factuurly/factuurly/internal/types"
)

const invoiceColumns = `id, customer_id, invoice_number, invoice_status, currency, total,
	amount_paid, description, payment_provider, external_payment_id, payment_link,
	due_date, paid_at, metadata, version, tenant_id, status, created_at, updated_at,
	created_by, updated_by`

type invoiceRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewInvoiceRepository(client postgres.IClient, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{client: client, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	query := fmt.Sprintf(`
		INSERT INTO invoices (%s) VALUES (
			:id, :customer_id, :invoice_number, :invoice_status, :currency, :total,
			:amount_paid, :description, :payment_provider, :external_payment_id, :payment_link,
			:due_date, :paid_at, :metadata, :version, :tenant_id, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)`, invoiceColumns)

	if _, err := r.client.DB().NamedExecContext(ctx, query, inv); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create invoice").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1 AND tenant_id = $2`, invoiceColumns)
	return r.getOne(ctx, query, id, types.GetTenantID(ctx))
}

// GetByID resolves an invoice for the reconciliation channels, which run
// without a caller identity in context
func (r *invoiceRepository) GetByID(ctx context.Context, id string) (*invoice.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE id = $1`, invoiceColumns)
	return r.getOne(ctx, query, id)
}

func (r *invoiceRepository) getOne(ctx context.Context, query string, args ...any) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := r.client.DB().GetContext(ctx, &inv, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("invoice not found").
				WithHint("Invoice not found").
				WithReportableDetails(map[string]any{"invoice_id": args[0]}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get invoice").
			Mark(ierr.ErrDatabase)
	}
	return &inv, nil
}

// Update commits only when the caller read the current version. A zero
// rows-affected result means a concurrent transition won; the caller
// should re-read and retry if still relevant.
func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		UPDATE invoices SET
			invoice_number = :invoice_number,
			invoice_status = :invoice_status,
			total = :total,
			amount_paid = :amount_paid,
			description = :description,
			payment_provider = :payment_provider,
			external_payment_id = :external_payment_id,
			payment_link = :payment_link,
			due_date = :due_date,
			paid_at = :paid_at,
			metadata = :metadata,
			version = version + 1,
			updated_at = NOW(),
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id AND version = :version`

	result, err := r.client.DB().NamedExecContext(ctx, query, inv)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update invoice").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError("invoice was modified concurrently").
			WithHint("Please retry the operation").
			WithReportableDetails(map[string]any{
				"invoice_id": inv.ID,
				"version":    inv.Version,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	inv.Version++
	return nil
}

func (r *invoiceRepository) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	query, args := r.buildListQuery(ctx, filter, false)

	invoices := make([]*invoice.Invoice, 0)
	if err := r.client.DB().SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}

func (r *invoiceRepository) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	query, args := r.buildListQuery(ctx, filter, true)

	var count int
	if err := r.client.DB().GetContext(ctx, &count, query, args...); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count invoices").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *invoiceRepository) ListByStatus(ctx context.Context, status types.InvoiceStatus) ([]*invoice.Invoice, error) {
	query := fmt.Sprintf(`SELECT %s FROM invoices WHERE invoice_status = $1 ORDER BY created_at`, invoiceColumns)

	invoices := make([]*invoice.Invoice, 0)
	if err := r.client.DB().SelectContext(ctx, &invoices, query, status); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices by status").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}

func (r *invoiceRepository) buildListQuery(ctx context.Context, filter *types.InvoiceFilter, count bool) (string, []any) {
	var sb strings.Builder
	if count {
		sb.WriteString(`SELECT COUNT(*) FROM invoices`)
	} else {
		sb.WriteString(fmt.Sprintf(`SELECT %s FROM invoices`, invoiceColumns))
	}

	conditions := []string{"tenant_id = $1"}
	args := []any{types.GetTenantID(ctx)}

	if filter != nil {
		if len(filter.InvoiceIDs) > 0 {
			placeholders := make([]string, len(filter.InvoiceIDs))
			for i, id := range filter.InvoiceIDs {
				args = append(args, id)
				placeholders[i] = fmt.Sprintf("$%d", len(args))
			}
			conditions = append(conditions, fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ", ")))
		}
		if filter.CustomerID != nil {
			args = append(args, *filter.CustomerID)
			conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
		}
		if filter.InvoiceStatus != nil {
			args = append(args, *filter.InvoiceStatus)
			conditions = append(conditions, fmt.Sprintf("invoice_status = $%d", len(args)))
		}
	}

	sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))

	if !count {
		sb.WriteString(" ORDER BY created_at DESC")
		if filter != nil && !filter.IsUnlimited() {
			args = append(args, filter.GetLimit())
			sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
			args = append(args, filter.GetOffset())
			sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
		}
	}

	return sb.String(), args
}
