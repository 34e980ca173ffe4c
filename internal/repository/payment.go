package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/factuurly/factuurly/internal/domain/payment"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/factuurly/factuurly/internal/postgres"
	"github.com/factuurly/factuurly/internal/types"
	"github.com/jmoiron/sqlx"
)

const attemptColumns = `id, invoice_id, provider, external_payment_id, payment_link,
	external_status, normalized_status, amount, currency, active, superseded_at,
	last_checked_at, error_message, metadata, tenant_id, status, created_at, updated_at,
	created_by, updated_by`

type paymentRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

func NewPaymentRepository(client postgres.IClient, logger *logger.Logger) payment.Repository {
	return &paymentRepository{client: client, logger: logger}
}

// Create inserts the attempt and supersedes any previously active attempt
// for the same invoice in one transaction
func (r *paymentRepository) Create(ctx context.Context, attempt *payment.Attempt) error {
	return r.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		supersede := `
			UPDATE payment_attempts
			SET active = FALSE, superseded_at = NOW(), updated_at = NOW()
			WHERE invoice_id = $1 AND active = TRUE`
		if _, err := tx.ExecContext(ctx, supersede, attempt.InvoiceID); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to supersede prior payment attempt").
				Mark(ierr.ErrDatabase)
		}

		attempt.Active = true
		insert := fmt.Sprintf(`
			INSERT INTO payment_attempts (%s) VALUES (
				:id, :invoice_id, :provider, :external_payment_id, :payment_link,
				:external_status, :normalized_status, :amount, :currency, :active, :superseded_at,
				:last_checked_at, :error_message, :metadata, :tenant_id, :status, :created_at, :updated_at,
				:created_by, :updated_by
			)`, attemptColumns)
		if _, err := tx.NamedExecContext(ctx, insert, attempt); err != nil {
			return ierr.WithError(err).
				WithHint("Failed to create payment attempt").
				Mark(ierr.ErrDatabase)
		}
		return nil
	})
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Attempt, error) {
	var attempt payment.Attempt
	query := fmt.Sprintf(`SELECT %s FROM payment_attempts WHERE id = $1`, attemptColumns)

	err := r.client.DB().GetContext(ctx, &attempt, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("payment attempt not found").
				WithHint("Payment attempt not found").
				WithReportableDetails(map[string]any{"attempt_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment attempt").
			Mark(ierr.ErrDatabase)
	}
	return &attempt, nil
}

func (r *paymentRepository) Update(ctx context.Context, attempt *payment.Attempt) error {
	query := `
		UPDATE payment_attempts SET
			external_status = :external_status,
			normalized_status = :normalized_status,
			active = :active,
			superseded_at = :superseded_at,
			last_checked_at = :last_checked_at,
			error_message = :error_message,
			metadata = :metadata,
			updated_at = NOW(),
			updated_by = :updated_by
		WHERE id = :id`

	if _, err := r.client.DB().NamedExecContext(ctx, query, attempt); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update payment attempt").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentRepository) List(ctx context.Context, filter *types.PaymentAttemptFilter) ([]*payment.Attempt, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`SELECT %s FROM payment_attempts`, attemptColumns))

	var conditions []string
	var args []any

	if filter != nil {
		if filter.InvoiceID != nil {
			args = append(args, *filter.InvoiceID)
			conditions = append(conditions, fmt.Sprintf("invoice_id = $%d", len(args)))
		}
		if filter.Provider != nil {
			args = append(args, *filter.Provider)
			conditions = append(conditions, fmt.Sprintf("provider = $%d", len(args)))
		}
		if filter.ActiveOnly {
			conditions = append(conditions, "active = TRUE")
		}
	}

	if len(conditions) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	if filter != nil && !filter.IsUnlimited() {
		args = append(args, filter.GetLimit())
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
		args = append(args, filter.GetOffset())
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	attempts := make([]*payment.Attempt, 0)
	if err := r.client.DB().SelectContext(ctx, &attempts, sb.String(), args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payment attempts").
			Mark(ierr.ErrDatabase)
	}
	return attempts, nil
}

func (r *paymentRepository) GetActiveByInvoice(ctx context.Context, invoiceID string) (*payment.Attempt, error) {
	var attempt payment.Attempt
	query := fmt.Sprintf(`SELECT %s FROM payment_attempts WHERE invoice_id = $1 AND active = TRUE`, attemptColumns)

	err := r.client.DB().GetContext(ctx, &attempt, query, invoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("no active payment attempt").
				WithHint("No active payment attempt for this invoice").
				WithReportableDetails(map[string]any{"invoice_id": invoiceID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get active payment attempt").
			Mark(ierr.ErrDatabase)
	}
	return &attempt, nil
}

func (r *paymentRepository) GetByExternalID(ctx context.Context, provider types.ProviderType, externalPaymentID string) (*payment.Attempt, error) {
	var attempt payment.Attempt
	query := fmt.Sprintf(`SELECT %s FROM payment_attempts WHERE provider = $1 AND external_payment_id = $2`, attemptColumns)

	err := r.client.DB().GetContext(ctx, &attempt, query, provider, externalPaymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("payment attempt not found").
				WithHint("No payment attempt with this external id").
				WithReportableDetails(map[string]any{
					"provider":            provider.String(),
					"external_payment_id": externalPaymentID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to resolve payment attempt").
			Mark(ierr.ErrDatabase)
	}
	return &attempt, nil
}
