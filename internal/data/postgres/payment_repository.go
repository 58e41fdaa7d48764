package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/platform/persistence"
)

// PaymentRepository implements the payment.Repository interface for PostgreSQL
type PaymentRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewPaymentRepository creates a new PostgreSQL payment repository
func NewPaymentRepository(logger *slog.Logger, db *persistence.PostgresDB) payment.Repository {
	return &PaymentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so the payment record is
// written atomically with the loan mutation it belongs to
func (r *PaymentRepository) WithTx(tx pgx.Tx) payment.Repository {
	return &PaymentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const paymentColumns = `id, loan_id, amount, currency, mode,
		principal_applied, interest_applied, penalty_applied,
		value_date, method, reference, teller_id,
		snapshot_principal, snapshot_interest, snapshot_penalty, created_at`

// Create stores a new payment record. Payments are append-only; the primary
// key constraint rejects redelivery of an already-applied instruction.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.LoanID,
		p.Amount,
		p.Currency,
		p.Mode,
		p.PrincipalApplied,
		p.InterestApplied,
		p.PenaltyApplied,
		p.ValueDate,
		p.Method,
		p.Reference,
		p.TellerID,
		p.Snapshot.Principal,
		p.Snapshot.Interest,
		p.Snapshot.Penalty,
		p.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payment", "id", p.ID.String(), "error", err)
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by its ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = $1
	`

	p, err := r.scanPayment(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound{PaymentID: id}
		}
		r.logger.Error("Failed to get payment", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return p, nil
}

// GetByLoanID retrieves paginated payments for a loan, newest first
func (r *PaymentRepository) GetByLoanID(ctx context.Context, loanID uuid.UUID, limit, offset int) ([]*payment.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE loan_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, loanID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to get payments by loan", "loan_id", loanID.String(), "error", err)
		return nil, fmt.Errorf("failed to get payments by loan: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	return payments, nil
}

// CountByLoanID returns the number of payments recorded for a loan
func (r *PaymentRepository) CountByLoanID(ctx context.Context, loanID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM payments
		WHERE loan_id = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, loanID).Scan(&count); err != nil {
		r.logger.Error("Failed to count payments by loan", "loan_id", loanID.String(), "error", err)
		return 0, fmt.Errorf("failed to count payments by loan: %w", err)
	}

	return count, nil
}

func (r *PaymentRepository) scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(
		&p.ID,
		&p.LoanID,
		&p.Amount,
		&p.Currency,
		&p.Mode,
		&p.PrincipalApplied,
		&p.InterestApplied,
		&p.PenaltyApplied,
		&p.ValueDate,
		&p.Method,
		&p.Reference,
		&p.TellerID,
		&p.Snapshot.Principal,
		&p.Snapshot.Interest,
		&p.Snapshot.Penalty,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
