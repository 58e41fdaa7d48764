// Package postgres provides PostgreSQL implementations of the domain repositories.
// It handles all database operations while maintaining transaction safety and
// proper error handling for the loan servicing system.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/platform/persistence"
)

// LoanRepository implements the loan.Repository interface for PostgreSQL.
// The aggregate spans two tables: loans and installments. Loads and stores
// always cover the full installment schedule.
type LoanRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewLoanRepository creates a new PostgreSQL loan repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewLoanRepository(logger *slog.Logger, db *persistence.PostgresDB) loan.Repository {
	return &LoanRepository{
		querier: db.Pool(), // Initialize with the pool
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic operations
// across multiple repository calls. The returned repository will use the provided
// transaction for all database operations.
func (r *LoanRepository) WithTx(tx pgx.Tx) loan.Repository {
	return &LoanRepository{
		querier: tx, // Use the transaction
		logger:  r.logger,
	}
}

const loanColumns = `id, borrower_name, national_id, branch_code,
		principal, currency, annual_rate, duration_months, method, fee, disbursed_at, first_due_date,
		outstanding_principal, outstanding_interest, outstanding_penalty,
		paid_principal, paid_interest, paid_penalty,
		installments_paid, status, next_due_date, version, created_at, updated_at`

// Create stores a new loan account together with its installment schedule
func (r *LoanRepository) Create(ctx context.Context, acc *loan.Account) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.BorrowerName,
		acc.NationalID,
		acc.BranchCode,
		acc.Terms.Principal,
		acc.Terms.Currency,
		acc.Terms.AnnualRate,
		acc.Terms.DurationMonths,
		acc.Terms.Method,
		acc.Terms.Fee,
		acc.Terms.DisbursedAt,
		acc.Terms.FirstDueDate,
		acc.OutstandingPrincipal,
		acc.OutstandingInterest,
		acc.OutstandingPenalty,
		acc.PaidPrincipal,
		acc.PaidInterest,
		acc.PaidPenalty,
		acc.InstallmentsPaid,
		acc.Status,
		acc.NextDueDate,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create loan", "error", err)
		return fmt.Errorf("failed to create loan: %w", err)
	}

	insertInstallment := `
		INSERT INTO installments (loan_id, number, due_date, principal, interest, fee,
			paid_principal, paid_interest, paid_penalty, penalty, days_overdue, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	for _, inst := range acc.Installments {
		_, err := r.querier.Exec(ctx, insertInstallment,
			acc.ID,
			inst.Number,
			inst.DueDate,
			inst.Principal,
			inst.Interest,
			inst.Fee,
			inst.PaidPrincipal,
			inst.PaidInterest,
			inst.PaidPenalty,
			inst.Penalty,
			inst.DaysOverdue,
			inst.Status,
			inst.PaidAt,
		)
		if err != nil {
			r.logger.Error("Failed to create installment", "loan_id", acc.ID.String(), "number", inst.Number, "error", err)
			return fmt.Errorf("failed to create installment %d: %w", inst.Number, err)
		}
	}

	return nil
}

// GetByID retrieves a loan and its installment schedule by loan ID
func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.Account, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1
	`
	return r.fetch(ctx, query, id)
}

// LockForUpdate obtains a pessimistic lock on the loan row and returns the
// aggregate. This should be used within a transaction when strong consistency
// is required, i.e. for every payment or accrual mutation.
func (r *LoanRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*loan.Account, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1
		FOR UPDATE
	`
	return r.fetch(ctx, query, id)
}

func (r *LoanRepository) fetch(ctx context.Context, query string, id uuid.UUID) (*loan.Account, error) {
	var acc loan.Account
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&acc.ID,
		&acc.BorrowerName,
		&acc.NationalID,
		&acc.BranchCode,
		&acc.Terms.Principal,
		&acc.Terms.Currency,
		&acc.Terms.AnnualRate,
		&acc.Terms.DurationMonths,
		&acc.Terms.Method,
		&acc.Terms.Fee,
		&acc.Terms.DisbursedAt,
		&acc.Terms.FirstDueDate,
		&acc.OutstandingPrincipal,
		&acc.OutstandingInterest,
		&acc.OutstandingPenalty,
		&acc.PaidPrincipal,
		&acc.PaidInterest,
		&acc.PaidPenalty,
		&acc.InstallmentsPaid,
		&acc.Status,
		&acc.NextDueDate,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.LoanNotFoundError{LoanID: id}
		}
		r.logger.Error("Failed to get loan", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	installments, err := r.fetchInstallments(ctx, id)
	if err != nil {
		return nil, err
	}
	acc.Installments = installments

	return &acc, nil
}

func (r *LoanRepository) fetchInstallments(ctx context.Context, loanID uuid.UUID) ([]*loan.Installment, error) {
	query := `
		SELECT number, due_date, principal, interest, fee,
			paid_principal, paid_interest, paid_penalty, penalty, days_overdue, status, paid_at
		FROM installments
		WHERE loan_id = $1
		ORDER BY number ASC
	`

	rows, err := r.querier.Query(ctx, query, loanID)
	if err != nil {
		r.logger.Error("Failed to get installments", "loan_id", loanID.String(), "error", err)
		return nil, fmt.Errorf("failed to get installments: %w", err)
	}
	defer rows.Close()

	var installments []*loan.Installment
	for rows.Next() {
		var inst loan.Installment
		err := rows.Scan(
			&inst.Number,
			&inst.DueDate,
			&inst.Principal,
			&inst.Interest,
			&inst.Fee,
			&inst.PaidPrincipal,
			&inst.PaidInterest,
			&inst.PaidPenalty,
			&inst.Penalty,
			&inst.DaysOverdue,
			&inst.Status,
			&inst.PaidAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		installments = append(installments, &inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate installments: %w", err)
	}

	return installments, nil
}

// Update persists the loan aggregate using optimistic locking. The version
// check on the loans row also guards the installment writes, since every
// mutation path bumps the account version.
func (r *LoanRepository) Update(ctx context.Context, acc *loan.Account) error {
	query := `
		UPDATE loans
		SET outstanding_principal = $1, outstanding_interest = $2, outstanding_penalty = $3,
			paid_principal = $4, paid_interest = $5, paid_penalty = $6,
			installments_paid = $7, status = $8, next_due_date = $9, version = $10, updated_at = $11
		WHERE id = $12 AND version = $13
	`

	result, err := r.querier.Exec(ctx, query,
		acc.OutstandingPrincipal,
		acc.OutstandingInterest,
		acc.OutstandingPenalty,
		acc.PaidPrincipal,
		acc.PaidInterest,
		acc.PaidPenalty,
		acc.InstallmentsPaid,
		acc.Status,
		acc.NextDueDate,
		acc.Version,
		acc.UpdatedAt,
		acc.ID,
		acc.Version-1, // Check previous version for optimistic locking
	)
	if err != nil {
		r.logger.Error("Failed to update loan", "id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to update loan: %w", err)
	}

	if result.RowsAffected() == 0 {
		return loan.ConcurrencyConflictError{LoanID: acc.ID}
	}

	updateInstallment := `
		UPDATE installments
		SET interest = $1, fee = $2, paid_principal = $3, paid_interest = $4, paid_penalty = $5,
			penalty = $6, days_overdue = $7, status = $8, paid_at = $9
		WHERE loan_id = $10 AND number = $11
	`
	for _, inst := range acc.Installments {
		_, err := r.querier.Exec(ctx, updateInstallment,
			inst.Interest,
			inst.Fee,
			inst.PaidPrincipal,
			inst.PaidInterest,
			inst.PaidPenalty,
			inst.Penalty,
			inst.DaysOverdue,
			inst.Status,
			inst.PaidAt,
			acc.ID,
			inst.Number,
		)
		if err != nil {
			r.logger.Error("Failed to update installment", "loan_id", acc.ID.String(), "number", inst.Number, "error", err)
			return fmt.Errorf("failed to update installment %d: %w", inst.Number, err)
		}
	}

	return nil
}

// ListServiceableIDs returns the IDs of all loans subject to overdue accrual
func (r *LoanRepository) ListServiceableIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM loans
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
	`

	rows, err := r.querier.Query(ctx, query, loan.StatusActive, loan.StatusOverdue)
	if err != nil {
		r.logger.Error("Failed to list serviceable loans", "error", err)
		return nil, fmt.Errorf("failed to list serviceable loans: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan loan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate loan ids: %w", err)
	}

	return ids, nil
}
