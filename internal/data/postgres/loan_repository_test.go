package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/microfin-loan-servicing/internal/domain/loan"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testAccount(t *testing.T) *loan.Account {
	t.Helper()
	disbursed := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	acc, err := loan.Disburse(loan.ApplicationSnapshot{
		BorrowerName: "Marie Jean",
		NationalID:   "HT123456789",
		BranchCode:   "PAP-01",
		Terms: loan.Terms{
			Principal:      decimal.NewFromInt(10000),
			Currency:       "HTG",
			AnnualRate:     decimal.NewFromFloat(0.05),
			DurationMonths: 4,
			Method:         loan.MethodFlat,
			Fee:            decimal.Zero,
			DisbursedAt:    disbursed,
			FirstDueDate:   disbursed.AddDate(0, 1, 0),
		},
	}, disbursed)
	require.NoError(t, err)
	return acc
}

func installmentRows(acc *loan.Account) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"number", "due_date", "principal", "interest", "fee",
		"paid_principal", "paid_interest", "paid_penalty", "penalty", "days_overdue", "status", "paid_at",
	})
	for _, inst := range acc.Installments {
		rows.AddRow(inst.Number, inst.DueDate, inst.Principal, inst.Interest, inst.Fee,
			inst.PaidPrincipal, inst.PaidInterest, inst.PaidPenalty, inst.Penalty, inst.DaysOverdue, inst.Status, inst.PaidAt)
	}
	return rows
}

func loanRow(acc *loan.Account) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "borrower_name", "national_id", "branch_code",
		"principal", "currency", "annual_rate", "duration_months", "method", "fee", "disbursed_at", "first_due_date",
		"outstanding_principal", "outstanding_interest", "outstanding_penalty",
		"paid_principal", "paid_interest", "paid_penalty",
		"installments_paid", "status", "next_due_date", "version", "created_at", "updated_at",
	}).AddRow(
		acc.ID, acc.BorrowerName, acc.NationalID, acc.BranchCode,
		acc.Terms.Principal, acc.Terms.Currency, acc.Terms.AnnualRate, acc.Terms.DurationMonths, acc.Terms.Method, acc.Terms.Fee, acc.Terms.DisbursedAt, acc.Terms.FirstDueDate,
		acc.OutstandingPrincipal, acc.OutstandingInterest, acc.OutstandingPenalty,
		acc.PaidPrincipal, acc.PaidInterest, acc.PaidPenalty,
		acc.InstallmentsPaid, acc.Status, acc.NextDueDate, acc.Version, acc.CreatedAt, acc.UpdatedAt,
	)
}

func TestLoanRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LoanRepository{querier: mock, logger: logger}
	acc := testAccount(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO loans`).
			WithArgs(acc.ID, acc.BorrowerName, acc.NationalID, acc.BranchCode,
				acc.Terms.Principal, acc.Terms.Currency, acc.Terms.AnnualRate, acc.Terms.DurationMonths, acc.Terms.Method, acc.Terms.Fee, acc.Terms.DisbursedAt, acc.Terms.FirstDueDate,
				acc.OutstandingPrincipal, acc.OutstandingInterest, acc.OutstandingPenalty,
				acc.PaidPrincipal, acc.PaidInterest, acc.PaidPenalty,
				acc.InstallmentsPaid, acc.Status, acc.NextDueDate, acc.Version, acc.CreatedAt, acc.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		for _, inst := range acc.Installments {
			mock.ExpectExec(`INSERT INTO installments`).
				WithArgs(acc.ID, inst.Number, inst.DueDate, inst.Principal, inst.Interest, inst.Fee,
					inst.PaidPrincipal, inst.PaidInterest, inst.PaidPenalty, inst.Penalty, inst.DaysOverdue, inst.Status, inst.PaidAt).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}

		err := repo.Create(ctx, acc)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(`INSERT INTO loans`).
			WithArgs(acc.ID, acc.BorrowerName, acc.NationalID, acc.BranchCode,
				acc.Terms.Principal, acc.Terms.Currency, acc.Terms.AnnualRate, acc.Terms.DurationMonths, acc.Terms.Method, acc.Terms.Fee, acc.Terms.DisbursedAt, acc.Terms.FirstDueDate,
				acc.OutstandingPrincipal, acc.OutstandingInterest, acc.OutstandingPenalty,
				acc.PaidPrincipal, acc.PaidInterest, acc.PaidPenalty,
				acc.InstallmentsPaid, acc.Status, acc.NextDueDate, acc.Version, acc.CreatedAt, acc.UpdatedAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, acc)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create loan")
		assert.ErrorIs(t, err, expectedErr) // Check underlying error if wrapped
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LoanRepository{querier: mock, logger: logger}
	acc := testAccount(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, borrower_name`).WithArgs(acc.ID).WillReturnRows(loanRow(acc))
		mock.ExpectQuery(`SELECT number, due_date`).WithArgs(acc.ID).WillReturnRows(installmentRows(acc))

		got, err := repo.GetByID(ctx, acc.ID)
		assert.NoError(t, err)
		assert.Equal(t, acc, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, borrower_name`).WithArgs(acc.ID).WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(ctx, acc.ID)
		assert.Error(t, err)
		assert.Nil(t, got)
		var notFoundErr loan.LoanNotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, acc.ID, notFoundErr.LoanID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("some db error")
		mock.ExpectQuery(`SELECT id, borrower_name`).WithArgs(acc.ID).WillReturnError(dbErr)

		got, err := repo.GetByID(ctx, acc.ID)
		assert.Error(t, err)
		assert.Nil(t, got)
		assert.Contains(t, err.Error(), "failed to get loan")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanRepository_LockForUpdate(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LoanRepository{querier: mock, logger: logger}
	acc := testAccount(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(`FOR UPDATE`).WithArgs(acc.ID).WillReturnRows(loanRow(acc))
		mock.ExpectQuery(`SELECT number, due_date`).WithArgs(acc.ID).WillReturnRows(installmentRows(acc))

		got, err := repo.LockForUpdate(ctx, acc.ID)
		assert.NoError(t, err)
		assert.Equal(t, acc, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`FOR UPDATE`).WithArgs(acc.ID).WillReturnError(pgx.ErrNoRows)

		got, err := repo.LockForUpdate(ctx, acc.ID)
		assert.Error(t, err)
		assert.Nil(t, got)
		var notFoundErr loan.LoanNotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanRepository_Update(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LoanRepository{querier: mock, logger: logger}
	acc := testAccount(t)
	acc.Version = 2 // New version after update
	previousVersion := acc.Version - 1

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE loans`).
			WithArgs(acc.OutstandingPrincipal, acc.OutstandingInterest, acc.OutstandingPenalty,
				acc.PaidPrincipal, acc.PaidInterest, acc.PaidPenalty,
				acc.InstallmentsPaid, acc.Status, acc.NextDueDate, acc.Version, acc.UpdatedAt,
				acc.ID, previousVersion).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		for _, inst := range acc.Installments {
			mock.ExpectExec(`UPDATE installments`).
				WithArgs(inst.Interest, inst.Fee, inst.PaidPrincipal, inst.PaidInterest, inst.PaidPenalty,
					inst.Penalty, inst.DaysOverdue, inst.Status, inst.PaidAt, acc.ID, inst.Number).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		}

		err := repo.Update(ctx, acc)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent modification", func(t *testing.T) {
		mock.ExpectExec(`UPDATE loans`).
			WithArgs(acc.OutstandingPrincipal, acc.OutstandingInterest, acc.OutstandingPenalty,
				acc.PaidPrincipal, acc.PaidInterest, acc.PaidPenalty,
				acc.InstallmentsPaid, acc.Status, acc.NextDueDate, acc.Version, acc.UpdatedAt,
				acc.ID, previousVersion).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0)) // 0 rows affected

		err := repo.Update(ctx, acc)
		assert.Error(t, err)
		var conflictErr loan.ConcurrencyConflictError
		assert.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, acc.ID, conflictErr.LoanID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("update db error")
		mock.ExpectExec(`UPDATE loans`).
			WithArgs(acc.OutstandingPrincipal, acc.OutstandingInterest, acc.OutstandingPenalty,
				acc.PaidPrincipal, acc.PaidInterest, acc.PaidPenalty,
				acc.InstallmentsPaid, acc.Status, acc.NextDueDate, acc.Version, acc.UpdatedAt,
				acc.ID, previousVersion).
			WillReturnError(dbErr)

		err := repo.Update(ctx, acc)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update loan")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanRepository_ListServiceableIDs(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &LoanRepository{querier: mock, logger: logger}

	t.Run("success", func(t *testing.T) {
		id1, id2 := uuid.New(), uuid.New()
		rows := pgxmock.NewRows([]string{"id"}).AddRow(id1).AddRow(id2)
		mock.ExpectQuery(`SELECT id\s+FROM loans`).
			WithArgs(loan.StatusActive, loan.StatusOverdue).
			WillReturnRows(rows)

		ids, err := repo.ListServiceableIDs(ctx)
		assert.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id1, id2}, ids)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("list db error")
		mock.ExpectQuery(`SELECT id\s+FROM loans`).
			WithArgs(loan.StatusActive, loan.StatusOverdue).
			WillReturnError(dbErr)

		ids, err := repo.ListServiceableIDs(ctx)
		assert.Error(t, err)
		assert.Nil(t, ids)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanRepository_WithTx(t *testing.T) {
	logger := newTestLogger()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	// Original repository with a pool
	originalRepo := &LoanRepository{querier: mockPool, logger: logger}

	mockPool.ExpectBegin()
	pgxTx, err := mockPool.Begin(context.Background())
	require.NoError(t, err)

	txRepo := originalRepo.WithTx(pgxTx)

	assert.NotNil(t, txRepo)
	assert.Equal(t, originalRepo.logger, txRepo.(*LoanRepository).logger)
	assert.Equal(t, pgxTx, txRepo.(*LoanRepository).querier, "Querier in new repo should be the transaction")

	assert.NoError(t, mockPool.ExpectationsWereMet())
}
