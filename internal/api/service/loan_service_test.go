package service

import (
	"context"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// MockServicer for testing
type MockServicer struct {
	mock.Mock
}

func (m *MockServicer) DisburseLoan(ctx context.Context, app loan.ApplicationSnapshot) (*loan.Account, error) {
	args := m.Called(ctx, app)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Account), args.Error(1)
}

func (m *MockServicer) ApplyPayment(ctx context.Context, instr *payment.Instruction) (*payment.Payment, error) {
	args := m.Called(ctx, instr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockServicer) QuotePayoff(ctx context.Context, loanID uuid.UUID, asOf time.Time) (*loan.PayoffQuote, error) {
	args := m.Called(ctx, loanID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.PayoffQuote), args.Error(1)
}

func (m *MockServicer) SettleEarlyPayoff(ctx context.Context, loanID uuid.UUID, req servicing.EarlyPayoffRequest) (*payment.Payment, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockServicer) MarkDefaulted(ctx context.Context, loanID uuid.UUID, actorID string) (*loan.Account, error) {
	args := m.Called(ctx, loanID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Account), args.Error(1)
}

func (m *MockServicer) MarkWrittenOff(ctx context.Context, loanID uuid.UUID, actorID string) (*loan.Account, error) {
	args := m.Called(ctx, loanID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Account), args.Error(1)
}

// MockAccrualService for testing
type MockAccrualService struct {
	mock.Mock
}

func (m *MockAccrualService) RecomputeLoan(ctx context.Context, loanID uuid.UUID, asOf time.Time) (bool, error) {
	args := m.Called(ctx, loanID, asOf)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccrualService) SweepAll(ctx context.Context, asOf time.Time) servicing.SweepReport {
	args := m.Called(ctx, asOf)
	return args.Get(0).(servicing.SweepReport)
}

func (m *MockAccrualService) Shutdown() {
	m.Called()
}

// MockLoanRepository for testing
type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, acc *loan.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Account), args.Error(1)
}

func (m *MockLoanRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*loan.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Account), args.Error(1)
}

func (m *MockLoanRepository) Update(ctx context.Context, acc *loan.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockLoanRepository) ListServiceableIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockLoanRepository) WithTx(tx pgx.Tx) loan.Repository {
	return m
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func serviceTestAccount(t *testing.T) *loan.Account {
	t.Helper()
	acc, err := loan.Disburse(loan.ApplicationSnapshot{
		BorrowerName: "Marie Delva",
		NationalID:   "003-184-226-1",
		BranchCode:   "PAP-01",
		Terms: loan.Terms{
			Principal:      decimal.NewFromInt(10000),
			Currency:       "HTG",
			AnnualRate:     decimal.NewFromFloat(0.05),
			DurationMonths: 4,
			Method:         loan.MethodFlat,
			DisbursedAt:    time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			FirstDueDate:   time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC),
		},
	}, time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return acc
}

func TestLoanService_Close(t *testing.T) {
	logger := slog.Default()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Defaulted", func(t *testing.T) {
		mockServicer := &MockServicer{}
		svc := NewLoanService(logger, mockServicer, &MockAccrualService{}, &MockLoanRepository{}, fixedClock{now})

		acc := serviceTestAccount(t)
		mockServicer.On("MarkDefaulted", mock.Anything, acc.ID, "supervisor-3").Return(acc, nil)

		_, err := svc.Close(context.Background(), acc.ID, loan.StatusDefaulted, "supervisor-3")

		assert.NoError(t, err)
		mockServicer.AssertExpectations(t)
	})

	t.Run("WrittenOff", func(t *testing.T) {
		mockServicer := &MockServicer{}
		svc := NewLoanService(logger, mockServicer, &MockAccrualService{}, &MockLoanRepository{}, fixedClock{now})

		acc := serviceTestAccount(t)
		mockServicer.On("MarkWrittenOff", mock.Anything, acc.ID, "supervisor-3").Return(acc, nil)

		_, err := svc.Close(context.Background(), acc.ID, loan.StatusWrittenOff, "supervisor-3")

		assert.NoError(t, err)
		mockServicer.AssertExpectations(t)
	})

	t.Run("RejectsOtherStatuses", func(t *testing.T) {
		mockServicer := &MockServicer{}
		svc := NewLoanService(logger, mockServicer, &MockAccrualService{}, &MockLoanRepository{}, fixedClock{now})

		for _, status := range []loan.Status{loan.StatusActive, loan.StatusCompleted, loan.StatusOverdue} {
			_, err := svc.Close(context.Background(), uuid.New(), status, "supervisor-3")
			assert.ErrorIs(t, err, loan.ValidationError{Field: "status"})
		}
		mockServicer.AssertNotCalled(t, "MarkDefaulted", mock.Anything, mock.Anything, mock.Anything)
		mockServicer.AssertNotCalled(t, "MarkWrittenOff", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestLoanService_Accrue(t *testing.T) {
	logger := slog.Default()
	now := time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC)

	t.Run("ReturnsRefreshedLoan", func(t *testing.T) {
		mockAccrual := &MockAccrualService{}
		mockRepo := &MockLoanRepository{}
		svc := NewLoanService(logger, &MockServicer{}, mockAccrual, mockRepo, fixedClock{now})

		acc := serviceTestAccount(t)
		mockAccrual.On("RecomputeLoan", mock.Anything, acc.ID, now).Return(true, nil)
		mockRepo.On("GetByID", mock.Anything, acc.ID).Return(acc, nil)

		changed, refreshed, err := svc.Accrue(context.Background(), acc.ID)

		assert.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, acc, refreshed)
	})

	t.Run("NotFound", func(t *testing.T) {
		mockAccrual := &MockAccrualService{}
		svc := NewLoanService(logger, &MockServicer{}, mockAccrual, &MockLoanRepository{}, fixedClock{now})

		id := uuid.New()
		mockAccrual.On("RecomputeLoan", mock.Anything, id, now).
			Return(false, loan.LoanNotFoundError{LoanID: id})

		_, _, err := svc.Accrue(context.Background(), id)

		assert.ErrorIs(t, err, loan.LoanNotFoundError{LoanID: id})
	})
}

func TestLoanService_Sweep(t *testing.T) {
	logger := slog.Default()
	now := time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC)

	mockAccrual := &MockAccrualService{}
	svc := NewLoanService(logger, &MockServicer{}, mockAccrual, &MockLoanRepository{}, fixedClock{now})

	mockAccrual.On("SweepAll", mock.Anything, now).
		Return(servicing.SweepReport{Total: 8, Changed: 2})

	report := svc.Sweep(context.Background())

	assert.Equal(t, 8, report.Total)
	assert.Equal(t, 2, report.Changed)
	mockAccrual.AssertExpectations(t)
}
