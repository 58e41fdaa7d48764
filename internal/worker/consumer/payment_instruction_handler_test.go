package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
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

// MockDeadLetterPublisher for testing
type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func validInstruction() *payment.Instruction {
	return &payment.Instruction{
		ID:     uuid.New(),
		LoanID: uuid.New(),
		Amount: decimal.NewFromInt(2500),
		Mode:   loan.ModeStandard,
		Method: payment.MethodMobile,
	}
}

func TestHandleMessage_Success(t *testing.T) {
	mockServicer := &MockServicer{}
	mockDLQ := &MockDeadLetterPublisher{}
	handler := NewPaymentInstructionHandler(slog.Default(), mockServicer, mockDLQ)

	instr := validInstruction()
	value, err := json.Marshal(instr)
	require.NoError(t, err)

	applied := &payment.Payment{ID: instr.ID, LoanID: instr.LoanID, Amount: instr.Amount}
	mockServicer.On("ApplyPayment", mock.Anything, mock.AnythingOfType("*payment.Instruction")).
		Return(applied, nil)

	err = handler.HandleMessage(context.Background(), []byte(instr.LoanID.String()), value)

	assert.NoError(t, err)
	mockServicer.AssertExpectations(t)
	mockDLQ.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_MalformedGoesToDLQ(t *testing.T) {
	mockServicer := &MockServicer{}
	mockDLQ := &MockDeadLetterPublisher{}
	handler := NewPaymentInstructionHandler(slog.Default(), mockServicer, mockDLQ)

	value := []byte(`{not json`)
	mockDLQ.On("PublishToDLQ", mock.Anything, "key-1", value, mock.AnythingOfType("string")).Return(nil)

	err := handler.HandleMessage(context.Background(), []byte("key-1"), value)

	assert.NoError(t, err) // Committed after DLQ
	mockDLQ.AssertExpectations(t)
	mockServicer.AssertNotCalled(t, "ApplyPayment", mock.Anything, mock.Anything)
}

func TestHandleMessage_MalformedWithoutDLQRetries(t *testing.T) {
	mockServicer := &MockServicer{}
	handler := NewPaymentInstructionHandler(slog.Default(), mockServicer, nil)

	err := handler.HandleMessage(context.Background(), []byte("key-1"), []byte(`{not json`))

	assert.Error(t, err)
}

func TestHandleMessage_BusinessRejectionGoesToDLQ(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "overpayment", err: loan.OverpaymentError{Amount: decimal.NewFromInt(9999), Outstanding: decimal.NewFromInt(100)}},
		{name: "loan closed", err: loan.LoanClosedError{LoanID: uuid.New(), Status: loan.StatusCompleted}},
		{name: "loan not found", err: loan.LoanNotFoundError{LoanID: uuid.New()}},
		{name: "validation", err: loan.ValidationError{Field: "amount", Reason: "must be positive"}},
		{name: "allocation mismatch", err: loan.AllocationMismatchError{Reason: "split does not sum to payment amount"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServicer := &MockServicer{}
			mockDLQ := &MockDeadLetterPublisher{}
			handler := NewPaymentInstructionHandler(slog.Default(), mockServicer, mockDLQ)

			instr := validInstruction()
			value, err := json.Marshal(instr)
			require.NoError(t, err)

			mockServicer.On("ApplyPayment", mock.Anything, mock.AnythingOfType("*payment.Instruction")).
				Return(nil, tt.err)
			mockDLQ.On("PublishToDLQ", mock.Anything, mock.Anything, value, tt.err.Error()).Return(nil)

			err = handler.HandleMessage(context.Background(), []byte(instr.LoanID.String()), value)

			assert.NoError(t, err) // Committed after DLQ
			mockDLQ.AssertExpectations(t)
		})
	}
}

func TestHandleMessage_TransientFailureRetries(t *testing.T) {
	mockServicer := &MockServicer{}
	mockDLQ := &MockDeadLetterPublisher{}
	handler := NewPaymentInstructionHandler(slog.Default(), mockServicer, mockDLQ)

	instr := validInstruction()
	value, err := json.Marshal(instr)
	require.NoError(t, err)

	tests := []struct {
		name string
		err  error
	}{
		{name: "lock conflict", err: loan.ConcurrencyConflictError{LoanID: instr.LoanID}},
		{name: "infrastructure error", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockServicer := &MockServicer{}
			handler = NewPaymentInstructionHandler(slog.Default(), mockServicer, mockDLQ)
			mockServicer.On("ApplyPayment", mock.Anything, mock.AnythingOfType("*payment.Instruction")).
				Return(nil, tt.err)

			err := handler.HandleMessage(context.Background(), []byte(instr.LoanID.String()), value)

			assert.Error(t, err) // Left for redelivery
			mockDLQ.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
