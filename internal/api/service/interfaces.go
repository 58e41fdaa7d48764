package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/domain/payment"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// LoanService exposes loan lifecycle operations to the API layer
type LoanService interface {
	Disburse(ctx context.Context, app loan.ApplicationSnapshot) (*loan.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*loan.Account, error)
	QuotePayoff(ctx context.Context, id uuid.UUID, asOf time.Time) (*loan.PayoffQuote, error)
	SettlePayoff(ctx context.Context, id uuid.UUID, req servicing.EarlyPayoffRequest) (*payment.Payment, error)
	Close(ctx context.Context, id uuid.UUID, status loan.Status, actorID string) (*loan.Account, error)
	Accrue(ctx context.Context, id uuid.UUID) (bool, *loan.Account, error)
	Sweep(ctx context.Context) servicing.SweepReport
}

// PaymentService applies payments synchronously and queues asynchronous
// payment instructions for the worker
type PaymentService interface {
	Apply(ctx context.Context, instr *payment.Instruction) (*payment.Payment, error)
	Enqueue(ctx context.Context, instr *payment.Instruction) error
	GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	ListByLoan(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*payment.Payment, int64, error)
}

// NoteService manages the collection notes and audit trail of a loan
type NoteService interface {
	AddNote(ctx context.Context, loanID uuid.UUID, author, text string) (*audit.CollectionNote, error)
	ListNotes(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*audit.CollectionNote, int64, error)
	ListEvents(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*audit.Event, int64, error)
}
