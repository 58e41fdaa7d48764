package service

import (
	"context"

	"log/slog"

	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/loan"
	"github.com/microfin-loan-servicing/internal/servicing"
)

// NoteServiceImpl implements the NoteService interface over the mongo-backed
// audit store
type NoteServiceImpl struct {
	auditRepo audit.Repository
	loanRepo  loan.Repository
	clock     servicing.Clock
	logger    *slog.Logger
}

// NewNoteService creates a new note service
func NewNoteService(logger *slog.Logger, auditRepo audit.Repository, loanRepo loan.Repository, clock servicing.Clock) NoteService {
	return &NoteServiceImpl{
		auditRepo: auditRepo,
		loanRepo:  loanRepo,
		clock:     clock,
		logger:    logger,
	}
}

// AddNote records a collection note against an existing loan
func (s *NoteServiceImpl) AddNote(ctx context.Context, loanID uuid.UUID, author, text string) (*audit.CollectionNote, error) {
	// Notes must reference a real loan
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		return nil, err
	}

	note, err := audit.NewCollectionNote(loanID, author, text, s.clock.Now())
	if err != nil {
		return nil, err
	}

	if err := s.auditRepo.CreateNote(ctx, note); err != nil {
		s.logger.Error("Failed to store collection note", "loan_id", loanID.String(), "error", err)
		return nil, err
	}

	return note, nil
}

// ListNotes retrieves paginated collection notes for a loan, newest first
func (s *NoteServiceImpl) ListNotes(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*audit.CollectionNote, int64, error) {
	offset := int64((page - 1) * perPage)

	notes, err := s.auditRepo.ListNotes(ctx, loanID, int64(perPage), offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.auditRepo.CountNotes(ctx, loanID)
	if err != nil {
		return nil, 0, err
	}

	return notes, total, nil
}

// ListEvents retrieves the paginated audit trail of a loan, newest first
func (s *NoteServiceImpl) ListEvents(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*audit.Event, int64, error) {
	offset := int64((page - 1) * perPage)

	events, err := s.auditRepo.ListEvents(ctx, loanID, int64(perPage), offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.auditRepo.CountEvents(ctx, loanID)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
