package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrEmptyNote indicates a collection note with no text
	ErrEmptyNote = errors.New("collection note text cannot be empty")
	// ErrMissingAuthor indicates a collection note without an author
	ErrMissingAuthor = errors.New("collection note author cannot be empty")
)

// Repository manages the append-only audit trail: collection notes and loan
// lifecycle events. Records are never updated or deleted.
type Repository interface {
	CreateNote(ctx context.Context, note *CollectionNote) error

	// ListNotes retrieves paginated notes for a loan, newest first
	ListNotes(ctx context.Context, loanID uuid.UUID, limit, offset int64) ([]*CollectionNote, error)
	CountNotes(ctx context.Context, loanID uuid.UUID) (int64, error)

	CreateEvent(ctx context.Context, event *Event) error

	// ListEvents retrieves paginated events for a loan, newest first
	ListEvents(ctx context.Context, loanID uuid.UUID, limit, offset int64) ([]*Event, error)
	CountEvents(ctx context.Context, loanID uuid.UUID) (int64, error)
}
