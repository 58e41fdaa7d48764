package audit

import (
	"time"

	"github.com/google/uuid"
)

// CollectionNote is a free-text recovery note tied to a loan. Notes are
// append-only and carry no financial effect.
type CollectionNote struct {
	ID        uuid.UUID `json:"id" bson:"id"`
	LoanID    uuid.UUID `json:"loan_id" bson:"loan_id"`
	Author    string    `json:"author" bson:"author"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// NewCollectionNote creates a note, validating its content
func NewCollectionNote(loanID uuid.UUID, author, text string, now time.Time) (*CollectionNote, error) {
	if text == "" {
		return nil, ErrEmptyNote
	}
	if author == "" {
		return nil, ErrMissingAuthor
	}
	return &CollectionNote{
		ID:        uuid.New(),
		LoanID:    loanID,
		Author:    author,
		Text:      text,
		CreatedAt: now,
	}, nil
}
