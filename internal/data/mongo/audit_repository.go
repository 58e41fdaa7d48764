package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/microfin-loan-servicing/internal/domain/audit"
)

const (
	// NotesCollectionName is the name of the collection notes collection in MongoDB
	NotesCollectionName = "collection_notes"
	// EventsCollectionName is the name of the loan events collection in MongoDB
	EventsCollectionName = "loan_events"
)

// AuditRepository implements the audit.Repository interface for MongoDB.
// Both collections are append-only; nothing is ever updated or deleted.
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) audit.Repository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// CreateNote stores a new collection note
func (r *AuditRepository) CreateNote(ctx context.Context, note *audit.CollectionNote) error {
	collection := r.db.Collection(NotesCollectionName)

	_, err := collection.InsertOne(ctx, note)
	if err != nil {
		r.logger.Error("Failed to create collection note",
			"loan_id", note.LoanID.String(),
			"error", err)
		return fmt.Errorf("failed to create collection note: %w", err)
	}

	return nil
}

// ListNotes retrieves paginated collection notes for a loan.
// Results are sorted by creation time in descending order (newest first).
func (r *AuditRepository) ListNotes(ctx context.Context, loanID uuid.UUID, limit, offset int64) ([]*audit.CollectionNote, error) {
	collection := r.db.Collection(NotesCollectionName)

	filter := bson.M{"loan_id": loanID}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}). // Sort by created_at in descending order
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get collection notes",
			"loan_id", loanID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get collection notes: %w", err)
	}
	defer cursor.Close(ctx)

	var notes []*audit.CollectionNote
	if err := cursor.All(ctx, &notes); err != nil {
		r.logger.Error("Failed to decode collection notes",
			"loan_id", loanID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode collection notes: %w", err)
	}

	return notes, nil
}

// CountNotes counts the total number of collection notes for a loan
func (r *AuditRepository) CountNotes(ctx context.Context, loanID uuid.UUID) (int64, error) {
	collection := r.db.Collection(NotesCollectionName)

	filter := bson.M{"loan_id": loanID}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count collection notes",
			"loan_id", loanID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count collection notes: %w", err)
	}

	return count, nil
}

// CreateEvent stores a new loan lifecycle event
func (r *AuditRepository) CreateEvent(ctx context.Context, event *audit.Event) error {
	collection := r.db.Collection(EventsCollectionName)

	_, err := collection.InsertOne(ctx, event)
	if err != nil {
		r.logger.Error("Failed to create loan event",
			"loan_id", event.LoanID.String(),
			"type", string(event.Type),
			"error", err)
		return fmt.Errorf("failed to create loan event: %w", err)
	}

	return nil
}

// ListEvents retrieves paginated loan events for a loan.
// Results are sorted by recording time in descending order (newest first).
func (r *AuditRepository) ListEvents(ctx context.Context, loanID uuid.UUID, limit, offset int64) ([]*audit.Event, error) {
	collection := r.db.Collection(EventsCollectionName)

	filter := bson.M{"loan_id": loanID}
	opts := options.Find().
		SetSort(bson.M{"recorded_at": -1}). // Sort by recorded_at in descending order
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get loan events",
			"loan_id", loanID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get loan events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*audit.Event
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode loan events",
			"loan_id", loanID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to decode loan events: %w", err)
	}

	return events, nil
}

// CountEvents counts the total number of loan events for a loan
func (r *AuditRepository) CountEvents(ctx context.Context, loanID uuid.UUID) (int64, error) {
	collection := r.db.Collection(EventsCollectionName)

	filter := bson.M{"loan_id": loanID}
	count, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to count loan events",
			"loan_id", loanID.String(),
			"error", err)
		return 0, fmt.Errorf("failed to count loan events: %w", err)
	}

	return count, nil
}
