package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/microfin-loan-servicing/internal/domain/audit"
	"github.com/microfin-loan-servicing/internal/domain/loan"
)

type MockNoteService struct {
	mock.Mock
}

func (m *MockNoteService) AddNote(ctx context.Context, loanID uuid.UUID, author, text string) (*audit.CollectionNote, error) {
	args := m.Called(ctx, loanID, author, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.CollectionNote), args.Error(1)
}

func (m *MockNoteService) ListNotes(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*audit.CollectionNote, int64, error) {
	args := m.Called(ctx, loanID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*audit.CollectionNote), args.Get(1).(int64), args.Error(2)
}

func (m *MockNoteService) ListEvents(ctx context.Context, loanID uuid.UUID, page, perPage int) ([]*audit.Event, int64, error) {
	args := m.Called(ctx, loanID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*audit.Event), args.Get(1).(int64), args.Error(2)
}

func TestNoteHandler_Create(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	t.Run("Success", func(t *testing.T) {
		mockService := new(MockNoteService)
		handler := NewNoteHandler(logger, mockService)

		loanID := uuid.New()
		note, err := audit.NewCollectionNote(loanID, "agent-12", "Borrower promised payment Friday", time.Now().UTC())
		require.NoError(t, err)
		mockService.On("AddNote", mock.Anything, loanID, "agent-12", "Borrower promised payment Friday").
			Return(note, nil)

		router := setupTestRouter()
		router.POST("/loans/:id/notes", handler.Create)

		jsonBody, _ := json.Marshal(CreateNoteRequest{Author: "agent-12", Text: "Borrower promised payment Friday"})
		req, _ := http.NewRequest(http.MethodPost, "/loans/"+loanID.String()+"/notes", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		resp := decodeData[NoteResponse](t, rr.Body.Bytes())
		assert.Equal(t, note.ID.String(), resp.ID)
		assert.Equal(t, "agent-12", resp.Author)
	})

	t.Run("MissingText", func(t *testing.T) {
		mockService := new(MockNoteService)
		handler := NewNoteHandler(logger, mockService)

		router := setupTestRouter()
		router.POST("/loans/:id/notes", handler.Create)

		jsonBody, _ := json.Marshal(CreateNoteRequest{Author: "agent-12"})
		req, _ := http.NewRequest(http.MethodPost, "/loans/"+uuid.NewString()+"/notes", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		mockService.AssertNotCalled(t, "AddNote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnknownLoan", func(t *testing.T) {
		mockService := new(MockNoteService)
		handler := NewNoteHandler(logger, mockService)

		loanID := uuid.New()
		mockService.On("AddNote", mock.Anything, loanID, "agent-12", "note").
			Return(nil, loan.LoanNotFoundError{LoanID: loanID})

		router := setupTestRouter()
		router.POST("/loans/:id/notes", handler.Create)

		jsonBody, _ := json.Marshal(CreateNoteRequest{Author: "agent-12", Text: "note"})
		req, _ := http.NewRequest(http.MethodPost, "/loans/"+loanID.String()+"/notes", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestNoteHandler_List(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mockService := new(MockNoteService)
	handler := NewNoteHandler(logger, mockService)

	loanID := uuid.New()
	note, err := audit.NewCollectionNote(loanID, "agent-12", "Visited the market stall", time.Now().UTC())
	require.NoError(t, err)
	mockService.On("ListNotes", mock.Anything, loanID, 1, 10).
		Return([]*audit.CollectionNote{note}, int64(1), nil)

	router := setupTestRouter()
	router.GET("/loans/:id/notes", handler.List)

	req, _ := http.NewRequest(http.MethodGet, "/loans/"+loanID.String()+"/notes", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	notes := decodeData[[]NoteResponse](t, rr.Body.Bytes())
	require.Len(t, notes, 1)
	assert.Equal(t, "Visited the market stall", notes[0].Text)
}

func TestNoteHandler_ListEvents(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mockService := new(MockNoteService)
	handler := NewNoteHandler(logger, mockService)

	loanID := uuid.New()
	event, err := audit.NewEvent(loanID, audit.EventTypePaymentApplied,
		map[string]string{"amount": "2541.67"}, "", "corr-1", time.Now().UTC())
	require.NoError(t, err)
	mockService.On("ListEvents", mock.Anything, loanID, 1, 10).
		Return([]*audit.Event{event}, int64(1), nil)

	router := setupTestRouter()
	router.GET("/loans/:id/events", handler.ListEvents)

	req, _ := http.NewRequest(http.MethodGet, "/loans/"+loanID.String()+"/events", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	events := decodeData[[]EventResponse](t, rr.Body.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "PAYMENT_APPLIED", events[0].Type)
	assert.Equal(t, event.ID.String(), events[0].ID)
}
