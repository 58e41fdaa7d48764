package handler

import (
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/microfin-loan-servicing/internal/api/service"
)

// NoteHandler handles HTTP requests for collection notes and the audit trail
type NoteHandler struct {
	noteService service.NoteService
	logger      *slog.Logger
}

// NewNoteHandler creates a new note handler
func NewNoteHandler(logger *slog.Logger, noteService service.NoteService) *NoteHandler {
	return &NoteHandler{
		noteService: noteService,
		logger:      logger,
	}
}

// Create records a collection note against a loan
func (h *NoteHandler) Create(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	note, err := h.noteService.AddNote(c.Request.Context(), loanID, req.Author, req.Text)
	if err != nil {
		h.logger.Error("Failed to add collection note", "loan_id", loanID.String(), "error", err)
		RespondDomainError(c, err)
		return
	}

	RespondCreated(c, mapNoteToResponse(note))
}

// List retrieves paginated collection notes for a loan
func (h *NoteHandler) List(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	notes, total, err := h.noteService.ListNotes(c.Request.Context(), loanID, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	items := make([]NoteResponse, 0, len(notes))
	for _, note := range notes {
		items = append(items, mapNoteToResponse(note))
	}

	RespondWithPaginatedData(c, http.StatusOK, items, pagination.Page, pagination.PerPage, int(total))
}

// ListEvents retrieves the paginated audit trail of a loan
func (h *NoteHandler) ListEvents(c *gin.Context) {
	loanID, ok := h.loanID(c)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	events, total, err := h.noteService.ListEvents(c.Request.Context(), loanID, pagination.Page, pagination.PerPage)
	if err != nil {
		RespondDomainError(c, err)
		return
	}

	items := make([]EventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, mapEventToResponse(event))
	}

	RespondWithPaginatedData(c, http.StatusOK, items, pagination.Page, pagination.PerPage, int(total))
}

func (h *NoteHandler) loanID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid loan ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid loan ID")
		return uuid.Nil, false
	}
	return id, true
}
