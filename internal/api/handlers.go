package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/lectern/internal/readerservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *readerservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *readerservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the wildcard tail of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. papers%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func libraryID(r *http.Request) string {
	return chi.URLParam(r, "library")
}

// requirePath writes a 400 and returns "" when the wildcard path is empty.
func requirePath(w http.ResponseWriter, r *http.Request) string {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
	}
	return path
}

// ListLibraries handles GET /api/libraries.
//
//	@Summary		List registered libraries, most recently opened first
//	@Tags			libraries
//	@Produce		json
//	@Success		200	{object}	LibraryListResponse
//	@Security		BearerAuth
//	@Router			/libraries [get]
func (h *Handler) ListLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := h.svc.Libraries(r.Context())
	if err != nil {
		writeServiceError(w, "list libraries", err)
		return
	}
	writeJSON(w, http.StatusOK, LibraryListResponse{Libraries: libs})
}

// RegisterLibrary handles POST /api/libraries.
//
//	@Summary		Open or create the library stored in a folder
//	@Tags			libraries
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterLibraryRequest	true	"Folder to register"
//	@Success		200		{object}	models.Library
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries [post]
func (h *Handler) RegisterLibrary(w http.ResponseWriter, r *http.Request) {
	var req RegisterLibraryRequest
	if !decode(w, r, &req) {
		return
	}
	lib, err := h.svc.RegisterLibrary(r.Context(), req.Folder)
	if err != nil {
		writeServiceError(w, "register library", err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// DueToday handles GET /api/libraries/{library}/due.
//
//	@Summary		Notes due by the end of today, grouped by queue
//	@Tags			queue
//	@Produce		json
//	@Param			library	path		string	true	"Library ID"
//	@Success		200		{object}	DueResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/due [get]
func (h *Handler) DueToday(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.DueToday(r.Context(), libraryID(r))
	if err != nil {
		writeServiceError(w, "due today", err)
		return
	}
	writeJSON(w, http.StatusOK, DueResponse{Notes: notes, Total: len(notes)})
}

// DueAcrossLibraries handles GET /api/due.
//
//	@Summary		Notes due today in every registered library
//	@Tags			queue
//	@Produce		json
//	@Success		200	{object}	DueResponse
//	@Security		BearerAuth
//	@Router			/due [get]
func (h *Handler) DueAcrossLibraries(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.DueAcrossLibraries(r.Context())
	if err != nil {
		writeServiceError(w, "due across libraries", err)
		return
	}
	writeJSON(w, http.StatusOK, DueResponse{Notes: notes, Total: len(notes)})
}

// AddToQueue handles POST /api/libraries/{library}/queue.
//
//	@Summary		Put a note into the new queue
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Param			library	path		string		true	"Library ID"
//	@Param			body	body		NoteRequest	true	"Note to queue"
//	@Success		200		{object}	AddResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/queue [post]
func (h *Handler) AddToQueue(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.AddToQueue(r.Context(), libraryID(r), req.Path)
	if err != nil {
		writeServiceError(w, "add to queue", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RecordFeedback handles POST /api/libraries/{library}/feedback.
//
//	@Summary		Record review feedback for a note
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Param			library	path		string			true	"Library ID"
//	@Param			body	body		FeedbackRequest	true	"Feedback"
//	@Success		200		{object}	FeedbackResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/feedback [post]
func (h *Handler) RecordFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.RecordFeedback(r.Context(), libraryID(r), req.Path, req.Feedback)
	if err != nil {
		writeServiceError(w, "record feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MoveToQueue handles POST /api/libraries/{library}/move.
//
//	@Summary		Move a note to another queue
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Param			library	path		string		true	"Library ID"
//	@Param			body	body		MoveRequest	true	"Target queue"
//	@Success		200		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/move [post]
func (h *Handler) MoveToQueue(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	note, err := h.svc.MoveToQueue(r.Context(), libraryID(r), req.Path, req.Queue)
	if err != nil {
		writeServiceError(w, "move to queue", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Forget handles POST /api/libraries/{library}/forget.
//
//	@Summary		Reset a note's schedule and return it to the new queue
//	@Tags			queue
//	@Accept			json
//	@Produce		json
//	@Param			library	path		string		true	"Library ID"
//	@Param			body	body		NoteRequest	true	"Note to reset"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/forget [post]
func (h *Handler) Forget(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	note, err := h.svc.Forget(r.Context(), libraryID(r), req.Path)
	if err != nil {
		writeServiceError(w, "forget", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Extract handles POST /api/libraries/{library}/extract.
//
//	@Summary		Create an excerpt of a parent note
//	@Tags			extraction
//	@Accept			json
//	@Produce		json
//	@Param			library	path		string			true	"Library ID"
//	@Param			body	body		ExtractRequest	true	"Excerpt range"
//	@Success		201		{object}	extraction.Result
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/extract [post]
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Extract(r.Context(), libraryID(r), req.toRequest())
	if err != nil {
		writeServiceError(w, "extract", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetNote handles GET /api/libraries/{library}/notes/*.
//
//	@Summary		Get the scheduling state of a note
//	@Tags			notes
//	@Produce		json
//	@Param			library	path		string	true	"Library ID"
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := requirePath(w, r)
	if path == "" {
		return
	}
	note, err := h.svc.Note(r.Context(), libraryID(r), path)
	if err != nil {
		writeServiceError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ValidateRange handles GET /api/libraries/{library}/validate/*.
//
//	@Summary		Check an excerpt against its parent and recover moved ranges
//	@Tags			extraction
//	@Produce		json
//	@Param			library	path		string	true	"Library ID"
//	@Param			path	path		string	true	"Excerpt path"
//	@Success		200		{object}	rangecheck.Result
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/validate/{path} [get]
func (h *Handler) ValidateRange(w http.ResponseWriter, r *http.Request) {
	path := requirePath(w, r)
	if path == "" {
		return
	}
	res, err := h.svc.ValidateRange(r.Context(), libraryID(r), path)
	if err != nil {
		writeServiceError(w, "validate range", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExpandContent handles GET /api/libraries/{library}/expand/*.
//
//	@Summary		Rebuild a note with its text excerpts spliced back in
//	@Tags			extraction
//	@Produce		json
//	@Param			library	path		string	true	"Library ID"
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	reconstitute.Expansion
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/expand/{path} [get]
func (h *Handler) ExpandContent(w http.ResponseWriter, r *http.Request) {
	path := requirePath(w, r)
	if path == "" {
		return
	}
	res, err := h.svc.ExpandContent(r.Context(), libraryID(r), path)
	if err != nil {
		writeServiceError(w, "expand content", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Children handles GET /api/libraries/{library}/children/*.
//
//	@Summary		Validate every child of a note and return its expansion
//	@Tags			extraction
//	@Produce		json
//	@Param			library	path		string	true	"Library ID"
//	@Param			path	path		string	true	"Parent path"
//	@Success		200		{object}	ChildrenResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/children/{path} [get]
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	path := requirePath(w, r)
	if path == "" {
		return
	}
	res, err := h.svc.Children(r.Context(), libraryID(r), path)
	if err != nil {
		writeServiceError(w, "children", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// FindNotes handles GET /api/libraries/{library}/find.
//
//	@Summary		Fuzzy-match note paths
//	@Tags			notes
//	@Produce		json
//	@Param			library	path		string	true	"Library ID"
//	@Param			q		query		string	true	"Query"
//	@Success		200		{object}	FindResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/libraries/{library}/find [get]
func (h *Handler) FindNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	paths, err := h.svc.FindNotes(r.Context(), libraryID(r), q)
	if err != nil {
		writeServiceError(w, "find notes", err)
		return
	}
	writeJSON(w, http.StatusOK, FindResponse{Paths: paths})
}
