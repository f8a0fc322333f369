package api

import (
	"github.com/starford/lectern/internal/extraction"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/readerservice"
	"github.com/starford/lectern/internal/scheduler"
)

// RegisterLibraryRequest is the request body for registering a workspace folder.
type RegisterLibraryRequest struct {
	Folder string `json:"folder" example:"/home/me/reading" validate:"required"`
}

// NoteRequest names a note inside a library.
type NoteRequest struct {
	Path string `json:"path" example:"papers/attention.md" validate:"required"`
}

// FeedbackRequest is the request body for recording review feedback.
type FeedbackRequest struct {
	Path     string `json:"path" example:"papers/attention.md" validate:"required"`
	Feedback string `json:"feedback" example:"good" validate:"required"`
}

// MoveRequest is the request body for moving a note between queues.
type MoveRequest struct {
	Path  string `json:"path" example:"papers/attention.md" validate:"required"`
	Queue string `json:"queue" example:"spaced-standard" validate:"required"`
}

// PositionDTO is one end of an excerpt range. Page is set only for pdf-text.
// Line 0 is only meaningful for video clips, which count seconds; the lower
// bound of other types is checked when the excerpt is made.
type PositionDTO struct {
	Page int `json:"page,omitempty" example:"3" validate:"gte=0"`
	Line int `json:"line" example:"12" validate:"gte=0"`
}

// ExtractRequest is the request body for creating an excerpt.
type ExtractRequest struct {
	ParentPath string      `json:"parent_path" example:"papers/attention.md" validate:"required"`
	Type       string      `json:"extract_type" example:"text-lines" validate:"required,oneof=text-lines pdf-page pdf-text video-clip flashcard"`
	Start      PositionDTO `json:"start"`
	End        PositionDTO `json:"end"`
	Text       string      `json:"text,omitempty"`
	Answer     string      `json:"answer,omitempty"`
}

func (p PositionDTO) position(kind models.PositionKind) models.Position {
	if kind == models.PositionPDF {
		return models.PDF(p.Page, p.Line)
	}
	return models.Line(p.Line)
}

func (r ExtractRequest) toRequest() extraction.Request {
	t := models.ExtractType(r.Type)
	kind := t.PositionKind()
	return extraction.Request{
		ParentPath: r.ParentPath,
		Type:       t,
		Range:      models.Range{Start: r.Start.position(kind), End: r.End.position(kind)},
		Text:       r.Text,
		Answer:     r.Answer,
	}
}

// LibraryListResponse wraps registered workspaces.
type LibraryListResponse struct {
	Libraries []models.Workspace `json:"libraries" validate:"required"`
}

// DueResponse wraps the notes due by the end of today.
type DueResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
	Total int           `json:"total" example:"12" validate:"required"`
}

// FindResponse wraps fuzzy path matches.
type FindResponse struct {
	Paths []string `json:"paths" validate:"required"`
}

// FeedbackResponse is the scheduling outcome of a review (aliased from the domain layer).
type FeedbackResponse = scheduler.Result

// AddResponse reports whether a note was queued (aliased from the domain layer).
type AddResponse = readerservice.AddResult

// ChildrenResponse is the validated children of a note plus its expansion (aliased from the domain layer).
type ChildrenResponse = readerservice.ChildrenView
