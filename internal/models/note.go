// Package models defines the domain types for Lectern.
package models

import (
	"fmt"
	"time"

	"github.com/starford/lectern/internal/apperr"
)

// Library is one independent workspace. It scopes every other record.
type Library struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Note is one reviewable unit: an original document or an excerpt.
// Durations (Interval, RotationInterval, IntermediateInterval) are days.
type Note struct {
	LibraryID            string    `json:"library_id"`
	Path                 string    `json:"path"`
	Queue                QueueName `json:"queue"`
	AddedAt              time.Time `json:"added_at"`
	LastRevisedAt        time.Time `json:"last_revised_at,omitzero"`
	ReviewCount          int       `json:"review_count"`
	Easiness             float64   `json:"easiness"`
	Rank                 float64   `json:"rank"`
	Interval             int       `json:"interval"`
	DueAt                time.Time `json:"due_at"`
	RotationInterval     int       `json:"rotation_interval"`
	IntermediateInterval int       `json:"intermediate_interval"`
	ExtractionCount      int       `json:"extraction_count"`
	LastQueueChange      time.Time `json:"last_queue_change,omitzero"`
}

// DueIn returns whole days from now until the note is due, never negative.
func (n Note) DueIn(now time.Time) int {
	d := n.DueAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + 12*time.Hour) / (24 * time.Hour))
}

// ExtractType says how an excerpt's range is addressed in its parent.
type ExtractType string

const (
	ExtractTextLines ExtractType = "text-lines"
	ExtractPDFPage   ExtractType = "pdf-page"
	ExtractPDFText   ExtractType = "pdf-text"
	ExtractVideoClip ExtractType = "video-clip"
	ExtractFlashcard ExtractType = "flashcard"
)

// ParseExtractType validates s.
func ParseExtractType(s string) (ExtractType, error) {
	switch t := ExtractType(s); t {
	case ExtractTextLines, ExtractPDFPage, ExtractPDFText, ExtractVideoClip, ExtractFlashcard:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown extract type %q", apperr.ErrInvalidRange, s)
}

// Fingerprinted reports whether excerpts of this type carry a source hash.
// Page-range containers and clips have no stable text rendering.
func (t ExtractType) Fingerprinted() bool {
	switch t {
	case ExtractTextLines, ExtractPDFText, ExtractFlashcard:
		return true
	}
	return false
}

// PositionKind returns the Position variant ranges of this type use.
func (t ExtractType) PositionKind() PositionKind {
	if t == ExtractPDFText {
		return PositionPDF
	}
	return PositionLine
}

// FirstLine is the lowest line number a range of t may use: 0 for video
// clips, which count seconds, and 1 for everything else.
func (t ExtractType) FirstLine() int {
	if t == ExtractVideoClip {
		return 0
	}
	return 1
}

// NoteSource is the lineage record of an extracted note.
type NoteSource struct {
	LibraryID  string      `json:"library_id"`
	Path       string      `json:"path"`
	ParentPath string      `json:"parent_path,omitempty"`
	Type       ExtractType `json:"extract_type"`
	Range      Range       `json:"range"`
	Hash       string      `json:"source_hash,omitempty"`
}

// QueueConfig is one tunable of one queue (or of the global namespace).
type QueueConfig struct {
	LibraryID string    `json:"library_id"`
	Queue     QueueName `json:"queue"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
}

// Workspace is the cross-library registry entry for one known library.
type Workspace struct {
	LibraryID     string    `json:"library_id"`
	FolderPath    string    `json:"folder_path"`
	FolderName    string    `json:"folder_name"`
	StorePath     string    `json:"store_path"`
	FirstOpened   time.Time `json:"first_opened"`
	LastOpened    time.Time `json:"last_opened"`
	OpenCount     int       `json:"open_count"`
	TotalFiles    int       `json:"total_files"`
	FilesDueToday int       `json:"files_due_today"`
}
