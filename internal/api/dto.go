package api

import (
	"time"

	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sessionservice"
)

// SessionListResponse is one page of public session names.
type SessionListResponse = sessionservice.Page

// Usage is the per-session storage report (aliased from the domain layer).
type Usage = models.Usage

// SessionResponse describes a session and its timeline.
type SessionResponse struct {
	Name       string        `json:"name" example:"Trip_Notes" validate:"required"`
	Type       string        `json:"type" example:"public" validate:"required"`
	AccessCode string        `json:"access_code,omitempty" example:"Diary4821"`
	CreatedAt  time.Time     `json:"created_at" validate:"required"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	Items      []models.Item `json:"items" validate:"required"`
	Usage      Usage         `json:"usage" validate:"required"`
}

// NoteResponse wraps a created or edited note. Note is null when the
// submitted content was blank.
type NoteResponse struct {
	Note *models.Note `json:"note"`
}

// FileResponse is returned after an upload or text edit.
type FileResponse struct {
	File     *models.File `json:"file" validate:"required"`
	URL      string       `json:"url" example:"/files/public/Trip_Notes/photo_1a2b3c4d.jpg" validate:"required"`
	Checksum string       `json:"checksum,omitempty"`
	Usage    Usage        `json:"usage" validate:"required"`
}

// TextFileResponse is an editable text file with its current checksum.
type TextFileResponse struct {
	File     *models.File `json:"file" validate:"required"`
	Content  string       `json:"content" validate:"required"`
	Checksum string       `json:"checksum" example:"9f86d081884c7d65" validate:"required"`
}

// SweepResponse lists the sessions removed by an expiry sweep.
type SweepResponse struct {
	Removed  int              `json:"removed" example:"2"`
	Sessions []models.Session `json:"sessions"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// SessionCreatedResponse is returned by session creation and private access
// for JSON clients.
type SessionCreatedResponse struct {
	Name       string `json:"name" example:"Diary" validate:"required"`
	Type       string `json:"type" example:"private" validate:"required"`
	AccessCode string `json:"access_code,omitempty" example:"Diary4821"`
	URL        string `json:"url" example:"/session/private/Diary" validate:"required"`
}
