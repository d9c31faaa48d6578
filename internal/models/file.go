package models

import "time"

// Kind is the coarse content class of an uploaded file, derived from its extension.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindText  Kind = "text"
	KindOther Kind = "other"
)

// File is the metadata record of an uploaded blob.
type File struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	MimeType  string    `json:"mimetype"`
	Kind      Kind      `json:"kind"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Editable reports whether the file content may be overwritten in place.
func (f *File) Editable() bool {
	return f.Kind == KindText
}
