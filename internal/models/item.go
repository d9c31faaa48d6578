package models

import "time"

// ItemKind tags an entry of a session timeline.
type ItemKind string

const (
	ItemNote ItemKind = "note"
	ItemFile ItemKind = "file"
)

// Item is one entry of the merged notes+files timeline of a session.
// Exactly one of Note and File is set.
type Item struct {
	Kind      ItemKind  `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Note      *Note     `json:"note,omitempty"`
	File      *File     `json:"file,omitempty"`
}
