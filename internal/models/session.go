// Package models defines the domain types for Nocel.
package models

import (
	"fmt"
	"time"
)

// SessionType distinguishes publicly listed sessions from code-protected ones.
type SessionType string

const (
	SessionPublic  SessionType = "public"
	SessionPrivate SessionType = "private"
)

// ParseSessionType validates a raw type string taken from a URL or form.
func ParseSessionType(s string) (SessionType, error) {
	switch t := SessionType(s); t {
	case SessionPublic, SessionPrivate:
		return t, nil
	default:
		return "", fmt.Errorf("unknown session type %q", s)
	}
}

// Session is a named container of notes and files. (Name, Type) is unique.
type Session struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Type        SessionType `json:"type"`
	PrivateCode string      `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IsPrivate reports whether the session requires a private code.
func (s *Session) IsPrivate() bool {
	return s.Type == SessionPrivate
}

// AccessCode returns the combined code (name followed by the 4-digit code)
// that opens a private session. It is empty for public sessions.
func (s *Session) AccessCode() string {
	if !s.IsPrivate() || s.PrivateCode == "" {
		return ""
	}
	return s.Name + s.PrivateCode
}

// StoragePrefix is the blob-store directory owned by the session.
func (s *Session) StoragePrefix() string {
	return string(s.Type) + "/" + s.Name
}

// Expired reports whether the session is older than ttl at now.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return !s.CreatedAt.After(now.Add(-ttl))
}
