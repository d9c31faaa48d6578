// Package apperr holds the error taxonomy shared by the service and HTTP layers.
package apperr

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTooLarge     = errors.New("too large")
	ErrUnauthorized = errors.New("unauthorized")
)

// QuotaError reports an upload rejected by the per-session storage cap.
// It matches ErrTooLarge with errors.Is.
type QuotaError struct {
	Used      int64
	Limit     int64
	Remaining int64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("storage limit exceeded: used %s of %s, %s remaining",
		humanize.IBytes(uint64(max(e.Used, 0))),
		humanize.IBytes(uint64(max(e.Limit, 0))),
		humanize.IBytes(uint64(max(e.Remaining, 0))))
}

func (e *QuotaError) Unwrap() error { return ErrTooLarge }

// Invalid wraps ErrInvalidInput with a human-readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
