// Package storage defines the blob store that holds uploaded session files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrLimitExceeded is returned by Put when the stream is longer than the limit.
var ErrLimitExceeded = errors.New("storage: size limit exceeded")

// TempPrefix marks in-flight writes. Watchers and listings skip such names.
const TempPrefix = ".nocel-tmp-"

// ThumbDir is the per-session directory that caches derived thumbnails.
const ThumbDir = ".thumbs"

// Info describes a stored blob. Key is slash-separated and relative to the
// provider root.
type Info struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Object is an open blob. Readers returned by the FS backend also implement
// io.Seeker.
type Object struct {
	io.ReadCloser
	Size    int64
	ModTime time.Time
}

// Provider is the interface for blob operations. Keys look like
// "<type>/<session>/<stored filename>".
type Provider interface {
	// Put streams r into key and returns the number of bytes written. A
	// non-negative limit caps the size: longer streams are discarded and
	// ErrLimitExceeded is returned.
	Put(ctx context.Context, key string, r io.Reader, limit int64) (int64, error)
	// Open returns a reader for key. Missing keys yield an error matching fs.ErrNotExist.
	Open(ctx context.Context, key string) (*Object, error)
	// Stat returns metadata for key.
	Stat(ctx context.Context, key string) (Info, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every blob under prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// List returns every blob under prefix, skipping in-flight writes.
	List(ctx context.Context, prefix string) ([]Info, error)
}

// Join builds a slash-separated key from its parts.
func Join(parts ...string) string {
	return path.Join(parts...)
}

// ThumbKey returns the cache key of the thumbnail for blob key.
func ThumbKey(key string) string {
	dir, name := path.Split(key)
	return path.Join(dir, ThumbDir, name+".jpg")
}

// IsDerived reports whether key is a temp file or part of a thumbnail cache.
func IsDerived(key string) bool {
	for _, seg := range strings.Split(key, "/") {
		if seg == ThumbDir || strings.HasPrefix(seg, TempPrefix) {
			return true
		}
	}
	return false
}

func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("storage: invalid key: %s", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: key escapes root: %s", key)
	}
	return cleaned, nil
}
