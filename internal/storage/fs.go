package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var _ Provider = (*FS)(nil)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the storage directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute storage directory.
func (f *FS) Root() string { return f.root }

// Key converts an absolute path under the root back into a blob key.
func (f *FS) Key(abs string) (string, bool) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// safePath resolves a key against the root and rejects any result that
// escapes it (directory traversal).
func (f *FS) safePath(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(f.root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", key)
	}
	return abs, nil
}

// Put atomically writes the stream: tmp file → fsync → rename.
func (f *FS) Put(_ context.Context, key string, r io.Reader, limit int64) (int64, error) {
	abs, err := f.safePath(key)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := copyLimited(tmp, r, limit)
	if err != nil {
		return n, err
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return n, fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return n, nil
}

// Open returns the blob as an *os.File wrapped in an Object.
func (f *FS) Open(_ context.Context, key string) (*Object, error) {
	abs, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", key, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", key, err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("storage: open %s: %w", key, fs.ErrNotExist)
	}
	return &Object{ReadCloser: file, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (f *FS) Stat(_ context.Context, key string) (Info, error) {
	abs, err := f.safePath(key)
	if err != nil {
		return Info{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Info{}, fmt.Errorf("storage: stat %s: %w", key, err)
	}
	return Info{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (f *FS) Delete(_ context.Context, key string) error {
	abs, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes the directory tree under prefix.
func (f *FS) DeletePrefix(_ context.Context, prefix string) error {
	abs, err := f.safePath(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: delete prefix %s: %w", prefix, err)
	}
	return nil
}

// List walks the tree under prefix. An empty prefix lists the whole root.
func (f *FS) List(_ context.Context, prefix string) ([]Info, error) {
	base := f.root
	if prefix != "" {
		var err error
		if base, err = f.safePath(prefix); err != nil {
			return nil, err
		}
	}
	var out []Info
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), TempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		key, ok := f.Key(p)
		if !ok {
			return nil
		}
		out = append(out, Info{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// copyLimited copies r into w. With limit >= 0 it reads at most limit+1
// bytes and reports ErrLimitExceeded when the extra byte arrives.
func copyLimited(w io.Writer, r io.Reader, limit int64) (int64, error) {
	if limit < 0 {
		n, err := io.Copy(w, r)
		if err != nil {
			return n, fmt.Errorf("storage: write: %w", err)
		}
		return n, nil
	}
	n, err := io.Copy(w, io.LimitReader(r, limit+1))
	if err != nil {
		return n, fmt.Errorf("storage: write: %w", err)
	}
	if n > limit {
		return n, ErrLimitExceeded
	}
	return n, nil
}
