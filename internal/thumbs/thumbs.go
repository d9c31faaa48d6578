// Package thumbs renders and caches JPEG thumbnails of uploaded images.
package thumbs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"github.com/starford/nocel/internal/storage"
)

// DefaultWidth is the thumbnail width in pixels.
const DefaultWidth = 320

var ErrUnsupported = errors.New("thumbs: unsupported image")

// Generator produces thumbnails next to the original blobs, under the
// session's thumbnail directory.
type Generator struct {
	blobs storage.Provider
	width int
	group singleflight.Group
}

func New(blobs storage.Provider, width int) *Generator {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Generator{blobs: blobs, width: width}
}

// Open returns the thumbnail of the blob at key, rendering it on first use.
func (g *Generator) Open(ctx context.Context, key string) (*storage.Object, error) {
	thumbKey := storage.ThumbKey(key)
	if obj, err := g.blobs.Open(ctx, thumbKey); err == nil {
		return obj, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v, err, _ := g.group.Do(thumbKey, func() (any, error) {
		return g.render(ctx, key, thumbKey)
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)
	return &storage.Object{
		ReadCloser: io.NopCloser(bytes.NewReader(data)),
		Size:       int64(len(data)),
		ModTime:    time.Now(),
	}, nil
}

func (g *Generator) render(ctx context.Context, key, thumbKey string) ([]byte, error) {
	src, err := g.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	img, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if img.Bounds().Dx() > g.width {
		img = imaging.Resize(img, g.width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("thumbs: encode: %w", err)
	}
	if _, err := g.blobs.Put(ctx, thumbKey, bytes.NewReader(buf.Bytes()), -1); err != nil {
		// serve the rendered bytes anyway; the next request retries the cache
		slog.Warn("thumbnail cache write failed", slog.String("key", thumbKey), slog.String("error", err.Error()))
	}
	return buf.Bytes(), nil
}
