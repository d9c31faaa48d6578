package thumbs

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/starford/nocel/internal/storage"
	"github.com/starford/nocel/internal/testutil"
)

func putPNG(t *testing.T, blobs storage.Provider, key string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if _, err := blobs.Put(context.Background(), key, &buf, -1); err != nil {
		t.Fatal(err)
	}
}

func decode(t *testing.T, obj *storage.Object) image.Image {
	t.Helper()
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("thumbnail is not a JPEG: %v", err)
	}
	return img
}

func TestOpenRendersAndCaches(t *testing.T) {
	_, blobs := testutil.TestBlobs(t)
	ctx := context.Background()
	putPNG(t, blobs, "public/pics/cat_1.png", 640, 480)

	g := New(blobs, 0)
	obj, err := g.Open(ctx, "public/pics/cat_1.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	img := decode(t, obj)
	if img.Bounds().Dx() != DefaultWidth || img.Bounds().Dy() != 240 {
		t.Errorf("bounds = %v, want 320x240", img.Bounds())
	}

	if _, err := blobs.Stat(ctx, "public/pics/.thumbs/cat_1.png.jpg"); err != nil {
		t.Fatalf("thumbnail not cached: %v", err)
	}

	cached, err := g.Open(ctx, "public/pics/cat_1.png")
	if err != nil {
		t.Fatalf("Open cached: %v", err)
	}
	decode(t, cached)
}

func TestSmallImagesKeepSize(t *testing.T) {
	_, blobs := testutil.TestBlobs(t)
	putPNG(t, blobs, "public/pics/dot_1.png", 40, 20)

	obj, err := New(blobs, 320).Open(context.Background(), "public/pics/dot_1.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if img := decode(t, obj); img.Bounds().Dx() != 40 {
		t.Errorf("width = %d, want 40", img.Bounds().Dx())
	}
}

func TestNonImageUnsupported(t *testing.T) {
	_, blobs := testutil.TestBlobs(t)
	ctx := context.Background()
	_, _ = blobs.Put(ctx, "public/t/a_1.png", strings.NewReader("not really a png"), -1)

	_, err := New(blobs, 0).Open(ctx, "public/t/a_1.png")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
