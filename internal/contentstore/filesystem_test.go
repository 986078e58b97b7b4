package contentstore_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"capture-go/internal/capture"
	"capture-go/internal/contentstore"
	"capture-go/internal/testutil"
)

var (
	jpegType = capture.MimeType{Type: "image/jpeg", Extension: "jpg"}
	pngType  = capture.MimeType{Type: "image/png", Extension: "png"}
)

// countingThumbnailer records how often it is asked to downscale.
type countingThumbnailer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingThumbnailer) Thumbnail(data []byte, _ capture.MimeType, _ int) ([]byte, capture.MimeType, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return append([]byte("thumb:"), data...), pngType, nil
}

func (c *countingThumbnailer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newStore(t *testing.T, th contentstore.Thumbnailer) (*contentstore.FileSystemStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := contentstore.NewFileSystemStore(filepath.Join(dir, "raw"), filepath.Join(dir, "tables"), "raw", th)
	if err != nil {
		t.Fatalf("NewFileSystemStore() error = %v", err)
	}
	return s, dir
}

func TestFileSystemStore_WriteRead(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, nil)

	inputs := [][]byte{
		[]byte("hello world"),
		{},
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
	}
	for _, data := range inputs {
		index, err := s.Write(ctx, data, jpegType, capture.WriteReplace)
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if index != testutil.SHA256Hex(data) {
			t.Errorf("index = %s, want sha256 of content", index)
		}

		got, err := s.Read(ctx, index)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("Read() returned %d bytes, want %d", len(got), len(data))
		}
	}
}

func TestFileSystemStore_WriteIgnoreKeepsExtension(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, nil)
	data := []byte("same bytes")

	first, err := s.Write(ctx, data, jpegType, capture.WriteIgnore)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	second, err := s.Write(ctx, data, pngType, capture.WriteIgnore)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if first != second {
		t.Errorf("indexes differ: %s vs %s", first, second)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), first+".jpg")); err != nil {
		t.Errorf("original extension lost: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), first+".png")); !os.IsNotExist(err) {
		t.Errorf("second write created a .png blob")
	}
}

func TestFileSystemStore_WriteReplaceSingleBlob(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, nil)
	data := []byte("replace me")

	for i := 0; i < 2; i++ {
		if _, err := s.Write(ctx, data, jpegType, capture.WriteReplace); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d blobs, want 1", len(entries))
	}
}

func TestFileSystemStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deleted index no longer exists", func(t *testing.T) {
		s, _ := newStore(t, nil)
		index, err := s.Write(ctx, []byte("x"), jpegType, capture.WriteReplace)
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		if err := s.Delete(ctx, index); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		exists, err := s.Exists(ctx, index)
		if err != nil {
			t.Fatalf("Exists() error = %v", err)
		}
		if exists {
			t.Error("Exists() = true after Delete")
		}
		if _, err := s.Read(ctx, index); !errors.Is(err, capture.ErrNotFound) {
			t.Errorf("Read() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("never written index is a no-op", func(t *testing.T) {
		s, _ := newStore(t, nil)
		if err := s.Delete(ctx, testutil.SHA256Hex([]byte("nothing"))); err != nil {
			t.Errorf("Delete() error = %v", err)
		}
	})

	t.Run("removes cached thumbnail", func(t *testing.T) {
		s, _ := newStore(t, &countingThumbnailer{})
		index, _ := s.Write(ctx, []byte("img"), pngType, capture.WriteReplace)
		if _, err := s.ThumbnailURL(ctx, index, pngType); err != nil {
			t.Fatalf("ThumbnailURL() error = %v", err)
		}

		if err := s.Delete(ctx, index); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		entries, _ := os.ReadDir(s.Root())
		if len(entries) != 0 {
			t.Errorf("got %d blobs after delete, want 0", len(entries))
		}
	})
}

func TestFileSystemStore_ExistsRequiresBlob(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, nil)
	index, _ := s.Write(ctx, []byte("blob"), jpegType, capture.WriteReplace)

	if err := os.Remove(filepath.Join(s.Root(), index+".jpg")); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	exists, err := s.Exists(ctx, index)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true with blob missing")
	}
}

func TestFileSystemStore_ThumbnailCached(t *testing.T) {
	ctx := context.Background()
	th := &countingThumbnailer{}
	s, _ := newStore(t, th)
	index, _ := s.Write(ctx, []byte("picture"), pngType, capture.WriteReplace)

	first, err := s.ThumbnailURL(ctx, index, pngType)
	if err != nil {
		t.Fatalf("ThumbnailURL() error = %v", err)
	}
	second, err := s.ThumbnailURL(ctx, index, pngType)
	if err != nil {
		t.Fatalf("ThumbnailURL() error = %v", err)
	}

	if first != second {
		t.Error("second call returned a different thumbnail")
	}
	if th.Calls() != 1 {
		t.Errorf("thumbnailer called %d times, want 1", th.Calls())
	}
	if !strings.HasPrefix(first, "data:image/png;base64,") {
		t.Errorf("unexpected data URL prefix: %.40s", first)
	}
}

func TestFileSystemStore_URI(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, nil)
	index, _ := s.Write(ctx, []byte("uri"), jpegType, capture.WriteReplace)

	uri, err := s.URI(ctx, index)
	if err != nil {
		t.Fatalf("URI() error = %v", err)
	}
	if !strings.HasPrefix(uri, "file://") || !strings.HasSuffix(uri, index+".jpg") {
		t.Errorf("URI() = %s", uri)
	}

	if _, err := s.URI(ctx, "missing"); !errors.Is(err, capture.ErrNotFound) {
		t.Errorf("URI(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFileSystemStore_ClearAndDrop(t *testing.T) {
	ctx := context.Background()
	s, dir := newStore(t, nil)
	index, _ := s.Write(ctx, []byte("gone"), jpegType, capture.WriteReplace)

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if exists, _ := s.Exists(ctx, index); exists {
		t.Error("Exists() = true after Clear")
	}

	if err := s.Drop(ctx); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tables", "raw_extension.jsonl")); !os.IsNotExist(err) {
		t.Error("extension table still exists after Drop")
	}
	if _, err := s.Write(ctx, []byte("x"), jpegType, capture.WriteReplace); !errors.Is(err, contentstore.ErrDropped) {
		t.Errorf("Write() after Drop error = %v, want ErrDropped", err)
	}
}

func TestFileSystemStore_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Write(ctx, []byte{byte(i)}, jpegType, capture.WriteIgnore); err != nil {
				t.Errorf("Write() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		exists, err := s.Exists(ctx, testutil.SHA256Hex([]byte{byte(i)}))
		if err != nil || !exists {
			t.Errorf("blob %d: exists = %v, err = %v", i, exists, err)
		}
	}
}

func TestImageThumbnailer(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		for y := 0; y < 200; y++ {
			src.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	t.Run("downscales to max dimension", func(t *testing.T) {
		out, mt, err := contentstore.ImageThumbnailer{}.Thumbnail(buf.Bytes(), pngType, 100)
		if err != nil {
			t.Fatalf("Thumbnail() error = %v", err)
		}
		if mt.Type != "image/png" {
			t.Errorf("mime type = %s, want image/png", mt.Type)
		}
		img, err := png.Decode(bytes.NewReader(out))
		if err != nil {
			t.Fatalf("png.Decode() error = %v", err)
		}
		if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
			t.Errorf("size = %v, want 100x50", img.Bounds().Size())
		}
	})

	t.Run("rejects video", func(t *testing.T) {
		video := capture.MimeType{Type: "video/mp4", Extension: "mp4"}
		_, _, err := contentstore.ImageThumbnailer{}.Thumbnail([]byte("mp4"), video, 100)
		if !errors.Is(err, capture.ErrUnsupportedMedia) {
			t.Errorf("error = %v, want ErrUnsupportedMedia", err)
		}
	})
}
