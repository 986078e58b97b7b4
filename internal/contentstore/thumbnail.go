package contentstore

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	_ "image/gif"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"capture-go/internal/capture"
)

// Thumbnailer downscales content to fit within maxDimension pixels on its
// longest edge.
type Thumbnailer interface {
	Thumbnail(data []byte, mimeType capture.MimeType, maxDimension int) ([]byte, capture.MimeType, error)
}

// ImageThumbnailer decodes still images and resamples them with Catmull-Rom.
// JPEG sources produce JPEG thumbnails; everything else produces PNG.
type ImageThumbnailer struct{}

var _ Thumbnailer = ImageThumbnailer{}

var (
	jpegType = capture.MimeType{Type: "image/jpeg", Extension: "jpg"}
	pngType  = capture.MimeType{Type: "image/png", Extension: "png"}
)

func (ImageThumbnailer) Thumbnail(data []byte, mimeType capture.MimeType, maxDimension int) ([]byte, capture.MimeType, error) {
	if !mimeType.IsImage() {
		return nil, capture.MimeType{}, fmt.Errorf("%w: cannot thumbnail %s", capture.ErrUnsupportedMedia, mimeType.Type)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, capture.MimeType{}, fmt.Errorf("decoding image: %w", err)
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if format == "jpeg" {
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 80}); err != nil {
			return nil, capture.MimeType{}, fmt.Errorf("encoding thumbnail: %w", err)
		}
		return buf.Bytes(), jpegType, nil
	}
	if err := png.Encode(&buf, dst); err != nil {
		return nil, capture.MimeType{}, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), pngType, nil
}

// fit scales w x h down so neither edge exceeds max. Images already
// small enough keep their size.
func fit(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
