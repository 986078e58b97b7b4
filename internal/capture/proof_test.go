package capture_test

import (
	"errors"
	"testing"

	"capture-go/internal/capture"
	"capture-go/internal/testutil"
)

func TestParseMimeType(t *testing.T) {
	tests := []struct {
		raw     string
		want    capture.MimeType
		wantErr bool
	}{
		{raw: "image/jpeg", want: capture.MimeType{Type: "image/jpeg", Extension: "jpg"}},
		{raw: "image/png", want: capture.MimeType{Type: "image/png", Extension: "png"}},
		{raw: "Video/MP4; codecs=avc1", want: capture.MimeType{Type: "video/mp4", Extension: "mp4"}},
		{raw: "", wantErr: true},
		{raw: "application/x-nothing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := capture.ParseMimeType(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, capture.ErrUnsupportedMedia) {
					t.Errorf("ParseMimeType() error = %v, want ErrUnsupportedMedia", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMimeType() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseMimeType() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestContentHash(t *testing.T) {
	data := []byte("hello")
	if got := capture.ContentHash(data); got != testutil.SHA256Hex(data) {
		t.Errorf("ContentHash() = %q", got)
	}
}

func TestProofClone(t *testing.T) {
	p := &capture.Proof{Hash: "a", Geolocation: &capture.Geolocation{Latitude: 1}}
	c := p.Clone()
	c.Geolocation.Latitude = 2
	c.Hash = "b"
	if p.Geolocation.Latitude != 1 || p.Hash != "a" {
		t.Error("Clone() shares state with the original")
	}
}
