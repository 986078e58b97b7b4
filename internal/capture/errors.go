package capture

import "errors"

var (
	// ErrNotFound is returned when content or a record is not indexed.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is returned when a network operation exceeds its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrTransport is returned when a backend call fails or answers with an
	// unexpected status.
	ErrTransport = errors.New("backend request failed")

	// ErrNoToken is returned by authenticated backend calls when no
	// credential has been stored.
	ErrNoToken = errors.New("no backend token configured")

	// ErrUnsupportedMedia is returned for media types the store or the
	// thumbnailer cannot handle.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)
