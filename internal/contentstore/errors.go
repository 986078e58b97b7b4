package contentstore

import "errors"

// ErrDropped is returned by every operation on a store after Drop.
var ErrDropped = errors.New("content store dropped")
