package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open when no blob exists under the given name.
var ErrNotFound = errors.New("storage: blob not found")

// Backend stores file content addressed by storage name. Size may be -1
// when the length is not known in advance. Deleting a missing blob is not
// an error, so callers can retry cleanup safely.
type Backend interface {
	Save(ctx context.Context, name string, reader io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, name string) error
}
