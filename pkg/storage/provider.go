package storage

import (
	"context"
	"io"
)

// Provider reads and writes objects for one location scheme.
// S3 implements this. Future storage systems (GCS, Azure Blob) can too.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Open returns a reader for the object at loc.
	Open(ctx context.Context, loc Location) (io.ReadCloser, error)

	// Create returns a writer for the object at loc. The object is only
	// guaranteed to be complete once the writer is closed.
	Create(ctx context.Context, loc Location) (io.WriteCloser, error)

	// Close releases resources.
	Close() error
}
