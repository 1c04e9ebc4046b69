package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	outputDirPerm  = 0o750
	outputFilePerm = 0o644
)

// LocalProvider reads and writes files on the local filesystem.
type LocalProvider struct{}

// NewLocalProvider creates a new local filesystem provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

// Name returns the provider name.
func (*LocalProvider) Name() string {
	return "local"
}

// Open opens the file at loc for reading.
func (*LocalProvider) Open(_ context.Context, loc Location) (io.ReadCloser, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	f, err := os.Open(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", loc.Path, err)
	}
	return f, nil
}

// Create truncates or creates the file at loc, creating parent directories
// as needed.
func (*LocalProvider) Create(_ context.Context, loc Location) (io.WriteCloser, error) {
	if dir := filepath.Dir(loc.Path); dir != "." {
		if err := os.MkdirAll(dir, outputDirPerm); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	// #nosec G304 -- path is from CLI args, controlled by operator
	f, err := os.OpenFile(loc.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, outputFilePerm)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", loc.Path, err)
	}
	return f, nil
}

// Close is a no-op.
func (*LocalProvider) Close() error {
	return nil
}

// Verify interface compliance.
var _ Provider = (*LocalProvider)(nil)
