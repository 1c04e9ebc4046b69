// Package storage resolves input and output locations to readers and writers.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

// SchemeS3 is the location scheme for S3 objects.
const SchemeS3 = "s3"

// ErrInvalidLocation is returned for locations that cannot be parsed.
var ErrInvalidLocation = errors.New("invalid storage location")

// Location identifies a local file or a remote object.
type Location struct {
	Scheme string // empty for local paths
	Bucket string
	Key    string
	Path   string // local paths only
}

// ParseLocation parses a plain filesystem path or a scheme://bucket/key URL.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty", ErrInvalidLocation)
	}

	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return Location{Path: raw}, nil
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if scheme == "" || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("%w: %q must be scheme://bucket/key", ErrInvalidLocation, raw)
	}

	return Location{
		Scheme: strings.ToLower(scheme),
		Bucket: bucket,
		Key:    key,
	}, nil
}

// IsLocal reports whether the location is a filesystem path.
func (l Location) IsLocal() bool {
	return l.Scheme == ""
}

// String returns a string representation.
func (l Location) String() string {
	if l.IsLocal() {
		return l.Path
	}
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}
