package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports settled rounds to blob storage past a retention window.
type Archiver interface {
	// ArchiveSettledBefore uploads all rounds settled strictly before the
	// cutoff and returns the object path and the number of rounds archived.
	ArchiveSettledBefore(ctx context.Context, before time.Time) (path string, count int, err error)
}
