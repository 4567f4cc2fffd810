package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// RunArchiver stores a completed run's report in cold storage and returns
// the object key prefix it was written under.
type RunArchiver interface {
	ArchiveRun(ctx context.Context, result DistributionResult) (string, error)
}
