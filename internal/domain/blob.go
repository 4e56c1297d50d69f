package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobLister enumerates stored objects.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// SettlementArchiver copies resolved market records to cold storage.
type SettlementArchiver interface {
	ArchiveResolved(ctx context.Context, since, until time.Time) (int, error)
}
