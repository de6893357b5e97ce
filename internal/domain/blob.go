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
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SettlementRecord is the audit snapshot archived when a market settles.
type SettlementRecord struct {
	MarketID   string       `json:"market_id"`
	Question   string       `json:"question"`
	Winners    Winners      `json:"winners"`
	Fees       FeeBreakdown `json:"fees"`
	Pools      []uint64     `json:"payout_pools"`
	Stakes     []uint64     `json:"stake_snapshot"`
	ResolvedAt time.Time    `json:"resolved_at"`
}

// Archiver writes settlement audit snapshots to cold storage.
type Archiver interface {
	ArchiveSettlement(ctx context.Context, rec SettlementRecord) (string, error)
}
