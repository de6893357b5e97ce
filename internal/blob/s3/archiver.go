package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// EventArchiveStore provides read access to the engine event log for archival
// purposes. The Postgres EventStore satisfies it through List with a time
// window.
type EventArchiveStore interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
}

// SettlementArchiver implements domain.Archiver by serializing settlement
// snapshots to JSON and uploading them to an S3-compatible bucket. Archives
// are write-only from the engine's perspective; nothing is deleted here.
type SettlementArchiver struct {
	writer *Writer
	events EventArchiveStore
}

// NewSettlementArchiver creates a SettlementArchiver. events may be nil when
// only per-market snapshots are needed.
func NewSettlementArchiver(writer *Writer, events EventArchiveStore) *SettlementArchiver {
	return &SettlementArchiver{writer: writer, events: events}
}

// ArchiveSettlement uploads one settlement snapshot to
// settlements/YYYY-MM/{marketID}.json and returns the object path.
func (a *SettlementArchiver) ArchiveSettlement(ctx context.Context, rec domain.SettlementRecord) (string, error) {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal settlement %s: %w", rec.MarketID, err)
	}

	path := fmt.Sprintf("settlements/%s/%s.json", rec.ResolvedAt.Format("2006-01"), rec.MarketID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(body), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %s: %w", rec.MarketID, err)
	}
	return path, nil
}

// ArchiveEvents serializes all engine events up to the cutoff as JSONL and
// uploads them to archive/events/YYYY-MM.jsonl. It returns the number of
// archived events. Deleting archived rows from the primary store is a
// separate, explicit step executed after the archive has been verified.
func (a *SettlementArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	if a.events == nil {
		return 0, fmt.Errorf("s3blob: archive events: no event store configured")
	}

	events, err := a.events.List(ctx, domain.ListOpts{Until: &before, Limit: 100_000})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := fmt.Sprintf("archive/events/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}
	return int64(len(events)), nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*SettlementArchiver)(nil)
