package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// Archiver implements domain.Archiver: it moves closed trades and old
// balance snapshots out of the hot database into JSONL files in object
// storage, then prunes the archived rows.
//
// The prune runs only after the upload succeeds, so a failed upload leaves
// the database untouched.
type Archiver struct {
	writer   domain.BlobWriter
	trades   domain.TradeStore
	balances domain.BalanceStore
	logger   *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	trades domain.TradeStore,
	balances domain.BalanceStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:   writer,
		trades:   trades,
		balances: balances,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades uploads all closed trades exited before the cutoff to
// archive/trades/YYYY-MM.jsonl, deletes them from the database, and returns
// the number of archived records.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	deleted, err := a.trades.DeleteClosedBefore(ctx, before)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: prune archived trades: %w", err)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int("count", len(trades)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(trades)), nil
}

// ArchiveBalanceHistory uploads all balance snapshots older than the cutoff
// to archive/balance_history/YYYY-MM.jsonl, deletes them from the database,
// and returns the number of archived records.
func (a *Archiver) ArchiveBalanceHistory(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.balances.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive balance history query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive balance history marshal: %w", err)
	}

	path := archivePath("balance_history", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive balance history upload: %w", err)
	}

	deleted, err := a.balances.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(snaps)), fmt.Errorf("s3blob: prune archived balance history: %w", err)
	}

	a.logger.InfoContext(ctx, "balance history archived",
		slog.String("path", path),
		slog.Int("count", len(snaps)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(snaps)), nil
}

// Run archives on the given interval, keeping retention worth of recent data
// in the database. Call in a goroutine.
func (a *Archiver) Run(ctx context.Context, interval, retention time.Duration) error {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().UTC().Add(-retention)
			if _, err := a.ArchiveTrades(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "trade archive failed", slog.String("error", err.Error()))
			}
			if _, err := a.ArchiveBalanceHistory(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "balance archive failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
var _ domain.Archiver = (*Archiver)(nil)
