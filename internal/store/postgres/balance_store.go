package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// BalanceStore implements domain.BalanceStore over PostgreSQL.
type BalanceStore struct {
	client *Client
}

// NewBalanceStore creates a BalanceStore backed by the given client.
func NewBalanceStore(client *Client) *BalanceStore {
	return &BalanceStore{client: client}
}

// Append records a new balance snapshot.
func (s *BalanceStore) Append(ctx context.Context, snap domain.BalanceSnapshot) error {
	_, err := s.client.pool.Exec(ctx, `
		INSERT INTO balance_history (
			timestamp, total_value, active_positions_value, profit_loss,
			profit_loss_percentage
		) VALUES ($1, $2, $3, $4, $5)`,
		snap.Timestamp, snap.TotalValue, snap.ActivePositionsValue,
		snap.ProfitLoss, snap.ProfitLossPct,
	)
	if err != nil {
		return fmt.Errorf("postgres: append balance snapshot: %w", err)
	}
	return nil
}

// ListRange returns snapshots within [from, to], oldest first.
func (s *BalanceStore) ListRange(ctx context.Context, from, to time.Time) ([]domain.BalanceSnapshot, error) {
	rows, err := s.client.pool.Query(ctx, `
		SELECT id, timestamp, total_value, active_positions_value, profit_loss,
		       profit_loss_percentage
		FROM balance_history
		WHERE timestamp >= $1 AND timestamp <= $2
		ORDER BY timestamp ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balance range: %w", err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// ListBefore returns snapshots older than cutoff, oldest first.
func (s *BalanceStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.BalanceSnapshot, error) {
	rows, err := s.client.pool.Query(ctx, `
		SELECT id, timestamp, total_value, active_positions_value, profit_loss,
		       profit_loss_percentage
		FROM balance_history
		WHERE timestamp < $1
		ORDER BY timestamp ASC`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list balance before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// DeleteBefore removes snapshots older than cutoff and reports how many rows
// were deleted.
func (s *BalanceStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.client.pool.Exec(ctx,
		`DELETE FROM balance_history WHERE timestamp < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete balance before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func collectSnapshots(rows pgx.Rows) ([]domain.BalanceSnapshot, error) {
	var out []domain.BalanceSnapshot
	for rows.Next() {
		var snap domain.BalanceSnapshot
		err := rows.Scan(
			&snap.ID, &snap.Timestamp, &snap.TotalValue,
			&snap.ActivePositionsValue, &snap.ProfitLoss, &snap.ProfitLossPct,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan balance snapshot: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate balance snapshots: %w", err)
	}
	return out, nil
}
