package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// TradeStore implements domain.TradeStore over PostgreSQL.
type TradeStore struct {
	client *Client
}

// NewTradeStore creates a TradeStore backed by the given client.
func NewTradeStore(client *Client) *TradeStore {
	return &TradeStore{client: client}
}

const tradeColumns = `
	id, token_address, signal_id, entry_price, exit_price, position_size,
	entry_time, exit_time, profit_loss, status, tx_id`

// Create inserts a new trade record.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	query := `
		INSERT INTO trades (
			id, token_address, signal_id, entry_price, exit_price, position_size,
			entry_time, exit_time, profit_loss, status, tx_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.client.pool.Exec(ctx, query,
		t.ID, t.TokenAddress, t.SignalID, t.EntryPrice, t.ExitPrice,
		t.PositionSize, t.EntryTime, t.ExitTime, t.ProfitLoss,
		string(t.Status), t.TxID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create trade: %w", err)
	}
	return nil
}

// ListByToken returns all trades for a token, newest entry first.
func (s *TradeStore) ListByToken(ctx context.Context, token string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_address = $1
		ORDER BY entry_time DESC`
	args := []any{token}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.client.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", token, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// SumClosedPnL returns the total realized profit and loss across closed
// trades.
func (s *TradeStore) SumClosedPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.client.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(profit_loss), 0) FROM trades WHERE status = 'closed'`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum closed pnl: %w", err)
	}
	return total, nil
}

// ListClosedBefore returns closed trades whose exit time is before cutoff.
func (s *TradeStore) ListClosedBefore(ctx context.Context, cutoff time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE status = 'closed' AND exit_time IS NOT NULL AND exit_time < $1
		ORDER BY exit_time ASC`

	rows, err := s.client.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// DeleteClosedBefore removes closed trades whose exit time is before cutoff
// and reports how many rows were deleted.
func (s *TradeStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.client.pool.Exec(ctx,
		`DELETE FROM trades
		 WHERE status = 'closed' AND exit_time IS NOT NULL AND exit_time < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed trades before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func collectTrades(rows pgx.Rows) ([]domain.Trade, error) {
	var out []domain.Trade
	for rows.Next() {
		var (
			t      domain.Trade
			status string
		)
		err := rows.Scan(
			&t.ID, &t.TokenAddress, &t.SignalID, &t.EntryPrice, &t.ExitPrice,
			&t.PositionSize, &t.EntryTime, &t.ExitTime, &t.ProfitLoss,
			&status, &t.TxID,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Status = domain.TradeStatus(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trades: %w", err)
	}
	return out, nil
}
