package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/soltraderbot/internal/domain"
)

// PositionStore implements domain.PositionStore over PostgreSQL.
type PositionStore struct {
	client *Client
}

// NewPositionStore creates a PositionStore backed by the given client.
func NewPositionStore(client *Client) *PositionStore {
	return &PositionStore{client: client}
}

const positionColumns = `
	id, token_address, amount, entry_price, current_price, highest_price,
	last_updated, profit_loss, status, trailing_stop_percentage, exit_time`

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	query := `
		INSERT INTO positions (
			id, token_address, amount, entry_price, current_price, highest_price,
			last_updated, profit_loss, status, trailing_stop_percentage, exit_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.client.pool.Exec(ctx, query,
		p.ID, p.TokenAddress, p.Amount, p.EntryPrice, p.CurrentPrice,
		p.HighestPrice, p.LastUpdated, p.ProfitLoss, string(p.Status),
		p.TrailingStopPct, p.ExitTime,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create position: %w", err)
	}
	return nil
}

// GetByID returns the position with the given ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	p, err := scanPosition(s.client.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// GetActiveByToken returns the active position for a token, if any.
func (s *PositionStore) GetActiveByToken(ctx context.Context, token string) (domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE token_address = $1 AND status = 'active'
		ORDER BY last_updated DESC
		LIMIT 1`

	p, err := scanPosition(s.client.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get active position for %s: %w", token, err)
	}
	return p, nil
}

// ListActive returns all active positions ordered by last update.
func (s *PositionStore) ListActive(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status = 'active'
		ORDER BY last_updated ASC`

	rows, err := s.client.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// Update applies the non-nil fields of upd to the position with the given ID.
func (s *PositionStore) Update(ctx context.Context, id string, upd domain.PositionUpdate) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if upd.CurrentPrice != nil {
		sets = append(sets, "current_price = "+arg(*upd.CurrentPrice))
	}
	if upd.HighestPrice != nil {
		sets = append(sets, "highest_price = "+arg(*upd.HighestPrice))
	}
	if upd.ProfitLoss != nil {
		sets = append(sets, "profit_loss = "+arg(*upd.ProfitLoss))
	}
	if upd.LastUpdated != nil {
		sets = append(sets, "last_updated = "+arg(*upd.LastUpdated))
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE positions SET " + strings.Join(sets, ", ") +
		" WHERE id = " + arg(id)

	tag, err := s.client.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTrailingStopPct adjusts the trailing-stop distance on an open position.
func (s *PositionStore) SetTrailingStopPct(ctx context.Context, id string, pct float64) error {
	tag, err := s.client.pool.Exec(ctx,
		`UPDATE positions SET trailing_stop_percentage = $1 WHERE id = $2 AND status = 'active'`,
		pct, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: set trailing stop %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CloseAtomically records a trade and marks the position closed in a single
// transaction. The status guard ensures a position can only be closed once:
// if another caller already closed it, ErrPositionClosed is returned and the
// trade insert is rolled back.
func (s *PositionStore) CloseAtomically(ctx context.Context, close domain.PositionClose, trade domain.Trade) error {
	tx, err := s.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin close: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO trades (
			id, token_address, signal_id, entry_price, exit_price, position_size,
			entry_time, exit_time, profit_loss, status, tx_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		trade.ID, trade.TokenAddress, trade.SignalID, trade.EntryPrice,
		trade.ExitPrice, trade.PositionSize, trade.EntryTime, trade.ExitTime,
		trade.ProfitLoss, string(trade.Status), trade.TxID,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert close trade: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE positions
		SET status = $1,
		    current_price = $2,
		    profit_loss = $3,
		    exit_time = $4,
		    last_updated = $4
		WHERE id = $5 AND status = 'active'`,
		string(close.Status), close.ExitPrice, close.ProfitLoss,
		close.ExitTime, close.PositionID,
	)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", close.PositionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionClosed
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit close: %w", err)
	}
	return nil
}

// ListHistory returns closed and liquidated positions, newest first.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + `
		FROM positions
		WHERE status <> 'active'
		ORDER BY exit_time DESC NULLS LAST`
	args := []any{}

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
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p      domain.Position
		status string
	)
	err := row.Scan(
		&p.ID, &p.TokenAddress, &p.Amount, &p.EntryPrice, &p.CurrentPrice,
		&p.HighestPrice, &p.LastUpdated, &p.ProfitLoss, &status,
		&p.TrailingStopPct, &p.ExitTime,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate positions: %w", err)
	}
	return out, nil
}
