package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spotbot/internal/domain"
)

// PositionJournal implements domain.PositionJournal. Decimals cross the wire
// as text so no precision is lost to float conversion.
type PositionJournal struct {
	pool *pgxpool.Pool
}

// NewPositionJournal creates a PositionJournal backed by the given pool.
func NewPositionJournal(pool *pgxpool.Pool) *PositionJournal {
	return &PositionJournal{pool: pool}
}

const positionSelectCols = `id::text, amount::text, open_rate::text, open_tick, opened_at,
	COALESCE(close_rate::text, '0'), COALESCE(close_tick, 0), closed_at`

// RecordOpen inserts a newly opened position. Replays of the same id are
// ignored.
func (j *PositionJournal) RecordOpen(ctx context.Context, symbol string, p domain.Position) error {
	const query = `
		INSERT INTO positions (id, symbol, amount, open_rate, open_tick, opened_at)
		VALUES ($1::text::uuid, $2, $3::text::numeric, $4::text::numeric, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := j.pool.Exec(ctx, query,
		p.ID, symbol, p.Amount.String(), p.OpenRate.String(), p.OpenTick, p.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record open %s: %w", p.ID, err)
	}
	return nil
}

// RecordClose stores the close of a position, inserting the whole row when
// its open was never journaled.
func (j *PositionJournal) RecordClose(ctx context.Context, symbol string, p domain.Position) error {
	if !p.IsClosed() {
		return fmt.Errorf("postgres: record close %s: %w", p.ID, domain.ErrPositionNotOpen)
	}
	const query = `
		INSERT INTO positions (
			id, symbol, amount, open_rate, open_tick, opened_at,
			close_rate, close_tick, closed_at
		) VALUES (
			$1::text::uuid, $2, $3::text::numeric, $4::text::numeric, $5, $6,
			$7::text::numeric, $8, $9
		)
		ON CONFLICT (id) DO UPDATE SET
			close_rate = EXCLUDED.close_rate,
			close_tick = EXCLUDED.close_tick,
			closed_at  = EXCLUDED.closed_at,
			updated_at = NOW()`

	_, err := j.pool.Exec(ctx, query,
		p.ID, symbol, p.Amount.String(), p.OpenRate.String(), p.OpenTick, p.OpenedAt,
		p.CloseRate.String(), p.CloseTick, *p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record close %s: %w", p.ID, err)
	}
	return nil
}

// ListHistory returns journaled positions for symbol, newest first, with
// pagination and optional time filtering on the open time.
func (j *PositionJournal) ListHistory(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE symbol = $1`
	args := []any{symbol}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC, id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions %s: %w", symbol, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions %s: %w", symbol, err)
	}
	return positions, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.ID, &p.Amount, &p.OpenRate, &p.OpenTick, &p.OpenedAt,
			&p.CloseRate, &p.CloseTick, &p.ClosedAt,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Compile-time interface check.
var _ domain.PositionJournal = (*PositionJournal)(nil)
