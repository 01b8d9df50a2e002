package checkout

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const journalTimeout = 3 * time.Second

type PostgresJournal struct {
	pool *pgxpool.Pool
}

func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

func (j *PostgresJournal) Record(ctx context.Context, d Discrepancy) (Discrepancy, error) {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	err := j.pool.QueryRow(ctx, `
		INSERT INTO checkout_discrepancies (order_id, amount, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, d.OrderID, d.Amount, d.Reason).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return Discrepancy{}, err
	}
	d.ResolvedAt = nil
	return d, nil
}

func (j *PostgresJournal) Pending(ctx context.Context, limit int) ([]Discrepancy, error) {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	rows, err := j.pool.Query(ctx, `
		SELECT id, order_id, amount, reason, created_at, resolved_at
		FROM checkout_discrepancies
		WHERE resolved_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanDiscrepancies(rows)
}

func (j *PostgresJournal) PendingFor(ctx context.Context, orderID int64) ([]Discrepancy, error) {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	rows, err := j.pool.Query(ctx, `
		SELECT id, order_id, amount, reason, created_at, resolved_at
		FROM checkout_discrepancies
		WHERE order_id = $1 AND resolved_at IS NULL
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	return scanDiscrepancies(rows)
}

func scanDiscrepancies(rows pgx.Rows) ([]Discrepancy, error) {
	defer rows.Close()

	var out []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.ID, &d.OrderID, &d.Amount, &d.Reason, &d.CreatedAt, &d.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (j *PostgresJournal) Resolve(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, journalTimeout)
	defer cancel()

	tag, err := j.pool.Exec(ctx, `
		UPDATE checkout_discrepancies
		SET resolved_at = COALESCE(resolved_at, now())
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDiscrepancyNotFound
	}
	return nil
}
