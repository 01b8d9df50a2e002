package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
	txTimeout    = 5 * time.Second
	pgUniqueCode = "23505"

	orderColumns = `id, status, total_price, created_at, updated_at`
	lineColumns  = `id, order_id, item_id, quantity`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	})
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return withTimeout(ctx, txTimeout, func(ctx context.Context) error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
			return fn(&PostgresStore{pool: s.pool, q: tx, inTx: true})
		})
	})
}

func (s *PostgresStore) LastByStatus(ctx context.Context, st Status) (Order, error) {
	return s.oneOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY id DESC LIMIT 1`, st)
}

func (s *PostgresStore) Create(ctx context.Context, o Order) (Order, error) {
	var out Order
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.q.QueryRow(ctx, `
			INSERT INTO orders (status, total_price)
			VALUES ($1, $2)
			RETURNING `+orderColumns, o.Status, o.TotalPrice)
		return scanOrder(row, &out)
	})
	if isUniqueViolation(err) {
		return Order{}, ErrConflict
	}
	if err != nil {
		return Order{}, err
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Order, error) {
	return s.oneOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *PostgresStore) LockOrder(ctx context.Context, id int64) (Order, error) {
	return s.oneOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (s *PostgresStore) oneOrder(ctx context.Context, sql string, arg any) (Order, error) {
	var o Order
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return scanOrder(s.q.QueryRow(ctx, sql, arg), &o)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, st Status) ([]Order, error) {
	var out []Order
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.q.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY id DESC`, st)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Order, 0, 16)
		for rows.Next() {
			var o Order
			if err := scanOrder(rows, &o); err != nil {
				return err
			}
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id int64, total decimal.Decimal) (bool, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tag, err := s.q.Exec(ctx, `
			UPDATE orders
			SET status = $2, total_price = $3, updated_at = now()
			WHERE id = $1 AND status = $4
		`, id, StatusCompleted, total, StatusNew)
		n = tag.RowsAffected()
		return err
	})
	return n == 1, err
}

func (s *PostgresStore) Lines(ctx context.Context, orderID int64) ([]Line, error) {
	var out []Line
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.q.Query(ctx, `SELECT `+lineColumns+` FROM order_items WHERE order_id = $1 ORDER BY id DESC`, orderID)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Line, 0, 8)
		for rows.Next() {
			var l Line
			if err := rows.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.Quantity); err != nil {
				return err
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) LockLine(ctx context.Context, orderID, itemID int64) (Line, error) {
	var l Line
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.q.QueryRow(ctx, `
			SELECT `+lineColumns+`
			FROM order_items
			WHERE order_id = $1 AND item_id = $2
			FOR UPDATE
		`, orderID, itemID).Scan(&l.ID, &l.OrderID, &l.ItemID, &l.Quantity)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Line{}, ErrNotFound
	}
	if err != nil {
		return Line{}, err
	}
	return l, nil
}

func (s *PostgresStore) InsertLine(ctx context.Context, orderID, itemID int64) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.q.Exec(ctx, `
			INSERT INTO order_items (order_id, item_id, quantity)
			VALUES ($1, $2, 0)
			ON CONFLICT (order_id, item_id) DO NOTHING
		`, orderID, itemID)
		return err
	})
}

func (s *PostgresStore) SetQuantity(ctx context.Context, lineID int64, qty int) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.q.Exec(ctx, `UPDATE order_items SET quantity = $2 WHERE id = $1`, lineID, qty)
		return err
	})
}

func (s *PostgresStore) DeleteLine(ctx context.Context, lineID int64) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.q.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, lineID)
		return err
	})
}

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(&o.ID, &o.Status, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt)
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
