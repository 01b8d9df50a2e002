package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	itemColumns = `id, name, description, price, image_file_name, active, created_at, updated_at`
	searchCond  = `active AND ($1 = '' OR name ILIKE '%' || $1 || '%')`
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.pool.Ping(ctx)
	})
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (Item, error) {
	var it Item
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
		return scanItem(row, &it)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *PostgresStore) GetMany(ctx context.Context, ids []int64) ([]Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out []Item
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		out, err = collectItems(rows, len(ids))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]Item, error) {
	col := q.Sort.Column()
	if col == "" {
		return nil, fmt.Errorf("%w: unknown sort key %q", ErrValidation, q.Sort)
	}

	var out []Item
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, fmt.Sprintf(`
			SELECT %s
			FROM items
			WHERE %s
			ORDER BY %s ASC, id ASC
			LIMIT $2 OFFSET $3
		`, itemColumns, searchCond, col), escapeLike(q.Search), q.Limit, q.Offset)
		if err != nil {
			return err
		}
		out, err = collectItems(rows, q.Limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context, search string) (int, error) {
	var n int
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, `SELECT count(*) FROM items WHERE `+searchCond, escapeLike(search)).Scan(&n)
	})
	return n, err
}

func (s *PostgresStore) Create(ctx context.Context, in ItemInput) (Item, error) {
	active := true
	if in.Active != nil {
		active = *in.Active
	}

	var it Item
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			INSERT INTO items (name, description, price, image_file_name, active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+itemColumns,
			strings.TrimSpace(in.Name), in.Description, in.Price, in.ImageFileName, active)
		return scanItem(row, &it)
	})
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, in ItemInput) (Item, error) {
	var it Item
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx, `
			UPDATE items
			SET name = $2, description = $3, price = $4, image_file_name = $5,
			    active = COALESCE($6, active), updated_at = now()
			WHERE id = $1
			RETURNING `+itemColumns,
			id, strings.TrimSpace(in.Name), in.Description, in.Price, in.ImageFileName, in.Active)
		return scanItem(row, &it)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	if err != nil {
		return Item{}, err
	}
	return it, nil
}

func scanItem(row pgx.Row, it *Item) error {
	return row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.ImageFileName,
		&it.Active, &it.CreatedAt, &it.UpdatedAt)
}

func collectItems(rows pgx.Rows, capHint int) ([]Item, error) {
	defer rows.Close()

	out := make([]Item, 0, capHint)
	for rows.Next() {
		var it Item
		if err := scanItem(rows, &it); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
