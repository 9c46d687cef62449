// README: Driver directory backed by the PostgreSQL drivers table.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"transfer/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, verified, status
		FROM drivers
		WHERE id = $1`, string(id),
	)
	var d Driver
	if err := row.Scan(&d.ID, &d.Name, &d.Verified, &d.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *Store) ListDrivers(ctx context.Context) ([]*Driver, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, verified, status FROM drivers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Verified, &d.Status); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
