package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/City-of-Helsinki/haravajarjestelma/pkg/database"
)

// PostgresTransactor implements Transactor with a read-committed pgx transaction
type PostgresTransactor struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactor creates a new PostgresTransactor
func NewPostgresTransactor(pool *pgxpool.Pool) *PostgresTransactor {
	return &PostgresTransactor{pool: pool}
}

// WithTx runs fn in a transaction; nested calls join the outer one
func (t *PostgresTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, t.pool, fn)
}
