package postgres

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// NewConnection exposes the pool as a *sql.DB so repositories share one set
// of connections with the health check and can be tested with sqlmock.
func NewConnection(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}
