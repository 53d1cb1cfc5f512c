package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// sqlStateUndefinedTable is reported when a relation does not exist.
const sqlStateUndefinedTable = "42P01"

// IsUndefinedTable reports whether err means the queried table is missing,
// regardless of which driver produced it.
func IsUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateUndefinedTable
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlStateUndefinedTable
	}
	return false
}
