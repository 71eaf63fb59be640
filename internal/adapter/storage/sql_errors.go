package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/allocation/internal/port"
)

const (
	mysqlDuplicateEntry     = 1062
	postgresUniqueViolation = "23505"
)

// isUniqueViolation reports whether err is a duplicate key error from any of
// the supported drivers.
func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// checkVersionUpdate turns a version-checked UPDATE that matched no row into
// ErrConcurrencyConflict.
func checkVersionUpdate(result sql.Result, sku string, loadedVersion int) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update product %s: rows affected: %w", sku, err)
	}
	if rows == 0 {
		return fmt.Errorf("product %s at version %d: %w", sku, loadedVersion, port.ErrConcurrencyConflict)
	}
	return nil
}
