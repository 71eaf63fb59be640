package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		sku VARCHAR(255) NOT NULL PRIMARY KEY,
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS batches (
		reference VARCHAR(255) NOT NULL PRIMARY KEY,
		sku VARCHAR(255) NOT NULL,
		purchased_quantity INTEGER NOT NULL,
		eta VARCHAR(10),
		seq INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allocations (
		batchref VARCHAR(255) NOT NULL,
		seq INTEGER NOT NULL,
		sku VARCHAR(255) NOT NULL,
		orderid VARCHAR(255) NOT NULL,
		qty INTEGER NOT NULL,
		PRIMARY KEY (batchref, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS allocations_view (
		orderid VARCHAR(255) NOT NULL,
		sku VARCHAR(255) NOT NULL,
		batchref VARCHAR(255) NOT NULL
	)`,
}

// Migrate creates the tables the store needs if they are missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
