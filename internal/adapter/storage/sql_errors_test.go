package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/rl1809/allocation/internal/port"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062}, true},
		{"mysql other", &mysql.MySQLError{Number: 1213}, false},
		{"postgres unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"postgres other", &pgconn.PgError{Code: "40001"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

type fakeResult struct {
	rows int64
	err  error
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestCheckVersionUpdate(t *testing.T) {
	assert.NoError(t, checkVersionUpdate(fakeResult{rows: 1}, "S1", 3))

	err := checkVersionUpdate(fakeResult{rows: 0}, "S1", 3)
	assert.ErrorIs(t, err, port.ErrConcurrencyConflict)

	driverErr := errors.New("rows affected unsupported")
	err = checkVersionUpdate(fakeResult{err: driverErr}, "S1", 3)
	assert.ErrorIs(t, err, driverErr)
	assert.NotErrorIs(t, err, port.ErrConcurrencyConflict)
}
