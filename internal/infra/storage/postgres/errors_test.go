package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUndefinedTable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"pgx undefined table", &pgconn.PgError{Code: "42P01", Message: `relation "event_cursors" does not exist`}, true},
		{"pgx wrapped", fmt.Errorf("get cursor: %w", &pgconn.PgError{Code: "42P01"}), true},
		{"pgx unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"lib/pq undefined table", &pq.Error{Code: "42P01"}, true},
		{"lib/pq other", &pq.Error{Code: "42703"}, false},
		{"plain error", errors.New(`relation "x" does not exist`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUndefinedTable(tt.err); got != tt.want {
				t.Errorf("IsUndefinedTable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
