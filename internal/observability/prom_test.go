package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyDBErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: "unique_violation"},
		{name: "statement canceled", err: &pgconn.PgError{Code: "57014"}, want: "canceled"},
		{name: "other pg error keeps its code", err: &pgconn.PgError{Code: "42P01"}, want: "pg_42P01"},
		{name: "context deadline", err: context.DeadlineExceeded, want: "canceled"},
		{name: "context canceled", err: context.Canceled, want: "canceled"},
		{name: "anything else is connectivity", err: errors.New("dial tcp: connection refused"), want: "connection"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyDBErr(tc.err); got != tc.want {
				t.Fatalf("classifyDBErr(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestObserveDBCountsErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProm(reg)

	err := p.ObserveDB("users.get_by_id", func() error {
		return &pgconn.PgError{Code: "23505"}
	})

	if err == nil {
		t.Fatal("ObserveDB must return the wrapped error")
	}

	got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.get_by_id", "unique_violation"))

	if got != 1 {
		t.Fatalf("error counter = %v, want 1", got)
	}
}
