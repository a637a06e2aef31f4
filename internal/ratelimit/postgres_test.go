package ratelimit

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresCheckAndIncrementAllows(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	reset := now.Add(15 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("insert into rate_limit_entries")).
		WithArgs("user:a", reset, now).
		WillReturnRows(sqlmock.NewRows([]string{"count", "window_reset_at"}).AddRow(7, reset))

	p := NewPostgres(db, 100, 15*time.Minute)
	res, err := p.CheckAndIncrement(context.Background(), "user:a", now)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Fatal("expected allow at count 7")
	}
	if res.Remaining != 93 {
		t.Fatalf("remaining = %d, want 93", res.Remaining)
	}
	if !res.ResetAt.Equal(reset) {
		t.Fatalf("resetAt = %v, want %v", res.ResetAt, reset)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresCheckAndIncrementDenies(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Now().UTC()
	reset := now.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("insert into rate_limit_entries")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "window_reset_at"}).AddRow(101, reset))

	p := NewPostgres(db, 100, time.Minute)
	res, err := p.CheckAndIncrement(context.Background(), "ip:9.9.9.9", now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Fatal("expected denial past the limit")
	}
	if res.Remaining != 0 {
		t.Fatalf("remaining = %d, want 0", res.Remaining)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSweep(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("delete from rate_limit_entries")).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	p := NewPostgres(db, 100, time.Minute)
	if err := p.Sweep(context.Background(), now); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
