package contact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (s stubRow) Scan(dest ...any) error { return s.scan(dest...) }

type stubDB struct {
	row     stubRow
	queries []string
}

func (s *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (s *stubDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	s.queries = append(s.queries, sql)
	return s.row
}

func TestIsActive(t *testing.T) {
	cases := []struct {
		name    string
		code    string
		scan    func(dest ...any) error
		want    bool
		wantErr bool
		queried bool
	}{
		{name: "malformed code skips lookup", code: "123", want: false},
		{name: "missing row", code: "1234567812345678", scan: func(...any) error { return pgx.ErrNoRows }, queried: true},
		{name: "active", code: "1234567812345678", scan: func(dest ...any) error { *dest[0].(*bool) = true; return nil }, want: true, queried: true},
		{name: "inactive", code: "1234567812345678", scan: func(dest ...any) error { *dest[0].(*bool) = false; return nil }, queried: true},
		{name: "db failure", code: "1234567812345678", scan: func(...any) error { return errors.New("timeout") }, wantErr: true, queried: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := &stubDB{row: stubRow{scan: tc.scan}}
			got, err := NewRegistry(db).IsActive(context.Background(), "user-1", tc.code)
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error %v", err)
			}
			if got != tc.want {
				t.Fatalf("IsActive = %v, want %v", got, tc.want)
			}
			if (len(db.queries) > 0) != tc.queried {
				t.Fatalf("queried = %v, want %v", len(db.queries) > 0, tc.queried)
			}
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	db := &stubDB{}
	r := NewRegistry(db)
	if _, err := r.Register(context.Background(), "user-1", "12345678abcdefgh", ""); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := r.Register(context.Background(), "user-1", "1234567812345678", strings.Repeat("x", 65)); !errors.Is(err, ErrLabelTooLong) {
		t.Fatalf("expected ErrLabelTooLong, got %v", err)
	}
	if len(db.queries) != 0 {
		t.Fatal("invalid input must not reach the database")
	}
}

func TestSetActive_NotFound(t *testing.T) {
	db := &stubDB{row: stubRow{scan: func(...any) error { return pgx.ErrNoRows }}}
	if _, err := NewRegistry(db).SetActive(context.Background(), "user-1", "1234567812345678", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
