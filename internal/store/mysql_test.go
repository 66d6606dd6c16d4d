// Run: go test ./internal/store -v
package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/routemgr/internal/apperr"
	"github.com/yanizio/routemgr/internal/route"
)

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &MySQLStore{db: sqlx.NewDb(db, "mysql")}, mock
}

func TestListActive(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"to_addr", "via", "dev", "create_at", "delete_at", "active", "status"}).
		AddRow("10.0.0.0/24", nil, "eth0", time.Unix(0, 0), nil, true, "active")

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT to_addr, via, dev, create_at, delete_at, active, status FROM saved_routes`,
	)).WillReturnRows(rows)

	got, err := s.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 1 || got[0].To != "10.0.0.0/24" || got[0].Dev == nil || *got[0].Dev != "eth0" {
		t.Fatalf("unexpected result: %#v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestInsertConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO saved_routes`)).
		WillReturnError(&mysql.MySQLError{Number: mysqlDuplicateEntry, Message: "Duplicate entry"})

	rec := route.Record{To: "10.0.0.0/24", Status: route.StatusPending}
	err := s.Insert(context.Background(), rec)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT to_addr, via, dev, create_at, delete_at, active, status FROM saved_routes WHERE to_addr = ?`,
	)).WithArgs("10.0.0.0/24").WillReturnRows(sqlmock.NewRows(nil))

	_, err := s.Get(context.Background(), "10.0.0.0/24")
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestSetLifecycleNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE saved_routes SET active = ?, status = ? WHERE to_addr = ?`,
	)).WithArgs(true, "active", "10.0.0.0/24").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetLifecycle(context.Background(), "10.0.0.0/24", true, route.StatusActive)
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind != apperr.KindNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
