// mysql.go implements Store against MySQL/MariaDB via sqlx, the way the
// teacher's internal/database package opens pools for the rest of the
// codebase. saved_routes and deleted_routes mirror spec §6.4.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/yanizio/routemgr/internal/apperr"
	"github.com/yanizio/routemgr/internal/database"
	"github.com/yanizio/routemgr/internal/route"
)

const mysqlDuplicateEntry = 1062

// Schema is executed once at startup. It is intentionally idempotent
// (CREATE TABLE IF NOT EXISTS) so a fresh DATABASE_URL bootstraps itself
// without a separate migration step.
const Schema = `
CREATE TABLE IF NOT EXISTS saved_routes (
	to_addr    VARCHAR(64)  NOT NULL PRIMARY KEY,
	via        VARCHAR(64)  NULL,
	dev        VARCHAR(32)  NULL,
	create_at  DATETIME(6)  NOT NULL,
	delete_at  DATETIME(6)  NULL,
	active     BOOLEAN      NOT NULL DEFAULT FALSE,
	status     VARCHAR(16)  NOT NULL
);

CREATE TABLE IF NOT EXISTS deleted_routes (
	id         BIGINT AUTO_INCREMENT PRIMARY KEY,
	to_addr    VARCHAR(64)  NOT NULL,
	via        VARCHAR(64)  NULL,
	dev        VARCHAR(32)  NULL,
	create_at  DATETIME(6)  NOT NULL,
	delete_at  DATETIME(6)  NULL,
	status     VARCHAR(16)  NOT NULL,
	removed_at DATETIME(6)  NOT NULL,
	INDEX idx_deleted_routes_to (to_addr)
);
`

// MySQLStore is the production Store backed by a *sqlx.DB.
type MySQLStore struct {
	db *sqlx.DB
}

// Open connects to dsn via internal/database's pool helper, applies Schema,
// and returns a ready MySQLStore. A control service this size never needs
// internal/database's OpenWithOptions pool sizing, so Open is used
// directly with its conservative defaults (15 max open, 5 idle, 30m
// lifetime).
func Open(dsn string) (*MySQLStore, error) {
	db, err := database.Open(dsn)
	if err != nil {
		return nil, apperr.Storage("opening database", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, apperr.Storage("applying schema", err)
	}
	return &MySQLStore{db: db}, nil
}

// Close releases the underlying pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

type savedRow struct {
	To       string         `db:"to_addr"`
	Via      sql.NullString `db:"via"`
	Dev      sql.NullString `db:"dev"`
	CreateAt time.Time      `db:"create_at"`
	DeleteAt sql.NullTime   `db:"delete_at"`
	Active   bool           `db:"active"`
	Status   string         `db:"status"`
}

func (r savedRow) toRecord() route.Record {
	rec := route.Record{
		To:       r.To,
		CreateAt: r.CreateAt,
		Active:   r.Active,
		Status:   route.Status(r.Status),
	}
	if r.Via.Valid {
		v := r.Via.String
		rec.Via = &v
	}
	if r.Dev.Valid {
		d := r.Dev.String
		rec.Dev = &d
	}
	if r.DeleteAt.Valid {
		d := r.DeleteAt.Time
		rec.DeleteAt = &d
	}
	return rec
}

// ListActive returns every RouteRecord currently in saved_routes. The name
// mirrors spec §4.1's list_active(); it is not filtered by Status — callers
// that want only status="active" records filter client-side, matching how
// the reconciler sweeps the whole table each pass.
func (s *MySQLStore) ListActive(ctx context.Context) ([]route.Record, error) {
	var rows []savedRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT to_addr, via, dev, create_at, delete_at, active, status FROM saved_routes`); err != nil {
		return nil, apperr.Storage("listing routes", err)
	}
	out := make([]route.Record, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

// Insert adds rec, returning apperr.KindConflict if To already exists.
func (s *MySQLStore) Insert(ctx context.Context, rec route.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_routes (to_addr, via, dev, create_at, delete_at, active, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.To, rec.Via, rec.Dev, rec.CreateAt, rec.DeleteAt, rec.Active, string(rec.Status))
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return apperr.Conflict("a route to %s already exists", rec.To)
		}
		return apperr.Storage("inserting route", err)
	}
	return nil
}

// Get fetches a single Record by destination.
func (s *MySQLStore) Get(ctx context.Context, to string) (route.Record, error) {
	var r savedRow
	err := s.db.GetContext(ctx, &r, `SELECT to_addr, via, dev, create_at, delete_at, active, status FROM saved_routes WHERE to_addr = ?`, to)
	if errors.Is(err, sql.ErrNoRows) {
		return route.Record{}, apperr.NotFound("route to %s not found", to)
	}
	if err != nil {
		return route.Record{}, apperr.Storage("fetching route", err)
	}
	return r.toRecord(), nil
}

// Update applies patch to the record named by to. Regardless of which
// fields are set, the caller (API layer) is responsible for also calling
// SetLifecycle per spec §4.5.2 — Update only touches the fields named in
// the patch.
func (s *MySQLStore) Update(ctx context.Context, to string, patch route.Patch) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saved_routes SET
			via       = CASE WHEN ? THEN ? ELSE via END,
			dev       = CASE WHEN ? THEN ? ELSE dev END,
			create_at = COALESCE(?, create_at),
			delete_at = CASE WHEN ? THEN ? ELSE delete_at END
		WHERE to_addr = ?`,
		patch.Via != nil || patch.ClearVia, patch.Via,
		patch.Dev != nil || patch.ClearDev, patch.Dev,
		patch.CreateAt,
		patch.DeleteAt != nil, patch.DeleteAt,
		to)
	if err != nil {
		return apperr.Storage("updating route", err)
	}
	return requireRowAffected(res, to)
}

// SetLifecycle sets active and status in one statement.
func (s *MySQLStore) SetLifecycle(ctx context.Context, to string, active bool, status route.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE saved_routes SET active = ?, status = ? WHERE to_addr = ?`,
		active, string(status), to)
	if err != nil {
		return apperr.Storage("updating route lifecycle", err)
	}
	return requireRowAffected(res, to)
}

func requireRowAffected(res sql.Result, to string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("checking update result", err)
	}
	if n == 0 {
		return apperr.NotFound("route to %s not found", to)
	}
	return nil
}

// Delete removes the record named by to, appending a DeletedRecord with
// removalStatus, and returns the record as it stood just before removal.
// It runs inside a transaction so the select, insert, and delete are
// atomic against concurrent writers (spec §4.1's serializable history).
func (s *MySQLStore) Delete(ctx context.Context, to string, removalStatus route.Status, removedAt time.Time) (route.Record, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return route.Record{}, apperr.Storage("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var rows []savedRow
	if err := tx.SelectContext(ctx, &rows, `SELECT to_addr, via, dev, create_at, delete_at, active, status FROM saved_routes WHERE to_addr = ? FOR UPDATE`, to); err != nil {
		return route.Record{}, apperr.Storage("fetching route for delete", err)
	}
	switch len(rows) {
	case 0:
		return route.Record{}, apperr.NotFound("route to %s not found", to)
	case 1:
		// fall through
	default:
		return route.Record{}, &apperr.Error{Kind: apperr.KindConflict, Msg: "more than one route to " + to + " exists; remove manually"}
	}
	prior := rows[0].toRecord()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO deleted_routes (to_addr, via, dev, create_at, delete_at, status, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		prior.To, prior.Via, prior.Dev, prior.CreateAt, prior.DeleteAt, string(removalStatus), removedAt); err != nil {
		return route.Record{}, apperr.Storage("recording deleted route", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM saved_routes WHERE to_addr = ?`, to); err != nil {
		return route.Record{}, apperr.Storage("deleting route", err)
	}
	if err := tx.Commit(); err != nil {
		return route.Record{}, apperr.Storage("committing delete", err)
	}
	return prior, nil
}

type deletedRow struct {
	ID        int64          `db:"id"`
	To        string         `db:"to_addr"`
	Via       sql.NullString `db:"via"`
	Dev       sql.NullString `db:"dev"`
	CreateAt  time.Time      `db:"create_at"`
	DeleteAt  sql.NullTime   `db:"delete_at"`
	Status    string         `db:"status"`
	RemovedAt time.Time      `db:"removed_at"`
}

func (r deletedRow) toDeleted() route.Deleted {
	d := route.Deleted{
		ID:        r.ID,
		To:        r.To,
		CreateAt:  r.CreateAt,
		Status:    route.Status(r.Status),
		RemovedAt: r.RemovedAt,
	}
	if r.Via.Valid {
		v := r.Via.String
		d.Via = &v
	}
	if r.Dev.Valid {
		v := r.Dev.String
		d.Dev = &v
	}
	if r.DeleteAt.Valid {
		v := r.DeleteAt.Time
		d.DeleteAt = &v
	}
	return d
}

// ListDeleted returns the full, unbounded history.
func (s *MySQLStore) ListDeleted(ctx context.Context) ([]route.Deleted, error) {
	var rows []deletedRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, to_addr, via, dev, create_at, delete_at, status, removed_at FROM deleted_routes ORDER BY id`); err != nil {
		return nil, apperr.Storage("listing deleted routes", err)
	}
	out := make([]route.Deleted, len(rows))
	for i, r := range rows {
		out[i] = r.toDeleted()
	}
	return out, nil
}

var _ Store = (*MySQLStore)(nil)
