// Package sqlstore implements storage.Store on database/sql through sqlx. It is
// shared by the SQLite, SQL Server and MySQL backends, which differ only in
// driver name, SQL flavor, id retrieval, run locking and migrations; those
// differences are captured by Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"healthetl/internal/schema"
	"healthetl/internal/storage"
	"healthetl/internal/storage/query"
)

// Dialect describes one database/sql backend.
type Dialect struct {
	Kind   string // storage kind, e.g. "sqlite"
	Driver string // database/sql driver name
	Flavor sqlbuilder.Flavor
	Goose  goose.Dialect

	// Migrations holds goose SQL files at its root.
	Migrations fs.FS

	// MaxOpenConns overrides storage.Config.MaxConns when non-zero.
	MaxOpenConns int

	// Init statements run once after the connection is verified.
	Init []string
}

// Store is a database/sql backed storage.Store.
type Store struct {
	db          *sqlx.DB
	d           Dialect
	q           query.Builder
	lockTimeout time.Duration
}

var _ storage.Store = (*Store)(nil)

// Open connects to cfg.DSN with the dialect's driver and pings it.
func Open(ctx context.Context, d Dialect, cfg storage.Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", d.Kind)
	}
	db, err := sqlx.Open(d.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Kind, err)
	}
	switch {
	case d.MaxOpenConns > 0:
		db.SetMaxOpenConns(d.MaxOpenConns)
	case cfg.MaxConns > 0:
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Kind, err)
	}
	for _, stmt := range d.Init {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: init %q: %w", d.Kind, stmt, err)
		}
	}
	s := New(db, d)
	if cfg.LockTimeout > 0 {
		s.lockTimeout = cfg.LockTimeout
	}
	return s, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, d Dialect) *Store {
	return &Store{
		db:          db,
		d:           d,
		q:           query.Builder{Flavor: d.Flavor},
		lockTimeout: storage.DefaultLockTimeout,
	}
}

// Kind implements storage.Store.
func (s *Store) Kind() string { return s.d.Kind }

// Flavor implements storage.Querier.
func (s *Store) Flavor() sqlbuilder.Flavor { return s.d.Flavor }

// Close closes the underlying pool.
func (s *Store) Close() { _ = s.db.Close() }

// Bootstrap applies the dialect's embedded migrations.
func (s *Store) Bootstrap(ctx context.Context) error {
	if s.d.Migrations == nil {
		return fmt.Errorf("%s: no migrations embedded", s.d.Kind)
	}
	p, err := goose.NewProvider(s.d.Goose, s.db.DB, s.d.Migrations)
	if err != nil {
		return fmt.Errorf("%s: goose provider: %w", s.d.Kind, err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("%s: apply schema: %w", s.d.Kind, err)
	}
	return nil
}

// Begin implements storage.Store. The transaction runs on a pinned connection
// so session-scoped run locks can be released on it after the transaction
// ends.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire conn: %w", s.d.Kind, err)
	}
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: begin tx: %w", s.d.Kind, err)
	}
	return &Tx{tx: tx, conn: conn, s: s}, nil
}

// CreateRun implements storage.RunStore.
func (s *Store) CreateRun(ctx context.Context, run *schema.QualityRun) (int64, error) {
	q, args := s.q.InsertRun(run)
	id, err := s.insertID(ctx, s.db, q, args)
	if err != nil {
		return 0, fmt.Errorf("%s: create run: %w", s.d.Kind, err)
	}
	return id, nil
}

// FinishRun implements storage.RunStore.
func (s *Store) FinishRun(ctx context.Context, run *schema.QualityRun) error {
	q, args := s.q.FinishRun(run)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: finish run %d: %w", s.d.Kind, run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: finish run %d: %w", s.d.Kind, run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("run %d: %w", run.ID, storage.ErrRunNotRunning)
	}
	return nil
}

// ListRuns implements storage.RunStore.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]schema.QualityRun, error) {
	q, args := s.q.ListRuns(limit)
	var runs []schema.QualityRun
	if err := s.db.SelectContext(ctx, &runs, q, args...); err != nil {
		return nil, fmt.Errorf("%s: list runs: %w", s.d.Kind, err)
	}
	return runs, nil
}

// QueryTable implements storage.Querier. Byte slices are returned as strings.
func (s *Store) QueryTable(ctx context.Context, q string, args ...any) (*storage.Table, error) {
	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", s.d.Kind, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: columns: %w", s.d.Kind, err)
	}
	t := &storage.Table{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", s.d.Kind, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", s.d.Kind, err)
	}
	return t, nil
}

// insertID executes an INSERT and returns the generated key. SQL Server has
// no LastInsertId support, so the key is read back with SCOPE_IDENTITY in the
// same batch.
func (s *Store) insertID(ctx context.Context, e sqlx.ExtContext, q string, args []any) (int64, error) {
	if s.d.Flavor == sqlbuilder.SQLServer {
		var id int64
		err := sqlx.GetContext(ctx, e, &id, q+"; SELECT CAST(SCOPE_IDENTITY() AS BIGINT)", args...)
		return id, err
	}
	res, err := e.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Tx is one run's unit of work.
type Tx struct {
	tx   *sqlx.Tx
	conn *sqlx.Conn
	s    *Store

	mysqlLock string // held GET_LOCK name, released after the tx ends
}

var _ storage.Tx = (*Tx)(nil)

// LockRun implements storage.Tx.
//
// SQLite serialises writers on its own and takes no lock. SQL Server uses a
// transaction-owned application lock. MySQL named locks belong to the
// session, so the lock is released on the same connection once COMMIT or
// ROLLBACK has run.
func (t *Tx) LockRun(ctx context.Context, key string) error {
	timeout := t.s.lockTimeout
	switch t.s.d.Flavor {
	case sqlbuilder.SQLServer:
		var rc int
		err := t.tx.GetContext(ctx, &rc,
			"DECLARE @rc int; EXEC @rc = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive', "+
				"@LockOwner = 'Transaction', @LockTimeout = @p2; SELECT @rc",
			key, timeout.Milliseconds())
		if err != nil {
			return fmt.Errorf("%s: lock %s: %w", t.s.d.Kind, key, err)
		}
		if rc < 0 {
			return fmt.Errorf("%s: lock %s: %w", t.s.d.Kind, key, storage.ErrLocked)
		}
	case sqlbuilder.MySQL:
		var got sql.NullInt64
		if err := t.tx.GetContext(ctx, &got, "SELECT GET_LOCK(?, ?)", key, int(timeout.Seconds())); err != nil {
			return fmt.Errorf("%s: lock %s: %w", t.s.d.Kind, key, err)
		}
		if !got.Valid || got.Int64 != 1 {
			return fmt.Errorf("%s: lock %s: %w", t.s.d.Kind, key, storage.ErrLocked)
		}
		t.mysqlLock = key
	}
	return nil
}

// FindProfile implements storage.Tx.
func (t *Tx) FindProfile(ctx context.Context, key schema.ProfileKey) (int64, bool, error) {
	q, args := t.s.q.FindProfile(key)
	return t.findID(ctx, "find profile", q, args)
}

// CreateProfile implements storage.Tx.
func (t *Tx) CreateProfile(ctx context.Context, p *schema.Profile) (int64, error) {
	q, args := t.s.q.InsertProfile(p)
	id, err := t.s.insertID(ctx, t.tx, q, args)
	if err != nil {
		return 0, fmt.Errorf("%s: create profile: %w", t.s.d.Kind, err)
	}
	p.ID = id
	return id, nil
}

// UpsertSession implements storage.Tx.
func (t *Tx) UpsertSession(ctx context.Context, sess *schema.Session) (bool, error) {
	q, args := t.s.q.FindSession(sess.UserID, sess.SessionDate)
	id, found, err := t.findID(ctx, "find session", q, args)
	if err != nil {
		return false, err
	}
	if found {
		q, args = t.s.q.UpdateSession(id, sess)
		if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
			return false, fmt.Errorf("%s: update session %d: %w", t.s.d.Kind, id, err)
		}
		sess.ID = id
		return false, nil
	}
	q, args = t.s.q.InsertSession(sess)
	id, err = t.s.insertID(ctx, t.tx, q, args)
	if err != nil {
		return false, fmt.Errorf("%s: insert session: %w", t.s.d.Kind, err)
	}
	sess.ID = id
	return true, nil
}

// FindFood implements storage.Tx.
func (t *Tx) FindFood(ctx context.Context, item string) (int64, bool, error) {
	q, args := t.s.q.FindFood(item)
	return t.findID(ctx, "find food", q, args)
}

// CreateFood implements storage.Tx.
func (t *Tx) CreateFood(ctx context.Context, f *schema.Food) (int64, error) {
	q, args := t.s.q.InsertFood(f)
	id, err := t.s.insertID(ctx, t.tx, q, args)
	if err != nil {
		return 0, fmt.Errorf("%s: create food: %w", t.s.d.Kind, err)
	}
	f.ID = id
	return id, nil
}

// HasNutritionLog implements storage.Tx.
func (t *Tx) HasNutritionLog(ctx context.Context, l *schema.NutritionLog) (bool, error) {
	q, args := t.s.q.FindNutritionLog(l)
	_, found, err := t.findID(ctx, "find nutrition log", q, args)
	return found, err
}

// InsertNutritionLog implements storage.Tx.
func (t *Tx) InsertNutritionLog(ctx context.Context, l *schema.NutritionLog) (int64, error) {
	q, args := t.s.q.InsertNutritionLog(l)
	id, err := t.s.insertID(ctx, t.tx, q, args)
	if err != nil {
		return 0, fmt.Errorf("%s: insert nutrition log: %w", t.s.d.Kind, err)
	}
	l.ID = id
	return id, nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	err := t.tx.Commit()
	t.end(ctx)
	if err != nil {
		return fmt.Errorf("%s: commit: %w", t.s.d.Kind, err)
	}
	return nil
}

// Rollback implements storage.Tx. Rolling back a finished transaction is a
// no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback()
	t.end(ctx)
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", t.s.d.Kind, err)
	}
	return nil
}

// end releases the run lock and returns the pinned connection to the pool.
// A connection whose lock could not be released is discarded, which ends
// its session and the lock with it.
func (t *Tx) end(ctx context.Context) {
	if t.conn == nil {
		return
	}
	conn := t.conn
	t.conn = nil
	if key := t.mysqlLock; key != "" {
		t.mysqlLock = ""
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "DO RELEASE_LOCK(?)", key); err != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}
	_ = conn.Close()
}

func (t *Tx) findID(ctx context.Context, op, q string, args []any) (int64, bool, error) {
	var id int64
	err := t.tx.GetContext(ctx, &id, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%s: %s: %w", t.s.d.Kind, op, err)
	}
	return id, true, nil
}
