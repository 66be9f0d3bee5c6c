// Package postgres implements storage.Store on a pgx v5 connection pool.
// Statements come from the shared query builders rendered for the PostgreSQL
// flavor; inserts read generated keys back with RETURNING.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"healthetl/internal/schema"
	"healthetl/internal/storage"
	"healthetl/internal/storage/query"
)

// lockNotAvailable is the SQLSTATE raised when lock_timeout expires.
const lockNotAvailable = "55P03"

// Repository is a Postgres-backed storage.Store.
type Repository struct {
	pool        *pgxpool.Pool
	q           query.Builder
	lockTimeout time.Duration
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}

	r := &Repository{
		pool:        pool,
		q:           query.Builder{Flavor: sqlbuilder.PostgreSQL},
		lockTimeout: storage.DefaultLockTimeout,
	}
	if cfg.LockTimeout > 0 {
		r.lockTimeout = cfg.LockTimeout
	}
	return r, pool.Close, nil
}

// Flavor implements storage.Querier.
func (r *Repository) Flavor() sqlbuilder.Flavor { return sqlbuilder.PostgreSQL }

// Begin implements storage.Store.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	return &Tx{tx: tx, r: r}, nil
}

// CreateRun implements storage.RunStore.
func (r *Repository) CreateRun(ctx context.Context, run *schema.QualityRun) (int64, error) {
	q, args := r.q.InsertRun(run)
	var id int64
	if err := r.pool.QueryRow(ctx, returning(q, query.RunID), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: create run: %w", describe(err))
	}
	return id, nil
}

// FinishRun implements storage.RunStore.
func (r *Repository) FinishRun(ctx context.Context, run *schema.QualityRun) error {
	q, args := r.q.FinishRun(run)
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("postgres: finish run %d: %w", run.ID, describe(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d: %w", run.ID, storage.ErrRunNotRunning)
	}
	return nil
}

// ListRuns implements storage.RunStore.
func (r *Repository) ListRuns(ctx context.Context, limit int) ([]schema.QualityRun, error) {
	q, args := r.q.ListRuns(limit)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", describe(err))
	}
	runs, err := pgx.CollectRows(rows, pgx.RowToStructByName[schema.QualityRun])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan runs: %w", err)
	}
	return runs, nil
}

// QueryTable implements storage.Querier. NUMERIC values (e.g. AVG over an
// integer column) are returned as float64.
func (r *Repository) QueryTable(ctx context.Context, q string, args ...any) (*storage.Table, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", describe(err))
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	t := &storage.Table{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		t.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		for i, v := range vals {
			if n, ok := v.(pgtype.Numeric); ok {
				f, err := n.Float64Value()
				if err != nil {
					return nil, fmt.Errorf("postgres: numeric column %s: %w", t.Columns[i], err)
				}
				if f.Valid {
					vals[i] = f.Float64
				} else {
					vals[i] = nil
				}
			}
		}
		t.Rows = append(t.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", describe(err))
	}
	return t, nil
}

// Tx is one run's unit of work.
type Tx struct {
	tx pgx.Tx
	r  *Repository
}

var _ storage.Tx = (*Tx)(nil)

// LockRun takes a transaction-scoped advisory lock on key, waiting at most the
// configured lock timeout.
func (t *Tx) LockRun(ctx context.Context, key string) error {
	if _, err := t.tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", t.r.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("postgres: set lock_timeout: %w", describe(err))
	}
	_, err := t.tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		return fmt.Errorf("postgres: lock %s: %w", key, storage.ErrLocked)
	}
	if err != nil {
		return fmt.Errorf("postgres: lock %s: %w", key, describe(err))
	}
	return nil
}

// FindProfile implements storage.Tx.
func (t *Tx) FindProfile(ctx context.Context, key schema.ProfileKey) (int64, bool, error) {
	q, args := t.r.q.FindProfile(key)
	return t.findID(ctx, "find profile", q, args)
}

// CreateProfile implements storage.Tx.
func (t *Tx) CreateProfile(ctx context.Context, p *schema.Profile) (int64, error) {
	q, args := t.r.q.InsertProfile(p)
	id, err := t.insertID(ctx, q, query.ProfileID, args)
	if err != nil {
		return 0, fmt.Errorf("postgres: create profile: %w", err)
	}
	p.ID = id
	return id, nil
}

// UpsertSession implements storage.Tx.
func (t *Tx) UpsertSession(ctx context.Context, s *schema.Session) (bool, error) {
	q, args := t.r.q.FindSession(s.UserID, s.SessionDate)
	id, found, err := t.findID(ctx, "find session", q, args)
	if err != nil {
		return false, err
	}
	if found {
		q, args = t.r.q.UpdateSession(id, s)
		if _, err := t.tx.Exec(ctx, q, args...); err != nil {
			return false, fmt.Errorf("postgres: update session %d: %w", id, describe(err))
		}
		s.ID = id
		return false, nil
	}
	q, args = t.r.q.InsertSession(s)
	if id, err = t.insertID(ctx, q, query.SessionID, args); err != nil {
		return false, fmt.Errorf("postgres: insert session: %w", err)
	}
	s.ID = id
	return true, nil
}

// FindFood implements storage.Tx.
func (t *Tx) FindFood(ctx context.Context, item string) (int64, bool, error) {
	q, args := t.r.q.FindFood(item)
	return t.findID(ctx, "find food", q, args)
}

// CreateFood implements storage.Tx.
func (t *Tx) CreateFood(ctx context.Context, f *schema.Food) (int64, error) {
	q, args := t.r.q.InsertFood(f)
	id, err := t.insertID(ctx, q, query.FoodID, args)
	if err != nil {
		return 0, fmt.Errorf("postgres: create food: %w", err)
	}
	f.ID = id
	return id, nil
}

// HasNutritionLog implements storage.Tx.
func (t *Tx) HasNutritionLog(ctx context.Context, l *schema.NutritionLog) (bool, error) {
	q, args := t.r.q.FindNutritionLog(l)
	_, found, err := t.findID(ctx, "find nutrition log", q, args)
	return found, err
}

// InsertNutritionLog implements storage.Tx.
func (t *Tx) InsertNutritionLog(ctx context.Context, l *schema.NutritionLog) (int64, error) {
	q, args := t.r.q.InsertNutritionLog(l)
	id, err := t.insertID(ctx, q, query.LogID, args)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert nutrition log: %w", err)
	}
	l.ID = id
	return id, nil
}

// Commit implements storage.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", describe(err))
	}
	return nil
}

// Rollback implements storage.Tx. Rolling back a finished transaction is a
// no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

func (t *Tx) findID(ctx context.Context, op, q string, args []any) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, q, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: %s: %w", op, describe(err))
	}
	return id, true, nil
}

func (t *Tx) insertID(ctx context.Context, q, idCol string, args []any) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, returning(q, idCol), args...).Scan(&id); err != nil {
		return 0, describe(err)
	}
	return id, nil
}

func returning(q, col string) string { return q + " RETURNING " + col }

// describe enriches Postgres errors with constraint and detail information
// while keeping the original error in the chain.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	msg := pgErr.Code
	if pgErr.ConstraintName != "" {
		msg += " constraint=" + pgErr.ConstraintName
	}
	if pgErr.Detail != "" {
		msg += " detail=" + pgErr.Detail
	}
	return fmt.Errorf("%w (%s)", err, msg)
}
