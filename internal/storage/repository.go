// Package storage defines the backend-agnostic persistence contracts used by
// the ingestion pipelines, the quality run tracker and the export stage, plus a
// small registry that maps a storage kind ("sqlite", "postgres", ...) to the
// factory that opens it.
//
// Backends register themselves from init; import storage/all to enable every
// built-in backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"healthetl/internal/schema"
)

// ErrRunNotRunning is returned by FinishRun when the run does not exist or has
// already reached a terminal state.
var ErrRunNotRunning = errors.New("storage: run is not RUNNING")

// ErrLocked is returned by Tx.LockRun when another run holds the lock past the
// configured timeout.
var ErrLocked = errors.New("storage: run lock not acquired")

// DefaultLockTimeout applies when Config.LockTimeout is zero.
const DefaultLockTimeout = 30 * time.Second

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string

	// MaxConns caps the connection pool; zero leaves the backend default.
	MaxConns int

	// LockTimeout bounds how long a run waits for its per-run database lock.
	LockTimeout time.Duration
}

// Store is an open connection to a relational backend.
type Store interface {
	RunStore
	Querier

	// Begin opens the transaction that scopes one pipeline run's writes.
	Begin(ctx context.Context) (Tx, error)

	// Kind reports the registered storage kind.
	Kind() string

	Close()
}

// RunStore persists quality run records. Each call commits on its own so the
// audit trail survives a rolled back data transaction.
type RunStore interface {
	CreateRun(ctx context.Context, run *schema.QualityRun) (int64, error)
	// FinishRun moves a RUNNING run to its terminal state. It returns
	// ErrRunNotRunning when no RUNNING row matched.
	FinishRun(ctx context.Context, run *schema.QualityRun) error
	// ListRuns returns up to limit runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]schema.QualityRun, error)
}

// Tx is the unit of work of one pipeline run. Lookups and writes are explicit:
// callers look up a parent by its natural key and create it when absent.
type Tx interface {
	// LockRun serialises runs sharing key until the transaction ends.
	LockRun(ctx context.Context, key string) error

	FindProfile(ctx context.Context, key schema.ProfileKey) (id int64, found bool, err error)
	CreateProfile(ctx context.Context, p *schema.Profile) (int64, error)

	// UpsertSession updates the session for (UserID, SessionDate) in place or
	// inserts it. created reports which branch ran.
	UpsertSession(ctx context.Context, s *schema.Session) (created bool, err error)

	FindFood(ctx context.Context, item string) (id int64, found bool, err error)
	CreateFood(ctx context.Context, f *schema.Food) (int64, error)

	// HasNutritionLog reports whether an identical log already exists for
	// the same food, user, date, meal type and water intake.
	HasNutritionLog(ctx context.Context, l *schema.NutritionLog) (bool, error)
	InsertNutritionLog(ctx context.Context, l *schema.NutritionLog) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Querier runs read-only tabular queries for exports and reports.
type Querier interface {
	// Flavor is the SQL dialect queries must be built for.
	Flavor() sqlbuilder.Flavor
	QueryTable(ctx context.Context, query string, args ...any) (*Table, error)
}

// Table is a generic query result.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Store of cfg.Kind.
func New(ctx context.Context, cfg Config) (Store, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
