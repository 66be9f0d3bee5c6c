package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"healthetl/internal/storage"
)

// Kind is the storage kind served by this package.
const Kind = "postgres"

//go:embed migrations/*.sql
var migrations embed.FS

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo implements storage.Store by delegating to the concrete
// *Repository while providing a Close method that calls the close function
// returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Store = (*wrappedRepo)(nil)

// Kind implements storage.Store.
func (w *wrappedRepo) Kind() string { return Kind }

// Close implements storage.Store.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		r, closeFn, err := newRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL(Kind, bootstrap)
}

// bootstrap applies the embedded schema through a database/sql handle that
// shares the pgx pool.
func bootstrap(ctx context.Context, s storage.Store) error {
	w, ok := s.(*wrappedRepo)
	if !ok {
		return fmt.Errorf("postgres: bootstrap: unexpected store %T", s)
	}
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: bootstrap: %w", err)
	}
	db := stdlib.OpenDBFromPool(w.pool)
	defer db.Close()

	p, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("postgres: bootstrap: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("postgres: bootstrap: %w", err)
	}
	return nil
}
