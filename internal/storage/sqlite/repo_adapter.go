// Package sqlite wires the SQLite backend into the storage factory. Callers
// select it with storage.kind=sqlite; registration happens in init.
package sqlite

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/huandu/go-sqlbuilder"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers driver "sqlite"

	"healthetl/internal/storage"
	"healthetl/internal/storage/sqlstore"
)

// Kind is the storage kind served by this package.
const Kind = "sqlite"

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect returns the sqlstore dialect for SQLite.
//
// A single connection is used: SQLite allows one writer at a time, and an
// in-memory database exists only on the connection that created it.
func Dialect() sqlstore.Dialect {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err) // embedded path is fixed at compile time
	}
	return sqlstore.Dialect{
		Kind:         Kind,
		Driver:       "sqlite",
		Flavor:       sqlbuilder.SQLite,
		Goose:        goose.DialectSQLite3,
		Migrations:   sub,
		MaxOpenConns: 1,
		Init:         []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"},
	}
}

// newStore is a test hook that points to sqlstore.Open by default.
var newStore = sqlstore.Open

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		s, err := newStore(ctx, Dialect(), cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	storage.RegisterDDL(Kind, bootstrap)
}

func bootstrap(ctx context.Context, s storage.Store) error {
	ss, ok := s.(*sqlstore.Store)
	if !ok {
		return fmt.Errorf("sqlite: bootstrap: unexpected store %T", s)
	}
	return ss.Bootstrap(ctx)
}
