// Package mysql wires the MySQL backend into the storage factory.
//
// The DSN must set parseTime=true so DATE and DATETIME columns scan into
// time.Time, e.g. "user:pass@tcp(localhost:3306)/health?parseTime=true".
package mysql

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	_ "github.com/go-sql-driver/mysql" // registers driver "mysql"
	"github.com/huandu/go-sqlbuilder"
	"github.com/pressly/goose/v3"

	"healthetl/internal/storage"
	"healthetl/internal/storage/sqlstore"
)

// Kind is the storage kind served by this package.
const Kind = "mysql"

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect returns the sqlstore dialect for MySQL.
func Dialect() sqlstore.Dialect {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sqlstore.Dialect{
		Kind:       Kind,
		Driver:     "mysql",
		Flavor:     sqlbuilder.MySQL,
		Goose:      goose.DialectMySQL,
		Migrations: sub,
	}
}

var newStore = sqlstore.Open

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		s, err := newStore(ctx, Dialect(), cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	storage.RegisterDDL(Kind, func(ctx context.Context, s storage.Store) error {
		ss, ok := s.(*sqlstore.Store)
		if !ok {
			return fmt.Errorf("mysql: bootstrap: unexpected store %T", s)
		}
		return ss.Bootstrap(ctx)
	})
}
