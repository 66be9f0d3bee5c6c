// Package mssql wires the SQL Server backend into the storage factory.
package mssql

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	_ "github.com/microsoft/go-mssqldb" // registers driver "sqlserver"
	"github.com/microsoft/go-mssqldb/msdsn"
	"github.com/pressly/goose/v3"

	"healthetl/internal/storage"
	"healthetl/internal/storage/sqlstore"
)

// Kind is the storage kind served by this package.
const Kind = "mssql"

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect returns the sqlstore dialect for SQL Server.
func Dialect() sqlstore.Dialect {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sqlstore.Dialect{
		Kind:       Kind,
		Driver:     "sqlserver",
		Flavor:     sqlbuilder.SQLServer,
		Goose:      goose.DialectMSSQL,
		Migrations: sub,
	}
}

var newStore = sqlstore.Open

// validateDSN rejects DSNs the driver cannot parse before a connection is
// attempted, so configuration errors surface without network timeouts.
func validateDSN(dsn string) error {
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("mssql: DSN must not be empty")
	}
	if _, err := msdsn.Parse(dsn); err != nil {
		return fmt.Errorf("mssql: parse DSN: %w", err)
	}
	return nil
}

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Store, error) {
		if err := validateDSN(cfg.DSN); err != nil {
			return nil, err
		}
		s, err := newStore(ctx, Dialect(), cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	storage.RegisterDDL(Kind, func(ctx context.Context, s storage.Store) error {
		ss, ok := s.(*sqlstore.Store)
		if !ok {
			return fmt.Errorf("mssql: bootstrap: unexpected store %T", s)
		}
		return ss.Bootstrap(ctx)
	})
}
