// Package all wires every built-in storage backend into the storage factory.
//
// Importing it for side effects makes these kinds available to storage.New:
//
//   - "sqlite"   (healthetl/internal/storage/sqlite)
//   - "postgres" (healthetl/internal/storage/postgres)
//   - "mssql"    (healthetl/internal/storage/mssql)
//   - "mysql"    (healthetl/internal/storage/mysql)
//
// Typical usage from a command:
//
//	import _ "healthetl/internal/storage/all"
//
//	store, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	if cfg.Storage.Bootstrap {
//	    err = storage.EnsureSchema(ctx, store)
//	}
//
// A binary that needs only a subset can import the backend packages directly.
package all

import (
	_ "healthetl/internal/storage/mssql"
	_ "healthetl/internal/storage/mysql"
	_ "healthetl/internal/storage/postgres"
	_ "healthetl/internal/storage/sqlite"
)
