package mysql

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/huandu/go-sqlbuilder"

	"healthetl/internal/storage"
	"healthetl/internal/storage/sqlstore"
)

func TestFactoryUsesMySQLDialect(t *testing.T) {
	sentinel := errors.New("no connection in tests")
	var got sqlstore.Dialect
	orig := newStore
	newStore = func(ctx context.Context, d sqlstore.Dialect, cfg storage.Config) (*sqlstore.Store, error) {
		got = d
		return nil, sentinel
	}
	t.Cleanup(func() { newStore = orig })

	_, err := storage.New(context.Background(), storage.Config{Kind: Kind, DSN: "u:p@tcp(localhost:3306)/health?parseTime=true"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err=%v want sentinel", err)
	}
	if got.Flavor != sqlbuilder.MySQL || got.Driver != "mysql" {
		t.Fatalf("unexpected dialect %+v", got)
	}
	files, err := fs.Glob(got.Migrations, "*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("migrations not embedded: %v %v", files, err)
	}
}
