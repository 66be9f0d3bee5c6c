package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// fakeStore satisfies Store for registry tests; only Kind and Close are used.
type fakeStore struct {
	Store
	kind   string
	closed bool
}

func (f *fakeStore) Kind() string { return f.kind }
func (f *fakeStore) Close()       { f.closed = true }

// TestRegisterAndNew_Success verifies that registering a backend enables New()
// to return the corresponding store.
func TestRegisterAndNew_Success(t *testing.T) {
	t.Parallel()

	kind := "fake"
	Register(kind, func(ctx context.Context, cfg Config) (Store, error) {
		return &fakeStore{kind: cfg.Kind}, nil
	})

	s, err := New(context.Background(), Config{Kind: kind})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if s.Kind() != kind {
		t.Fatalf("Kind() = %q, want %q", s.Kind(), kind)
	}

	found := false
	for _, k := range ListKinds() {
		if k == kind {
			found = true
		}
	}
	if !found {
		t.Fatalf("registered kind %q not present in ListKinds: %v", kind, ListKinds())
	}
}

// TestNew_Unsupported verifies that unsupported kinds return a helpful error.
func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if got, want := err.Error(), "unsupported storage.kind=does-not-exist"; got != want {
		t.Fatalf("error = %q, want %q", got, want)
	}
}

// TestRegister_Override verifies that re-registering a kind replaces the
// previous factory.
func TestRegister_Override(t *testing.T) {
	t.Parallel()

	kind := "override"
	calls := 0
	Register(kind, func(ctx context.Context, cfg Config) (Store, error) {
		calls++
		return &fakeStore{kind: kind}, nil
	})
	Register(kind, func(ctx context.Context, cfg Config) (Store, error) {
		calls += 10
		return &fakeStore{kind: kind}, nil
	})

	if _, err := New(context.Background(), Config{Kind: kind}); err != nil {
		t.Fatalf("New error: %v", err)
	}
	if calls != 10 {
		t.Fatalf("factory call count = %d, want 10", calls)
	}
}

// TestListKinds_Snapshot checks that ListKinds returns a copy.
func TestListKinds_Snapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(ctx context.Context, cfg Config) (Store, error) { return &fakeStore{}, nil })

	a := ListKinds()
	if len(a) == 0 {
		t.Fatalf("ListKinds empty after registration")
	}
	a[0] = "mutated"

	if b := ListKinds(); reflect.DeepEqual(a, b) {
		t.Fatalf("ListKinds returned same slice; want snapshot copy")
	}
}

// TestRegister_AllowsErrors shows factory errors bubble up.
func TestRegister_AllowsErrors(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	Register("errkind", func(ctx context.Context, cfg Config) (Store, error) { return nil, want })

	if _, err := New(context.Background(), Config{Kind: "errkind"}); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	var got string
	RegisterDDL("ddlkind", func(ctx context.Context, s Store) error {
		got = s.Kind()
		return nil
	})

	if err := EnsureSchema(context.Background(), &fakeStore{kind: "ddlkind"}); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if got != "ddlkind" {
		t.Fatalf("bootstrapper saw kind %q", got)
	}
	if err := EnsureSchema(context.Background(), &fakeStore{kind: "none"}); err == nil {
		t.Fatal("expected error for kind without bootstrapper")
	}
}
