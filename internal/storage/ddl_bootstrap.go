package storage

import (
	"context"
	"fmt"
	"sync"
)

// Bootstrapper creates the pipeline schema on an open Store when it does not
// exist yet. Backends register one per storage kind at init time.
type Bootstrapper func(ctx context.Context, s Store) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]Bootstrapper{}
)

// RegisterDDL registers (or replaces) the Bootstrapper for kind.
func RegisterDDL(kind string, fn Bootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureSchema runs the Bootstrapper registered for s.Kind().
func EnsureSchema(ctx context.Context, s Store) error {
	ddlMu.RLock()
	fn, ok := ddlFns[s.Kind()]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", s.Kind())
	}
	return fn(ctx, s)
}
