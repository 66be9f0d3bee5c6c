package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaMismatch matches every *SchemaError with errors.Is.
var ErrSchemaMismatch = errors.New("ingest: schema mismatch")

// SchemaError reports required columns absent from an input header.
type SchemaError struct {
	Dataset string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ingest: missing columns in %s CSV: %s", e.Dataset, strings.Join(e.Missing, ", "))
}

// Is reports whether target is ErrSchemaMismatch.
func (e *SchemaError) Is(target error) bool { return target == ErrSchemaMismatch }
