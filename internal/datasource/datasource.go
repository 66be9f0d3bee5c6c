// Package datasource abstracts where pipeline input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens one input dataset for reading. Name identifies the input in
// logs and errors.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	Name() string
}
