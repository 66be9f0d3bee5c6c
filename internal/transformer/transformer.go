// Package transformer defines the batch transformation contract shared by the
// ingestion pipelines. Transformers operate on typed per-dataset rows and may
// drop, rewrite or reorder them.
package transformer

// Transformer rewrites a batch of rows.
type Transformer[T any] interface {
	Apply([]T) []T
}

// Func adapts an ordinary function to the Transformer interface.
type Func[T any] func([]T) []T

// Apply calls f(in).
func (f Func[T]) Apply(in []T) []T { return f(in) }

// Chain is an ordered list of transformers.
type Chain[T any] []Transformer[T]

// Apply runs each transformer in order, feeding the output of one into the next.
func (c Chain[T]) Apply(in []T) []T {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}

// Counted wraps t and reports how many rows it removed.
type Counted[T any] struct {
	T       Transformer[T]
	Removed int
}

// Apply runs the wrapped transformer and accumulates len(in)-len(out).
func (c *Counted[T]) Apply(in []T) []T {
	out := c.T.Apply(in)
	if d := len(in) - len(out); d > 0 {
		c.Removed += d
	}
	return out
}
