package catalog

import "context"

// Source supplies the current catalog as search documents. Implementations
// must be idempotent and side-effect-free; the index lifecycle manager calls
// All on every rebuild.
type Source interface {
	All(ctx context.Context) ([]Document, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]Document, error)

func (f SourceFunc) All(ctx context.Context) ([]Document, error) {
	return f(ctx)
}
