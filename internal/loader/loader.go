package loader

import (
	"context"

	"github.com/piprate/json-gold/ld"
)

// DocumentLoader is an alias for json-gold DocumentLoader
type DocumentLoader ld.DocumentLoader

// Loader defines a Loader interface. It returns the raw content of a single asset
type Loader interface {
	Load(ctx context.Context) ([]byte, error)
}

// Factory defines the interface that a loader constructor should satisfy
type Factory func(url string) Loader

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(ctx context.Context) ([]byte, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context) ([]byte, error) {
	return f(ctx)
}
