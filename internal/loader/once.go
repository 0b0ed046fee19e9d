package loader

import (
	"context"
	"sync"
)

type once struct {
	mu     sync.Mutex
	loader Loader
	loaded bool
	data   []byte
}

// Load satisfies Loader interface. It calls o.loader until the first success and stores the response.
// Next calls will use previous data
func (o *once) Load(ctx context.Context) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded {
		return o.data, nil
	}
	data, err := o.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	o.data, o.loaded = data, true
	return o.data, nil
}

// Once returns a Loader that calls the internal loader l only once, storing the response in memory
func Once(l Loader) Loader {
	return &once{
		loader: l,
	}
}

// OnceFactory returns a factory loader that returns "Once loaders". Loaders that load the file only once
// Once only caches responses. f is the underlying factory loader that will perform the file loading
func OnceFactory(f Factory) Factory {
	return func(url string) Loader {
		return Once(f(url))
	}
}
