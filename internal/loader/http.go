package loader

import (
	"context"

	"github.com/polygonid/verifier-node/pkg/http"
)

type httpLoader struct {
	url    string
	client *http.Client
}

func (l *httpLoader) Load(ctx context.Context) ([]byte, error) {
	return l.client.Get(ctx, l.url)
}

// HTTPFactory returns a factory of http loaders that share the given client.
// A nil client means the default client with retries.
func HTTPFactory(client *http.Client) Factory {
	if client == nil {
		client = http.DefaultHTTPClientWithRetry
	}
	return func(url string) Loader {
		return &httpLoader{url: url, client: client}
	}
}
