package health

import (
	"context"
	"time"
)

const (
	// Cache is the name of the cache check
	Cache = "cache"
	// Ethereum is the name of the ethereum node check
	Ethereum = "ethereum"
	// Storage is the name of the storage bundle check
	Storage = "storage"

	pingTimeout = 3 * time.Second
)

// Status struct
type Status struct {
	pingers map[string]Ping
}

// Ping interface
type Ping interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the Ping interface
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// New returns a Health instance. Nil pingers are left out.
func New(pingers map[string]Ping) *Status {
	m := make(map[string]Ping, len(pingers))
	for name, p := range pingers {
		if p != nil {
			m[name] = p
		}
	}
	return &Status{m}
}

// Status returns whether each dependency answers or not
func (h *Status) Status(ctx context.Context) map[string]bool {
	m := make(map[string]bool, len(h.pingers))
	for key, val := range h.pingers {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		m[key] = val.Ping(pingCtx) == nil
		cancel()
	}
	return m
}
