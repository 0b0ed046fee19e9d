package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/iden3/iden3comm/v2/protocol"

	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/pkg/cache"
)

const (
	defaultTTL    = 5 * time.Minute
	sessionPrefix = "auth-session-"
	accessPrefix  = "auth-access-"
)

var (
	// ErrSessionNotFound the session expired or never existed
	ErrSessionNotFound = errors.New("authorization request not found")
	// ErrAccessNotFound the access token expired or was never granted
	ErrAccessNotFound = errors.New("access token not found")
)

type cached struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewSessionCached returns a session repository backed by c. Sessions expire after ttl, 5 minutes when zero.
func NewSessionCached(c cache.Cache, ttl time.Duration) ports.SessionRepository {
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &cached{cache: c, ttl: ttl}
}

// Get returns the cached session
func (c *cached) Get(ctx context.Context, key string) (protocol.AuthorizationRequestMessage, error) {
	var message protocol.AuthorizationRequestMessage
	if found := c.cache.Get(ctx, sessionPrefix+key, &message); !found {
		return message, ErrSessionNotFound
	}
	return message, nil
}

// Set stores the given session information
func (c *cached) Set(ctx context.Context, key string, value protocol.AuthorizationRequestMessage) error {
	return c.cache.Set(ctx, sessionPrefix+key, value, c.ttl)
}

// Delete forgets the session
func (c *cached) Delete(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, sessionPrefix+key)
}

type accessCached struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewAccessCached returns an access token repository backed by c. Tokens expire after ttl, 5 minutes when zero.
func NewAccessCached(c cache.Cache, ttl time.Duration) ports.AccessRepository {
	if ttl == 0 {
		ttl = defaultTTL
	}
	return &accessCached{cache: c, ttl: ttl}
}

// Grant binds token to the did of the user who signed in
func (a *accessCached) Grant(ctx context.Context, token string, did string) error {
	return a.cache.Set(ctx, accessPrefix+token, did, a.ttl)
}

// Holder returns the did token was granted to
func (a *accessCached) Holder(ctx context.Context, token string) (string, error) {
	var did string
	if found := a.cache.Get(ctx, accessPrefix+token, &did); !found || did == "" {
		return "", ErrAccessNotFound
	}
	return did, nil
}
