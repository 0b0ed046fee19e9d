package ports

import (
	"context"

	"github.com/iden3/iden3comm/v2/protocol"
)

// SessionRepository keeps the authorization requests waiting for a callback
type SessionRepository interface {
	Get(ctx context.Context, key string) (protocol.AuthorizationRequestMessage, error)
	Set(ctx context.Context, key string, value protocol.AuthorizationRequestMessage) error
	Delete(ctx context.Context, key string) error
}

// AccessRepository keeps the access tokens handed to the users who signed in
type AccessRepository interface {
	Grant(ctx context.Context, token string, did string) error
	Holder(ctx context.Context, token string) (string, error)
}
