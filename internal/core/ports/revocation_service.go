package ports

import (
	"context"

	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-schema-processor/v2/verifiable"
)

// RevocationService resolves the revocation status a credential status points to
type RevocationService interface {
	Status(ctx context.Context, issuerDID *w3c.DID, credStatus any) (*verifiable.RevocationStatus, error)
}
