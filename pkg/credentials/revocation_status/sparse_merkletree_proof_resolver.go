package revocation_status

import (
	"context"
	"encoding/json"

	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-schema-processor/v2/verifiable"

	client "github.com/polygonid/verifier-node/pkg/http"
)

// sparseMerkleTreeProofResolver asks the issuer node for the status at status.ID
type sparseMerkleTreeProofResolver struct {
	client *client.Client
}

func (r *sparseMerkleTreeProofResolver) Resolve(ctx context.Context, _ *w3c.DID, status verifiable.CredentialStatus) (*verifiable.RevocationStatus, error) {
	b, err := r.client.Get(ctx, status.ID)
	if err != nil {
		return nil, err
	}

	rs := &verifiable.RevocationStatus{}
	if err := json.Unmarshal(b, rs); err != nil {
		return nil, err
	}
	return rs, nil
}
