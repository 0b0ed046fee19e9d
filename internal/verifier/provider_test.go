package verifier

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-circuits/v2"
	"github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/iden3comm/v2/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polygonid/verifier-node/internal/config"
	"github.com/polygonid/verifier-node/internal/core/services"
	"github.com/polygonid/verifier-node/internal/storage"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth/ethtest"
)

func TestProvider(t *testing.T) {
	ctx := context.Background()
	t.Setenv("VERIFIER_ENV_FILE", "testdata/does-not-exist")
	cfg, err := config.Load()
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg.OnChainVerifier.VerifierPrivateKey = hex.EncodeToString(crypto.FromECDSA(key))
	cfg.Circuit.Path = t.TempDir()

	p := NewProvider(cfg)
	_, err = p.OffChainVerifier()
	assert.ErrorIs(t, err, storage.ErrNotInitialized)

	_, err = storage.Init(ctx, cfg, storage.Deps{})
	require.NoError(t, err)

	offChain, err := p.OffChainVerifier()
	require.NoError(t, err)

	req, err := config.DefaultProofRequests().ProofOfAgeRequest(20020101)
	require.NoError(t, err)
	resp := protocol.ZeroKnowledgeProofResponse{
		ID:        req.ID,
		CircuitID: string(circuits.AtomicQuerySigV2CircuitID),
		ZKProof:   types.ZKProof{Proof: &types.ProofData{}},
	}
	assert.ErrorIs(t, offChain.Check(ctx, resp, req), services.ErrQueryMismatch)
	assert.False(t, offChain.Verify(ctx, resp, req))

	cc := cfg.Ethereum.ClientConfig()
	foreign := eth.NewClient(ethtest.NewBackend(1), &cc)
	onChain, err := p.OnChainVerifier(foreign)
	require.NoError(t, err)
	assert.NoError(t, WithSigner(onChain, nil).Check(ctx, resp, req), "another chain skips the verification")
	assert.NoError(t, WithSubmission(onChain, nil).Check(ctx, resp, req), "another chain skips the verification")
}
