package verifier

import (
	"context"
	"crypto/ecdsa"

	ethCommon "github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/iden3/iden3comm/v2/protocol"

	"github.com/polygonid/verifier-node/internal/config"
	"github.com/polygonid/verifier-node/internal/core/services"
	"github.com/polygonid/verifier-node/internal/storage"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
)

// Verifier checks a proof response against the request it answers
type Verifier interface {
	Check(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest) error
}

// Provider builds verifiers on top of the storage bundle
type Provider struct {
	cfg *config.Configuration
}

// NewProvider returns a Provider. storage.Init must have been called before asking for verifiers.
func NewProvider(cfg *config.Configuration) *Provider {
	return &Provider{cfg: cfg}
}

// OffChainVerifier returns a verifier that checks the proof locally.
// Issuer states are checked on chain when the storage has a state reader.
func (p *Provider) OffChainVerifier() (*services.OffChainVerifier, error) {
	s, err := storage.Instance()
	if err != nil {
		return nil, err
	}
	return services.NewOffChainVerifier(s.ProofService, s.Queries, s.StateStorage), nil
}

// OnChainVerifier returns a verifier that goes through the ERC20 verifier contract reachable with client
func (p *Provider) OnChainVerifier(client *eth.Client) (*services.OnChainVerifier, error) {
	s, err := storage.Instance()
	if err != nil {
		return nil, err
	}
	offChain := services.NewOffChainVerifier(s.ProofService, s.Queries, s.StateStorage)
	onChain := p.cfg.OnChainVerifier
	return services.NewOnChainVerifier(client, s.KMS, offChain, services.OnChainConfig{
		ChainID:          p.cfg.Ethereum.ChainID,
		VerifierContract: ethCommon.HexToAddress(onChain.VerifierContract),
		Validator:        ethCommon.HexToAddress(onChain.ValidatorAddress),
		RequestID:        onChain.RequestID,
		GasLimit:         uint64(p.cfg.Ethereum.DefaultGasLimit),
		VerifierKey:      s.VerifierKey,
		UserKey:          s.UserKey,
	}), nil
}

// WithSigner binds the signer of submitZKPResponse to an on-chain verifier. A nil signer falls back to
// the configured user key.
func WithSigner(v *services.OnChainVerifier, signer *ecdsa.PrivateKey) Verifier {
	return signed{verifier: v, signer: signer}
}

type signed struct {
	verifier *services.OnChainVerifier
	signer   *ecdsa.PrivateKey
}

func (s signed) Check(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest) error {
	return s.verifier.Check(ctx, resp, req, s.signer)
}

// WithSubmission binds a submitZKPResponse transaction signed by the user's wallet to an on-chain
// verifier. The transaction is broadcast as is once it matches the proof response.
func WithSubmission(v *services.OnChainVerifier, submission *ethTypes.Transaction) Verifier {
	return submitted{verifier: v, submission: submission}
}

type submitted struct {
	verifier   *services.OnChainVerifier
	submission *ethTypes.Transaction
}

func (s submitted) Check(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest) error {
	return s.verifier.CheckSubmission(ctx, resp, req, s.submission)
}
