package storage

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	core "github.com/iden3/go-iden3-core/v2"

	"github.com/polygonid/verifier-node/internal/config"
	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/core/services"
	"github.com/polygonid/verifier-node/internal/gateways"
	"github.com/polygonid/verifier-node/internal/kms"
	"github.com/polygonid/verifier-node/internal/loader"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/repositories"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
	"github.com/polygonid/verifier-node/pkg/cache"
	"github.com/polygonid/verifier-node/pkg/credentials/revocation_status"
	client "github.com/polygonid/verifier-node/pkg/http"
	"github.com/polygonid/verifier-node/pkg/loaders"
)

// ErrNotInitialized is returned by Instance before Init succeeds
var ErrNotInitialized = services.ErrNotInitialized

var (
	mu       sync.Mutex
	instance *Services
)

// Deps are the connections the bundle is built on. EthClient may be nil: the state reader, the
// on-chain status resolver and the sign in flow are then left out.
type Deps struct {
	Cache      cache.Cache
	EthClient  *eth.Client
	HTTPClient *client.Client
}

// Services is the storage bundle. It is built once and never mutated afterwards.
type Services struct {
	KMS *kms.KMS
	// VerifierKey and UserKey are the configured ethereum keys imported in KMS. UserKey may be empty.
	VerifierKey kms.KeyID
	UserKey     kms.KeyID

	CredentialStorage ports.CredentialRepository
	IdentityStorage   ports.IdentityRepository
	MerkleTreeStorage ports.MtService
	StateStorage      ports.StateService
	CircuitStorage    *loaders.Circuits
	Sessions          ports.SessionRepository
	Access            ports.AccessRepository

	CredentialWallet *services.CredentialWallet
	IdentityWallet   *services.IdentityWallet
	ProofService     *services.ProofService
	Queries          *services.QueryResolver
	Auth             *services.AuthService
}

// Init builds the storage bundle from cfg. Only the first successful call builds it, the next ones
// return the same bundle.
func Init(ctx context.Context, cfg *config.Configuration, deps Deps) (*Services, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}
	s, err := build(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	instance = s
	log.Info(ctx, "storage initialized", "stateReader", s.StateStorage != nil, "auth", s.Auth != nil)
	return instance, nil
}

// Instance returns the bundle built by Init
func Instance() (*Services, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

func build(ctx context.Context, cfg *config.Configuration, deps Deps) (*Services, error) {
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryCache()
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = client.DefaultHTTPClientWithRetry
	}

	keys, err := kms.Open()
	if err != nil {
		log.Error(ctx, "cannot open kms", "err", err)
		return nil, err
	}
	s := &Services{KMS: keys}
	if s.VerifierKey, err = importKey(ctx, keys, cfg.OnChainVerifier.VerifierPrivateKey); err != nil {
		return nil, fmt.Errorf("verifier private key: %w", err)
	}
	if s.UserKey, err = importKey(ctx, keys, cfg.OnChainVerifier.UserPrivateKey); err != nil {
		return nil, fmt.Errorf("user private key: %w", err)
	}

	var onChainStatus revocation_status.OnChainStatusReader
	if deps.EthClient != nil {
		stateService, err := eth.NewStateService(deps.EthClient, ethCommon.HexToAddress(cfg.Ethereum.ContractAddress))
		if err != nil {
			log.Error(ctx, "cannot bind state contract", "err", err, "address", cfg.Ethereum.ContractAddress)
			return nil, err
		}
		s.StateStorage = stateService
		onChainStatus = gateways.NewOnChainCredStatusResolverService(deps.EthClient.GetEthereumClient(), cfg.Ethereum.RPCResponseTimeout)
	}

	depth := cfg.MerkleTree.Depth
	if depth <= 0 {
		depth = services.DefaultMTDepth
	}
	s.CredentialStorage = repositories.NewCredentialsInMemory()
	s.IdentityStorage = repositories.NewIdentityInMemory()
	s.MerkleTreeStorage = services.NewIdentityMerkleTrees(repositories.NewIdentityMerkleTreeInMemory(), depth)
	s.Sessions = repositories.NewSessionCached(deps.Cache, cfg.Auth.SessionTTL)
	s.Access = repositories.NewAccessCached(deps.Cache, cfg.Auth.AccessTTL)

	s.CredentialWallet = services.NewCredentialWallet(s.CredentialStorage, revocation_status.NewRevocationStatusResolver(deps.HTTPClient, s.StateStorage, onChainStatus))
	s.IdentityWallet = services.NewIdentityWallet(s.IdentityStorage, s.MerkleTreeStorage, keys)

	factory := loader.CachedFactory(loader.MultiProtocolFactory(cfg.Circuit.IPFSNodeURL, cfg.Circuit.IPFSGateway), deps.Cache)
	s.CircuitStorage = loaders.NewCircuits(cfg.Circuit.Location(), factory)
	s.ProofService = services.NewProofService(s.CircuitStorage, nil)

	s.Queries, err = newQueryResolver(cfg, deps.Cache)
	if err != nil {
		return nil, err
	}

	if s.StateStorage != nil {
		authVerifier, err := services.NewAuthVerifier(s.CircuitStorage.KeyLoader(), s.StateStorage, cfg.Auth.ResolverPrefix, cfg.Circuit.IPFSGateway)
		if err != nil {
			log.Error(ctx, "cannot create auth verifier", "err", err)
			return nil, err
		}
		s.Auth = services.NewAuthService(s.Sessions, s.Access, authVerifier, services.AuthConfig{
			Audience:    cfg.Auth.Audience,
			CallbackURL: cfg.Auth.CallbackURL,
			Reason:      cfg.Auth.Reason,
			StateDelay:  cfg.Auth.StateDelay,
		})
	}
	return s, nil
}

// newQueryResolver resolves queries from their json-ld context. The configured schema and claim path
// are used for the query they were computed for.
func newQueryResolver(cfg *config.Configuration, c cache.Cache) (*services.QueryResolver, error) {
	documents := loader.NewDocumentLoader(cfg.Circuit.IPFSGateway, c)
	if cfg.OnChainVerifier.Schema == "" {
		return services.NewQueryResolver(documents, services.StaticQuery{}), nil
	}
	schema, ok := new(big.Int).SetString(cfg.OnChainVerifier.Schema, 10)
	if !ok {
		return nil, fmt.Errorf("invalid on-chain schema %q", cfg.OnChainVerifier.Schema)
	}
	claimPathKey, ok := new(big.Int).SetString(cfg.OnChainVerifier.ClaimPathKey, 10)
	if !ok {
		return nil, fmt.Errorf("invalid on-chain claim path key %q", cfg.OnChainVerifier.ClaimPathKey)
	}
	return services.NewQueryResolver(documents, services.StaticQuery{
		Type:         cfg.OnChainVerifier.SchemaType,
		Field:        cfg.OnChainVerifier.ClaimPathField,
		Operator:     cfg.OnChainVerifier.Operator,
		SchemaHash:   core.NewSchemaHashFromInt(schema),
		ClaimPathKey: claimPathKey,
	}), nil
}

func importKey(ctx context.Context, keys *kms.KMS, hexKey string) (kms.KeyID, error) {
	if hexKey == "" {
		return kms.KeyID{}, nil
	}
	return keys.ImportETHKey(ctx, hexKey)
}
