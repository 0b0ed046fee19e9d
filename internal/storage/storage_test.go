package storage

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polygonid/verifier-node/internal/config"
	"github.com/polygonid/verifier-node/internal/kms"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth/ethtest"
	"github.com/polygonid/verifier-node/pkg/cache"
)

func reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

func newConfig(t *testing.T) *config.Configuration {
	t.Helper()
	t.Setenv("VERIFIER_ENV_FILE", "testdata/does-not-exist")
	cfg, err := config.Load()
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cfg.OnChainVerifier.VerifierPrivateKey = hex.EncodeToString(crypto.FromECDSA(key))
	cfg.Circuit.Path = t.TempDir()
	return cfg
}

func TestInstance_NotInitialized(t *testing.T) {
	reset()
	_, err := Instance()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInit(t *testing.T) {
	ctx := context.Background()
	type testConfig struct {
		name      string
		ethClient bool
		userKey   bool
	}
	for _, tc := range []testConfig{
		{name: "without ethereum node"},
		{name: "with ethereum node", ethClient: true, userKey: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reset()
			t.Cleanup(reset)
			cfg := newConfig(t)
			if tc.userKey {
				key, err := crypto.GenerateKey()
				require.NoError(t, err)
				cfg.OnChainVerifier.UserPrivateKey = "0x" + hex.EncodeToString(crypto.FromECDSA(key))
			}
			deps := Deps{Cache: cache.NewMemoryCache()}
			if tc.ethClient {
				cc := cfg.Ethereum.ClientConfig()
				deps.EthClient = eth.NewClient(ethtest.NewBackend(cfg.Ethereum.ChainID), &cc)
			}

			s, err := Init(ctx, cfg, deps)
			require.NoError(t, err)
			assert.Equal(t, tc.ethClient, s.StateStorage != nil)
			assert.Equal(t, tc.ethClient, s.Auth != nil)
			assert.NotNil(t, s.CredentialWallet)
			assert.NotNil(t, s.IdentityWallet)
			assert.NotNil(t, s.ProofService)
			assert.NotNil(t, s.Queries)

			verifierKey, err := s.KMS.PrivateKeyECDSA(ctx, s.VerifierKey)
			require.NoError(t, err)
			assert.Equal(t, cfg.OnChainVerifier.VerifierPrivateKey, hex.EncodeToString(crypto.FromECDSA(verifierKey)))
			if tc.userKey {
				assert.Equal(t, kms.KeyTypeEthereum, s.UserKey.Type)
			} else {
				assert.Empty(t, s.UserKey.ID)
			}

			identity, err := s.IdentityWallet.CreateIdentity(ctx, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, identity.Identifier)

			got, err := Instance()
			require.NoError(t, err)
			assert.Same(t, s, got)
		})
	}
}

func TestInit_Idempotent(t *testing.T) {
	reset()
	t.Cleanup(reset)
	ctx := context.Background()

	first, err := Init(ctx, newConfig(t), Deps{})
	require.NoError(t, err)

	other := newConfig(t)
	other.OnChainVerifier.Schema = "not a number"
	second, err := Init(ctx, other, Deps{})
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestInit_Errors(t *testing.T) {
	ctx := context.Background()
	type testConfig struct {
		name   string
		mutate func(cfg *config.Configuration)
	}
	for _, tc := range []testConfig{
		{name: "invalid verifier key", mutate: func(cfg *config.Configuration) { cfg.OnChainVerifier.VerifierPrivateKey = "zz" }},
		{name: "invalid user key", mutate: func(cfg *config.Configuration) { cfg.OnChainVerifier.UserPrivateKey = "0x1234" }},
		{name: "invalid schema", mutate: func(cfg *config.Configuration) { cfg.OnChainVerifier.Schema = "kyc" }},
		{name: "invalid claim path key", mutate: func(cfg *config.Configuration) { cfg.OnChainVerifier.ClaimPathKey = "birthday" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reset()
			cfg := newConfig(t)
			tc.mutate(cfg)
			_, err := Init(ctx, cfg, Deps{})
			assert.Error(t, err)

			_, err = Instance()
			assert.ErrorIs(t, err, ErrNotInitialized)
		})
	}
}

func TestInit_DerivesQueryFromContext(t *testing.T) {
	reset()
	t.Cleanup(reset)
	cfg := newConfig(t)
	cfg.OnChainVerifier.Schema = ""

	s, err := Init(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.NotNil(t, s.Queries)
}
