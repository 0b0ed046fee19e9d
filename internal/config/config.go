package config

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
)

const (
	envPrefix      = "VERIFIER_"
	envFileVar     = "VERIFIER_ENV_FILE"
	defaultEnvFile = ".env-verifier"

	// CacheProviderMemory keeps cached entries in process memory
	CacheProviderMemory = "memory"
	// CacheProviderRedis stores cached entries in redis
	CacheProviderRedis = "redis"
	// CacheProviderValKey stores cached entries in valkey
	CacheProviderValKey = "valkey"
)

// Configuration holds the project configuration
type Configuration struct {
	ServerPort        int             `env:"SERVER_PORT" envDefault:"3001"`
	ProofRequestsFile string          `env:"PROOF_REQUESTS_FILE"`
	Ethereum          Ethereum        `envPrefix:"ETHEREUM_"`
	OnChainVerifier   OnChainVerifier `envPrefix:"ONCHAIN_VERIFIER_"`
	Circuit           Circuit         `envPrefix:"CIRCUIT_"`
	Cache             Cache           `envPrefix:"CACHE_"`
	MerkleTree        MerkleTree      `envPrefix:"MERKLE_TREE_"`
	Theme             Theme           `envPrefix:"THEME_"`
	Auth              Auth            `envPrefix:"AUTH_"`
	Log               Log             `envPrefix:"LOG_"`
}

// Ethereum holds the connection parameters of the network the verifier talks to.
type Ethereum struct {
	URL                    string        `env:"URL"`
	ChainID                int64         `env:"CHAIN_ID" envDefault:"80001"`
	ContractAddress        string        `env:"CONTRACT_ADDRESS" envDefault:"0x134b1be34911e39a8397ec6289782989729807a4"`
	DefaultGasLimit        int           `env:"DEFAULT_GAS_LIMIT" envDefault:"600000"`
	ConfirmationTimeout    time.Duration `env:"CONFIRMATION_TIMEOUT" envDefault:"600s"`
	ConfirmationBlockCount int64         `env:"CONFIRMATION_BLOCK_COUNT" envDefault:"5"`
	ReceiptTimeout         time.Duration `env:"RECEIPT_TIMEOUT" envDefault:"600s"`
	MinGasPrice            int64         `env:"MIN_GAS_PRICE" envDefault:"0"`
	MaxGasPrice            int64         `env:"MAX_GAS_PRICE" envDefault:"100000000000"`
	RPCResponseTimeout     time.Duration `env:"RPC_RESPONSE_TIMEOUT" envDefault:"5s"`
	WaitReceiptCycleTime   time.Duration `env:"WAIT_RECEIPT_CYCLE_TIME" envDefault:"30s"`
	WaitBlockCycleTime     time.Duration `env:"WAIT_BLOCK_CYCLE_TIME" envDefault:"3s"`
}

// OnChainVerifier holds the parameters of the ERC20 verifier contract query.
// Schema and ClaimPathKey are decimal strings computed for the Operator query on SchemaType.ClaimPathField.
// Requests on any other field, and every request when Schema is empty, are resolved from their JSON-LD context.
type OnChainVerifier struct {
	VerifierContract   string `env:"CONTRACT" envDefault:"0xA59B9E70639B2A4CF51af47f39D14B1E735301Fb"`
	ValidatorAddress   string `env:"VALIDATOR_ADDRESS" envDefault:"0x55E82C15123C637a6Bbe0EFE1515f7087faC0545"`
	RequestID          uint64 `env:"REQUEST_ID" envDefault:"1"`
	Schema             string `env:"SCHEMA" envDefault:"74977327600848231385663280181476307657"`
	ClaimPathKey       string `env:"CLAIM_PATH_KEY" envDefault:"20376033832371109177683048456014525905119173674985843915445634726167450989630"`
	SchemaType         string `env:"SCHEMA_TYPE" envDefault:"KYCAgeCredential"`
	ClaimPathField     string `env:"CLAIM_PATH_FIELD" envDefault:"birthday"`
	Operator           int    `env:"OPERATOR" envDefault:"2"`
	VerifierPrivateKey string `env:"VERIFIER_PRIVATE_KEY"`
	UserPrivateKey     string `env:"USER_PRIVATE_KEY"`
}

// Circuit tells where the circuit assets live. BaseURL takes precedence over Path.
// ipfs:// locations are read through IPFSNodeURL when set, otherwise through IPFSGateway.
type Circuit struct {
	Path        string `env:"PATH" envDefault:"./circuits"`
	BaseURL     string `env:"BASE_URL"`
	IPFSGateway string `env:"IPFS_GATEWAY" envDefault:"https://ipfs.io"`
	IPFSNodeURL string `env:"IPFS_NODE_URL"`
}

// Location returns the base location of the circuit assets.
func (c Circuit) Location() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return c.Path
}

// Cache configurations
type Cache struct {
	Provider string `env:"PROVIDER" envDefault:"memory"`
	URL      string `env:"URL"`
}

// MerkleTree configuration of the in memory identity trees
type MerkleTree struct {
	Depth int `env:"DEPTH" envDefault:"40"`
}

// Theme holds the interface theme preference settings
type Theme struct {
	StorePath   string        `env:"STORE_PATH" envDefault:"./theme.json"`
	ToriiURL    string        `env:"TORII_URL"`
	SwitchDelay time.Duration `env:"SWITCH_DELAY" envDefault:"100ms"`
}

// Auth holds the sign in flow settings. Audience is the DID of this verifier and CallbackURL the public
// address the wallet posts the JWZ token to.
type Auth struct {
	Audience       string        `env:"AUDIENCE"`
	CallbackURL    string        `env:"CALLBACK_URL" envDefault:"http://localhost:3001/v1/auth/callback"`
	Reason         string        `env:"REASON" envDefault:"age verification"`
	ResolverPrefix string        `env:"RESOLVER_PREFIX" envDefault:"polygon:mumbai"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	AccessTTL      time.Duration `env:"ACCESS_TTL" envDefault:"12h"`
	StateDelay     time.Duration `env:"STATE_TRANSITION_DELAY" envDefault:"5m"`
}

// Log holds runtime configurations
//
// Level: The minimum log level to show on logs. Values can be
//
//	 -4: Debug
//		0: Info
//		4: Warning
//		8: Error
//
// Mode: Log mode is the format of the log. It can be text or json
// 1: JSON
// 2: Text
type Log struct {
	Level int `env:"LEVEL" envDefault:"-4"`
	Mode  int `env:"MODE" envDefault:"2"`
}

// ClientConfig returns the ethereum client settings.
func (e Ethereum) ClientConfig() eth.ClientConfig {
	return eth.ClientConfig{
		ReceiptTimeout:         e.ReceiptTimeout,
		ConfirmationTimeout:    e.ConfirmationTimeout,
		ConfirmationBlockCount: e.ConfirmationBlockCount,
		DefaultGasLimit:        e.DefaultGasLimit,
		MinGasPrice:            big.NewInt(e.MinGasPrice),
		MaxGasPrice:            big.NewInt(e.MaxGasPrice),
		RPCResponseTimeout:     e.RPCResponseTimeout,
		WaitReceiptCycleTime:   e.WaitReceiptCycleTime,
		WaitBlockCycleTime:     e.WaitBlockCycleTime,
	}
}

// Load loads the configuration from the environment. A dotenv file is read first if it exists.
func Load() (*Configuration, error) {
	ctx := context.Background()
	envFile, ok := os.LookupEnv(envFileVar)
	if !ok {
		envFile = defaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Debug(ctx, "env file not loaded", "file", envFile, "err", err)
	}

	cfg := &Configuration{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	checkEnvVars(ctx, cfg)
	return cfg, nil
}

func checkEnvVars(ctx context.Context, cfg *Configuration) {
	if cfg.Ethereum.URL == "" {
		log.Info(ctx, "VERIFIER_ETHEREUM_URL value is missing")
	}

	if cfg.OnChainVerifier.VerifierPrivateKey == "" {
		log.Info(ctx, "VERIFIER_ONCHAIN_VERIFIER_VERIFIER_PRIVATE_KEY value is missing")
	}

	if cfg.Circuit.Path == "" && cfg.Circuit.BaseURL == "" {
		log.Info(ctx, "VERIFIER_CIRCUIT_PATH value is missing")
	}

	if cfg.Cache.Provider != CacheProviderMemory && cfg.Cache.URL == "" {
		log.Info(ctx, "VERIFIER_CACHE_URL value is missing")
	}

	if cfg.Auth.Audience == "" {
		log.Info(ctx, "VERIFIER_AUTH_AUDIENCE value is missing")
	}

	if cfg.Theme.ToriiURL == "" {
		log.Info(ctx, "VERIFIER_THEME_TORII_URL value is missing")
	}
}
