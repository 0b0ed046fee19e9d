package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-circuits/v2"
	"github.com/iden3/iden3comm/v2/protocol"

	"github.com/polygonid/verifier-node/internal/config"
	"github.com/polygonid/verifier-node/internal/core/services"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/internal/storage"
	"github.com/polygonid/verifier-node/internal/verifier"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
	"github.com/polygonid/verifier-node/pkg/cache"
)

const (
	exitVerified = 0
	exitRejected = 1
	exitFailure  = 2
)

func main() {
	requestFile := flag.String("request", "", "path to the zero knowledge proof request JSON file")
	maxBirthDate := flag.Int64("max-birth-date", 0, "use the configured proof of age request with this YYYYMMDD date instead of -request")
	responseFile := flag.String("response", "", "path to the zero knowledge proof response JSON file")
	onChain := flag.Bool("onchain", false, "submit the response to the verifier contract before checking it")
	signerKey := flag.String("signer", "", "hex private key that submits the response on chain. Defaults to the configured user key")
	inputsFile := flag.String("prove", "", "path to circuit inputs JSON. Generates a proof response instead of verifying one")
	circuitID := flag.String("circuit", string(circuits.AtomicQuerySigV2OnChainCircuitID), "circuit of the generated proof")
	requestID := flag.Uint("request-id", 1, "request id of the generated proof response")
	outFile := flag.String("out", "", "where the generated proof response is written. Defaults to stdout")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "cannot load config", "err", err)
		os.Exit(exitFailure)
	}
	ctx = log.NewContext(ctx, cfg.Log.Level, cfg.Log.Mode, os.Stderr)

	if *inputsFile != "" {
		if err := prove(ctx, cfg, *inputsFile, circuits.CircuitID(*circuitID), uint32(*requestID), *outFile); err != nil {
			log.Error(ctx, "cannot generate proof", "err", err, "circuit", *circuitID)
			os.Exit(exitFailure)
		}
		os.Exit(exitVerified)
	}
	if *responseFile == "" || (*requestFile == "" && *maxBirthDate == 0) {
		flag.Usage()
		os.Exit(exitFailure)
	}

	req, err := loadRequest(cfg, *requestFile, *maxBirthDate)
	if err != nil {
		log.Error(ctx, "cannot load proof request", "err", err)
		os.Exit(exitFailure)
	}
	var resp protocol.ZeroKnowledgeProofResponse
	if err := readJSON(*responseFile, &resp); err != nil {
		log.Error(ctx, "cannot load proof response", "err", err, "file", *responseFile)
		os.Exit(exitFailure)
	}

	var ethClient *eth.Client
	if cfg.Ethereum.URL != "" {
		cc := cfg.Ethereum.ClientConfig()
		ethClient, err = eth.Dial(ctx, cfg.Ethereum.URL, &cc)
		if err != nil {
			log.Error(ctx, "cannot connect to ethereum node", "err", err, "url", cfg.Ethereum.URL)
			os.Exit(exitFailure)
		}
	}
	if _, err := storage.Init(ctx, cfg, storage.Deps{Cache: cache.NewMemoryCache(), EthClient: ethClient}); err != nil {
		log.Error(ctx, "cannot initialize storage", "err", err)
		os.Exit(exitFailure)
	}

	v, err := newVerifier(cfg, ethClient, *onChain, *signerKey)
	if err != nil {
		log.Error(ctx, "cannot build verifier", "err", err)
		os.Exit(exitFailure)
	}

	if err := v.Check(ctx, resp, req); err != nil {
		code := exitCode(err)
		if code == exitFailure {
			log.Error(ctx, "cannot verify proof", "err", err)
		} else {
			fmt.Printf("proof rejected: %v\n", err)
		}
		os.Exit(code)
	}
	fmt.Println("proof verified")
	os.Exit(exitVerified)
}

// exitCode maps a verification error to the process exit code. Network and initialization
// failures say nothing about the proof itself.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitVerified
	case errors.Is(err, services.ErrNetwork), errors.Is(err, services.ErrNotInitialized):
		return exitFailure
	default:
		return exitRejected
	}
}

func prove(ctx context.Context, cfg *config.Configuration, inputsFile string, circuitID circuits.CircuitID, requestID uint32, outFile string) error {
	inputs, err := os.ReadFile(inputsFile)
	if err != nil {
		return err
	}
	s, err := storage.Init(ctx, cfg, storage.Deps{Cache: cache.NewMemoryCache()})
	if err != nil {
		return err
	}
	zkp, err := s.ProofService.GenerateProof(ctx, inputs, circuitID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(protocol.ZeroKnowledgeProofResponse{
		ID:        requestID,
		CircuitID: string(circuitID),
		ZKProof:   *zkp,
	}, "", "  ")
	if err != nil {
		return err
	}
	if outFile == "" {
		_, err = fmt.Println(string(out))
		return err
	}
	return os.WriteFile(outFile, out, 0o600)
}

func loadRequest(cfg *config.Configuration, file string, maxBirthDate int64) (protocol.ZeroKnowledgeProofRequest, error) {
	if file != "" {
		var req protocol.ZeroKnowledgeProofRequest
		return req, readJSON(file, &req)
	}
	requests, err := config.LoadProofRequests(cfg.ProofRequestsFile)
	if err != nil {
		return protocol.ZeroKnowledgeProofRequest{}, err
	}
	return requests.ProofOfAgeRequest(maxBirthDate)
}

func newVerifier(cfg *config.Configuration, ethClient *eth.Client, onChain bool, signerKey string) (verifier.Verifier, error) {
	provider := verifier.NewProvider(cfg)
	if !onChain {
		return provider.OffChainVerifier()
	}
	if ethClient == nil {
		return nil, errors.New("ETHEREUM_URL is required to verify on chain")
	}
	var signer *ecdsa.PrivateKey
	if signerKey != "" {
		var err error
		signer, err = crypto.HexToECDSA(strings.TrimPrefix(signerKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signer key: %w", err)
		}
	}
	v, err := provider.OnChainVerifier(ethClient)
	if err != nil {
		return nil, err
	}
	return verifier.WithSigner(v, signer), nil
}

func readJSON(file string, v any) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
