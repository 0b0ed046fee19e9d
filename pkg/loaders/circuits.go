package loaders

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/iden3/go-circuits/v2"

	"github.com/polygonid/verifier-node/internal/loader"
)

const (
	wasmFile            = "circuit.wasm"
	provingKeyFile      = "circuit_final.zkey"
	verificationKeyFile = "verification_key.json"
)

// SupportedCircuits are the circuits whose assets the node knows how to load
var SupportedCircuits = []circuits.CircuitID{
	circuits.AuthV2CircuitID,
	circuits.AtomicQuerySigV2CircuitID,
	circuits.AtomicQuerySigV2OnChainCircuitID,
	circuits.StateTransitionCircuitID,
	circuits.AtomicQueryMTPV2CircuitID,
}

// CircuitFilesSet set circuits files.
type CircuitFilesSet struct {
	Wasm            []byte
	ProofKey        []byte
	VerificationKey []byte
}

// Circuits load circuits key.
type Circuits struct {
	base    string
	factory loader.Factory
}

// NewCircuits create loader that returns circuits files. base is a local directory or an http(s) or ipfs url.
// Every asset is read through a loader built by factory.
func NewCircuits(base string, factory loader.Factory) *Circuits {
	return &Circuits{base: base, factory: factory}
}

// Load circuits files by circuitID.
func (l *Circuits) Load(ctx context.Context, circuitID circuits.CircuitID) (*CircuitFilesSet, error) {
	rawWasmFile, err := l.LoadWasm(ctx, circuitID)
	if err != nil {
		return nil, err
	}
	rawProofKeyFile, err := l.LoadProvingKey(ctx, circuitID)
	if err != nil {
		return nil, err
	}
	rawVerificationKeyFile, err := l.LoadVerificationKey(ctx, circuitID)
	if err != nil {
		return nil, err
	}

	return &CircuitFilesSet{
		Wasm:            rawWasmFile,
		ProofKey:        rawProofKeyFile,
		VerificationKey: rawVerificationKeyFile,
	}, nil
}

// LoadVerificationKey load verification key by circuit ID.
func (l *Circuits) LoadVerificationKey(ctx context.Context, circuitID circuits.CircuitID) ([]byte, error) {
	return l.load(ctx, circuitID, verificationKeyFile)
}

// LoadProvingKey load proof key by circuit ID.
func (l *Circuits) LoadProvingKey(ctx context.Context, circuitID circuits.CircuitID) ([]byte, error) {
	return l.load(ctx, circuitID, provingKeyFile)
}

// KeyLoader reads verification keys for the iden3 auth verifier
type KeyLoader struct {
	circuits *Circuits
}

// KeyLoader returns a verification key loader backed by l
func (l *Circuits) KeyLoader() KeyLoader {
	return KeyLoader{circuits: l}
}

// Load returns the verification key of id
func (k KeyLoader) Load(id circuits.CircuitID) ([]byte, error) {
	return k.circuits.LoadVerificationKey(context.Background(), id)
}

// LoadWasm load wasm file by circuit ID.
func (l *Circuits) LoadWasm(ctx context.Context, circuitID circuits.CircuitID) ([]byte, error) {
	return l.load(ctx, circuitID, wasmFile)
}

func (l *Circuits) load(ctx context.Context, circuitID circuits.CircuitID, fileName string) ([]byte, error) {
	location, err := l.location(circuitID, fileName)
	if err != nil {
		return nil, err
	}
	data, err := l.factory(location).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load file '%s' from '%s': %w", fileName, location, err)
	}
	return data, nil
}

func (l *Circuits) location(circuitID circuits.CircuitID, fileName string) (string, error) {
	if strings.Contains(l.base, "://") && !strings.HasPrefix(l.base, "file://") {
		return url.JoinPath(l.base, string(circuitID), fileName)
	}
	return filepath.Join(strings.TrimPrefix(l.base, "file://"), string(circuitID), fileName), nil
}
