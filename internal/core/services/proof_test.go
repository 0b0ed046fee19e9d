package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/iden3/go-circuits/v2"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-rapidsnark/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polygonid/verifier-node/internal/loader"
	"github.com/polygonid/verifier-node/pkg/loaders"
)

func TestParsePubSignals(t *testing.T) {
	type testConfig struct {
		name      string
		circuitID circuits.CircuitID
		signals   []string
		err       error
	}
	for _, tc := range []testConfig{
		{name: "unsupported circuit", circuitID: "linkedMultiQuery10-beta.1", signals: []string{"1"}, err: ErrUnsupportedCircuit},
		{name: "no signals", circuitID: circuits.AtomicQuerySigV2OnChainCircuitID, signals: []string{}, err: ErrMalformedProof},
		{name: "wrong number of signals", circuitID: circuits.AuthV2CircuitID, signals: []string{"1", "2"}, err: ErrMalformedProof},
		{name: "not a number", circuitID: circuits.AuthV2CircuitID, signals: []string{"a", "b", "c"}, err: ErrMalformedProof},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePubSignals(tc.circuitID, tc.signals)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestProofService_VerifyProof(t *testing.T) {
	ctx := context.Background()
	p := NewProofService(loaders.NewCircuits(t.TempDir(), loader.MultiProtocolFactory("", "")), nil)

	type testConfig struct {
		name      string
		zkp       *types.ZKProof
		circuitID circuits.CircuitID
		err       error
	}
	for _, tc := range []testConfig{
		{name: "nil proof", zkp: nil, circuitID: circuits.AuthV2CircuitID, err: ErrMalformedProof},
		{name: "nil proof data", zkp: &types.ZKProof{PubSignals: []string{"1"}}, circuitID: circuits.AuthV2CircuitID, err: ErrMalformedProof},
		{name: "unsupported circuit", zkp: &types.ZKProof{Proof: &types.ProofData{}}, circuitID: "unknown", err: ErrUnsupportedCircuit},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.VerifyProof(ctx, tc.zkp, tc.circuitID)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestProofService_VerifyProof_VerificationKey(t *testing.T) {
	ctx := context.Background()
	unreachable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(unreachable.Close)
	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)

	did, err := w3c.ParseDID(holderDID)
	require.NoError(t, err)
	userID, err := core.IDFromDID(*did)
	require.NoError(t, err)
	// AuthV2 public signals: user id, challenge, gist root
	zkp := &types.ZKProof{Proof: &types.ProofData{}, PubSignals: []string{userID.BigInt().String(), "2", "3"}}
	type testConfig struct {
		name     string
		location string
		err      error
	}
	for _, tc := range []testConfig{
		{name: "not in the circuits directory", location: t.TempDir(), err: ErrNotInitialized},
		{name: "not on the key server", location: missing.URL, err: ErrNotInitialized},
		{name: "key server failing", location: unreachable.URL, err: ErrNetwork},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProofService(loaders.NewCircuits(tc.location, loader.MultiProtocolFactory("", "")), nil)
			_, err := p.VerifyProof(ctx, zkp, circuits.AuthV2CircuitID)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.err)
			assert.Contains(t, err.Error(), string(circuits.AuthV2CircuitID))
		})
	}
}

func TestNativeProverService_Generate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	circuitDir := filepath.Join(dir, string(circuits.AtomicQuerySigV2OnChainCircuitID))
	require.NoError(t, os.MkdirAll(circuitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(circuitDir, "circuit.wasm"), []byte("not wasm"), 0o600))
	p := NewProofService(loaders.NewCircuits(dir, loader.MultiProtocolFactory("", "")), nil)

	type testConfig struct {
		name      string
		inputs    json.RawMessage
		circuitID circuits.CircuitID
		malformed bool
	}
	for _, tc := range []testConfig{
		{name: "missing circuit assets", inputs: json.RawMessage(`{}`), circuitID: circuits.AuthV2CircuitID},
		{name: "inputs are not json", inputs: json.RawMessage(`not json`), circuitID: circuits.AtomicQuerySigV2OnChainCircuitID, malformed: true},
		{name: "invalid wasm", inputs: json.RawMessage(`{"requestID":"1"}`), circuitID: circuits.AtomicQuerySigV2OnChainCircuitID},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.GenerateProof(ctx, tc.inputs, tc.circuitID)
			require.Error(t, err)
			assert.Equal(t, tc.malformed, errors.Is(err, ErrMalformedRequest))
		})
	}
}
