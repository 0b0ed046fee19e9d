package loaders

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/iden3/go-circuits/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polygonid/verifier-node/internal/loader"
)

func TestCircuits_Location(t *testing.T) {
	type testConfig struct {
		name string
		base string
		want string
	}
	for _, tc := range []testConfig{
		{name: "relative dir", base: "./circuits", want: "circuits/authV2/circuit.wasm"},
		{name: "file scheme", base: "file:///opt/circuits", want: "/opt/circuits/authV2/circuit.wasm"},
		{name: "https", base: "https://circuits.example.com/v1/", want: "https://circuits.example.com/v1/authV2/circuit.wasm"},
		{name: "ipfs", base: "ipfs://QmCID", want: "ipfs://QmCID/authV2/circuit.wasm"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewCircuits(tc.base, nil).location(circuits.AuthV2CircuitID, wasmFile)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCircuits_Load(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	circuitDir := filepath.Join(dir, string(circuits.AtomicQuerySigV2CircuitID))
	require.NoError(t, os.MkdirAll(circuitDir, 0o755))
	for name, content := range map[string]string{
		wasmFile:            "wasm",
		provingKeyFile:      "zkey",
		verificationKeyFile: `{"protocol":"groth16"}`,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(circuitDir, name), []byte(content), 0o600))
	}

	l := NewCircuits(dir, loader.MultiProtocolFactory("", ""))
	files, err := l.Load(ctx, circuits.AtomicQuerySigV2CircuitID)
	require.NoError(t, err)
	assert.Equal(t, []byte("wasm"), files.Wasm)
	assert.Equal(t, []byte("zkey"), files.ProofKey)
	assert.JSONEq(t, `{"protocol":"groth16"}`, string(files.VerificationKey))

	_, err = l.Load(ctx, circuits.AuthV2CircuitID)
	assert.Error(t, err)
}
