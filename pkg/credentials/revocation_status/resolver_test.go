package revocation_status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	abiOnchain "github.com/iden3/contracts-abi/onchain-credential-status-resolver/go/abi"
	"github.com/iden3/contracts-abi/state/go/abi"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-merkletree-sql/v2"
	"github.com/iden3/go-schema-processor/v2/verifiable"
	"github.com/iden3/iden3comm/v2"
	"github.com/iden3/iden3comm/v2/packers"
	"github.com/iden3/iden3comm/v2/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	client "github.com/polygonid/verifier-node/pkg/http"
)

type stateReaderMock struct {
	state *big.Int
	err   error
}

func (s stateReaderMock) GetLatestStateByDID(_ context.Context, _ *w3c.DID) (abi.IStateStateInfo, error) {
	if s.err != nil {
		return abi.IStateStateInfo{}, s.err
	}
	return abi.IStateStateInfo{State: s.state}, nil
}

type onChainReaderMock struct {
	gotState   *big.Int
	gotNonce   uint64
	gotAddress ethCommon.Address
	existence  bool
	err        error
}

func (o *onChainReaderMock) GetRevocationStatus(_ context.Context, state *big.Int, nonce uint64, _ *w3c.DID, address ethCommon.Address) (abiOnchain.IOnchainCredentialStatusResolverCredentialStatus, error) {
	o.gotState, o.gotNonce, o.gotAddress = state, nonce, address
	if o.err != nil {
		return abiOnchain.IOnchainCredentialStatusResolverCredentialStatus{}, o.err
	}
	var rs abiOnchain.IOnchainCredentialStatusResolverCredentialStatus
	rs.Issuer.State = state
	rs.Issuer.ClaimsTreeRoot = big.NewInt(1)
	rs.Issuer.RevocationTreeRoot = big.NewInt(2)
	rs.Issuer.RootOfRoots = big.NewInt(3)
	rs.Mtp.Root = big.NewInt(2)
	rs.Mtp.Existence = o.existence
	rs.Mtp.Siblings = []*big.Int{big.NewInt(0)}
	rs.Mtp.Index = new(big.Int).SetUint64(nonce)
	rs.Mtp.Value = big.NewInt(0)
	rs.Mtp.AuxIndex = big.NewInt(0)
	rs.Mtp.AuxValue = big.NewInt(0)
	return rs, nil
}

func genesisIssuer(t *testing.T) (*w3c.DID, *big.Int) {
	t.Helper()
	typ, err := core.BuildDIDType(core.DIDMethodPolygonID, core.Polygon, core.Mumbai)
	require.NoError(t, err)
	state := big.NewInt(987654321)
	id, err := core.NewIDFromIdenState(typ, state)
	require.NoError(t, err)
	did, err := core.ParseDIDFromID(*id)
	require.NoError(t, err)
	return did, state
}

func stateHex(t *testing.T, state *big.Int) string {
	t.Helper()
	h, err := merkletree.NewHashFromBigInt(state)
	require.NoError(t, err)
	return h.Hex()
}

func TestRevocationStatusResolver_SparseMerkleTreeProof(t *testing.T) {
	ctx := context.Background()
	did, _ := genesisIssuer(t)
	revoked := "ab"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/credentials/revocation/status/7":
			b, err := json.Marshal(verifiable.RevocationStatus{
				Issuer: verifiable.TreeState{State: &revoked},
				MTP:    merkletree.Proof{Existence: true},
			})
			require.NoError(t, err)
			_, _ = w.Write(b)
		case "/v1/credentials/revocation/status/8":
			b, err := json.Marshal(verifiable.RevocationStatus{MTP: merkletree.Proof{Existence: false}})
			require.NoError(t, err)
			_, _ = w.Write(b)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rsr := NewRevocationStatusResolver(client.NewRetryClient(0, 0), nil, nil)

	type expected struct {
		revoked bool
		err     bool
	}
	type testConfig struct {
		name     string
		status   any
		expected expected
	}
	for _, tc := range []testConfig{
		{
			name: "revoked, struct status",
			status: verifiable.CredentialStatus{
				ID:              srv.URL + "/v1/credentials/revocation/status/7",
				Type:            verifiable.SparseMerkleTreeProof,
				RevocationNonce: 7,
			},
			expected: expected{revoked: true},
		},
		{
			name: "not revoked, map status",
			status: map[string]any{
				"id":              srv.URL + "/v1/credentials/revocation/status/8",
				"type":            string(verifiable.SparseMerkleTreeProof),
				"revocationNonce": 8,
			},
			expected: expected{revoked: false},
		},
		{
			name: "issuer does not know the nonce",
			status: &verifiable.CredentialStatus{
				ID:   srv.URL + "/v1/credentials/revocation/status/9",
				Type: verifiable.SparseMerkleTreeProof,
			},
			expected: expected{err: true},
		},
		{
			name:     "not a status",
			status:   42,
			expected: expected{err: true},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			revoked, err := rsr.IsRevoked(ctx, did, tc.status)
			if tc.expected.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.revoked, revoked)
		})
	}
}

func TestRevocationStatusResolver_Unsupported(t *testing.T) {
	did, _ := genesisIssuer(t)
	rsr := NewRevocationStatusResolver(nil, stateReaderMock{}, nil)
	assert.False(t, rsr.Supported(verifiable.Iden3OnchainSparseMerkleTreeProof2023))
	assert.True(t, rsr.Supported(verifiable.Iden3ReverseSparseMerkleTreeProof))

	_, err := rsr.Status(context.Background(), did, verifiable.CredentialStatus{
		Type: verifiable.Iden3OnchainSparseMerkleTreeProof2023,
	})
	assert.True(t, errors.Is(err, ErrUnsupportedStatusType))

	rsr.Register(verifiable.Iden3OnchainSparseMerkleTreeProof2023, ResolverFunc(
		func(context.Context, *w3c.DID, verifiable.CredentialStatus) (*verifiable.RevocationStatus, error) {
			return &verifiable.RevocationStatus{MTP: merkletree.Proof{Existence: true}}, nil
		}))
	revoked, err := rsr.IsRevoked(context.Background(), did, verifiable.CredentialStatus{
		Type: verifiable.Iden3OnchainSparseMerkleTreeProof2023,
	})
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevocationStatusResolver_OnChain(t *testing.T) {
	ctx := context.Background()
	did, genesis := genesisIssuer(t)
	contract := "0x49b84b9Dd137de488924b18299De8bf46fD11469"

	type expected struct {
		state *big.Int
		err   bool
	}
	type testConfig struct {
		name     string
		states   stateReaderMock
		id       string
		nonce    uint64
		expected expected
	}
	for _, tc := range []testConfig{
		{
			name:     "latest published state",
			states:   stateReaderMock{state: big.NewInt(555)},
			id:       fmt.Sprintf("%s/credentialStatus?revocationNonce=3&contractAddress=80001:%s", did, contract),
			nonce:    3,
			expected: expected{state: big.NewInt(555)},
		},
		{
			name:     "genesis state from id",
			states:   stateReaderMock{err: errors.New("execution reverted: Identity does not exist")},
			id:       fmt.Sprintf("%s/credentialStatus?revocationNonce=3&contractAddress=80001:%s&state=%s", did, contract, stateHex(t, genesis)),
			nonce:    3,
			expected: expected{state: genesis},
		},
		{
			name:     "genesis state missing",
			states:   stateReaderMock{err: errors.New("execution reverted: Identity does not exist")},
			id:       fmt.Sprintf("%s/credentialStatus?contractAddress=80001:%s", did, contract),
			nonce:    3,
			expected: expected{err: true},
		},
		{
			name:     "state is not genesis",
			states:   stateReaderMock{state: big.NewInt(0)},
			id:       fmt.Sprintf("%s/credentialStatus?contractAddress=80001:%s&state=%s", did, contract, stateHex(t, big.NewInt(1))),
			nonce:    3,
			expected: expected{err: true},
		},
		{
			name:     "nonce mismatch",
			states:   stateReaderMock{state: big.NewInt(555)},
			id:       fmt.Sprintf("%s/credentialStatus?revocationNonce=4&contractAddress=80001:%s", did, contract),
			nonce:    3,
			expected: expected{err: true},
		},
		{
			name:     "rpc failure",
			states:   stateReaderMock{err: errors.New("connection refused")},
			id:       fmt.Sprintf("%s/credentialStatus?contractAddress=80001:%s", did, contract),
			nonce:    3,
			expected: expected{err: true},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			onChain := &onChainReaderMock{}
			rsr := NewRevocationStatusResolver(nil, tc.states, onChain)
			rs, err := rsr.Status(ctx, did, verifiable.CredentialStatus{
				ID:              tc.id,
				Type:            verifiable.Iden3OnchainSparseMerkleTreeProof2023,
				RevocationNonce: tc.nonce,
			})
			if tc.expected.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.state, onChain.gotState)
			assert.Equal(t, tc.nonce, onChain.gotNonce)
			assert.Equal(t, ethCommon.HexToAddress(contract), onChain.gotAddress)
			assert.False(t, rs.MTP.Existence)
			require.NotNil(t, rs.Issuer.State)
			assert.Equal(t, stateHex(t, tc.expected.state), *rs.Issuer.State)
		})
	}
}

func TestRevocationStatusResolver_RHSFallsBackToIssuer(t *testing.T) {
	ctx := context.Background()
	did, genesis := genesisIssuer(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/issuer/status/5" {
			b, err := json.Marshal(verifiable.RevocationStatus{MTP: merkletree.Proof{Existence: true}})
			require.NoError(t, err)
			_, _ = w.Write(b)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rsr := NewRevocationStatusResolver(client.NewRetryClient(0, 0),
		stateReaderMock{err: errors.New("Identity does not exist")}, nil)

	status := verifiable.CredentialStatus{
		ID:              fmt.Sprintf("%s/rhs/node?state=%s", srv.URL, stateHex(t, genesis)),
		Type:            verifiable.Iden3ReverseSparseMerkleTreeProof,
		RevocationNonce: 5,
		StatusIssuer: &verifiable.CredentialStatus{
			ID:              srv.URL + "/issuer/status/5",
			Type:            verifiable.SparseMerkleTreeProof,
			RevocationNonce: 5,
		},
	}
	revoked, err := rsr.IsRevoked(ctx, did, status)
	require.NoError(t, err)
	assert.True(t, revoked)

	status.StatusIssuer = nil
	_, err = rsr.IsRevoked(ctx, did, status)
	assert.Error(t, err)

	status.ID = srv.URL + "/rhs/node"
	_, err = rsr.IsRevoked(ctx, did, status)
	assert.Error(t, err)
}

func TestRevocationStatusResolver_Iden3commAgent(t *testing.T) {
	ctx := context.Background()
	did, _ := genesisIssuer(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		pm, err := plainPackageManager()
		require.NoError(t, err)
		msg, _, err := pm.Unpack(raw)
		require.NoError(t, err)
		require.Equal(t, protocol.RevocationStatusRequestMessageType, msg.Type)
		var req protocol.RevocationStatusRequestMessageBody
		require.NoError(t, json.Unmarshal(msg.Body, &req))

		respType := protocol.RevocationStatusResponseMessageType
		if r.URL.Path == "/agent/wrong-type" {
			respType = protocol.RevocationStatusRequestMessageType
		}
		body, err := json.Marshal(protocol.RevocationStatusResponseMessageBody{
			RevocationStatus: verifiable.RevocationStatus{MTP: merkletree.Proof{Existence: req.RevocationNonce == 11}},
		})
		require.NoError(t, err)
		resp, err := json.Marshal(iden3comm.BasicMessage{
			ID:       "1",
			ThreadID: msg.ThreadID,
			Typ:      packers.MediaTypePlainMessage,
			Type:     respType,
			From:     msg.To,
			To:       msg.From,
			Body:     body,
		})
		require.NoError(t, err)
		_, _ = w.Write(resp)
	}))
	defer srv.Close()

	rsr := NewRevocationStatusResolver(client.NewRetryClient(0, 0), nil, nil)

	type expected struct {
		revoked bool
		err     bool
	}
	type testConfig struct {
		name     string
		path     string
		nonce    uint64
		issuer   *w3c.DID
		expected expected
	}
	for _, tc := range []testConfig{
		{name: "revoked", path: "/agent", nonce: 11, issuer: did, expected: expected{revoked: true}},
		{name: "not revoked", path: "/agent", nonce: 12, issuer: did, expected: expected{revoked: false}},
		{name: "unexpected answer", path: "/agent/wrong-type", nonce: 11, issuer: did, expected: expected{err: true}},
		{name: "no issuer", path: "/agent", nonce: 11, expected: expected{err: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			revoked, err := rsr.IsRevoked(ctx, tc.issuer, verifiable.CredentialStatus{
				ID:              srv.URL + tc.path,
				Type:            verifiable.Iden3commRevocationStatusV1,
				RevocationNonce: tc.nonce,
			})
			if tc.expected.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.revoked, revoked)
		})
	}
}

func TestNewOnchainRevStatusFromURI(t *testing.T) {
	type testConfig struct {
		name    string
		id      string
		chainID int64
		nonce   *uint64
		err     bool
	}
	nonce := uint64(12)
	for _, tc := range []testConfig{
		{
			name:    "full",
			id:      "did:polygonid:polygon:mumbai:2qCU58EJgrEL/credentialStatus?revocationNonce=12&contractAddress=80001:0x49b84b9Dd137de488924b18299De8bf46fD11469",
			chainID: 80001,
			nonce:   &nonce,
		},
		{
			name:    "no nonce",
			id:      "did:polygonid:polygon:mumbai:2qCU58EJgrEL/credentialStatus?contractAddress=80002:0x49b84b9Dd137de488924b18299De8bf46fD11469",
			chainID: 80002,
		},
		{name: "no contract", id: "did:polygonid:polygon:mumbai:2qCU58EJgrEL/credentialStatus?revocationNonce=12", err: true},
		{name: "no chain", id: "did:x/credentialStatus?contractAddress=0x49b84b9Dd137de488924b18299De8bf46fD11469", err: true},
		{name: "bad address", id: "did:x/credentialStatus?contractAddress=80001:0xzz", err: true},
		{name: "bad nonce", id: "did:x/credentialStatus?revocationNonce=x&contractAddress=80001:0x49b84b9Dd137de488924b18299De8bf46fD11469", err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := newOnchainRevStatusFromURI(tc.id)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.chainID, s.chainID)
			assert.Equal(t, tc.nonce, s.revNonce)
			assert.Nil(t, s.state)
		})
	}
}
