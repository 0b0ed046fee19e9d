package services

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/contracts-abi/state/go/abi"
	"github.com/iden3/go-circuits/v2"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-core/v2/w3c"
	"github.com/iden3/go-merkletree-sql/v2"
	"github.com/iden3/go-rapidsnark/types"
	"github.com/iden3/iden3comm/v2/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/kms"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth/ethtest"
)

const birthdayLimit = 20020101

type proofServiceMock struct {
	pub circuits.PubSignalsUnmarshaller
	err error
}

func (m *proofServiceMock) VerifyProof(_ context.Context, _ *types.ZKProof, _ circuits.CircuitID) (circuits.PubSignalsUnmarshaller, error) {
	return m.pub, m.err
}

func (m *proofServiceMock) GenerateProof(_ context.Context, _ json.RawMessage, _ circuits.CircuitID) (*types.ZKProof, error) {
	return nil, errors.New("not implemented")
}

type stateServiceMock struct {
	stateErr error
	gistErr  error
}

func (m *stateServiceMock) GetLatestStateByDID(_ context.Context, _ *w3c.DID) (abi.IStateStateInfo, error) {
	return abi.IStateStateInfo{}, nil
}

func (m *stateServiceMock) GetGistRootInfo(_ context.Context, _ *big.Int) (abi.IStateGistRootInfo, error) {
	return abi.IStateGistRootInfo{}, nil
}

func (m *stateServiceMock) ResolveState(_ context.Context, _ core.ID, state *big.Int) (*eth.ResolvedState, error) {
	if m.stateErr != nil {
		return nil, m.stateErr
	}
	return &eth.ResolvedState{Latest: true, State: state.String()}, nil
}

func (m *stateServiceMock) ResolveGlobalRoot(_ context.Context, root *big.Int) (*eth.ResolvedState, error) {
	if m.gistErr != nil {
		return nil, m.gistErr
	}
	return &eth.ResolvedState{Latest: true, State: root.String()}, nil
}

func testIssuer(t *testing.T) (*core.ID, *w3c.DID) {
	t.Helper()
	typ, err := core.BuildDIDType(core.DIDMethodPolygonID, core.Polygon, core.Mumbai)
	require.NoError(t, err)
	id, err := core.NewIDFromIdenState(typ, big.NewInt(11))
	require.NoError(t, err)
	did, err := core.ParseDIDFromID(*id)
	require.NoError(t, err)
	return id, did
}

func testHash(t *testing.T, v int64) *merkletree.Hash {
	t.Helper()
	h, err := merkletree.NewHashFromBigInt(big.NewInt(v))
	require.NoError(t, err)
	return h
}

func resolve(t *testing.T, req protocol.ZeroKnowledgeProofRequest) *ResolvedQuery {
	t.Helper()
	q, err := NewQueryResolver(nil, staticQuery()).Resolve(context.Background(), req)
	require.NoError(t, err)
	return q
}

func sigV2Signals(t *testing.T, q *ResolvedQuery) *circuits.AtomicQuerySigV2PubSignals {
	t.Helper()
	issuer, _ := testIssuer(t)
	values := make([]*big.Int, len(q.Values))
	for i := range q.Values {
		values[i] = new(big.Int).Set(q.Values[i])
	}
	return &circuits.AtomicQuerySigV2PubSignals{
		RequestID:              new(big.Int).Set(q.RequestID),
		IssuerID:               issuer,
		IssuerAuthState:        testHash(t, 5),
		IssuerClaimNonRevState: testHash(t, 6),
		ClaimSchema:            q.SchemaHash,
		Operator:               q.Operator,
		ClaimPathKey:           new(big.Int).Set(q.ClaimPathKey),
		Merklized:              1,
		Value:                  values,
	}
}

func onChainSignals(t *testing.T, q *ResolvedQuery) *circuits.AtomicQuerySigV2OnChainPubSignals {
	t.Helper()
	issuer, _ := testIssuer(t)
	hash, err := q.QueryHash()
	require.NoError(t, err)
	return &circuits.AtomicQuerySigV2OnChainPubSignals{
		RequestID:       new(big.Int).Set(q.RequestID),
		IssuerID:        issuer,
		IssuerAuthState: testHash(t, 5),
		QueryHash:       hash,
		GlobalRoot:      testHash(t, 7),
	}
}

func testProof() types.ZKProof {
	return types.ZKProof{
		Proof: &types.ProofData{
			A:        []string{"1", "2", "1"},
			B:        [][]string{{"3", "4"}, {"5", "6"}, {"1", "0"}},
			C:        []string{"7", "8", "1"},
			Protocol: "groth16",
		},
		PubSignals: []string{"9", "10"},
	}
}

func responseFor(req protocol.ZeroKnowledgeProofRequest) protocol.ZeroKnowledgeProofResponse {
	return protocol.ZeroKnowledgeProofResponse{ID: req.ID, CircuitID: req.CircuitID, ZKProof: testProof()}
}

func TestOffChainVerifier_Check(t *testing.T) {
	ctx := context.Background()
	_, issuerDID := testIssuer(t)
	sigReq := ageRequest(1, circuits.AtomicQuerySigV2CircuitID, kycContextURL, birthdayLimit)
	onChainReq := ageRequest(1, circuits.AtomicQuerySigV2OnChainCircuitID, kycContextURL, birthdayLimit)
	otherIssuerReq := ageRequest(1, circuits.AtomicQuerySigV2CircuitID, kycContextURL, birthdayLimit)
	otherIssuerReq.Query["allowedIssuers"] = []interface{}{"did:polygonid:polygon:mumbai:2qFpPHotk6oyaX1fcrpQFT4BMnmg8YszUwxYtaoGoe"}
	issuerReq := ageRequest(1, circuits.AtomicQuerySigV2CircuitID, kycContextURL, birthdayLimit)
	issuerReq.Query["allowedIssuers"] = []interface{}{issuerDID.String()}

	type testConfig struct {
		name     string
		req      protocol.ZeroKnowledgeProofRequest
		resp     protocol.ZeroKnowledgeProofResponse
		pub      func() circuits.PubSignalsUnmarshaller
		proofErr error
		states   *stateServiceMock
		expected error
	}
	for _, tc := range []testConfig{
		{
			name: "sig v2 bound to the query",
			req:  sigReq,
			pub:  func() circuits.PubSignalsUnmarshaller { return sigV2Signals(t, resolve(t, sigReq)) },
		},
		{
			name: "issuer in allowed list",
			req:  issuerReq,
			pub:  func() circuits.PubSignalsUnmarshaller { return sigV2Signals(t, resolve(t, issuerReq)) },
		},
		{
			name:     "issuer not allowed",
			req:      otherIssuerReq,
			pub:      func() circuits.PubSignalsUnmarshaller { return sigV2Signals(t, resolve(t, otherIssuerReq)) },
			expected: ErrQueryMismatch,
		},
		{
			name: "wrong schema",
			req:  sigReq,
			pub: func() circuits.PubSignalsUnmarshaller {
				s := sigV2Signals(t, resolve(t, sigReq))
				s.ClaimSchema = core.NewSchemaHashFromInt(big.NewInt(1))
				return s
			},
			expected: ErrQueryMismatch,
		},
		{
			name: "wrong operator",
			req:  sigReq,
			pub: func() circuits.PubSignalsUnmarshaller {
				s := sigV2Signals(t, resolve(t, sigReq))
				s.Operator = circuits.GT
				return s
			},
			expected: ErrQueryMismatch,
		},
		{
			name: "wrong value",
			req:  sigReq,
			pub: func() circuits.PubSignalsUnmarshaller {
				s := sigV2Signals(t, resolve(t, sigReq))
				s.Value[0] = big.NewInt(20300101)
				return s
			},
			expected: ErrQueryMismatch,
		},
		{
			name: "wrong claim path key",
			req:  sigReq,
			pub: func() circuits.PubSignalsUnmarshaller {
				s := sigV2Signals(t, resolve(t, sigReq))
				s.ClaimPathKey = big.NewInt(1)
				return s
			},
			expected: ErrQueryMismatch,
		},
		{
			name: "wrong request id in signals",
			req:  sigReq,
			pub: func() circuits.PubSignalsUnmarshaller {
				s := sigV2Signals(t, resolve(t, sigReq))
				s.RequestID = big.NewInt(2)
				return s
			},
			expected: ErrQueryMismatch,
		},
		{
			name:     "response for another circuit",
			req:      sigReq,
			resp:     responseFor(onChainReq),
			pub:      func() circuits.PubSignalsUnmarshaller { return sigV2Signals(t, resolve(t, sigReq)) },
			expected: ErrQueryMismatch,
		},
		{
			name:     "invalid groth16 proof",
			req:      sigReq,
			pub:      func() circuits.PubSignalsUnmarshaller { return nil },
			proofErr: ErrInvalidProof,
			expected: ErrInvalidProof,
		},
		{
			name:     "not a query circuit",
			req:      sigReq,
			pub:      func() circuits.PubSignalsUnmarshaller { return &circuits.AuthV2PubSignals{} },
			expected: ErrUnsupportedCircuit,
		},
		{
			name: "on-chain query hash",
			req:  onChainReq,
			pub:  func() circuits.PubSignalsUnmarshaller { return onChainSignals(t, resolve(t, onChainReq)) },
		},
		{
			name: "on-chain query hash mismatch",
			req:  onChainReq,
			pub: func() circuits.PubSignalsUnmarshaller {
				s := onChainSignals(t, resolve(t, onChainReq))
				s.QueryHash = big.NewInt(1)
				return s
			},
			expected: ErrQueryMismatch,
		},
		{
			name:   "published states",
			req:    onChainReq,
			pub:    func() circuits.PubSignalsUnmarshaller { return onChainSignals(t, resolve(t, onChainReq)) },
			states: &stateServiceMock{},
		},
		{
			name:     "issuer state not published",
			req:      onChainReq,
			pub:      func() circuits.PubSignalsUnmarshaller { return onChainSignals(t, resolve(t, onChainReq)) },
			states:   &stateServiceMock{stateErr: eth.ErrStateNotRegistered},
			expected: ErrInvalidProof,
		},
		{
			name:     "gist root not published",
			req:      onChainReq,
			pub:      func() circuits.PubSignalsUnmarshaller { return onChainSignals(t, resolve(t, onChainReq)) },
			states:   &stateServiceMock{gistErr: eth.ErrGistNotRegistered},
			expected: ErrInvalidProof,
		},
		{
			name:     "state contract unreachable",
			req:      sigReq,
			pub:      func() circuits.PubSignalsUnmarshaller { return sigV2Signals(t, resolve(t, sigReq)) },
			states:   &stateServiceMock{stateErr: errors.New("connection refused")},
			expected: ErrNetwork,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := tc.resp
			if resp.CircuitID == "" {
				resp = responseFor(tc.req)
			}
			var states ports.StateService
			if tc.states != nil {
				states = tc.states
			}
			v := NewOffChainVerifier(&proofServiceMock{pub: tc.pub(), err: tc.proofErr}, NewQueryResolver(nil, staticQuery()), states)

			err := v.Check(ctx, resp, tc.req)
			if tc.expected == nil {
				require.NoError(t, err)
				assert.True(t, v.Verify(ctx, resp, tc.req))
				return
			}
			assert.ErrorIs(t, err, tc.expected)
			assert.False(t, v.Verify(ctx, resp, tc.req))
		})
	}
}

type onChainFixture struct {
	backend     *ethtest.Backend
	verifier    *OnChainVerifier
	verifierKey *ecdsa.PrivateKey
	userKey     *ecdsa.PrivateKey
}

func newOnChainFixture(t *testing.T, chainID int64, withUserKey bool) *onChainFixture {
	t.Helper()
	ctx := context.Background()
	keys, err := kms.Open()
	require.NoError(t, err)

	f := &onChainFixture{backend: ethtest.NewBackend(chainID)}
	f.verifierKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	f.userKey, err = crypto.GenerateKey()
	require.NoError(t, err)

	cfg := OnChainConfig{
		ChainID:          80001,
		VerifierContract: common.HexToAddress("0xA59B9E70639B2A4CF51af47f39D14B1E735301Fb"),
		Validator:        common.HexToAddress("0x55E82C15123C637a6Bbe0EFE1515f7087faC0545"),
		RequestID:        1,
	}
	cfg.VerifierKey, err = keys.ImportETHKey(ctx, hex.EncodeToString(crypto.FromECDSA(f.verifierKey)))
	require.NoError(t, err)
	if withUserKey {
		cfg.UserKey, err = keys.ImportETHKey(ctx, "0x"+hex.EncodeToString(crypto.FromECDSA(f.userKey)))
		require.NoError(t, err)
	}

	client := eth.NewClient(f.backend, &eth.ClientConfig{
		ReceiptTimeout:         time.Second,
		ConfirmationTimeout:    time.Second,
		ConfirmationBlockCount: 1,
		DefaultGasLimit:        600000,
		MinGasPrice:            big.NewInt(0),
		MaxGasPrice:            big.NewInt(100000000000),
		RPCResponseTimeout:     time.Second,
		WaitReceiptCycleTime:   time.Millisecond,
		WaitBlockCycleTime:     time.Millisecond,
	})
	req := ageRequest(0, circuits.AtomicQuerySigV2OnChainCircuitID, kycContextURL, birthdayLimit)
	offChain := NewOffChainVerifier(&proofServiceMock{pub: onChainSignals(t, resolve(t, req))}, NewQueryResolver(nil, staticQuery()), nil)
	f.verifier = NewOnChainVerifier(client, keys, offChain, cfg)
	return f
}

func sender(t *testing.T, tx *ethTypes.Transaction) common.Address {
	t.Helper()
	from, err := ethTypes.Sender(ethTypes.LatestSignerForChainID(tx.ChainId()), tx)
	require.NoError(t, err)
	return from
}

func TestOnChainVerifier_Check(t *testing.T) {
	ctx := context.Background()
	parsed, err := eth.ParseERC20VerifierABI()
	require.NoError(t, err)
	req := ageRequest(0, circuits.AtomicQuerySigV2OnChainCircuitID, kycContextURL, birthdayLimit)
	resp := responseFor(req)

	f := newOnChainFixture(t, 80001, true)
	require.NoError(t, f.verifier.Check(ctx, resp, req, nil))

	sent := f.backend.Sent()
	require.Len(t, sent, 2)

	setReq := sent[0]
	assert.Equal(t, crypto.PubkeyToAddress(f.verifierKey.PublicKey), sender(t, setReq))
	method, err := parsed.MethodById(setReq.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "setZKPRequest", method.Name)
	args, err := method.Inputs.Unpack(setReq.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), args[0])
	assert.Equal(t, common.HexToAddress("0x55E82C15123C637a6Bbe0EFE1515f7087faC0545"), args[1])
	assert.Equal(t, staticQuery().SchemaHash.BigInt(), args[2])
	assert.Equal(t, staticQuery().ClaimPathKey, args[3])
	assert.Equal(t, big.NewInt(int64(circuits.LT)), args[4])
	values, ok := args[5].([]*big.Int)
	require.True(t, ok)
	require.Len(t, values, 64)
	assert.Equal(t, big.NewInt(birthdayLimit), values[0])

	submit := sent[1]
	assert.Equal(t, crypto.PubkeyToAddress(f.userKey.PublicKey), sender(t, submit))
	method, err = parsed.MethodById(submit.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "submitZKPResponse", method.Name)
	args, err = method.Inputs.Unpack(submit.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), args[0])
	assert.Equal(t, []*big.Int{big.NewInt(9), big.NewInt(10)}, args[1])
	assert.Equal(t, [2][2]*big.Int{{big.NewInt(4), big.NewInt(3)}, {big.NewInt(6), big.NewInt(5)}}, args[3])
}

func TestOnChainVerifier_CheckSigner(t *testing.T) {
	ctx := context.Background()
	req := ageRequest(0, circuits.AtomicQuerySigV2OnChainCircuitID, kycContextURL, birthdayLimit)
	signer, err := crypto.GenerateKey()
	require.NoError(t, err)

	f := newOnChainFixture(t, 80001, false)
	assert.True(t, f.verifier.Verify(ctx, responseFor(req), req, signer))
	sent := f.backend.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, crypto.PubkeyToAddress(signer.PublicKey), sender(t, sent[1]))
}

func TestOnChainVerifier_CheckFailures(t *testing.T) {
	ctx := context.Background()
	ageReq := ageRequest(0, circuits.AtomicQuerySigV2OnChainCircuitID, kycContextURL, birthdayLimit)
	docReq := ageRequest(0, circuits.AtomicQuerySigV2OnChainCircuitID, kycContextURL, birthdayLimit)
	docReq.Query["credentialSubject"] = map[string]interface{}{"documentType": map[string]interface{}{"$eq": 99}}
	badProof := responseFor(ageReq)
	badProof.Proof = &types.ProofData{A: []string{"1"}}

	type testConfig struct {
		name        string
		chainID     int64
		withUserKey bool
		req         protocol.ZeroKnowledgeProofRequest
		resp        protocol.ZeroKnowledgeProofResponse
		revert      bool
		sendErr     error
		expected    error
		expectedTxs int
	}
	for _, tc := range []testConfig{
		{name: "other chain is skipped", chainID: 137, withUserKey: true, req: ageReq, resp: responseFor(ageReq)},
		{name: "missing birthday", chainID: 80001, withUserKey: true, req: docReq, resp: responseFor(docReq), expected: ErrMalformedRequest},
		{name: "no signer", chainID: 80001, req: ageReq, resp: responseFor(ageReq), expected: ErrMalformedRequest},
		{name: "malformed proof", chainID: 80001, withUserKey: true, req: ageReq, resp: badProof, expected: ErrMalformedProof},
		{name: "reverted request", chainID: 80001, withUserKey: true, req: ageReq, resp: responseFor(ageReq), revert: true, expected: ErrNetwork, expectedTxs: 1},
		{name: "node rejects transaction", chainID: 80001, withUserKey: true, req: ageReq, resp: responseFor(ageReq), sendErr: errors.New("nonce too low"), expected: ErrNetwork},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newOnChainFixture(t, tc.chainID, tc.withUserKey)
			if tc.revert {
				f.backend.Revert = func(*ethTypes.Transaction) bool { return true }
			}
			f.backend.SendErr = tc.sendErr

			err := f.verifier.Check(ctx, tc.resp, tc.req, nil)
			if tc.expected == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.expected)
			}
			assert.Len(t, f.backend.Sent(), tc.expectedTxs)
		})
	}
}

func signedSubmission(t *testing.T, key *ecdsa.PrivateKey, chainID int64, to common.Address, requestID uint64, zkp types.ZKProof) *ethTypes.Transaction {
	t.Helper()
	parsed, err := eth.ParseERC20VerifierABI()
	require.NoError(t, err)
	proof, err := domain.NewSolidityProof(&zkp)
	require.NoError(t, err)
	data, err := parsed.Pack("submitZKPResponse", requestID, proof.Inputs, proof.A, proof.B, proof.C)
	require.NoError(t, err)
	tx, err := ethTypes.SignTx(ethTypes.NewTx(&ethTypes.LegacyTx{
		Nonce:    7,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      600000,
		To:       &to,
		Data:     data,
	}), ethTypes.LatestSignerForChainID(big.NewInt(chainID)), key)
	require.NoError(t, err)
	return tx
}

func TestOnChainVerifier_CheckSubmission(t *testing.T) {
	ctx := context.Background()
	req := ageRequest(0, circuits.AtomicQuerySigV2OnChainCircuitID, kycContextURL, birthdayLimit)
	resp := responseFor(req)
	contract := common.HexToAddress("0xA59B9E70639B2A4CF51af47f39D14B1E735301Fb")
	wallet, err := crypto.GenerateKey()
	require.NoError(t, err)

	otherProof := testProof()
	otherProof.PubSignals = []string{"9", "11"}
	parsed, err := eth.ParseERC20VerifierABI()
	require.NoError(t, err)
	setData, err := parsed.Pack("setZKPRequest", uint64(1), contract, big.NewInt(1), big.NewInt(1), big.NewInt(1), []*big.Int{big.NewInt(1)})
	require.NoError(t, err)
	notASubmission, err := ethTypes.SignTx(ethTypes.NewTx(&ethTypes.LegacyTx{To: &contract, Gas: 1, GasPrice: big.NewInt(1), Data: setData}),
		ethTypes.LatestSignerForChainID(big.NewInt(80001)), wallet)
	require.NoError(t, err)

	type testConfig struct {
		name        string
		submission  *ethTypes.Transaction
		expected    error
		expectedTxs int
	}
	for _, tc := range []testConfig{
		{name: "wallet submission is broadcast", submission: signedSubmission(t, wallet, 80001, contract, 1, testProof()), expectedTxs: 2},
		{name: "no submission", expected: ErrMalformedRequest},
		{name: "another contract", submission: signedSubmission(t, wallet, 80001, common.HexToAddress("0x01"), 1, testProof()), expected: ErrMalformedRequest},
		{name: "another chain", submission: signedSubmission(t, wallet, 137, contract, 1, testProof()), expected: ErrMalformedRequest},
		{name: "another request", submission: signedSubmission(t, wallet, 80001, contract, 2, testProof()), expected: ErrQueryMismatch},
		{name: "another proof", submission: signedSubmission(t, wallet, 80001, contract, 1, otherProof), expected: ErrQueryMismatch},
		{name: "not a submitZKPResponse call", submission: notASubmission, expected: ErrMalformedRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newOnChainFixture(t, 80001, true)
			err := f.verifier.CheckSubmission(ctx, resp, req, tc.submission)
			sent := f.backend.Sent()
			require.Len(t, sent, tc.expectedTxs)
			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, crypto.PubkeyToAddress(f.verifierKey.PublicKey), sender(t, sent[0]))
			assert.Equal(t, tc.submission.Hash(), sent[1].Hash())
			assert.Equal(t, crypto.PubkeyToAddress(wallet.PublicKey), sender(t, sent[1]))
		})
	}
}
