package services

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethCommon "github.com/ethereum/go-ethereum/common"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/iden3/go-circuits/v2"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-merkletree-sql/v2"
	"github.com/iden3/iden3comm/v2/protocol"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/core/ports"
	"github.com/polygonid/verifier-node/internal/kms"
	"github.com/polygonid/verifier-node/internal/log"
	"github.com/polygonid/verifier-node/pkg/blockchain/eth"
)

const (
	birthdayField = "birthday"
	ltOperator    = "$lt"
)

// OffChainVerifier checks proof responses locally: groth16 verification and the binding between
// the public signals and the query of the request.
type OffChainVerifier struct {
	proofs  ports.ProofService
	queries *QueryResolver
	states  ports.StateService
}

// NewOffChainVerifier returns an OffChainVerifier. When states is not nil the issuer states and the
// gist root of the proof are checked against the state contract.
func NewOffChainVerifier(proofs ports.ProofService, queries *QueryResolver, states ports.StateService) *OffChainVerifier {
	return &OffChainVerifier{proofs: proofs, queries: queries, states: states}
}

// Verify tells whether resp is a valid proof of req. The cause of a rejection is logged.
func (v *OffChainVerifier) Verify(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest) bool {
	if err := v.Check(ctx, resp, req); err != nil {
		log.Warn(ctx, "off-chain verification failed", "requestID", req.ID, "circuit", req.CircuitID, "err", err)
		return false
	}
	return true
}

// Check verifies resp against req and returns the reason of a rejection
func (v *OffChainVerifier) Check(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest) error {
	if resp.CircuitID != req.CircuitID {
		return fmt.Errorf("%w: circuit %s, requested %s", ErrQueryMismatch, resp.CircuitID, req.CircuitID)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%w: response id %d, request id %d", ErrQueryMismatch, resp.ID, req.ID)
	}

	zkp := resp.ZKProof
	pub, err := v.proofs.VerifyProof(ctx, &zkp, circuits.CircuitID(resp.CircuitID))
	if err != nil {
		return err
	}

	query, err := v.queries.Resolve(ctx, req)
	if err != nil {
		return err
	}

	signals, err := newQuerySignals(pub)
	if err != nil {
		return err
	}
	if err := signals.bind(query); err != nil {
		return err
	}
	if v.states != nil {
		return v.checkStates(ctx, signals)
	}
	return nil
}

func (v *OffChainVerifier) checkStates(ctx context.Context, s *querySignals) error {
	if _, err := v.states.ResolveState(ctx, *s.issuerID, s.issuerState.BigInt()); err != nil {
		return stateError(ctx, "issuer state", err)
	}
	if s.gistRoot != nil {
		if _, err := v.states.ResolveGlobalRoot(ctx, s.gistRoot.BigInt()); err != nil {
			return stateError(ctx, "gist root", err)
		}
	}
	return nil
}

func stateError(ctx context.Context, what string, err error) error {
	if errors.Is(err, eth.ErrStateNotRegistered) || errors.Is(err, eth.ErrGistNotRegistered) {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProof, what, err)
	}
	log.Error(ctx, "cannot resolve state", "what", what, "err", err)
	return fmt.Errorf("%w: %s: %v", ErrNetwork, what, err)
}

// querySignals are the public signals of the query circuits the verifier binds to a request
type querySignals struct {
	circuitID    circuits.CircuitID
	requestID    *big.Int
	issuerID     *core.ID
	issuerState  *merkletree.Hash
	schema       core.SchemaHash
	operator     int
	claimPathKey *big.Int
	merklized    int
	values       []*big.Int
	queryHash    *big.Int
	gistRoot     *merkletree.Hash
}

func newQuerySignals(pub circuits.PubSignalsUnmarshaller) (*querySignals, error) {
	var s querySignals
	switch p := pub.(type) {
	case *circuits.AtomicQuerySigV2PubSignals:
		s = querySignals{
			circuitID:    circuits.AtomicQuerySigV2CircuitID,
			requestID:    p.RequestID,
			issuerID:     p.IssuerID,
			issuerState:  p.IssuerAuthState,
			schema:       p.ClaimSchema,
			operator:     p.Operator,
			claimPathKey: p.ClaimPathKey,
			merklized:    p.Merklized,
			values:       p.Value,
		}
	case *circuits.AtomicQueryMTPV2PubSignals:
		s = querySignals{
			circuitID:    circuits.AtomicQueryMTPV2CircuitID,
			requestID:    p.RequestID,
			issuerID:     p.IssuerID,
			issuerState:  p.IssuerClaimIdenState,
			schema:       p.ClaimSchema,
			operator:     p.Operator,
			claimPathKey: p.ClaimPathKey,
			merklized:    p.Merklized,
			values:       p.Value,
		}
	case *circuits.AtomicQuerySigV2OnChainPubSignals:
		s = querySignals{
			circuitID:   circuits.AtomicQuerySigV2OnChainCircuitID,
			requestID:   p.RequestID,
			issuerID:    p.IssuerID,
			issuerState: p.IssuerAuthState,
			queryHash:   p.QueryHash,
			gistRoot:    p.GlobalRoot,
		}
	default:
		return nil, fmt.Errorf("%w: %T is not a query circuit output", ErrUnsupportedCircuit, pub)
	}
	if s.requestID == nil || s.issuerID == nil || s.issuerState == nil {
		return nil, fmt.Errorf("%w: incomplete public signals", ErrMalformedProof)
	}
	return &s, nil
}

// bind checks that the signals prove q
func (s *querySignals) bind(q *ResolvedQuery) error {
	if s.requestID.Cmp(q.RequestID) != 0 {
		return fmt.Errorf("%w: request id %s, expected %s", ErrQueryMismatch, s.requestID, q.RequestID)
	}
	if err := s.issuerAllowed(q.AllowedIssuers); err != nil {
		return err
	}

	if s.circuitID == circuits.AtomicQuerySigV2OnChainCircuitID {
		expected, err := q.QueryHash()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		if s.queryHash == nil || s.queryHash.Cmp(expected) != 0 {
			return fmt.Errorf("%w: circuit query hash", ErrQueryMismatch)
		}
		return nil
	}

	if s.schema.BigInt().Cmp(q.SchemaHash.BigInt()) != 0 {
		return fmt.Errorf("%w: schema %s, expected %s", ErrQueryMismatch, s.schema.BigInt(), q.SchemaHash.BigInt())
	}
	if s.operator != q.Operator {
		return fmt.Errorf("%w: operator %d, expected %d", ErrQueryMismatch, s.operator, q.Operator)
	}
	if s.merklized == 1 && (s.claimPathKey == nil || s.claimPathKey.Cmp(q.ClaimPathKey) != 0) {
		return fmt.Errorf("%w: claim path key", ErrQueryMismatch)
	}
	if len(s.values) != len(q.Values) {
		return fmt.Errorf("%w: %d values, expected %d", ErrQueryMismatch, len(s.values), len(q.Values))
	}
	for i := range s.values {
		if s.values[i] == nil || s.values[i].Cmp(q.Values[i]) != 0 {
			return fmt.Errorf("%w: value at %d", ErrQueryMismatch, i)
		}
	}
	return nil
}

func (s *querySignals) issuerAllowed(allowed []string) error {
	issuer := s.issuerID.String()
	if did, err := core.ParseDIDFromID(*s.issuerID); err == nil {
		issuer = did.String()
	}
	if !(domain.ProofQuery{AllowedIssuers: allowed}).IssuerAllowed(issuer) {
		return fmt.Errorf("%w: issuer %s is not allowed", ErrQueryMismatch, issuer)
	}
	return nil
}

// OnChainConfig holds the contract parameters of the on-chain verification
type OnChainConfig struct {
	ChainID          int64
	VerifierContract ethCommon.Address
	Validator        ethCommon.Address
	// RequestID is used when the proof request carries id 0
	RequestID uint64
	GasLimit  uint64
	// VerifierKey signs setZKPRequest
	VerifierKey kms.KeyID
	// UserKey signs submitZKPResponse when the caller does not provide a signer. It may be empty.
	UserKey kms.KeyID
}

// OnChainVerifier registers the request in the ERC20Verifier contract, submits the proof to it and
// then runs the off-chain check.
type OnChainVerifier struct {
	client   *eth.Client
	keys     *kms.KMS
	offChain *OffChainVerifier
	cfg      OnChainConfig
}

// NewOnChainVerifier returns an OnChainVerifier
func NewOnChainVerifier(client *eth.Client, keys *kms.KMS, offChain *OffChainVerifier, cfg OnChainConfig) *OnChainVerifier {
	return &OnChainVerifier{client: client, keys: keys, offChain: offChain, cfg: cfg}
}

// Verify tells whether resp was accepted on chain and off chain. signer may be nil.
func (v *OnChainVerifier) Verify(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest, signer *ecdsa.PrivateKey) bool {
	if err := v.Check(ctx, resp, req, signer); err != nil {
		log.Warn(ctx, "on-chain verification failed", "requestID", req.ID, "err", err)
		return false
	}
	return true
}

// Check runs the on-chain flow and returns the reason of a rejection. signer signs submitZKPResponse,
// nil falls back to the configured user key.
// A node connected to another chain than the configured one skips the verification.
func (v *OnChainVerifier) Check(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest, signer *ecdsa.PrivateKey) error {
	return v.check(ctx, resp, req, &keySubmitter{verifier: v, signer: signer})
}

// CheckSubmission runs the on-chain flow with a submitZKPResponse transaction the user wallet signed.
// The node only pays for setZKPRequest. The submission must carry the proof of resp to the verifier contract.
func (v *OnChainVerifier) CheckSubmission(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest, submission *ethTypes.Transaction) error {
	return v.check(ctx, resp, req, &walletSubmitter{verifier: v, tx: submission})
}

// submitter sends the submitZKPResponse transaction. ready runs before the node sends setZKPRequest.
type submitter interface {
	ready(ctx context.Context, requestID uint64, proof *domain.SolidityProof) error
	submit(ctx context.Context, requestID uint64, proof *domain.SolidityProof) error
}

type keySubmitter struct {
	verifier *OnChainVerifier
	signer   *ecdsa.PrivateKey
}

func (s *keySubmitter) ready(ctx context.Context, _ uint64, _ *domain.SolidityProof) error {
	if s.signer != nil {
		return nil
	}
	key, err := s.verifier.userKey(ctx)
	if err != nil {
		return err
	}
	s.signer = key
	return nil
}

func (s *keySubmitter) submit(ctx context.Context, requestID uint64, proof *domain.SolidityProof) error {
	log.Info(ctx, "submitting zkp response", "requestID", requestID)
	return s.verifier.transact(ctx, s.signer, func(contract *eth.ERC20Verifier, opts *bind.TransactOpts) (*ethTypes.Transaction, error) {
		return contract.SubmitZKPResponse(opts, requestID, proof.Inputs, proof.A, proof.B, proof.C)
	})
}

type walletSubmitter struct {
	verifier *OnChainVerifier
	tx       *ethTypes.Transaction
}

func (s *walletSubmitter) ready(_ context.Context, requestID uint64, proof *domain.SolidityProof) error {
	if s.tx == nil {
		return fmt.Errorf("%w: the submitZKPResponse transaction is required", ErrMalformedRequest)
	}
	return s.verifier.matchSubmission(s.tx, requestID, proof)
}

func (s *walletSubmitter) submit(ctx context.Context, requestID uint64, _ *domain.SolidityProof) error {
	log.Info(ctx, "broadcasting zkp response", "requestID", requestID, "tx", s.tx.Hash().Hex())
	if err := s.verifier.client.SendTransaction(ctx, s.tx); err != nil {
		log.Error(ctx, "transaction failed", "err", err)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return s.verifier.confirm(ctx, s.tx)
}

func (v *OnChainVerifier) check(ctx context.Context, resp protocol.ZeroKnowledgeProofResponse, req protocol.ZeroKnowledgeProofRequest, sub submitter) error {
	chainID, err := v.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: chain id: %v", ErrNetwork, err)
	}
	if chainID.Cmp(big.NewInt(v.cfg.ChainID)) != 0 {
		log.Info(ctx, "connected to another chain, on-chain verification skipped", "chainID", chainID, "expected", v.cfg.ChainID)
		return nil
	}

	maxBirthDate, err := maxBirthDate(req)
	if err != nil {
		return err
	}
	query, err := v.offChain.queries.Resolve(ctx, req)
	if err != nil {
		return err
	}

	verifierKey, err := v.keys.PrivateKeyECDSA(ctx, v.cfg.VerifierKey)
	if err != nil {
		return fmt.Errorf("%w: verifier key: %v", ErrNotInitialized, err)
	}

	proof, err := domain.NewSolidityProof(&resp.ZKProof)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}

	requestID := uint64(req.ID)
	if requestID == 0 {
		requestID = v.cfg.RequestID
	}
	values, err := circuits.PrepareCircuitArrayValues([]*big.Int{big.NewInt(maxBirthDate)}, valueArraySize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := sub.ready(ctx, requestID, proof); err != nil {
		return err
	}

	log.Info(ctx, "setting zkp request", "requestID", requestID, "contract", v.cfg.VerifierContract)
	if err := v.transact(ctx, verifierKey, func(contract *eth.ERC20Verifier, opts *bind.TransactOpts) (*ethTypes.Transaction, error) {
		return contract.SetZKPRequest(opts, requestID, v.cfg.Validator, query.SchemaHash.BigInt(), query.ClaimPathKey, big.NewInt(int64(query.Operator)), values)
	}); err != nil {
		return err
	}

	if err := sub.submit(ctx, requestID, proof); err != nil {
		return err
	}
	return v.offChain.Check(ctx, resp, req)
}

// matchSubmission checks that tx submits proof for requestID to the verifier contract
func (v *OnChainVerifier) matchSubmission(tx *ethTypes.Transaction, requestID uint64, proof *domain.SolidityProof) error {
	if tx.To() == nil || *tx.To() != v.cfg.VerifierContract {
		return fmt.Errorf("%w: submission is not sent to the verifier contract", ErrMalformedRequest)
	}
	if tx.ChainId() != nil && tx.ChainId().Sign() != 0 && tx.ChainId().Cmp(big.NewInt(v.cfg.ChainID)) != 0 {
		return fmt.Errorf("%w: submission signed for chain %s", ErrMalformedRequest, tx.ChainId())
	}
	call, err := eth.UnpackSubmitZKPResponse(tx.Data())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if call.RequestID != requestID {
		return fmt.Errorf("%w: submission for request %d, expected %d", ErrQueryMismatch, call.RequestID, requestID)
	}
	same := equalInts(call.Inputs, proof.Inputs) &&
		equalInts(call.A[:], proof.A[:]) &&
		equalInts(call.B[0][:], proof.B[0][:]) &&
		equalInts(call.B[1][:], proof.B[1][:]) &&
		equalInts(call.C[:], proof.C[:])
	if !same {
		return fmt.Errorf("%w: submission carries another proof", ErrQueryMismatch)
	}
	return nil
}

func equalInts(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == nil || b[i] == nil || a[i].Cmp(b[i]) != 0 {
			return false
		}
	}
	return true
}

func (v *OnChainVerifier) userKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	if v.cfg.UserKey.ID == "" {
		return nil, fmt.Errorf("%w: no signer for submitZKPResponse", ErrMalformedRequest)
	}
	key, err := v.keys.PrivateKeyECDSA(ctx, v.cfg.UserKey)
	if err != nil {
		return nil, fmt.Errorf("%w: user key: %v", ErrMalformedRequest, err)
	}
	return key, nil
}

// transact sends a contract transaction and waits for its confirmation
func (v *OnChainVerifier) transact(ctx context.Context, key *ecdsa.PrivateKey, fn func(*eth.ERC20Verifier, *bind.TransactOpts) (*ethTypes.Transaction, error)) error {
	tx, err := v.client.CallAuth(ctx, v.cfg.GasLimit, key, func(backend eth.Backend, opts *bind.TransactOpts) (*ethTypes.Transaction, error) {
		contract, err := eth.NewERC20Verifier(v.cfg.VerifierContract, backend)
		if err != nil {
			return nil, err
		}
		return fn(contract, opts)
	})
	if err != nil {
		log.Error(ctx, "transaction failed", "err", err)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return v.confirm(ctx, tx)
}

func (v *OnChainVerifier) confirm(ctx context.Context, tx *ethTypes.Transaction) error {
	if _, err := v.client.WaitForConfirmation(ctx, tx); err != nil {
		log.Error(ctx, "transaction not confirmed", "tx", tx.Hash().Hex(), "err", err)
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return nil
}

func maxBirthDate(req protocol.ZeroKnowledgeProofRequest) (int64, error) {
	query, err := domain.RequestQuery(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	v, ok := query.CredentialSubject[birthdayField][ltOperator]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: credentialSubject.%s.%s is missing", ErrMalformedRequest, birthdayField, ltOperator)
	}
	date, err := domain.Predicate{Field: birthdayField, Value: v}.IntValue()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return date, nil
}
