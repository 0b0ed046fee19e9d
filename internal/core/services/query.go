package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/iden3/go-circuits/v2"
	core "github.com/iden3/go-iden3-core/v2"
	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/iden3/go-schema-processor/v2/merklize"
	"github.com/iden3/go-schema-processor/v2/utils"
	"github.com/iden3/iden3comm/v2/protocol"
	"github.com/piprate/json-gold/ld"

	"github.com/polygonid/verifier-node/internal/core/domain"
	"github.com/polygonid/verifier-node/internal/log"
)

const (
	credentialSubjectPath = "https://www.w3.org/2018/credentials#credentialSubject"
	valueHashBatchSize    = 6
	valueArraySize        = 64
)

// StaticQuery is a precomputed schema and claim path. It only applies to requests asking for Operator
// on Field of credentials of type Type.
type StaticQuery struct {
	Type         string
	Field        string
	Operator     int
	SchemaHash   core.SchemaHash
	ClaimPathKey *big.Int
}

func (s StaticQuery) matches(credentialType string, p *domain.Predicate) bool {
	return s.ClaimPathKey != nil && s.Type == credentialType && s.Field == p.Field && s.Operator == p.Operator
}

// ResolvedQuery is the circuit level form of a proof request query
type ResolvedQuery struct {
	CircuitID      circuits.CircuitID
	RequestID      *big.Int
	AllowedIssuers []string
	SchemaHash     core.SchemaHash
	Field          string
	ClaimPathKey   *big.Int
	Operator       int
	// Values is padded with zeros to valueArraySize entries
	Values []*big.Int
	// RawValue is the predicate value as written in the request
	RawValue int64
}

// QueryHash is the hash the on-chain query circuits expose:
// poseidon(schema, slotIndex=0, operator, claimPathKey, claimPathNotExists=0, sponge(values))
func (q *ResolvedQuery) QueryHash() (*big.Int, error) {
	valueHash, err := poseidon.SpongeHashX(q.Values, valueHashBatchSize)
	if err != nil {
		return nil, err
	}
	return poseidon.Hash([]*big.Int{
		q.SchemaHash.BigInt(),
		big.NewInt(0),
		big.NewInt(int64(q.Operator)),
		q.ClaimPathKey,
		big.NewInt(0),
		valueHash,
	})
}

// QueryResolver turns proof request queries into circuit queries.
// Requests matching the static query take its schema hash and claim path key, the others are resolved
// from their JSON-LD context through the document loader.
type QueryResolver struct {
	loader ld.DocumentLoader
	static StaticQuery
}

// NewQueryResolver returns a QueryResolver. loader may be nil.
func NewQueryResolver(loader ld.DocumentLoader, static StaticQuery) *QueryResolver {
	return &QueryResolver{loader: loader, static: static}
}

// Resolve derives the circuit query of req
func (r *QueryResolver) Resolve(ctx context.Context, req protocol.ZeroKnowledgeProofRequest) (*ResolvedQuery, error) {
	query, err := domain.RequestQuery(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	predicate, err := query.Predicate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	value, err := predicate.IntValue()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	rq := &ResolvedQuery{
		CircuitID:      circuits.CircuitID(req.CircuitID),
		RequestID:      new(big.Int).SetUint64(uint64(req.ID)),
		AllowedIssuers: query.AllowedIssuers,
		Field:          predicate.Field,
		Operator:       predicate.Operator,
		RawValue:       value,
	}

	var valueHash *big.Int
	switch {
	case r.static.matches(query.Type, predicate):
		rq.SchemaHash = r.static.SchemaHash
		rq.ClaimPathKey = r.static.ClaimPathKey
		valueHash = big.NewInt(value)
	case r.loader == nil:
		return nil, fmt.Errorf("%w: no schema for %s.%s", ErrMalformedRequest, query.Type, predicate.Field)
	default:
		valueHash, err = r.fromContext(ctx, query, rq, value)
		if err != nil {
			return nil, err
		}
	}

	rq.Values, err = circuits.PrepareCircuitArrayValues([]*big.Int{valueHash}, valueArraySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return rq, nil
}

func (r *QueryResolver) fromContext(ctx context.Context, query *domain.ProofQuery, rq *ResolvedQuery, value int64) (*big.Int, error) {
	doc, err := r.loader.LoadDocument(query.Context)
	if err != nil {
		log.Error(ctx, "cannot load query context", "context", query.Context, "err", err)
		return nil, fmt.Errorf("%w: loading context %s: %v", ErrNetwork, query.Context, err)
	}
	ctxBytes, err := json.Marshal(doc.Document)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	opts := merklize.Options{DocumentLoader: r.loader}
	schemaID, err := opts.TypeIDFromContext(ctxBytes, query.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: type %s: %v", ErrMalformedRequest, query.Type, err)
	}
	rq.SchemaHash = utils.CreateSchemaHash([]byte(schemaID))

	path, err := opts.FieldPathFromContext(ctxBytes, query.Type, rq.Field)
	if err != nil {
		return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedRequest, rq.Field, err)
	}
	if err := path.Prepend(credentialSubjectPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	rq.ClaimPathKey, err = path.MtEntry()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	datatype, err := opts.TypeFromContext(ctxBytes, fmt.Sprintf("%s.%s", query.Type, rq.Field))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	valueHash, err := merklize.HashValue(datatype, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return valueHash, nil
}
