package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/iden3/go-circuits/v2"
	"github.com/iden3/iden3comm/v2/protocol"
	"github.com/mitchellh/mapstructure"
)

// AllowAllIssuers is the wildcard accepted in the allowedIssuers list of a query.
const AllowAllIssuers = "*"

var (
	// ErrEmptyCredentialSubject is returned when a query has no credentialSubject predicate
	ErrEmptyCredentialSubject = errors.New("query has no credentialSubject predicate")
	// ErrMultiplePredicates is returned when a query carries more than one field or operator
	ErrMultiplePredicates = errors.New("only one field and one operator per query are supported")
	// ErrUnknownOperator is returned when the query operator is not supported by the circuits
	ErrUnknownOperator = errors.New("query operator is not supported")
	// ErrNotInteger is returned when a predicate value has a fractional part or does not fit an int64
	ErrNotInteger = errors.New("query value is not an integer")
)

// ProofQuery is the typed form of the query section of a protocol.ZeroKnowledgeProofRequest.
type ProofQuery struct {
	AllowedIssuers    []string                          `mapstructure:"allowedIssuers" json:"allowedIssuers" yaml:"allowedIssuers"`
	Context           string                            `mapstructure:"context" json:"context" yaml:"context"`
	Type              string                            `mapstructure:"type" json:"type" yaml:"type"`
	CredentialSubject map[string]map[string]interface{} `mapstructure:"credentialSubject" json:"credentialSubject,omitempty" yaml:"credentialSubject"`
}

// Predicate is the single field comparison a query asks the holder to prove.
type Predicate struct {
	Field    string
	Operator int
	Value    interface{}
}

// ParseProofQuery decodes the loosely typed query map of a proof request.
func ParseProofQuery(query map[string]interface{}) (*ProofQuery, error) {
	var q ProofQuery
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &q,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(query); err != nil {
		return nil, fmt.Errorf("decoding proof query: %w", err)
	}
	return &q, nil
}

// Map returns the query in the shape used by protocol.ZeroKnowledgeProofRequest.
func (q ProofQuery) Map() map[string]interface{} {
	subject := make(map[string]interface{}, len(q.CredentialSubject))
	for field, ops := range q.CredentialSubject {
		m := make(map[string]interface{}, len(ops))
		for op, v := range ops {
			m[op] = v
		}
		subject[field] = m
	}
	issuers := make([]interface{}, len(q.AllowedIssuers))
	for i := range q.AllowedIssuers {
		issuers[i] = q.AllowedIssuers[i]
	}
	return map[string]interface{}{
		"allowedIssuers":    issuers,
		"context":           q.Context,
		"type":              q.Type,
		"credentialSubject": subject,
	}
}

// IssuerAllowed tells whether the issuer string is accepted by the query.
func (q ProofQuery) IssuerAllowed(issuer string) bool {
	for _, i := range q.AllowedIssuers {
		if i == AllowAllIssuers || i == issuer {
			return true
		}
	}
	return false
}

// Predicate returns the only field predicate of the query.
func (q ProofQuery) Predicate() (*Predicate, error) {
	if len(q.CredentialSubject) == 0 {
		return nil, ErrEmptyCredentialSubject
	}
	if len(q.CredentialSubject) > 1 {
		return nil, ErrMultiplePredicates
	}
	for field, ops := range q.CredentialSubject {
		if len(ops) != 1 {
			return nil, ErrMultiplePredicates
		}
		for op, v := range ops {
			operator, ok := circuits.QueryOperators[op]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
			}
			return &Predicate{Field: field, Operator: operator, Value: v}, nil
		}
	}
	return nil, ErrEmptyCredentialSubject
}

// IntValue returns the predicate value as an integer. Numbers encoded as strings are accepted.
func (p Predicate) IntValue() (int64, error) {
	switch v := p.Value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v for field %s", ErrNotInteger, v, p.Field)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported value type %T for field %s", p.Value, p.Field)
	}
}

// RequestQuery extracts and decodes the query of a proof request.
func RequestQuery(req protocol.ZeroKnowledgeProofRequest) (*ProofQuery, error) {
	if req.Query == nil {
		return nil, errors.New("proof request has no query")
	}
	return ParseProofQuery(req.Query)
}
