package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iden3/go-circuits/v2"
	"github.com/iden3/iden3comm/v2/protocol"
	"gopkg.in/yaml.v3"

	"github.com/polygonid/verifier-node/internal/core/domain"
)

const (
	// KYCAgeCredentialType is the credential type the built in requests ask for
	KYCAgeCredentialType = "KYCAgeCredential"
	// KYCAgeCredentialContext is the JSON-LD context of KYCAgeCredential
	KYCAgeCredentialContext = "https://raw.githubusercontent.com/iden3/claim-schema-vocab/main/schemas/json-ld/kyc-v3.json-ld"

	defaultRequestID  = 1
	documentTypeValue = 99
)

// ProofRequests holds the request templates served by the verifier.
type ProofRequests struct {
	// Sig asks for an off-chain signature proof over the document type.
	Sig protocol.ZeroKnowledgeProofRequest
	// Age is the template of the on-chain proof of age request. Its birthday value is replaced
	// on every call to ProofOfAgeRequest.
	Age protocol.ZeroKnowledgeProofRequest
}

type proofRequestFile struct {
	ProofRequests map[string]proofRequestEntry `yaml:"proofRequests"`
}

type proofRequestEntry struct {
	ID        uint32                 `yaml:"id"`
	CircuitID string                 `yaml:"circuitId"`
	Optional  *bool                  `yaml:"optional"`
	Query     map[string]interface{} `yaml:"query"`
}

// DefaultProofRequests returns the built in request templates.
func DefaultProofRequests() *ProofRequests {
	return &ProofRequests{
		Sig: protocol.ZeroKnowledgeProofRequest{
			ID:        defaultRequestID,
			CircuitID: string(circuits.AtomicQuerySigV2CircuitID),
			Query: domain.ProofQuery{
				AllowedIssuers: []string{domain.AllowAllIssuers},
				Context:        KYCAgeCredentialContext,
				Type:           KYCAgeCredentialType,
				CredentialSubject: map[string]map[string]interface{}{
					"documentType": {"$eq": documentTypeValue},
				},
			}.Map(),
		},
		Age: protocol.ZeroKnowledgeProofRequest{
			ID:        defaultRequestID,
			CircuitID: string(circuits.AtomicQuerySigV2OnChainCircuitID),
			Query: domain.ProofQuery{
				AllowedIssuers: []string{domain.AllowAllIssuers},
				Context:        KYCAgeCredentialContext,
				Type:           KYCAgeCredentialType,
				CredentialSubject: map[string]map[string]interface{}{
					"birthday": {"$lt": 0},
				},
			}.Map(),
		},
	}
}

// LoadProofRequests returns the request templates. Entries found in the yaml file override the
// built in ones. An empty path returns the built in templates.
func LoadProofRequests(path string) (*ProofRequests, error) {
	reqs := DefaultProofRequests()
	if path == "" {
		return reqs, nil
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading proof requests file: %w", err)
	}
	var f proofRequestFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parsing proof requests file: %w", err)
	}

	for name, entry := range f.ProofRequests {
		req, err := entry.toRequest()
		if err != nil {
			return nil, fmt.Errorf("proof request %s: %w", name, err)
		}
		switch name {
		case "sig":
			reqs.Sig = req
		case "age":
			reqs.Age = req
		default:
			return nil, fmt.Errorf("unknown proof request %s", name)
		}
	}
	return reqs, nil
}

func (e proofRequestEntry) toRequest() (protocol.ZeroKnowledgeProofRequest, error) {
	if e.CircuitID == "" {
		return protocol.ZeroKnowledgeProofRequest{}, fmt.Errorf("circuitId is required")
	}
	q, err := domain.ParseProofQuery(e.Query)
	if err != nil {
		return protocol.ZeroKnowledgeProofRequest{}, err
	}
	if _, err := q.Predicate(); err != nil {
		return protocol.ZeroKnowledgeProofRequest{}, err
	}
	return protocol.ZeroKnowledgeProofRequest{
		ID:        e.ID,
		CircuitID: e.CircuitID,
		Optional:  e.Optional,
		Query:     q.Map(),
	}, nil
}

// ProofOfAgeRequest returns the on-chain age request asking for a birthday before maxBirthDate.
// maxBirthDate uses the yyyymmdd integer encoding of KYCAgeCredential.
func (p *ProofRequests) ProofOfAgeRequest(maxBirthDate int64) (protocol.ZeroKnowledgeProofRequest, error) {
	q, err := domain.RequestQuery(p.Age)
	if err != nil {
		return protocol.ZeroKnowledgeProofRequest{}, err
	}
	pred, err := q.Predicate()
	if err != nil {
		return protocol.ZeroKnowledgeProofRequest{}, err
	}
	q.CredentialSubject = map[string]map[string]interface{}{
		pred.Field: {"$lt": maxBirthDate},
	}
	return protocol.ZeroKnowledgeProofRequest{
		ID:        p.Age.ID,
		CircuitID: p.Age.CircuitID,
		Optional:  p.Age.Optional,
		Query:     q.Map(),
	}, nil
}
