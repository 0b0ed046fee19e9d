package services

import "errors"

var (
	// ErrMalformedRequest the proof request is missing data or carries an unsupported query
	ErrMalformedRequest = errors.New("malformed proof request")
	// ErrMalformedProof the proof response can not be parsed
	ErrMalformedProof = errors.New("malformed proof")
	// ErrInvalidProof the groth16 verification failed
	ErrInvalidProof = errors.New("invalid proof")
	// ErrQueryMismatch the public signals do not prove the requested query
	ErrQueryMismatch = errors.New("proof does not match the request")
	// ErrNetwork a contract call or transaction failed
	ErrNetwork = errors.New("network error")
	// ErrNotInitialized the storage bundle is used before being initialized
	ErrNotInitialized = errors.New("storage is not initialized")
	// ErrUnsupportedCircuit the circuit has no verifier in this node
	ErrUnsupportedCircuit = errors.New("unsupported circuit")
)
