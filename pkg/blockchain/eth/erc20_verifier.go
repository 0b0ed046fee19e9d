package eth

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ERC20VerifierMetaData contains the subset of the ERC20Verifier ABI the node calls.
var ERC20VerifierMetaData = &bind.MetaData{
	ABI: `[
  {
    "inputs": [
      {"internalType": "uint64", "name": "requestId", "type": "uint64"},
      {"internalType": "contract ICircuitValidator", "name": "validator", "type": "address"},
      {"internalType": "uint256", "name": "schema", "type": "uint256"},
      {"internalType": "uint256", "name": "claimPathKey", "type": "uint256"},
      {"internalType": "uint256", "name": "operator", "type": "uint256"},
      {"internalType": "uint256[]", "name": "value", "type": "uint256[]"}
    ],
    "name": "setZKPRequest",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "uint64", "name": "requestId", "type": "uint64"},
      {"internalType": "uint256[]", "name": "inputs", "type": "uint256[]"},
      {"internalType": "uint256[2]", "name": "a", "type": "uint256[2]"},
      {"internalType": "uint256[2][2]", "name": "b", "type": "uint256[2][2]"},
      {"internalType": "uint256[2]", "name": "c", "type": "uint256[2]"}
    ],
    "name": "submitZKPResponse",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [
      {"internalType": "address", "name": "", "type": "address"},
      {"internalType": "uint64", "name": "", "type": "uint64"}
    ],
    "name": "proofs",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  }
]`,
}

// ErrNotZKPResponse the calldata is not a submitZKPResponse call
var ErrNotZKPResponse = errors.New("not a submitZKPResponse call")

// ZKPResponseCall holds the arguments of a submitZKPResponse call
type ZKPResponseCall struct {
	RequestID uint64
	Inputs    []*big.Int
	A         [2]*big.Int
	B         [2][2]*big.Int
	C         [2]*big.Int
}

// UnpackSubmitZKPResponse decodes the calldata of a submitZKPResponse transaction
func UnpackSubmitZKPResponse(data []byte) (*ZKPResponseCall, error) {
	parsed, err := ERC20VerifierMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	method := parsed.Methods["submitZKPResponse"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return nil, ErrNotZKPResponse
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotZKPResponse, err)
	}
	call := &ZKPResponseCall{}
	var ok [5]bool
	call.RequestID, ok[0] = args[0].(uint64)
	call.Inputs, ok[1] = args[1].([]*big.Int)
	call.A, ok[2] = args[2].([2]*big.Int)
	call.B, ok[3] = args[3].([2][2]*big.Int)
	call.C, ok[4] = args[4].([2]*big.Int)
	for _, o := range ok {
		if !o {
			return nil, fmt.Errorf("%w: unexpected argument types", ErrNotZKPResponse)
		}
	}
	return call, nil
}

// ERC20Verifier is a Go binding around the ERC20Verifier contract.
type ERC20Verifier struct {
	ERC20VerifierCaller     // Read-only binding to the contract
	ERC20VerifierTransactor // Write-only binding to the contract
}

// ERC20VerifierCaller is a read-only Go binding around the ERC20Verifier contract.
type ERC20VerifierCaller struct {
	contract *bind.BoundContract
}

// ERC20VerifierTransactor is a write-only Go binding around the ERC20Verifier contract.
type ERC20VerifierTransactor struct {
	contract *bind.BoundContract
}

// NewERC20Verifier creates a new instance of ERC20Verifier, bound to a specific deployed contract.
func NewERC20Verifier(address common.Address, backend bind.ContractBackend) (*ERC20Verifier, error) {
	contract, err := bindERC20Verifier(address, backend, backend, backend)
	if err != nil {
		return nil, err
	}
	return &ERC20Verifier{
		ERC20VerifierCaller:     ERC20VerifierCaller{contract: contract},
		ERC20VerifierTransactor: ERC20VerifierTransactor{contract: contract},
	}, nil
}

func bindERC20Verifier(address common.Address, caller bind.ContractCaller, transactor bind.ContractTransactor, filterer bind.ContractFilterer) (*bind.BoundContract, error) {
	parsed, err := ERC20VerifierMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	return bind.NewBoundContract(address, *parsed, caller, transactor, filterer), nil
}

// ParseERC20VerifierABI returns the parsed contract ABI.
func ParseERC20VerifierABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ERC20VerifierMetaData.ABI))
}

// Proofs is a free data retrieval call binding the contract method proofs.
//
// Solidity: function proofs(address , uint64 ) view returns(bool)
func (_ERC20Verifier *ERC20VerifierCaller) Proofs(opts *bind.CallOpts, user common.Address, requestID uint64) (bool, error) {
	var out []interface{}
	err := _ERC20Verifier.contract.Call(opts, &out, "proofs", user, requestID)
	if err != nil {
		return *new(bool), err
	}

	out0 := *abi.ConvertType(out[0], new(bool)).(*bool)

	return out0, err
}

// SetZKPRequest is a paid mutator transaction binding the contract method setZKPRequest.
//
// Solidity: function setZKPRequest(uint64 requestId, address validator, uint256 schema, uint256 claimPathKey, uint256 operator, uint256[] value) returns(bool)
func (_ERC20Verifier *ERC20VerifierTransactor) SetZKPRequest(opts *bind.TransactOpts, requestID uint64, validator common.Address, schema *big.Int, claimPathKey *big.Int, operator *big.Int, value []*big.Int) (*types.Transaction, error) {
	return _ERC20Verifier.contract.Transact(opts, "setZKPRequest", requestID, validator, schema, claimPathKey, operator, value)
}

// SubmitZKPResponse is a paid mutator transaction binding the contract method submitZKPResponse.
//
// Solidity: function submitZKPResponse(uint64 requestId, uint256[] inputs, uint256[2] a, uint256[2][2] b, uint256[2] c) returns(bool)
func (_ERC20Verifier *ERC20VerifierTransactor) SubmitZKPResponse(opts *bind.TransactOpts, requestID uint64, inputs []*big.Int, a [2]*big.Int, b [2][2]*big.Int, c [2]*big.Int) (*types.Transaction, error) {
	return _ERC20Verifier.contract.Transact(opts, "submitZKPResponse", requestID, inputs, a, b, c)
}
