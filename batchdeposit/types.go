package batchdeposit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

const (
	// PubkeyLength is the size of a validator public key
	PubkeyLength = 48
	// SignatureLength is the size of a deposit signature
	SignatureLength = 96
	// CredentialsLength is the size of the withdrawal credentials shared by a batch
	CredentialsLength = 32
	// RootLength is the size of a deposit data root
	RootLength = 32
)

var (
	// MinDepositAmount is the amount of every record in fixed-fee mode and the lower bound in variable-amount mode (32 ETH)
	MinDepositAmount = new(big.Int).Mul(big.NewInt(32), big.NewInt(params.Ether)) //nolint:gomnd
	// MaxDepositAmount is the upper bound of a record in variable-amount mode (2048 ETH)
	MaxDepositAmount = new(big.Int).Mul(big.NewInt(2048), big.NewInt(params.Ether)) //nolint:gomnd
)

// BatchRequest is one call to BatchDeposit. Records are paired by position across
// Pubkeys, Signatures, DepositDataRoots and Amounts.
type BatchRequest struct {
	Caller common.Address
	// Value is the attached funding in wei
	Value                 *big.Int
	Pubkeys               []byte
	WithdrawalCredentials [CredentialsLength]byte
	Signatures            []byte
	DepositDataRoots      [][RootLength]byte
	// Amounts must be nil in fixed-fee mode and hold one entry per record in variable-amount mode
	Amounts []*big.Int
}

// DepositRecord is a single record decoded from a BatchRequest
type DepositRecord struct {
	Index           int
	Pubkey          [PubkeyLength]byte
	Signature       [SignatureLength]byte
	DepositDataRoot [RootLength]byte
	Amount          *big.Int
}

// Deployment holds the deployment-time parameters of an instance.
// A non-nil InitialFee selects fixed-fee mode, a nil one variable-amount mode.
type Deployment struct {
	Deployer      common.Address
	LedgerAddress common.Address
	InitialFee    *big.Int
}
