package models

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Mode is the fee/amount regime an instance is deployed with. It never changes after deployment.
type Mode uint8

const (
	// ModeFixedFee charges a configurable fee per record on top of a fixed 32 ETH amount
	ModeFixedFee Mode = iota + 1
	// ModeVariableAmount lets every record carry its own bounded amount and charges no fee
	ModeVariableAmount
)

// String implements fmt.Stringer
func (m Mode) String() string {
	switch m {
	case ModeFixedFee:
		return "fixed-fee"
	case ModeVariableAmount:
		return "variable-amount"
	}
	return fmt.Sprintf("unknown(%d)", uint8(m))
}

// UnmarshalText lets the mode be decoded from the config file
func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "fixed-fee", "fixedfee", "fixed":
		*m = ModeFixedFee
	case "variable-amount", "variableamount", "variable":
		*m = ModeVariableAmount
	default:
		return fmt.Errorf("unknown batch deposit mode %q", string(text))
	}
	return nil
}

// ContractState is the persistent state of one batch deposit instance
type ContractState struct {
	Owner  common.Address
	Paused bool
	// Fee is the per-record fee in wei. It is nil in variable-amount mode.
	Fee *big.Int
	// Balance is the accrued fee revenue pending withdrawal, in wei
	Balance *big.Int
}

// Copy returns a deep copy of the state, so callers can stage mutations without touching the original.
func (s *ContractState) Copy() *ContractState {
	c := &ContractState{
		Owner:   s.Owner,
		Paused:  s.Paused,
		Balance: new(big.Int),
	}
	if s.Balance != nil {
		c.Balance.Set(s.Balance)
	}
	if s.Fee != nil {
		c.Fee = new(big.Int).Set(s.Fee)
	}
	return c
}

// StateTx is a storage transaction used to persist the outcome of one contract operation
type StateTx interface {
	SaveContractState(ctx context.Context, state *ContractState) error
	AddBatchReceipt(ctx context.Context, receipt *BatchReceipt) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
