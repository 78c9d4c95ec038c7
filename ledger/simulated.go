package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
)

var (
	// ErrDepositTooLow is returned for deposits under 1 ETH
	ErrDepositTooLow = errors.New("deposit value too low")
	// ErrDepositNotMultipleOfGwei is returned for deposits with a sub-gwei part
	ErrDepositNotMultipleOfGwei = errors.New("deposit value not multiple of gwei")
	// ErrDepositTooHigh is returned for deposits whose gwei amount does not fit 64 bits
	ErrDepositTooHigh = errors.New("deposit value too high")
	// ErrDepositDataRootMismatch is returned when the supplied root does not commit to the deposit
	ErrDepositDataRootMismatch = errors.New("reconstructed DepositData does not match supplied deposit_data_root")
	// ErrTxClosed is returned when a committed or rolled back tx is used again
	ErrTxClosed = errors.New("ledger tx already closed")
)

var minDeposit = big.NewInt(params.Ether)

// Deposit is one entry appended to the ledger
type Deposit struct {
	Index                 uint64
	Pubkey                [batchdeposit.PubkeyLength]byte
	WithdrawalCredentials [batchdeposit.CredentialsLength]byte
	Signature             [batchdeposit.SignatureLength]byte
	Amount                *big.Int
	DepositDataRoot       [KeyLen]byte
}

// Simulated is an in-memory deposit ledger with the acceptance rules of the beacon chain deposit
// contract. It also holds plain account balances so it can serve withdrawals.
type Simulated struct {
	mu       sync.Mutex
	tree     depositTree
	deposits []Deposit
	balances map[common.Address]*big.Int

	// BeforeForward, when set, runs before every forwarding call and its error rejects the record
	BeforeForward func(ctx context.Context, d Deposit) error
	// BeforeTransfer, when set, runs before every transfer and its error fails it
	BeforeTransfer func(ctx context.Context, to common.Address, amount *big.Int) error
}

// NewSimulated creates an empty ledger
func NewSimulated() *Simulated {
	return &Simulated{
		balances: make(map[common.Address]*big.Int),
	}
}

// BeginTx opens a batch of forwarding calls
func (s *Simulated) BeginTx(ctx context.Context) (batchdeposit.LedgerTx, error) {
	return &simulatedTx{ledger: s}, nil
}

// Transfer credits the amount to the account
func (s *Simulated) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if s.BeforeTransfer != nil {
		if err := s.BeforeTransfer(ctx, to, amount); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[to]
	if !ok {
		bal = new(big.Int)
		s.balances[to] = bal
	}
	bal.Add(bal, amount)
	log.Debugf("simulated ledger: transferred %s wei to %s", amount, to.Hex())
	return nil
}

// BalanceOf returns the amount transferred to the account so far
func (s *Simulated) BalanceOf(account common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bal, ok := s.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// DepositCount returns the number of committed deposits
func (s *Simulated) DepositCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.count
}

// DepositRoot returns the root of the deposit tree
func (s *Simulated) DepositRoot() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.root()
}

// Deposits returns a copy of the committed deposits in insertion order
func (s *Simulated) Deposits() []Deposit {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]Deposit, len(s.deposits))
	copy(res, s.deposits)
	return res
}

type simulatedTx struct {
	ledger *Simulated
	staged []Deposit
	closed bool
}

// Forward applies the deposit contract checks and stages the deposit
func (tx *simulatedTx) Forward(ctx context.Context, pubkey [batchdeposit.PubkeyLength]byte, withdrawalCredentials [batchdeposit.CredentialsLength]byte, signature [batchdeposit.SignatureLength]byte, depositDataRoot [batchdeposit.RootLength]byte, amount *big.Int) error {
	if tx.closed {
		return ErrTxClosed
	}
	if amount == nil || amount.Cmp(minDeposit) < 0 {
		return ErrDepositTooLow
	}
	quo, rem := new(big.Int).QuoRem(amount, gwei, new(big.Int))
	if rem.Sign() != 0 {
		return ErrDepositNotMultipleOfGwei
	}
	if !quo.IsUint64() {
		return ErrDepositTooHigh
	}
	if DepositDataRoot(pubkey, withdrawalCredentials, signature, amount) != depositDataRoot {
		return ErrDepositDataRootMismatch
	}
	d := Deposit{
		Pubkey:                pubkey,
		WithdrawalCredentials: withdrawalCredentials,
		Signature:             signature,
		Amount:                new(big.Int).Set(amount),
		DepositDataRoot:       depositDataRoot,
	}
	if tx.ledger.BeforeForward != nil {
		if err := tx.ledger.BeforeForward(ctx, d); err != nil {
			return err
		}
	}
	tx.staged = append(tx.staged, d)
	return nil
}

// Commit appends the staged deposits to the tree
func (tx *simulatedTx) Commit(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	s := tx.ledger
	s.mu.Lock()
	defer s.mu.Unlock()
	if uint64(len(tx.staged)) > 1<<TreeHeight-1-s.tree.count {
		return fmt.Errorf("deposit tree cannot hold %d more deposits", len(tx.staged))
	}
	for i := range tx.staged {
		d := tx.staged[i]
		d.Index = s.tree.count
		if err := s.tree.addLeaf(d.DepositDataRoot); err != nil {
			return err
		}
		s.deposits = append(s.deposits, d)
	}
	log.Debugf("simulated ledger: committed %d deposits, count %d", len(tx.staged), s.tree.count)
	return nil
}

// Rollback drops the staged deposits
func (tx *simulatedTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	tx.staged = nil
	return nil
}
