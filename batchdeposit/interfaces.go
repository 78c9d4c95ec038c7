package batchdeposit

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/models"
)

// DepositLedger is the external append-only deposit ledger the records are forwarded to.
//
// The contract is locked while it calls the ledger or the FundsTransferer. Implementations
// that call back into the contract must pass on the context they received: the call then
// fails with ErrReentrantCall. A callback made with an unrelated context waits for the
// running operation, which waits for the callback, until that context is done.
type DepositLedger interface {
	BeginTx(ctx context.Context) (LedgerTx, error)
}

// LedgerTx groups the forwarding calls of one batch so they are applied all together or not at all
type LedgerTx interface {
	Forward(ctx context.Context, pubkey [PubkeyLength]byte, withdrawalCredentials [CredentialsLength]byte, signature [SignatureLength]byte, depositDataRoot [RootLength]byte, amount *big.Int) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// FundsTransferer moves the accrued balance out of the contract
type FundsTransferer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// Notifier publishes the events of a committed operation
type Notifier interface {
	PushEvents(ctx context.Context, events []models.Event) error
}

type stateStorage interface {
	GetContractState(ctx context.Context) (*models.ContractState, error)
	BeginStateTx(ctx context.Context) (models.StateTx, error)
}
