package server

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
	"github.com/stakebatch/batch-deposit-service/models"
)

type depositContract interface {
	BatchDeposit(ctx context.Context, req *batchdeposit.BatchRequest) (*models.BatchReceipt, error)
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	ChangeFee(ctx context.Context, caller common.Address, newFee *big.Int) error
	TransferOwnership(ctx context.Context, caller, newOwner common.Address) error
	RenounceOwnership(ctx context.Context, caller common.Address) error
	Withdraw(ctx context.Context, caller, to common.Address) (*big.Int, error)
	Mode() models.Mode
	LedgerAddress() common.Address
	State() *models.ContractState
}

type batchHistoryStorage interface {
	GetContractState(ctx context.Context) (*models.ContractState, error)
	GetBatchReceipt(ctx context.Context, batchID common.Hash) (*models.BatchReceipt, error)
	GetBatchReceipts(ctx context.Context, depositor *common.Address, limit, offset uint) ([]*models.BatchReceipt, error)
}
