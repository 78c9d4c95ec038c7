package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BatchReceipt is the history entry stored for every accepted batch
type BatchReceipt struct {
	BatchID     common.Hash
	Depositor   common.Address
	Mode        Mode
	Records     uint64
	Value       *big.Int
	Principal   *big.Int
	FeeAccrued  *big.Int
	ProcessedAt time.Time
}
