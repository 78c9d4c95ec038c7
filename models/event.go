package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies a notification emitted by the contract
type EventType string

const (
	// EventDepositForwarded is emitted once per record accepted by the deposit ledger
	EventDepositForwarded EventType = "DepositForwarded"
	// EventFeeCollected is emitted once per successful fixed-fee batch
	EventFeeCollected EventType = "FeeCollected"
	// EventFeeChanged is emitted when the owner replaces the per-record fee
	EventFeeChanged EventType = "FeeChanged"
	// EventPaused is emitted when the contract enters the paused state
	EventPaused EventType = "Paused"
	// EventUnpaused is emitted when the contract leaves the paused state
	EventUnpaused EventType = "Unpaused"
	// EventOwnershipTransferred is emitted when the owner changes
	EventOwnershipTransferred EventType = "OwnershipTransferred"
	// EventWithdrawn is emitted when the accrued balance is sent out
	EventWithdrawn EventType = "Withdrawn"
)

// Event is an observable side effect of a successful contract operation.
// Only the fields relevant to the event type are populated.
type Event struct {
	Type      EventType       `json:"type"`
	BatchID   *common.Hash    `json:"batchId,omitempty"`
	Index     *uint64         `json:"index,omitempty"`
	Pubkey    string          `json:"pubkey,omitempty"`
	Account   common.Address  `json:"account,omitempty"`
	Previous  *common.Address `json:"previous,omitempty"`
	Amount    *big.Int        `json:"amount,omitempty"`
	OldFee    *big.Int        `json:"oldFee,omitempty"`
	NewFee    *big.Int        `json:"newFee,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
