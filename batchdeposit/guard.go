package batchdeposit

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/models"
)

// ownership gates the owner-only operations
type ownership struct{}

func (ownership) onlyOwner(state *models.ContractState, caller common.Address) error {
	if caller != state.Owner {
		return newError(KindUnauthorized, "account %s is not the owner", caller.Hex())
	}
	return nil
}

func (ownership) transfer(state *models.ContractState, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return newError(KindInvalidArgument, "new owner is the zero address")
	}
	state.Owner = newOwner
	return nil
}

// lifecycle holds the Active/Paused state machine
type lifecycle struct{}

func (lifecycle) whenNotPaused(state *models.ContractState) error {
	if state.Paused {
		return newError(KindOperationSuspended, "contract is paused")
	}
	return nil
}

func (lifecycle) pause(state *models.ContractState) error {
	if state.Paused {
		return newError(KindAlreadyPaused, "contract is already paused")
	}
	state.Paused = true
	return nil
}

func (lifecycle) unpause(state *models.ContractState) error {
	if !state.Paused {
		return newError(KindNotPaused, "contract is not paused")
	}
	state.Paused = false
	return nil
}
