package batchdeposit

import (
	"math/big"

	"github.com/stakebatch/batch-deposit-service/models"
)

type accountant struct {
	mode models.Mode
}

// requiredFunding returns the exact funding a batch needs and the part of it kept as fee
func (a accountant) requiredFunding(records []DepositRecord, fee *big.Int) (required, feeTotal *big.Int) {
	n := big.NewInt(int64(len(records)))
	feeTotal = new(big.Int)
	if a.mode == models.ModeFixedFee {
		required = new(big.Int).Mul(n, MinDepositAmount)
		if fee != nil {
			feeTotal.Mul(n, fee)
		}
		required.Add(required, feeTotal)
		return required, feeTotal
	}
	required = new(big.Int)
	for _, r := range records {
		required.Add(required, r.Amount)
	}
	return required, feeTotal
}

// checkFunding compares the attached value with the batch requirement. The floor check runs
// first so callers can tell "add more funds" apart from "funds don't match the batch".
func (a accountant) checkFunding(value *big.Int, records []DepositRecord, fee *big.Int) (*big.Int, error) {
	floor := new(big.Int).Mul(big.NewInt(int64(len(records))), MinDepositAmount)
	if value == nil || value.Cmp(floor) < 0 {
		return nil, newError(KindInsufficientFunding, "amount is too low: got %s wei, need at least %s wei", valueString(value), floor)
	}
	required, feeTotal := a.requiredFunding(records, fee)
	if value.Cmp(required) != 0 {
		e := newError(KindFundingMisalignment, "got %s wei, expected %s wei", value, required)
		if a.mode == models.ModeFixedFee {
			e.Expectation = ExpectFee
		} else {
			e.Expectation = ExpectExactAmount
		}
		return nil, e
	}
	return feeTotal, nil
}

// accrue adds the collected fee to the staged state. Only fixed-fee batches retain anything.
func (a accountant) accrue(state *models.ContractState, feeTotal *big.Int) bool {
	if a.mode != models.ModeFixedFee {
		return false
	}
	state.Balance.Add(state.Balance, feeTotal)
	return true
}

func valueString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
