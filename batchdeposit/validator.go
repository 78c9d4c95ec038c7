package batchdeposit

import (
	"math/big"

	"github.com/stakebatch/batch-deposit-service/models"
)

type validator struct {
	mode models.Mode
}

// resolveAmounts checks the per-record amounts against the mode and fills in the amount
// every record will forward to the ledger.
func (v validator) resolveAmounts(records []DepositRecord, amountsPresent bool) error {
	switch v.mode {
	case models.ModeFixedFee:
		if amountsPresent {
			return newError(KindMalformedBatch, "per-record amounts are not accepted in %s mode", v.mode)
		}
		for i := range records {
			records[i].Amount = new(big.Int).Set(MinDepositAmount)
		}
	case models.ModeVariableAmount:
		if !amountsPresent {
			return newError(KindMalformedBatch, "per-record amounts are required in %s mode", v.mode)
		}
		for i := range records {
			amount := records[i].Amount
			if amount == nil {
				return &Error{Kind: KindMalformedBatch, Index: i, Reason: "missing amount"}
			}
			if amount.Cmp(MinDepositAmount) < 0 || amount.Cmp(MaxDepositAmount) > 0 {
				return &Error{Kind: KindAmountOutOfRange, Index: i, Reason: "amount " + amount.String() + " wei outside [" + MinDepositAmount.String() + ", " + MaxDepositAmount.String() + "]"}
			}
			records[i].Amount = new(big.Int).Set(amount)
		}
	default:
		return newError(KindOperationDisabled, "unknown mode %s", v.mode)
	}
	return nil
}
