package batchdeposit

import (
	"context"

	"github.com/0xPolygonHermez/zkevm-node/log"
)

type dispatcher struct {
	ledger DepositLedger
}

// dispatch forwards every record to the ledger in ascending order inside a single ledger
// transaction. On success the transaction is returned still open so the caller can commit it
// together with the contract state. On failure it has already been rolled back.
func (d dispatcher) dispatch(ctx context.Context, withdrawalCredentials [CredentialsLength]byte, records []DepositRecord) (LedgerTx, error) {
	tx, err := d.ledger.BeginTx(ctx)
	if err != nil {
		return nil, &Error{Kind: KindDepositLedgerRejected, Index: -1, Err: err}
	}
	for i := range records {
		r := &records[i]
		err := tx.Forward(ctx, r.Pubkey, withdrawalCredentials, r.Signature, r.DepositDataRoot, r.Amount)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Errorf("error rolling back ledger tx after record %d was rejected: %v", i, rbErr)
			}
			return nil, &Error{Kind: KindDepositLedgerRejected, Index: i, Err: err}
		}
	}
	return tx, nil
}
