package pgstorage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stakebatch/batch-deposit-service/gerror"
	"github.com/stakebatch/batch-deposit-service/models"
)

// PostgresStorage implements the Storage interface
type PostgresStorage struct {
	*pgxpool.Pool
}

// getExecQuerier determines which execQuerier to use, dbTx or the main pgxpool
func (p *PostgresStorage) getExecQuerier(dbTx pgx.Tx) execQuerier {
	if dbTx != nil {
		return &execQuerierWrapper{dbTx}
	}
	return &execQuerierWrapper{p.Pool}
}

// NewPostgresStorage creates a new Storage DB
func NewPostgresStorage(cfg Config) (*PostgresStorage, error) {
	log.Debugf("connecting to postgres %s:%s/%s", cfg.Host, cfg.Port, cfg.Name)
	config, err := pgxpool.ParseConfig(cfg.DSN(true))
	if err != nil {
		log.Errorf("Unable to parse DB config: %v\n", err)
		return nil, err
	}
	db, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		log.Errorf("Unable to connect to database: %v\n", err)
		return nil, err
	}
	return &PostgresStorage{db}, nil
}

// Rollback rollbacks a db transaction.
func (p *PostgresStorage) Rollback(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Rollback(ctx)
	}
	return gerror.ErrNilDBTransaction
}

// Commit commits a db transaction.
func (p *PostgresStorage) Commit(ctx context.Context, dbTx pgx.Tx) error {
	if dbTx != nil {
		return dbTx.Commit(ctx)
	}
	return gerror.ErrNilDBTransaction
}

// BeginDBTransaction starts a transaction block.
func (p *PostgresStorage) BeginDBTransaction(ctx context.Context) (pgx.Tx, error) {
	return p.Begin(ctx)
}

// BeginStateTx starts the transaction persisting the outcome of a contract operation
func (p *PostgresStorage) BeginStateTx(ctx context.Context) (models.StateTx, error) {
	dbTx, err := p.BeginDBTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &stateTx{storage: p, dbTx: dbTx}, nil
}

// GetContractState gets the persisted contract state.
func (p *PostgresStorage) GetContractState(ctx context.Context) (*models.ContractState, error) {
	return p.getContractState(ctx, nil)
}

func (p *PostgresStorage) getContractState(ctx context.Context, dbTx pgx.Tx) (*models.ContractState, error) {
	const getContractStateSQL = "SELECT owner, paused, fee, balance FROM batchdeposit.contract_state WHERE id = 1"
	var (
		state   models.ContractState
		fee     *string
		balance string
	)
	e := p.getExecQuerier(dbTx)
	err := e.QueryRow(ctx, getContractStateSQL).Scan(&state.Owner, &state.Paused, &fee, &balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	} else if err != nil {
		return nil, err
	}
	if fee != nil {
		if state.Fee, err = parseNumeric("fee", *fee); err != nil {
			return nil, err
		}
	}
	if state.Balance, err = parseNumeric("balance", balance); err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveContractState inserts or replaces the contract state.
func (p *PostgresStorage) SaveContractState(ctx context.Context, state *models.ContractState, dbTx pgx.Tx) error {
	const saveContractStateSQL = `INSERT INTO batchdeposit.contract_state (id, owner, paused, fee, balance, updated_at) VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET owner = EXCLUDED.owner, paused = EXCLUDED.paused, fee = EXCLUDED.fee, balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`
	var fee *string
	if state.Fee != nil {
		s := state.Fee.String()
		fee = &s
	}
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, saveContractStateSQL, state.Owner, state.Paused, fee, state.Balance.String(), time.Now().UTC())
	return err
}

// AddBatchReceipt stores the receipt of an applied batch.
func (p *PostgresStorage) AddBatchReceipt(ctx context.Context, receipt *models.BatchReceipt, dbTx pgx.Tx) error {
	const addBatchReceiptSQL = "INSERT INTO batchdeposit.batch_receipt (batch_id, depositor, mode, records, value, principal, fee_accrued, processed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)"
	e := p.getExecQuerier(dbTx)
	_, err := e.Exec(ctx, addBatchReceiptSQL, receipt.BatchID, receipt.Depositor, receipt.Mode.String(), receipt.Records,
		receipt.Value.String(), receipt.Principal.String(), receipt.FeeAccrued.String(), receipt.ProcessedAt)
	return err
}

// GetBatchReceipt gets a batch receipt by its ID.
func (p *PostgresStorage) GetBatchReceipt(ctx context.Context, batchID common.Hash) (*models.BatchReceipt, error) {
	const getBatchReceiptSQL = "SELECT batch_id, depositor, mode, records, value, principal, fee_accrued, processed_at FROM batchdeposit.batch_receipt WHERE batch_id = $1"
	e := p.getExecQuerier(nil)
	receipt, err := scanBatchReceipt(e.QueryRow(ctx, getBatchReceiptSQL, batchID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gerror.ErrStorageNotFound
	}
	return receipt, err
}

// GetBatchReceipts gets the receipts, newest first. A nil depositor returns every depositor's batches.
func (p *PostgresStorage) GetBatchReceipts(ctx context.Context, depositor *common.Address, limit, offset uint) ([]*models.BatchReceipt, error) {
	const getBatchReceiptsSQL = `SELECT batch_id, depositor, mode, records, value, principal, fee_accrued, processed_at FROM batchdeposit.batch_receipt
		WHERE $1::BYTEA IS NULL OR depositor = $1 ORDER BY processed_at DESC LIMIT $2 OFFSET $3`
	var filter []byte
	if depositor != nil {
		filter = depositor.Bytes()
	}
	e := p.getExecQuerier(nil)
	rows, err := e.Query(ctx, getBatchReceiptsSQL, filter, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]*models.BatchReceipt, 0, limit)
	for rows.Next() {
		receipt, err := scanBatchReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

func scanBatchReceipt(row pgx.Row) (*models.BatchReceipt, error) {
	var (
		receipt                      models.BatchReceipt
		mode, value, principal, fees string
	)
	err := row.Scan(&receipt.BatchID, &receipt.Depositor, &mode, &receipt.Records, &value, &principal, &fees, &receipt.ProcessedAt)
	if err != nil {
		return nil, err
	}
	if err := receipt.Mode.UnmarshalText([]byte(mode)); err != nil {
		return nil, err
	}
	if receipt.Value, err = parseNumeric("value", value); err != nil {
		return nil, err
	}
	if receipt.Principal, err = parseNumeric("principal", principal); err != nil {
		return nil, err
	}
	if receipt.FeeAccrued, err = parseNumeric("fee_accrued", fees); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// parseNumeric reads a wei amount stored as NUMERIC text
func parseNumeric(column, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10) //nolint:gomnd
	if !ok {
		return nil, fmt.Errorf("pgstorage: invalid %s value %q", column, s)
	}
	return v, nil
}

// stateTx binds a pgx transaction to the state persistence calls of one operation
type stateTx struct {
	storage *PostgresStorage
	dbTx    pgx.Tx
}

func (tx *stateTx) SaveContractState(ctx context.Context, state *models.ContractState) error {
	return tx.storage.SaveContractState(ctx, state, tx.dbTx)
}

func (tx *stateTx) AddBatchReceipt(ctx context.Context, receipt *models.BatchReceipt) error {
	return tx.storage.AddBatchReceipt(ctx, receipt, tx.dbTx)
}

func (tx *stateTx) Commit(ctx context.Context) error {
	return tx.storage.Commit(ctx, tx.dbTx)
}

func (tx *stateTx) Rollback(ctx context.Context) error {
	return tx.storage.Rollback(ctx, tx.dbTx)
}
