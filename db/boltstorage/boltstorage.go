package boltstorage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/gerror"
	"github.com/stakebatch/batch-deposit-service/models"
	"go.etcd.io/bbolt"
)

var (
	bucketState         = []byte("contract_state")
	bucketReceipts      = []byte("batch_receipts")
	bucketReceiptsOrder = []byte("batch_receipts_order")

	keyState = []byte("state")
)

// BoltStorage keeps the contract state and the batch history in a single bbolt file
type BoltStorage struct {
	db *bbolt.DB
}

// NewBoltStorage opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func NewBoltStorage(dbPath string) (*BoltStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil { //nolint:gomnd
		return nil, fmt.Errorf("boltstorage: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second}) //nolint:gomnd
	if err != nil {
		return nil, fmt.Errorf("boltstorage: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketState, bucketReceipts, bucketReceiptsOrder} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstorage: create buckets: %w", err)
	}
	log.Debugf("bolt storage opened at %s", dbPath)
	return &BoltStorage{db: db}, nil
}

// Close closes the underlying database
func (s *BoltStorage) Close() {
	if err := s.db.Close(); err != nil {
		log.Errorf("error closing bolt storage: %v", err)
	}
}

// GetContractState gets the persisted contract state
func (s *BoltStorage) GetContractState(ctx context.Context) (*models.ContractState, error) {
	var state models.ContractState
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketState).Get(keyState)
		if data == nil {
			return gerror.ErrStorageNotFound
		}
		return decodeGob(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// BeginStateTx opens a writable transaction. Only one can be open at a time.
func (s *BoltStorage) BeginStateTx(ctx context.Context) (models.StateTx, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("boltstorage: begin tx: %w", err)
	}
	return &stateTx{tx: tx}, nil
}

// GetBatchReceipt gets a batch receipt by its ID
func (s *BoltStorage) GetBatchReceipt(ctx context.Context, batchID common.Hash) (*models.BatchReceipt, error) {
	var receipt models.BatchReceipt
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketReceipts).Get(batchID.Bytes())
		if data == nil {
			return gerror.ErrStorageNotFound
		}
		return decodeGob(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetBatchReceipts gets the receipts, newest first. A nil depositor returns every depositor's batches.
func (s *BoltStorage) GetBatchReceipts(ctx context.Context, depositor *common.Address, limit, offset uint) ([]*models.BatchReceipt, error) {
	receipts := make([]*models.BatchReceipt, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		byID := tx.Bucket(bucketReceipts)
		c := tx.Bucket(bucketReceiptsOrder).Cursor()
		skipped := uint(0)
		for k, id := c.Last(); k != nil && uint(len(receipts)) < limit; k, id = c.Prev() {
			var receipt models.BatchReceipt
			if err := decodeGob(byID.Get(id), &receipt); err != nil {
				return fmt.Errorf("decode receipt %x: %w", id, err)
			}
			if depositor != nil && receipt.Depositor != *depositor {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			receipts = append(receipts, &receipt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

type stateTx struct {
	tx *bbolt.Tx
}

func (t *stateTx) SaveContractState(ctx context.Context, state *models.ContractState) error {
	data, err := encodeGob(state)
	if err != nil {
		return fmt.Errorf("encode contract state: %w", err)
	}
	return t.tx.Bucket(bucketState).Put(keyState, data)
}

func (t *stateTx) AddBatchReceipt(ctx context.Context, receipt *models.BatchReceipt) error {
	id := receipt.BatchID.Bytes()
	byID := t.tx.Bucket(bucketReceipts)
	if byID.Get(id) != nil {
		return fmt.Errorf("batch receipt %s already stored", receipt.BatchID.Hex())
	}
	data, err := encodeGob(receipt)
	if err != nil {
		return fmt.Errorf("encode batch receipt: %w", err)
	}
	if err := byID.Put(id, data); err != nil {
		return err
	}
	return t.tx.Bucket(bucketReceiptsOrder).Put(orderKey(receipt), id)
}

func (t *stateTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *stateTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}

// orderKey sorts receipts by processing time, the batch ID breaks ties
func orderKey(receipt *models.BatchReceipt) []byte {
	k := make([]byte, 8, 8+common.HashLength) //nolint:gomnd
	binary.BigEndian.PutUint64(k, uint64(receipt.ProcessedAt.UnixNano()))
	return append(k, receipt.BatchID.Bytes()...)
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
