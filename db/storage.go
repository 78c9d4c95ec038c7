package db

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/db/boltstorage"
	"github.com/stakebatch/batch-deposit-service/db/pgstorage"
	"github.com/stakebatch/batch-deposit-service/gerror"
	"github.com/stakebatch/batch-deposit-service/models"
)

const (
	// DatabasePostgres selects the postgres storage
	DatabasePostgres = "postgres"
	// DatabaseBolt selects the embedded bolt storage
	DatabaseBolt = "bolt"
)

// Storage interface
type Storage interface {
	GetContractState(ctx context.Context) (*models.ContractState, error)
	BeginStateTx(ctx context.Context) (models.StateTx, error)
	GetBatchReceipt(ctx context.Context, batchID common.Hash) (*models.BatchReceipt, error)
	GetBatchReceipts(ctx context.Context, depositor *common.Address, limit, offset uint) ([]*models.BatchReceipt, error)
	Close()
}

// NewStorage creates a new Storage
func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Database {
	case DatabasePostgres:
		pg, err := pgstorage.NewPostgresStorage(pgConfig(cfg))
		if err != nil {
			return nil, err
		}
		return pg, nil
	case DatabaseBolt:
		bolt, err := boltstorage.NewBoltStorage(cfg.Path)
		if err != nil {
			return nil, err
		}
		return bolt, nil
	}
	return nil, gerror.ErrStorageNotRegister
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	if cfg.Database != DatabasePostgres {
		return nil
	}
	return pgstorage.RunMigrations(pgConfig(cfg))
}

func pgConfig(cfg Config) pgstorage.Config {
	return pgstorage.Config{
		Name:     cfg.Name,
		User:     cfg.User,
		Password: cfg.Password,
		Host:     cfg.Host,
		Port:     cfg.Port,
		MaxConns: cfg.MaxConns,
	}
}
