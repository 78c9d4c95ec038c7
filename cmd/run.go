package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
	"github.com/stakebatch/batch-deposit-service/config"
	"github.com/stakebatch/batch-deposit-service/db"
	"github.com/stakebatch/batch-deposit-service/etherman"
	"github.com/stakebatch/batch-deposit-service/gerror"
	"github.com/stakebatch/batch-deposit-service/ledger"
	"github.com/stakebatch/batch-deposit-service/messagepush"
	"github.com/stakebatch/batch-deposit-service/metrics"
	"github.com/stakebatch/batch-deposit-service/server"
	"github.com/urfave/cli/v2"
)

func start(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx.String(flagCfg), cliCtx.String(flagNetwork))
	if err != nil {
		return err
	}
	setupLog(c.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = db.RunMigrations(c.Database)
	if err != nil {
		log.Error(err)
		return err
	}
	storage, err := db.NewStorage(c.Database)
	if err != nil {
		log.Error(err)
		return err
	}
	defer storage.Close()

	depositLedger, transferer, err := newLedger(ctx, *c)
	if err != nil {
		log.Error(err)
		return err
	}

	var notifier batchdeposit.Notifier
	if c.MessagePush.Enabled {
		producer, err := messagepush.NewEventProducer(c.MessagePush)
		if err != nil {
			log.Error(err)
			return err
		}
		defer func() {
			if err := producer.Close(); err != nil {
				log.Errorf("error closing event producer: %v", err)
			}
		}()
		notifier = producer
	}

	go metrics.StartMetricsHttpServer(ctx, c.Metrics)

	deployment, err := c.BatchDeposit.Deployment(c.NetworkConfig.DepositContractAddr)
	if err != nil {
		log.Error(err)
		return err
	}
	contract, err := batchdeposit.NewContract(ctx, deployment, storage, depositLedger, transferer, notifier)
	if err != nil {
		log.Error(err)
		return err
	}

	service := server.NewDepositService(c.Server, contract, storage)
	err = server.RunServer(ctx, c.Server, service)
	if err != nil {
		log.Error(err)
		return err
	}

	// Wait for an in interrupt.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	sig := <-ch
	log.Infof("received %s, shutting down", sig)
	return nil
}

func setupLog(c log.Config) {
	log.Init(c)
}

// newLedger builds the deposit ledger the contract forwards to and the transferer paying the withdrawals
func newLedger(ctx context.Context, c config.Config) (batchdeposit.DepositLedger, batchdeposit.FundsTransferer, error) {
	switch c.Ledger.Type {
	case config.LedgerSimulated:
		log.Infof("using the in-process simulated deposit ledger")
		l := ledger.NewSimulated()
		return l, l, nil
	case config.LedgerEthereum:
		etherCfg := c.Etherman
		if etherCfg.L1ChainID == 0 {
			etherCfg.L1ChainID = c.NetworkConfig.L1ChainID
		}
		client, err := etherman.NewClient(ctx, etherCfg, c.NetworkConfig.DepositContractAddr)
		if err != nil {
			return nil, nil, err
		}
		root, err := client.DepositRoot(ctx)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("deposit contract %s reachable from %s, deposit root %s, chainID %d", c.NetworkConfig.DepositContractAddr.Hex(),
			client.Account().Hex(), root.Hex(), etherCfg.L1ChainID)
		return client, client, nil
	}
	return nil, nil, gerror.ErrLedgerNotRegister
}
