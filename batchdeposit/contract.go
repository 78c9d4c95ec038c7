package batchdeposit

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/iden3/go-iden3-crypto/keccak256"
	"github.com/pkg/errors"
	"github.com/stakebatch/batch-deposit-service/gerror"
	"github.com/stakebatch/batch-deposit-service/metrics"
	"github.com/stakebatch/batch-deposit-service/models"
	"github.com/stakebatch/batch-deposit-service/utils"
)

// Contract is a single long-lived batch deposit instance. It owns its ContractState and
// serializes every operation: each one either applies all its effects or none.
type Contract struct {
	// sem is held by the running operation
	sem        chan struct{}
	mode       models.Mode
	ledgerAddr common.Address
	// state is the last committed state. Operations stage their changes on a copy.
	state atomic.Pointer[models.ContractState]

	storage    stateStorage
	transferer FundsTransferer
	notifier   Notifier

	auth       ownership
	life       lifecycle
	validator  validator
	accountant accountant
	dispatcher dispatcher

	timeProvider utils.TimeProvider
}

type reentrancyKey struct{}

// Option configures a Contract
type Option func(*Contract)

// WithTimeProvider sets the clock used to stamp receipts and events
func WithTimeProvider(tp utils.TimeProvider) Option {
	return func(c *Contract) {
		c.timeProvider = tp
	}
}

// NewContract loads the persisted state of the instance. When the storage holds no state yet,
// the instance is deployed: owner = deployer, active, fee = initial fee, zero balance.
func NewContract(ctx context.Context, d Deployment, storage stateStorage, ledger DepositLedger, transferer FundsTransferer, notifier Notifier, opts ...Option) (*Contract, error) {
	if storage == nil || ledger == nil || transferer == nil {
		return nil, fmt.Errorf("storage, ledger and transferer are required")
	}
	mode := models.ModeVariableAmount
	if d.InitialFee != nil {
		mode = models.ModeFixedFee
	}
	c := &Contract{
		sem:          make(chan struct{}, 1),
		mode:         mode,
		ledgerAddr:   d.LedgerAddress,
		storage:      storage,
		transferer:   transferer,
		notifier:     notifier,
		validator:    validator{mode: mode},
		accountant:   accountant{mode: mode},
		dispatcher:   dispatcher{ledger: ledger},
		timeProvider: utils.NewTimeProviderSystemLocalTime(),
	}
	for _, opt := range opts {
		opt(c)
	}
	state, err := c.deploy(ctx, d)
	if err != nil {
		return nil, err
	}
	c.state.Store(state)
	metrics.RecordContractState(state)
	log.Infof("batch deposit contract ready: mode[%s] owner[%s] ledger[%s] paused[%v]", mode, state.Owner.Hex(), d.LedgerAddress.Hex(), state.Paused)
	return c, nil
}

func (c *Contract) deploy(ctx context.Context, d Deployment) (*models.ContractState, error) {
	state, err := c.storage.GetContractState(ctx)
	if err == nil {
		if (state.Fee != nil) != (c.mode == models.ModeFixedFee) {
			return nil, fmt.Errorf("stored contract state does not belong to a %s deployment", c.mode)
		}
		if state.Balance == nil {
			state.Balance = new(big.Int)
		}
		return state, nil
	}
	if !errors.Is(err, gerror.ErrStorageNotFound) {
		return nil, errors.Wrap(err, "loading contract state")
	}

	if d.Deployer == (common.Address{}) {
		return nil, newError(KindInvalidArgument, "deployer is the zero address")
	}
	state = &models.ContractState{
		Owner:   d.Deployer,
		Balance: new(big.Int),
	}
	if d.InitialFee != nil {
		if d.InitialFee.Sign() < 0 {
			return nil, newError(KindInvalidArgument, "initial fee is negative")
		}
		state.Fee = new(big.Int).Set(d.InitialFee)
	}
	dbTx, err := c.storage.BeginStateTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "deploying contract state")
	}
	if err := dbTx.SaveContractState(ctx, state); err != nil {
		c.rollbackState(ctx, dbTx)
		return nil, errors.Wrap(err, "deploying contract state")
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "deploying contract state")
	}
	log.Infof("batch deposit contract deployed by %s in %s mode", d.Deployer.Hex(), c.mode)
	return state, nil
}

// enter starts the critical section of an operation. A context that already carries this
// contract comes from a call made while an operation is running (e.g. by the ledger) and is refused.
// Other callers wait for the running operation until their context is done.
func (c *Contract) enter(ctx context.Context) (context.Context, error) {
	if running, _ := ctx.Value(reentrancyKey{}).(*Contract); running == c {
		return nil, newError(KindReentrantCall, "operation started while another one is running")
	}
	select {
	case c.sem <- struct{}{}:
	default:
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting for the running operation")
		}
	}
	return context.WithValue(ctx, reentrancyKey{}, c), nil
}

func (c *Contract) exit() {
	<-c.sem
}

// BatchDeposit validates the request, forwards every record to the deposit ledger and accrues
// the fee. Nothing is applied unless every record is accepted.
func (c *Contract) BatchDeposit(ctx context.Context, req *BatchRequest) (receipt *models.BatchReceipt, err error) {
	defer c.observe("batchDeposit", time.Now(), &err)
	ctx, err = c.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer c.exit()

	state := c.state.Load()
	if err := c.life.whenNotPaused(state); err != nil {
		return nil, err
	}
	records, err := decodeBatch(req)
	if err != nil {
		return nil, err
	}
	if err := c.validator.resolveAmounts(records, req.Amounts != nil); err != nil {
		return nil, err
	}
	feeTotal, err := c.accountant.checkFunding(req.Value, records, state.Fee)
	if err != nil {
		return nil, err
	}

	batchID := newBatchID(req)
	logger := log.WithFields("batchID", batchID.Hex(), "records", len(records))
	logger.Debugf("forwarding batch from %s: value[%s] mode[%s]", req.Caller.Hex(), req.Value, c.mode)

	ledgerTx, err := c.dispatcher.dispatch(ctx, req.WithdrawalCredentials, records)
	if err != nil {
		logger.Warnf("batch rejected: %v", err)
		return nil, err
	}

	// Every ledger call has succeeded, only now the state is touched.
	next := state.Copy()
	collected := c.accountant.accrue(next, feeTotal)
	receipt = &models.BatchReceipt{
		BatchID:     batchID,
		Depositor:   req.Caller,
		Mode:        c.mode,
		Records:     uint64(len(records)),
		Value:       new(big.Int).Set(req.Value),
		Principal:   new(big.Int).Sub(req.Value, feeTotal),
		FeeAccrued:  feeTotal,
		ProcessedAt: c.timeProvider.Now().UTC(),
	}

	ledgerCommitted := false
	err = c.persist(ctx, next, receipt, func() error {
		if err := ledgerTx.Commit(ctx); err != nil {
			return &Error{Kind: KindDepositLedgerRejected, Index: -1, Err: err}
		}
		ledgerCommitted = true
		return nil
	})
	if err != nil {
		if !ledgerCommitted {
			if rbErr := ledgerTx.Rollback(ctx); rbErr != nil {
				logger.Debugf("ledger rollback after failed commit: %v", rbErr)
			}
		}
		logger.Errorf("batch not applied: %v", err)
		return nil, err
	}

	events := make([]models.Event, 0, len(records)+1)
	for i := range records {
		idx := uint64(records[i].Index)
		events = append(events, models.Event{
			Type:      models.EventDepositForwarded,
			BatchID:   &receipt.BatchID,
			Index:     &idx,
			Pubkey:    common.Bytes2Hex(records[i].Pubkey[:]),
			Account:   req.Caller,
			Amount:    records[i].Amount,
			Timestamp: receipt.ProcessedAt,
		})
	}
	if collected {
		events = append(events, models.Event{
			Type:      models.EventFeeCollected,
			BatchID:   &receipt.BatchID,
			Account:   req.Caller,
			Amount:    new(big.Int).Set(feeTotal),
			Timestamp: receipt.ProcessedAt,
		})
	}
	c.emit(ctx, events)
	metrics.RecordBatch(c.mode.String(), len(records), receipt.Principal, feeTotal)
	logger.Infof("batch applied: principal[%s] fee[%s] balance[%s]", receipt.Principal, feeTotal, next.Balance)
	return receipt, nil
}

// Pause blocks BatchDeposit until Unpause is called
func (c *Contract) Pause(ctx context.Context, caller common.Address) (err error) {
	defer c.observe("pause", time.Now(), &err)
	return c.ownerOperation(ctx, caller, func(next *models.ContractState) ([]models.Event, error) {
		if err := c.life.pause(next); err != nil {
			return nil, err
		}
		return []models.Event{{Type: models.EventPaused, Account: caller}}, nil
	})
}

// Unpause lets BatchDeposit run again
func (c *Contract) Unpause(ctx context.Context, caller common.Address) (err error) {
	defer c.observe("unpause", time.Now(), &err)
	return c.ownerOperation(ctx, caller, func(next *models.ContractState) ([]models.Event, error) {
		if err := c.life.unpause(next); err != nil {
			return nil, err
		}
		return []models.Event{{Type: models.EventUnpaused, Account: caller}}, nil
	})
}

// ChangeFee replaces the per-record fee. No bound is enforced. Only available in fixed-fee mode.
func (c *Contract) ChangeFee(ctx context.Context, caller common.Address, newFee *big.Int) (err error) {
	defer c.observe("changeFee", time.Now(), &err)
	return c.ownerOperation(ctx, caller, func(next *models.ContractState) ([]models.Event, error) {
		if c.mode != models.ModeFixedFee {
			return nil, newError(KindOperationDisabled, "fee is not configurable in %s mode", c.mode)
		}
		if newFee == nil || newFee.Sign() < 0 {
			return nil, newError(KindInvalidArgument, "fee must be a non-negative amount")
		}
		old := next.Fee
		next.Fee = new(big.Int).Set(newFee)
		return []models.Event{{Type: models.EventFeeChanged, Account: caller, OldFee: old, NewFee: new(big.Int).Set(newFee)}}, nil
	})
}

// TransferOwnership hands the owner-only operations over to newOwner
func (c *Contract) TransferOwnership(ctx context.Context, caller, newOwner common.Address) (err error) {
	defer c.observe("transferOwnership", time.Now(), &err)
	return c.ownerOperation(ctx, caller, func(next *models.ContractState) ([]models.Event, error) {
		previous := next.Owner
		if err := c.auth.transfer(next, newOwner); err != nil {
			return nil, err
		}
		return []models.Event{{Type: models.EventOwnershipTransferred, Account: newOwner, Previous: &previous}}, nil
	})
}

// RenounceOwnership always fails: the contract must never lose its only fee withdrawer and pause controller.
func (c *Contract) RenounceOwnership(ctx context.Context, caller common.Address) (err error) {
	defer c.observe("renounceOwnership", time.Now(), &err)
	return newError(KindOperationDisabled, "renounceOwnership is disabled")
}

// Withdraw sends the whole accrued balance to the given account and zeroes it.
// A zero balance is a valid no-op.
func (c *Contract) Withdraw(ctx context.Context, caller, to common.Address) (amount *big.Int, err error) {
	defer c.observe("withdraw", time.Now(), &err)
	ctx, err = c.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer c.exit()

	state := c.state.Load()
	if err := c.auth.onlyOwner(state, caller); err != nil {
		return nil, err
	}
	amount = new(big.Int).Set(state.Balance)
	next := state.Copy()
	next.Balance.SetUint64(0)

	err = c.persist(ctx, next, nil, func() error {
		if amount.Sign() == 0 {
			return nil
		}
		if err := c.transferer.Transfer(ctx, to, amount); err != nil {
			return &Error{Kind: KindTransferFailed, Index: -1, Reason: "sending " + amount.String() + " wei to " + to.Hex(), Err: err}
		}
		return nil
	})
	if err != nil {
		log.Warnf("withdraw to %s failed: %v", to.Hex(), err)
		return nil, err
	}
	c.emit(ctx, []models.Event{{Type: models.EventWithdrawn, Account: to, Amount: new(big.Int).Set(amount)}})
	log.Infof("withdrew %s wei to %s", amount, to.Hex())
	return amount, nil
}

// ownerOperation runs a state-only owner operation: authorize, stage on a copy, persist, notify
func (c *Contract) ownerOperation(ctx context.Context, caller common.Address, apply func(next *models.ContractState) ([]models.Event, error)) error {
	ctx, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer c.exit()

	state := c.state.Load()
	if err := c.auth.onlyOwner(state, caller); err != nil {
		return err
	}
	next := state.Copy()
	events, err := apply(next)
	if err != nil {
		return err
	}
	if err := c.persist(ctx, next, nil, nil); err != nil {
		return err
	}
	c.emit(ctx, events)
	return nil
}

// persist writes the staged state in a storage transaction. The external effect, if any, runs
// after the writes and before the commit, so a failing effect leaves the storage untouched.
func (c *Contract) persist(ctx context.Context, next *models.ContractState, receipt *models.BatchReceipt, effect func() error) error {
	dbTx, err := c.storage.BeginStateTx(ctx)
	if err != nil {
		return errors.Wrap(err, "begin state tx")
	}
	if err := dbTx.SaveContractState(ctx, next); err != nil {
		c.rollbackState(ctx, dbTx)
		return errors.Wrap(err, "save contract state")
	}
	if receipt != nil {
		if err := dbTx.AddBatchReceipt(ctx, receipt); err != nil {
			c.rollbackState(ctx, dbTx)
			return errors.Wrap(err, "add batch receipt")
		}
	}
	if effect != nil {
		if err := effect(); err != nil {
			c.rollbackState(ctx, dbTx)
			return err
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		if effect != nil {
			log.Errorf("CRITICAL: external effect applied but contract state commit failed: %v", err)
		}
		return errors.Wrap(err, "commit state tx")
	}
	c.state.Store(next)
	metrics.RecordContractState(next)
	return nil
}

func (c *Contract) rollbackState(ctx context.Context, dbTx models.StateTx) {
	if err := dbTx.Rollback(ctx); err != nil {
		log.Errorf("error rolling back state tx: %v", err)
	}
}

func (c *Contract) emit(ctx context.Context, events []models.Event) {
	ts := c.timeProvider.Now().UTC()
	for i := range events {
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = ts
		}
		metrics.RecordEvent(string(events[i].Type))
	}
	if c.notifier == nil || len(events) == 0 {
		return
	}
	if err := c.notifier.PushEvents(ctx, events); err != nil {
		log.Warnf("error pushing %d events: %v", len(events), err)
	}
}

func (c *Contract) observe(method string, start time.Time, err *error) {
	success := *err == nil
	metrics.RecordRequest(method, success)
	metrics.RecordRequestLatency(method, time.Since(start), success)
}

// Mode returns the deployment mode of the instance
func (c *Contract) Mode() models.Mode {
	return c.mode
}

// LedgerAddress returns the address of the deposit ledger the instance forwards to
func (c *Contract) LedgerAddress() common.Address {
	return c.ledgerAddr
}

// Owner returns the current owner
func (c *Contract) Owner() common.Address {
	return c.state.Load().Owner
}

// Paused reports whether deposits are suspended
func (c *Contract) Paused() bool {
	return c.state.Load().Paused
}

// Fee returns the per-record fee, nil in variable-amount mode
func (c *Contract) Fee() *big.Int {
	fee := c.state.Load().Fee
	if fee == nil {
		return nil
	}
	return new(big.Int).Set(fee)
}

// Balance returns the accrued fee balance pending withdrawal
func (c *Contract) Balance() *big.Int {
	return new(big.Int).Set(c.state.Load().Balance)
}

// State returns a copy of the committed state
func (c *Contract) State() *models.ContractState {
	return c.state.Load().Copy()
}

func newBatchID(req *BatchRequest) common.Hash {
	nonce := uuid.New()
	roots := make([]byte, 0, len(req.DepositDataRoots)*RootLength)
	for _, r := range req.DepositDataRoots {
		roots = append(roots, r[:]...)
	}
	return common.BytesToHash(keccak256.Hash(req.Caller.Bytes(), req.Pubkeys, req.WithdrawalCredentials[:], roots, req.Value.Bytes(), nonce[:]))
}
