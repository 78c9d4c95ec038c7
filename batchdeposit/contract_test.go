package batchdeposit_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
	"github.com/stakebatch/batch-deposit-service/db/boltstorage"
	"github.com/stakebatch/batch-deposit-service/ledger"
	"github.com/stakebatch/batch-deposit-service/models"
	"github.com/stakebatch/batch-deposit-service/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.Init(log.Config{
		Level:   "debug",
		Outputs: []string{"stderr"},
	})
}

var (
	deployer      = common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9")
	depositor     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	stranger      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	treasury      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	ledgerAddress = common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa")
	fixedTime     = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether))
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (n *recordingNotifier) PushEvents(ctx context.Context, events []models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return n.err
}

func (n *recordingNotifier) ofType(t models.EventType) []models.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var res []models.Event
	for _, e := range n.events {
		if e.Type == t {
			res = append(res, e)
		}
	}
	return res
}

// faultyStorage fails the receipt write when failReceipts is set
type faultyStorage struct {
	*boltstorage.BoltStorage
	failReceipts bool
}

func (s *faultyStorage) BeginStateTx(ctx context.Context) (models.StateTx, error) {
	tx, err := s.BoltStorage.BeginStateTx(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{StateTx: tx, fail: s.failReceipts}, nil
}

type faultyTx struct {
	models.StateTx
	fail bool
}

func (tx *faultyTx) AddBatchReceipt(ctx context.Context, receipt *models.BatchReceipt) error {
	if tx.fail {
		return errors.New("disk full")
	}
	return tx.StateTx.AddBatchReceipt(ctx, receipt)
}

type testEnv struct {
	contract *batchdeposit.Contract
	ledger   *ledger.Simulated
	store    *faultyStorage
	notifier *recordingNotifier
	dbPath   string
}

func newTestEnv(t *testing.T, initialFee *big.Int) *testEnv {
	dbPath := filepath.Join(t.TempDir(), "batchdeposit.db")
	store, err := boltstorage.NewBoltStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	env := &testEnv{
		ledger:   ledger.NewSimulated(),
		store:    &faultyStorage{BoltStorage: store},
		notifier: &recordingNotifier{},
		dbPath:   dbPath,
	}
	env.contract, err = batchdeposit.NewContract(context.Background(), deployment(initialFee), env.store, env.ledger, env.ledger, env.notifier,
		batchdeposit.WithTimeProvider(utils.TimeProviderFixedTime{FixedTime: fixedTime}))
	require.NoError(t, err)
	return env
}

func deployment(initialFee *big.Int) batchdeposit.Deployment {
	return batchdeposit.Deployment{
		Deployer:      deployer,
		LedgerAddress: ledgerAddress,
		InitialFee:    initialFee,
	}
}

// newRequest builds n records whose roots commit to the given amounts. A nil amounts
// slice builds a fixed-fee request of 32 ETH records.
func newRequest(n int, amounts []*big.Int, value *big.Int) *batchdeposit.BatchRequest {
	req := &batchdeposit.BatchRequest{
		Caller:           depositor,
		Value:            value,
		DepositDataRoots: make([][batchdeposit.RootLength]byte, n),
		Amounts:          amounts,
	}
	req.WithdrawalCredentials[0] = 0x01
	copy(req.WithdrawalCredentials[12:], depositor.Bytes())
	for i := 0; i < n; i++ {
		var (
			pubkey [batchdeposit.PubkeyLength]byte
			sig    [batchdeposit.SignatureLength]byte
		)
		copy(pubkey[:], bytes.Repeat([]byte{byte(i), byte(i >> 8), 0xaa}, batchdeposit.PubkeyLength/3))
		copy(sig[:], bytes.Repeat([]byte{byte(i), 0xbb}, batchdeposit.SignatureLength/2))
		req.Pubkeys = append(req.Pubkeys, pubkey[:]...)
		req.Signatures = append(req.Signatures, sig[:]...)
		amount := batchdeposit.MinDepositAmount
		if amounts != nil {
			amount = amounts[i]
		}
		req.DepositDataRoots[i] = ledger.DepositDataRoot(pubkey, req.WithdrawalCredentials, sig, amount)
	}
	return req
}

func fixedValue(n int64, fee *big.Int) *big.Int {
	v := new(big.Int).Mul(big.NewInt(n), batchdeposit.MinDepositAmount)
	return v.Add(v, new(big.Int).Mul(big.NewInt(n), fee))
}

func TestNewContractDeploys(t *testing.T) {
	env := newTestEnv(t, gwei(1))
	c := env.contract
	assert.Equal(t, models.ModeFixedFee, c.Mode())
	assert.Equal(t, ledgerAddress, c.LedgerAddress())
	assert.Equal(t, deployer, c.Owner())
	assert.False(t, c.Paused())
	assert.Equal(t, gwei(1).String(), c.Fee().String())
	assert.Zero(t, c.Balance().Sign())

	// getters hand out copies
	c.Fee().SetInt64(7)
	c.Balance().SetInt64(7)
	assert.Equal(t, gwei(1).String(), c.Fee().String())
	assert.Zero(t, c.Balance().Sign())

	variable := newTestEnv(t, nil)
	assert.Equal(t, models.ModeVariableAmount, variable.contract.Mode())
	assert.Nil(t, variable.contract.Fee())
}

func TestNewContractInvalidDeployment(t *testing.T) {
	store, err := boltstorage.NewBoltStorage(filepath.Join(t.TempDir(), "batchdeposit.db"))
	require.NoError(t, err)
	defer store.Close()
	l := ledger.NewSimulated()

	_, err = batchdeposit.NewContract(context.Background(), batchdeposit.Deployment{LedgerAddress: ledgerAddress}, store, l, l, nil)
	require.ErrorIs(t, err, batchdeposit.ErrInvalidArgument)

	_, err = batchdeposit.NewContract(context.Background(), deployment(big.NewInt(-1)), store, l, l, nil)
	require.ErrorIs(t, err, batchdeposit.ErrInvalidArgument)
}

func TestNewContractRestoresState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, gwei(5))
	_, err := env.contract.BatchDeposit(ctx, newRequest(2, nil, fixedValue(2, gwei(5))))
	require.NoError(t, err)
	require.NoError(t, env.contract.Pause(ctx, deployer))

	// a second instance on the same storage resumes where the first one stopped
	restored, err := batchdeposit.NewContract(ctx, deployment(gwei(99)), env.store, env.ledger, env.ledger, nil)
	require.NoError(t, err)
	assert.True(t, restored.Paused())
	assert.Equal(t, gwei(10).String(), restored.Balance().String())
	assert.Equal(t, gwei(5).String(), restored.Fee().String())

	_, err = batchdeposit.NewContract(ctx, deployment(nil), env.store, env.ledger, env.ledger, nil)
	require.Error(t, err)
}

// 100 records at a 1 gwei fee: every record forwarded with 32 ETH, 100 gwei accrued
func TestBatchDepositFixedFee(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, gwei(1))

	const n = 100
	req := newRequest(n, nil, fixedValue(n, gwei(1)))
	receipt, err := env.contract.BatchDeposit(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, uint64(n), env.ledger.DepositCount())
	deposits := env.ledger.Deposits()
	for i, d := range deposits {
		assert.Equal(t, uint64(i), d.Index)
		assert.Equal(t, req.Pubkeys[i*batchdeposit.PubkeyLength:(i+1)*batchdeposit.PubkeyLength], d.Pubkey[:])
		assert.Equal(t, batchdeposit.MinDepositAmount.String(), d.Amount.String())
	}
	assert.Equal(t, gwei(100).String(), env.contract.Balance().String())

	assert.Equal(t, depositor, receipt.Depositor)
	assert.Equal(t, uint64(n), receipt.Records)
	assert.Equal(t, gwei(100).String(), receipt.FeeAccrued.String())
	assert.Equal(t, ether(3200).String(), receipt.Principal.String())
	assert.Equal(t, fixedTime, receipt.ProcessedAt)

	forwarded := env.notifier.ofType(models.EventDepositForwarded)
	require.Len(t, forwarded, n)
	assert.Equal(t, uint64(42), *forwarded[42].Index)
	collected := env.notifier.ofType(models.EventFeeCollected)
	require.Len(t, collected, 1)
	assert.Equal(t, gwei(100).String(), collected[0].Amount.String())

	stored, err := env.store.GetBatchReceipt(ctx, receipt.BatchID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Value.String(), stored.Value.String())
}

// 32, 64 and 128 ETH records funded with exactly 224 ETH, nothing accrued
func TestBatchDepositVariableAmount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	amounts := []*big.Int{ether(32), ether(64), ether(128)}
	receipt, err := env.contract.BatchDeposit(ctx, newRequest(3, amounts, ether(224)))
	require.NoError(t, err)

	deposits := env.ledger.Deposits()
	require.Len(t, deposits, 3)
	for i, d := range deposits {
		assert.Equal(t, amounts[i].String(), d.Amount.String())
	}
	assert.Zero(t, env.contract.Balance().Sign())
	assert.Zero(t, receipt.FeeAccrued.Sign())
	assert.Len(t, env.notifier.ofType(models.EventDepositForwarded), 3)
	assert.Empty(t, env.notifier.ofType(models.EventFeeCollected))
}

func TestBatchDepositFunding(t *testing.T) {
	fee := gwei(1)
	tests := []struct {
		name  string
		value *big.Int
		err   error
	}{
		// less than 32 ETH per record
		{"below the floor", ether(10), batchdeposit.ErrInsufficientFunding},
		{"nil value", nil, batchdeposit.ErrInsufficientFunding},
		// the principal is covered but the value is not exactly principal plus fees
		{"fee missing", ether(96), batchdeposit.ErrFeeExpected},
		{"one wei too much", new(big.Int).Add(fixedValue(3, fee), big.NewInt(1)), batchdeposit.ErrFeeExpected},
		{"one wei short", new(big.Int).Sub(fixedValue(3, fee), big.NewInt(1)), batchdeposit.ErrFeeExpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, fee)
			_, err := env.contract.BatchDeposit(context.Background(), newRequest(3, nil, tt.value))
			require.ErrorIs(t, err, tt.err)
			assert.Zero(t, env.ledger.DepositCount())
			assert.Zero(t, env.contract.Balance().Sign())
			assert.Empty(t, env.notifier.events)
		})
	}
}

func TestBatchDepositVariableBounds(t *testing.T) {
	one := big.NewInt(1)
	tests := []struct {
		name   string
		amount *big.Int
		err    error
	}{
		{"minimum", ether(32), nil},
		{"below minimum", new(big.Int).Sub(ether(32), one), batchdeposit.ErrAmountOutOfRange},
		{"maximum", ether(2048), nil},
		{"above maximum", new(big.Int).Add(ether(2048), one), batchdeposit.ErrAmountOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			amounts := []*big.Int{ether(32), tt.amount}
			value := new(big.Int).Add(ether(32), tt.amount)
			_, err := env.contract.BatchDeposit(context.Background(), newRequest(2, amounts, value))
			if tt.err == nil {
				require.NoError(t, err)
				assert.Equal(t, uint64(2), env.ledger.DepositCount())
				return
			}
			require.ErrorIs(t, err, tt.err)
			var e *batchdeposit.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, 1, e.Index)
			assert.Zero(t, env.ledger.DepositCount())
		})
	}
}

func TestBatchDepositVariableMisalignment(t *testing.T) {
	env := newTestEnv(t, nil)
	amounts := []*big.Int{ether(32), ether(64)}
	_, err := env.contract.BatchDeposit(context.Background(), newRequest(2, amounts, ether(100)))
	require.ErrorIs(t, err, batchdeposit.ErrAmountExact)
}

func TestBatchDepositModeShape(t *testing.T) {
	ctx := context.Background()
	fixed := newTestEnv(t, gwei(1))
	req := newRequest(1, []*big.Int{ether(32)}, fixedValue(1, gwei(1)))
	_, err := fixed.contract.BatchDeposit(ctx, req)
	require.ErrorIs(t, err, batchdeposit.ErrMalformedBatch)

	variable := newTestEnv(t, nil)
	_, err = variable.contract.BatchDeposit(ctx, newRequest(1, nil, ether(32)))
	require.ErrorIs(t, err, batchdeposit.ErrMalformedBatch)

	_, err = variable.contract.BatchDeposit(ctx, &batchdeposit.BatchRequest{Caller: depositor, Value: ether(32)})
	require.ErrorIs(t, err, batchdeposit.ErrMalformedBatch)
}

// amounts swapped after the roots were computed: the ledger refuses and nothing is applied
func TestBatchDepositLedgerRejects(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	req := newRequest(3, []*big.Int{ether(32), ether(64), ether(128)}, ether(224))
	// same total, amounts no longer match the roots
	req.Amounts = []*big.Int{ether(64), ether(32), ether(128)}
	_, err := env.contract.BatchDeposit(ctx, req)
	require.ErrorIs(t, err, batchdeposit.ErrDepositLedgerRejected)
	require.ErrorIs(t, err, ledger.ErrDepositDataRootMismatch)
	var e *batchdeposit.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 0, e.Index)

	assert.Zero(t, env.ledger.DepositCount())
	assert.Empty(t, env.notifier.events)
	receipts, err := env.store.GetBatchReceipts(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, receipts)
}

func TestBatchDepositRollsBackEarlierRecords(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, gwei(1))
	rejected := errors.New("pubkey already used")
	calls := 0
	env.ledger.BeforeForward = func(ctx context.Context, d ledger.Deposit) error {
		calls++
		if calls == 3 {
			return rejected
		}
		return nil
	}

	_, err := env.contract.BatchDeposit(ctx, newRequest(4, nil, fixedValue(4, gwei(1))))
	require.ErrorIs(t, err, rejected)
	var e *batchdeposit.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, batchdeposit.KindDepositLedgerRejected, e.Kind)
	assert.Equal(t, 2, e.Index)
	assert.Equal(t, 3, calls)
	assert.Zero(t, env.ledger.DepositCount())
	assert.Zero(t, env.contract.Balance().Sign())
}

func TestBatchDepositStorageFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, gwei(1))
	env.store.failReceipts = true

	_, err := env.contract.BatchDeposit(ctx, newRequest(2, nil, fixedValue(2, gwei(1))))
	require.Error(t, err)
	assert.Zero(t, env.ledger.DepositCount())
	assert.Zero(t, env.contract.Balance().Sign())

	state, err := env.store.GetContractState(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.Balance.Sign())

	env.store.failReceipts = false
	_, err = env.contract.BatchDeposit(ctx, newRequest(2, nil, fixedValue(2, gwei(1))))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), env.ledger.DepositCount())
}

func TestBatchDepositWhilePaused(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, gwei(1))
	require.NoError(t, env.contract.Pause(ctx, deployer))

	_, err := env.contract.BatchDeposit(ctx, newRequest(1, nil, fixedValue(1, gwei(1))))
	require.ErrorIs(t, err, batchdeposit.ErrOperationSuspended)
	// the pause check comes before decoding
	_, err = env.contract.BatchDeposit(ctx, &batchdeposit.BatchRequest{})
	require.ErrorIs(t, err, batchdeposit.ErrOperationSuspended)

	require.NoError(t, env.contract.Unpause(ctx, deployer))
	_, err = env.contract.BatchDeposit(ctx, newRequest(1, nil, fixedValue(1, gwei(1))))
	require.NoError(t, err)
}

func TestBatchDepositReentrancy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, gwei(1))
	var reentryErrs []error
	env.ledger.BeforeForward = func(ctx context.Context, d ledger.Deposit) error {
		_, err := env.contract.Withdraw(ctx, deployer, treasury)
		reentryErrs = append(reentryErrs, err)
		reentryErrs = append(reentryErrs, env.contract.Pause(ctx, deployer))
		return nil
	}

	_, err := env.contract.BatchDeposit(ctx, newRequest(2, nil, fixedValue(2, gwei(1))))
	require.NoError(t, err)
	require.Len(t, reentryErrs, 4)
	for _, err := range reentryErrs {
		require.ErrorIs(t, err, batchdeposit.ErrReentrantCall)
	}
	assert.False(t, env.contract.Paused())
	assert.Equal(t, gwei(2).String(), env.contract.Balance().String())
	assert.Zero(t, env.ledger.BalanceOf(treasury).Sign())
}

func TestBatchDepositCallbackWithUnrelatedContext(t *testing.T) {
	env := newTestEnv(t, gwei(1))
	var callbackErr error
	env.ledger.BeforeForward = func(context.Context, ledger.Deposit) error {
		// a fresh context does not carry the running operation, so the call waits for it
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		callbackErr = env.contract.Pause(ctx, deployer)
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := env.contract.BatchDeposit(context.Background(), newRequest(1, nil, fixedValue(1, gwei(1))))
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch deposit did not return")
	}
	require.ErrorIs(t, callbackErr, context.DeadlineExceeded)
	assert.False(t, env.contract.Paused())

	// the contract is usable afterwards
	env.ledger.BeforeForward = nil
	require.NoError(t, env.contract.Pause(context.Background(), deployer))
}

func TestOperationWaitsForRunningOne(t *testing.T) {
	env := newTestEnv(t, gwei(1))
	release := make(chan struct{})
	started := make(chan struct{})
	env.ledger.BeforeForward = func(context.Context, ledger.Deposit) error {
		close(started)
		<-release
		return nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := env.contract.BatchDeposit(context.Background(), newRequest(1, nil, fixedValue(1, gwei(1))))
		done <- err
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, env.contract.Pause(ctx, deployer), context.Canceled)

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, env.contract.Pause(context.Background(), deployer))
}

func TestBatchDepositConcurrent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, gwei(3))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.contract.BatchDeposit(ctx, newRequest(n, nil, fixedValue(int64(n), gwei(3))))
			errs <- err
		}(i%3 + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// 1+2+3+1+2+3+1+2 records
	assert.Equal(t, uint64(15), env.ledger.DepositCount())
	assert.Equal(t, gwei(45).String(), env.contract.Balance().String())
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t, gwei(1))
	env.notifier.err = errors.New("broker down")

	_, err := env.contract.BatchDeposit(context.Background(), newRequest(1, nil, fixedValue(1, gwei(1))))
	require.NoError(t, err)
	assert.Equal(t, gwei(1).String(), env.contract.Balance().String())
}
