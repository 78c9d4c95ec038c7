package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.Init(log.Config{
		Level:   "debug",
		Outputs: []string{"stderr"},
	})
}

func sha(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

type testDeposit struct {
	pubkey    [48]byte
	creds     [32]byte
	signature [96]byte
	amount    *big.Int
}

func newTestDeposit(seed byte, amount *big.Int) testDeposit {
	var d testDeposit
	copy(d.pubkey[:], bytes.Repeat([]byte{seed}, 48))
	d.creds[0] = 0x01
	d.creds[31] = seed
	for i := range d.signature {
		d.signature[i] = seed + byte(i)
	}
	d.amount = amount
	return d
}

func TestDepositDataRoot(t *testing.T) {
	d := newTestDeposit(7, new(big.Int).Mul(big.NewInt(32), big.NewInt(params.Ether)))

	// hash tree root of the four field container, built by hand
	zero := make([]byte, 32)
	pubkeyRoot := sha(d.pubkey[:32], append(append([]byte{}, d.pubkey[32:]...), make([]byte, 16)...))
	sigRoot := sha(sha(d.signature[:32], d.signature[32:64]), sha(d.signature[64:], zero))
	amount := make([]byte, 32)
	binary.LittleEndian.PutUint64(amount, 32_000_000_000)
	expected := sha(sha(pubkeyRoot, d.creds[:]), sha(amount, sigRoot))

	root := DepositDataRoot(d.pubkey, d.creds, d.signature, d.amount)
	require.Equal(t, expected, root[:])

	other := DepositDataRoot(d.pubkey, d.creds, d.signature, new(big.Int).Add(d.amount, big.NewInt(1e9)))
	require.NotEqual(t, root, other)
}

func TestEmptyDepositRoot(t *testing.T) {
	l := NewSimulated()
	require.Equal(t, "0xd70a234731285c6804c2a4f56711ddb8c82c99740f207854891028af34e27e5e", l.DepositRoot().Hex())
	require.Zero(t, l.DepositCount())
}

func TestDepositTreeRoot(t *testing.T) {
	// rebuild the full root from the leaves and compare it with the incremental one
	var tree depositTree
	leaves := make([][KeyLen]byte, 5)
	for i := range leaves {
		leaves[i][0] = byte(i + 1)
		require.NoError(t, tree.addLeaf(leaves[i]))
	}
	level := leaves
	for h := 0; h < TreeHeight; h++ {
		if len(level)%2 == 1 {
			level = append(level, zeroHashes[h])
		}
		next := make([][KeyLen]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hash(level[i], level[i+1]))
		}
		level = next
	}
	require.Len(t, level, 1)
	require.Equal(t, hash(level[0], lengthMixin(5)), tree.root())
}

func TestSimulatedForward(t *testing.T) {
	ctx := context.Background()
	l := NewSimulated()
	ether32 := new(big.Int).Mul(big.NewInt(32), big.NewInt(params.Ether))

	d1 := newTestDeposit(1, ether32)
	d2 := newTestDeposit(2, ether32)
	tx, err := l.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Forward(ctx, d1.pubkey, d1.creds, d1.signature, DepositDataRoot(d1.pubkey, d1.creds, d1.signature, d1.amount), d1.amount))
	require.NoError(t, tx.Forward(ctx, d2.pubkey, d2.creds, d2.signature, DepositDataRoot(d2.pubkey, d2.creds, d2.signature, d2.amount), d2.amount))
	// nothing is visible before the commit
	require.Zero(t, l.DepositCount())
	require.NoError(t, tx.Commit(ctx))
	require.Equal(t, uint64(2), l.DepositCount())
	deposits := l.Deposits()
	require.Equal(t, uint64(1), deposits[1].Index)
	require.Equal(t, d2.pubkey, deposits[1].Pubkey)
	require.ErrorIs(t, tx.Commit(ctx), ErrTxClosed)

	tx, err = l.BeginTx(ctx)
	require.NoError(t, err)
	d3 := newTestDeposit(3, ether32)
	require.NoError(t, tx.Forward(ctx, d3.pubkey, d3.creds, d3.signature, DepositDataRoot(d3.pubkey, d3.creds, d3.signature, d3.amount), d3.amount))
	require.NoError(t, tx.Rollback(ctx))
	require.Equal(t, uint64(2), l.DepositCount())
}

func TestSimulatedForwardRejects(t *testing.T) {
	ctx := context.Background()
	l := NewSimulated()
	d := newTestDeposit(1, nil)
	root := func(amount *big.Int) [32]byte {
		return DepositDataRoot(d.pubkey, d.creds, d.signature, amount)
	}
	ether := big.NewInt(params.Ether)

	tests := []struct {
		name   string
		amount *big.Int
		root   [32]byte
		err    error
	}{
		{"below one ether", big.NewInt(1e17), [32]byte{}, ErrDepositTooLow},
		{"sub gwei part", new(big.Int).Add(ether, big.NewInt(1)), [32]byte{}, ErrDepositNotMultipleOfGwei},
		{"wrong root", ether, root(new(big.Int).Mul(ether, big.NewInt(2))), ErrDepositDataRootMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := l.BeginTx(ctx)
			require.NoError(t, err)
			require.ErrorIs(t, tx.Forward(ctx, d.pubkey, d.creds, d.signature, tt.root, tt.amount), tt.err)
			require.NoError(t, tx.Rollback(ctx))
		})
	}

	hookErr := errors.New("rejected by hook")
	l.BeforeForward = func(ctx context.Context, dep Deposit) error { return hookErr }
	tx, err := l.BeginTx(ctx)
	require.NoError(t, err)
	require.ErrorIs(t, tx.Forward(ctx, d.pubkey, d.creds, d.signature, root(ether), ether), hookErr)
}

func TestSimulatedTransfer(t *testing.T) {
	ctx := context.Background()
	l := NewSimulated()
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, l.Transfer(ctx, to, big.NewInt(10)))
	require.NoError(t, l.Transfer(ctx, to, big.NewInt(5)))
	assert.Equal(t, int64(15), l.BalanceOf(to).Int64())

	l.BeforeTransfer = func(ctx context.Context, to common.Address, amount *big.Int) error {
		return errors.New("recipient reverted")
	}
	require.Error(t, l.Transfer(ctx, to, big.NewInt(1)))
	assert.Equal(t, int64(15), l.BalanceOf(to).Int64())
}
