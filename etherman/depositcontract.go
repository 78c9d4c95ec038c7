package etherman

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
)

// DepositContractABI is the subset of the beacon chain deposit contract interface used by the service
const DepositContractABI = `[
	{"inputs":[{"internalType":"bytes","name":"pubkey","type":"bytes"},{"internalType":"bytes","name":"withdrawal_credentials","type":"bytes"},{"internalType":"bytes","name":"signature","type":"bytes"},{"internalType":"bytes32","name":"deposit_data_root","type":"bytes32"}],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[],"name":"get_deposit_root","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

const depositMethod = "deposit"

// Client forwards deposits to the on-chain deposit contract and pays withdrawals from the configured account
type Client struct {
	backend  bind.ContractBackend
	address  common.Address
	contract *bind.BoundContract
	abi      abi.ABI
	gasLimit uint64

	// auth is shared by every transaction, mu keeps the nonces in order
	mu   sync.Mutex
	auth *bind.TransactOpts
}

// NewClient dials the node and loads the signing key from the keystore
func NewClient(ctx context.Context, cfg Config, depositContract common.Address) (*Client, error) {
	ethClient, err := ethclient.DialContext(ctx, cfg.L1URL)
	if err != nil {
		log.Errorf("error connecting to %s: %+v", cfg.L1URL, err)
		return nil, err
	}
	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting chain id")
	}
	if cfg.L1ChainID != 0 && chainID.Uint64() != cfg.L1ChainID {
		return nil, fmt.Errorf("node at %s is on chain %d, configured %d", cfg.L1URL, chainID, cfg.L1ChainID)
	}
	auth, err := NewAuthFromKeystore(cfg.PrivateKeyPath, cfg.PrivateKeyPassword, chainID)
	if err != nil {
		return nil, err
	}
	return NewClientWithBackend(ethClient, depositContract, auth, cfg.GasLimit)
}

// NewClientWithBackend creates a client on top of an existing backend
func NewClientWithBackend(backend bind.ContractBackend, depositContract common.Address, auth *bind.TransactOpts, gasLimit uint64) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(DepositContractABI))
	if err != nil {
		return nil, err
	}
	return &Client{
		backend:  backend,
		address:  depositContract,
		contract: bind.NewBoundContract(depositContract, parsed, backend, backend, backend),
		abi:      parsed,
		gasLimit: gasLimit,
		auth:     auth,
	}, nil
}

// NewAuthFromKeystore returns a transaction signer from the keystore file.
func NewAuthFromKeystore(path, password string, chainID *big.Int) (*bind.TransactOpts, error) {
	keystoreEncrypted, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(keystoreEncrypted, password)
	if err != nil {
		return nil, err
	}
	return bind.NewKeyedTransactorWithChainID(key.PrivateKey, chainID)
}

// Account returns the address signing the transactions
func (c *Client) Account() common.Address {
	return c.auth.From
}

// BeginTx opens a batch of deposits
func (c *Client) BeginTx(ctx context.Context) (batchdeposit.LedgerTx, error) {
	return &depositTx{client: c}, nil
}

// Transfer sends a plain value transfer to the account
func (c *Client) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	recipient := bind.NewBoundContract(to, abi.ABI{}, c.backend, c.backend, c.backend)
	tx, err := recipient.Transfer(c.opts(ctx, amount))
	if err != nil {
		return errors.Wrap(err, "sending transfer")
	}
	log.Infof("transfer of %s wei to %s sent: tx[%s]", amount, to.Hex(), tx.Hash().Hex())
	return nil
}

func (c *Client) opts(ctx context.Context, value *big.Int) *bind.TransactOpts {
	return &bind.TransactOpts{
		From:     c.auth.From,
		Signer:   c.auth.Signer,
		Value:    value,
		GasLimit: c.gasLimit,
		Context:  ctx,
	}
}

// PartialCommitError is returned by a commit that failed after some deposits were sent.
// The first Sent deposits of the batch are on chain and the contract recorded none of them.
type PartialCommitError struct {
	Sent  int
	Total int
	Err   error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("deposit %d of %d failed after %d deposits were sent: %v", e.Sent+1, e.Total, e.Sent, e.Err)
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

type stagedDeposit struct {
	pubkey    [batchdeposit.PubkeyLength]byte
	creds     [batchdeposit.CredentialsLength]byte
	signature [batchdeposit.SignatureLength]byte
	root      [batchdeposit.RootLength]byte
	amount    *big.Int
}

// depositTx dry runs every deposit against the pending state and only sends them on commit.
// A commit interrupted halfway leaves the already sent deposits on chain.
type depositTx struct {
	client *Client
	staged []stagedDeposit
	closed bool
}

func (tx *depositTx) Forward(ctx context.Context, pubkey [batchdeposit.PubkeyLength]byte, withdrawalCredentials [batchdeposit.CredentialsLength]byte, signature [batchdeposit.SignatureLength]byte, depositDataRoot [batchdeposit.RootLength]byte, amount *big.Int) error {
	if tx.closed {
		return errors.New("deposit tx already closed")
	}
	c := tx.client
	data, err := c.abi.Pack(depositMethod, pubkey[:], withdrawalCredentials[:], signature[:], depositDataRoot)
	if err != nil {
		return errors.Wrap(err, "packing deposit call")
	}
	msg := ethereum.CallMsg{
		From:  c.auth.From,
		To:    &c.address,
		Value: amount,
		Data:  data,
	}
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "deposit call reverted")
	}
	tx.staged = append(tx.staged, stagedDeposit{
		pubkey:    pubkey,
		creds:     withdrawalCredentials,
		signature: signature,
		root:      depositDataRoot,
		amount:    new(big.Int).Set(amount),
	})
	return nil
}

func (tx *depositTx) Commit(ctx context.Context) error {
	if tx.closed {
		return errors.New("deposit tx already closed")
	}
	tx.closed = true
	c := tx.client
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range tx.staged {
		sent, err := c.contract.Transact(c.opts(ctx, d.amount), depositMethod, d.pubkey[:], d.creds[:], d.signature[:], d.root)
		if err != nil {
			if i > 0 {
				partial := &PartialCommitError{Sent: i, Total: len(tx.staged), Err: err}
				log.Errorf("CRITICAL: %v", partial)
				return partial
			}
			return errors.Wrapf(err, "sending deposit %d", i)
		}
		log.Infof("deposit %d of %d sent: pubkey[%s] tx[%s]", i+1, len(tx.staged), common.Bytes2Hex(d.pubkey[:]), sent.Hash().Hex())
	}
	return nil
}

func (tx *depositTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return errors.New("deposit tx already closed")
	}
	tx.closed = true
	tx.staged = nil
	return nil
}

// DepositRoot reads the deposit root of the contract
func (c *Client) DepositRoot(ctx context.Context) (common.Hash, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "get_deposit_root"); err != nil {
		return common.Hash{}, err
	}
	root, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected get_deposit_root output %T", out[0])
	}
	return root, nil
}
