package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stakebatch/batch-deposit-service/server"
)

const defaultTimeout = 30 * time.Second

// RestClient is a client for the rest api.
type RestClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time

	// the server refuses a repeated owner request, so every one gets a later timestamp
	mu     sync.Mutex
	lastTs int64
}

// NewRestClient creates new rest api client.
func NewRestClient(url string) *RestClient {
	return &RestClient{
		baseURL:    url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		now:        time.Now,
	}
}

// APIError is a non 2xx answer of the API
type APIError struct {
	Status int
	Code   int
	Kind   string
	Index  *int
	Msg    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("status %d: %s: %s", e.Status, e.Kind, e.Msg)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Msg)
}

type envelope struct {
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Kind  string          `json:"kind"`
	Index *int            `json:"index"`
	Data  json.RawMessage `json:"data"`
}

// ContractState is the public state of the contract
type ContractState struct {
	Mode          string `json:"mode"`
	LedgerAddress string `json:"ledgerAddress"`
	Owner         string `json:"owner"`
	Paused        bool   `json:"paused"`
	Fee           string `json:"fee"`
	FeeEth        string `json:"feeEth"`
	Balance       string `json:"balance"`
	BalanceEth    string `json:"balanceEth"`
}

// BatchReceipt is the history entry of an accepted batch
type BatchReceipt struct {
	BatchID     string    `json:"batchId"`
	Depositor   string    `json:"depositor"`
	Mode        string    `json:"mode"`
	Records     uint64    `json:"records"`
	Value       string    `json:"value"`
	Principal   string    `json:"principal"`
	FeeAccrued  string    `json:"feeAccrued"`
	ProcessedAt time.Time `json:"processedAt"`
}

// DepositRequest is a batch deposit. Pubkeys and signatures are concatenated.
type DepositRequest struct {
	Caller                common.Address
	Value                 *big.Int
	Pubkeys               []byte
	WithdrawalCredentials [32]byte
	Signatures            []byte
	DepositDataRoots      [][32]byte
	// Amounts is nil in fixed-fee mode
	Amounts []*big.Int
}

// Withdrawal is the outcome of a withdraw call
type Withdrawal struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// GetVersion returns the version of the service.
func (c *RestClient) GetVersion(ctx context.Context) (string, error) {
	var version string
	err := c.do(ctx, http.MethodGet, "/api/v1/version", nil, &version)
	return version, err
}

// GetContract returns the contract state.
func (c *RestClient) GetContract(ctx context.Context) (*ContractState, error) {
	var state ContractState
	if err := c.do(ctx, http.MethodGet, "/api/v1/contract", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// BatchDeposit submits a batch.
func (c *RestClient) BatchDeposit(ctx context.Context, req DepositRequest) (*BatchReceipt, error) {
	roots := make([]string, len(req.DepositDataRoots))
	for i := range req.DepositDataRoots {
		roots[i] = hexutil.Encode(req.DepositDataRoots[i][:])
	}
	body := map[string]interface{}{
		"caller":                req.Caller.Hex(),
		"pubkeys":               hexutil.Encode(req.Pubkeys),
		"withdrawalCredentials": hexutil.Encode(req.WithdrawalCredentials[:]),
		"signatures":            hexutil.Encode(req.Signatures),
		"depositDataRoots":      roots,
	}
	if req.Value != nil {
		body["value"] = req.Value.String()
	}
	if req.Amounts != nil {
		amounts := make([]string, len(req.Amounts))
		for i, a := range req.Amounts {
			amounts[i] = a.String()
		}
		body["amounts"] = amounts
	}
	var receipt BatchReceipt
	if err := c.do(ctx, http.MethodPost, "/api/v1/deposits", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetBatch returns a batch receipt by ID.
func (c *RestClient) GetBatch(ctx context.Context, batchID common.Hash) (*BatchReceipt, error) {
	var receipt BatchReceipt
	if err := c.do(ctx, http.MethodGet, "/api/v1/batches/"+batchID.Hex(), nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetBatches returns the batch receipts, newest first, optionally filtered by depositor.
func (c *RestClient) GetBatches(ctx context.Context, depositor *common.Address, offset, limit uint) ([]BatchReceipt, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatUint(uint64(offset), 10))
	q.Set("limit", strconv.FormatUint(uint64(limit), 10))
	if depositor != nil {
		q.Set("depositor", depositor.Hex())
	}
	var receipts []BatchReceipt
	err := c.do(ctx, http.MethodGet, "/api/v1/batches?"+q.Encode(), nil, &receipts)
	return receipts, err
}

// Pause suspends the deposits.
func (c *RestClient) Pause(ctx context.Context, key *ecdsa.PrivateKey) error {
	return c.owner(ctx, key, "/pause", "pause", "", nil, nil)
}

// Unpause resumes the deposits.
func (c *RestClient) Unpause(ctx context.Context, key *ecdsa.PrivateKey) error {
	return c.owner(ctx, key, "/unpause", "unpause", "", nil, nil)
}

// ChangeFee sets the per-record fee in wei.
func (c *RestClient) ChangeFee(ctx context.Context, key *ecdsa.PrivateKey, fee *big.Int) (*ContractState, error) {
	var state ContractState
	err := c.owner(ctx, key, "/fee", "changeFee", fee.String(), map[string]interface{}{"fee": fee.String()}, &state)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Withdraw sends the accrued balance to the recipient.
func (c *RestClient) Withdraw(ctx context.Context, key *ecdsa.PrivateKey, to common.Address) (*big.Int, error) {
	var w Withdrawal
	if err := c.owner(ctx, key, "/withdraw", "withdraw", to.Hex(), map[string]interface{}{"to": to.Hex()}, &w); err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(w.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid withdrawn amount %q", w.Amount)
	}
	return amount, nil
}

// TransferOwnership hands the contract over to newOwner.
func (c *RestClient) TransferOwnership(ctx context.Context, key *ecdsa.PrivateKey, newOwner common.Address) error {
	return c.owner(ctx, key, "/ownership", "transferOwnership", newOwner.Hex(), map[string]interface{}{"newOwner": newOwner.Hex()}, nil)
}

// RenounceOwnership is always refused by the contract, it is exposed for completeness.
func (c *RestClient) RenounceOwnership(ctx context.Context, key *ecdsa.PrivateKey) error {
	return c.owner(ctx, key, "/renounce", "renounceOwnership", "", nil, nil)
}

func (c *RestClient) nextTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().Unix()
	if ts <= c.lastTs {
		ts = c.lastTs + 1
	}
	c.lastTs = ts
	return ts
}

func (c *RestClient) owner(ctx context.Context, key *ecdsa.PrivateKey, path, action, param string, body map[string]interface{}, out interface{}) error {
	ts := c.nextTimestamp()
	sig, err := server.SignOwnerMessage(key, server.OwnerMessage(action, param, ts))
	if err != nil {
		return errors.Wrap(err, "signing owner request")
	}
	if body == nil {
		body = make(map[string]interface{})
	}
	body["caller"] = crypto.PubkeyToAddress(key.PublicKey).Hex()
	body["timestamp"] = ts
	body["signature"] = hexutil.Encode(sig)
	return c.do(ctx, http.MethodPost, "/api/v1/owner"+path, body, out)
}

func (c *RestClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return errors.Wrapf(err, "decoding response of %s %s", method, path)
	}
	if resp.StatusCode/100 != 2 { //nolint:gomnd
		return &APIError{Status: resp.StatusCode, Code: env.Code, Kind: env.Kind, Index: env.Index, Msg: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
