package server

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
	"github.com/stakebatch/batch-deposit-service/models"
	"github.com/stakebatch/batch-deposit-service/utils"
)

type response struct {
	Code  int         `json:"code"`
	Msg   string      `json:"msg"`
	Kind  string      `json:"kind,omitempty"`
	Index *int        `json:"index,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// depositRequest is the JSON form of a batch deposit. Byte fields are hex encoded, pubkeys and
// signatures concatenated like the contract call data. Amounts are wei, or ETH in the *Eth variants.
type depositRequest struct {
	Caller                string   `json:"caller" binding:"required"`
	Value                 string   `json:"value"`
	ValueEth              string   `json:"valueEth"`
	Pubkeys               string   `json:"pubkeys" binding:"required"`
	WithdrawalCredentials string   `json:"withdrawalCredentials" binding:"required"`
	Signatures            string   `json:"signatures" binding:"required"`
	DepositDataRoots      []string `json:"depositDataRoots" binding:"required"`
	Amounts               []string `json:"amounts"`
	AmountsEth            []string `json:"amountsEth"`
}

func (r *depositRequest) toBatchRequest() (*batchdeposit.BatchRequest, error) {
	if !common.IsHexAddress(r.Caller) {
		return nil, fmt.Errorf("invalid caller %q", r.Caller)
	}
	value, err := parseAmount(r.Value, r.ValueEth)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	req := &batchdeposit.BatchRequest{
		Caller: common.HexToAddress(r.Caller),
		Value:  value,
	}
	if req.Pubkeys, err = decodeHex(r.Pubkeys); err != nil {
		return nil, fmt.Errorf("pubkeys: %w", err)
	}
	if req.Signatures, err = decodeHex(r.Signatures); err != nil {
		return nil, fmt.Errorf("signatures: %w", err)
	}
	creds, err := decodeHex(r.WithdrawalCredentials)
	if err != nil {
		return nil, fmt.Errorf("withdrawalCredentials: %w", err)
	}
	if len(creds) != batchdeposit.CredentialsLength {
		return nil, fmt.Errorf("withdrawalCredentials: expected %d bytes, got %d", batchdeposit.CredentialsLength, len(creds))
	}
	copy(req.WithdrawalCredentials[:], creds)

	req.DepositDataRoots = make([][batchdeposit.RootLength]byte, len(r.DepositDataRoots))
	for i, s := range r.DepositDataRoots {
		root, err := decodeHex(s)
		if err != nil || len(root) != batchdeposit.RootLength {
			return nil, fmt.Errorf("depositDataRoots[%d]: expected %d hex bytes", i, batchdeposit.RootLength)
		}
		copy(req.DepositDataRoots[i][:], root)
	}

	if r.Amounts != nil && r.AmountsEth != nil {
		return nil, fmt.Errorf("amounts and amountsEth are mutually exclusive")
	}
	switch {
	case r.Amounts != nil:
		req.Amounts = make([]*big.Int, len(r.Amounts))
		for i, s := range r.Amounts {
			if req.Amounts[i], err = parseWei(s); err != nil {
				return nil, fmt.Errorf("amounts[%d]: %w", i, err)
			}
		}
	case r.AmountsEth != nil:
		req.Amounts = make([]*big.Int, len(r.AmountsEth))
		for i, s := range r.AmountsEth {
			if req.Amounts[i], err = utils.ParseEther(s); err != nil {
				return nil, fmt.Errorf("amountsEth[%d]: %w", i, err)
			}
		}
	}
	return req, nil
}

type ownerRequest struct {
	Caller    string `json:"caller" binding:"required"`
	Timestamp int64  `json:"timestamp" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	// Fee is used by the fee change, in wei, FeeEth in ETH
	Fee    string `json:"fee"`
	FeeEth string `json:"feeEth"`
	// To is the withdrawal recipient
	To string `json:"to"`
	// NewOwner is the ownership transfer target
	NewOwner string `json:"newOwner"`
}

type contractStateResponse struct {
	Mode          string `json:"mode"`
	LedgerAddress string `json:"ledgerAddress"`
	Owner         string `json:"owner"`
	Paused        bool   `json:"paused"`
	Fee           string `json:"fee,omitempty"`
	FeeEth        string `json:"feeEth,omitempty"`
	Balance       string `json:"balance"`
	BalanceEth    string `json:"balanceEth"`
}

func newContractStateResponse(mode models.Mode, ledger common.Address, state *models.ContractState) contractStateResponse {
	res := contractStateResponse{
		Mode:          mode.String(),
		LedgerAddress: ledger.Hex(),
		Owner:         state.Owner.Hex(),
		Paused:        state.Paused,
		Balance:       state.Balance.String(),
		BalanceEth:    utils.FormatEther(state.Balance),
	}
	if state.Fee != nil {
		res.Fee = state.Fee.String()
		res.FeeEth = utils.FormatEther(state.Fee)
	}
	return res
}

type batchReceiptResponse struct {
	BatchID     string    `json:"batchId"`
	Depositor   string    `json:"depositor"`
	Mode        string    `json:"mode"`
	Records     uint64    `json:"records"`
	Value       string    `json:"value"`
	Principal   string    `json:"principal"`
	FeeAccrued  string    `json:"feeAccrued"`
	ProcessedAt time.Time `json:"processedAt"`
}

func newBatchReceiptResponse(r *models.BatchReceipt) batchReceiptResponse {
	return batchReceiptResponse{
		BatchID:     r.BatchID.Hex(),
		Depositor:   r.Depositor.Hex(),
		Mode:        r.Mode.String(),
		Records:     r.Records,
		Value:       r.Value.String(),
		Principal:   r.Principal.String(),
		FeeAccrued:  r.FeeAccrued.String(),
		ProcessedAt: r.ProcessedAt,
	}
}

type withdrawResponse struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	return v, nil
}

// parseAmount accepts a wei amount or an ETH amount, not both
func parseAmount(wei, eth string) (*big.Int, error) {
	switch {
	case wei != "" && eth != "":
		return nil, fmt.Errorf("wei and ETH amounts are mutually exclusive")
	case eth != "":
		return utils.ParseEther(eth)
	case wei != "":
		return parseWei(wei)
	}
	return nil, fmt.Errorf("amount is required")
}
