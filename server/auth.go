package server

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	ownerMessagePrefix = "batch-deposit"
	signedMessageLabel = "\x19Ethereum Signed Message:\n"
)

var (
	errInvalidSignature = errors.New("invalid signature")
	errSignerMismatch   = errors.New("signature does not belong to the caller")
	errStaleRequest     = errors.New("request timestamp outside the accepted window")
	errReplayedRequest  = errors.New("request already used")
)

// OwnerMessage is the text an owner signs to authorize an owner operation.
// param is the operation argument (fee as a decimal wei amount, recipient or new owner address),
// empty when there is none.
func OwnerMessage(action, param string, timestamp int64) string {
	return strings.Join([]string{ownerMessagePrefix, action, strings.ToLower(param), strconv.FormatInt(timestamp, 10)}, ":")
}

// ownerDigest is the personal_sign digest of the message
func ownerDigest(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signedMessageLabel + strconv.Itoa(len(message)) + message))
	return h.Sum(nil)
}

// SignOwnerMessage signs the message the way a wallet's personal_sign does, with V in {27, 28}
func SignOwnerMessage(key *ecdsa.PrivateKey, message string) ([]byte, error) {
	sig, err := crypto.Sign(ownerDigest(message), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// recoverSigner returns the account that signed the message
func recoverSigner(message string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errInvalidSignature
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.Ecrecover(ownerDigest(message), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(errInvalidSignature, err.Error())
	}
	key, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return common.Address{}, errors.Wrap(errInvalidSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*key), nil
}

// verifyOwnerRequest checks the timestamp window and that the signature was made by the claimed caller
func verifyOwnerRequest(req *ownerRequest, action, param string, now time.Time, validity time.Duration) (common.Address, error) {
	if !common.IsHexAddress(req.Caller) {
		return common.Address{}, fmt.Errorf("invalid caller %q", req.Caller)
	}
	caller := common.HexToAddress(req.Caller)
	ts := time.Unix(req.Timestamp, 0)
	if validity > 0 && (ts.Before(now.Add(-validity)) || ts.After(now.Add(validity))) {
		return common.Address{}, errStaleRequest
	}
	sig, err := decodeHex(req.Signature)
	if err != nil {
		return common.Address{}, errInvalidSignature
	}
	signer, err := recoverSigner(OwnerMessage(action, param, req.Timestamp), sig)
	if err != nil {
		return common.Address{}, err
	}
	if signer != caller {
		return common.Address{}, errSignerMismatch
	}
	return caller, nil
}
