package server

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerMessage(t *testing.T) {
	assert.Equal(t, "batch-deposit:withdraw:0xabcdef:1700000000", OwnerMessage("withdraw", "0xABCDEF", 1700000000))
	assert.Equal(t, "batch-deposit:pause::1", OwnerMessage("pause", "", 1))
}

func TestRecoverSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	msg := OwnerMessage("pause", "", 42)

	sig, err := SignOwnerMessage(key, msg)
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, sig[crypto.RecoveryIDOffset])

	signer, err := recoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	// recovery ids 0/1 are accepted as well
	sig[crypto.RecoveryIDOffset] -= 27
	signer, err = recoverSigner(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	_, err = recoverSigner(msg, sig[:64])
	assert.True(t, errors.Is(err, errInvalidSignature))
}

func TestVerifyOwnerRequestWindow(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)
	sign := func(ts int64) *ownerRequest {
		sig, err := SignOwnerMessage(key, OwnerMessage("pause", "", ts))
		require.NoError(t, err)
		return &ownerRequest{Caller: crypto.PubkeyToAddress(key.PublicKey).Hex(), Timestamp: ts, Signature: hexutil.Encode(sig)}
	}

	_, err = verifyOwnerRequest(sign(now.Unix()-30), "pause", "", now, time.Minute)
	require.NoError(t, err)
	_, err = verifyOwnerRequest(sign(now.Unix()+120), "pause", "", now, time.Minute)
	require.ErrorIs(t, err, errStaleRequest)
	// no window configured
	_, err = verifyOwnerRequest(sign(1), "pause", "", now, 0)
	require.NoError(t, err)

	req := sign(now.Unix())
	req.Caller = "not an address"
	_, err = verifyOwnerRequest(req, "pause", "", now, time.Minute)
	require.Error(t, err)
}
