package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/karalabe/ssz"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
)

// KeyLen is the length of a tree node
const KeyLen = 32

// TreeHeight is the depth of the deposit tree
const TreeHeight = 32

// gwei is the amount unit of the deposit ledger
var gwei = big.NewInt(1e9) //nolint:gomnd

// DepositData is the message a deposit data root commits to
type DepositData struct {
	Pubkey                [batchdeposit.PubkeyLength]byte
	WithdrawalCredentials [batchdeposit.CredentialsLength]byte
	Amount                uint64
	Signature             [batchdeposit.SignatureLength]byte
}

// SizeSSZ returns the encoded size of the static object
func (d *DepositData) SizeSSZ() uint32 { return 184 }

// DefineSSZ defines the field layout of the object
func (d *DepositData) DefineSSZ(codec *ssz.Codec) {
	ssz.DefineStaticBytes(codec, &d.Pubkey)                // Field (0) - Pubkey                - 48 bytes
	ssz.DefineStaticBytes(codec, &d.WithdrawalCredentials) // Field (1) - WithdrawalCredentials - 32 bytes
	ssz.DefineUint64(codec, &d.Amount)                     // Field (2) - Amount                -  8 bytes
	ssz.DefineStaticBytes(codec, &d.Signature)             // Field (3) - Signature             - 96 bytes
}

// DepositDataRoot computes the hash tree root of a deposit. amount is in wei and has to be
// a whole number of gwei.
func DepositDataRoot(pubkey [batchdeposit.PubkeyLength]byte, withdrawalCredentials [batchdeposit.CredentialsLength]byte, signature [batchdeposit.SignatureLength]byte, amount *big.Int) [KeyLen]byte {
	data := &DepositData{
		Pubkey:                pubkey,
		WithdrawalCredentials: withdrawalCredentials,
		Amount:                new(big.Int).Div(amount, gwei).Uint64(),
		Signature:             signature,
	}
	return ssz.HashSequential(data)
}

func hash(data ...[KeyLen]byte) [KeyLen]byte {
	var res [KeyLen]byte
	h := sha256.New()
	for _, d := range data {
		h.Write(d[:]) //nolint:errcheck,gosec
	}
	copy(res[:], h.Sum(nil))
	return res
}

// HashZero is an empty hash
var HashZero = [KeyLen]byte{}

func generateZeroHashes(height uint8) [][KeyLen]byte {
	var zeroHashes = [][KeyLen]byte{
		HashZero,
	}
	for i := 1; i <= int(height); i++ {
		zeroHashes = append(zeroHashes, hash(zeroHashes[i-1], zeroHashes[i-1]))
	}
	return zeroHashes
}

// lengthMixin is the little endian deposit count padded to a node
func lengthMixin(count uint64) [KeyLen]byte {
	var res [KeyLen]byte
	binary.LittleEndian.PutUint64(res[:8], count)
	return res
}
