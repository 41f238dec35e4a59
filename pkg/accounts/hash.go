package accounts

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/fortiblox/seashell/internal/types"
)

// ComputeAccountHash digests a single account together with its address:
// SHA256(lamports || rent_epoch || data || executable || owner || pubkey).
//
// The execution journal records these digests for the accounts an
// instruction left behind, so two runs can be compared without storing data.
func ComputeAccountHash(pubkey types.Pubkey, account *Account) types.Hash {
	size := 8 + 8 + len(account.Data) + 1 + 32 + 32
	buf := make([]byte, size)
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], account.Lamports)
	offset += 8

	binary.LittleEndian.PutUint64(buf[offset:], account.RentEpoch)
	offset += 8

	copy(buf[offset:], account.Data)
	offset += len(account.Data)

	if account.Executable {
		buf[offset] = 1
	}
	offset++

	copy(buf[offset:], account.Owner[:])
	offset += 32

	copy(buf[offset:], pubkey[:])

	return sha256.Sum256(buf)
}
