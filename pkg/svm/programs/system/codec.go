package system

import (
	"encoding/binary"

	"github.com/fortiblox/seashell/internal/types"
)

// reader decodes little-endian instruction fields. The first failure sticks
// in err and later reads return zero values.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = ErrInvalidInstructionData
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) pubkey() types.Pubkey {
	var p types.Pubkey
	copy(p[:], r.take(types.PubkeySize))
	return p
}

// seed reads a u64 length-prefixed string.
func (r *reader) seed() string {
	n := r.u64()
	if r.err != nil {
		return ""
	}
	if n > MaxSeedLen {
		r.err = ErrInvalidSeed
		return ""
	}
	return string(r.take(int(n)))
}

type writer struct {
	buf []byte
}

func newWriter(discriminant uint32) *writer {
	return &writer{buf: binary.LittleEndian.AppendUint32(nil, discriminant)}
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) pubkey(p types.Pubkey) {
	w.buf = append(w.buf, p[:]...)
}

func (w *writer) seed(s string) {
	w.u64(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// AssignData returns the instruction data for Assign.
func AssignData(owner types.Pubkey) []byte {
	w := newWriter(InstructionAssign)
	w.pubkey(owner)
	return w.buf
}

// AllocateData returns the instruction data for Allocate.
func AllocateData(space uint64) []byte {
	w := newWriter(InstructionAllocate)
	w.u64(space)
	return w.buf
}

// CreateAccountWithSeedData returns the instruction data for
// CreateAccountWithSeed.
func CreateAccountWithSeedData(base types.Pubkey, seed string, params CreateAccountParams) []byte {
	w := newWriter(InstructionCreateAccountWithSeed)
	w.pubkey(base)
	w.seed(seed)
	w.u64(params.Lamports)
	w.u64(params.Space)
	w.pubkey(params.Owner)
	return w.buf
}

// TransferWithSeedData returns the instruction data for TransferWithSeed.
func TransferWithSeedData(lamports uint64, seed string, fromOwner types.Pubkey) []byte {
	w := newWriter(InstructionTransferWithSeed)
	w.u64(lamports)
	w.seed(seed)
	w.pubkey(fromOwner)
	return w.buf
}
