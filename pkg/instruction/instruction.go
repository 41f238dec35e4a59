// Package instruction defines the instruction model and compiles an
// instruction's account references into the layout an engine executes against.
package instruction

import (
	"errors"
	"fmt"
	"math"

	"github.com/fortiblox/seashell/internal/types"
)

// ProgramIndex is the transaction index of the instruction's program.
const ProgramIndex = 0

// MaxAccounts is the largest number of references whose indices fit the
// 16-bit fields of CompiledAccount.
const MaxAccounts = math.MaxUint16

// ErrTooManyAccounts is returned by Validate for instructions with more than
// MaxAccounts references.
var ErrTooManyAccounts = errors.New("too many account references")

// AccountMeta is one account reference with its requested privileges.
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta returns a writable reference.
func NewAccountMeta(pubkey types.Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner, IsWritable: true}
}

// NewReadonlyAccountMeta returns a read-only reference.
func NewReadonlyAccountMeta(pubkey types.Pubkey, isSigner bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner}
}

// Instruction names a program, the accounts it touches and opaque payload bytes.
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Validate checks that the instruction can be compiled.
func (ix *Instruction) Validate() error {
	if len(ix.Accounts) > MaxAccounts {
		return fmt.Errorf("%w: %d > %d", ErrTooManyAccounts, len(ix.Accounts), MaxAccounts)
	}
	return nil
}

// CompiledAccount is the engine-facing form of one account reference.
type CompiledAccount struct {
	// IndexInTransaction is the first-occurrence position of the account in
	// [program, refs...].
	IndexInTransaction uint16

	// IndexInCaller equals IndexInTransaction for a top-level instruction.
	IndexInCaller uint16

	// IndexInCallee is the position of the first reference to the same
	// account among the instruction's references.
	IndexInCallee uint16

	IsSigner   bool
	IsWritable bool
}

type privileges struct {
	index    uint16
	signer   bool
	writable bool
}

// Compile deduplicates the instruction's references, ORs privileges across
// duplicates and assigns each account the position of its first occurrence in
// [program, refs...]. The result has one entry per reference, in reference
// order; the program itself only occupies index 0. ix must pass Validate.
func Compile(ix *Instruction) []CompiledAccount {
	if len(ix.Accounts) == 0 {
		return []CompiledAccount{}
	}

	merged := make(map[types.Pubkey]*privileges, len(ix.Accounts)+1)
	merged[ix.ProgramID] = &privileges{index: ProgramIndex}
	for i, meta := range ix.Accounts {
		p, ok := merged[meta.Pubkey]
		if !ok {
			p = &privileges{index: uint16(i + 1)}
			merged[meta.Pubkey] = p
		}
		p.signer = p.signer || meta.IsSigner
		p.writable = p.writable || meta.IsWritable
	}

	firstRef := make(map[types.Pubkey]uint16, len(ix.Accounts))
	out := make([]CompiledAccount, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		callee, seen := firstRef[meta.Pubkey]
		if !seen {
			callee = uint16(i)
			firstRef[meta.Pubkey] = callee
		}
		p := merged[meta.Pubkey]
		out[i] = CompiledAccount{
			IndexInTransaction: p.index,
			IndexInCaller:      p.index,
			IndexInCallee:      callee,
			IsSigner:           p.signer,
			IsWritable:         p.writable,
		}
	}
	return out
}
