// Package system implements the System Program builtin.
//
// The System Program is responsible for:
// - Creating new accounts
// - Transferring lamports
// - Assigning account ownership
// - Allocating account space
// - Seed-derived variants of the above
//
// Nonce account instructions are not supported.
package system

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/svm"
)

// ProgramID is the System Program address.
var ProgramID = types.SystemProgramAddr

// Instruction discriminants.
const (
	InstructionCreateAccount = iota
	InstructionAssign
	InstructionTransfer
	InstructionCreateAccountWithSeed
	InstructionAdvanceNonceAccount
	InstructionWithdrawNonceAccount
	InstructionInitializeNonceAccount
	InstructionAuthorizeNonceAccount
	InstructionAllocate
	InstructionAllocateWithSeed
	InstructionAssignWithSeed
	InstructionTransferWithSeed
	InstructionUpgradeNonceAccount
)

// MaxSeedLen is the longest seed accepted for derived addresses.
const MaxSeedLen = 32

// Error types.
var (
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrAccountAlreadyInUse      = errors.New("account already in use")
	ErrNotEnoughAccountKeys     = errors.New("not enough account keys")
	ErrInvalidAccountOwner      = errors.New("invalid account owner")
	ErrAccountNotRentExempt     = errors.New("account not rent exempt")
	ErrMissingRequiredSignature = errors.New("missing required signature")
	ErrAccountNotWritable       = errors.New("account not writable")
	ErrAccountDataTooSmall      = errors.New("account data too small")
	ErrAccountDataTooLarge      = errors.New("account data too large")
	ErrInvalidSeed              = errors.New("invalid seed")
	ErrAddressWithSeedMismatch  = errors.New("address with seed mismatch")
	ErrTransferFromDataAccount  = errors.New("from must not carry data")
	ErrLamportsOverflow         = errors.New("lamport overflow")
	ErrUnsupportedInstruction   = errors.New("unsupported system instruction")
)

// Processor executes System Program instructions.
type Processor struct{}

// NewProcessor creates a new System Program processor.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process executes a System Program instruction.
func (p *Processor) Process(ctx svm.InvokeContext, data []byte) error {
	if len(data) < 4 {
		return ErrInvalidInstructionData
	}

	r := &reader{buf: data[4:]}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case InstructionCreateAccount:
		return p.createAccount(ctx, r)
	case InstructionAssign:
		return p.assign(ctx, r)
	case InstructionTransfer:
		return p.transfer(ctx, r)
	case InstructionCreateAccountWithSeed:
		return p.createAccountWithSeed(ctx, r)
	case InstructionAllocate:
		return p.allocate(ctx, r)
	case InstructionAllocateWithSeed:
		return p.allocateWithSeed(ctx, r)
	case InstructionAssignWithSeed:
		return p.assignWithSeed(ctx, r)
	case InstructionTransferWithSeed:
		return p.transferWithSeed(ctx, r)
	case InstructionAdvanceNonceAccount,
		InstructionWithdrawNonceAccount,
		InstructionInitializeNonceAccount,
		InstructionAuthorizeNonceAccount,
		InstructionUpgradeNonceAccount:
		return ErrUnsupportedInstruction
	default:
		return ErrInvalidInstructionData
	}
}

// CreateAccountParams for CreateAccount instruction.
type CreateAccountParams struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

// Encode returns the instruction data for CreateAccount.
func (c CreateAccountParams) Encode() []byte {
	w := newWriter(InstructionCreateAccount)
	w.u64(c.Lamports)
	w.u64(c.Space)
	w.pubkey(c.Owner)
	return w.buf
}

// createAccount funds, allocates and assigns a new account.
// Accounts: [0] funder (signer, writable), [1] new account (signer, writable).
func (p *Processor) createAccount(ctx svm.InvokeContext, r *reader) error {
	var params CreateAccountParams
	params.Lamports = r.u64()
	params.Space = r.u64()
	params.Owner = r.pubkey()
	if r.err != nil {
		return r.err
	}

	funder, err := instructionAccount(ctx, 0, true, true)
	if err != nil {
		return err
	}
	to, err := instructionAccount(ctx, 1, true, true)
	if err != nil {
		return err
	}

	if err := p.create(ctx, funder, to, params); err != nil {
		return err
	}
	ctx.Log("CreateAccount: success")
	return nil
}

func (p *Processor) create(ctx svm.InvokeContext, funder, to *svm.AccountInfo, params CreateAccountParams) error {
	if params.Space > accounts.MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	// Target must be unused: no balance, no data, system owned
	if to.Lamports > 0 || len(to.Data) > 0 || to.Owner != ProgramID {
		return ErrAccountAlreadyInUse
	}
	if params.Lamports < ctx.GetRentMinimum(params.Space) {
		return ErrAccountNotRentExempt
	}
	if err := debit(funder, params.Lamports); err != nil {
		return err
	}
	to.Lamports = params.Lamports
	to.Data = make([]byte, params.Space)
	to.Owner = params.Owner
	return nil
}

// assign changes the owner of a system account.
// Accounts: [0] account (signer, writable).
func (p *Processor) assign(ctx svm.InvokeContext, r *reader) error {
	owner := r.pubkey()
	if r.err != nil {
		return r.err
	}

	account, err := instructionAccount(ctx, 0, true, true)
	if err != nil {
		return err
	}
	if err := reassign(account, owner); err != nil {
		return err
	}
	ctx.Log("Assign: success")
	return nil
}

func reassign(account *svm.AccountInfo, owner types.Pubkey) error {
	if account.Owner == owner {
		return nil
	}
	if account.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	account.Owner = owner
	return nil
}

// TransferParams for Transfer instruction.
type TransferParams struct {
	Lamports uint64
}

// Encode returns the instruction data for Transfer.
func (t TransferParams) Encode() []byte {
	w := newWriter(InstructionTransfer)
	w.u64(t.Lamports)
	return w.buf
}

// transfer moves lamports between accounts.
// Accounts: [0] from (signer, writable), [1] to (writable).
func (p *Processor) transfer(ctx svm.InvokeContext, r *reader) error {
	lamports := r.u64()
	if r.err != nil {
		return r.err
	}

	from, err := instructionAccount(ctx, 0, true, true)
	if err != nil {
		return err
	}
	to, err := instructionAccount(ctx, 1, false, true)
	if err != nil {
		return err
	}
	if err := move(from, to, lamports); err != nil {
		return err
	}
	ctx.Log("Transfer: success")
	return nil
}

func move(from, to *svm.AccountInfo, lamports uint64) error {
	if len(from.Data) > 0 {
		return ErrTransferFromDataAccount
	}
	if from.Owner != ProgramID {
		return ErrInvalidAccountOwner
	}
	if err := debit(from, lamports); err != nil {
		return err
	}
	if to.Lamports > ^uint64(0)-lamports {
		from.Lamports += lamports
		return ErrLamportsOverflow
	}
	to.Lamports += lamports
	return nil
}

// allocate gives a fresh system account its data space.
// Accounts: [0] account (signer, writable).
func (p *Processor) allocate(ctx svm.InvokeContext, r *reader) error {
	space := r.u64()
	if r.err != nil {
		return r.err
	}

	account, err := instructionAccount(ctx, 0, true, true)
	if err != nil {
		return err
	}
	if err := allocateSpace(account, space); err != nil {
		return err
	}
	ctx.Log("Allocate: success")
	return nil
}

func allocateSpace(account *svm.AccountInfo, space uint64) error {
	if space > accounts.MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	if len(account.Data) > 0 || account.Owner != ProgramID {
		return ErrAccountAlreadyInUse
	}
	account.Data = make([]byte, space)
	return nil
}

// createAccountWithSeed is createAccount for an address derived from
// base, seed and owner.
// Accounts: [0] funder (signer, writable), [1] new account (writable),
// [2] base (signer) when base differs from the funder.
func (p *Processor) createAccountWithSeed(ctx svm.InvokeContext, r *reader) error {
	base := r.pubkey()
	seed := r.seed()
	var params CreateAccountParams
	params.Lamports = r.u64()
	params.Space = r.u64()
	params.Owner = r.pubkey()
	if r.err != nil {
		return r.err
	}

	funder, err := instructionAccount(ctx, 0, true, true)
	if err != nil {
		return err
	}
	to, err := instructionAccount(ctx, 1, false, true)
	if err != nil {
		return err
	}
	if funder.Key != base {
		if err := requireBaseSigner(ctx, 2, base); err != nil {
			return err
		}
	}
	if CreateWithSeedAddress(base, seed, params.Owner) != to.Key {
		return ErrAddressWithSeedMismatch
	}

	if err := p.create(ctx, funder, to, params); err != nil {
		return err
	}
	ctx.Log("CreateAccountWithSeed: success")
	return nil
}

// allocateWithSeed allocates and assigns a seed-derived account.
// Accounts: [0] account (writable), [1] base (signer).
func (p *Processor) allocateWithSeed(ctx svm.InvokeContext, r *reader) error {
	base := r.pubkey()
	seed := r.seed()
	space := r.u64()
	owner := r.pubkey()
	if r.err != nil {
		return r.err
	}

	account, err := instructionAccount(ctx, 0, false, true)
	if err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, 1, base); err != nil {
		return err
	}
	if CreateWithSeedAddress(base, seed, owner) != account.Key {
		return ErrAddressWithSeedMismatch
	}
	if err := allocateSpace(account, space); err != nil {
		return err
	}
	account.Owner = owner
	ctx.Log("AllocateWithSeed: success")
	return nil
}

// assignWithSeed assigns a seed-derived account.
// Accounts: [0] account (writable), [1] base (signer).
func (p *Processor) assignWithSeed(ctx svm.InvokeContext, r *reader) error {
	base := r.pubkey()
	seed := r.seed()
	owner := r.pubkey()
	if r.err != nil {
		return r.err
	}

	account, err := instructionAccount(ctx, 0, false, true)
	if err != nil {
		return err
	}
	if err := requireBaseSigner(ctx, 1, base); err != nil {
		return err
	}
	if CreateWithSeedAddress(base, seed, owner) != account.Key {
		return ErrAddressWithSeedMismatch
	}
	if err := reassign(account, owner); err != nil {
		return err
	}
	ctx.Log("AssignWithSeed: success")
	return nil
}

// transferWithSeed transfers from a seed-derived account.
// Accounts: [0] from (writable), [1] base (signer), [2] to (writable).
func (p *Processor) transferWithSeed(ctx svm.InvokeContext, r *reader) error {
	lamports := r.u64()
	seed := r.seed()
	fromOwner := r.pubkey()
	if r.err != nil {
		return r.err
	}

	from, err := instructionAccount(ctx, 0, false, true)
	if err != nil {
		return err
	}
	base, err := instructionAccount(ctx, 1, true, false)
	if err != nil {
		return err
	}
	to, err := instructionAccount(ctx, 2, false, true)
	if err != nil {
		return err
	}
	if CreateWithSeedAddress(base.Key, seed, fromOwner) != from.Key {
		return ErrAddressWithSeedMismatch
	}
	if err := move(from, to, lamports); err != nil {
		return err
	}
	ctx.Log("TransferWithSeed: success")
	return nil
}

// instructionAccount fetches account i and checks the privileges the
// handler needs.
func instructionAccount(ctx svm.InvokeContext, i int, signer, writable bool) (*svm.AccountInfo, error) {
	account, err := ctx.GetAccount(i)
	if err != nil {
		return nil, ErrNotEnoughAccountKeys
	}
	if signer && !account.IsSigner {
		return nil, ErrMissingRequiredSignature
	}
	if writable && !account.IsWritable {
		return nil, ErrAccountNotWritable
	}
	return account, nil
}

func requireBaseSigner(ctx svm.InvokeContext, i int, base types.Pubkey) error {
	account, err := instructionAccount(ctx, i, true, false)
	if err != nil {
		return err
	}
	if account.Key != base {
		return ErrMissingRequiredSignature
	}
	return nil
}

func debit(account *svm.AccountInfo, lamports uint64) error {
	if account.Lamports < lamports {
		return ErrInsufficientFunds
	}
	account.Lamports -= lamports
	return nil
}

// CreateWithSeedAddress derives an address from base + seed + owner.
func CreateWithSeedAddress(base types.Pubkey, seed string, owner types.Pubkey) types.Pubkey {
	h := sha256.New()
	h.Write(base[:])
	h.Write([]byte(seed))
	h.Write(owner[:])

	var result types.Pubkey
	copy(result[:], h.Sum(nil))
	return result
}
