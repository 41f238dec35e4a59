// Package svm defines the contract between the harness and an instruction
// execution engine.
//
// The harness resolves accounts, compiles the instruction's account layout
// and snapshots the sysvar environment; an Engine consumes exactly that
// input and returns consumed compute units, return data, logs and the
// post-execution value of every account it was handed. The engine's output
// is authoritative: the harness never second-guesses account contents it
// gets back.
//
// The package also carries the engine-side registries every engine needs:
// the loaded-program cache, the builtin table, feature gates and the
// compute meter.
package svm

import (
	"context"
	"errors"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/instruction"
	"github.com/fortiblox/seashell/pkg/sysvar"
)

var (
	// ErrInstructionExecutionFailed matches every *ExecutionError.
	ErrInstructionExecutionFailed = errors.New("instruction execution failed")

	// ErrProgramNotFound is returned when the program is neither a builtin
	// nor present in the program cache.
	ErrProgramNotFound = errors.New("program not found")

	// ErrUnsupportedProgram is returned by engines that cannot run a cached
	// program kind.
	ErrUnsupportedProgram = errors.New("unsupported program")

	// ErrMissingAccount is returned when a compiled account points outside
	// the transaction account list.
	ErrMissingAccount = errors.New("instruction account index out of range")

	// ErrReadonlyAccountModified is returned when a program changed an
	// account it was not granted write access to.
	ErrReadonlyAccountModified = errors.New("instruction modified a readonly account")

	// ErrUnbalancedInstruction is returned when the total balance of the
	// instruction's accounts changed.
	ErrUnbalancedInstruction = errors.New("sum of account balances before and after instruction do not match")
)

// ExecutionError carries an engine failure through the harness unmodified.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return "instruction execution failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrInstructionExecutionFailed) hold.
func (e *ExecutionError) Is(target error) bool {
	return target == ErrInstructionExecutionFailed
}

// TransactionAccount pairs an account with its address.
type TransactionAccount struct {
	Pubkey  types.Pubkey
	Account *accounts.Account
}

// Request is everything an engine needs to run one instruction.
type Request struct {
	// ProgramID is the program to invoke. Accounts[0] is its account.
	ProgramID types.Pubkey

	// Accounts are the resolved accounts in transaction order: the program
	// first, then one entry per reference, duplicates included.
	Accounts []TransactionAccount

	// InstructionAccounts is the compiled layout, one per reference.
	InstructionAccounts []instruction.CompiledAccount

	// Data is the opaque instruction payload.
	Data []byte

	// Sysvars is the environment snapshot for this instruction.
	Sysvars *sysvar.Environment

	// Programs is the loaded-program cache.
	Programs *ProgramCache

	// Features gates builtins and precompiles.
	Features *FeatureSet

	// ComputeUnitLimit caps consumption; zero means CUDefault.
	ComputeUnitLimit uint64
}

// Result is what an engine returns for one instruction.
//
// On failure an engine may still return a Result carrying the units and
// logs produced before the failure; Accounts is then undefined.
type Result struct {
	ComputeUnitsConsumed uint64
	ReturnData           []byte
	Logs                 []string

	// Accounts holds the post-execution value of every distinct account
	// of the request, in first-occurrence order.
	Accounts []TransactionAccount
}

// Engine executes a single compiled instruction.
type Engine interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}
