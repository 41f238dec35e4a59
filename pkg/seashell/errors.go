package seashell

import (
	"errors"

	"github.com/fortiblox/seashell/pkg/accountsdb"
	"github.com/fortiblox/seashell/pkg/instruction"
	"github.com/fortiblox/seashell/pkg/scenario"
	"github.com/fortiblox/seashell/pkg/svm"
	"github.com/fortiblox/seashell/pkg/sysvar"
)

// Errors callers match with errors.Is.
var (
	ErrAccountNotFound               = accountsdb.ErrAccountNotFound
	ErrRemoteNotConfigured           = scenario.ErrRemoteNotConfigured
	ErrRemoteFetchFailed             = scenario.ErrRemoteFetchFailed
	ErrUnknownSystemVariable         = sysvar.ErrUnknownSysvar
	ErrInvalidSystemVariableEncoding = sysvar.ErrInvalidEncoding
	ErrProgramLoadFailed             = accountsdb.ErrProgramLoadFailed
	ErrInstructionExecutionFailed    = svm.ErrInstructionExecutionFailed
	ErrTooManyAccounts               = instruction.ErrTooManyAccounts
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("seashell session closed")

	// ErrLamportsOverflow is returned when an airdrop would overflow a balance.
	ErrLamportsOverflow = errors.New("airdrop overflows account balance")
)
