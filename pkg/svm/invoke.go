package svm

import (
	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
)

// AccountInfo is a program's view of one instruction account.
//
// The embedded Account is the engine's working copy; duplicate references
// share it, so a write through one is visible through the other.
type AccountInfo struct {
	Key types.Pubkey
	*accounts.Account
	IsSigner   bool
	IsWritable bool
}

// InvokeContext provides context for native program execution.
type InvokeContext interface {
	// GetAccount returns the instruction account at the given index.
	GetAccount(index int) (*AccountInfo, error)

	// NumAccounts returns the number of instruction accounts.
	NumAccounts() int

	// GetRentMinimum returns the rent-exempt minimum for given data size.
	GetRentMinimum(dataLen uint64) uint64

	// ConsumeCompute charges compute units.
	ConsumeCompute(units uint64) error

	// Log records a log message.
	Log(msg string)
}
