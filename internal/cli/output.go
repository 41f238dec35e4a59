package cli

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/journal"
	"github.com/fortiblox/seashell/pkg/seashell"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The instruction failed
	ExitCommandError = 2 // Bad input, configuration or store errors
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error. Errors that are not an
// ExitError are command errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

type accountView struct {
	Pubkey     types.Pubkey `json:"pubkey"`
	Lamports   uint64       `json:"lamports"`
	Owner      types.Pubkey `json:"owner"`
	Executable bool         `json:"executable"`
	RentEpoch  uint64       `json:"rent_epoch"`
	Data       string       `json:"data"`
}

func newAccountView(id types.Pubkey, acct *accounts.Account) accountView {
	return accountView{
		Pubkey:     id,
		Lamports:   acct.Lamports,
		Owner:      acct.Owner,
		Executable: acct.Executable,
		RentEpoch:  acct.RentEpoch,
		Data:       hex.EncodeToString(acct.Data),
	}
}

type resultView struct {
	ComputeUnits uint64        `json:"compute_units"`
	ReturnData   string        `json:"return_data"`
	Logs         []string      `json:"logs"`
	Error        string        `json:"error,omitempty"`
	Accounts     []accountView `json:"accounts"`
}

func newResultView(res *seashell.InstructionProcessingResult) resultView {
	v := resultView{
		ComputeUnits: res.ComputeUnitsConsumed,
		ReturnData:   hex.EncodeToString(res.ReturnData),
		Logs:         res.Logs,
		Accounts:     []accountView{},
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	for _, ta := range res.PostExecutionAccounts {
		v.Accounts = append(v.Accounts, newAccountView(ta.Pubkey, ta.Account))
	}
	return v
}

type accountHashView struct {
	Pubkey types.Pubkey `json:"pubkey"`
	Hash   types.Hash   `json:"hash"`
}

type entryView struct {
	Seq          uint64            `json:"seq"`
	Session      string            `json:"session"`
	Program      types.Pubkey      `json:"program"`
	ComputeUnits uint64            `json:"compute_units"`
	Error        string            `json:"error,omitempty"`
	Accounts     []accountHashView `json:"accounts"`
	Time         time.Time         `json:"time"`
}

func newEntryView(e *journal.Entry) entryView {
	v := entryView{
		Seq:          e.Seq,
		Session:      e.Session.String(),
		Program:      e.ProgramID,
		ComputeUnits: e.ComputeUnits,
		Error:        e.Err,
		Accounts:     []accountHashView{},
		Time:         e.Time,
	}
	for _, ah := range e.AccountHashes {
		v.Accounts = append(v.Accounts, accountHashView{Pubkey: ah.Pubkey, Hash: ah.Hash})
	}
	return v
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
