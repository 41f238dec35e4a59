package seashell

import (
	"context"
	"errors"
	"time"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/instruction"
	"github.com/fortiblox/seashell/pkg/journal"
	"github.com/fortiblox/seashell/pkg/svm"
)

// InstructionProcessingResult is the outcome of one instruction.
type InstructionProcessingResult struct {
	ComputeUnitsConsumed uint64
	ReturnData           []byte
	Logs                 []string

	// Err is nil on success. Engine failures are *svm.ExecutionError;
	// resolution failures carry the store error.
	Err error

	// PostExecutionAccounts holds every distinct account of the
	// instruction after execution, program first. Empty when execution failed.
	PostExecutionAccounts []svm.TransactionAccount
}

// Succeeded reports whether the instruction executed without error.
func (r *InstructionProcessingResult) Succeeded() bool {
	return r.Err == nil
}

// Account returns the post-execution value of id.
func (r *InstructionProcessingResult) Account(id types.Pubkey) (*accounts.Account, bool) {
	for _, ta := range r.PostExecutionAccounts {
		if ta.Pubkey == id {
			return ta.Account, true
		}
	}
	return nil, false
}

// ProcessInstruction executes ix against the current session state.
func (s *Seashell) ProcessInstruction(ctx context.Context, ix *instruction.Instruction) *InstructionProcessingResult {
	if s.closed {
		return &InstructionProcessingResult{Err: ErrClosed}
	}
	logger := s.logger.With().Str("program", ix.ProgramID.String()).Logger()
	if err := ix.Validate(); err != nil {
		return &InstructionProcessingResult{Err: err}
	}

	accts, err := s.store.AccountsForInstruction(ctx, ix, s.config.AllowUninitializedAccounts)
	if err != nil {
		s.metrics.resolutionFailures.Inc()
		s.metrics.instructions.WithLabelValues(resultResolutionFailed).Inc()
		logger.Error().Err(err).Msg("account resolution failed")
		return &InstructionProcessingResult{Err: err}
	}

	req := &svm.Request{
		ProgramID:           ix.ProgramID,
		Accounts:            accts,
		InstructionAccounts: instruction.Compile(ix),
		Data:                ix.Data,
		Sysvars:             s.store.SysvarsForInstruction(accts),
		Programs:            s.store.Programs(),
		Features:            s.features,
		ComputeUnitLimit:    s.config.ComputeUnitLimit,
	}

	var pre map[types.Pubkey]*accounts.Account
	if s.config.Memoize {
		pre = snapshot(accts)
	}

	res, execErr := s.engine.Execute(ctx, req)
	if res == nil {
		res = &svm.Result{}
	}
	out := &InstructionProcessingResult{
		ComputeUnitsConsumed: res.ComputeUnitsConsumed,
		ReturnData:           res.ReturnData,
		Logs:                 res.Logs,
	}
	for _, line := range res.Logs {
		logger.Debug().Msg(line)
	}
	s.metrics.computeUnits.Observe(float64(res.ComputeUnitsConsumed))

	if execErr != nil {
		if errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded) {
			out.Err = execErr
		} else {
			out.Err = &svm.ExecutionError{Err: execErr}
		}
		s.metrics.instructions.WithLabelValues(resultExecutionFailed).Inc()
		logger.Error().Err(execErr).Uint64("compute_units", res.ComputeUnitsConsumed).Msg("instruction failed")
		s.record(ix, out)
		return out
	}

	out.PostExecutionAccounts = res.Accounts
	if s.config.Memoize {
		if err := s.memoize(pre, res.Accounts); err != nil {
			// The engine succeeded; a failed write-back is a harness error.
			out.Err = err
			logger.Error().Err(err).Msg("memoize failed")
		}
	}

	s.metrics.instructions.WithLabelValues(resultSuccess).Inc()
	logger.Debug().Uint64("compute_units", res.ComputeUnitsConsumed).Msg("instruction processed")
	s.record(ix, out)
	return out
}

// snapshot copies the first occurrence of every account before execution.
// Engines may modify the request accounts in place.
func snapshot(accts []svm.TransactionAccount) map[types.Pubkey]*accounts.Account {
	out := make(map[types.Pubkey]*accounts.Account, len(accts))
	for _, ta := range accts {
		if _, seen := out[ta.Pubkey]; !seen {
			out[ta.Pubkey] = ta.Account.Clone()
		}
	}
	return out
}

// memoize writes back every post-execution account that differs from its
// pre-execution snapshot.
func (s *Seashell) memoize(pre map[types.Pubkey]*accounts.Account, post []svm.TransactionAccount) error {
	for _, ta := range post {
		if prev, ok := pre[ta.Pubkey]; ok && prev.Equal(ta.Account) {
			continue
		}
		if err := s.store.Write(ta.Pubkey, ta.Account); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seashell) record(ix *instruction.Instruction, out *InstructionProcessingResult) {
	if s.journal == nil {
		return
	}

	entry := &journal.Entry{
		Session:      s.id,
		ProgramID:    ix.ProgramID,
		ComputeUnits: out.ComputeUnitsConsumed,
		ReturnData:   out.ReturnData,
		Time:         time.Now().UTC(),
	}
	if out.Err != nil {
		entry.Err = out.Err.Error()
	}
	for _, ta := range out.PostExecutionAccounts {
		entry.AccountHashes = append(entry.AccountHashes, journal.AccountHash{
			Pubkey: ta.Pubkey,
			Hash:   accounts.ComputeAccountHash(ta.Pubkey, ta.Account),
		})
	}

	if _, err := s.journal.Append(entry); err != nil {
		s.logger.Warn().Err(err).Msg("journal append failed")
	}
}
