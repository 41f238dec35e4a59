// Package native is the default execution engine.
//
// It runs the builtin programs (system program, compute budget) and the
// signature precompiles in-process against the compiled account layout,
// then enforces the post-instruction account rules: readonly accounts stay
// untouched and the total balance is preserved. Loaded sBPF programs are
// reported as unsupported; an interpreter plugs in as another svm.Engine.
package native

import (
	"context"
	"fmt"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/svm"
	"github.com/fortiblox/seashell/pkg/svm/programs/system"
)

// Engine executes builtin and precompile instructions.
type Engine struct {
	system *system.Processor
}

var _ svm.Engine = (*Engine)(nil)

// New creates the native engine.
func New() *Engine {
	return &Engine{system: system.NewProcessor()}
}

// Execute runs one instruction. Failures return a Result with the units
// consumed and the logs produced up to the failure.
func (e *Engine) Execute(ctx context.Context, req *svm.Request) (*svm.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meter := svm.NewComputeMeter(req.ComputeUnitLimit)
	inv, err := newInvocation(req, meter)
	if err != nil {
		return &svm.Result{}, err
	}

	program := req.ProgramID.String()
	inv.logs = append(inv.logs, fmt.Sprintf("Program %s invoke [1]", program))

	err = e.dispatch(inv, req)
	if err == nil {
		err = inv.verify()
	}

	result := &svm.Result{ComputeUnitsConsumed: meter.Consumed()}
	if err != nil {
		inv.logs = append(inv.logs, fmt.Sprintf("Program %s failed: %v", program, err))
		result.Logs = inv.logs
		return result, err
	}

	inv.logs = append(inv.logs,
		fmt.Sprintf("Program %s consumed %d of %d compute units", program, meter.Consumed(), meter.Limit()),
		fmt.Sprintf("Program %s success", program),
	)
	result.Logs = inv.logs
	result.Accounts = inv.postAccounts()
	return result, nil
}

func (e *Engine) dispatch(inv *invocation, req *svm.Request) error {
	entry, ok := req.Programs.Get(req.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", svm.ErrProgramNotFound, req.ProgramID)
	}

	switch entry.Kind {
	case svm.KindBuiltin:
		switch req.ProgramID {
		case types.SystemProgramAddr:
			if err := inv.ConsumeCompute(svm.CUSystemProgramDefault); err != nil {
				return err
			}
			return e.system.Process(inv, req.Data)
		case types.ComputeBudgetProgramAddr:
			if err := inv.ConsumeCompute(svm.CUComputeBudgetDefault); err != nil {
				return err
			}
			// Limits only matter at the transaction level; validate and drop.
			return svm.DefaultComputeBudgetLimits().Apply(req.Data)
		}
		return fmt.Errorf("%w: builtin %s", svm.ErrUnsupportedProgram, req.ProgramID)

	case svm.KindPrecompile:
		if err := inv.ConsumeCompute(svm.CUPrecompileDefault); err != nil {
			return err
		}
		return VerifyPrecompile(req.ProgramID, req.Data)

	default:
		return fmt.Errorf("%w: %s program %s", svm.ErrUnsupportedProgram, entry.Kind, req.ProgramID)
	}
}
