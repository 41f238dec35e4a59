package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/instruction"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	InstructionPath string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one instruction and print the result",
		Long: `Process one instruction and print the result as JSON.

The instruction file holds the program id, the account references and the
instruction data in hex:

  {
    "program": "11111111111111111111111111111111",
    "accounts": [
      {"pubkey": "...", "signer": true, "writable": true},
      {"pubkey": "...", "writable": true}
    ],
    "data": "020000002c01000000000000"
  }

Use "-" to read the instruction from stdin. The command exits with status 1
when the instruction fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstruction(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.InstructionPath, "instruction", "i", "", "instruction JSON file, or - for stdin")
	cmd.MarkFlagRequired("instruction")

	return cmd
}

type instructionFile struct {
	Program  types.Pubkey `json:"program"`
	Accounts []struct {
		Pubkey   types.Pubkey `json:"pubkey"`
		Signer   bool         `json:"signer"`
		Writable bool         `json:"writable"`
	} `json:"accounts"`
	Data string `json:"data"`
}

func parseInstruction(r io.Reader) (*instruction.Instruction, error) {
	var f instructionFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode instruction: %w", err)
	}
	data, err := hex.DecodeString(f.Data)
	if err != nil {
		return nil, fmt.Errorf("decode instruction data: %w", err)
	}

	ix := &instruction.Instruction{ProgramID: f.Program, Data: data}
	for _, a := range f.Accounts {
		ix.Accounts = append(ix.Accounts, instruction.AccountMeta{
			Pubkey:     a.Pubkey,
			IsSigner:   a.Signer,
			IsWritable: a.Writable,
		})
	}
	return ix, nil
}

func readInstruction(cmd *cobra.Command, path string) (*instruction.Instruction, error) {
	if path == "-" {
		return parseInstruction(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseInstruction(f)
}

func runInstruction(cmd *cobra.Command, opts *RunOptions) (err error) {
	ix, err := readInstruction(cmd, opts.InstructionPath)
	if err != nil {
		return err
	}

	s, logger, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(s, logger, &err)

	res := s.ProcessInstruction(cmd.Context(), ix)
	if err := writeJSON(cmd.OutOrStdout(), newResultView(res)); err != nil {
		return err
	}
	if res.Err != nil {
		return &ExitError{Code: ExitFailure, Message: "instruction failed", Err: res.Err}
	}
	return nil
}
