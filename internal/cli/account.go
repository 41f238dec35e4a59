package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fortiblox/seashell/internal/types"
)

// NewAccountCommand creates the account command.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "account <pubkey>",
		Short: "Resolve an account through every layer and print it",
		Long: `Resolve an account through the sysvar cache, the scenario, the base store
and the remote endpoints, in that order, and print it as JSON. Accounts fetched
from the remote are saved to the scenario file when one is configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showAccount(cmd, rootOpts, args[0])
		},
	}
}

func showAccount(cmd *cobra.Command, opts *RootOptions, arg string) (err error) {
	id, err := types.PubkeyFromBase58(arg)
	if err != nil {
		return err
	}

	s, logger, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(s, logger, &err)

	acct, err := s.Account(cmd.Context(), id)
	if err != nil {
		return &ExitError{Code: ExitFailure, Message: "resolve account", Err: err}
	}
	return writeJSON(cmd.OutOrStdout(), newAccountView(id, acct))
}

// NewAirdropCommand creates the airdrop command.
func NewAirdropCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop <pubkey> <lamports>",
		Short: "Credit lamports to an account in the base store",
		Long: `Credit lamports to an account, creating a system-owned account when none
exists. The change outlives the command only with a base_store_path configured.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return airdrop(cmd, rootOpts, args[0], args[1])
		},
	}
}

func airdrop(cmd *cobra.Command, opts *RootOptions, pubkey, amount string) (err error) {
	id, err := types.PubkeyFromBase58(pubkey)
	if err != nil {
		return err
	}
	lamports, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lamports %q: %w", amount, err)
	}

	s, logger, err := opts.openSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(s, logger, &err)

	if err := s.Airdrop(id, lamports); err != nil {
		return err
	}
	acct, err := s.Account(cmd.Context(), id)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), newAccountView(id, acct))
}
