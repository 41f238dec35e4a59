package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fortiblox/seashell/pkg/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Session string
	After   uint64
	Limit   int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List processed instructions from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "only list entries of this session id")
	cmd.Flags().Uint64Var(&opts.After, "after", 0, "only list entries after this sequence number")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum number of entries (0 = all)")

	return cmd
}

func showHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.JournalPath == "" {
		return errors.New("no journal_path configured")
	}

	list := journal.ListOptions{After: opts.After, Limit: opts.Limit}
	if opts.Session != "" {
		if list.Session, err = uuid.Parse(opts.Session); err != nil {
			return fmt.Errorf("invalid session id: %w", err)
		}
	}

	jcfg := journal.DefaultConfig(cfg.JournalPath)
	jcfg.ReadOnly = true
	j, err := journal.Open(jcfg)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.List(list)
	if err != nil {
		return err
	}
	views := make([]entryView, 0, len(entries))
	for i := range entries {
		views = append(views, newEntryView(&entries[i]))
	}
	return writeJSON(cmd.OutOrStdout(), views)
}
