package seashell

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/config"
	"github.com/fortiblox/seashell/pkg/journal"
	"github.com/fortiblox/seashell/pkg/remote"
	"github.com/fortiblox/seashell/pkg/svm"
)

// Open builds a session from file configuration: a BadgerDB base store and a
// journal when their paths are set, a JSON-RPC remote source when endpoints
// are configured, the configured scenario and, with load_spl, the SPL
// programs. Without a scenario file the remote source backs a non-persistent
// overlay. Options are applied after the ones derived from cfg. Stores
// opened here are closed by Close.
func Open(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Seashell, error) {
	features := svm.AllEnabled()
	if !cfg.AllFeatures() {
		ids, err := cfg.FeatureIDs()
		if err != nil {
			return nil, err
		}
		features = svm.NewFeatureSet(ids...)
	}

	derived := []Option{
		WithConfig(Config{
			Memoize:                    cfg.Memoize,
			AllowUninitializedAccounts: cfg.AllowUninitializedAccounts,
			ComputeUnitLimit:           cfg.ComputeUnitLimit,
			ProgramDir:                 cfg.ProgramDir,
		}),
		WithLogger(logger),
		WithFeatures(features),
	}

	var opened []io.Closer
	cleanup := func() {
		for i := len(opened) - 1; i >= 0; i-- {
			opened[i].Close()
		}
	}

	if cfg.BaseStorePath != "" {
		db, err := accounts.NewBadgerDB(accounts.DefaultBadgerDBConfig(cfg.BaseStorePath))
		if err != nil {
			return nil, fmt.Errorf("open base store: %w", err)
		}
		opened = append(opened, db)
		derived = append(derived, WithBaseStore(db), withCloser(db))
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(journal.DefaultConfig(cfg.JournalPath))
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		opened = append(opened, j)
		derived = append(derived, WithJournal(j), withCloser(j))
	}

	var client *remote.Client
	if len(cfg.RPCURLs) > 0 {
		rc := remote.DefaultConfig()
		rc.Timeout = cfg.RPCTimeout
		rc.Logger = logger
		client = remote.NewClient(remote.NewSimplePool(cfg.RPCURLs...), rc)
		derived = append(derived, WithRemote(client))
	}

	s, err := New(append(derived, opts...)...)
	if err != nil {
		cleanup()
		return nil, err
	}

	switch {
	case cfg.Scenario != "":
		err = s.LoadScenario(cfg.Scenario)
	case client != nil:
		err = s.UseRemoteOnly(client)
	}
	if err == nil && cfg.LoadSPL {
		err = s.LoadSPL("")
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
