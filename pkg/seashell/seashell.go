// Package seashell runs single instructions against a layered account state.
//
// A Seashell session owns an account store, a program cache, a scenario
// overlay and an execution engine. ProcessInstruction resolves the accounts
// an instruction references, compiles its account layout, snapshots the
// sysvar environment, hands everything to the engine and, when memoization
// is enabled, writes the changed accounts back so the next instruction sees
// them.
//
// A session is not safe for concurrent use. Close must be called to flush
// the scenario overlay.
package seashell

import (
	"io"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/accountsdb"
	"github.com/fortiblox/seashell/pkg/journal"
	"github.com/fortiblox/seashell/pkg/scenario"
	"github.com/fortiblox/seashell/pkg/svm"
	"github.com/fortiblox/seashell/pkg/svm/native"
)

// Config holds the session flags.
type Config struct {
	// Memoize writes post-execution accounts back into the store.
	Memoize bool

	// AllowUninitializedAccounts presents accounts missing from every layer
	// as zeroed records instead of failing the instruction.
	AllowUninitializedAccounts bool

	// ComputeUnitLimit caps each instruction. Zero means svm.CUDefault.
	ComputeUnitLimit uint64

	// ProgramDir is searched by LoadProgramFromEnvironment before
	// SBF_OUT_DIR and target/deploy.
	ProgramDir string
}

type settings struct {
	config     Config
	logger     zerolog.Logger
	engine     svm.Engine
	base       accounts.DB
	features   *svm.FeatureSet
	journal    *journal.Store
	remote     scenario.Source
	registerer prometheus.Registerer
	closers    []io.Closer
}

// Option configures a session.
type Option func(*settings)

// WithConfig replaces the session flags.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.config = cfg
	}
}

// WithMemoize toggles result write-back.
func WithMemoize(enabled bool) Option {
	return func(s *settings) {
		s.config.Memoize = enabled
	}
}

// WithAllowUninitializedAccounts toggles zeroed stand-ins for missing accounts.
func WithAllowUninitializedAccounts(enabled bool) Option {
	return func(s *settings) {
		s.config.AllowUninitializedAccounts = enabled
	}
}

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithEngine replaces the native engine.
func WithEngine(engine svm.Engine) Option {
	return func(s *settings) {
		s.engine = engine
	}
}

// WithBaseStore sets the base account store. The session does not close it.
func WithBaseStore(db accounts.DB) Option {
	return func(s *settings) {
		s.base = db
	}
}

// WithFeatures sets the active feature gates. The default enables all.
func WithFeatures(fs *svm.FeatureSet) Option {
	return func(s *settings) {
		s.features = fs
	}
}

// WithJournal records every processed instruction in j. The session does
// not close it.
func WithJournal(j *journal.Store) Option {
	return func(s *settings) {
		s.journal = j
	}
}

// WithRemote sets the source LoadScenario falls back to for missing accounts.
func WithRemote(src scenario.Source) Option {
	return func(s *settings) {
		s.remote = src
	}
}

// WithMetricsRegisterer registers the session metrics on reg instead of a
// private registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) {
		s.registerer = reg
	}
}

// withCloser hands ownership of c to the session.
func withCloser(c io.Closer) Option {
	return func(s *settings) {
		s.closers = append(s.closers, c)
	}
}

// Seashell is one execution session.
type Seashell struct {
	id       uuid.UUID
	config   Config
	store    *accountsdb.Store
	engine   svm.Engine
	features *svm.FeatureSet
	journal  *journal.Store
	remote   scenario.Source
	metrics  *metrics
	logger   zerolog.Logger
	closers  []io.Closer
	closed   bool
}

// New creates a session with every enabled builtin and precompile loaded.
func New(opts ...Option) (*Seashell, error) {
	st := settings{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&st)
	}
	if st.engine == nil {
		st.engine = native.New()
	}
	if st.features == nil {
		st.features = svm.AllEnabled()
	}
	if st.registerer == nil {
		st.registerer = prometheus.NewRegistry()
	}

	m, err := newMetrics(st.registerer)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	logger := st.logger.With().Str("session", id.String()).Logger()

	storeOpts := []accountsdb.Option{accountsdb.WithLogger(logger)}
	if st.base != nil {
		storeOpts = append(storeOpts, accountsdb.WithBase(st.base))
	}
	store := accountsdb.New(storeOpts...)
	if err := store.LoadBuiltins(st.features); err != nil {
		return nil, err
	}

	logger.Debug().
		Bool("memoize", st.config.Memoize).
		Bool("allow_uninitialized_accounts", st.config.AllowUninitializedAccounts).
		Int("programs", store.Programs().Len()).
		Msg("session started")

	return &Seashell{
		id:       id,
		config:   st.config,
		store:    store,
		engine:   st.engine,
		features: st.features,
		journal:  st.journal,
		remote:   st.remote,
		metrics:  m,
		logger:   logger,
		closers:  st.closers,
	}, nil
}

// ID returns the session id recorded in logs and journal entries.
func (s *Seashell) ID() uuid.UUID { return s.id }

// Config returns the session flags.
func (s *Seashell) Config() Config { return s.config }

// Store exposes the account store.
func (s *Seashell) Store() *accountsdb.Store { return s.store }

// Features returns the active feature gates.
func (s *Seashell) Features() *svm.FeatureSet { return s.features }

// Close flushes the scenario overlay and releases resources the session
// owns. A flush failure is reported in the FlushResult, not as an error.
func (s *Seashell) Close() (scenario.FlushResult, error) {
	if s.closed {
		return scenario.FlushResult{}, ErrClosed
	}
	s.closed = true

	res, err := s.store.Overlay().Close()

	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return res, err
}
