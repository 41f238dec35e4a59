// Package accountsdb composes the account layers of a session into one
// resolution chain.
//
// Lookups walk the layers in a fixed order and the first hit wins:
//
//	sysvar cache > scenario overlay > overrides > base store > remote
//
// The remote source is only consulted by ResolveRequired. Writes of a
// recognized sysvar always land in the typed cache; every other write goes
// to the base store.
package accountsdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/instruction"
	"github.com/fortiblox/seashell/pkg/remote"
	"github.com/fortiblox/seashell/pkg/scenario"
	"github.com/fortiblox/seashell/pkg/svm"
	"github.com/fortiblox/seashell/pkg/svm/loader"
	"github.com/fortiblox/seashell/pkg/sysvar"
)

var (
	// ErrAccountNotFound is returned when required resolution exhausts every
	// layer and no remote source is configured.
	ErrAccountNotFound = errors.New("account not found")

	// ErrProgramLoadFailed wraps a loader failure.
	ErrProgramLoadFailed = errors.New("program load failed")

	// ErrUnsupportedLoader is returned for loaders whose account layout is not modeled.
	ErrUnsupportedLoader = errors.New("unsupported program loader")
)

// Layer names reported by Locate.
const (
	LayerSysvar   = "sysvar"
	LayerScenario = "scenario"
	LayerOverride = "override"
	LayerBase     = "base"
)

// layer is one link of the resolution chain.
type layer struct {
	name   string
	lookup func(id types.Pubkey) (*accounts.Account, bool, error)
}

// Option configures a Store.
type Option func(*Store)

// WithBase replaces the in-memory base store.
func WithBase(db accounts.DB) Option {
	return func(s *Store) {
		s.base = db
	}
}

// WithOverlay sets the initial scenario overlay.
func WithOverlay(o *scenario.Overlay) Option {
	return func(s *Store) {
		s.overlay = o
	}
}

// WithSysvars sets the sysvar cache.
func WithSysvars(c *sysvar.Cache) Option {
	return func(s *Store) {
		s.sysvars = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store owns every account layer of one session. It is not safe for
// concurrent use.
type Store struct {
	sysvars   *sysvar.Cache
	overlay   *scenario.Overlay
	overrides map[types.Pubkey]*accounts.Account
	base      accounts.DB
	programs  *svm.ProgramCache
	loader    *loader.Loader
	logger    zerolog.Logger

	chain []layer
}

// New creates a store with an empty overlay, an in-memory base store and a
// default sysvar cache unless options say otherwise.
func New(opts ...Option) *Store {
	s := &Store{
		overrides: make(map[types.Pubkey]*accounts.Account),
		programs:  svm.NewProgramCache(),
		loader:    loader.NewLoader(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sysvars == nil {
		s.sysvars = sysvar.NewCache()
	}
	if s.overlay == nil {
		s.overlay = scenario.New(scenario.WithLogger(s.logger))
	}
	if s.base == nil {
		s.base = accounts.NewMemoryDB()
	}

	s.chain = []layer{
		{LayerSysvar, s.lookupSysvar},
		{LayerScenario, s.lookupOverlay},
		{LayerOverride, s.lookupOverride},
		{LayerBase, s.lookupBase},
	}
	return s
}

// Sysvars returns the typed sysvar cache.
func (s *Store) Sysvars() *sysvar.Cache { return s.sysvars }

// Overlay returns the current scenario overlay.
func (s *Store) Overlay() *scenario.Overlay { return s.overlay }

// Programs returns the loaded-program cache.
func (s *Store) Programs() *svm.ProgramCache { return s.programs }

// Base returns the base store.
func (s *Store) Base() accounts.DB { return s.base }

// SetOverlay swaps in o and returns the previous overlay. The caller owns
// closing the returned overlay.
func (s *Store) SetOverlay(o *scenario.Overlay) *scenario.Overlay {
	prev := s.overlay
	s.overlay = o
	return prev
}

// SetOverride places acct in the override layer. The layer is never
// persisted; it shadows the base store until ClearOverrides, and writes to
// an overridden id update the override.
func (s *Store) SetOverride(id types.Pubkey, acct *accounts.Account) {
	s.overrides[id] = acct.Clone()
}

// ClearOverrides empties the override layer.
func (s *Store) ClearOverrides() {
	clear(s.overrides)
}

func (s *Store) lookupSysvar(id types.Pubkey) (*accounts.Account, bool, error) {
	if !s.sysvars.IsRecognized(id) {
		return nil, false, nil
	}
	acct, err := s.sysvars.Get(id)
	if err != nil {
		return nil, false, err
	}
	return acct, true, nil
}

func (s *Store) lookupOverlay(id types.Pubkey) (*accounts.Account, bool, error) {
	acct, ok := s.overlay.Get(id)
	return acct, ok, nil
}

func (s *Store) lookupOverride(id types.Pubkey) (*accounts.Account, bool, error) {
	acct, ok := s.overrides[id]
	if !ok {
		return nil, false, nil
	}
	return acct.Clone(), true, nil
}

func (s *Store) lookupBase(id types.Pubkey) (*accounts.Account, bool, error) {
	acct, err := s.base.GetAccount(id)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("base store: %w", err)
	}
	return acct, true, nil
}

// Locate walks the chain without remote fallback and returns the account
// together with the name of the layer that produced it.
func (s *Store) Locate(id types.Pubkey) (*accounts.Account, string, error) {
	for _, l := range s.chain {
		acct, ok, err := l.lookup(id)
		if err != nil {
			return nil, "", fmt.Errorf("resolve %s in %s layer: %w", id, l.name, err)
		}
		if ok {
			return acct, l.name, nil
		}
	}
	return nil, "", nil
}

// ResolveOptional returns the first match in the chain. A miss everywhere
// is reported as ok == false, not as an error.
func (s *Store) ResolveOptional(id types.Pubkey) (*accounts.Account, bool, error) {
	acct, name, err := s.Locate(id)
	if err != nil {
		return nil, false, err
	}
	if acct == nil {
		s.logger.Debug().Str("pubkey", id.String()).Msg("account not found locally")
		return nil, false, nil
	}
	s.logger.Debug().Str("pubkey", id.String()).Str("layer", name).Msg("account resolved")
	return acct, true, nil
}

// ResolveRequired resolves id through the chain and falls back to the
// overlay's remote source. It fails with ErrAccountNotFound when no remote
// source is configured and with scenario.ErrRemoteFetchFailed when the fetch
// itself fails.
func (s *Store) ResolveRequired(ctx context.Context, id types.Pubkey) (*accounts.Account, error) {
	acct, ok, err := s.ResolveOptional(id)
	if err != nil {
		return nil, err
	}
	if ok {
		return acct, nil
	}
	if !s.overlay.HasRemote() {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return s.overlay.FetchFromRemote(ctx, id)
}

// Write stores acct under id in the layer that answers reads for it:
// recognized sysvars are decoded into the typed cache (failing with
// sysvar.ErrInvalidEncoding on malformed data), an id held by the scenario
// overlay or the override layer is updated there, anything else goes to the
// base store.
func (s *Store) Write(id types.Pubkey, acct *accounts.Account) error {
	switch {
	case s.sysvars.IsRecognized(id):
		return s.sysvars.Set(id, acct.Data)
	case s.overlay.Contains(id):
		s.overlay.Insert(id, acct)
		return nil
	default:
		if _, ok := s.overrides[id]; ok {
			s.overrides[id] = acct.Clone()
			return nil
		}
		return s.base.SetAccount(id, acct)
	}
}

// AccountsForInstruction resolves the program followed by every reference
// in instruction order, duplicates included. With allowUninitialized a
// reference that exists nowhere becomes a zeroed account.
func (s *Store) AccountsForInstruction(ctx context.Context, ix *instruction.Instruction, allowUninitialized bool) ([]svm.TransactionAccount, error) {
	out := make([]svm.TransactionAccount, 0, len(ix.Accounts)+1)

	prog, err := s.ResolveRequired(ctx, ix.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", ix.ProgramID, err)
	}
	out = append(out, svm.TransactionAccount{Pubkey: ix.ProgramID, Account: prog})

	for _, meta := range ix.Accounts {
		acct, err := s.resolveReference(ctx, meta.Pubkey, allowUninitialized)
		if err != nil {
			return nil, err
		}
		out = append(out, svm.TransactionAccount{Pubkey: meta.Pubkey, Account: acct})
	}
	return out, nil
}

func (s *Store) resolveReference(ctx context.Context, id types.Pubkey, allowUninitialized bool) (*accounts.Account, error) {
	acct, err := s.ResolveRequired(ctx, id)
	if err == nil {
		return acct, nil
	}
	if allowUninitialized && isMissing(err) {
		s.logger.Debug().Str("pubkey", id.String()).Msg("using uninitialized account")
		return &accounts.Account{}, nil
	}
	return nil, err
}

// isMissing reports whether err means the account does not exist, as
// opposed to a failed lookup.
func isMissing(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, remote.ErrAccountNotFound)
}

// SysvarsForInstruction builds the sysvar environment for one instruction.
// A sysvar passed explicitly as an instruction account wins over the
// store's own value; a sysvar found nowhere is presented with empty data.
func (s *Store) SysvarsForInstruction(accts []svm.TransactionAccount) *sysvar.Environment {
	passed := make(map[types.Pubkey][]byte, len(accts))
	for _, ta := range accts {
		if ta.Account == nil {
			continue
		}
		if _, seen := passed[ta.Pubkey]; !seen {
			passed[ta.Pubkey] = ta.Account.Data
		}
	}

	return sysvar.NewEnvironment(func(id types.Pubkey) []byte {
		if data, ok := passed[id]; ok {
			return data
		}
		acct, ok, err := s.ResolveOptional(id)
		if err != nil || !ok {
			return nil
		}
		return acct.Data
	})
}

// LoadProgram validates image, registers it in the program cache at the
// current clock slot and writes a rent-exempt executable account owned by
// loaderID.
func (s *Store) LoadProgram(id types.Pubkey, image []byte, loaderID types.Pubkey) error {
	switch {
	case !types.IsLoader(loaderID):
		return fmt.Errorf("%w: %s is not a program loader", ErrUnsupportedLoader, loaderID)
	case loaderID != types.BPFLoaderAddr && loaderID != types.BPFLoader2Addr:
		// Upgradeable and v4 deployments need a separate program data account.
		return fmt.Errorf("%w: %s", ErrUnsupportedLoader, loaderID)
	case types.IsPrecompile(id):
		return fmt.Errorf("%w: %s is a precompile address", ErrProgramLoadFailed, id)
	}

	exe, err := s.loader.Load(image)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrProgramLoadFailed, id, err)
	}

	slot := s.sysvars.Clock().Slot
	entry := svm.NewSBPFEntry(id, loaderID, slot, image, exe)
	s.programs.Add(entry)

	acct := &accounts.Account{
		Lamports:   s.sysvars.Rent().MinimumBalance(len(image)),
		Data:       image,
		Owner:      loaderID,
		Executable: true,
	}
	if err := s.Write(id, acct); err != nil {
		return fmt.Errorf("write program account %s: %w", id, err)
	}

	s.logger.Info().
		Str("program", id.String()).
		Str("loader", loaderID.String()).
		Uint64("slot", slot).
		Int("size", len(image)).
		Int("instructions", len(exe.Text)).
		Msg("program loaded")
	return nil
}

// LoadBuiltins registers every builtin enabled by features and writes its
// executable marker account.
func (s *Store) LoadBuiltins(features *svm.FeatureSet) error {
	for _, b := range s.programs.AddBuiltins(features) {
		marker := &accounts.Account{
			Lamports:   1,
			Owner:      types.NativeLoaderAddr,
			Executable: true,
		}
		if err := s.Write(b.ID, marker); err != nil {
			return fmt.Errorf("write builtin %s: %w", b.Name, err)
		}
	}
	return nil
}
