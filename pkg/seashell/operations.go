package seashell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
	"github.com/fortiblox/seashell/pkg/config"
	"github.com/fortiblox/seashell/pkg/scenario"
)

// DefaultProgramDir is searched when neither Config.ProgramDir nor
// SBF_OUT_DIR is set.
const DefaultProgramDir = "target/deploy"

// Airdrop adds amount lamports to id, creating a system-owned account when
// none exists.
func (s *Seashell) Airdrop(id types.Pubkey, amount uint64) error {
	if s.closed {
		return ErrClosed
	}
	acct, ok, err := s.store.ResolveOptional(id)
	if err != nil {
		return err
	}
	if !ok {
		acct = &accounts.Account{Owner: types.SystemProgramAddr}
	}
	if acct.Lamports+amount < acct.Lamports {
		return fmt.Errorf("%w: %s", ErrLamportsOverflow, id)
	}
	acct.Lamports += amount
	return s.store.Write(id, acct)
}

// Account resolves id through every layer, the remote source included.
func (s *Seashell) Account(ctx context.Context, id types.Pubkey) (*accounts.Account, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.store.ResolveRequired(ctx, id)
}

// SetAccount writes acct under id.
func (s *Seashell) SetAccount(id types.Pubkey, acct *accounts.Account) error {
	if s.closed {
		return ErrClosed
	}
	return s.store.Write(id, acct)
}

// SetAccountMock writes an empty placeholder account owned by id itself.
func (s *Seashell) SetAccountMock(id types.Pubkey) error {
	return s.SetAccount(id, &accounts.Account{Owner: id})
}

// LoadProgramFromBytes deploys image under id with the BPF loader.
func (s *Seashell) LoadProgramFromBytes(id types.Pubkey, image []byte) error {
	if s.closed {
		return ErrClosed
	}
	return s.store.LoadProgram(id, image, types.BPFLoader2Addr)
}

// LoadProgramFromEnvironment deploys <name>.so from the program directory:
// Config.ProgramDir, then SBF_OUT_DIR, then target/deploy.
func (s *Seashell) LoadProgramFromEnvironment(name string, id types.Pubkey) error {
	return s.loadProgramFile("", name, id)
}

// SPL program images and the addresses LoadSPL deploys them under.
var splPrograms = []struct {
	name string
	id   types.Pubkey
}{
	{"tokenkeg", types.TokenProgramAddr},
	{"associated_token", types.AssociatedTokenProgramAddr},
	{"token22", types.Token2022ProgramAddr},
}

// LoadSPL deploys the Token, Associated Token and Token-2022 programs from
// tokenkeg.so, associated_token.so and token22.so in dir. An empty dir
// searches the program directories of LoadProgramFromEnvironment.
func (s *Seashell) LoadSPL(dir string) error {
	for _, p := range splPrograms {
		if err := s.loadProgramFile(dir, p.name, p.id); err != nil {
			return err
		}
	}
	return nil
}

// LoadPToken replaces the Token program with the p-token build in
// ptoken.so.
func (s *Seashell) LoadPToken(dir string) error {
	return s.loadProgramFile(dir, "ptoken", types.TokenProgramAddr)
}

func (s *Seashell) programDir() string {
	if s.config.ProgramDir != "" {
		return s.config.ProgramDir
	}
	if dir := os.Getenv(config.EnvSBFOutDir); dir != "" {
		return dir
	}
	return DefaultProgramDir
}

func (s *Seashell) loadProgramFile(dir, name string, id types.Pubkey) error {
	if dir == "" {
		dir = s.programDir()
	}
	path := filepath.Join(dir, name+".so")
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load program %s: %w", name, err)
	}
	if err := s.LoadProgramFromBytes(id, image); err != nil {
		return err
	}
	s.logger.Info().Str("path", path).Str("program", id.String()).Msg("program loaded from file")
	return nil
}

// LoadScenario replaces the scenario overlay with the file at path, created
// on first flush if it does not exist. Missing accounts fall back to the
// session's remote source when one was configured.
func (s *Seashell) LoadScenario(path string) error {
	return s.LoadScenarioWithRemote(path, s.remote)
}

// LoadScenarioWithRemote is LoadScenario with an explicit remote source. A
// nil source disables remote fallback.
func (s *Seashell) LoadScenarioWithRemote(path string, src scenario.Source) error {
	if s.closed {
		return ErrClosed
	}
	opts := []scenario.Option{scenario.WithLogger(s.logger)}
	if src != nil {
		opts = append(opts, scenario.WithRemote(src))
	}
	o, err := scenario.Open(path, opts...)
	if err != nil {
		return err
	}
	return s.replaceOverlay(o)
}

// UseRemoteOnly replaces the overlay with a non-persistent one backed only
// by src.
func (s *Seashell) UseRemoteOnly(src scenario.Source) error {
	if s.closed {
		return ErrClosed
	}
	return s.replaceOverlay(scenario.RemoteOnly(src, scenario.WithLogger(s.logger)))
}

// replaceOverlay closes the current overlay, flushing it if needed.
func (s *Seashell) replaceOverlay(o *scenario.Overlay) error {
	prev := s.store.SetOverlay(o)
	if _, err := prev.Close(); err != nil {
		return fmt.Errorf("close previous scenario: %w", err)
	}
	return nil
}

// Warp moves the clock sysvar to slot and unixTimestamp.
func (s *Seashell) Warp(slot uint64, unixTimestamp int64) {
	s.store.Sysvars().Warp(slot, unixTimestamp)
}
