// Package scenario implements the persisted account overlay that sits above
// the base store.
//
// An overlay is loaded from a gzip-compressed JSON file at session start,
// populated lazily from an optional remote Source, and written back once when
// the session closes it, only if something changed.
package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
)

var (
	// ErrRemoteNotConfigured is returned by FetchFromRemote when the overlay has no Source.
	ErrRemoteNotConfigured = errors.New("account not found locally and no remote source is configured")

	// ErrRemoteFetchFailed wraps a Source failure.
	ErrRemoteFetchFailed = errors.New("remote account fetch failed")

	// ErrMalformedScenario is returned by Open when an existing file cannot be decoded.
	ErrMalformedScenario = errors.New("malformed scenario file")

	// ErrClosed is returned when Close is called twice.
	ErrClosed = errors.New("scenario already closed")
)

// Source fetches a single account from outside the session. Implementations
// block until the account arrives or the fetch fails; the overlay adds no
// timeout or retry of its own.
type Source interface {
	FetchAccount(ctx context.Context, id types.Pubkey) (*accounts.Account, error)
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithRemote sets the fallback source for accounts missing from the overlay.
func WithRemote(src Source) Option {
	return func(o *Overlay) {
		o.remote = src
	}
}

// WithLogger sets the logger used for load, fetch and flush events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Overlay) {
		o.logger = logger
	}
}

// Overlay is a mutable account map with dirty tracking. It is owned by one
// session and is not safe for concurrent use.
type Overlay struct {
	entries map[types.Pubkey]*accounts.Account
	dirty   bool
	persist bool
	path    string
	remote  Source
	logger  zerolog.Logger
	closed  bool
}

func newOverlay(opts []Option) *Overlay {
	o := &Overlay{
		entries: make(map[types.Pubkey]*accounts.Account),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New returns an empty overlay that is never persisted.
func New(opts ...Option) *Overlay {
	return newOverlay(opts)
}

// Open loads the overlay stored at path, or starts an empty one if the file
// does not exist. The overlay is written back to path on Close when dirty.
func Open(path string, opts ...Option) (*Overlay, error) {
	o := newOverlay(opts)
	o.path = path
	o.persist = true

	entries, found, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if found {
		o.entries = entries
	}
	o.logger.Info().
		Str("path", path).
		Bool("existing", found).
		Int("accounts", len(o.entries)).
		Bool("remote", o.remote != nil).
		Msg("scenario opened")
	return o, nil
}

// RemoteOnly returns an overlay backed only by src. It caches fetched
// accounts for the session but has no path and never writes.
func RemoteOnly(src Source, opts ...Option) *Overlay {
	o := newOverlay(opts)
	o.remote = src
	return o
}

// Get returns a copy of the entry for id.
func (o *Overlay) Get(id types.Pubkey) (*accounts.Account, bool) {
	acct, ok := o.entries[id]
	if !ok {
		return nil, false
	}
	return acct.Clone(), true
}

// Contains reports whether the overlay holds an entry for id.
func (o *Overlay) Contains(id types.Pubkey) bool {
	_, ok := o.entries[id]
	return ok
}

// Insert stores a copy of acct under id and marks the overlay dirty.
func (o *Overlay) Insert(id types.Pubkey, acct *accounts.Account) {
	o.entries[id] = acct.Clone()
	o.dirty = true
}

// FetchFromRemote asks the remote source for id, caches the result and marks
// the overlay dirty.
func (o *Overlay) FetchFromRemote(ctx context.Context, id types.Pubkey) (*accounts.Account, error) {
	if o.remote == nil {
		return nil, fmt.Errorf("%w: %s", ErrRemoteNotConfigured, id)
	}

	o.logger.Debug().Str("pubkey", id.String()).Msg("fetching account from remote")
	acct, err := o.remote.FetchAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRemoteFetchFailed, id, err)
	}

	o.entries[id] = acct.Clone()
	o.dirty = true
	return acct, nil
}

// HasRemote reports whether a remote source is configured.
func (o *Overlay) HasRemote() bool {
	return o.remote != nil
}

// Dirty reports whether the overlay changed since it was opened.
func (o *Overlay) Dirty() bool {
	return o.dirty
}

// Path returns the backing file, or "" for overlays that never persist.
func (o *Overlay) Path() string {
	return o.path
}

// Len returns the number of entries.
func (o *Overlay) Len() int {
	return len(o.entries)
}

// FlushResult reports what Close did with the backing file.
type FlushResult struct {
	// Written is true when the file was rewritten successfully.
	Written bool

	Path     string
	Accounts int

	// Err is the write failure, if any. It is logged and not returned by Close.
	Err error
}

// Close finalizes the overlay. When the overlay is dirty and persistent its
// entries are written to the backing file; write failures are logged and
// reported in the result, never returned. Close may be called only once.
func (o *Overlay) Close() (FlushResult, error) {
	if o.closed {
		return FlushResult{}, ErrClosed
	}
	o.closed = true

	res := FlushResult{Path: o.path, Accounts: len(o.entries)}
	if !o.dirty || !o.persist || o.path == "" {
		return res, nil
	}

	if err := writeFile(o.path, o.entries); err != nil {
		o.logger.Warn().Err(err).Str("path", o.path).Msg("failed to persist scenario")
		res.Err = err
		return res, nil
	}

	res.Written = true
	o.logger.Info().Str("path", o.path).Int("accounts", res.Accounts).Msg("scenario persisted")
	return res, nil
}
