// Package journal keeps an append-only record of processed instructions.
//
// Entries are gob-encoded into a single BoltDB bucket keyed by a big-endian
// sequence number, so iteration order is processing order across sessions.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/fortiblox/seashell/internal/types"
)

var (
	// ErrEntryNotFound is returned when a sequence number has no entry.
	ErrEntryNotFound = errors.New("journal entry not found")

	// ErrClosed is returned when operating on a closed journal.
	ErrClosed = errors.New("journal closed")
)

var bucketEntries = []byte("entries")

// Config holds journal options.
type Config struct {
	// Path is the database file.
	Path string

	// NoSync disables fsync after each append.
	NoSync bool

	// ReadOnly opens the database without write access.
	ReadOnly bool
}

// DefaultConfig returns the default configuration for path.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// AccountHash pairs an account with the digest of its post-execution state.
type AccountHash struct {
	Pubkey types.Pubkey
	Hash   types.Hash
}

// Entry records one processed instruction.
type Entry struct {
	// Seq is assigned by Append and starts at 1.
	Seq uint64

	Session      uuid.UUID
	ProgramID    types.Pubkey
	ComputeUnits uint64

	// Err is the execution error text, empty on success.
	Err string

	ReturnData    []byte
	AccountHashes []AccountHash
	Time          time.Time
}

// Succeeded reports whether the instruction executed without error.
func (e *Entry) Succeeded() bool {
	return e.Err == ""
}

// ListOptions filters List.
type ListOptions struct {
	// Session restricts results to one session when not uuid.Nil.
	Session uuid.UUID

	// After skips entries with Seq <= After.
	After uint64

	// Limit caps the number of entries; zero means no limit.
	Limit int
}

// Store is a BoltDB-backed journal.
type Store struct {
	db *bolt.DB

	mu     sync.RWMutex
	closed bool
}

// Open creates or opens the journal at config.Path.
func Open(config Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := bolt.Open(config.Path, 0600, &bolt.Options{
		Timeout:  5 * time.Second,
		NoSync:   config.NoSync,
		ReadOnly: config.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if !config.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketEntries)
			return err
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("init buckets: %w", err)
		}
	}

	return &Store{db: db}, nil
}

func encodeSeq(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Append assigns the next sequence number to entry and stores it.
func (s *Store) Append(entry *Entry) (uint64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		entry.Seq = seq
		if entry.Time.IsZero() {
			entry.Time = time.Now().UTC()
		}

		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		return b.Put(encodeSeq(seq), buf.Bytes())
	})
	if err != nil {
		return 0, err
	}
	return entry.Seq, nil
}

// Get returns the entry with sequence number seq.
func (s *Store) Get(seq uint64) (*Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var entry Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return ErrEntryNotFound
		}
		data := b.Get(encodeSeq(seq))
		if data == nil {
			return ErrEntryNotFound
		}
		return gob.NewDecoder(bytes.NewReader(data)).Decode(&entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns entries in sequence order.
func (s *Store) List(opts ListOptions) ([]Entry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(encodeSeq(opts.After + 1)); k != nil; k, v = c.Next() {
			var entry Entry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&entry); err != nil {
				return fmt.Errorf("decode entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if opts.Session != uuid.Nil && entry.Session != opts.Session {
				continue
			}
			out = append(out, entry)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketEntries); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Close closes the journal.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
