package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/seashell/internal/types"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	config := DefaultConfig(filepath.Join(t.TempDir(), "nested", "journal.db"))
	config.NoSync = true
	s, err := Open(config)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndGet(t *testing.T) {
	s := openTemp(t)
	session := uuid.New()
	acct := types.NewUniquePubkey()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seq, err := s.Append(&Entry{
		Session:       session,
		ProgramID:     types.SystemProgramAddr,
		ComputeUnits:  150,
		ReturnData:    []byte{1, 2},
		AccountHashes: []AccountHash{{Pubkey: acct, Hash: types.ComputeHash([]byte("state"))}},
		Time:          at,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	got, err := s.Get(seq)
	require.NoError(t, err)
	assert.Equal(t, session, got.Session)
	assert.Equal(t, types.SystemProgramAddr, got.ProgramID)
	assert.Equal(t, uint64(150), got.ComputeUnits)
	assert.Equal(t, []byte{1, 2}, got.ReturnData)
	require.Len(t, got.AccountHashes, 1)
	assert.Equal(t, acct, got.AccountHashes[0].Pubkey)
	assert.True(t, at.Equal(got.Time))
	assert.True(t, got.Succeeded())

	_, err = s.Get(99)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestList(t *testing.T) {
	s := openTemp(t)
	a, b := uuid.New(), uuid.New()

	for i, session := range []uuid.UUID{a, b, a, a} {
		entry := &Entry{Session: session, ComputeUnits: uint64(i)}
		if i == 2 {
			entry.Err = "insufficient funds"
		}
		_, err := s.Append(entry)
		require.NoError(t, err)
	}

	all, err := s.List(ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.False(t, e.Time.IsZero())
	}
	assert.False(t, all[2].Succeeded())

	onlyA, err := s.List(ListOptions{Session: a})
	require.NoError(t, err)
	require.Len(t, onlyA, 3)
	assert.Equal(t, []uint64{1, 3, 4}, []uint64{onlyA[0].Seq, onlyA[1].Seq, onlyA[2].Seq})

	page, err := s.List(ListOptions{After: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(2), page[0].Seq)
	assert.Equal(t, uint64(3), page[1].Seq)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestReopenContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	_, err = s.Append(&Entry{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s.Close()
	seq, err := s.Append(&Entry{})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestClosed(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Append(&Entry{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.List(ListOptions{})
	assert.ErrorIs(t, err, ErrClosed)
}
