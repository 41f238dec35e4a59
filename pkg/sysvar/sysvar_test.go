package sysvar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/seashell/internal/types"
)

func TestDefaultsAreConsistent(t *testing.T) {
	fresh := NewCache()

	hashes := fresh.SlotHashes()
	require.Len(t, hashes, MaxSlotHashes)
	assert.Equal(t, fresh.Clock().Slot, hashes[0].Slot)

	history := fresh.StakeHistory()
	require.Len(t, history, 1)
	assert.Equal(t, fresh.Clock().Epoch, history[0].Epoch)
	assert.Equal(t, StakeHistoryEntry{}, history[0].Entry)

	assert.Equal(t, EpochScheduleWithoutWarmup(), fresh.EpochSchedule())
	assert.Equal(t, uint64(3480), fresh.Rent().LamportsPerByteYear)
}

func TestRentMinimumBalance(t *testing.T) {
	r := DefaultRent()
	assert.Equal(t, uint64(890880), r.MinimumBalance(0))
	assert.Equal(t, uint64(7850880), r.MinimumBalance(1000))
}

func TestClockEncoding(t *testing.T) {
	clock := Clock{Slot: 1, EpochStartTimestamp: 2, Epoch: 3, LeaderScheduleEpoch: 4, UnixTimestamp: 5}
	raw, err := Encode(&clock)
	require.NoError(t, err)
	require.Len(t, raw, 40)
	assert.Equal(t, byte(1), raw[0])
	assert.Equal(t, byte(5), raw[32])

	var decoded Clock
	require.NoError(t, Decode(raw, &decoded))
	assert.Equal(t, clock, decoded)
}

func TestRentEncodingLength(t *testing.T) {
	r := DefaultRent()
	raw, err := Encode(&r)
	require.NoError(t, err)
	assert.Len(t, raw, 17)
}

func TestEpochRewardsEncodingLength(t *testing.T) {
	r := EpochRewards{TotalPoints: Uint128{Lo: 1, Hi: 2}, Active: true}
	raw, err := Encode(&r)
	require.NoError(t, err)
	assert.Len(t, raw, 8+8+32+16+8+8+1)

	var decoded EpochRewards
	require.NoError(t, Decode(raw, &decoded))
	assert.Equal(t, r, decoded)
}

func TestCacheGetSet(t *testing.T) {
	c := NewCache()

	for _, id := range Recognized() {
		assert.True(t, c.IsRecognized(id), id.String())
		acct, err := c.Get(id)
		require.NoError(t, err, id.String())
		assert.Equal(t, types.SysvarOwnerAddr, acct.Owner)
		assert.Zero(t, acct.Lamports)

		// Every value survives a get/set cycle.
		require.NoError(t, c.Set(id, acct.Data), id.String())
		again, err := c.Get(id)
		require.NoError(t, err)
		assert.Equal(t, acct.Data, again.Data)
	}

	clock := Clock{Slot: 9, UnixTimestamp: 99}
	raw, err := Encode(&clock)
	require.NoError(t, err)
	require.NoError(t, c.Set(types.SysvarClockAddr, raw))
	assert.Equal(t, clock, c.Clock())
}

func TestCacheUnknownAndMalformed(t *testing.T) {
	c := NewCache()

	assert.False(t, c.IsRecognized(types.SysvarFeesAddr))
	_, err := c.Get(types.SysvarFeesAddr)
	assert.ErrorIs(t, err, ErrUnknownSysvar)
	assert.ErrorIs(t, c.Set(types.SystemProgramAddr, nil), ErrUnknownSysvar)

	before := c.Clock()
	err = c.Set(types.SysvarClockAddr, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.NotErrorIs(t, err, ErrUnknownSysvar)
	assert.Equal(t, before, c.Clock())

	// A length prefix larger than the payload is rejected.
	err = c.Set(types.SysvarSlotHashesAddr, []byte{0xff, 0xff, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestWarp(t *testing.T) {
	c := NewCache()
	c.Warp(1000, 1700000000)
	assert.Equal(t, uint64(1000), c.Clock().Slot)
	assert.Equal(t, int64(1700000000), c.Clock().UnixTimestamp)
}

func TestStakeHistoryAdd(t *testing.T) {
	var h StakeHistory
	h.Add(5, StakeHistoryEntry{Effective: 5})
	h.Add(7, StakeHistoryEntry{Effective: 7})
	h.Add(6, StakeHistoryEntry{Effective: 6})
	h.Add(7, StakeHistoryEntry{Effective: 70})

	require.Len(t, h, 3)
	assert.Equal(t, []uint64{7, 6, 5}, []uint64{h[0].Epoch, h[1].Epoch, h[2].Epoch})
	got, ok := h.Get(7)
	require.True(t, ok)
	assert.Equal(t, uint64(70), got.Effective)

	for i := uint64(0); i < MaxStakeHistoryEntries+10; i++ {
		h.Add(100+i, StakeHistoryEntry{})
	}
	assert.Len(t, h, MaxStakeHistoryEntries)
	assert.Equal(t, uint64(100+MaxStakeHistoryEntries+9), h[0].Epoch)
}

func TestEnvironment(t *testing.T) {
	c := NewCache()
	env := NewEnvironment(func(id types.Pubkey) []byte {
		if !c.IsRecognized(id) {
			return nil
		}
		acct, err := c.Get(id)
		require.NoError(t, err)
		return acct.Data
	})

	fees, ok := env.Get(types.SysvarFeesAddr)
	assert.True(t, ok)
	assert.Empty(t, fees)

	clock, err := env.Clock()
	require.NoError(t, err)
	assert.Equal(t, c.Clock(), clock)

	rent, err := env.Rent()
	require.NoError(t, err)
	assert.Equal(t, DefaultRent(), rent)

	_, ok = env.Get(types.SystemProgramAddr)
	assert.False(t, ok)
}
