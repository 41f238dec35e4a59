package sysvar

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/accounts"
)

type codec interface {
	MarshalWithEncoder(enc *bin.Encoder) error
	UnmarshalWithDecoder(dec *bin.Decoder) error
}

// Cache holds one typed value per recognized sysvar.
type Cache struct {
	clock           Clock
	epochSchedule   EpochSchedule
	epochRewards    EpochRewards
	rent            Rent
	slotHashes      SlotHashes
	stakeHistory    StakeHistory
	lastRestartSlot LastRestartSlot
}

// NewCache returns a cache with internally consistent defaults: the slot hash
// ring starts at the default clock slot and stake history has one entry for
// the default clock epoch.
func NewCache() *Cache {
	c := &Cache{
		epochSchedule: EpochScheduleWithoutWarmup(),
		rent:          DefaultRent(),
	}
	c.slotHashes = DefaultSlotHashes(c.clock.Slot)
	c.stakeHistory.Add(c.clock.Epoch, StakeHistoryEntry{})
	return c
}

// Recognized lists the identifiers the cache owns.
func Recognized() []types.Pubkey {
	return []types.Pubkey{
		types.SysvarClockAddr,
		types.SysvarEpochScheduleAddr,
		types.SysvarEpochRewardsAddr,
		types.SysvarRentAddr,
		types.SysvarSlotHashesAddr,
		types.SysvarStakeHistoryAddr,
		types.SysvarLastRestartSlotAddr,
	}
}

// IsRecognized reports whether id is one of the sysvars the cache owns.
func (c *Cache) IsRecognized(id types.Pubkey) bool {
	return c.field(id) != nil
}

func (c *Cache) field(id types.Pubkey) codec {
	switch id {
	case types.SysvarClockAddr:
		return &c.clock
	case types.SysvarEpochScheduleAddr:
		return &c.epochSchedule
	case types.SysvarEpochRewardsAddr:
		return &c.epochRewards
	case types.SysvarRentAddr:
		return &c.rent
	case types.SysvarSlotHashesAddr:
		return &c.slotHashes
	case types.SysvarStakeHistoryAddr:
		return &c.stakeHistory
	case types.SysvarLastRestartSlotAddr:
		return &c.lastRestartSlot
	default:
		return nil
	}
}

// Get synthesizes the account record for a sysvar: zero balance, the
// serialized value as data, and the sysvar owner.
func (c *Cache) Get(id types.Pubkey) (*accounts.Account, error) {
	f := c.field(id)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSysvar, id)
	}
	data, err := Encode(f)
	if err != nil {
		return nil, fmt.Errorf("encode sysvar %s: %w", id, err)
	}
	return &accounts.Account{
		Data:  data,
		Owner: types.SysvarOwnerAddr,
	}, nil
}

// Set decodes data into the typed field for id. The field is unchanged on error.
func (c *Cache) Set(id types.Pubkey, data []byte) error {
	if c.field(id) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSysvar, id)
	}
	// Decode into a scratch cache so a failed decode leaves c untouched.
	var scratch Cache
	if err := Decode(data, scratch.field(id)); err != nil {
		return fmt.Errorf("sysvar %s: %w", id, err)
	}
	switch id {
	case types.SysvarClockAddr:
		c.clock = scratch.clock
	case types.SysvarEpochScheduleAddr:
		c.epochSchedule = scratch.epochSchedule
	case types.SysvarEpochRewardsAddr:
		c.epochRewards = scratch.epochRewards
	case types.SysvarRentAddr:
		c.rent = scratch.rent
	case types.SysvarSlotHashesAddr:
		c.slotHashes = scratch.slotHashes
	case types.SysvarStakeHistoryAddr:
		c.stakeHistory = scratch.stakeHistory
	case types.SysvarLastRestartSlotAddr:
		c.lastRestartSlot = scratch.lastRestartSlot
	}
	return nil
}

// Warp moves the clock to slot and timestamp.
func (c *Cache) Warp(slot uint64, unixTimestamp int64) {
	c.clock.Slot = slot
	c.clock.UnixTimestamp = unixTimestamp
}

func (c *Cache) Clock() Clock                     { return c.clock }
func (c *Cache) SetClock(v Clock)                 { c.clock = v }
func (c *Cache) Rent() Rent                       { return c.rent }
func (c *Cache) SetRent(v Rent)                   { c.rent = v }
func (c *Cache) EpochSchedule() EpochSchedule     { return c.epochSchedule }
func (c *Cache) SetEpochSchedule(v EpochSchedule) { c.epochSchedule = v }
func (c *Cache) EpochRewards() EpochRewards       { return c.epochRewards }
func (c *Cache) SetEpochRewards(v EpochRewards)   { c.epochRewards = v }
func (c *Cache) LastRestartSlot() LastRestartSlot { return c.lastRestartSlot }
func (c *Cache) SetLastRestartSlot(v LastRestartSlot) {
	c.lastRestartSlot = v
}

// SlotHashes returns a copy of the slot hash ring.
func (c *Cache) SlotHashes() SlotHashes {
	return append(SlotHashes(nil), c.slotHashes...)
}

func (c *Cache) SetSlotHashes(v SlotHashes) {
	c.slotHashes = append(SlotHashes(nil), v...)
}

// StakeHistory returns a copy of the stake history.
func (c *Cache) StakeHistory() StakeHistory {
	return append(StakeHistory(nil), c.stakeHistory...)
}

func (c *Cache) SetStakeHistory(v StakeHistory) {
	c.stakeHistory = append(StakeHistory(nil), v...)
}

// Encode serializes a sysvar value with its bincode layout.
func Encode(v interface {
	MarshalWithEncoder(enc *bin.Encoder) error
}) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := v.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses bincode bytes into v. Trailing bytes are ignored, as bincode does.
func Decode(data []byte, v interface {
	UnmarshalWithDecoder(dec *bin.Decoder) error
}) error {
	if err := v.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return nil
}
