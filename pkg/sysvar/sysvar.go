// Package sysvar holds the well-known environment records ("sysvars") a
// session exposes to instructions.
//
// Each sysvar is a typed Go value with a bincode layout matching what on-chain
// programs deserialize. The Cache keeps one typed field per recognized sysvar;
// an identifier it recognizes is never stored in a generic account map.
package sysvar

import (
	"errors"
	"math"
	"sort"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/seashell/internal/types"
)

var (
	// ErrUnknownSysvar is returned by Get/Set for identifiers outside the recognized set.
	ErrUnknownSysvar = errors.New("unknown system variable")

	// ErrInvalidEncoding is returned when sysvar bytes cannot be decoded.
	ErrInvalidEncoding = errors.New("invalid system variable encoding")
)

const (
	// AccountStorageOverhead is the per-account byte overhead charged for rent.
	AccountStorageOverhead = 128

	DefaultLamportsPerByteYear = 1_000_000_000 / 100 * 365 / (1024 * 1024) // 3480
	DefaultExemptionThreshold  = 2.0
	DefaultBurnPercent         = 50

	DefaultSlotsPerEpoch = 432_000

	// MaxSlotHashes is the size of the recent slot hash ring.
	MaxSlotHashes = 512

	// MaxStakeHistoryEntries bounds the stake history list.
	MaxStakeHistoryEntries = 512
)

// Clock is the cluster clock sysvar.
type Clock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

func (c *Clock) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(c.Slot, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteInt64(c.EpochStartTimestamp, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.Epoch, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(c.LeaderScheduleEpoch, bin.LE); err != nil {
		return err
	}
	return enc.WriteInt64(c.UnixTimestamp, bin.LE)
}

func (c *Clock) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if c.Slot, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if c.EpochStartTimestamp, err = dec.ReadInt64(bin.LE); err != nil {
		return err
	}
	if c.Epoch, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if c.LeaderScheduleEpoch, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	c.UnixTimestamp, err = dec.ReadInt64(bin.LE)
	return err
}

// Rent holds the rent parameters.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

// DefaultRent returns the cluster default rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// MinimumBalance returns the balance an account holding dataLen bytes needs
// to be rent exempt.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	bytes := uint64(AccountStorageOverhead + dataLen)
	v := float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold
	if v >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(v)
}

func (r *Rent) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(r.LamportsPerByteYear, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteFloat64(r.ExemptionThreshold, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint8(r.BurnPercent)
}

func (r *Rent) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if r.LamportsPerByteYear, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if r.ExemptionThreshold, err = dec.ReadFloat64(bin.LE); err != nil {
		return err
	}
	r.BurnPercent, err = dec.ReadUint8()
	return err
}

// EpochSchedule describes epoch boundaries.
type EpochSchedule struct {
	SlotsPerEpoch            uint64
	LeaderScheduleSlotOffset uint64
	Warmup                   bool
	FirstNormalEpoch         uint64
	FirstNormalSlot          uint64
}

// EpochScheduleWithoutWarmup returns a schedule with fixed-length epochs from genesis.
func EpochScheduleWithoutWarmup() EpochSchedule {
	return EpochSchedule{
		SlotsPerEpoch:            DefaultSlotsPerEpoch,
		LeaderScheduleSlotOffset: DefaultSlotsPerEpoch,
	}
}

func (s *EpochSchedule) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(s.SlotsPerEpoch, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteUint64(s.LeaderScheduleSlotOffset, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteBool(s.Warmup); err != nil {
		return err
	}
	if err := enc.WriteUint64(s.FirstNormalEpoch, bin.LE); err != nil {
		return err
	}
	return enc.WriteUint64(s.FirstNormalSlot, bin.LE)
}

func (s *EpochSchedule) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if s.SlotsPerEpoch, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if s.LeaderScheduleSlotOffset, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if s.Warmup, err = readBool(dec); err != nil {
		return err
	}
	if s.FirstNormalEpoch, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	s.FirstNormalSlot, err = dec.ReadUint64(bin.LE)
	return err
}

// Uint128 is a little-endian 128-bit integer split into halves.
type Uint128 struct {
	Lo uint64
	Hi uint64
}

// EpochRewards tracks partitioned reward distribution.
type EpochRewards struct {
	DistributionStartingBlockHeight uint64
	NumPartitions                   uint64
	ParentBlockhash                 types.Hash
	TotalPoints                     Uint128
	TotalRewards                    uint64
	DistributedRewards              uint64
	Active                          bool
}

func (r *EpochRewards) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, v := range []uint64{r.DistributionStartingBlockHeight, r.NumPartitions} {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	if err := enc.WriteBytes(r.ParentBlockhash[:], false); err != nil {
		return err
	}
	for _, v := range []uint64{r.TotalPoints.Lo, r.TotalPoints.Hi, r.TotalRewards, r.DistributedRewards} {
		if err := enc.WriteUint64(v, bin.LE); err != nil {
			return err
		}
	}
	return enc.WriteBool(r.Active)
}

func (r *EpochRewards) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if r.DistributionStartingBlockHeight, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if r.NumPartitions, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	if r.ParentBlockhash, err = readHash(dec); err != nil {
		return err
	}
	for _, dst := range []*uint64{&r.TotalPoints.Lo, &r.TotalPoints.Hi, &r.TotalRewards, &r.DistributedRewards} {
		if *dst, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
	}
	r.Active, err = readBool(dec)
	return err
}

// SlotHash pairs a slot with its bank hash.
type SlotHash struct {
	Slot uint64
	Hash types.Hash
}

// SlotHashes is the recent slot hash ring, most recent first.
type SlotHashes []SlotHash

// DefaultSlotHashes returns a full ring of zero entries whose first slot is slot.
func DefaultSlotHashes(slot uint64) SlotHashes {
	hashes := make(SlotHashes, MaxSlotHashes)
	hashes[0].Slot = slot
	return hashes
}

func (h *SlotHashes) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(uint64(len(*h)), bin.LE); err != nil {
		return err
	}
	for _, e := range *h {
		if err := enc.WriteUint64(e.Slot, bin.LE); err != nil {
			return err
		}
		if err := enc.WriteBytes(e.Hash[:], false); err != nil {
			return err
		}
	}
	return nil
}

func (h *SlotHashes) UnmarshalWithDecoder(dec *bin.Decoder) error {
	n, err := readLen(dec, 8+types.HashSize)
	if err != nil {
		return err
	}
	out := make(SlotHashes, n)
	for i := range out {
		if out[i].Slot, err = dec.ReadUint64(bin.LE); err != nil {
			return err
		}
		if out[i].Hash, err = readHash(dec); err != nil {
			return err
		}
	}
	*h = out
	return nil
}

// StakeHistoryEntry is the cluster stake state for one epoch.
type StakeHistoryEntry struct {
	Effective    uint64
	Activating   uint64
	Deactivating uint64
}

// EpochStake pairs an epoch with its stake history entry.
type EpochStake struct {
	Epoch uint64
	Entry StakeHistoryEntry
}

// StakeHistory is ordered by descending epoch.
type StakeHistory []EpochStake

// Add inserts or replaces the entry for epoch, keeping descending order and
// the length bound.
func (h *StakeHistory) Add(epoch uint64, entry StakeHistoryEntry) {
	list := *h
	i := sort.Search(len(list), func(i int) bool { return list[i].Epoch <= epoch })
	if i < len(list) && list[i].Epoch == epoch {
		list[i].Entry = entry
		return
	}
	list = append(list, EpochStake{})
	copy(list[i+1:], list[i:])
	list[i] = EpochStake{Epoch: epoch, Entry: entry}
	if len(list) > MaxStakeHistoryEntries {
		list = list[:MaxStakeHistoryEntries]
	}
	*h = list
}

// Get returns the entry recorded for epoch.
func (h StakeHistory) Get(epoch uint64) (StakeHistoryEntry, bool) {
	for _, e := range h {
		if e.Epoch == epoch {
			return e.Entry, true
		}
	}
	return StakeHistoryEntry{}, false
}

func (h *StakeHistory) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(uint64(len(*h)), bin.LE); err != nil {
		return err
	}
	for _, e := range *h {
		for _, v := range []uint64{e.Epoch, e.Entry.Effective, e.Entry.Activating, e.Entry.Deactivating} {
			if err := enc.WriteUint64(v, bin.LE); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *StakeHistory) UnmarshalWithDecoder(dec *bin.Decoder) error {
	n, err := readLen(dec, 32)
	if err != nil {
		return err
	}
	out := make(StakeHistory, n)
	for i := range out {
		e := &out[i]
		for _, dst := range []*uint64{&e.Epoch, &e.Entry.Effective, &e.Entry.Activating, &e.Entry.Deactivating} {
			if *dst, err = dec.ReadUint64(bin.LE); err != nil {
				return err
			}
		}
	}
	*h = out
	return nil
}

// LastRestartSlot is the slot of the most recent cluster restart.
type LastRestartSlot struct {
	LastRestartSlot uint64
}

func (s *LastRestartSlot) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(s.LastRestartSlot, bin.LE)
}

func (s *LastRestartSlot) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	s.LastRestartSlot, err = dec.ReadUint64(bin.LE)
	return err
}

func readBool(dec *bin.Decoder) (bool, error) {
	b, err := dec.ReadUint8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrInvalidEncoding
	}
}

func readHash(dec *bin.Decoder) (types.Hash, error) {
	var h types.Hash
	raw, err := dec.ReadNBytes(types.HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], raw)
	return h, nil
}

// readLen reads a bincode sequence length and checks it against the bytes left.
func readLen(dec *bin.Decoder, elemSize int) (int, error) {
	n, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return 0, err
	}
	if n > uint64(dec.Remaining()/elemSize) {
		return 0, ErrInvalidEncoding
	}
	return int(n), nil
}
