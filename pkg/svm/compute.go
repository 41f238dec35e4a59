package svm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
)

// Compute unit cost constants.
const (
	CUDefault = uint64(200_000)   // Default CU limit per instruction
	CUMax     = uint64(1_400_000) // Max CU limit per transaction

	// Native program defaults
	CUSystemProgramDefault = uint64(150) // System program base
	CUComputeBudgetDefault = uint64(150) // Compute budget base
	CUPrecompileDefault    = uint64(0)   // Precompiles are charged at the transaction level
)

// Heap size constants.
const (
	HeapSizeDefault = uint32(32 * 1024)  // 32 KB
	HeapSizeMax     = uint32(256 * 1024) // 256 KB maximum
)

var (
	// ErrComputeExceeded is returned when compute units are exhausted.
	ErrComputeExceeded = errors.New("compute budget exceeded")

	// ErrInvalidComputeBudgetInstruction is returned for malformed compute
	// budget program payloads.
	ErrInvalidComputeBudgetInstruction = errors.New("invalid compute budget instruction")
)

// ComputeMeter tracks compute unit consumption.
type ComputeMeter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
}

// NewComputeMeter creates a new compute meter with the specified limit.
// A zero limit selects CUDefault.
func NewComputeMeter(limit uint64) *ComputeMeter {
	if limit == 0 {
		limit = CUDefault
	}
	if limit > CUMax {
		limit = CUMax
	}
	return &ComputeMeter{remaining: limit, limit: limit}
}

// Consume attempts to consume the specified compute units.
// Returns ErrComputeExceeded if insufficient units remain; the meter is
// then drained.
func (cm *ComputeMeter) Consume(cost uint64) error {
	for {
		remaining := atomic.LoadUint64(&cm.remaining)
		if remaining < cost {
			if atomic.CompareAndSwapUint64(&cm.remaining, remaining, 0) {
				atomic.AddUint64(&cm.consumed, remaining)
				return ErrComputeExceeded
			}
			continue
		}
		if atomic.CompareAndSwapUint64(&cm.remaining, remaining, remaining-cost) {
			atomic.AddUint64(&cm.consumed, cost)
			return nil
		}
	}
}

// Remaining returns the remaining compute units.
func (cm *ComputeMeter) Remaining() uint64 {
	return atomic.LoadUint64(&cm.remaining)
}

// Consumed returns the total consumed compute units.
func (cm *ComputeMeter) Consumed() uint64 {
	return atomic.LoadUint64(&cm.consumed)
}

// Limit returns the compute unit limit.
func (cm *ComputeMeter) Limit() uint64 {
	return cm.limit
}

// Compute budget program instruction discriminants.
const (
	ComputeBudgetRequestHeapFrame               = 1
	ComputeBudgetSetComputeUnitLimit            = 2
	ComputeBudgetSetComputeUnitPrice            = 3
	ComputeBudgetSetLoadedAccountsDataSizeLimit = 4
)

// ComputeBudgetLimits contains the parsed compute budget for a transaction.
type ComputeBudgetLimits struct {
	// ComputeUnitLimit is the maximum compute units for the transaction.
	ComputeUnitLimit uint32

	// ComputeUnitPrice is the price in micro-lamports per compute unit.
	ComputeUnitPrice uint64

	// HeapSize is the requested heap size in bytes.
	HeapSize uint32

	// LoadedAccountsBytes is the max bytes for loaded accounts.
	LoadedAccountsBytes uint32
}

// DefaultComputeBudgetLimits returns the default compute budget limits.
func DefaultComputeBudgetLimits() *ComputeBudgetLimits {
	return &ComputeBudgetLimits{
		ComputeUnitLimit:    uint32(CUDefault),
		HeapSize:            HeapSizeDefault,
		LoadedAccountsBytes: 64 * 1024 * 1024, // 64 MB
	}
}

// Apply decodes one compute budget program instruction into l.
func (l *ComputeBudgetLimits) Apply(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidComputeBudgetInstruction
	}
	body := data[1:]
	switch data[0] {
	case ComputeBudgetRequestHeapFrame:
		if len(body) != 4 {
			return ErrInvalidComputeBudgetInstruction
		}
		size := binary.LittleEndian.Uint32(body)
		if size < HeapSizeDefault || size > HeapSizeMax || size%1024 != 0 {
			return fmt.Errorf("%w: heap frame %d", ErrInvalidComputeBudgetInstruction, size)
		}
		l.HeapSize = size
	case ComputeBudgetSetComputeUnitLimit:
		if len(body) != 4 {
			return ErrInvalidComputeBudgetInstruction
		}
		l.ComputeUnitLimit = min(binary.LittleEndian.Uint32(body), uint32(CUMax))
	case ComputeBudgetSetComputeUnitPrice:
		if len(body) != 8 {
			return ErrInvalidComputeBudgetInstruction
		}
		l.ComputeUnitPrice = binary.LittleEndian.Uint64(body)
	case ComputeBudgetSetLoadedAccountsDataSizeLimit:
		if len(body) != 4 {
			return ErrInvalidComputeBudgetInstruction
		}
		l.LoadedAccountsBytes = binary.LittleEndian.Uint32(body)
	default:
		return fmt.Errorf("%w: discriminant %d", ErrInvalidComputeBudgetInstruction, data[0])
	}
	return nil
}
