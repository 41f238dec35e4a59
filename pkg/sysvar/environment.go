package sysvar

import (
	"github.com/fortiblox/seashell/internal/types"
)

// EnvironmentIDs lists every sysvar an execution environment presents,
// including the deprecated Fees and RecentBlockhashes, which the cache
// does not own but engines still expect to find.
func EnvironmentIDs() []types.Pubkey {
	return append(Recognized(), types.SysvarFeesAddr, types.SysvarRecentBlockhashesAddr)
}

// Environment is an immutable snapshot of raw sysvar data handed to an
// execution engine for one instruction.
type Environment struct {
	data map[types.Pubkey][]byte
}

// NewEnvironment builds a snapshot by asking fill for every id in
// EnvironmentIDs. A nil result is stored as empty data.
func NewEnvironment(fill func(id types.Pubkey) []byte) *Environment {
	env := &Environment{data: make(map[types.Pubkey][]byte)}
	for _, id := range EnvironmentIDs() {
		raw := fill(id)
		env.data[id] = append([]byte{}, raw...)
	}
	return env
}

// Get returns the raw data for id and whether the snapshot covers it.
func (e *Environment) Get(id types.Pubkey) ([]byte, bool) {
	raw, ok := e.data[id]
	return raw, ok
}

// Clock decodes the clock from the snapshot.
func (e *Environment) Clock() (Clock, error) {
	var c Clock
	raw, _ := e.Get(types.SysvarClockAddr)
	err := Decode(raw, &c)
	return c, err
}

// Rent decodes the rent parameters from the snapshot.
func (e *Environment) Rent() (Rent, error) {
	var r Rent
	raw, _ := e.Get(types.SysvarRentAddr)
	err := Decode(raw, &r)
	return r, err
}
