package svm

import (
	"github.com/zeebo/blake3"

	"github.com/fortiblox/seashell/internal/types"
	"github.com/fortiblox/seashell/pkg/svm/loader"
)

// ProgramKind classifies a cached program.
type ProgramKind uint8

const (
	// KindBuiltin is a program implemented natively by the engine.
	KindBuiltin ProgramKind = iota
	// KindPrecompile is a signature verification precompile.
	KindPrecompile
	// KindSBPF is a loaded sBPF image.
	KindSBPF
)

func (k ProgramKind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindPrecompile:
		return "precompile"
	case KindSBPF:
		return "sbpf"
	default:
		return "unknown"
	}
}

// ProgramEntry is one program in the cache.
type ProgramEntry struct {
	ID     types.Pubkey
	Loader types.Pubkey
	Kind   ProgramKind

	// DeploymentSlot is the slot the program became visible at.
	DeploymentSlot uint64

	// Digest is the blake3 hash of the image; zero for builtins.
	Digest [32]byte

	// Executable is the validated image; nil for builtins.
	Executable *loader.Executable
}

// NewSBPFEntry builds a cache entry for a validated image.
func NewSBPFEntry(id, loaderID types.Pubkey, slot uint64, image []byte, exe *loader.Executable) *ProgramEntry {
	return &ProgramEntry{
		ID:             id,
		Loader:         loaderID,
		Kind:           KindSBPF,
		DeploymentSlot: slot,
		Digest:         blake3.Sum256(image),
		Executable:     exe,
	}
}

// ProgramCache holds the programs visible to the engine, keyed by address.
// A later Add for the same address replaces the entry.
type ProgramCache struct {
	entries map[types.Pubkey]*ProgramEntry
}

// NewProgramCache creates an empty cache.
func NewProgramCache() *ProgramCache {
	return &ProgramCache{entries: make(map[types.Pubkey]*ProgramEntry)}
}

// Add registers an entry.
func (c *ProgramCache) Add(entry *ProgramEntry) {
	c.entries[entry.ID] = entry
}

// Get returns the entry for id.
func (c *ProgramCache) Get(id types.Pubkey) (*ProgramEntry, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.entries[id]
	return e, ok
}

// Len returns the number of cached programs.
func (c *ProgramCache) Len() int {
	return len(c.entries)
}

// Builtin is a statically known program the engine implements natively.
type Builtin struct {
	Name string
	ID   types.Pubkey
	Kind ProgramKind

	// Feature, when set, must be active for the builtin to be registered.
	Feature *types.Pubkey
}

// Builtins is the static builtin table.
var Builtins = []Builtin{
	{Name: "system_program", ID: types.SystemProgramAddr, Kind: KindBuiltin},
	{Name: "compute_budget_program", ID: types.ComputeBudgetProgramAddr, Kind: KindBuiltin},
	{Name: "ed25519_program", ID: types.Ed25519PrecompileAddr, Kind: KindPrecompile},
	{Name: "secp256k1_program", ID: types.Secp256k1PrecompileAddr, Kind: KindPrecompile},
	{Name: "secp256r1_program", ID: types.Secp256r1PrecompileAddr, Kind: KindPrecompile, Feature: &types.FeatureSecp256r1Precompile},
}

// EnabledBuiltins returns the builtins whose feature gate is satisfied.
func EnabledBuiltins(features *FeatureSet) []Builtin {
	out := make([]Builtin, 0, len(Builtins))
	for _, b := range Builtins {
		if b.Feature != nil && !features.IsActive(*b.Feature) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// AddBuiltins registers every enabled builtin and returns them.
func (c *ProgramCache) AddBuiltins(features *FeatureSet) []Builtin {
	enabled := EnabledBuiltins(features)
	for _, b := range enabled {
		c.Add(&ProgramEntry{ID: b.ID, Loader: types.NativeLoaderAddr, Kind: b.Kind})
	}
	return enabled
}
