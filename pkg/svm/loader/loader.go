// Package loader validates sBPF ELF program images.
//
// Images are parsed with debug/elf and must be little-endian ELF64 objects
// for the BPF or sBPF machine. Loading extracts the text and read-only data,
// registers function symbols and applies relocations: call sites are patched
// with the murmur3 hash of the target symbol name, the key the runtime uses
// to resolve both internal functions and syscalls.
package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
)

// elfMachineSBPF is the Solana BPF machine type, unknown to debug/elf.
const elfMachineSBPF = elf.Machine(263)

// Relocation types for sBPF.
const (
	rBPF64_64    = 1  // 64-bit relocation (lddw)
	rBPFRelative = 8  // Relative relocation
	rBPF64_32    = 10 // 32-bit relocation (call)
)

// ELF errors.
var (
	ErrInvalidELF         = errors.New("invalid ELF file")
	ErrUnsupportedClass   = errors.New("unsupported ELF class (expected 64-bit)")
	ErrUnsupportedEndian  = errors.New("unsupported endianness (expected little-endian)")
	ErrUnsupportedMachine = errors.New("unsupported machine type (expected BPF/sBPF)")
	ErrNoTextSection      = errors.New("no .text section found")
	ErrInvalidSection     = errors.New("invalid section")
	ErrRelocationFailed   = errors.New("relocation failed")
	ErrTooLarge           = errors.New("ELF file too large")
)

// Maximum sizes.
const (
	MaxELFSize      = 10 * 1024 * 1024 // 10 MB max ELF size
	MaxRelocations  = 100000           // Max number of relocations
	MaxInstructions = 1000000          // Max number of instructions
)

// Executable is a validated sBPF program ready for an interpreter.
type Executable struct {
	// Text contains the relocated program instructions.
	Text []uint64

	// RO contains read-only data (.rodata).
	RO []byte

	// Entry is the entry point (instruction index).
	Entry uint64

	// Functions maps function name hashes to their instruction index.
	Functions map[uint32]uint64

	// Syscalls contains the syscall name hashes referenced by the program.
	Syscalls []uint32
}

// Loader loads sBPF programs from ELF files.
type Loader struct{}

// NewLoader creates a new ELF loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses an ELF file and returns an executable.
func (l *Loader) Load(data []byte) (*Executable, error) {
	if len(data) > MaxELFSize {
		return nil, ErrTooLarge
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidELF, err)
	}
	defer f.Close()

	if err := validateHeader(&f.FileHeader); err != nil {
		return nil, err
	}

	text := f.Section(".text")
	if text == nil || text.Size == 0 {
		return nil, ErrNoTextSection
	}
	code, err := readText(text)
	if err != nil {
		return nil, err
	}

	var ro []byte
	if rodata := f.Section(".rodata"); rodata != nil {
		if ro, err = rodata.Data(); err != nil {
			return nil, fmt.Errorf("%w: .rodata: %v", ErrInvalidSection, err)
		}
	}

	functions := make(map[uint32]uint64)
	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("%w: symbols: %v", ErrInvalidELF, err)
	}
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Section == elf.SHN_UNDEF || sym.Name == "" {
			continue
		}
		if idx, ok := instructionIndex(text, sym.Value); ok {
			functions[murmur3Hash(sym.Name)] = idx
		}
	}

	var syscalls []uint32
	for _, name := range []string{".rel.text", ".rel.dyn"} {
		sec := f.Section(name)
		if sec == nil {
			continue
		}
		table, err := linkedSymbols(f, sec)
		if err != nil {
			return nil, err
		}
		if err := relocate(sec, text, code, table, &syscalls); err != nil {
			return nil, err
		}
	}

	entry, ok := instructionIndex(text, f.Entry)
	if !ok {
		if f.Entry != 0 {
			return nil, fmt.Errorf("%w: entry point %#x outside .text", ErrInvalidELF, f.Entry)
		}
		entry = 0
	}

	return &Executable{
		Text:      code,
		RO:        ro,
		Entry:     entry,
		Functions: functions,
		Syscalls:  syscalls,
	}, nil
}

// validateHeader validates the ELF header.
func validateHeader(h *elf.FileHeader) error {
	if h.Class != elf.ELFCLASS64 {
		return ErrUnsupportedClass
	}
	if h.Data != elf.ELFDATA2LSB {
		return ErrUnsupportedEndian
	}
	if h.Machine != elf.EM_BPF && h.Machine != elfMachineSBPF {
		return ErrUnsupportedMachine
	}
	if h.Type != elf.ET_EXEC && h.Type != elf.ET_DYN {
		return fmt.Errorf("%w: unsupported ELF type %s", ErrInvalidELF, h.Type)
	}
	return nil
}

// readText decodes the text section into instruction words.
func readText(sec *elf.Section) ([]uint64, error) {
	raw, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: .text: %v", ErrInvalidSection, err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("%w: text section not aligned", ErrInvalidSection)
	}
	n := len(raw) / 8
	if n > MaxInstructions {
		return nil, fmt.Errorf("%w: too many instructions", ErrTooLarge)
	}
	code := make([]uint64, n)
	for i := range code {
		code[i] = binary.LittleEndian.Uint64(raw[i*8:])
	}
	return code, nil
}

// instructionIndex converts a virtual address inside .text to an index.
func instructionIndex(text *elf.Section, addr uint64) (uint64, bool) {
	if addr < text.Addr || addr >= text.Addr+text.Size {
		return 0, false
	}
	return (addr - text.Addr) / 8, true
}

// linkedSymbols returns the symbol table a relocation section refers to.
func linkedSymbols(f *elf.File, rel *elf.Section) ([]elf.Symbol, error) {
	var (
		syms []elf.Symbol
		err  error
	)
	if int(rel.Link) < len(f.Sections) && f.Sections[rel.Link].Type == elf.SHT_DYNSYM {
		syms, err = f.DynamicSymbols()
	} else {
		syms, err = f.Symbols()
	}
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("%w: symbols for %s: %v", ErrInvalidELF, rel.Name, err)
	}
	return syms, nil
}

// relocate applies a REL or RELA section to the text. debug/elf omits the
// null symbol, so symbol index i lives at syms[i-1].
func relocate(sec *elf.Section, text *elf.Section, code []uint64, syms []elf.Symbol, syscalls *[]uint32) error {
	var entSize uint64
	switch sec.Type {
	case elf.SHT_REL:
		entSize = 16
	case elf.SHT_RELA:
		entSize = 24
	default:
		return nil
	}
	if sec.Entsize > entSize {
		entSize = sec.Entsize
	}

	raw, err := sec.Data()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSection, sec.Name, err)
	}
	n := uint64(len(raw)) / entSize
	if n > MaxRelocations {
		return fmt.Errorf("%w: too many relocations", ErrInvalidELF)
	}

	for i := uint64(0); i < n; i++ {
		ent := raw[i*entSize:]
		offset := binary.LittleEndian.Uint64(ent[0:8])
		info := binary.LittleEndian.Uint64(ent[8:16])
		var addend int64
		if sec.Type == elf.SHT_RELA {
			addend = int64(binary.LittleEndian.Uint64(ent[16:24]))
		}

		idx, ok := instructionIndex(text, offset)
		if !ok {
			continue
		}

		var sym *elf.Symbol
		if s := elf.R_SYM64(info); s > 0 && int(s) <= len(syms) {
			sym = &syms[s-1]
		}

		switch elf.R_TYPE64(info) {
		case rBPF64_32:
			if sym == nil {
				return fmt.Errorf("%w: call at %#x has no symbol", ErrRelocationFailed, offset)
			}
			hash := murmur3Hash(sym.Name)
			if sym.Section == elf.SHN_UNDEF {
				*syscalls = append(*syscalls, hash)
			}
			code[idx] = patchImm(code[idx], hash)

		case rBPF64_64:
			// lddw spans two instruction slots
			if idx+1 >= uint64(len(code)) {
				return fmt.Errorf("%w: lddw at %#x truncated", ErrRelocationFailed, offset)
			}
			target := uint64(addend)
			if sym != nil {
				target += sym.Value
			}
			code[idx] = patchImm(code[idx], uint32(target))
			code[idx+1] = patchImm(code[idx+1], uint32(target>>32))

		case rBPFRelative:
			code[idx] = patchImm(code[idx], uint32(int32(int64(idx*8)+addend)))
		}
	}
	return nil
}

// patchImm replaces the immediate field (bits 32-63) of an instruction.
func patchImm(ins uint64, imm uint32) uint64 {
	return (ins & 0x00000000FFFFFFFF) | uint64(imm)<<32
}

// murmur3Hash computes the 32-bit murmur3 hash (seed 0) of a symbol name.
func murmur3Hash(name string) uint32 {
	const (
		c1 = 0xcc9e2d51
		c2 = 0x1b873593
	)

	data := []byte(name)
	h1 := uint32(0)
	nblocks := len(data) / 4
	for i := 0; i < nblocks; i++ {
		k1 := binary.LittleEndian.Uint32(data[i*4:])
		k1 *= c1
		k1 = (k1 << 15) | (k1 >> 17)
		k1 *= c2

		h1 ^= k1
		h1 = (h1 << 13) | (h1 >> 19)
		h1 = h1*5 + 0xe6546b64
	}

	tail := data[nblocks*4:]
	var k1 uint32
	switch len(tail) {
	case 3:
		k1 ^= uint32(tail[2]) << 16
		fallthrough
	case 2:
		k1 ^= uint32(tail[1]) << 8
		fallthrough
	case 1:
		k1 ^= uint32(tail[0])
		k1 *= c1
		k1 = (k1 << 15) | (k1 >> 17)
		k1 *= c2
		h1 ^= k1
	}

	h1 ^= uint32(len(data))
	h1 ^= h1 >> 16
	h1 *= 0x85ebca6b
	h1 ^= h1 >> 13
	h1 *= 0xc2b2ae35
	h1 ^= h1 >> 16
	return h1
}

// LoadFromBytes is a convenience function to load an ELF from bytes.
func LoadFromBytes(data []byte) (*Executable, error) {
	return NewLoader().Load(data)
}
