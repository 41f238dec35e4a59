// Package loadertest builds minimal sBPF ELF images for tests.
package loadertest

import (
	"encoding/binary"
)

const (
	headerSize  = 64
	sectionSize = 64
	textAddr    = headerSize

	machineSBPF = 263
)

// ExitProgram is a program consisting of a single exit instruction.
var ExitProgram = []uint64{0x95}

// Image returns a little-endian ELF64 shared object for the sBPF machine
// whose only sections are .text and .shstrtab. The entry point is the first
// instruction.
func Image(text []uint64) []byte {
	return ImageWithMachine(machineSBPF, text)
}

// ImageWithMachine is Image with an explicit e_machine value.
func ImageWithMachine(machine uint16, text []uint64) []byte {
	le := binary.LittleEndian
	strtab := []byte("\x00.text\x00.shstrtab\x00")
	textLen := len(text) * 8
	strtabOff := headerSize + textLen
	shOff := (strtabOff + len(strtab) + 7) &^ 7
	buf := make([]byte, shOff+3*sectionSize)

	copy(buf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	le.PutUint16(buf[16:], 3) // ET_DYN
	le.PutUint16(buf[18:], machine)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], textAddr)
	le.PutUint64(buf[40:], uint64(shOff))
	le.PutUint16(buf[52:], headerSize)
	le.PutUint16(buf[54:], 56)
	le.PutUint16(buf[58:], sectionSize)
	le.PutUint16(buf[60:], 3)
	le.PutUint16(buf[62:], 2)

	for i, ins := range text {
		le.PutUint64(buf[headerSize+i*8:], ins)
	}
	copy(buf[strtabOff:], strtab)

	// [0] is the null section.
	sh := buf[shOff+sectionSize:]
	le.PutUint32(sh[0:], 1)    // ".text"
	le.PutUint32(sh[4:], 1)    // SHT_PROGBITS
	le.PutUint64(sh[8:], 0x6)  // SHF_ALLOC | SHF_EXECINSTR
	le.PutUint64(sh[16:], textAddr)
	le.PutUint64(sh[24:], headerSize)
	le.PutUint64(sh[32:], uint64(textLen))
	le.PutUint64(sh[48:], 8)

	sh = buf[shOff+2*sectionSize:]
	le.PutUint32(sh[0:], 7) // ".shstrtab"
	le.PutUint32(sh[4:], 3) // SHT_STRTAB
	le.PutUint64(sh[24:], uint64(strtabOff))
	le.PutUint64(sh[32:], uint64(len(strtab)))
	le.PutUint64(sh[48:], 1)

	return buf
}
