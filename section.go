package main

import (
	"fmt"
	"os"
)

// Section is a named, append-only growable byte buffer. Growth is left to
// append, so capacity does not always double; Addr is assigned later, by
// the PE writer, once every section's
// final size is known (spec.md §3 "Section").
type Section struct {
	Name  string
	Data  []byte
	Flags uint32
	Addr  uint64 // virtual address, assigned by the PE writer at output time
}

// Section characteristic flags, named to match the PE writer's usage
// (spec.md §6): code/exec/read for .text, init-data/read/write for .data,
// init-data/read for .rdata.
const (
	secCode  uint32 = 0x20000000 | 0x40000000 | 0x20 // exec | read | cnt-code
	secData  uint32 = 0x40000000 | 0x80000000 | 0x40 // read | write | cnt-initdata
	secRData uint32 = 0x40000000 | 0x40             // read | cnt-initdata
)

func newSection(name string, flags uint32) *Section {
	return &Section{Name: name, Flags: flags}
}

// add appends data and returns the pre-append offset, matching spec.md
// §4.3's `add(data, size) -> offset`.
func (s *Section) add(data []byte) int {
	off := len(s.Data)
	s.Data = append(s.Data, data...)
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "%s: +%d bytes at offset %#x\n", s.Name, len(data), off)
	}
	return off
}

// reserve appends n zero bytes and returns the offset of the first one;
// declareGlobalVariable uses it for a global's storage.
func (s *Section) reserve(n int) int {
	off := len(s.Data)
	s.Data = append(s.Data, make([]byte, n)...)
	return off
}

func (s *Section) size() int { return len(s.Data) }

// putU32At overwrites 4 bytes at off with v, little-endian. Used to patch
// fix-up slots and jump displacements after the fact.
func (s *Section) putU32At(off int, v uint32) {
	s.Data[off+0] = byte(v)
	s.Data[off+1] = byte(v >> 8)
	s.Data[off+2] = byte(v >> 16)
	s.Data[off+3] = byte(v >> 24)
}

func (s *Section) getU32At(off int) uint32 {
	return uint32(s.Data[off]) | uint32(s.Data[off+1])<<8 |
		uint32(s.Data[off+2])<<16 | uint32(s.Data[off+3])<<24
}
