package main

// x86Reg is the hardware encoding of an x86-64 general-purpose register, 0-15.
type x86Reg uint8

const (
	xRAX x86Reg = 0
	xRCX x86Reg = 1
	xRDX x86Reg = 2
	xRBX x86Reg = 3
	xRSP x86Reg = 4
	xRBP x86Reg = 5
	xRSI x86Reg = 6
	xRDI x86Reg = 7
	xR8  x86Reg = 8
	xR9  x86Reg = 9
	xR10 x86Reg = 10
	xR11 x86Reg = 11
)

// hw maps a generic value-stack register class (regID) onto its hardware
// encoding. Chosen so every one of them needs no REX.B/REX.R extension bit
// (encodings 0-7), keeping the common case's instruction bytes short; the
// Windows ABI's third/fourth argument registers (R8/R9, encodings 8/9) are
// handled directly by gfuncCall, not through this table.
var genericHW = [nbRegs]x86Reg{
	rAX: xRAX,
	rCX: xRCX,
	rDX: xRDX,
	rBX: xRBX,
	rSI: xRSI,
	rDI: xRDI,
}

func (r regID) hw() x86Reg { return genericHW[r] }

// regName returns the 64-bit register mnemonic, used only by verbose traces.
func regName(r x86Reg) string {
	names := map[x86Reg]string{
		xRAX: "rax", xRCX: "rcx", xRDX: "rdx", xRBX: "rbx",
		xRSP: "rsp", xRBP: "rbp", xRSI: "rsi", xRDI: "rdi",
		xR8: "r8", xR9: "r9", xR10: "r10", xR11: "r11",
	}
	return names[r]
}

// needsREXB / needsREXR report whether encoding r as the r/m or reg field
// respectively requires the corresponding REX extension bit.
func needsREXB(r x86Reg) bool { return r >= 8 }
func needsREXR(r x86Reg) bool { return r >= 8 }
