package main

import (
	"fmt"
	"os"
)

// emitByte appends one byte to .text and bumps ind (spec.md §4.5).
func (c *Compiler) emitByte(b byte) {
	c.text.Data = append(c.text.Data, b)
	if VerboseMode {
		fmt.Fprintf(os.Stderr, " %02x", b)
	}
}

func (c *Compiler) emitLE32(v uint32) {
	c.emitByte(byte(v))
	c.emitByte(byte(v >> 8))
	c.emitByte(byte(v >> 16))
	c.emitByte(byte(v >> 24))
}

func (c *Compiler) emitLE64(v uint64) {
	c.emitLE32(uint32(v))
	c.emitLE32(uint32(v >> 32))
}

// emitRex computes and, unless it would be a no-op, emits a REX prefix.
// w selects REX.W (64-bit operand size); r/x/b are the raw (0-15) register
// encodings occupying the ModR/M.reg, SIB.index, and ModR/M.rm (or
// opcode-embedded) fields respectively — pass 0 for any that don't apply.
// A REX byte equal to 0x40 carries no information and is suppressed
// (spec.md §4.5).
func (c *Compiler) emitRex(w bool, r, x, b x86Reg) {
	var wBit, rBit, xBit, bBit byte
	if w {
		wBit = 1
	}
	if r > 7 {
		rBit = 1
	}
	if x > 7 {
		xBit = 1
	}
	if b > 7 {
		bBit = 1
	}
	rex := 0x40 | wBit<<3 | rBit<<2 | xBit<<1 | bBit
	if rex == 0x40 {
		return
	}
	c.emitByte(rex)
}

func emitModRM(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

// emitModRMMem emits the ModR/M byte (and trailing displacement) for a
// [base+disp] operand with reg in the ModR/M.reg field, choosing the
// shortest disp encoding that fits. base=RBP (and R13) can never use the
// disp-less mod=00 form — that encoding is repurposed for RIP-relative
// addressing on x86-64 — so a disp0 access through RBP still emits an
// explicit 8-bit zero displacement (spec.md §4.5).
func (c *Compiler) emitModRMMem(reg byte, base x86Reg, disp int64) {
	baseEnc := byte(base) & 7
	if disp == 0 && baseEnc != 5 {
		c.emitByte(emitModRM(0, reg, baseEnc))
		return
	}
	if disp >= -128 && disp <= 127 {
		c.emitByte(emitModRM(1, reg, baseEnc))
		c.emitByte(byte(int8(disp)))
		return
	}
	c.emitByte(emitModRM(2, reg, baseEnc))
	c.emitLE32(uint32(int32(disp)))
}

// emitModRMBP is the frame-pointer-relative special case of emitModRMMem
// used for every LOCAL value (spec.md §4.5).
func (c *Compiler) emitModRMBP(reg byte, disp int64) {
	c.emitModRMMem(reg, xRBP, disp)
}

// --- load / store -----------------------------------------------------

// load materializes v into dest, following the cases of spec.md §4.5.
func (c *Compiler) load(dest x86Reg, v Value) {
	switch v.storage() {
	case vCONST:
		if v.isSym() {
			c.loadSymAddr(dest, v)
		} else {
			c.loadConst(dest, v)
		}
	case vLOCAL:
		if v.isLval() {
			c.loadLocal(dest, v)
		} else {
			// lea r, [rbp+c]
			c.emitRex(true, dest, 0, 0)
			c.emitByte(0x8d)
			c.emitModRMBP(byte(dest), v.C)
		}
	case vLLOCAL:
		// the pointer value was spilled to a frame slot when the lvalue
		// was formed (see derefToLValue); reload the address, then
		// dereference it.
		c.loadMem(dest, xRBP, v.C, TLong)
		c.loadMem(dest, dest, 0, v.Type)
	default:
		src := x86Reg(v.storage())
		if src != dest {
			c.movRegReg(dest, src)
		}
	}
}

func (c *Compiler) loadConst(dest x86Reg, v Value) {
	if v.C == 0 {
		// xor r, r (32-bit form zero-extends to the full 64-bit register)
		c.emitRex(false, dest, 0, dest)
		c.emitByte(0x31)
		c.emitByte(emitModRM(3, byte(dest), byte(dest)))
		return
	}
	if v.C >= -(1<<31) && v.C < (1<<31) {
		// mov r, imm32 (C7 /0), sign-extended to 64 bits
		c.emitRex(true, 0, 0, dest)
		c.emitByte(0xc7)
		c.emitByte(emitModRM(3, 0, byte(dest)))
		c.emitLE32(uint32(int32(v.C)))
		return
	}
	// mov r, imm64 (B8+rd)
	c.emitRex(true, 0, 0, dest)
	c.emitByte(0xb8 + byte(dest)&7)
	c.emitLE64(uint64(v.C))
}

// loadSymAddr loads the runtime address of a CONST|SYM value (a string
// literal's .rdata slot, or a bare function name used as a value rather
// than called) via a RIP-relative lea. The final displacement depends on
// section placement the PE writer hasn't decided yet, so the disp32 slot
// is emitted as zero and recorded for resolveDataFixups to patch once
// every section's Addr is assigned.
func (c *Compiler) loadSymAddr(dest x86Reg, v Value) {
	c.emitRex(true, dest, 0, 0)
	c.emitByte(0x8d) // lea
	c.emitByte(emitModRM(0, byte(dest), 5)) // mod=00, rm=101: RIP-relative disp32
	slot := c.ind()
	c.emitLE32(0) // patched by resolveDataFixups
	c.recordDataFixup(slot, v.Sym.Sec, v.Sym.C)
}

// loadLocal loads [rbp+v.C] into dest, sized and signed per v.Type's base
// type (spec.md §4.5).
func (c *Compiler) loadLocal(dest x86Reg, v Value) {
	c.loadMem(dest, xRBP, v.C, v.Type)
}

// loadMem loads [base+disp] into dest, sized and signed per typ's base
// type — the same case analysis spec.md §4.5 gives for LOCAL values,
// generalized to any base register so it also serves pointer dereference
// and array/subscript addressing.
func (c *Compiler) loadMem(dest, base x86Reg, disp int64, typ Type) {
	b := typ.Base()
	unsigned := typ.IsUnsigned()
	switch {
	case b == TByte || b == TBool:
		c.emitRex(true, dest, 0, base)
		c.emitByte(0x0f)
		if unsigned {
			c.emitByte(0xb6) // movzx r64, r/m8
		} else {
			c.emitByte(0xbe) // movsx r64, r/m8
		}
		c.emitModRMMem(byte(dest), base, disp)
	case b == TShort:
		c.emitRex(true, dest, 0, base)
		c.emitByte(0x0f)
		if unsigned {
			c.emitByte(0xb7) // movzx r64, r/m16
		} else {
			c.emitByte(0xbf) // movsx r64, r/m16
		}
		c.emitModRMMem(byte(dest), base, disp)
	case b == TInt || b == TEnum:
		if unsigned {
			// plain 32-bit mov zero-extends to 64 bits implicitly
			c.emitRex(false, dest, 0, base)
			c.emitByte(0x8b)
			c.emitModRMMem(byte(dest), base, disp)
		} else {
			c.emitRex(true, dest, 0, base)
			c.emitByte(0x63) // movsxd r64, r/m32
			c.emitModRMMem(byte(dest), base, disp)
		}
	default: // 64-bit: long, llong, ptr, double-as-bits
		c.emitRex(true, dest, 0, base)
		c.emitByte(0x8b)
		c.emitModRMMem(byte(dest), base, disp)
	}
}

// movRegReg emits `mov dest, src` (64-bit).
func (c *Compiler) movRegReg(dest, src x86Reg) {
	c.emitRex(true, src, 0, dest)
	c.emitByte(0x89)
	c.emitByte(emitModRM(3, byte(src), byte(dest)))
}

// store writes src into v's memory location, mirroring load's LOCAL cases
// (spec.md §4.5).
func (c *Compiler) store(src x86Reg, v Value) {
	c.storeMem(xRBP, v.C, src, v.Type)
}

// storeMem writes src into [base+disp], sized per typ's base type; the
// generalization of store's LOCAL case to any base register.
func (c *Compiler) storeMem(base x86Reg, disp int64, src x86Reg, typ Type) {
	b := typ.Base()
	switch {
	case b == TByte || b == TBool:
		c.emitRex(false, src, 0, base)
		c.emitByte(0x88) // mov r/m8, r8
		c.emitModRMMem(byte(src), base, disp)
	case b == TShort:
		c.emitByte(0x66) // operand-size prefix for 16-bit
		c.emitRex(false, src, 0, base)
		c.emitByte(0x89)
		c.emitModRMMem(byte(src), base, disp)
	case b == TInt || b == TEnum:
		c.emitRex(false, src, 0, base)
		c.emitByte(0x89)
		c.emitModRMMem(byte(src), base, disp)
	default:
		c.emitRex(true, src, 0, base)
		c.emitByte(0x89)
		c.emitModRMMem(byte(src), base, disp)
	}
}

// --- integer operators (gen_opi) --------------------------------------

// genOpInt encodes a binary integer operator with operands in dst/src
// (canonically RAX/RCX, per gv2's load order) and leaves the result in the
// register gv2's caller should report back to the value stack (spec.md
// §4.5). Comparisons materialize a 0/1 result in RAX via SETcc+MOVZX
// rather than leaving CPU flags live, since the encoder section specifies
// "Result always ends up as a value-stack entry marked as residing in a
// concrete register."
func (c *Compiler) genOpInt(op Punct, dst, src x86Reg, unsigned bool) x86Reg {
	switch op {
	case PPlus, PAddAssign:
		c.arith(0x01, dst, src)
		return dst
	case PMinus, PSubAssign:
		c.arith(0x29, dst, src)
		return dst
	case PAmp, PAndAssign:
		c.arith(0x21, dst, src)
		return dst
	case PPipe, POrAssign:
		c.arith(0x09, dst, src)
		return dst
	case PCaret, PXorAssign:
		c.arith(0x31, dst, src)
		return dst
	case PStar, PMulAssign:
		// imul dst, src (0F AF /r)
		c.emitRex(true, dst, 0, src)
		c.emitByte(0x0f)
		c.emitByte(0xaf)
		c.emitByte(emitModRM(3, byte(dst), byte(src)))
		return dst
	case PSlash, PDivAssign:
		return c.divmod(dst, src, unsigned, false)
	case PPercent, PModAssign:
		return c.divmod(dst, src, unsigned, true)
	case PShl, PShlAssign:
		c.shiftByCL(dst, src, 4)
		return dst
	case PShr, PShrAssign:
		if unsigned {
			c.shiftByCL(dst, src, 5) // shr
		} else {
			c.shiftByCL(dst, src, 7) // sar
		}
		return dst
	case PEq, PNe, PLt, PGt, PLe, PGe:
		return c.compare(op, dst, src, unsigned)
	default:
		return dst
	}
}

func (c *Compiler) arith(opcode byte, dst, src x86Reg) {
	c.emitRex(true, src, 0, dst)
	c.emitByte(opcode)
	c.emitByte(emitModRM(3, byte(src), byte(dst)))
}

// divmod computes dst = dst/src (wantRem=false) or dst%src (wantRem=true).
// idiv clobbers RDX:RAX and reads the divisor from a register, so a
// divisor that is itself RDX is relocated to RCX first (spec.md §4.5).
func (c *Compiler) divmod(dst, src x86Reg, unsigned, wantRem bool) x86Reg {
	if src == xRDX {
		c.movRegReg(xRCX, xRDX)
		src = xRCX
	}
	if dst != xRAX {
		c.movRegReg(xRAX, dst)
	}
	if unsigned {
		// xor edx, edx (clear the high half instead of sign-extending)
		c.emitByte(0x31)
		c.emitByte(emitModRM(3, byte(xRDX), byte(xRDX)))
	} else {
		c.emitByte(0x48)
		c.emitByte(0x99) // cqo
	}
	c.emitRex(true, 0, 0, src)
	c.emitByte(0xf7)
	ext := byte(6)
	if !unsigned {
		ext = 7
	}
	c.emitByte(emitModRM(3, ext, byte(src)))
	if wantRem {
		if dst != xRDX {
			c.movRegReg(dst, xRDX)
		}
	} else if dst != xRAX {
		c.movRegReg(dst, xRAX)
	}
	return dst
}

// shiftByCL moves src's low byte into CL (if it isn't already there) and
// emits `op dst, cl` (D3 /ext).
func (c *Compiler) shiftByCL(dst, src x86Reg, ext byte) {
	if src != xRCX {
		c.movRegReg(xRCX, src)
	}
	c.emitRex(true, 0, 0, dst)
	c.emitByte(0xd3)
	c.emitByte(emitModRM(3, ext, byte(dst)))
}

var setccOpcode = map[Punct][2]byte{ // [signed, unsigned]
	PEq: {0x94, 0x94},
	PNe: {0x95, 0x95},
	PLt: {0x9c, 0x92},
	PGt: {0x9f, 0x97},
	PLe: {0x9e, 0x96},
	PGe: {0x9d, 0x93},
}

// compare emits `cmp dst, src; setcc al; movzx rax, al` and returns RAX.
func (c *Compiler) compare(op Punct, dst, src x86Reg, unsigned bool) x86Reg {
	c.emitRex(true, src, 0, dst)
	c.emitByte(0x39)
	c.emitByte(emitModRM(3, byte(src), byte(dst)))

	op2 := setccOpcode[op]
	opcode := op2[0]
	if unsigned {
		opcode = op2[1]
	}
	c.emitByte(0x0f)
	c.emitByte(opcode)
	c.emitByte(emitModRM(3, 0, byte(xRAX))) // setcc al

	c.emitRex(true, xRAX, 0, xRAX)
	c.emitByte(0x0f)
	c.emitByte(0xb6) // movzx rax, al
	c.emitByte(emitModRM(3, byte(xRAX), byte(xRAX)))
	return xRAX
}

// notReg emits `not r` (F7 /2), for unary ~.
func (c *Compiler) notReg(r x86Reg) {
	c.emitRex(true, 0, 0, r)
	c.emitByte(0xf7)
	c.emitByte(emitModRM(3, 2, byte(r)))
}

// logicalNot emits `test r,r; setz al; movzx rax,al`, for unary !.
func (c *Compiler) logicalNot(r x86Reg) x86Reg {
	c.emitRex(true, r, 0, r)
	c.emitByte(0x85)
	c.emitByte(emitModRM(3, byte(r), byte(r)))
	c.emitByte(0x0f)
	c.emitByte(0x94) // setz al
	c.emitByte(emitModRM(3, 0, byte(xRAX)))
	c.emitRex(true, xRAX, 0, xRAX)
	c.emitByte(0x0f)
	c.emitByte(0xb6)
	c.emitByte(emitModRM(3, byte(xRAX), byte(xRAX)))
	return xRAX
}

// negReg emits `neg r` (F7 /3), for unary -.
func (c *Compiler) negReg(r x86Reg) {
	c.emitRex(true, 0, 0, r)
	c.emitByte(0xf7)
	c.emitByte(emitModRM(3, 3, byte(r)))
}

// --- prologue / epilogue / call ---------------------------------------

// frameSize is the fixed local-frame size the prologue reserves below rbp
// for locals and expression spills, matching spec.md §4.5's `sub rsp, 0x60`.
// The four register parameters are spilled above rbp, into the caller's
// shadow space, not into this area.
const frameSize = 0x60

// gfuncProlog emits the Windows x64 function entry sequence and spills the
// four register parameters to their canonical shadow-space slots
// ([rbp+16]..[rbp+40]), per spec.md §4.5.
func (c *Compiler) gfuncProlog() {
	c.emitByte(0x55) // push rbp
	c.emitRex(true, 0, 0, 0)
	c.emitByte(0x89) // mov rbp, rsp
	c.emitByte(emitModRM(3, byte(xRSP), byte(xRBP)))
	c.emitRex(true, 0, 0, 0)
	c.emitByte(0x81) // sub rsp, imm32
	c.emitByte(emitModRM(3, 5, byte(xRSP)))
	c.emitLE32(frameSize)

	argRegs := [4]x86Reg{xRCX, xRDX, 8, 9}
	for i, r := range argRegs {
		disp := int64(16 + 8*i)
		c.emitRex(true, r, 0, 0)
		c.emitByte(0x89)
		c.emitModRMBP(byte(r), disp)
	}
	c.loc = 0
}

// gfuncEpilog emits the Windows x64 function return sequence.
func (c *Compiler) gfuncEpilog() {
	c.emitRex(true, 0, 0, 0)
	c.emitByte(0x89) // mov rsp, rbp
	c.emitByte(emitModRM(3, byte(xRBP), byte(xRSP)))
	c.emitByte(0x5d) // pop rbp
	c.emitByte(0xc3) // ret
}

// gfuncCall emits a Windows x64 ABI call: materializes arguments right to
// left (stack args pushed, register args moved), reserves 32 bytes of
// shadow space, calls, and tears the stack back down (spec.md §4.5).
// direct/target select a direct rel32 call to a resolved symbol or an
// indirect call through a register holding a function pointer.
func (c *Compiler) gfuncCall(args []Value, direct bool, targetSym *Sym, targetReg x86Reg) Value {
	argRegHW := [4]x86Reg{xRCX, xRDX, 8, 9}
	n := len(args)

	// Stack args (5th and beyond), right-to-left.
	extra := 0
	pad := 0
	if n > 4 {
		extra = n - 4
		if extra%2 == 1 {
			// an odd count of 8-byte pushes would misalign rsp: pad first,
			// above the stack args so their [rbp+16+8*i] slots are unchanged
			pad = 8
			c.emitRex(true, 0, 0, 0)
			c.emitByte(0x81) // sub rsp, 8
			c.emitByte(emitModRM(3, 5, byte(xRSP)))
			c.emitLE32(uint32(pad))
		}
		for i := n - 1; i >= 4; i-- {
			c.load(xRAX, args[i])
			c.emitByte(0x50 + byte(xRAX)&7) // push rax
		}
	}
	// Register args, last to first per spec.md §4.5's emission order.
	for i := min(n, 4) - 1; i >= 0; i-- {
		c.load(argRegHW[i], args[i])
	}

	shadow := 32
	stackBytes := extra * 8
	total := shadow + stackBytes + pad
	// sub rsp, 32 (the pushed stack args, plus the pad slot when their
	// count is odd, already keep rsp 16-byte aligned, so only the shadow
	// space needs reserving here)
	c.emitRex(true, 0, 0, 0)
	c.emitByte(0x81)
	c.emitByte(emitModRM(3, 5, byte(xRSP)))
	c.emitLE32(uint32(shadow))

	if direct && targetSym != nil {
		c.emitByte(0xe8) // call rel32
		siteAfter := c.ind() + 4
		disp := targetSym.C - int64(siteAfter)
		c.emitLE32(uint32(int32(disp)))
	} else {
		c.emitRex(false, 0, 0, targetReg)
		c.emitByte(0xff) // call r/m64 (/2)
		c.emitByte(emitModRM(3, 2, byte(targetReg)))
	}

	// add rsp, shadow+stack_args
	c.emitRex(true, 0, 0, 0)
	c.emitByte(0x81)
	c.emitByte(emitModRM(3, 0, byte(xRSP)))
	c.emitLE32(uint32(total))

	return Value{Type: TInt, R: int(rAX)}
}
