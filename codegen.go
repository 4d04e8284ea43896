package main

// This file is the generic, target-independent half of the code generator
// named in spec.md §4.4: the operators that materialize value-stack
// entries into registers and drive the x86-64 encoder in encoder_amd64.go,
// plus the forward-jump fix-up machinery.

// gv materializes the top of the value stack into a register matching rc
// and returns that register, per spec.md §4.4.
func (c *Compiler) gv(rc RegClass) x86Reg {
	want := wantReg(rc)
	c.materializeAt(c.vs.top-1, want)
	return want.hw()
}

// gv2 materializes the two top entries into distinct registers, RHS into
// RCX then LHS into RAX — the canonical pattern spec.md §4.4 names —
// leaving both still on the value stack (LHS below RHS).
func (c *Compiler) gv2() {
	c.materializeAt(c.vs.top-1, rCX) // RHS
	c.materializeAt(c.vs.top-2, rAX) // LHS
}

func wantReg(rc RegClass) regID {
	switch rc {
	case RCRAX:
		return rAX
	case RCRCX:
		return rCX
	case RCRDX:
		return rDX
	default:
		return rAX
	}
}

// materializeAt ensures the value-stack entry at idx lives in hardware
// register want, spilling any other live entry already resident there to a
// fresh frame slot first (spec.md §4.4's gv case analysis).
func (c *Compiler) materializeAt(idx int, want regID) {
	e := &c.vs.entries[idx]
	if e.inReg() && regID(e.storage()) == want {
		return
	}
	c.spillConflicts(idx, want)
	c.load(want.hw(), *e)
	e.R = int(want)
	e.C = 0
}

// spillConflicts moves every OTHER live value-stack entry currently
// resident in want to a new frame slot (loc -= 8) before idx overwrites
// that register, per spec.md §4.4: "spill any live value-stack entries
// currently residing in that register to a fresh frame slot... and
// rewrite those entries to LOCAL|LVAL".
func (c *Compiler) spillConflicts(idx int, want regID) {
	for i := 0; i < c.vs.top; i++ {
		if i == idx {
			continue
		}
		e := &c.vs.entries[i]
		if e.inReg() && regID(e.storage()) == want {
			c.loc -= 8
			off := c.loc
			c.store(want.hw(), Value{Type: e.Type, C: off})
			e.R = vLOCAL | vLVAL
			e.C = off
		}
	}
}

// genCast updates v's type word for integer<->integer conversions; the
// other conversions spec.md §4.4 names (calls to float converters) are
// non-goals at this revision (spec.md §1: floating point is a stub).
func (c *Compiler) genCast(v *Value, target Type) {
	v.Type = target
}

// genOp dispatches gen_op per spec.md §4.4. Assignment pops the RHS,
// stores it via store(r, top), and leaves the RHS register as the result.
// Compound assignment operators reload the lvalue, apply the binary op,
// and store back — the REDESIGN FLAG fix spec.md calls for (§9): the
// original behavior silently dropped the operation.
func (c *Compiler) genOp(op Punct) {
	switch op {
	case PAssign:
		c.genAssign()
	case PAddAssign, PSubAssign, PMulAssign, PDivAssign, PModAssign,
		PAndAssign, POrAssign, PXorAssign, PShlAssign, PShrAssign:
		c.genCompoundAssign(op)
	case PAndAnd, POrOr:
		// short-circuit logicals are lowered by the parser directly via
		// gtst/glabel, not through genOp; reaching here is a parser bug.
		c.errorf("internal: logical operator reached genOp")
	default:
		c.genArithOp(op)
	}
}

func (c *Compiler) genAssign() {
	rhsReg := c.gv(RCInt)
	c.vs.vpop(c) // RHS, already materialized into rhsReg
	lhs := c.vs.vpop(c)
	c.storeToLValue(lhs, rhsReg)
	c.vs.vset(c, lhs.Type, int(regIDFromHW(rhsReg)), 0)
}

// genCompoundAssign implements `lhs OP= rhs` as: duplicate the lvalue,
// load its current value, apply OP against rhs, store the result back,
// leaving the stored register as the result (spec.md §9's described fix).
func (c *Compiler) genCompoundAssign(op Punct) {
	rhsVal := c.vs.vpop(c)
	lhs := c.vs.top1(c)
	lhsCopy := *lhs
	c.vs.vpop(c) // discard the raw lvalue entry; lhsCopy keeps its address

	c.vs.push(c, lhsCopy) // becomes LHS, materialized into RAX
	c.vs.push(c, rhsVal)  // becomes RHS, materialized into RCX
	c.gv2()
	c.vs.vpop(c) // RHS
	lhsV := c.vs.vpop(c)
	result := c.genOpInt(baseOpOf(op), xRAX, xRCX, lhsV.Type.IsUnsigned())
	c.storeToLValue(lhsCopy, result)
	c.vs.vset(c, lhsCopy.Type, int(regIDFromHW(result)), 0)
}

// baseOpOf maps a compound-assignment punctuator onto its underlying
// binary operator.
func baseOpOf(op Punct) Punct {
	switch op {
	case PAddAssign:
		return PPlus
	case PSubAssign:
		return PMinus
	case PMulAssign:
		return PStar
	case PDivAssign:
		return PSlash
	case PModAssign:
		return PPercent
	case PAndAssign:
		return PAmp
	case POrAssign:
		return PPipe
	case PXorAssign:
		return PCaret
	case PShlAssign:
		return PShl
	case PShrAssign:
		return PShr
	default:
		return op
	}
}

// genArithOp handles plain binary integer operators via gv2's canonical
// RAX/RCX pattern.
func (c *Compiler) genArithOp(op Punct) {
	c.gv2()
	lhs := c.vs.entries[c.vs.top-2]
	c.vs.vpop(c) // RHS
	c.vs.vpop(c) // LHS
	result := c.genOpInt(op, xRAX, xRCX, lhs.Type.IsUnsigned())
	c.vs.vset(c, lhs.Type, int(regIDFromHW(result)), 0)
}

// elemSizeOf returns the stride, in bytes, of one step through ptrType —
// the scale factor C pointer arithmetic applies to an integer operand.
func elemSizeOf(ptrType Type) int64 {
	pointee := ptrType.Pointee()
	if pointee.IsPointer() {
		return 8
	}
	sz := pointee.Base().Size()
	if sz == 0 {
		sz = 1
	}
	return int64(sz)
}

// genPointerArith implements `ptr + i` / `ptr - i`: the integer operand on
// top of the stack is scaled by the pointee's size before the plain
// integer add/sub runs, so `arr[i]`/`p+i` step by elements, not bytes
// (spec.md §6 names "pointer types; arrays" among the supported features;
// spec.md's own §4.5 operator table covers only same-width integer ops,
// so this scaling step is this repository's extension of it to pointers).
func (c *Compiler) genPointerArith(op Punct, ptrType Type) {
	if stride := elemSizeOf(ptrType); stride != 1 {
		c.vs.push(c, Value{Type: TLong, R: vCONST, C: stride})
		c.genOp(PStar)
	}
	c.genOp(op)
}

// genUnary implements the unary operators spec.md §4.5 names: - + ! ~.
func (c *Compiler) genUnary(op Punct) {
	switch op {
	case PPlus:
		// no-op: unary + leaves the operand as-is
	case PMinus:
		r := c.gv(RCInt)
		c.negReg(r)
	case PBang:
		c.gv(RCInt)
		r := c.logicalNot(xRAX)
		c.vs.vpop(c)
		c.vs.vset(c, TInt, int(regIDFromHW(r)), 0)
	case PTilde:
		r := c.gv(RCInt)
		c.notReg(r)
	}
}

func regIDFromHW(r x86Reg) regID {
	switch r {
	case xRAX:
		return rAX
	case xRCX:
		return rCX
	case xRDX:
		return rDX
	case xRBX:
		return rBX
	case xRSI:
		return rSI
	case xRDI:
		return rDI
	default:
		return rAX
	}
}

// storeToLValue writes srcReg into the memory cell dst denotes, dispatched
// on dst's storage sentinel (LOCAL -> frame slot, LLOCAL -> through a
// pointer spilled to a frame slot by derefToLValue).
func (c *Compiler) storeToLValue(dst Value, srcReg x86Reg) {
	switch dst.storage() {
	case vLOCAL:
		c.store(srcReg, dst)
	case vLLOCAL:
		scratch := xRAX
		if srcReg == xRAX {
			scratch = xRCX
		}
		c.loadMem(scratch, xRBP, dst.C, TLong)
		c.storeMem(scratch, 0, srcReg, dst.Type)
	default:
		c.errorf("expression is not assignable")
	}
}

// derefToLValue pops a pointer rvalue and pushes the pointee as an LLOCAL
// lvalue: the pointer's address is materialized into a register and
// immediately spilled to a dedicated frame slot, so the lvalue survives
// arbitrarily many subsequent gv/gv2 calls without register-pinning
// bookkeeping (spec.md's Value model leaves this storage choice open).
func (c *Compiler) derefToLValue() {
	ptrReg := c.gv(RCInt)
	ptrVal := c.vs.vpop(c)
	pointee := ptrVal.Type.Pointee()
	c.loc -= 8
	off := c.loc
	c.storeMem(xRBP, off, ptrReg, TLong)
	c.vs.push(c, Value{Type: pointee, R: vLLOCAL | vLVAL, C: off})
}

// genAddrOf implements unary `&`: pops an lvalue and pushes a pointer
// rvalue to the same storage, reusing the LOCAL-without-LVAL ("lea") and
// LLOCAL storage sentinels rather than introducing a new one — `&*p` falls
// out for free since LLOCAL's frame slot already holds the address `*p`'s
// lvalue denotes.
func (c *Compiler) genAddrOf() {
	v := c.vs.vpop(c)
	if !v.isLval() {
		c.errorf("cannot take the address of this expression")
		c.vs.push(c, v)
		return
	}
	switch v.storage() {
	case vLOCAL:
		c.vs.push(c, Value{Type: PointerTo(v.Type), R: vLOCAL, C: v.C})
	case vLLOCAL:
		c.vs.push(c, Value{Type: PointerTo(v.Type), R: vLOCAL | vLVAL, C: v.C})
	default:
		c.errorf("cannot take the address of this expression")
		c.vs.push(c, v)
	}
}

// --- labels and jumps ---------------------------------------------------

// gind allocates a new anonymous, as-yet-undefined label (spec.md §4.4):
// c = -1 is the empty fix-up list, r = symLabelUndefined.
func (c *Compiler) gind() *Sym {
	c.anonLabels++
	name := anonLabelName(c.anonLabels)
	return c.labels.push(name, 0, symLabelUndefined, -1)
}

func anonLabelName(n int) string {
	buf := make([]byte, 0, 8)
	buf = append(buf, '.', 'L')
	return string(buf) + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

// threadFixup appends a 32-bit fix-up slot at the current ind, threading
// it onto l's fix-up chain, and returns the slot's offset.
func (c *Compiler) threadFixup(l *Sym) int {
	slot := c.ind()
	c.emitLE32(uint32(int32(l.C)))
	l.C = int64(slot)
	return slot
}

// gjmp emits an unconditional jump to l: a resolved rel32 if l is already
// defined, otherwise a fix-up slot threaded onto l's chain (spec.md §4.4).
func (c *Compiler) gjmp(l *Sym) {
	c.emitByte(0xe9) // jmp rel32
	if l.R == symLabelDefined {
		disp := l.C - int64(c.ind()+4)
		c.emitLE32(uint32(int32(disp)))
		return
	}
	c.threadFixup(l)
}

// gtst emits `test r,r; jcc rel32` (je if inv, jne otherwise), threading
// the fix-up identically to gjmp (spec.md §4.4). The tested value is the
// top of the value stack, materialized into a GP register first.
func (c *Compiler) gtst(inv bool, l *Sym) {
	r := c.gv(RCInt)
	c.vs.vpop(c)

	c.emitRex(true, r, 0, r)
	c.emitByte(0x85) // test r/m64, r64
	c.emitByte(emitModRM(3, byte(r), byte(r)))

	c.emitByte(0x0f)
	if inv {
		c.emitByte(0x84) // je rel32
	} else {
		c.emitByte(0x85) // jne rel32
	}
	if l.R == symLabelDefined {
		disp := l.C - int64(c.ind()+4)
		c.emitLE32(uint32(int32(disp)))
		return
	}
	c.threadFixup(l)
}

// glabel resolves l at the current code offset: every fix-up slot
// threaded onto l's chain is overwritten with `ind - (slot+4)`, then l is
// marked defined (spec.md §4.4, tested by TestLabelFixupInvariant).
func (c *Compiler) glabel(l *Sym) {
	p := l.C
	for p != -1 {
		next := int64(c.text.getU32At(int(p)))
		target := uint32(int32(c.ind()) - int32(p+4))
		c.text.putU32At(int(p), target)
		p = int64(int32(next))
	}
	l.R = symLabelDefined
	l.C = int64(c.ind())
}
