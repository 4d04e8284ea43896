package main

import "testing"

func newTestCompiler() *Compiler {
	c := newCompiler()
	return c
}

func TestLoadConstZeroEmitsXor(t *testing.T) {
	c := newTestCompiler()
	c.loadConst(xRAX, Value{C: 0})
	want := []byte{0x31, emitModRM(3, byte(xRAX), byte(xRAX))}
	if string(c.text.Data) != string(want) {
		t.Errorf("xor r,r: got % x, want % x", c.text.Data, want)
	}
}

func TestLoadConstSmallEmitsImm32(t *testing.T) {
	c := newTestCompiler()
	c.loadConst(xRAX, Value{C: 42})
	if c.text.Data[len(c.text.Data)-6] != 0xc7 {
		t.Fatalf("expected 0xc7 mov r,imm32 opcode, got % x", c.text.Data)
	}
	last4 := c.text.Data[len(c.text.Data)-4:]
	if last4[0] != 42 || last4[1] != 0 || last4[2] != 0 || last4[3] != 0 {
		t.Errorf("expected imm32 42, got % x", last4)
	}
}

func TestLoadConstLargeEmitsImm64(t *testing.T) {
	c := newTestCompiler()
	big := int64(1) << 40
	c.loadConst(xRAX, Value{C: big})
	// REX.W + (B8+rd) + 8-byte immediate = 10 bytes for rax (rd=0, no REX.B).
	if len(c.text.Data) != 10 {
		t.Fatalf("expected 10-byte encoding, got %d: % x", len(c.text.Data), c.text.Data)
	}
	if c.text.Data[1] != 0xb8 {
		t.Errorf("expected opcode 0xb8 (mov rax,imm64), got %#x", c.text.Data[1])
	}
}

func TestGfuncPrologEmitsFixedSequence(t *testing.T) {
	c := newTestCompiler()
	c.gfuncProlog()
	data := c.text.Data
	if data[0] != 0x55 {
		t.Errorf("expected push rbp (0x55) first, got %#x", data[0])
	}
	// mov rbp, rsp: REX.W(0x48) 0x89 modrm(3,rsp,rbp)
	if data[1] != 0x48 || data[2] != 0x89 || data[3] != emitModRM(3, byte(xRSP), byte(xRBP)) {
		t.Errorf("expected mov rbp,rsp, got % x", data[1:4])
	}
	// sub rsp, 0x60: REX.W 0x81 /5 imm32
	if data[4] != 0x48 || data[5] != 0x81 || data[6] != emitModRM(3, 5, byte(xRSP)) {
		t.Errorf("expected sub rsp,imm32, got % x", data[4:7])
	}
	if data[7] != byte(frameSize) || data[8] != 0 || data[9] != 0 || data[10] != 0 {
		t.Errorf("expected frameSize=%#x immediate, got % x", frameSize, data[7:11])
	}
}

func TestGfuncEpilogEmitsFixedSequence(t *testing.T) {
	c := newTestCompiler()
	c.gfuncEpilog()
	want := []byte{0x48, 0x89, emitModRM(3, byte(xRBP), byte(xRSP)), 0x5d, 0xc3}
	if string(c.text.Data) != string(want) {
		t.Errorf("epilogue: got % x, want % x", c.text.Data, want)
	}
}

// TestGfuncCallStackArgBytes verifies spec.md §8 invariant 5: the call
// sequence reserves/restores 32 bytes of shadow space for <=4 args, and an
// extra 8 bytes per argument beyond 4 (plus an 8-byte alignment pad when
// that count is odd; the six-argument case here has an even count).
func TestGfuncCallStackArgBytes(t *testing.T) {
	find81 := func(data []byte, ext byte) []int {
		var offs []int
		for i := 0; i+2 < len(data); i++ {
			if data[i] == 0x81 && data[i+1] == emitModRM(3, ext, byte(xRSP)) {
				offs = append(offs, i)
			}
		}
		return offs
	}
	readImm32 := func(data []byte, at int) uint32 {
		return uint32(data[at]) | uint32(data[at+1])<<8 | uint32(data[at+2])<<16 | uint32(data[at+3])<<24
	}

	t.Run("four or fewer args", func(t *testing.T) {
		c := newTestCompiler()
		args := []Value{{R: vCONST, C: 1}, {R: vCONST, C: 2}}
		sym := &Sym{Name: "f", Sec: c.text, C: 0}
		c.gfuncCall(args, true, sym, 0)
		subs := find81(c.text.Data, 5)
		adds := find81(c.text.Data, 0)
		if len(subs) != 1 || len(adds) != 1 {
			t.Fatalf("expected exactly one sub and one add rsp, got subs=%d adds=%d", len(subs), len(adds))
		}
		if got := readImm32(c.text.Data, subs[0]+2); got != 32 {
			t.Errorf("expected sub rsp,32 shadow space, got %d", got)
		}
		if got := readImm32(c.text.Data, adds[0]+2); got != 32 {
			t.Errorf("expected add rsp,32, got %d", got)
		}
	})

	t.Run("six args", func(t *testing.T) {
		c := newTestCompiler()
		args := make([]Value, 6)
		for i := range args {
			args[i] = Value{R: vCONST, C: int64(i + 1)}
		}
		sym := &Sym{Name: "f", Sec: c.text, C: 0}
		c.gfuncCall(args, true, sym, 0)
		pushes := 0
		for _, b := range c.text.Data {
			if b == 0x50 { // push rax
				pushes++
			}
		}
		if pushes != 2 {
			t.Errorf("expected 2 stack-arg pushes for 6 args, got %d", pushes)
		}
		adds := find81(c.text.Data, 0)
		if len(adds) != 1 {
			t.Fatalf("expected one add rsp, got %d", len(adds))
		}
		if got := readImm32(c.text.Data, adds[0]+2); got != 32+2*8 {
			t.Errorf("expected add rsp,%d, got %d", 32+2*8, got)
		}
	})
}

// TestCompareEmitsCmpSetccMovzx is spec.md §8 invariant 6, checked for the
// signed `<` operator: it encodes as cmp; setl; movzx rax,al.
func TestCompareEmitsCmpSetccMovzx(t *testing.T) {
	c := newTestCompiler()
	c.compare(PLt, xRAX, xRCX, false)
	data := c.text.Data
	if data[0] != 0x48 || data[1] != 0x39 {
		t.Fatalf("expected REX.W cmp, got % x", data[0:2])
	}
	if data[3] != 0x0f || data[4] != 0x9c { // setl
		t.Errorf("expected setl (0f 9c), got % x", data[3:5])
	}
	if data[len(data)-3] != 0x0f || data[len(data)-2] != 0xb6 {
		t.Errorf("expected trailing movzx (0f b6), got % x", data[len(data)-3:])
	}
}

func TestLoadSymAddrRecordsFixup(t *testing.T) {
	c := newTestCompiler()
	target := newSection(".rdata", secRData)
	sym := &Sym{Name: "str", Sec: target, C: 5}
	c.loadSymAddr(xRCX, Value{Sym: sym})
	if len(c.dataFixups) != 1 {
		t.Fatalf("expected one recorded fix-up, got %d", len(c.dataFixups))
	}
	fx := c.dataFixups[0]
	if fx.targetSec != target || fx.targetOff != 5 {
		t.Errorf("unexpected fix-up: %+v", fx)
	}
	// lea rcx, [rip+disp32]: REX.W 8d modrm(00, rcx, 101)
	if c.text.Data[0] != 0x48 || c.text.Data[1] != 0x8d || c.text.Data[2] != emitModRM(0, byte(xRCX), 5) {
		t.Errorf("unexpected lea encoding: % x", c.text.Data[:3])
	}
}
