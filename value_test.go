package main

import "testing"

func TestValueStackPushPop(t *testing.T) {
	c := &Compiler{}
	var vs ValueStack
	vs.vset(c, TInt, vCONST, 42)
	if vs.depth() != 1 {
		t.Fatalf("expected depth 1, got %d", vs.depth())
	}
	v := vs.vpop(c)
	if v.C != 42 || v.storage() != vCONST {
		t.Errorf("unexpected popped value: %+v", v)
	}
	if !vs.empty() {
		t.Error("expected stack empty after pop")
	}
}

// TestValueStackEmptyAfterStatement is the invariant value.go documents:
// every expression production leaves exactly one entry, every statement
// leaves none (spec.md §4.4, §8 invariant 1).
func TestValueStackEmptyAfterStatement(t *testing.T) {
	c := newCompiler()
	src := "int main(){ int a=3, b=4; return a*b+2; }"
	f := writeTempSource(t, src)
	if ok := c.tccCompile(f); !ok {
		t.Fatalf("compile failed with %d errors", c.errCount)
	}
	if !c.vs.empty() {
		t.Errorf("expected value stack empty after full translation unit, depth=%d", c.vs.depth())
	}
}

func TestValueStackVsetSymSetsSymBit(t *testing.T) {
	c := &Compiler{}
	sym := &Sym{Name: "x"}
	vs := &c.vs
	vs.vsetSym(c, TInt, vCONST, sym)
	v := vs.top1(c)
	if !v.isSym() {
		t.Error("expected vSYM bit set")
	}
	if v.Sym != sym {
		t.Error("expected Sym field to point at the pushed symbol")
	}
}

func TestValueStackVswap(t *testing.T) {
	c := &Compiler{}
	var vs ValueStack
	vs.vset(c, TInt, vCONST, 1)
	vs.vset(c, TInt, vCONST, 2)
	vs.vswap(c)
	top := vs.vpop(c)
	bottom := vs.vpop(c)
	if top.C != 1 || bottom.C != 2 {
		t.Errorf("vswap did not exchange entries: top=%d bottom=%d", top.C, bottom.C)
	}
}

func TestValueStackUnderflowReportsError(t *testing.T) {
	c := newCompiler()
	var vs ValueStack
	vs.vpop(c)
	if c.errCount == 0 {
		t.Error("expected an error to be recorded on underflow")
	}
}

func TestValueStackOverflowReportsError(t *testing.T) {
	c := newCompiler()
	var vs ValueStack
	for i := 0; i < valueStackSize; i++ {
		vs.vset(c, TInt, vCONST, int64(i))
	}
	if c.errCount != 0 {
		t.Fatalf("unexpected errors before overflow: %d", c.errCount)
	}
	vs.vset(c, TInt, vCONST, 999)
	if c.errCount == 0 {
		t.Error("expected an error to be recorded on overflow")
	}
}

func TestValueInRegDistinguishesStorageKinds(t *testing.T) {
	reg := Value{R: int(rAX)}
	if !reg.inReg() {
		t.Error("expected a bare register storage to report inReg")
	}
	constant := Value{R: vCONST}
	if constant.inReg() {
		t.Error("expected vCONST storage to not report inReg")
	}
}
