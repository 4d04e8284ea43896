package main

import "testing"

// TestEndToEndScenarios mirrors spec.md §8's end-to-end scenario table: each source
// compiles cleanly and, when its emitted instructions are executed against
// the reference emulator in interp.go, main() leaves the expected value in
// RAX (the process exit code a real Windows run would report).
func TestEndToEndScenarios(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want int64
	}{
		{"return literal", "int main(){ return 7; }", 7},
		{"locals and arithmetic", "int main(){ int a=3, b=4; return a*b+2; }", 14},
		{"while loop accumulator", "int main(){ int i=0, s=0; while(i<5){ s=s+i; i=i+1; } return s; }", 10},
		{"two-arg call", "int add2(int a,int b){return a+b;} int main(){return add2(10,20);}", 30},
		{"six-arg call", "int f(int a,int b,int c,int d,int e,int f){return a+b+c+d+e+f;} int main(){return f(10,20,30,40,50,60);}", 210},
		{"if/else", "int main(){ int x=5; if (x>3) return 1; else return 0; }", 1},
		{"for loop accumulator", "int main(){ int s=0; for (int i=0; i<5; i=i+1) { s=s+i; } return s; }", 10},
		{"for loop empty clauses", "int main(){ int i=0, s=0; for (;;) { if (i>=5) break; s=s+i; i=i+1; } return s; }", 10},
		{"call with two computed args", "int add2(int a,int b){return a+b;} int main(){ int a=3,b=4,c=5,d=6; return add2(a*b,c*d); }", 42},
		{"call with nested calls as args", "int add2(int a,int b){return a+b;} int sq(int x){return x*x;} int main(){ return add2(sq(3),sq(4)); }", 25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newCompiler()
			f := writeTempSource(t, tc.src)
			if ok := c.tccCompile(f); !ok {
				t.Fatalf("compile failed with %d errors", c.errCount)
			}
			if !c.vs.empty() {
				t.Errorf("value stack not empty after translation unit: depth=%d", c.vs.depth())
			}
			got, err := runMain(c)
			if err != nil {
				t.Fatalf("interp: %v", err)
			}
			if got != tc.want {
				t.Errorf("%s: expected exit code %d, got %d", tc.src, tc.want, got)
			}
		})
	}
}

// TestBreakContinueEmitJumps covers the break/continue REDESIGN FLAG fix:
// both must actually alter control flow rather than falling through.
func TestBreakContinueEmitJumps(t *testing.T) {
	src := `int main(){
		int i = 0, s = 0;
		while (i < 10) {
			i = i + 1;
			if (i == 3) continue;
			if (i == 6) break;
			s = s + i;
		}
		return s;
	}`
	c := newCompiler()
	f := writeTempSource(t, src)
	if ok := c.tccCompile(f); !ok {
		t.Fatalf("compile failed with %d errors", c.errCount)
	}
	got, err := runMain(c)
	if err != nil {
		t.Fatalf("interp: %v", err)
	}
	// i runs 1,2,3(skip),4,5,6(break) -> sum of 1+2+4+5 = 12
	if got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
}

// TestCompoundAssignReloadsAndStores covers the compound-assignment
// REDESIGN FLAG fix: `x += e` must read x, combine, and store back.
func TestCompoundAssignReloadsAndStores(t *testing.T) {
	src := "int main(){ int x = 10; x += 5; x *= 2; x -= 3; return x; }"
	c := newCompiler()
	f := writeTempSource(t, src)
	if ok := c.tccCompile(f); !ok {
		t.Fatalf("compile failed with %d errors", c.errCount)
	}
	got, err := runMain(c)
	if err != nil {
		t.Fatalf("interp: %v", err)
	}
	if got != 27 { // (10+5)*2-3 = 27
		t.Errorf("expected 27, got %d", got)
	}
}

// TestShortCircuitLogicalOperators exercises the mergeBoolResult fix: both
// paths through && and || must actually materialize their result.
func TestShortCircuitLogicalOperators(t *testing.T) {
	cases := []struct {
		src  string
		want int64
	}{
		{"int main(){ int a=1,b=1; return a && b; }", 1},
		{"int main(){ int a=1,b=0; return a && b; }", 0},
		{"int main(){ int a=0,b=1; return a && b; }", 0},
		{"int main(){ int a=0,b=0; return a || b; }", 0},
		{"int main(){ int a=1,b=0; return a || b; }", 1},
		{"int main(){ int a=0,b=1; return a || b; }", 1},
	}
	for _, tc := range cases {
		c := newCompiler()
		f := writeTempSource(t, tc.src)
		if ok := c.tccCompile(f); !ok {
			t.Fatalf("compile failed with %d errors: %s", c.errCount, tc.src)
		}
		got, err := runMain(c)
		if err != nil {
			t.Fatalf("interp: %v", err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.src, tc.want, got)
		}
	}
}

// TestRelationalOperatorsAgainstOperandTable compares a fixed table of
// integer operand pairs with every relational operator, cross-checked
// against plain Go evaluation (the reference for this restricted
// expression subset).
func TestRelationalOperatorsAgainstOperandTable(t *testing.T) {
	ops := []struct {
		punct string
		eval  func(a, b int64) bool
	}{
		{"==", func(a, b int64) bool { return a == b }},
		{"!=", func(a, b int64) bool { return a != b }},
		{"<", func(a, b int64) bool { return a < b }},
		{">", func(a, b int64) bool { return a > b }},
		{"<=", func(a, b int64) bool { return a <= b }},
		{">=", func(a, b int64) bool { return a >= b }},
	}
	table := []struct{ a, b int64 }{
		{3, 5}, {5, 3}, {4, 4}, {0, 7}, {7, 0}, {100, 99}, {1, 1}, {10, 20},
	}
	for _, pair := range table {
		for _, op := range ops {
			src := "int main(){ int a=" + itoa(int(pair.a)) + "; int b=" + itoa(int(pair.b)) + "; return a " + op.punct + " b; }"
			c := newCompiler()
			f := writeTempSource(t, src)
			if ok := c.tccCompile(f); !ok {
				t.Fatalf("compile failed with %d errors: %s", c.errCount, src)
			}
			got, err := runMain(c)
			if err != nil {
				t.Fatalf("interp: %v", err)
			}
			want := int64(0)
			if op.eval(pair.a, pair.b) {
				want = 1
			}
			if got != want {
				t.Errorf("%s: expected %d, got %d", src, want, got)
			}
		}
	}
}

// TestLabelFixupInvariant is the invariant glabel's doc comment names:
// every fix-up slot threaded onto a label's chain before it is defined gets
// patched to a correct, self-consistent relative displacement.
func TestLabelFixupInvariant(t *testing.T) {
	c := newCompiler()
	l := c.gind()
	c.gjmp(l) // forward reference: threads a fix-up, since l is undefined
	for i := 0; i < 3; i++ {
		c.text.add([]byte{0x90}) // nop padding between the jump and its target
	}
	beforeLabel := c.ind()
	c.glabel(l)
	if l.R != symLabelDefined {
		t.Fatal("expected label to be marked defined")
	}
	if l.C != int64(beforeLabel) {
		t.Errorf("expected label offset %d, got %d", beforeLabel, l.C)
	}
	// The jmp's displacement, at text offset 1 (after the 0xe9 opcode),
	// should equal label_offset - (slot+4).
	disp := int32(c.text.getU32At(1))
	wantDisp := int32(beforeLabel - 5)
	if disp != wantDisp {
		t.Errorf("expected patched displacement %d, got %d", wantDisp, disp)
	}
}

// TestGvLeavesRegisterBelowNBRegs is spec.md §8 invariant 4: gv(RC_INT)
// always leaves a value-stack entry whose storage is a real register
// (storage() < nbRegs), never one of the sentinel storage kinds.
func TestGvLeavesRegisterBelowNBRegs(t *testing.T) {
	c := newCompiler()
	c.vs.vset(c, TInt, vCONST, 42)
	c.gv(RCInt)
	top := c.vs.top1(c)
	if top.storage() >= int(nbRegs) {
		t.Errorf("expected gv to materialize into a real register, got storage=%#x", top.storage())
	}
}
