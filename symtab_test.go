package main

import "testing"

func TestSymStackPushFind(t *testing.T) {
	s := newSymStack()
	s.push("x", TInt, vCONST, 7)
	sym := s.find("x")
	if sym == nil {
		t.Fatal("expected to find pushed symbol")
	}
	if sym.C != 7 {
		t.Errorf("expected C=7, got %d", sym.C)
	}
	if s.find("y") != nil {
		t.Error("expected lookup of undeclared name to fail")
	}
}

func TestSymStackShadowing(t *testing.T) {
	s := newSymStack()
	s.push("x", TInt, vCONST, 1)
	marker := s.marker()
	s.push("x", TInt, vCONST, 2)
	if got := s.find("x"); got == nil || got.C != 2 {
		t.Fatalf("expected inner x (C=2) to shadow outer, got %+v", got)
	}
	s.pop(marker)
	if got := s.find("x"); got == nil || got.C != 1 {
		t.Fatalf("expected outer x (C=1) to reappear after pop, got %+v", got)
	}
}

func TestSymStackPopRemovesOnlyNewerEntries(t *testing.T) {
	s := newSymStack()
	s.push("a", TInt, vCONST, 1)
	marker := s.marker()
	s.push("b", TInt, vCONST, 2)
	s.push("c", TInt, vCONST, 3)
	s.pop(marker)
	if s.find("a") == nil {
		t.Error("expected a to survive pop")
	}
	if s.find("b") != nil || s.find("c") != nil {
		t.Error("expected b and c to be removed by pop")
	}
}

func TestSymStackFree(t *testing.T) {
	s := newSymStack()
	s.push("x", TInt, vCONST, 1)
	s.free()
	if s.find("x") != nil {
		t.Error("expected find to fail after free")
	}
	if len(s.spine) != 0 {
		t.Error("expected spine to be empty after free")
	}
}

func TestHashNameDeterministic(t *testing.T) {
	if hashName("foo") != hashName("foo") {
		t.Error("hashName should be deterministic")
	}
	if hashName("foo") < 0 || hashName("foo") >= symTabSize {
		t.Error("hashName out of table range")
	}
}

func TestSymStackCollisionChain(t *testing.T) {
	// Find two distinct names that hash to the same bucket, so find
	// exercises the bucket chain (not just the common case).
	s := newSymStack()
	names := []string{}
	seen := map[int]string{}
	for i := 0; len(names) < 2 && i < 1_000_000; i++ {
		name := string(rune('a'+i%26)) + string(rune('a'+(i/26)%26)) + string(rune('a'+(i/676)%26))
		b := hashName(name)
		if prev, ok := seen[b]; ok && prev != name {
			names = []string{prev, name}
			break
		}
		seen[b] = name
	}
	if len(names) != 2 {
		t.Skip("could not find a hash collision to exercise the bucket chain")
	}
	s.push(names[0], TInt, vCONST, 10)
	s.push(names[1], TInt, vCONST, 20)
	if got := s.find(names[0]); got == nil || got.C != 10 {
		t.Errorf("expected to find %q with C=10 despite bucket collision", names[0])
	}
	if got := s.find(names[1]); got == nil || got.C != 20 {
		t.Errorf("expected to find %q with C=20 despite bucket collision", names[1])
	}
}
