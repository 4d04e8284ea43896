package main

import "testing"

func TestSectionAddReturnsPreAppendOffset(t *testing.T) {
	s := newSection(".text", secCode)
	off1 := s.add([]byte{0x90})
	if off1 != 0 {
		t.Errorf("first add: expected offset 0, got %d", off1)
	}
	off2 := s.add([]byte{0x90, 0x90})
	if off2 != 1 {
		t.Errorf("second add: expected offset 1, got %d", off2)
	}
	if s.size() != 3 {
		t.Errorf("expected size 3, got %d", s.size())
	}
}

func TestSectionReserveZeroesAndReturnsOffset(t *testing.T) {
	s := newSection(".text", secCode)
	s.add([]byte{0xaa})
	off := s.reserve(4)
	if off != 1 {
		t.Errorf("expected reserve offset 1, got %d", off)
	}
	if s.size() != 5 {
		t.Errorf("expected size 5 after reserve, got %d", s.size())
	}
	for i, b := range s.Data[off : off+4] {
		if b != 0 {
			t.Errorf("reserved byte %d not zero: %#x", i, b)
		}
	}
}

func TestSectionPutU32AtRoundTrip(t *testing.T) {
	s := newSection(".data", secData)
	s.reserve(8)
	s.putU32At(2, 0xdeadbeef)
	got := s.getU32At(2)
	if got != 0xdeadbeef {
		t.Errorf("expected 0xdeadbeef, got %#x", got)
	}
	// Verify the bytes themselves are little-endian.
	want := []byte{0xef, 0xbe, 0xad, 0xde}
	for i, b := range want {
		if s.Data[2+i] != b {
			t.Errorf("byte %d: expected %#x, got %#x", i, b, s.Data[2+i])
		}
	}
}

func TestSectionFlagsDistinguishKinds(t *testing.T) {
	if secCode&0x20000000 == 0 {
		t.Error("secCode missing executable flag")
	}
	if secData&0x80000000 == 0 {
		t.Error("secData missing write flag")
	}
	if secRData&0x80000000 != 0 {
		t.Error("secRData should not be writable")
	}
}
