package bitset

import "testing"

func TestSetClearTest(t *testing.T) {
	b := New(16)
	if len(b) != 2 {
		t.Fatalf("got len %d want 2", len(b))
	}
	b.Set(0)
	b.Set(9)
	if !b.Test(0) || !b.Test(9) {
		t.Fatalf("expected bits 0 and 9 set")
	}
	if b.Test(1) || b.Test(8) {
		t.Fatalf("unexpected bits set")
	}
	b.Clear(0)
	if b.Test(0) {
		t.Fatalf("expected bit 0 cleared")
	}
}

func TestAnd(t *testing.T) {
	a := New(8)
	b := New(8)
	a.Set(0)
	a.Set(1)
	b.Set(1)
	b.Set(2)
	out := And(a, b)
	if out.Test(0) || !out.Test(1) || out.Test(2) {
		t.Fatalf("AND mismatch: %08b", out[0])
	}
}

func TestPopCount(t *testing.T) {
	b := New(16)
	b.Set(0)
	b.Set(5)
	b.Set(15)
	if got := b.PopCount(16); got != 3 {
		t.Fatalf("got %d want 3", got)
	}
}

func TestFirstZero(t *testing.T) {
	b := New(8)
	b.Set(0)
	b.Set(1)
	b.Set(2)
	i, ok := b.FirstZero(8)
	if !ok || i != 3 {
		t.Fatalf("got i=%d ok=%v", i, ok)
	}
	for j := 0; j < 8; j++ {
		b.Set(j)
	}
	if _, ok := b.FirstZero(8); ok {
		t.Fatalf("expected no zero bits")
	}
}
