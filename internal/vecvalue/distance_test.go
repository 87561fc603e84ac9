package vecvalue

import (
	"math"
	"testing"
)

func mustVec(t *testing.T, s string, k Kind) Vector {
	t.Helper()
	v, err := ParseText(s, k)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestL2Float32(t *testing.T) {
	a := mustVec(t, "[0,0]", Float32)
	b := mustVec(t, "[3,4]", Float32)
	d, err := L2(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(d-5) > 1e-6 {
		t.Fatalf("got %v want 5", d)
	}
}

func TestL2DimensionMismatch(t *testing.T) {
	a := mustVec(t, "[1,2]", Float32)
	b := mustVec(t, "[1,2,3]", Float32)
	if _, err := L2(a, b); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestL2KindMismatch(t *testing.T) {
	a := mustVec(t, "[1,2]", Float32)
	b := mustVec(t, "[1,2]", Int8)
	if _, err := L2(a, b); err == nil {
		t.Fatalf("expected kind mismatch error")
	}
}

func TestL1(t *testing.T) {
	a := mustVec(t, "[0,0,0]", Int8)
	b := mustVec(t, "[1,-2,3]", Int8)
	d, err := L1(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 6 {
		t.Fatalf("got %v want 6", d)
	}
}

func TestCosineIdentical(t *testing.T) {
	a := mustVec(t, "[1,2,3]", Float32)
	d, err := Cosine(a, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(d) > 1e-6 {
		t.Fatalf("got %v want ~0", d)
	}
}

func TestCosineZeroNorm(t *testing.T) {
	a := mustVec(t, "[0,0,0]", Float32)
	b := mustVec(t, "[1,2,3]", Float32)
	d, err := Cosine(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 2.0 {
		t.Fatalf("got %v want 2.0", d)
	}
}

func TestHamming(t *testing.T) {
	a := mustVec(t, "[1,0,1,0,1,0,1,0]", Bit)
	b := mustVec(t, "[1,1,1,1,1,0,1,0]", Bit)
	d, err := Hamming(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 2 {
		t.Fatalf("got %v want 2", d)
	}
}

func TestHammingRejectsNonBit(t *testing.T) {
	a := mustVec(t, "[1,2]", Float32)
	if _, err := Hamming(a, a); err == nil {
		t.Fatalf("expected kind error")
	}
}

func TestAddSub(t *testing.T) {
	a := mustVec(t, "[1,2,3]", Float32)
	b := mustVec(t, "[4,5,6]", Float32)
	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	els := sum.Float32Elements()
	if els[0] != 5 || els[1] != 7 || els[2] != 9 {
		t.Fatalf("got %v", els)
	}
	diff, err := Sub(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dels := diff.Float32Elements()
	if dels[0] != 3 || dels[1] != 3 || dels[2] != 3 {
		t.Fatalf("got %v", dels)
	}
}

func TestAddRejectsBit(t *testing.T) {
	a := mustVec(t, "[1,0,1,0,1,0,1,0]", Bit)
	if _, err := Add(a, a); err == nil {
		t.Fatalf("expected kind error")
	}
}

func TestAddInt8Clamps(t *testing.T) {
	a := mustVec(t, "[120,120]", Int8)
	b := mustVec(t, "[120,120]", Int8)
	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	els := sum.Int8Elements()
	if els[0] != 127 || els[1] != 127 {
		t.Fatalf("got %v, want clamped to 127", els)
	}
}

func TestNormalize(t *testing.T) {
	v := mustVec(t, "[3,4]", Float32)
	n, err := Normalize(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	els := n.Float32Elements()
	if math.Abs(float64(els[0])-0.6) > 1e-6 || math.Abs(float64(els[1])-0.8) > 1e-6 {
		t.Fatalf("got %v", els)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := mustVec(t, "[0,0]", Float32)
	n, err := Normalize(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	els := n.Float32Elements()
	if els[0] != 0 || els[1] != 0 {
		t.Fatalf("got %v", els)
	}
}

func TestQuantizeToInt8(t *testing.T) {
	v := mustVec(t, "[1,-1,0.5,2]", Float32)
	q, err := QuantizeToInt8(v, "unit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	els := q.Int8Elements()
	if els[0] != 127 || els[1] != -127 || els[3] != 127 {
		t.Fatalf("got %v", els)
	}
}

func TestQuantizeToBinary(t *testing.T) {
	v := mustVec(t, "[1,-1,2,-2,0.1,-0.1,3,-3]", Float32)
	q, err := QuantizeToBinary(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Kind != Bit || q.Dim != 8 {
		t.Fatalf("got kind=%v dim=%d", q.Kind, q.Dim)
	}
	want := []bool{true, false, true, false, true, false, true, false}
	for i, w := range want {
		if q.BitTest(i) != w {
			t.Fatalf("bit %d: got %v want %v", i, q.BitTest(i), w)
		}
	}
}

func TestQuantizeRejectsNonFloat32(t *testing.T) {
	v := mustVec(t, "[1,2]", Int8)
	if _, err := QuantizeToInt8(v, "unit"); err == nil {
		t.Fatalf("expected kind error")
	}
	if _, err := QuantizeToBinary(v); err == nil {
		t.Fatalf("expected kind error")
	}
}
