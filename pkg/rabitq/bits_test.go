package rabitq

import "testing"

func TestPackSignBits_RoundTrip(t *testing.T) {
	y := []float32{1, -1, 2, -2, 0, 3, -3, 0.0001}
	packed := packSignBits(y)
	for i, v := range y {
		want := uint8(0)
		if v >= 0 {
			want = 1
		}
		if got := unpackBit(packed, i); got != want {
			t.Fatalf("bit %d: got %d want %d", i, got, want)
		}
	}
}

func TestHammingDistance(t *testing.T) {
	a := []byte{0b10101010}
	b := []byte{0b01010101}
	if d := hammingDistance(a, b); d != 8 {
		t.Fatalf("expected 8, got %d", d)
	}
}

func TestPackUnpackUintBits(t *testing.T) {
	codes := []uint8{0, 3, 7, 1, 5}
	packed := packUintBits(codes, 3)
	got := unpackUintBits(packed, len(codes), 3)
	for i := range codes {
		if got[i] != codes[i] {
			t.Fatalf("index %d: got %d want %d", i, got[i], codes[i])
		}
	}
}
