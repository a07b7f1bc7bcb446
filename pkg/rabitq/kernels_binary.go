package rabitq

import (
	"math"
	"math/bits"
)

// This file implements the binary-coded kernels of §4.1: Hamming distance
// (popcount of XOR) and sqrt-Hamming, blocked the same way as the FP32 and
// INT8 families. Grounded on bits.go's hammingDistance, lifted from a single
// pair into a blocked M×N primitive.

func hammingPacked(a, b []byte) int {
	total := 0
	for i := range a {
		total += bits.OnesCount8(a[i] ^ b[i])
	}
	return total
}

// HammingPacked computes pairwise Hamming distance (bit count of XOR)
// between m packed-bit database rows and n packed-bit query rows, each of
// byteLen bytes.
func HammingPacked(db []byte, m int, queries []byte, n int, byteLen int, out []float32) {
	for q := 0; q < n; q++ {
		query := queries[q*byteLen : q*byteLen+byteLen]
		base := q * m
		for i := 0; i < m; i++ {
			row := db[i*byteLen : i*byteLen+byteLen]
			out[base+i] = float32(hammingPacked(row, query))
		}
	}
}

// SqrtHammingPacked computes the square root of the Hamming distance, used
// by the spec's sqrt-Hamming metric to keep the binary distance on a scale
// comparable to Euclidean distance over the same bit count.
func SqrtHammingPacked(db []byte, m int, queries []byte, n int, byteLen int, out []float32) {
	HammingPacked(db, m, queries, n, byteLen, out)
	for i := range out {
		out[i] = float32(math.Sqrt(float64(out[i])))
	}
}
