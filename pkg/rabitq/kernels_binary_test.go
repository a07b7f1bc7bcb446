package rabitq_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

func bin32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// TestHammingPacked_BIN32Scenario mirrors the three-vector Hamming scenario:
// distances of 8, 24 and 8 against a fixed query, in that vector order.
func TestHammingPacked_BIN32Scenario(t *testing.T) {
	db := append(append(bin32(0x00000000), bin32(0xFFFFFFFF)...), bin32(0x0000FFFF)...)
	query := bin32(0x000000FF)

	out := make([]float32, 3)
	rabitq.HammingPacked(db, 3, query, 1, 4, out)

	require.Equal(t, float32(8), out[0])
	require.Equal(t, float32(24), out[1])
	require.Equal(t, float32(8), out[2])
}

func TestSqrtHammingPacked(t *testing.T) {
	db := bin32(0x00000000)
	query := bin32(0x0000000F)
	out := make([]float32, 1)
	rabitq.SqrtHammingPacked(db, 1, query, 1, 4, out)
	require.InDelta(t, float32(2.0), out[0], 1e-6)
}
