package rabitq_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestKacRotator_PreservesNormAndInverts(t *testing.T) {
	r := rabitq.NewRotator(rabitq.RotatorKac, 8, 42)
	x := []float32{1, 2, 3, 4, 5, 6, 7, 8}

	y := r.Apply(x)
	require.InDelta(t, norm(x), norm(y), 1e-3)

	back := r.Inverse(y)
	for i := range x {
		require.InDelta(t, x[i], back[i], 1e-3)
	}
}

func TestFHTRotator_PreservesNormAndInverts(t *testing.T) {
	r := rabitq.NewRotator(rabitq.RotatorFHT, 8, 9)
	x := []float32{1, -2, 3, -4, 5, -6, 7, -8}

	y := r.Apply(x)
	require.InDelta(t, norm(x), norm(y), 1e-3)

	back := r.Inverse(y)
	for i := range x {
		require.InDelta(t, x[i], back[i], 1e-3)
	}
}

func TestPadDim(t *testing.T) {
	require.Equal(t, 1, rabitq.PadDim(1))
	require.Equal(t, 8, rabitq.PadDim(5))
	require.Equal(t, 16, rabitq.PadDim(16))
}

func TestParseRotatorKind(t *testing.T) {
	require.Equal(t, rabitq.RotatorFHT, rabitq.ParseRotatorKind("fht"))
	require.Equal(t, rabitq.RotatorKac, rabitq.ParseRotatorKind("kac"))
	require.Equal(t, rabitq.RotatorKac, rabitq.ParseRotatorKind("unknown"))
}
