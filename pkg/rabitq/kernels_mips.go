package rabitq

import "math"

// This file implements the MIPS-to-L2 injection of §4.1: maximum
// inner-product search is reduced to nearest-neighbor search under squared
// Euclidean distance via the spherical injection, not by materializing an
// augmented vector space. Grounded on
// original_source/src/ailego/math/mips_euclidean_distance_matrix.h's
// ComputeSphericalInjection, the one piece of arithmetic every shape/type
// specialization in that file funnels through.
//
// Given the inner product and squared L2 norms of a database vector u and a
// query vector v, and e2 = 1/max_squared_l2_norm over the collection (e2==0
// is the "localized" case, every vector already sharing one norm):
//
//	e2 == 0:  2 - 2*ip / max(u2, v2)
//	e2 != 0:  s = (1 - e2*u2) * (1 - e2*v2)
//	          2 * (1 - e2*ip - sqrt(s))   if s > 0
//	          2 * (1 - e2*ip)             otherwise, the sqrt argument
//	                                      degenerate for this pair
//
// The result orders database vectors by squared Euclidean distance in the
// injected space exactly as maximizing ip orders them in the original space,
// so any L2 graph can serve unnormalized inner-product queries.

// ComputeSphericalInjection computes the spherical-injection squared
// Euclidean distance from an inner product and the two vectors' squared L2
// norms, given a collection's e2 = 1/max_squared_l2_norm.
func ComputeSphericalInjection(innerProduct, u2, v2, e2 float32) float32 {
	if e2 == 0 {
		m := u2
		if v2 > m {
			m = v2
		}
		if m == 0 {
			return 0
		}
		return 2 - 2*innerProduct/m
	}
	s := (1 - e2*u2) * (1 - e2*v2)
	if s > 0 {
		return 2 * (1 - e2*innerProduct - float32(math.Sqrt(float64(s))))
	}
	return 2 * (1 - e2*innerProduct)
}

// InnerProductToSquaredL2 is an alias of ComputeSphericalInjection: it
// reduces an inner product and both operands' squared norms to a
// MIPS-ordered squared-Euclidean distance without recomputing anything over
// the raw vectors. Quantizer.Estimate does not call it; its estimates are
// squared Euclidean for every metric.
func InnerProductToSquaredL2(innerProduct, u2, v2, e2 float32) float32 {
	return ComputeSphericalInjection(innerProduct, u2, v2, e2)
}

// SquaredNorm returns a vector's squared L2 norm, the u2/v2 operand
// ComputeSphericalInjection needs per side.
func SquaredNorm(v []float32) float32 {
	var norm2 float32
	for _, c := range v {
		norm2 += c * c
	}
	return norm2
}

// MaxSquaredNorm returns the largest squared L2 norm among vectors, the
// value a collection's e2 is derived from.
func MaxSquaredNorm(vectors [][]float32) float32 {
	var best float32
	for _, v := range vectors {
		if n := SquaredNorm(v); n > best {
			best = n
		}
	}
	return best
}

// EpsilonSquared derives e2 = 1/maxSquaredNorm, or 0 for an empty or
// all-zero collection, which selects ComputeSphericalInjection's localized
// e2==0 branch.
func EpsilonSquared(maxSquaredNorm float32) float32 {
	if maxSquaredNorm <= 0 {
		return 0
	}
	return 1 / maxSquaredNorm
}
