package vector

import "math"

// SquaredL2 returns the squared Euclidean distance between a and b, accumulated in
// float64. Both slices must have the same length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// Normalize scales v in place to unit L2 norm and returns the norm it had.
// A zero vector is left unchanged.
func Normalize(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return 0
	}
	norm := math.Sqrt(sum)
	inv := float32(1 / norm)
	for i := range v {
		v[i] *= inv
	}
	return norm
}
