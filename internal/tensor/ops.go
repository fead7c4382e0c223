package tensor

import (
	"math"
)

// EntropyEps guards the logarithm in Entropy.
const EntropyEps = 1e-9

// Add adds src to dst element-wise.
func Add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

// Fill returns a vector of n copies of v.
func Fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Dot computes the dot product of a and b.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm returns the Euclidean norm of x.
func Norm(x []float32) float32 {
	return float32(math.Sqrt(float64(Dot(x, x))))
}

// Cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero norm.
func Cosine(a, b []float32) float32 {
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Distance returns ‖a − b‖₂.
func Distance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// AbsSum returns Σ|x|.
func AbsSum(x []float32) float32 {
	var sum float32
	for _, v := range x {
		sum += float32(math.Abs(float64(v)))
	}
	return sum
}

// MaxAbsDiff returns the largest element-wise |a − b|.
func MaxAbsDiff(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("max abs diff length mismatch")
	}
	var m float32
	for i := range a {
		d := float32(math.Abs(float64(a[i] - b[i])))
		if d > m {
			m = d
		}
	}
	return m
}

// ReLU clamps negative values of x to zero in place.
func ReLU(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// AppendBias returns [x; 1].
func AppendBias(x []float32) []float32 {
	out := make([]float32, len(x)+1)
	copy(out, x)
	out[len(x)] = 1
	return out
}

// Softmax applies the softmax function to x.
func Softmax(x []float32) {
	if len(x) == 0 {
		return
	}
	maxv := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > maxv {
			maxv = x[i]
		}
	}
	var sum float64
	for i := range x {
		v := math.Exp(float64(x[i] - maxv))
		x[i] = float32(v)
		sum += v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / sum)
	for i := range x {
		x[i] *= inv
	}
}

// Entropy returns −Σ pᵢ·ln(pᵢ+ε) for a probability vector p.
func Entropy(p []float32) float32 {
	var h float64
	for _, v := range p {
		if v > 0 {
			h -= float64(v) * math.Log(float64(v)+EntropyEps)
		}
	}
	return float32(h)
}
