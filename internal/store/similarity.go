package store

import "math"

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either has zero length or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	return cosineWithNorms(a, b, vectorNorm(a), vectorNorm(b))
}

func cosineWithNorms(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	sim := dot / (normA * normB)
	if math.IsNaN(sim) {
		return 0
	}
	// rounding can push identical vectors just past 1
	return math.Max(-1, math.Min(1, sim))
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// IsFinite reports whether every component is a finite number.
func IsFinite(v []float32) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// SanitizeVector returns a copy of v with NaN and ±Inf replaced by 0 and
// the number of replaced components.
func SanitizeVector(v []float32) ([]float32, int) {
	out := make([]float32, len(v))
	replaced := 0
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			replaced++
			continue
		}
		out[i] = x
	}
	return out, replaced
}
