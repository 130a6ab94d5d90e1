package similarity

import "math"

// Batched is the matrix-vector Scorer. It normalizes all vectors once and
// then reduces every comparison to a dot product over pre-scaled values,
// which is one pass of sequential float math per candidate instead of three.
type Batched struct{}

var _ Scorer = Batched{}

// normalize returns v scaled to unit length, or nil for zero-norm or empty
// vectors so degenerate inputs score 0 downstream.
func normalize(v []float32) []float64 {
	if len(v) == 0 {
		return nil
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return nil
	}
	inv := 1 / math.Sqrt(norm)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x) * inv
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Scores computes query·candidateᵢ over unit-normalized vectors.
func (Batched) Scores(query []float32, candidates [][]float32) []float64 {
	scores := make([]float64, len(candidates))

	q := normalize(query)
	if q == nil {
		return scores
	}

	for i, c := range candidates {
		if len(c) != len(query) {
			continue
		}
		if n := normalize(c); n != nil {
			scores[i] = dot(q, n)
		}
	}
	return scores
}

// Matrix computes the symmetric pairwise similarity matrix with one
// normalization pass followed by dot products on the upper triangle.
func (Batched) Matrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	normalized := make([][]float64, n)
	for i, v := range vectors {
		normalized[i] = normalize(v)
	}

	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		if normalized[i] == nil {
			continue
		}
		for j := i + 1; j < n; j++ {
			if normalized[j] == nil || len(normalized[j]) != len(normalized[i]) {
				continue
			}
			s := dot(normalized[i], normalized[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m
}

// Default returns the Scorer used in production.
func Default() Scorer {
	return Batched{}
}
