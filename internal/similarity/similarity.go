// Package similarity provides the cosine similarity kernels used by ranking
// and deduplication. Two implementations sit behind the Scorer interface: a
// per-candidate scalar loop and a batched matrix path. Both produce the same
// scores up to floating-point tolerance.
package similarity

import "math"

// Cosine computes the cosine similarity between two vectors.
// Mismatched lengths and zero-norm vectors score 0 rather than erroring.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Scorer scores embedding vectors in batch.
type Scorer interface {
	// Scores computes the similarity of query against every candidate.
	// The result has one entry per candidate, in candidate order.
	Scores(query []float32, candidates [][]float32) []float64

	// Matrix computes the symmetric pairwise similarity matrix over vectors.
	Matrix(vectors [][]float32) [][]float64
}

// Scalar is the loop-per-candidate Scorer. It is the reference implementation
// the batched path is tested against.
type Scalar struct{}

var _ Scorer = Scalar{}

// Scores computes per-candidate cosine similarity with a plain loop.
func (Scalar) Scores(query []float32, candidates [][]float32) []float64 {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = Cosine(query, c)
	}
	return scores
}

// Matrix computes the symmetric pairwise similarity matrix pair by pair.
func (Scalar) Matrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := Cosine(vectors[i], vectors[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m
}
