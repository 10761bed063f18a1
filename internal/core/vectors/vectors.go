// Package vectors provides the small amount of embedding arithmetic shared
// by the detection sweeps: cosine similarity and element-wise means.
package vectors

import "math"

// CosineSimilarity returns the cosine similarity of two embedding vectors.
// Mismatched lengths or zero-norm inputs yield 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

// CosineDistance returns 1 - cosine similarity, clamped to [0, 2].
func CosineDistance(a, b []float32) float32 {
	return 1 - CosineSimilarity(a, b)
}

// Mean returns the element-wise mean of the given vectors. Vectors whose
// length differs from the first are skipped. Returns nil for empty input.
func Mean(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}

	dim := len(vecs[0])
	sum := make([]float32, dim)
	count := 0

	for _, v := range vecs {
		if len(v) != dim {
			continue
		}

		for i, x := range v {
			sum[i] += x
		}

		count++
	}

	if count == 0 {
		return nil
	}

	for i := range sum {
		sum[i] /= float32(count)
	}

	return sum
}
