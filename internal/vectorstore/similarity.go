package vectorstore

import (
	"fmt"
	"math"
	"sort"
)

// Candidate pairs a record id with its vector for in-process ranking.
type Candidate struct {
	ID     string
	Vector []float32
}

// CosineSimilarity computes the cosine similarity of two vectors in [-1, 1].
// Returns 0 when either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
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

// MostDissimilar ranks candidates by ascending cosine similarity to base and
// returns the k least similar. Candidates whose dimensionality differs from
// base make the whole call fail rather than silently scoring as unrelated.
func MostDissimilar(base []float32, candidates []Candidate, k int) ([]Candidate, error) {
	if len(base) == 0 {
		return nil, fmt.Errorf("base vector cannot be empty")
	}
	if k <= 0 {
		return nil, nil
	}
	type scored struct {
		c   Candidate
		sim float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(base) {
			return nil, fmt.Errorf("dimension mismatch for candidate %q: base has %d, candidate has %d",
				c.ID, len(base), len(c.Vector))
		}
		ranked = append(ranked, scored{c: c, sim: CosineSimilarity(base, c.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim < ranked[j].sim })
	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Candidate, 0, k)
	for _, s := range ranked[:k] {
		out = append(out, s.c)
	}
	return out, nil
}
