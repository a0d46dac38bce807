// Package rank provides the similarity ranking shared by backends that
// score embeddings in process.
package rank

import (
	"fmt"
	"math"
	"sort"

	"github.com/custodia-labs/jam/internal/core/domain"
)

// CosineSimilarity computes the cosine similarity between two vectors. It
// returns an error if the vectors have different lengths or if either vector
// has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("rank: cosine similarity dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("rank: cosine similarity on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va := float64(a[i])
		vb := float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, fmt.Errorf("rank: cosine similarity with zero-magnitude vector")
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

// Probability maps a cosine score from [-1, 1] onto [0, 1].
func Probability(score float64) float64 {
	return (score + 1) / 2
}

// TopK scores every candidate against query and returns at most k of them,
// most similar first with ties broken by ascending ID. Candidates without a
// comparable embedding are left out. Results carry Score and Probability.
func TopK(candidates []domain.Document, query []float32, k int, returnEmbedding bool) []domain.Document {
	type scored struct {
		doc   domain.Document
		score float64
	}

	hits := make([]scored, 0, len(candidates))
	for i := range candidates {
		score, err := CosineSimilarity(candidates[i].Embedding, query)
		if err != nil {
			continue
		}
		hits = append(hits, scored{doc: candidates[i], score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.ID < hits[j].doc.ID
	})

	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}

	out := make([]domain.Document, len(hits))
	for i, h := range hits {
		doc := h.doc.WithRanking(h.score, Probability(h.score))
		if !returnEmbedding {
			doc.Embedding = nil
		}
		out[i] = doc
	}
	return out
}
