package search

import (
	"sort"

	"github.com/Aman-CERP/orgmcp/internal/store"
)

// Default fusion weights. The semantic channel carries more signal for the
// short biographical documents this engine indexes, so it gets the larger
// share; both values are overridable through Config.
const (
	DefaultVectorWeight  = 0.6
	DefaultKeywordWeight = 0.4
)

// FusedResult is a single document after channel fusion.
type FusedResult struct {
	ContentID      string   // Document identifier
	Score          float64  // Weighted combined score
	VectorScore    float64  // Cosine similarity (0 when the vector channel missed it)
	KeywordScore   float64  // TF-IDF cosine (0 when the keyword channel missed it)
	InBothChannels bool     // Document appeared in both channel results
	MatchedTerms   []string // Keyword-channel matched terms (for highlighting)
}

// WeightedFusion merges vector and keyword results by document ID using a
// weighted score sum:
//
//	score(d) = vectorWeight·vector(d) + keywordWeight·keyword(d)
//
// A document missing from one channel contributes 0 for that channel, so a
// hit in both channels always outranks an otherwise-equal hit in one.
type WeightedFusion struct {
	vectorWeight  float64
	keywordWeight float64
}

// NewWeightedFusion creates a fusion with the given channel weights.
// When both weights are zero the package defaults apply.
func NewWeightedFusion(vectorWeight, keywordWeight float64) *WeightedFusion {
	if vectorWeight == 0 && keywordWeight == 0 {
		vectorWeight = DefaultVectorWeight
		keywordWeight = DefaultKeywordWeight
	}
	return &WeightedFusion{
		vectorWeight:  vectorWeight,
		keywordWeight: keywordWeight,
	}
}

// Weights returns the configured vector and keyword weights.
func (w *WeightedFusion) Weights() (vector, keyword float64) {
	return w.vectorWeight, w.keywordWeight
}

// Fuse merges the two channel result lists into one ranking. Each document
// appears exactly once; order is combined score descending with ties broken
// by ascending content ID. Both channels empty yields an empty slice, never
// nil.
func (w *WeightedFusion) Fuse(vector []*store.VectorResult, keyword []*store.KeywordResult) []*FusedResult {
	merged := make(map[string]*FusedResult, len(vector)+len(keyword))

	for _, vr := range vector {
		merged[vr.ID] = &FusedResult{
			ContentID:   vr.ID,
			VectorScore: vr.Score,
		}
	}

	for _, kr := range keyword {
		if fr, ok := merged[kr.DocID]; ok {
			fr.KeywordScore = kr.Score
			fr.MatchedTerms = kr.MatchedTerms
			fr.InBothChannels = true
			continue
		}
		merged[kr.DocID] = &FusedResult{
			ContentID:    kr.DocID,
			KeywordScore: kr.Score,
			MatchedTerms: kr.MatchedTerms,
		}
	}

	for _, fr := range merged {
		fr.Score = w.vectorWeight*fr.VectorScore + w.keywordWeight*fr.KeywordScore
	}

	return toSortedSlice(merged)
}

// VectorOnly wraps vector-channel hits as fused results. The channel already
// returns them ordered by score descending with ID tie-break, so the order
// is kept and the raw score becomes the combined score.
func VectorOnly(results []*store.VectorResult) []*FusedResult {
	fused := make([]*FusedResult, len(results))
	for i, vr := range results {
		fused[i] = &FusedResult{
			ContentID:   vr.ID,
			Score:       vr.Score,
			VectorScore: vr.Score,
		}
	}
	return fused
}

// KeywordOnly wraps keyword-channel hits as fused results, keeping the
// channel order.
func KeywordOnly(results []*store.KeywordResult) []*FusedResult {
	fused := make([]*FusedResult, len(results))
	for i, kr := range results {
		fused[i] = &FusedResult{
			ContentID:    kr.DocID,
			Score:        kr.Score,
			KeywordScore: kr.Score,
			MatchedTerms: kr.MatchedTerms,
		}
	}
	return fused
}

// toSortedSlice flattens the merged map into a deterministic ranking:
// combined score descending, ties by ascending content ID.
func toSortedSlice(merged map[string]*FusedResult) []*FusedResult {
	fused := make([]*FusedResult, 0, len(merged))
	for _, fr := range merged {
		fused = append(fused, fr)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].ContentID < fused[j].ContentID
	})
	return fused
}
