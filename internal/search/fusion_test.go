package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/orgmcp/internal/store"
)

// --- Test Helpers ---

func vecHits(pairs ...any) []*store.VectorResult {
	results := make([]*store.VectorResult, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		results = append(results, &store.VectorResult{
			ID:    pairs[i].(string),
			Score: pairs[i+1].(float64),
		})
	}
	return results
}

func kwHits(pairs ...any) []*store.KeywordResult {
	results := make([]*store.KeywordResult, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		results = append(results, &store.KeywordResult{
			DocID:        pairs[i].(string),
			Score:        pairs[i+1].(float64),
			MatchedTerms: []string{"term"},
		})
	}
	return results
}

func fusedIDs(fused []*FusedResult) []string {
	ids := make([]string, len(fused))
	for i, fr := range fused {
		ids[i] = fr.ContentID
	}
	return ids
}

// ===== Weighted fusion =====

func TestWeightedFusion_MergesByID(t *testing.T) {
	// Given hits from both channels with one overlapping document
	fusion := NewWeightedFusion(0.6, 0.4)
	vec := vecHits("profile_a", 0.8, "profile_b", 0.5)
	kw := kwHits("profile_b", 0.6, "knowledge_c", 0.9)

	// When fusing
	fused := fusion.Fuse(vec, kw)

	// Then each document appears once with the weighted sum
	require.Len(t, fused, 3)
	assert.Equal(t, []string{"profile_b", "profile_a", "knowledge_c"}, fusedIDs(fused))
	assert.InDelta(t, 0.6*0.5+0.4*0.6, fused[0].Score, 1e-12) // 0.54
	assert.InDelta(t, 0.6*0.8, fused[1].Score, 1e-12)         // 0.48
	assert.InDelta(t, 0.4*0.9, fused[2].Score, 1e-12)         // 0.36
}

func TestWeightedFusion_MissingChannelContributesZero(t *testing.T) {
	fusion := NewWeightedFusion(0.6, 0.4)

	fused := fusion.Fuse(vecHits("only_vector", 0.9), kwHits("only_keyword", 0.9))

	require.Len(t, fused, 2)
	byID := map[string]*FusedResult{}
	for _, fr := range fused {
		byID[fr.ContentID] = fr
	}

	v := byID["only_vector"]
	assert.InDelta(t, 0.9, v.VectorScore, 1e-12)
	assert.Zero(t, v.KeywordScore)
	assert.False(t, v.InBothChannels)

	k := byID["only_keyword"]
	assert.Zero(t, k.VectorScore)
	assert.InDelta(t, 0.9, k.KeywordScore, 1e-12)
	assert.False(t, k.InBothChannels)
}

func TestWeightedFusion_MarksOverlap(t *testing.T) {
	fusion := NewWeightedFusion(0.6, 0.4)

	fused := fusion.Fuse(vecHits("doc", 0.7), kwHits("doc", 0.3))

	require.Len(t, fused, 1)
	assert.True(t, fused[0].InBothChannels)
	assert.InDelta(t, 0.7, fused[0].VectorScore, 1e-12)
	assert.InDelta(t, 0.3, fused[0].KeywordScore, 1e-12)
	assert.Equal(t, []string{"term"}, fused[0].MatchedTerms)
}

func TestWeightedFusion_TiesBreakByAscendingID(t *testing.T) {
	// Given two documents with identical channel scores
	fusion := NewWeightedFusion(0.6, 0.4)
	vec := vecHits("profile_z", 0.5, "profile_a", 0.5)

	fused := fusion.Fuse(vec, nil)

	require.Len(t, fused, 2)
	assert.Equal(t, []string{"profile_a", "profile_z"}, fusedIDs(fused))
}

func TestWeightedFusion_EmptyChannelsYieldEmptySlice(t *testing.T) {
	fusion := NewWeightedFusion(0.6, 0.4)

	fused := fusion.Fuse(nil, nil)

	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestWeightedFusion_EachDocumentAppearsExactlyOnce(t *testing.T) {
	fusion := NewWeightedFusion(0.6, 0.4)
	vec := vecHits("a", 0.9, "b", 0.8, "c", 0.7)
	kw := kwHits("b", 0.6, "c", 0.5, "d", 0.4)

	fused := fusion.Fuse(vec, kw)

	require.Len(t, fused, 4)
	seen := map[string]int{}
	for _, fr := range fused {
		seen[fr.ContentID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "document %s fused more than once", id)
	}
}

func TestWeightedFusion_DefaultWeightsWhenBothZero(t *testing.T) {
	fusion := NewWeightedFusion(0, 0)

	v, k := fusion.Weights()
	assert.Equal(t, DefaultVectorWeight, v)
	assert.Equal(t, DefaultKeywordWeight, k)

	fused := fusion.Fuse(vecHits("doc", 1.0), kwHits("doc", 1.0))
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-12)
}

func TestWeightedFusion_CustomWeights(t *testing.T) {
	// A keyword-heavy configuration must reorder against the default
	fusion := NewWeightedFusion(0.1, 0.9)
	vec := vecHits("vector_doc", 1.0)
	kw := kwHits("keyword_doc", 0.5)

	fused := fusion.Fuse(vec, kw)

	require.Len(t, fused, 2)
	assert.Equal(t, "keyword_doc", fused[0].ContentID) // 0.45 > 0.1
	assert.Equal(t, "vector_doc", fused[1].ContentID)
}

// ===== Single-channel wrappers =====

func TestVectorOnly_PreservesChannelOrder(t *testing.T) {
	hits := vecHits("first", 0.9, "second", 0.7, "third", 0.2)

	fused := VectorOnly(hits)

	require.Len(t, fused, 3)
	assert.Equal(t, []string{"first", "second", "third"}, fusedIDs(fused))
	for i, fr := range fused {
		assert.Equal(t, hits[i].Score, fr.Score)
		assert.Equal(t, hits[i].Score, fr.VectorScore)
		assert.Zero(t, fr.KeywordScore)
	}
}

func TestKeywordOnly_PreservesChannelOrder(t *testing.T) {
	hits := kwHits("first", 0.8, "second", 0.3)

	fused := KeywordOnly(hits)

	require.Len(t, fused, 2)
	assert.Equal(t, []string{"first", "second"}, fusedIDs(fused))
	for i, fr := range fused {
		assert.Equal(t, hits[i].Score, fr.Score)
		assert.Equal(t, hits[i].Score, fr.KeywordScore)
		assert.Zero(t, fr.VectorScore)
		assert.Equal(t, []string{"term"}, fr.MatchedTerms)
	}
}

func BenchmarkWeightedFusion_Fuse(b *testing.B) {
	fusion := NewWeightedFusion(0.6, 0.4)
	vec := make([]*store.VectorResult, 100)
	kw := make([]*store.KeywordResult, 100)
	for i := range vec {
		vec[i] = &store.VectorResult{ID: fmt.Sprintf("doc_%03d", i), Score: float64(100-i) / 100}
	}
	for i := range kw {
		// Half the keyword hits overlap the vector hits
		kw[i] = &store.KeywordResult{DocID: fmt.Sprintf("doc_%03d", i+50), Score: float64(100-i) / 100}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fusion.Fuse(vec, kw)
	}
}
