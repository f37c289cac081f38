package search

import (
	"testing"

	"github.com/corpusindex/corpusindex/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBM25Results(ids []string, scores []float64) []*store.BM25Result {
	results := make([]*store.BM25Result, len(ids))
	for i, id := range ids {
		results[i] = &store.BM25Result{DocID: id, Score: scores[i]}
	}
	return results
}

func createVecResults(ids []string, scores []float32) []*store.VectorResult {
	results := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		results[i] = &store.VectorResult{ID: id, Score: scores[i]}
	}
	return results
}

func TestRRFFusion_Basic(t *testing.T) {
	f := NewRRFFusion()
	bm25 := createBM25Results([]string{"a", "b"}, []float64{10, 5})
	vec := createVecResults([]string{"b", "c"}, []float32{0.9, 0.5})

	results := f.Fuse(bm25, vec)
	require.Len(t, results, 3)

	byID := make(map[string]*FusedResult, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}

	// "b" appears at BM25 rank 2 and vector rank 1: 1/61 + 1/61.
	assert.InDelta(t, 1.0/61+1.0/61, byID["b"].RRFScore, 1e-9)
	assert.True(t, byID["b"].InBothLists)

	// "a" appears only in BM25 at rank 1: 1/61.
	assert.InDelta(t, 1.0/61, byID["a"].RRFScore, 1e-9)
	assert.False(t, byID["a"].InBothLists)

	// "c" appears only in vector at rank 2: 1/62.
	assert.InDelta(t, 1.0/62, byID["c"].RRFScore, 1e-9)
}

func TestRRFFusion_DocumentInOneListOnly(t *testing.T) {
	f := NewRRFFusion()
	bm25 := createBM25Results([]string{"a"}, []float64{1})

	results := f.Fuse(bm25, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0/61, results[0].RRFScore, 1e-9)
	assert.Equal(t, 1, results[0].BM25Rank)
	assert.Equal(t, 0, results[0].VecRank)
	assert.False(t, results[0].InBothLists)
}

func TestRRFFusion_TieBreaking_PreferDenseListAppearance(t *testing.T) {
	f := NewRRFFusion()
	// "a" in BM25 only at rank 1, "b" in vector only at rank 1: equal RRF
	// score. Per spec, ties preserve first-appearance order in R_dense, so
	// "b" (present in the dense list) outranks "a" (absent from it).
	bm25 := createBM25Results([]string{"a"}, []float64{1})
	vec := createVecResults([]string{"b"}, []float32{1})
	results := f.Fuse(bm25, vec)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ChunkID)
	assert.Equal(t, "a", results[1].ChunkID)
}

func TestRRFFusion_NotATie_HigherCombinedRankWins(t *testing.T) {
	f := NewRRFFusion()
	// "a" leads both lists (rank 1 in each), "b" trails both (rank 2 in
	// each): their RRF scores differ, so no tie-break is even reached.
	bm25 := createBM25Results([]string{"a", "b"}, []float64{5, 1})
	vec := createVecResults([]string{"a", "b"}, []float32{0, 0})
	results := f.Fuse(bm25, vec)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "b", results[1].ChunkID)
}

func TestRRFFusion_TieBreaking_DenseAppearanceBeforeLexicographicID(t *testing.T) {
	f := NewRRFFusion()
	// "z" in BM25 only at rank 1, "a" in vector only at rank 1: equal RRF
	// score. Dense-list appearance decides the tie before ChunkID does, and
	// here it happens to agree with lexicographic order ("a" wins either way).
	bm25 := createBM25Results([]string{"z"}, []float64{1})
	vec := createVecResults([]string{"a"}, []float32{1})
	results := f.Fuse(bm25, vec)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "z", results[1].ChunkID)
}

// TestRRFFusion_S4_TieBreakPrefersDenseOverBM25Only traces the spec's S4
// example: dense [A,B,C,D], BM25 [C,E,A], k=60. B (dense-only, rank 2) and E
// (BM25-only, rank 2) both score 1/62 — a pure RRF tie. The spec requires B
// before E since B appears in R_dense and E never does, regardless of E's
// nonzero BM25 score.
func TestRRFFusion_S4_TieBreakPrefersDenseOverBM25Only(t *testing.T) {
	f := NewRRFFusionWithK(60)
	bm25 := createBM25Results([]string{"C", "E", "A"}, []float64{9, 8, 7})
	vec := createVecResults([]string{"A", "B", "C", "D"}, []float32{0.9, 0.8, 0.7, 0.6})

	results := f.Fuse(bm25, vec)
	byID := make(map[string]*FusedResult, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}

	require.InDelta(t, byID["B"].RRFScore, byID["E"].RRFScore, 1e-12)

	var posB, posE int
	for i, r := range results {
		switch r.ChunkID {
		case "B":
			posB = i
		case "E":
			posE = i
		}
	}
	assert.Less(t, posB, posE, "B (dense-only) must rank before E (BM25-only) on a pure RRF tie")
}

func TestRRFFusion_EmptyInputs(t *testing.T) {
	f := NewRRFFusion()
	results := f.Fuse(nil, nil)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRRFFusion_NotNormalized(t *testing.T) {
	f := NewRRFFusion()
	bm25 := createBM25Results([]string{"a"}, []float64{1})
	vec := createVecResults([]string{"a"}, []float32{1})

	results := f.Fuse(bm25, vec)
	require.Len(t, results, 1)
	// Raw sum of two rank-1 contributions, never rescaled toward 1.0.
	assert.InDelta(t, 2.0/61, results[0].RRFScore, 1e-9)
}

func TestRRFFusion_NoSyntheticContributionForAbsentList(t *testing.T) {
	f := NewRRFFusion()
	bm25 := createBM25Results([]string{"a", "b"}, []float64{2, 1})

	results := f.Fuse(bm25, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Zero(t, r.VecRank)
		assert.Zero(t, r.VecScore)
	}
}

func TestRRFFusion_Deterministic(t *testing.T) {
	f := NewRRFFusion()
	bm25 := createBM25Results([]string{"a", "b", "c"}, []float64{3, 2, 1})
	vec := createVecResults([]string{"c", "a", "b"}, []float32{0.9, 0.8, 0.7})

	first := f.Fuse(bm25, vec)
	second := f.Fuse(bm25, vec)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
		assert.InDelta(t, first[i].RRFScore, second[i].RRFScore, 1e-12)
	}
}

func TestRRFFusion_CustomK(t *testing.T) {
	f := NewRRFFusionWithK(10)
	bm25 := createBM25Results([]string{"a"}, []float64{1})
	results := f.Fuse(bm25, nil)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0/11, results[0].RRFScore, 1e-9)
}

func TestRRFFusion_CustomK_NonPositiveDefaultsTo60(t *testing.T) {
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(0).K)
	assert.Equal(t, DefaultRRFConstant, NewRRFFusionWithK(-5).K)
}

func TestRRFFusion_PreservesMatchedTerms(t *testing.T) {
	f := NewRRFFusion()
	bm25 := []*store.BM25Result{{DocID: "a", Score: 1, MatchedTerms: []string{"foo", "bar"}}}

	results := f.Fuse(bm25, nil)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"foo", "bar"}, results[0].MatchedTerms)
}

func TestRRFFusion_Compare_AllTieBreakingBranches(t *testing.T) {
	f := NewRRFFusion()

	higherRRF := &FusedResult{ChunkID: "a", RRFScore: 0.5}
	lowerRRF := &FusedResult{ChunkID: "b", RRFScore: 0.1}
	assert.True(t, f.compare(higherRRF, lowerRRF))
	assert.False(t, f.compare(lowerRRF, higherRRF))

	// Equal RRF: earlier appearance in R_dense wins, regardless of BM25Score.
	inDense := &FusedResult{ChunkID: "a", RRFScore: 0.5, VecRank: 2, BM25Score: 1}
	notInDense := &FusedResult{ChunkID: "b", RRFScore: 0.5, BM25Score: 99}
	assert.True(t, f.compare(inDense, notInDense))
	assert.False(t, f.compare(notInDense, inDense))

	// Equal RRF, neither in R_dense: earlier appearance in R_bm25 wins.
	earlierBM25 := &FusedResult{ChunkID: "a", RRFScore: 0.5, BM25Rank: 1}
	laterBM25 := &FusedResult{ChunkID: "b", RRFScore: 0.5, BM25Rank: 2}
	assert.True(t, f.compare(earlierBM25, laterBM25))
	assert.False(t, f.compare(laterBM25, earlierBM25))

	// Equal RRF, absent from both lists (only reachable via direct compare()
	// calls, not through Fuse): falls back to ChunkID for total determinism.
	first := &FusedResult{ChunkID: "a", RRFScore: 0.5}
	second := &FusedResult{ChunkID: "b", RRFScore: 0.5}
	assert.True(t, f.compare(first, second))
	assert.False(t, f.compare(second, first))
}
