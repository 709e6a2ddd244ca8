package search

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorResult(score float64, createdAt time.Time) Result {
	return Result{
		ChunkID:    uuid.New(),
		DocumentID: uuid.New(),
		Similarity: score,
		CreatedAt:  createdAt,
	}
}

func TestCombineInvalidWeights(t *testing.T) {
	tests := []struct {
		name   string
		vw, kw float64
		ok     bool
	}{
		{name: "exact", vw: 0.7, kw: 0.3, ok: true},
		{name: "within tolerance", vw: 0.7, kw: 0.3 + 5e-7, ok: true},
		{name: "sum too high", vw: 0.7, kw: 0.4},
		{name: "sum too low", vw: 0.5, kw: 0.3},
		{name: "zero", vw: 0, kw: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Combine(nil, nil, tt.vw, tt.kw)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidWeights)
			}
		})
	}
}

func TestCombinePureVectorWeightPreservesRanking(t *testing.T) {
	now := time.Now()
	vec := []Result{
		vectorResult(0.9, now),
		vectorResult(0.7, now),
		vectorResult(0.5, now),
	}
	keyword := []KeywordHit{
		{ChunkID: vec[2].ChunkID, Score: 1.0},
		{ChunkID: uuid.New(), Score: 1.0},
	}

	combined, err := Combine(vec, keyword, 1.0, 0.0)
	require.NoError(t, err)

	// With keywordWeight 0, the vector ranking must survive unchanged and
	// keyword-only chunks score 0.
	require.Len(t, combined, 4)
	assert.Equal(t, vec[0].ChunkID, combined[0].ChunkID)
	assert.Equal(t, vec[1].ChunkID, combined[1].ChunkID)
	assert.Equal(t, vec[2].ChunkID, combined[2].ChunkID)
	assert.Equal(t, 0.0, combined[3].Similarity)
}

func TestCombineMergesSharedChunkOnce(t *testing.T) {
	now := time.Now()
	shared := vectorResult(0.6, now)
	keyword := []KeywordHit{{ChunkID: shared.ChunkID, Score: 0.8}}

	combined, err := Combine([]Result{shared}, keyword, 0.5, 0.5)
	require.NoError(t, err)
	require.Len(t, combined, 1)
	assert.Equal(t, shared.ChunkID, combined[0].ChunkID)
	assert.InDelta(t, 0.5*0.6+0.5*0.8, combined[0].Similarity, 1e-9)
}

func TestCombineMissingSideScoresZero(t *testing.T) {
	now := time.Now()
	vectorOnly := vectorResult(0.8, now)
	keywordOnly := KeywordHit{ChunkID: uuid.New(), Score: 0.9}

	combined, err := Combine([]Result{vectorOnly}, []KeywordHit{keywordOnly}, 0.6, 0.4)
	require.NoError(t, err)
	require.Len(t, combined, 2)

	byID := map[uuid.UUID]float64{}
	for _, r := range combined {
		byID[r.ChunkID] = r.Similarity
	}
	assert.InDelta(t, 0.6*0.8, byID[vectorOnly.ChunkID], 1e-9)
	assert.InDelta(t, 0.4*0.9, byID[keywordOnly.ChunkID], 1e-9)
}

func TestCombineTieBreakByCreationOrder(t *testing.T) {
	base := time.Now()
	older := vectorResult(0.5, base)
	newer := vectorResult(0.5, base.Add(time.Hour))

	combined, err := Combine([]Result{newer, older}, nil, 1.0, 0.0)
	require.NoError(t, err)
	require.Len(t, combined, 2)
	assert.Equal(t, older.ChunkID, combined[0].ChunkID)
	assert.Equal(t, newer.ChunkID, combined[1].ChunkID)
}

func TestHighlightMarksTerms(t *testing.T) {
	got := highlight("Photosynthesis converts light energy into chemical energy.", "light energy")
	assert.Contains(t, got, "**light**")
	assert.Contains(t, got, "**energy**")
}

func TestHighlightNoMatchReturnsLeadingExcerpt(t *testing.T) {
	content := "Short passage without the term."
	got := highlight(content, "zebra")
	assert.Equal(t, content, got)
}
