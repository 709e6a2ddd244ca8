package search

import (
	"strings"
	"unicode"
)

// Combine blends a vector-similarity ranking with a keyword-match ranking
// using the given weights, which must sum to 1.0 within WeightTolerance.
// Every chunk present in either input appears exactly once in the output,
// scored vectorWeight*vectorScore + keywordWeight*keywordScore with a
// missing side counting as 0. The output is re-sorted with the standard
// comparator.
func Combine(vectorResults []Result, keywordHits []KeywordHit, vectorWeight, keywordWeight float64) ([]Result, error) {
	if err := validateWeights(vectorWeight, keywordWeight); err != nil {
		return nil, err
	}

	keywordScores := make(map[string]float64, len(keywordHits))
	for _, hit := range keywordHits {
		keywordScores[hit.ChunkID.String()] = hit.Score
	}

	merged := make([]Result, 0, len(vectorResults)+len(keywordHits))
	seen := make(map[string]struct{}, len(vectorResults))
	for _, r := range vectorResults {
		key := r.ChunkID.String()
		seen[key] = struct{}{}
		r.Similarity = vectorWeight*r.Similarity + keywordWeight*keywordScores[key]
		merged = append(merged, r)
	}

	// Keyword hits outside the vector leg still participate with a zero
	// vector score; only the score and id are known for those chunks.
	for _, hit := range keywordHits {
		if _, ok := seen[hit.ChunkID.String()]; ok {
			continue
		}
		merged = append(merged, Result{
			ChunkID:    hit.ChunkID,
			Similarity: keywordWeight * hit.Score,
		})
	}

	sortResults(merged)
	return merged, nil
}

// highlight wraps query terms found in content with ** markers and returns
// a short excerpt centred on the first match. Returns the leading excerpt
// when no term matches.
func highlight(content, query string) string {
	const window = 200

	terms := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	lower := strings.ToLower(content)

	first := -1
	for _, term := range terms {
		if len(term) < 2 {
			continue
		}
		if idx := strings.Index(lower, term); idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}

	start := 0
	if first > window/2 {
		start = first - window/2
	}
	end := start + window
	if end > len(content) {
		end = len(content)
	}
	excerpt := content[start:end]

	for _, term := range terms {
		if len(term) < 2 {
			continue
		}
		excerpt = markTerm(excerpt, term)
	}
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(content) {
		excerpt += "..."
	}
	return excerpt
}

// markTerm wraps case-insensitive occurrences of term with ** markers.
func markTerm(s, term string) string {
	var b strings.Builder
	lower := strings.ToLower(s)
	for {
		idx := strings.Index(lower, term)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:idx])
		b.WriteString("**")
		b.WriteString(s[idx : idx+len(term)])
		b.WriteString("**")
		s = s[idx+len(term):]
		lower = lower[idx+len(term):]
	}
}
