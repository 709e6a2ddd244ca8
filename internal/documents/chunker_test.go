package documents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextRespectsChunkSize(t *testing.T) {
	text := strings.Repeat("word ", 200)
	chunks := splitText(text, 100, 0)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100+len("word"))
	}
}

func TestSplitTextOverlapCarriesWords(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 50)
	chunks := splitText(text, 120, 50)
	require.Greater(t, len(chunks), 1)

	// Consecutive chunks share their boundary words: some suffix of the
	// first chunk is a prefix of the second.
	firstWords := strings.Fields(chunks[0])
	secondWords := strings.Fields(chunks[1])
	shared := 0
	for k := 1; k <= len(firstWords) && k <= len(secondWords); k++ {
		if equalWords(firstWords[len(firstWords)-k:], secondWords[:k]) {
			shared = k
		}
	}
	assert.Greater(t, shared, 0)
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, splitText("   ", 100, 10))
}

func TestSplitPagesKeepsPageNumbers(t *testing.T) {
	pages := []Page{
		{Number: 1, Text: strings.Repeat("one ", 60)},
		{Number: 2, Text: strings.Repeat("two ", 60)},
	}
	chunks := splitPages(pages, 100, 0)
	require.NotEmpty(t, chunks)

	seen := map[int]bool{}
	for _, c := range chunks {
		seen[c.PageNumber] = true
		assert.NotEmpty(t, c.Text)
	}
	assert.True(t, seen[1])
	assert.True(t, seen[2])
}
