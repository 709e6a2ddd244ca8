package documents

import "strings"

// TextChunk is one chunk of extracted text with its source page.
type TextChunk struct {
	Text       string
	PageNumber int
}

// splitPages splits each page's text into word-window chunks with overlap.
// chunkSize is a character budget; overlap a percentage of carried-over
// words between consecutive chunks.
func splitPages(pages []Page, chunkSize, overlap int) []TextChunk {
	var chunks []TextChunk
	for _, page := range pages {
		for _, text := range splitText(page.Text, chunkSize, overlap) {
			chunks = append(chunks, TextChunk{Text: text, PageNumber: page.Number})
		}
	}
	return chunks
}

// splitText splits text into chunks with overlap.
func splitText(text string, chunkSize, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	currentChunk := []string{}
	currentSize := 0

	for _, word := range words {
		wordSize := len(word) + 1 // +1 for space
		if currentSize+wordSize > chunkSize && len(currentChunk) > 0 {
			chunks = append(chunks, strings.Join(currentChunk, " "))

			// Keep overlap words for next chunk
			overlapWords := len(currentChunk) * overlap / 100
			if overlapWords > 0 && overlapWords < len(currentChunk) {
				currentChunk = currentChunk[len(currentChunk)-overlapWords:]
				currentSize = len(strings.Join(currentChunk, " "))
			} else {
				currentChunk = []string{}
				currentSize = 0
			}
		}
		currentChunk = append(currentChunk, word)
		currentSize += wordSize
	}

	if len(currentChunk) > 0 {
		chunks = append(chunks, strings.Join(currentChunk, " "))
	}

	return chunks
}
