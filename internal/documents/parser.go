package documents

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Page is the extracted text of one document page.
type Page struct {
	Number int
	Text   string
}

// ParsedDocument contains the extracted pages of a document.
type ParsedDocument struct {
	Pages []Page
}

// Text joins all page text.
func (d *ParsedDocument) Text() string {
	parts := make([]string, 0, len(d.Pages))
	for _, p := range d.Pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Parser extracts text from PDF and EPUB files using go-fitz.
type Parser struct{}

// NewParser creates a document parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts per-page text from the file. The progress callback, when
// non-nil, receives the percentage of pages processed.
func (p *Parser) Parse(filePath string, progress func(pct int)) (*ParsedDocument, error) {
	doc, err := fitz.New(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	parsed := &ParsedDocument{}
	total := doc.NumPage()
	for i := 0; i < total; i++ {
		text, err := doc.Text(i)
		if err == nil && strings.TrimSpace(text) != "" {
			parsed.Pages = append(parsed.Pages, Page{Number: i + 1, Text: text})
		}
		if progress != nil {
			progress((i + 1) * 100 / total)
		}
	}
	return parsed, nil
}
