// Package language detects the language of query text.
package language

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// DefaultMinConfidence is the confidence floor below which a detection is
// reported as unknown.
const DefaultMinConfidence = 0.5

// Detector identifies the language of a piece of text.
type Detector struct {
	// MinConfidence is the threshold under which Detect reports unknown.
	MinConfidence float64
}

// NewDetector creates a detector with the default confidence threshold.
func NewDetector() *Detector {
	return &Detector{MinConfidence: DefaultMinConfidence}
}

// Detect returns the ISO 639-1 code of the detected language and the
// detection confidence (0.0-1.0). When confidence falls below MinConfidence
// the code is empty; callers must not scope search by an unknown language.
func (d *Detector) Detect(text string) (string, float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		code = whatlanggo.LangToString(info.Lang)
	}
	if info.Confidence < d.MinConfidence {
		return "", info.Confidence
	}
	return code, info.Confidence
}
