// Package vector validates embedding vectors, converts them to and from the
// textual wire form used by the vector column type, and scores similarity.
package vector

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidEmbedding indicates a vector failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrDimensionMismatch indicates two vectors have different lengths.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Validator checks embedding vectors against the configured dimension.
type Validator struct {
	Dimension int
}

// NewValidator creates a validator for the given embedding dimension.
func NewValidator(dimension int) *Validator {
	return &Validator{Dimension: dimension}
}

// Validate returns nil iff the vector has exactly the configured dimension
// and every element is a finite number. Callers must reject invalid vectors
// rather than truncate or pad them.
func (v *Validator) Validate(vec []float32) error {
	if len(vec) != v.Dimension {
		return fmt.Errorf("%w: expected dimension %d, got %d", ErrInvalidEmbedding, v.Dimension, len(vec))
	}
	for i, x := range vec {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// Encode converts a vector into the bracketed comma-separated textual form
// used by the storage layer's vector column type, e.g. "[1,0,0.5]".
func Encode(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Decode parses the textual form produced by Encode back into a vector.
// Decode(Encode(v)) == v for all valid v.
func Decode(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: malformed vector text %q", ErrInvalidEmbedding, s)
	}
	body := s[1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return []float32{}, nil
	}
	parts := strings.Split(body, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %v", ErrInvalidEmbedding, i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

// CosineSimilarity computes dot(a,b) / (||a|| * ||b||). It returns
// ErrDimensionMismatch when the vectors have different lengths and exactly
// 0.0 when either vector has zero norm. Accumulation is done in float64 so
// the result is reproducible for identical inputs.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
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
		return 0, nil
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}
