package search

import "fmt"

// ValidationError reports a precondition violation with enough structure for
// a caller to render a meaningful message: the offending field plus expected
// and actual values.
type ValidationError struct {
	Err      error
	Field    string
	Expected string
	Actual   any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: field %s: expected %s, got %v", e.Err, e.Field, e.Expected, e.Actual)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func validateWeights(vectorWeight, keywordWeight float64) error {
	sum := vectorWeight + keywordWeight
	if sum < 1-WeightTolerance || sum > 1+WeightTolerance {
		return &ValidationError{
			Err:      ErrInvalidWeights,
			Field:    "VectorWeight+KeywordWeight",
			Expected: "1.0",
			Actual:   sum,
		}
	}
	return nil
}
