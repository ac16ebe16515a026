package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput marks request and record validation failures.
var ErrInvalidInput = errors.New("invalid input")

// QueryRequest is a question asked against the knowledge base.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Validate trims the question and normalizes TopK.
// Returns an error if the question is empty; TopK <= 0 is replaced with defaultTopK
// and values above maxTopK are capped.
func (q *QueryRequest) Validate(defaultTopK, maxTopK int) error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidInput)
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}
