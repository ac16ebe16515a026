// Package models defines core data structures for fragments, answers, and conversation history.
package models

import "fmt"

// Fragment is a bounded, source-attributed slice of page text used as the retrieval unit.
// LocalIndex is the position among fragments produced by one splitting call; it is not
// globally unique. Global addressing is by storage position.
type Fragment struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	Page       int    `json:"page"`
	LocalIndex int    `json:"local_index"`
}

// Validate reports whether the fragment carries every required field.
func (f *Fragment) Validate() error {
	if f.Text == "" {
		return fmt.Errorf("%w: fragment text is empty", ErrInvalidInput)
	}
	if f.Source == "" {
		return fmt.Errorf("%w: fragment source is empty", ErrInvalidInput)
	}
	if f.Page < 1 {
		return fmt.Errorf("%w: fragment page must be positive, got %d", ErrInvalidInput, f.Page)
	}
	if f.LocalIndex < 0 {
		return fmt.Errorf("%w: fragment local_index must be non-negative, got %d", ErrInvalidInput, f.LocalIndex)
	}
	return nil
}

// Page is the extracted text of one page of a source document. Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}
