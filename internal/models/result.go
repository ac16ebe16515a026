package models

import "time"

// Answer is the grounded response to a question with the fragments it was built from,
// in ascending distance order.
type Answer struct {
	Answer  string     `json:"answer"`
	Sources []Fragment `json:"sources"`
}

// DocumentsInfo reports the knowledge base size and the fragment count per source document.
type DocumentsInfo struct {
	TotalFragments int            `json:"total_fragments"`
	Documents      map[string]int `json:"documents"`
}

// Interaction is one question/answer exchange recorded in a session's history.
type Interaction struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Sources   []Fragment `json:"sources"`
	CreatedAt time.Time  `json:"created_at"`
}

// IngestResult summarizes one ingested document.
type IngestResult struct {
	Source    string      `json:"source"`
	Pages     int         `json:"pages"`
	Fragments int         `json:"fragments"`
	PerPage   map[int]int `json:"per_page"`
}
