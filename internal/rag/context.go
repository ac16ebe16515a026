package rag

import (
	"fmt"
	"strings"

	"github.com/hyperjump/benkyo/internal/models"
)

// BuildContext renders retrieved fragments as the grounding block given to the
// generator. Sections are numbered from 1 in retrieval order.
func BuildContext(fragments []models.Fragment) string {
	sections := make([]string, len(fragments))
	for i, f := range fragments {
		sections[i] = fmt.Sprintf("[Source %d: %s, Page %d]\n%s\n", i+1, f.Source, f.Page, f.Text)
	}
	return strings.Join(sections, "\n")
}
