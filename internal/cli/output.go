// Package cli renders answers, knowledge base summaries and history for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// CitationLength is the number of characters of each source fragment shown in text output.
const CitationLength = 300

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteAnswer writes an answer and its sources.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n", answer.Answer)
	if len(answer.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\nSources (%d):\n", len(answer.Sources))
	for i, src := range answer.Sources {
		writeSource(w, i+1, src)
	}
	return nil
}

func writeSource(w io.Writer, n int, f models.Fragment) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%d] %s, page %d\n", n, f.Source, f.Page)
	fmt.Fprintf(w, "%s\n", utils.Truncate(f.Text, CitationLength))
}

// WriteInfo writes the fragment total and one line per source, sorted by name.
func WriteInfo(w io.Writer, info models.DocumentsInfo, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, info)
	}
	if info.TotalFragments == 0 {
		fmt.Fprintln(w, "Knowledge base is empty.")
		return nil
	}
	fmt.Fprintf(w, "Fragments: %d\nDocuments: %d\n\n", info.TotalFragments, len(info.Documents))
	sources := make([]string, 0, len(info.Documents))
	for s := range info.Documents {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(w, "  %-40s %6d\n", s, info.Documents[s])
	}
	return nil
}

// WriteHistory writes interactions, newest first.
func WriteHistory(w io.Writer, items []*models.Interaction, format OutputFormat) error {
	if format == OutputJSON {
		if items == nil {
			items = []*models.Interaction{}
		}
		return WriteJSON(w, items)
	}
	if len(items) == 0 {
		fmt.Fprintln(w, "No history.")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%s  %s\n", it.CreatedAt.Local().Format("2006-01-02 15:04:05"), it.ID)
		fmt.Fprintf(w, "Q: %s\n", it.Query)
		fmt.Fprintf(w, "A: %s\n", utils.Truncate(it.Answer, CitationLength))
		if len(it.Sources) > 0 {
			fmt.Fprintf(w, "   (%d sources)\n", len(it.Sources))
		}
	}
	return nil
}

// WriteIngestResult writes the outcome of one ingested document.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "Added %s: %d pages, %d fragments\n", res.Source, res.Pages, res.Fragments)
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
