package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/benkyo/internal/models"
)

// overlapWordChars is the assumed average word length used to turn an overlap in
// characters into a word count.
const overlapWordChars = 5

// Chunker splits page text into overlapping word windows.
type Chunker struct {
	maxChars     int
	overlapChars int
}

// NewChunker creates a chunker with the given fragment size and overlap, in characters.
func NewChunker(maxChars, overlapChars int) *Chunker {
	return &Chunker{
		maxChars:     maxChars,
		overlapChars: overlapChars,
	}
}

// Chunk splits text with the configured sizes. See Split.
func (c *Chunker) Chunk(text, source string, page int) []models.Fragment {
	return Split(text, source, page, c.maxChars, c.overlapChars)
}

// Split breaks text into fragments of at most maxChars characters. Words are
// accumulated while the running length (word lengths plus one separator per word)
// stays within maxChars. Each new fragment starts with the last
// max(1, overlapChars/5) words of the previous one followed by the word that did
// not fit. A single word longer than maxChars becomes its own fragment.
// LocalIndex counts fragments from 0 within this call.
func Split(text, source string, page, maxChars, overlapChars int) []models.Fragment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	overlapWords := max(1, overlapChars/overlapWordChars)

	var fragments []models.Fragment
	emit := func(ws []string) {
		fragments = append(fragments, models.Fragment{
			Text:       strings.Join(ws, " "),
			Source:     source,
			Page:       page,
			LocalIndex: len(fragments),
		})
	}

	var current []string
	length := 0
	for _, word := range words {
		wordLen := utf8.RuneCountInString(word) + 1
		if length+wordLen > maxChars && len(current) > 0 {
			emit(current)
			seed := current[max(0, len(current)-overlapWords):]
			// The seed gives way to the bound: drop leading words until it fits with word.
			seedLen := windowLen(seed)
			for len(seed) > 0 && seedLen+wordLen > maxChars {
				seedLen -= utf8.RuneCountInString(seed[0]) + 1
				seed = seed[1:]
			}
			current = append(append(make([]string, 0, len(seed)+1), seed...), word)
			length = seedLen + wordLen
			continue
		}
		current = append(current, word)
		length += wordLen
	}
	if len(current) > 0 {
		emit(current)
	}
	return fragments
}

func windowLen(ws []string) int {
	n := 0
	for _, w := range ws {
		n += utf8.RuneCountInString(w) + 1
	}
	return n
}
