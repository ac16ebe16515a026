package extract

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/hyperjump/benkyo/internal/models"
)

// slideName matches ppt/slides/slideN.xml and captures N.
var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// atTag matches <a:t>text</a:t> with any attributes.
var atTag = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)

// extractPPTX returns one page per slide, ordered numerically by slide number
// (slide10 after slide2).
func extractPPTX(content []byte) ([]models.Page, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return nil, err
	}
	type slide struct {
		number int
		text   string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideName.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide{number: n, text: joinTextRuns(atTag, data)})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	pages := make([]models.Page, len(slides))
	for i, s := range slides {
		pages[i] = models.Page{Number: i + 1, Text: s.text}
	}
	return pages, nil
}
