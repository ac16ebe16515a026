package extract

import (
	"archive/zip"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/benkyo/internal/models"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// wtTag matches <w:t>text</w:t> with any attributes.
var wtTag = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

// wpEnd marks paragraph boundaries.
var wpEnd = regexp.MustCompile(`</w:p>`)

// Override elements carry PartName and ContentType in either order.
var (
	partNameRe  = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)
)

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	f := findZipFile(zr, contentTypesPath)
	if f == nil {
		return ""
	}
	data, err := readZipFile(f)
	if err != nil {
		return ""
	}
	for _, re := range []*regexp.Regexp{partNameRe, partNameRe2} {
		if m := re.FindSubmatch(data); len(m) > 1 {
			return strings.TrimPrefix(string(m[1]), "/")
		}
	}
	return ""
}

// extractDOCX returns the document body as a single page, one line per paragraph.
// Text is taken from <w:t> runs of the main part named in [Content_Types].xml.
func extractDOCX(content []byte) ([]models.Page, error) {
	zr, err := openZip(content, "DOCX")
	if err != nil {
		return nil, err
	}
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}
	f := findZipFile(zr, docPath)
	if f == nil {
		return nil, fmt.Errorf("extract DOCX: %s not found", docPath)
	}
	docXML, err := readZipFile(f)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}

	var lines []string
	for _, para := range wpEnd.Split(string(docXML), -1) {
		if line := joinTextRuns(wtTag, []byte(para)); line != "" {
			lines = append(lines, line)
		}
	}
	return singlePage(strings.Join(lines, "\n")), nil
}
