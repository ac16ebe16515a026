package extract

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/hyperjump/benkyo/internal/models"
)

// odfContentPath holds the body of every OpenDocument package.
const odfContentPath = "content.xml"

var (
	drawPage   = regexp.MustCompile(`(?s)<draw:page(?:\s[^>]*)?>(.*?)</draw:page>`)
	odsTable   = regexp.MustCompile(`(?s)<table:table(?:\s[^>]*[^/])?>(.*?)</table:table>`)
	odsRow     = regexp.MustCompile(`(?s)<table:table-row(?:\s[^>]*[^/])?>(.*?)</table:table-row>`)
	odsCell    = regexp.MustCompile(`(?s)<table:table-cell[^>]*/>|<table:table-cell(?:\s[^>]*)?>(.*?)</table:table-cell>`)
	odfPara    = regexp.MustCompile(`(?s)<text:(?:p|h)(?:\s[^>]*[^/])?>(.*?)</text:(?:p|h)>`)
	anyTag     = regexp.MustCompile(`<[^>]+>`)
	lineBreaks = strings.NewReplacer("<text:line-break/>", " ", "<text:tab/>", " ", "<text:s/>", " ")
)

func readODFContent(content []byte, format string) ([]byte, error) {
	zr, err := openZip(content, format)
	if err != nil {
		return nil, err
	}
	f := findZipFile(zr, odfContentPath)
	if f == nil {
		return nil, fmt.Errorf("extract %s: %s not found", format, odfContentPath)
	}
	return readZipFile(f)
}

// odfParagraphs returns the plain text of every paragraph and heading in xml.
func odfParagraphs(xml []byte) []string {
	var out []string
	for _, m := range odfPara.FindAllSubmatch(xml, -1) {
		text := anyTag.ReplaceAllString(lineBreaks.Replace(string(m[1])), "")
		text = strings.Join(strings.Fields(html.UnescapeString(text)), " ")
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// extractODP returns one page per presentation slide (draw:page).
func extractODP(content []byte) ([]models.Page, error) {
	xml, err := readODFContent(content, "ODP")
	if err != nil {
		return nil, err
	}
	slides := drawPage.FindAllSubmatch(xml, -1)
	pages := make([]models.Page, len(slides))
	for i, s := range slides {
		pages[i] = models.Page{Number: i + 1, Text: strings.Join(odfParagraphs(s[1]), "\n")}
	}
	return pages, nil
}

// extractODS returns one page per sheet, laid out like XLSX sheets: cells tab
// separated, rows newline separated, empty rows dropped.
func extractODS(content []byte) ([]models.Page, error) {
	xml, err := readODFContent(content, "ODS")
	if err != nil {
		return nil, err
	}
	tables := odsTable.FindAllSubmatch(xml, -1)
	pages := make([]models.Page, len(tables))
	for i, t := range tables {
		var lines []string
		for _, row := range odsRow.FindAllSubmatch(t[1], -1) {
			var cells []string
			for _, cell := range odsCell.FindAllSubmatch(row[1], -1) {
				cells = append(cells, strings.Join(odfParagraphs(cell[1]), " "))
			}
			for len(cells) > 0 && cells[len(cells)-1] == "" {
				cells = cells[:len(cells)-1]
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, "\t"))
			}
		}
		pages[i] = models.Page{Number: i + 1, Text: strings.Join(lines, "\n")}
	}
	return pages, nil
}
