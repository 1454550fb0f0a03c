package scap

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlToPlain renders the XHTML markup allowed in XCCDF descriptions as
// plain text. Block-ish elements become line breaks.
func htmlToPlain(markup string) string {
	// the xhtml namespace prefix confuses the html tokenizer
	markup = strings.ReplaceAll(markup, "<html:", "<")
	markup = strings.ReplaceAll(markup, "</html:", "</")
	markup = strings.ReplaceAll(markup, "<xhtml:", "<")
	markup = strings.ReplaceAll(markup, "</xhtml:", "</")

	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + markup + "</div>"))
	if err != nil {
		return normalizeSpace(markup)
	}

	doc.Find("br, p, ul, ol, li, pre").BeforeHtml("\n")
	return normalizeSpace(doc.Text())
}

func normalizeSpace(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
