package feeds

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// CleanText strips markup and control characters from feed text and collapses whitespace.
// Entities are decoded, so the result is plain text that still needs escaping for HTML output.
func CleanText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	text := s
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style, noscript").Remove()
			text = doc.Text()
		}
	}

	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, text)

	return strings.Join(strings.Fields(text), " ")
}
