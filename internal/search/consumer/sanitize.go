package consumer

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML returns the visible text of an HTML fragment with entities
// decoded and whitespace collapsed. Script and style bodies are dropped.
// Inline markup is removed without a trace so "Hel<b>lo</b>" stays one word;
// block elements and line breaks separate the text on either side.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	var buf strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(buf.String()), " ")
		case html.TextToken:
			if skip == 0 {
				buf.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawText(name) {
				skip++
			}
			separate(&buf, name)
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawText(name) && skip > 0 {
				skip--
			}
			separate(&buf, name)
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			separate(&buf, name)
		}
	}
}

func isRawText(tag []byte) bool {
	switch string(tag) {
	case "script", "style":
		return true
	}
	return false
}

// separate writes a word boundary for elements that break the text flow.
func separate(buf *strings.Builder, tag []byte) {
	if isBlock(tag) {
		buf.WriteByte(' ')
	}
}

func isBlock(tag []byte) bool {
	switch string(tag) {
	case "address", "article", "aside", "blockquote", "br", "dd", "div", "dl",
		"dt", "figcaption", "figure", "footer", "h1", "h2", "h3", "h4", "h5",
		"h6", "header", "hr", "li", "main", "nav", "ol", "p", "pre", "section",
		"table", "tbody", "td", "tfoot", "th", "thead", "tr", "ul":
		return true
	}
	return false
}
