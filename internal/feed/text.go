package feed

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"kgr/api/internal/markup"
)

var textRenderer = markup.NewRenderer()

// PlainText renders article source and keeps only the visible text, so chart
// blocks, embeds and Markdown syntax never leak into previews.
func PlainText(source string) string {
	z := html.NewTokenizer(strings.NewReader(textRenderer.Render(source)))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped(a) {
				skip++
			}
			if breaksText(a) {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped(a) && skip > 0 {
				skip--
			}
			if breaksText(a) {
				b.WriteByte(' ')
			}
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func breaksText(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Br, atom.Div, atom.Li, atom.Blockquote, atom.Pre, atom.Tr, atom.Td, atom.Th,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Img, atom.Hr:
		return true
	}
	return false
}

func skipped(a atom.Atom) bool {
	return a == atom.Script || a == atom.Style || a == atom.Iframe
}

// Excerpt returns at most n runes of the article's plain text, followed by an
// ellipsis when it was cut.
func Excerpt(source string, n int) string {
	return truncate(PlainText(source), n)
}

func truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "..."
}
