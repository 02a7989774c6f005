package markup

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// ToMarkdown converts an edited HTML fragment back into article source text.
// It walks the parsed tree depth first and dispatches on the tag name.
// Markup it has no rule for is dropped while its text is kept, so the result
// is always usable even when it is lossy (chart placeholders for example
// carry no text and disappear).
func ToMarkdown(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var w mdWalker
	var b strings.Builder
	for _, n := range nodes {
		b.WriteString(w.node(n))
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(b.String(), "\n\n"))
}

type mdWalker struct {
	// afterBreak is set by <br> so the newline the renderer prints after it
	// is not counted twice.
	afterBreak bool
}

func (w *mdWalker) children(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(w.node(c))
	}
	return b.String()
}

func (w *mdWalker) node(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return w.text(n)
	case html.ElementNode:
		return w.element(n)
	case html.DocumentNode:
		return w.children(n)
	default:
		return ""
	}
}

func (w *mdWalker) text(n *html.Node) string {
	text := strings.ReplaceAll(n.Data, "\u00a0", " ")
	if w.afterBreak {
		text = strings.TrimPrefix(text, "\n")
	}
	w.afterBreak = false
	if strings.TrimSpace(text) != "" {
		return text
	}
	switch {
	case text == "", n.Parent != nil && isContainer(n.Parent.DataAtom):
		return ""
	case strings.Contains(text, "\n"):
		return "\n"
	default:
		return text
	}
}

func (w *mdWalker) element(n *html.Node) string {
	switch n.DataAtom {
	case atom.Strong, atom.B:
		return wrapInline(w.children(n), "**")
	case atom.Em, atom.I:
		return wrapInline(w.children(n), "*")
	case atom.H1:
		return heading(1, w.children(n))
	case atom.H2:
		return heading(2, w.children(n))
	case atom.H3:
		return heading(3, w.children(n))
	case atom.Blockquote:
		return quote(w.children(n))
	case atom.Ul:
		return w.list(n, false)
	case atom.Ol:
		return w.list(n, true)
	case atom.Li:
		return listItem("* ", w.children(n))
	case atom.P:
		return w.children(n) + "\n\n"
	case atom.A:
		return "[" + w.children(n) + "](" + attr(n, "href") + ")"
	case atom.Img:
		return "![" + attr(n, "alt") + "](" + attr(n, "src") + ")"
	case atom.Br:
		w.afterBreak = true
		return "\n"
	case atom.Iframe:
		if id, ok := embedID(attr(n, "src")); ok {
			return WatchURL(id)
		}
		return ""
	case atom.Code:
		return "`" + textContent(n) + "`"
	case atom.Pre:
		return fence(n)
	case atom.Script, atom.Style, atom.Template:
		return ""
	}
	inner := w.children(n)
	if isBlock(n.DataAtom) {
		return inner + "\n"
	}
	return inner
}

func (w *mdWalker) list(n *html.Node, ordered bool) string {
	var b strings.Builder
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.DataAtom != atom.Li {
			b.WriteString(w.node(c))
			continue
		}
		count++
		marker := "* "
		if ordered {
			marker = strconv.Itoa(count) + ". "
		}
		b.WriteString(listItem(marker, w.itemBody(c)))
	}
	return "\n" + b.String() + "\n"
}

// itemBody renders a list item's children, placing a nested list directly on
// the line after the item text so the list stays tight.
func (w *mdWalker) itemBody(li *html.Node) string {
	var b strings.Builder
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Ul || c.DataAtom == atom.Ol) {
			text := strings.TrimRight(b.String(), " \n")
			b.Reset()
			b.WriteString(text)
			b.WriteString("\n")
			b.WriteString(strings.Trim(w.list(c, c.DataAtom == atom.Ol), "\n"))
			b.WriteString("\n")
			continue
		}
		b.WriteString(w.node(c))
	}
	return b.String()
}

// listItem puts the marker on the first line and indents continuation lines
// (nested lists, later paragraphs) under it.
func listItem(marker, body string) string {
	body = strings.TrimSpace(blankRuns.ReplaceAllString(body, "\n\n"))
	indent := strings.Repeat(" ", len(marker))
	var b strings.Builder
	for i, line := range strings.Split(body, "\n") {
		switch {
		case i == 0:
			b.WriteString(marker + line)
		case line != "":
			b.WriteString(indent + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func heading(level int, inner string) string {
	return strings.Repeat("#", level) + " " + strings.TrimSpace(inner) + "\n"
}

func quote(inner string) string {
	inner = strings.TrimSpace(blankRuns.ReplaceAllString(inner, "\n\n"))
	if inner == "" {
		return ""
	}
	lines := strings.Split(inner, "\n")
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n") + "\n\n"
}

// wrapInline keeps surrounding spaces outside the emphasis markers.
func wrapInline(inner, marker string) string {
	trimmed := strings.TrimSpace(inner)
	if trimmed == "" {
		return inner
	}
	lead := inner[:strings.Index(inner, trimmed)]
	trail := inner[len(lead)+len(trimmed):]
	return lead + marker + trimmed + marker + trail
}

func fence(n *html.Node) string {
	lang := ""
	if code := firstChildElement(n, atom.Code); code != nil {
		lang = strings.TrimPrefix(attr(code, "class"), "language-")
	}
	body := strings.TrimSuffix(textContent(n), "\n")
	return "```" + lang + "\n" + body + "\n```\n\n"
}

func firstChildElement(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isContainer(a atom.Atom) bool {
	switch a {
	case atom.Ul, atom.Ol, atom.Table, atom.Thead, atom.Tbody, atom.Tfoot, atom.Tr:
		return true
	}
	return false
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Figure,
		atom.H4, atom.H5, atom.H6, atom.Table, atom.Tr:
		return true
	}
	return false
}
