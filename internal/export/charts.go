package export

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"kgr/api/internal/markup"
)

// FlattenForPrint rewrites interactive parts of rendered article HTML into
// static equivalents: chart placeholders become data tables and embedded
// YouTube players become plain links.
func FlattenForPrint(fragment string) (string, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	flatten(body)

	var b strings.Builder
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func flatten(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if replacement := printable(c); replacement != nil {
			n.InsertBefore(replacement, c)
			n.RemoveChild(c)
		} else {
			flatten(c)
		}
		c = next
	}
}

func printable(n *html.Node) *html.Node {
	if n.Type != html.ElementNode {
		return nil
	}
	switch n.DataAtom {
	case atom.Div:
		if !hasClass(n, "chart-wrapper") {
			return nil
		}
		if canvas := findChart(n); canvas != nil {
			return chartTable(markup.ParseGraphConfig(attr(canvas, "data-config")))
		}
	case atom.Canvas:
		if hasClass(n, "article-graph") {
			return chartTable(markup.ParseGraphConfig(attr(n, "data-config")))
		}
	case atom.Iframe:
		if id, ok := markup.YouTubeID(attr(n, "src")); ok {
			link := element(atom.A, [][2]string{{"href", markup.WatchURL(id)}}, text(markup.WatchURL(id)))
			return element(atom.P, nil, text("Video: "), link)
		}
	}
	return nil
}

func chartTable(cfg markup.GraphConfig) *html.Node {
	labels := cfg.LabelList()
	values := cfg.Values()
	rows := max(len(labels), len(values))

	tbody := element(atom.Tbody, nil)
	for i := 0; i < rows; i++ {
		label, value := "", ""
		if i < len(labels) {
			label = labels[i]
		}
		if i < len(values) {
			value = formatValue(values[i])
		}
		tbody.AppendChild(element(atom.Tr, nil,
			element(atom.Td, nil, text(label)),
			element(atom.Td, nil, text(value)),
		))
	}

	table := element(atom.Table, nil,
		element(atom.Caption, nil, text(cfg.Title+" ("+cfg.Type+" chart)")),
		element(atom.Thead, nil, element(atom.Tr, nil,
			element(atom.Th, nil, text("Label")),
			element(atom.Th, nil, text("Value")),
		)),
		tbody,
	)
	return element(atom.Figure, [][2]string{{"class", "chart-table"}}, table)
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func findChart(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Canvas && hasClass(c, "article-graph") {
			return c
		}
		if found := findChart(c); found != nil {
			return found
		}
	}
	return nil
}

func element(a atom.Atom, attrs [][2]string, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	for _, kv := range attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[0], Val: kv[1]})
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
