package markup

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const wordsPerMinute = 200

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	ID    string `json:"id"`
}

// Outline lists the h2 and h3 headings of a rendered article in document
// order. Headings without an id get "section-N" based on their position.
func Outline(fragment string) []Heading {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return nil
	}
	var headings []Heading
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.H2 || n.DataAtom == atom.H3) {
			level := 2
			if n.DataAtom == atom.H3 {
				level = 3
			}
			id := attr(n, "id")
			if id == "" {
				id = "section-" + strconv.Itoa(len(headings))
			}
			headings = append(headings, Heading{
				Level: level,
				Text:  strings.TrimSpace(textContent(n)),
				ID:    id,
			})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	for _, n := range nodes {
		visit(n)
	}
	return headings
}

// ReadingTime estimates minutes to read source text at 200 words a minute.
func ReadingTime(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}
