// Package search finds published articles. Meilisearch is the primary index
// and PostgreSQL full-text search answers whenever it is unavailable.
package search

import "context"

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Author  string   `json:"author"`
	Tags    []string `json:"tags"`
}

type Query struct {
	Text   string
	Tag    string
	Limit  int
	Offset int
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// ArticleRecord is what gets pushed into the index for one article.
type ArticleRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Author    string   `json:"author"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
}

// Backend can execute a full-text search.
type Backend interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
	Name() string
}

// Indexer can push articles into a search index.
type Indexer interface {
	IndexArticles(records []ArticleRecord) error
	DeleteArticle(id string) error
	Healthy() bool
}
