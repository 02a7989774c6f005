package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// PgFTS searches published articles with PostgreSQL full-text search.
type PgFTS struct {
	db    *sql.DB
	types *pgtype.Map
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db, types: pgtype.NewMap()}
}

// Healthy always returns true: without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool { return true }

func (p *PgFTS) Name() string { return "postgres" }

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "a.status = 'published' AND a.search @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if tag := strings.TrimSpace(q.Tag); tag != "" {
		where += " AND $2 = ANY(a.tags)"
		args = append(args, tag)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM articles a WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT a.id, a.title,
			ts_headline('english', a.content, plainto_tsquery('english', $1),
				'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30') AS snippet,
			a.author, a.tags
		FROM articles a
		WHERE %s
		ORDER BY ts_rank(a.search, plainto_tsquery('english', $1)) DESC, a.created_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Author, p.types.SQLScanner(&r.Tags)); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if r.Tags == nil {
			r.Tags = []string{}
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadPublished returns every published article for a full reindex.
func (p *PgFTS) LoadPublished(ctx context.Context) ([]ArticleRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, author, tags, extract(epoch FROM created_at)::bigint
		FROM articles
		WHERE status = 'published'
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	defer rows.Close()

	records := make([]ArticleRecord, 0)
	for rows.Next() {
		var r ArticleRecord
		if err := rows.Scan(&r.ID, &r.Title, &r.Content, &r.Author, p.types.SQLScanner(&r.Tags), &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return records, nil
}
