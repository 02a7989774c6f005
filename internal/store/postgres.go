package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = sql.ErrNoRows

type PostgresStore struct {
	db    *sql.DB
	types *pgtype.Map
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, types: pgtype.NewMap()}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// textArray scans a TEXT[] column.
func (s *PostgresStore) textArray(dst *[]string) sql.Scanner {
	return s.types.SQLScanner(dst)
}

const profileColumns = `id, COALESCE(username, ''), full_name, avatar_url, role, interests, banned, created_at, hidden_articles, followed_users`

func (s *PostgresStore) scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Username, &p.FullName, &p.AvatarURL, &p.Role, s.textArray(&p.Interests), &p.Banned, &p.CreatedAt,
		s.textArray(&p.HiddenArticles), s.textArray(&p.FollowedUsers))
	p.Interests = nonNil(p.Interests)
	p.HiddenArticles = nonNil(p.HiddenArticles)
	p.FollowedUsers = nonNil(p.FollowedUsers)
	return p, err
}

// EnsureProfile returns the profile for an identity, creating it on first
// sight with the name the identity provider supplied.
func (s *PostgresStore) EnsureProfile(ctx context.Context, id, fullName, role string) (Profile, error) {
	if role == "" {
		role = "author"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, id, fullName, role)
	if err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return s.GetProfile(ctx, id)
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	p, err := s.scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id))
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetProfileByUsername(ctx context.Context, username string) (Profile, error) {
	p, err := s.scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE LOWER(username)=LOWER($1)`, username))
	if err != nil {
		return Profile{}, fmt.Errorf("get profile by username: %w", err)
	}
	return p, nil
}

// UsernameAvailable reports whether nobody other than exceptID holds the
// username.
func (s *PostgresStore) UsernameAvailable(ctx context.Context, username, exceptID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM profiles WHERE LOWER(username)=LOWER($1) AND id <> $2)
	`, username, exceptID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return !taken, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, p Profile) error {
	var username any
	if strings.TrimSpace(p.Username) != "" {
		username = p.Username
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET username=$2, full_name=$3, avatar_url=$4, interests=$5
		WHERE id=$1
	`, p.ID, username, p.FullName, p.AvatarURL, nonNil(p.Interests))
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return expectRow(res, "update profile")
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := make([]Profile, 0)
	for rows.Next() {
		p, err := s.scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetBanned(ctx context.Context, id string, banned bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET banned=$2 WHERE id=$1`, id, banned)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return expectRow(res, "set banned")
}

func (s *PostgresStore) SetRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET role=$2 WHERE id=$1`, id, role)
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return expectRow(res, "set role")
}

// DeleteProfile removes a profile; articles and notifications cascade.
func (s *PostgresStore) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return expectRow(res, "delete profile")
}

const articleColumns = `id, title, content, status, user_id, author, image_url, tags, co_authors, views, created_at, updated_at`

func (s *PostgresStore) scanArticle(row interface{ Scan(...any) error }) (Article, error) {
	var a Article
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Status, &a.UserID, &a.Author, &a.ImageURL,
		s.textArray(&a.Tags), s.textArray(&a.CoAuthors), &a.Views, &a.CreatedAt, &a.UpdatedAt)
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.CoAuthors == nil {
		a.CoAuthors = []string{}
	}
	return a, err
}

func (s *PostgresStore) queryArticles(ctx context.Context, what, query string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	items := make([]Article, 0)
	for rows.Next() {
		a, err := s.scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateArticle(ctx context.Context, a Article) (Article, error) {
	created, err := s.scanArticle(s.db.QueryRowContext(ctx, `
		INSERT INTO articles (id, title, content, status, user_id, author, image_url, tags, co_authors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+articleColumns,
		a.ID, a.Title, a.Content, a.Status, a.UserID, a.Author, a.ImageURL, nonNil(a.Tags), nonNil(a.CoAuthors)))
	if err != nil {
		return Article{}, fmt.Errorf("create article: %w", err)
	}
	return created, nil
}

// UpdateArticle rewrites the editable fields. Owner and view count are left
// alone.
func (s *PostgresStore) UpdateArticle(ctx context.Context, a Article) (Article, error) {
	updated, err := s.scanArticle(s.db.QueryRowContext(ctx, `
		UPDATE articles
		SET title=$2, content=$3, status=$4, image_url=$5, tags=$6, co_authors=$7, updated_at=NOW()
		WHERE id=$1
		RETURNING `+articleColumns,
		a.ID, a.Title, a.Content, a.Status, a.ImageURL, nonNil(a.Tags), nonNil(a.CoAuthors)))
	if err != nil {
		return Article{}, fmt.Errorf("update article: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) GetArticle(ctx context.Context, id string) (Article, error) {
	a, err := s.scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, id))
	if err != nil {
		return Article{}, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListPublished(ctx context.Context, limit, offset int) ([]Article, error) {
	return s.queryArticles(ctx, "list published articles", `
		SELECT `+articleColumns+`
		FROM articles
		WHERE status='published'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, clampLimit(limit, 50), max(offset, 0))
}

// ListByUser returns everything a user owns or co-authored, newest first.
// Co-author names match case-insensitively.
func (s *PostgresStore) ListByUser(ctx context.Context, userID, username string) ([]Article, error) {
	return s.queryArticles(ctx, "list user articles", `
		SELECT `+articleColumns+`
		FROM articles
		WHERE user_id=$1 OR ($2 <> '' AND EXISTS (SELECT 1 FROM unnest(co_authors) c WHERE lower(c) = lower($2)))
		ORDER BY created_at DESC
	`, userID, username)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Article, error) {
	return s.queryArticles(ctx, "list all articles", `SELECT `+articleColumns+` FROM articles ORDER BY created_at DESC`)
}

func (s *PostgresStore) SetArticleStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("set article status: %w", err)
	}
	return expectRow(res, "set article status")
}

func (s *PostgresStore) DeleteArticle(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return expectRow(res, "delete article")
}

// IncrementViews bumps the counter in a single statement so concurrent
// readers never lose a view.
func (s *PostgresStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	err := s.db.QueryRowContext(ctx, `UPDATE articles SET views = views + 1 WHERE id=$1 RETURNING views`, id).Scan(&views)
	if err != nil {
		return 0, fmt.Errorf("increment views: %w", err)
	}
	return views, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			COUNT(*),
			COUNT(*) FILTER (WHERE status='published'),
			COUNT(*) FILTER (WHERE status='draft'),
			COALESCE(SUM(views), 0)
		FROM articles
	`).Scan(&stats.Users, &stats.Articles, &stats.Published, &stats.Drafts, &stats.TotalViews)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 || limit > 200 {
		return fallback
	}
	return limit
}

// IsNotFound reports whether err means a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
