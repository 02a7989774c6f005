package store

import (
	"context"
	"fmt"
)

const (
	columnHiddenArticles = "hidden_articles"
	columnFollowedUsers  = "followed_users"
)

// HideArticle keeps articleID out of the user's listings. It reports false
// when the article was already hidden.
func (s *PostgresStore) HideArticle(ctx context.Context, userID, articleID string) (bool, error) {
	return s.addToProfileArray(ctx, "hide article", columnHiddenArticles, userID, articleID)
}

// UnhideArticle reports false when the article was not hidden.
func (s *PostgresStore) UnhideArticle(ctx context.Context, userID, articleID string) (bool, error) {
	return s.removeFromProfileArray(ctx, "unhide article", columnHiddenArticles, userID, articleID)
}

func (s *PostgresStore) FollowUser(ctx context.Context, userID, targetID string) (bool, error) {
	return s.addToProfileArray(ctx, "follow user", columnFollowedUsers, userID, targetID)
}

func (s *PostgresStore) UnfollowUser(ctx context.Context, userID, targetID string) (bool, error) {
	return s.removeFromProfileArray(ctx, "unfollow user", columnFollowedUsers, userID, targetID)
}

// addToProfileArray appends value to a TEXT[] column of profile id unless it
// is already present. column must be one of the constants above.
func (s *PostgresStore) addToProfileArray(ctx context.Context, what, column, id, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET `+column+` = array_append(`+column+`, $2)
		WHERE id=$1 AND NOT ($2 = ANY(`+column+`))
	`, id, value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	return s.changedOrMissing(ctx, what, id, res.RowsAffected)
}

func (s *PostgresStore) removeFromProfileArray(ctx context.Context, what, column, id, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET `+column+` = array_remove(`+column+`, $2)
		WHERE id=$1 AND $2 = ANY(`+column+`)
	`, id, value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	return s.changedOrMissing(ctx, what, id, res.RowsAffected)
}

// changedOrMissing turns "no row updated" into either ErrNotFound (no such
// profile) or an unchanged result.
func (s *PostgresStore) changedOrMissing(ctx context.Context, what, id string, rowsAffected func() (int64, error)) (bool, error) {
	n, err := rowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM profiles WHERE id=$1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", what, err)
	}
	if !exists {
		return false, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return false, nil
}

func (s *PostgresStore) InsertNavigation(ctx context.Context, e NavEntry) (NavEntry, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO nav_history (user_id, page, url, ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, page, url, ref, created_at
	`, e.UserID, e.Page, e.URL, e.Ref).Scan(&e.ID, &e.UserID, &e.Page, &e.URL, &e.Ref, &e.CreatedAt)
	if err != nil {
		return NavEntry{}, fmt.Errorf("insert navigation: %w", err)
	}
	return e, nil
}

// ListNavigation returns a user's most recent visits, newest first.
func (s *PostgresStore) ListNavigation(ctx context.Context, userID string, limit int) ([]NavEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, page, url, ref, created_at
		FROM nav_history
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, clampLimit(limit, 50))
	if err != nil {
		return nil, fmt.Errorf("list navigation: %w", err)
	}
	defer rows.Close()

	items := make([]NavEntry, 0)
	for rows.Next() {
		var e NavEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Page, &e.URL, &e.Ref, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan navigation: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate navigation: %w", err)
	}
	return items, nil
}
