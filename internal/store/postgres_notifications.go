package store

import (
	"context"
	"fmt"
)

const notificationLimit = 20

func scanNotification(row interface{ Scan(...any) error }) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.Link, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (s *PostgresStore) InsertNotification(ctx context.Context, userID, message, link string) (Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, message, link)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, message, link, is_read, created_at
	`, userID, message, link))
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// InsertNotificationForAll fans one message out to every profile that is not
// banned and returns how many rows were written.
func (s *PostgresStore) InsertNotificationForAll(ctx context.Context, message, link string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, message, link)
		SELECT id, $1, $2 FROM profiles WHERE NOT banned
	`, message, link)
	if err != nil {
		return 0, fmt.Errorf("broadcast notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("broadcast notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns the latest notifications for a user, newest
// first.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, message, link, is_read, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, notificationLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND NOT is_read`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE user_id=$1 AND NOT is_read`, userID); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectRow(res, "mark notification read")
}

func (s *PostgresStore) CreateReport(ctx context.Context, articleID, reporterID, reason string) (Report, error) {
	var r Report
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO article_reports (article_id, reporter_id, reason)
		VALUES ($1, $2, $3)
		RETURNING id, article_id, reporter_id, reason, created_at
	`, articleID, reporterID, reason).Scan(&r.ID, &r.ArticleID, &r.ReporterID, &r.Reason, &r.CreatedAt)
	if err != nil {
		return Report{}, fmt.Errorf("create report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.article_id, a.title, r.reporter_id, r.reason, r.created_at
		FROM article_reports r
		JOIN articles a ON a.id = r.article_id
		ORDER BY r.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	items := make([]Report, 0)
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.ArticleID, &r.ArticleTitle, &r.ReporterID, &r.Reason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return items, nil
}

