package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kgr/api/internal/feed"
	"kgr/api/internal/notify"
	"kgr/api/internal/store"
)

type NotificationView struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"isRead"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationList struct {
	Items  []NotificationView `json:"items"`
	Unread int                `json:"unread"`
}

type MarkReadInput struct {
	// ID marks one notification; empty marks all of them.
	ID string `json:"id"`
}

func (s *Service) Notifications(ctx context.Context, caller Caller) (NotificationList, error) {
	items, err := s.store.ListNotifications(ctx, caller.UserID)
	if err != nil {
		return NotificationList{}, err
	}
	unread, err := s.store.CountUnread(ctx, caller.UserID)
	if err != nil {
		return NotificationList{}, err
	}
	now := s.now()
	views := make([]NotificationView, 0, len(items))
	for _, n := range items {
		views = append(views, NotificationView{
			ID:        n.ID,
			Message:   n.Message,
			Link:      n.Link,
			IsRead:    n.IsRead,
			Time:      feed.FormatShortTime(n.CreatedAt, now),
			CreatedAt: n.CreatedAt,
		})
	}
	return NotificationList{Items: views, Unread: unread}, nil
}

func (s *Service) MarkNotificationsRead(ctx context.Context, caller Caller, in MarkReadInput) error {
	if in.ID == "" {
		return s.store.MarkAllRead(ctx, caller.UserID)
	}
	if err := s.store.MarkRead(ctx, caller.UserID, in.ID); err != nil {
		if store.IsNotFound(err) {
			return notFound("Notification")
		}
		return err
	}
	return nil
}

// deliver stores a notification for one user and pushes it to their open
// sockets. A failed push is logged; the stored row is what counts.
func (s *Service) deliver(ctx context.Context, userID, message, link string) error {
	n, err := s.store.InsertNotification(ctx, userID, message, link)
	if err != nil {
		return err
	}
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.Publish(ctx, wireNotification(n)); err != nil {
		s.logger.Warn("publish notification", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// broadcast stores a notification for every profile and pushes one message
// to every open socket.
func (s *Service) broadcast(ctx context.Context, message, link string) (int64, error) {
	count, err := s.store.InsertNotificationForAll(ctx, message, link)
	if err != nil {
		return 0, err
	}
	if s.notifier != nil {
		n := notify.Notification{Message: message, Link: link, CreatedAt: s.now().UTC()}
		if err := s.notifier.Broadcast(ctx, n); err != nil {
			s.logger.Warn("broadcast notification", zap.Error(err))
		}
	}
	return count, nil
}

func wireNotification(n store.Notification) notify.Notification {
	return notify.Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		Link:      n.Link,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
