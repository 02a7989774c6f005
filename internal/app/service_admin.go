package app

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kgr/api/internal/feed"
	"kgr/api/internal/rbac"
	"kgr/api/internal/store"
)

type StatsView struct {
	Users      int    `json:"users"`
	Articles   int    `json:"articles"`
	Published  int    `json:"published"`
	Drafts     int    `json:"drafts"`
	TotalViews int64  `json:"totalViews"`
	ViewsLabel string `json:"viewsLabel"`
	Sessions   int    `json:"editorSessions"`
}

type ReportView struct {
	ID           string    `json:"id"`
	ArticleID    string    `json:"articleId"`
	ArticleTitle string    `json:"articleTitle"`
	ReporterID   string    `json:"reporterId"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"createdAt"`
}

type BanInput struct {
	Banned bool `json:"banned"`
}

type SendNotificationInput struct {
	// UserID targets one user; empty sends to everyone.
	UserID  string `json:"userId"`
	Message string `json:"message" validate:"required,max=500"`
	Link    string `json:"link" validate:"max=500"`
}

func requireModerator(caller Caller) error {
	if !caller.can(rbac.ActionModerate) {
		return forbidden("Admin access required")
	}
	return nil
}

func (s *Service) AdminStats(ctx context.Context, caller Caller) (StatsView, error) {
	if err := requireModerator(caller); err != nil {
		return StatsView{}, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return StatsView{}, err
	}
	return StatsView{
		Users:      stats.Users,
		Articles:   stats.Articles,
		Published:  stats.Published,
		Drafts:     stats.Drafts,
		TotalViews: stats.TotalViews,
		ViewsLabel: feed.FormatViewCount(stats.TotalViews),
		Sessions:   s.sessions.Len(),
	}, nil
}

func (s *Service) AdminUsers(ctx context.Context, caller Caller) ([]ProfileView, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, profileView(p))
	}
	return views, nil
}

func (s *Service) BanUser(ctx context.Context, caller Caller, userID string, in BanInput) error {
	if err := requireModerator(caller); err != nil {
		return err
	}
	if userID == caller.UserID {
		return domainError(http.StatusBadRequest, "INVALID_REQUEST", "You cannot ban yourself", nil)
	}
	if err := s.store.SetBanned(ctx, userID, in.Banned); err != nil {
		if store.IsNotFound(err) {
			return notFound("User")
		}
		return err
	}
	s.logger.Info("user ban changed",
		zap.String("user_id", userID),
		zap.Bool("banned", in.Banned),
		zap.String("by", caller.UserID),
	)
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, caller Caller, userID string) error {
	if err := requireModerator(caller); err != nil {
		return err
	}
	if userID == caller.UserID {
		return domainError(http.StatusBadRequest, "INVALID_REQUEST", "You cannot delete yourself", nil)
	}
	if err := s.store.DeleteProfile(ctx, userID); err != nil {
		if store.IsNotFound(err) {
			return notFound("User")
		}
		return err
	}
	s.logger.Info("user deleted", zap.String("user_id", userID), zap.String("by", caller.UserID))
	return nil
}

func (s *Service) AdminArticles(ctx context.Context, caller Caller) ([]feed.Card, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	articles, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.cards(ctx, articles), nil
}

func (s *Service) AdminReports(ctx context.Context, caller Caller) ([]ReportView, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ReportView, 0, len(reports))
	for _, r := range reports {
		views = append(views, ReportView{
			ID:           r.ID,
			ArticleID:    r.ArticleID,
			ArticleTitle: r.ArticleTitle,
			ReporterID:   r.ReporterID,
			Reason:       r.Reason,
			CreatedAt:    r.CreatedAt,
		})
	}
	return views, nil
}

// SendNotification notifies one user, or everyone when no user is given.
// It returns how many users were notified.
func (s *Service) SendNotification(ctx context.Context, caller Caller, in SendNotificationInput) (int64, error) {
	if err := requireModerator(caller); err != nil {
		return 0, err
	}
	if in.UserID == "" {
		return s.broadcast(ctx, in.Message, in.Link)
	}
	if _, err := s.store.GetProfile(ctx, in.UserID); err != nil {
		if store.IsNotFound(err) {
			return 0, notFound("User")
		}
		return 0, err
	}
	if err := s.deliver(ctx, in.UserID, in.Message, in.Link); err != nil {
		return 0, err
	}
	return 1, nil
}
