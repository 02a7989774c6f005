package app

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kgr/api/internal/store"
)

const navigationLimit = 50

// PreferencesView is what a reader has chosen to hide and follow.
type PreferencesView struct {
	HiddenArticles []string `json:"hiddenArticles"`
	FollowedUsers  []string `json:"followedUsers"`
}

// NavigationInput records one page visit. Ref names the page the reader
// came from.
type NavigationInput struct {
	Page string `json:"page" validate:"required,oneof=home contribution setting viewer editor"`
	URL  string `json:"url" validate:"max=2048"`
	Ref  string `json:"ref" validate:"omitempty,oneof=home contribution setting viewer editor"`
}

type NavigationView struct {
	ID        string    `json:"id"`
	Page      string    `json:"page"`
	URL       string    `json:"url"`
	Ref       string    `json:"ref,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func navigationView(e store.NavEntry) NavigationView {
	return NavigationView{ID: e.ID, Page: e.Page, URL: e.URL, Ref: e.Ref, CreatedAt: e.CreatedAt}
}

// preferences loads the caller's hidden articles and followed authors. A
// missing profile yields empty preferences so listings still work.
func (s *Service) preferences(ctx context.Context, caller Caller) PreferencesView {
	prefs := PreferencesView{HiddenArticles: []string{}, FollowedUsers: []string{}}
	profile, err := s.store.GetProfile(ctx, caller.UserID)
	if err != nil {
		if !store.IsNotFound(err) {
			s.logger.Warn("load preferences failed", zap.String("user_id", caller.UserID), zap.Error(err))
		}
		return prefs
	}
	if profile.HiddenArticles != nil {
		prefs.HiddenArticles = profile.HiddenArticles
	}
	if profile.FollowedUsers != nil {
		prefs.FollowedUsers = profile.FollowedUsers
	}
	return prefs
}

func (s *Service) Preferences(ctx context.Context, caller Caller) (PreferencesView, error) {
	if _, err := s.store.GetProfile(ctx, caller.UserID); err != nil {
		if store.IsNotFound(err) {
			return PreferencesView{}, notFound("User")
		}
		return PreferencesView{}, err
	}
	return s.preferences(ctx, caller), nil
}

// HideArticle keeps an article out of the caller's feed and article list.
// It reports false when the article was already hidden.
func (s *Service) HideArticle(ctx context.Context, caller Caller, articleID string) (bool, error) {
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, notFound("Article")
		}
		return false, err
	}
	if article.Status != store.StatusPublished && !s.canEdit(caller, article) {
		return false, notFound("Article")
	}
	changed, err := s.store.HideArticle(ctx, caller.UserID, articleID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, notFound("User")
		}
		return false, err
	}
	return changed, nil
}

// UnhideArticle works for deleted articles too, so stale ids can be cleared.
func (s *Service) UnhideArticle(ctx context.Context, caller Caller, articleID string) (bool, error) {
	changed, err := s.store.UnhideArticle(ctx, caller.UserID, articleID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, notFound("User")
		}
		return false, err
	}
	return changed, nil
}

func (s *Service) FollowUser(ctx context.Context, caller Caller, targetID string) (bool, error) {
	if targetID == caller.UserID {
		return false, domainError(http.StatusBadRequest, "INVALID_REQUEST", "You cannot follow yourself", nil)
	}
	if _, err := s.store.GetProfile(ctx, targetID); err != nil {
		if store.IsNotFound(err) {
			return false, notFound("User")
		}
		return false, err
	}
	changed, err := s.store.FollowUser(ctx, caller.UserID, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, notFound("User")
		}
		return false, err
	}
	if changed {
		s.logger.Debug("user followed", zap.String("user_id", caller.UserID), zap.String("target_id", targetID))
	}
	return changed, nil
}

func (s *Service) UnfollowUser(ctx context.Context, caller Caller, targetID string) (bool, error) {
	changed, err := s.store.UnfollowUser(ctx, caller.UserID, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, notFound("User")
		}
		return false, err
	}
	return changed, nil
}

// Following lists the profiles the caller follows. Deleted accounts are
// skipped.
func (s *Service) Following(ctx context.Context, caller Caller) ([]ProfileView, error) {
	prefs := s.preferences(ctx, caller)
	views := make([]ProfileView, 0, len(prefs.FollowedUsers))
	for _, id := range prefs.FollowedUsers {
		profile, err := s.store.GetProfile(ctx, id)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		views = append(views, profileView(profile))
	}
	return views, nil
}

func (s *Service) LogNavigation(ctx context.Context, caller Caller, in NavigationInput) (NavigationView, error) {
	entry, err := s.store.InsertNavigation(ctx, store.NavEntry{
		UserID: caller.UserID,
		Page:   in.Page,
		URL:    in.URL,
		Ref:    in.Ref,
	})
	if err != nil {
		return NavigationView{}, err
	}
	return navigationView(entry), nil
}

// AdminNavigation returns a user's recent page visits, newest first.
func (s *Service) AdminNavigation(ctx context.Context, caller Caller, userID string, limit int) ([]NavigationView, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > navigationLimit {
		limit = navigationLimit
	}
	entries, err := s.store.ListNavigation(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]NavigationView, 0, len(entries))
	for _, e := range entries {
		views = append(views, navigationView(e))
	}
	return views, nil
}

// AdminUnhideArticle clears an article from another user's hidden list.
func (s *Service) AdminUnhideArticle(ctx context.Context, caller Caller, userID, articleID string) (bool, error) {
	if err := requireModerator(caller); err != nil {
		return false, err
	}
	changed, err := s.store.UnhideArticle(ctx, userID, articleID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, notFound("User")
		}
		return false, err
	}
	s.logger.Info("article unhidden for user",
		zap.String("user_id", userID),
		zap.String("article_id", articleID),
		zap.Bool("changed", changed),
		zap.String("by", caller.UserID),
	)
	return changed, nil
}
