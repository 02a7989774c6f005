package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"kgr/api/internal/export"
	"kgr/api/internal/feed"
	"kgr/api/internal/history"
	"kgr/api/internal/markup"
	"kgr/api/internal/rbac"
	"kgr/api/internal/search"
	"kgr/api/internal/store"
)

const (
	defaultPageSize = 20
	feedWindow      = 100
	historyLimit    = 50
)

// ArticleView is a single article prepared for reading.
type ArticleView struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Author         string               `json:"author"`
	AuthorID       string               `json:"authorId"`
	AuthorAvatar   string               `json:"authorAvatar"`
	Status         string               `json:"status"`
	Content        string               `json:"content"`
	HTML           string               `json:"html"`
	Outline        []markup.Heading     `json:"outline"`
	Charts         []markup.GraphConfig `json:"charts"`
	ReadingMinutes int                  `json:"readingMinutes"`
	ImageURL       string               `json:"imageUrl,omitempty"`
	Tags           []string             `json:"tags"`
	CoAuthors      []string             `json:"coAuthors"`
	Views          int64                `json:"views"`
	ViewsLabel     string               `json:"viewsLabel"`
	Published      string               `json:"published"`
	CanEdit        bool                 `json:"canEdit"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

type RevisionView struct {
	Revision history.Revision `json:"revision"`
	Content  string           `json:"content"`
	HTML     string           `json:"html"`
}

type StatusInput struct {
	Status string `json:"status" validate:"required,oneof=draft published"`
}

type ReportInput struct {
	Reason  string `json:"reason" validate:"required,max=100"`
	Details string `json:"details" validate:"max=2000"`
}

// Article returns an article for reading. Drafts are only visible to the
// people who may edit them. Reading a published article counts a view.
func (s *Service) Article(ctx context.Context, caller *Caller, id string) (ArticleView, error) {
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return ArticleView{}, notFound("Article")
		}
		return ArticleView{}, err
	}
	canEdit := caller != nil && s.canEdit(*caller, article)
	if article.Status != store.StatusPublished && !canEdit {
		return ArticleView{}, notFound("Article")
	}
	if article.Status == store.StatusPublished {
		views, err := s.store.IncrementViews(ctx, article.ID)
		if err != nil {
			s.logger.Warn("increment article views", zap.String("article_id", article.ID), zap.Error(err))
		} else {
			article.Views = views
		}
	}

	var author *store.Profile
	if profile, err := s.store.GetProfile(ctx, article.UserID); err == nil {
		author = &profile
	}
	card := feed.NewCard(article, author, s.now())
	rendered := s.reader.Render(article.Content)
	return ArticleView{
		ID:             article.ID,
		Title:          article.Title,
		Author:         card.Author,
		AuthorID:       article.UserID,
		AuthorAvatar:   card.AuthorAvatar,
		Status:         article.Status,
		Content:        article.Content,
		HTML:           rendered,
		Outline:        nonNilHeadings(markup.Outline(rendered)),
		Charts:         nonNilGraphs(markup.ExtractGraphs(article.Content)),
		ReadingMinutes: card.ReadingMinutes,
		ImageURL:       article.ImageURL,
		Tags:           article.Tags,
		CoAuthors:      article.CoAuthors,
		Views:          article.Views,
		ViewsLabel:     card.ViewsLabel,
		Published:      card.Published,
		CanEdit:        canEdit,
		CreatedAt:      article.CreatedAt,
		UpdatedAt:      article.UpdatedAt,
	}, nil
}

// Articles lists published articles newest first. A signed-in caller does
// not see the articles they hid.
func (s *Service) Articles(ctx context.Context, caller *Caller, limit, offset int) ([]feed.Card, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	articles, err := s.store.ListPublished(ctx, limit, max(offset, 0))
	if err != nil {
		return nil, err
	}
	cards := s.cards(ctx, articles)
	if caller != nil {
		prefs := s.preferences(ctx, *caller)
		cards = feed.WithoutHidden(cards, prefs.HiddenArticles)
	}
	return cards, nil
}

// Feed lists recent published articles the caller has not hidden. Articles
// by followed authors come first, then the ones matching the caller's
// interests.
func (s *Service) Feed(ctx context.Context, caller Caller) ([]feed.Card, error) {
	articles, err := s.store.ListPublished(ctx, feedWindow, 0)
	if err != nil {
		return nil, err
	}
	prefs := s.preferences(ctx, caller)
	cards := feed.WithoutHidden(s.cards(ctx, articles), prefs.HiddenArticles)
	cards = feed.Personalize(cards, caller.Interests)
	return feed.FollowedFirst(cards, prefs.FollowedUsers), nil
}

// MyArticles lists everything the caller wrote or co-wrote, drafts included.
func (s *Service) MyArticles(ctx context.Context, caller Caller) ([]feed.Card, error) {
	articles, err := s.store.ListByUser(ctx, caller.UserID, caller.Username)
	if err != nil {
		return nil, err
	}
	return s.cards(ctx, articles), nil
}

func (s *Service) cards(ctx context.Context, articles []store.Article) []feed.Card {
	authors := make(map[string]store.Profile)
	for _, a := range articles {
		if _, seen := authors[a.UserID]; seen || a.UserID == "" {
			continue
		}
		profile, err := s.store.GetProfile(ctx, a.UserID)
		if err != nil {
			continue
		}
		authors[a.UserID] = profile
	}
	return feed.Cards(articles, authors, s.now())
}

func (s *Service) SetArticleStatus(ctx context.Context, caller Caller, id string, in StatusInput) (store.Article, error) {
	article, err := s.editableArticle(ctx, caller, id)
	if err != nil {
		return store.Article{}, err
	}
	if err := s.store.SetArticleStatus(ctx, id, in.Status); err != nil {
		return store.Article{}, err
	}
	article.Status = in.Status
	s.syncSearch(article)
	return article, nil
}

// DeleteArticle removes an article. Owners delete their own; moderators
// delete any.
func (s *Service) DeleteArticle(ctx context.Context, caller Caller, id string) error {
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("Article")
		}
		return err
	}
	if article.UserID != caller.UserID && !caller.can(rbac.ActionModerate) {
		return forbidden("Only the owner can delete this article")
	}
	if err := s.store.DeleteArticle(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.RemoveArticle(id)
	}
	if s.history != nil {
		if err := s.history.Remove(id); err != nil {
			s.logger.Warn("remove article history", zap.String("article_id", id), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) ArticleHistory(ctx context.Context, caller Caller, id string, limit int) ([]history.Revision, error) {
	if _, err := s.editableArticle(ctx, caller, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []history.Revision{}, nil
	}
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	return s.history.History(id, limit)
}

func (s *Service) ArticleRevision(ctx context.Context, caller Caller, id, hash string) (RevisionView, error) {
	if _, err := s.editableArticle(ctx, caller, id); err != nil {
		return RevisionView{}, err
	}
	if s.history == nil {
		return RevisionView{}, history.ErrRevisionNotFound
	}
	content, rev, err := s.history.ContentAt(id, hash)
	if err != nil {
		return RevisionView{}, err
	}
	return RevisionView{Revision: rev, Content: content, HTML: s.reader.Render(content)}, nil
}

// ExportArticle renders an article into a downloadable file. Published
// articles export for anyone signed in, drafts only for their editors.
func (s *Service) ExportArticle(ctx context.Context, caller Caller, id string, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available on this server", nil)
	}
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, notFound("Article")
		}
		return nil, err
	}
	if article.Status != store.StatusPublished && !s.canEdit(caller, article) {
		return nil, notFound("Article")
	}
	return s.exporter.Export(ctx, id, format)
}

func (s *Service) ReportArticle(ctx context.Context, caller Caller, id string, in ReportInput) (store.Report, error) {
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Report{}, notFound("Article")
		}
		return store.Report{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	if details := strings.TrimSpace(in.Details); details != "" {
		reason += ": " + details
	}
	return s.store.CreateReport(ctx, article.ID, caller.UserID, reason)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

// editableArticle loads an article the caller may change.
func (s *Service) editableArticle(ctx context.Context, caller Caller, id string) (store.Article, error) {
	article, err := s.store.GetArticle(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Article{}, notFound("Article")
		}
		return store.Article{}, err
	}
	if !s.canEdit(caller, article) {
		return store.Article{}, forbidden("You cannot edit this article")
	}
	return article, nil
}

func (s *Service) canEdit(caller Caller, article store.Article) bool {
	isOwner := article.UserID == caller.UserID
	isCoAuthor := caller.Username != "" && containsFold(article.CoAuthors, caller.Username)
	return rbac.CanEditArticle(caller.Role, isOwner, isCoAuthor)
}

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func nonNilHeadings(h []markup.Heading) []markup.Heading {
	if h == nil {
		return []markup.Heading{}
	}
	return h
}

func nonNilGraphs(g []markup.GraphConfig) []markup.GraphConfig {
	if g == nil {
		return []markup.GraphConfig{}
	}
	return g
}

// ExportSource adapts the article store for the exporter.
func ExportSource(articles *store.PostgresStore) export.ArticleSource {
	return storeExportSource{articles: articles}
}

type storeExportSource struct {
	articles interface {
		GetArticle(context.Context, string) (store.Article, error)
	}
}

func (s storeExportSource) ExportArticle(ctx context.Context, id string) (export.Article, error) {
	a, err := s.articles.GetArticle(ctx, id)
	if err != nil {
		return export.Article{}, err
	}
	return export.Article{
		ID:        a.ID,
		Title:     a.Title,
		Author:    a.Author,
		Content:   a.Content,
		Tags:      a.Tags,
		UpdatedAt: a.UpdatedAt,
	}, nil
}
