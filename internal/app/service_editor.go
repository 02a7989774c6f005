package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kgr/api/internal/autosave"
	"kgr/api/internal/editor"
	"kgr/api/internal/media"
	"kgr/api/internal/rbac"
	"kgr/api/internal/search"
	"kgr/api/internal/store"
	"kgr/api/internal/util"
)

const backgroundTimeout = 5 * time.Second

type OpenEditorInput struct {
	ArticleID string `json:"articleId" validate:"omitempty,max=64"`
}

type SwitchModeInput struct {
	Mode string `json:"mode" validate:"required"`
}

type EditContentInput struct {
	Content string `json:"content"`
}

type SetTitleInput struct {
	Title string `json:"title" validate:"max=200"`
}

type AddTagInput struct {
	Tag string `json:"tag" validate:"required,max=40"`
}

type AddCoAuthorsInput struct {
	Names string `json:"names" validate:"required"`
}

type SubmitInput struct {
	Status string `json:"status" validate:"omitempty,oneof=draft published"`
}

// SubmitResult is what a successful submission reports back.
type SubmitResult struct {
	ArticleID string `json:"articleId"`
	Status    string `json:"status"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// OpenEditor starts an editor session. With an article id the stored article
// is loaded for editing; without one the session starts empty or from the
// caller's autosaved draft.
func (s *Service) OpenEditor(ctx context.Context, caller Caller, in OpenEditorInput) (editor.State, error) {
	if !caller.can(rbac.ActionWrite) {
		return editor.State{}, forbidden("Your role cannot write articles")
	}
	var session *editor.Session
	if in.ArticleID != "" {
		article, err := s.editableArticle(ctx, caller, in.ArticleID)
		if err != nil {
			return editor.State{}, err
		}
		session = editor.LoadRecord(editor.Record{
			ID:        article.ID,
			OwnerID:   caller.UserID,
			Title:     article.Title,
			Content:   article.Content,
			Status:    editor.Status(article.Status),
			ImageURL:  article.ImageURL,
			Tags:      article.Tags,
			CoAuthors: article.CoAuthors,
		}, s.converter)
	} else {
		session = editor.NewSession(caller.UserID, s.converter)
		s.restoreDraft(ctx, caller.UserID, session)
	}
	s.sessions.Add(session)
	return session.Snapshot(), nil
}

func (s *Service) restoreDraft(ctx context.Context, userID string, session *editor.Session) {
	if s.drafts == nil {
		return
	}
	draft, err := s.drafts.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, autosave.ErrNotFound) {
			s.logger.Warn("load autosaved draft", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}
	_ = session.SetTitle(draft.Title)
	_ = session.EditSource(draft.Content)
}

// autosaveDraft persists the text of an unsaved article. Sessions editing a
// stored article are not autosaved.
func (s *Service) autosaveDraft(session *editor.Session) {
	if s.drafts == nil || session.ArticleID() != "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	draft := autosave.Draft{Title: session.Title(), Content: session.SourceText(), SavedAt: s.now().UTC()}
	if draft.Empty() {
		return
	}
	if err := s.drafts.Save(ctx, session.OwnerID(), draft); err != nil {
		s.logger.Warn("autosave draft", zap.String("session_id", session.ID()), zap.Error(err))
	}
}

func (s *Service) EditorState(caller Caller, sessionID string) (editor.State, error) {
	session, err := s.sessions.Get(sessionID, caller.UserID)
	if err != nil {
		return editor.State{}, err
	}
	return session.Snapshot(), nil
}

// CloseEditor discards a session. Pending autosaves are written first.
func (s *Service) CloseEditor(caller Caller, sessionID string) error {
	if _, err := s.sessions.Get(sessionID, caller.UserID); err != nil {
		return err
	}
	s.sessions.Remove(sessionID, true)
	return nil
}

func (s *Service) withSession(caller Caller, sessionID string, fn func(*editor.Session) error) (editor.State, error) {
	session, err := s.sessions.Get(sessionID, caller.UserID)
	if err != nil {
		return editor.State{}, err
	}
	if err := fn(session); err != nil {
		return editor.State{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) SwitchMode(caller Caller, sessionID string, in SwitchModeInput) (editor.State, error) {
	mode, err := editor.ParseMode(in.Mode)
	if err != nil {
		return editor.State{}, err
	}
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		_, err := session.SwitchMode(mode)
		return err
	})
}

func (s *Service) EditSource(caller Caller, sessionID string, in EditContentInput) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.EditSource(in.Content)
	})
}

func (s *Service) EditRich(caller Caller, sessionID string, in EditContentInput) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.EditRich(in.Content)
	})
}

func (s *Service) SetTitle(caller Caller, sessionID string, in SetTitleInput) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.SetTitle(in.Title)
	})
}

func (s *Service) AddTag(caller Caller, sessionID string, in AddTagInput) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.AddTag(in.Tag)
	})
}

func (s *Service) RemoveTag(caller Caller, sessionID string, index int) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.RemoveTag(index)
	})
}

func (s *Service) AddCoAuthors(caller Caller, sessionID string, in AddCoAuthorsInput) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		_, err := session.AddCoAuthors(in.Names)
		return err
	})
}

func (s *Service) RemoveCoAuthor(caller Caller, sessionID string, index int) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.RemoveCoAuthor(index)
	})
}

func (s *Service) SelectThumbnail(caller Caller, sessionID string, file editor.Thumbnail) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.SelectThumbnail(file)
	})
}

func (s *Service) ClearThumbnail(caller Caller, sessionID string) (editor.State, error) {
	return s.withSession(caller, sessionID, func(session *editor.Session) error {
		return session.ClearThumbnail()
	})
}

// Submit saves the session as an article and closes it.
func (s *Service) Submit(ctx context.Context, caller Caller, sessionID string, in SubmitInput) (SubmitResult, error) {
	session, err := s.sessions.Get(sessionID, caller.UserID)
	if err != nil {
		return SubmitResult{}, err
	}
	pub := &publisher{service: s, caller: caller}
	draft, err := session.Submit(ctx, editor.Status(in.Status), pub)
	if err != nil {
		return SubmitResult{}, err
	}
	s.sessions.Remove(sessionID, false)

	if s.drafts != nil && pub.created {
		if err := s.drafts.Clear(ctx, caller.UserID); err != nil {
			s.logger.Warn("clear autosaved draft", zap.String("user_id", caller.UserID), zap.Error(err))
		}
	}
	s.afterSave(pub.saved, caller, pub.previousCoAuthors)
	return SubmitResult{ArticleID: draft.ArticleID, Status: string(draft.Status), ImageURL: draft.ImageURL}, nil
}

// publisher stores a submitted session through the service's backends.
type publisher struct {
	service           *Service
	caller            Caller
	saved             store.Article
	created           bool
	previousCoAuthors []string
}

func (p *publisher) UploadThumbnail(ctx context.Context, ownerID string, file editor.Thumbnail) (string, error) {
	if p.service.uploader == nil {
		return "", domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Thumbnail uploads are not configured", nil)
	}
	return p.service.uploader.UploadThumbnail(ctx, ownerID, media.File{
		Name:        file.Name,
		ContentType: file.ContentType,
		Data:        file.Data,
	})
}

func (p *publisher) SaveArticle(ctx context.Context, draft editor.Draft) (string, error) {
	s := p.service
	if draft.ArticleID == "" {
		article, err := s.store.CreateArticle(ctx, store.Article{
			ID:        util.NewID(""),
			Title:     draft.Title,
			Content:   draft.Content,
			Status:    string(draft.Status),
			UserID:    p.caller.UserID,
			Author:    p.caller.Name,
			ImageURL:  draft.ImageURL,
			Tags:      draft.Tags,
			CoAuthors: draft.CoAuthors,
		})
		if err != nil {
			return "", err
		}
		p.saved, p.created = article, true
		return article.ID, nil
	}

	existing, err := s.editableArticle(ctx, p.caller, draft.ArticleID)
	if err != nil {
		return "", err
	}
	p.previousCoAuthors = existing.CoAuthors
	existing.Title = draft.Title
	existing.Content = draft.Content
	existing.Status = string(draft.Status)
	existing.ImageURL = draft.ImageURL
	existing.Tags = draft.Tags
	existing.CoAuthors = draft.CoAuthors
	article, err := s.store.UpdateArticle(ctx, existing)
	if err != nil {
		return "", err
	}
	p.saved = article
	return article.ID, nil
}

// afterSave runs the side effects of a stored article. None of them fail
// the submission.
func (s *Service) afterSave(article store.Article, caller Caller, previousCoAuthors []string) {
	if s.history != nil {
		message := fmt.Sprintf("Update %q", article.Title)
		if _, _, err := s.history.Record(article.ID, article.Content, caller.Name, message); err != nil {
			s.logger.Warn("record article revision", zap.String("article_id", article.ID), zap.Error(err))
		}
	}
	s.syncSearch(article)
	if article.Status == store.StatusPublished {
		go s.notifyCoAuthors(article, caller, previousCoAuthors)
	}
}

func (s *Service) syncSearch(article store.Article) {
	if s.search == nil {
		return
	}
	if article.Status != store.StatusPublished {
		s.search.RemoveArticle(article.ID)
		return
	}
	s.search.IndexArticle(search.ArticleRecord{
		ID:        article.ID,
		Title:     article.Title,
		Content:   article.Content,
		Author:    article.Author,
		Tags:      article.Tags,
		CreatedAt: article.CreatedAt.Unix(),
	})
}

// notifyCoAuthors tells newly listed co-authors that have a profile about
// the article.
func (s *Service) notifyCoAuthors(article store.Article, caller Caller, previous []string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()
	for _, name := range article.CoAuthors {
		if containsFold(previous, name) {
			continue
		}
		profile, err := s.store.GetProfileByUsername(ctx, name)
		if err != nil || profile.ID == caller.UserID {
			continue
		}
		message := fmt.Sprintf("%s added you as a co-author on %q", caller.Name, article.Title)
		if err := s.deliver(ctx, profile.ID, message, articleLink(article.ID)); err != nil {
			s.logger.Warn("notify co-author", zap.String("user_id", profile.ID), zap.Error(err))
		}
	}
}

func articleLink(id string) string {
	return "/articles/" + id
}
