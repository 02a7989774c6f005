package editor

import (
	"context"
	"fmt"
	"strings"
)

// Draft is the article a session hands over on submission.
type Draft struct {
	ArticleID string
	OwnerID   string
	Title     string
	Content   string
	Status    Status
	ImageURL  string
	Tags      []string
	CoAuthors []string
}

// Publisher stores what a session submits. Thumbnail upload and the record
// write are separate calls so the upload can finish before the write.
type Publisher interface {
	UploadThumbnail(ctx context.Context, ownerID string, file Thumbnail) (string, error)
	SaveArticle(ctx context.Context, draft Draft) (string, error)
}

// Submit validates the session, uploads a newly selected thumbnail and then
// creates or updates the article. Validation failures return before any
// Publisher call. While a submission is pending a second one fails with
// ErrSubmitInProgress; after a successful one the session is closed.
func (s *Session) Submit(ctx context.Context, status Status, pub Publisher) (Draft, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Draft{}, ErrSessionClosed
	}
	if s.submitting {
		s.mu.Unlock()
		return Draft{}, ErrSubmitInProgress
	}
	draft, err := s.draftLocked(status)
	if err != nil {
		s.mu.Unlock()
		return Draft{}, err
	}
	file := s.thumbnail
	s.submitting = true
	s.mu.Unlock()

	if file != nil {
		url, err := pub.UploadThumbnail(ctx, draft.OwnerID, *file)
		if err != nil {
			s.finishSubmit(Draft{}, false)
			return Draft{}, fmt.Errorf("upload thumbnail: %w", err)
		}
		draft.ImageURL = url
	}

	id, err := pub.SaveArticle(ctx, draft)
	if err != nil {
		s.finishSubmit(Draft{}, false)
		return Draft{}, fmt.Errorf("save article: %w", err)
	}
	draft.ArticleID = id
	s.finishSubmit(draft, true)
	return draft, nil
}

func (s *Session) draftLocked(status Status) (Draft, error) {
	if status == "" {
		status = s.status
	}
	if !status.Valid() {
		return Draft{}, ErrInvalidStatus
	}
	if strings.TrimSpace(s.source) == "" {
		return Draft{}, ErrEmptyContent
	}
	title := strings.TrimSpace(s.title)
	if title == "" {
		title = DefaultTitle
	}
	return Draft{
		ArticleID: s.articleID,
		OwnerID:   s.ownerID,
		Title:     title,
		Content:   s.source,
		Status:    status,
		ImageURL:  s.imageURL,
		Tags:      append([]string{}, s.tags...),
		CoAuthors: append([]string{}, s.coAuthors...),
	}, nil
}

func (s *Session) finishSubmit(draft Draft, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if !ok {
		return
	}
	s.closed = true
	s.articleID = draft.ArticleID
	s.imageURL = draft.ImageURL
	s.status = draft.Status
	s.thumbnail = nil
}
