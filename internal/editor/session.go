package editor

import (
	"errors"
	"strings"
	"sync"
	"time"

	"kgr/api/internal/util"
)

var (
	ErrInvalidMode      = errors.New("invalid editor mode")
	ErrWrongMode        = errors.New("surface is not the active editing mode")
	ErrInvalidTag       = errors.New("tag is empty")
	ErrTooManyTags      = errors.New("too many tags")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrInvalidThumbnail = errors.New("thumbnail must be an image")
	ErrEmptyContent     = errors.New("content is required")
	ErrInvalidStatus    = errors.New("status must be draft or published")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrSessionClosed    = errors.New("editor session is closed")
	ErrSessionNotFound  = errors.New("editor session not found")
)

const DefaultTitle = "Untitled"

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Thumbnail is an image picked for upload but not yet stored.
type Thumbnail struct {
	Name        string
	ContentType string
	Data        []byte
}

// Record is a persisted article as loaded into an editor.
type Record struct {
	ID        string
	OwnerID   string
	Title     string
	Content   string
	Status    Status
	ImageURL  string
	Tags      []string
	CoAuthors []string
}

// State is a point-in-time copy of a session for callers and JSON output.
type State struct {
	ID         string   `json:"id"`
	ArticleID  string   `json:"articleId,omitempty"`
	Mode       Mode     `json:"mode"`
	Title      string   `json:"title"`
	Source     string   `json:"source"`
	HTML       string   `json:"html,omitempty"`
	Tags       []string `json:"tags"`
	CoAuthors  []string `json:"coAuthors"`
	Thumbnail  string   `json:"thumbnail,omitempty"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	Status     Status   `json:"status"`
	Submitting bool     `json:"submitting"`
	Closed     bool     `json:"closed"`
}

// Session holds one in-progress article. Every field that the browser kept
// in module globals (tags, co-authors, the selected file) lives here so two
// editors never share state.
type Session struct {
	mu sync.Mutex

	id        string
	ownerID   string
	articleID string
	conv      Converter

	title string
	rep   Representation
	// source is kept current in both modes; in formatted mode it is derived
	// from the rich HTML on every edit.
	source string

	tags      []string
	coAuthors []string
	thumbnail *Thumbnail
	imageURL  string
	status    Status

	submitting bool
	closed     bool
	updatedAt  time.Time
	onChange   func()
}

func NewSession(ownerID string, conv Converter) *Session {
	return &Session{
		id:        util.NewID("edit"),
		ownerID:   ownerID,
		conv:      conv,
		rep:       Source{},
		tags:      []string{},
		coAuthors: []string{},
		status:    StatusDraft,
		updatedAt: time.Now().UTC(),
	}
}

// LoadRecord fills a fresh session from a stored article. The session starts
// in source mode with the stored content as its text.
func LoadRecord(rec Record, conv Converter) *Session {
	s := NewSession(rec.OwnerID, conv)
	s.articleID = rec.ID
	s.title = rec.Title
	s.rep = Source{Text: rec.Content}
	s.source = rec.Content
	s.imageURL = rec.ImageURL
	if rec.Status.Valid() {
		s.status = rec.Status
	}
	for _, tag := range rec.Tags {
		_ = s.addTagLocked(tag)
	}
	for _, name := range rec.CoAuthors {
		if !contains(s.coAuthors, name) {
			s.coAuthors = append(s.coAuthors, name)
		}
	}
	return s
}

func (s *Session) ID() string      { return s.id }
func (s *Session) OwnerID() string { return s.ownerID }

func (s *Session) ArticleID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articleID
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rep.Mode()
}

// SourceText is what autosave and submission persist, whatever the mode.
func (s *Session) SourceText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// RichHTML is the rich surface content, empty while in source mode.
func (s *Session) RichHTML() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rich, ok := s.rep.(Rich); ok {
		return rich.HTML
	}
	return ""
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// SwitchMode moves the session to target. It reports whether a conversion
// ran; switching to the current mode is a no-op.
func (s *Session) SwitchMode(target Mode) (bool, error) {
	if target != ModeSource && target != ModeFormatted {
		return false, ErrInvalidMode
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	if s.rep.Mode() == target {
		s.mu.Unlock()
		return false, nil
	}
	if rich, ok := s.rep.(Rich); ok && strings.TrimSpace(rich.HTML) == "" {
		// Nothing on the rich surface to convert back; keep the source.
		s.rep = Source{Text: s.source}
	} else {
		s.rep = Switch(s.rep, target, s.conv)
		if target == ModeSource {
			s.source = s.rep.Content()
		}
	}
	s.touchLocked()
	hook := s.onChange
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return true, nil
}

func (s *Session) EditSource(text string) error {
	return s.edit(ModeSource, func() {
		s.rep = Source{Text: text}
		s.source = text
	})
}

func (s *Session) EditRich(html string) error {
	return s.edit(ModeFormatted, func() {
		s.rep = Rich{HTML: html}
		s.source = s.conv.ToMarkdown(html)
	})
}

func (s *Session) SetTitle(title string) error {
	return s.edit("", func() { s.title = title })
}

// AddTag stores the normalized tag. Duplicates are ignored, and once
// MaxTags are held further tags are refused.
func (s *Session) AddTag(raw string) error {
	var err error
	if editErr := s.edit("", func() { err = s.addTagLocked(raw) }); editErr != nil {
		return editErr
	}
	return err
}

func (s *Session) addTagLocked(raw string) error {
	tag := NormalizeTag(raw)
	if tag == "" {
		return ErrInvalidTag
	}
	if contains(s.tags, tag) {
		return nil
	}
	if len(s.tags) >= MaxTags {
		return ErrTooManyTags
	}
	s.tags = append(s.tags, tag)
	return nil
}

func (s *Session) RemoveTag(index int) error {
	var err error
	if editErr := s.edit("", func() { s.tags, err = removeAt(s.tags, index) }); editErr != nil {
		return editErr
	}
	return err
}

// AddCoAuthors accepts a comma separated list of handles and returns the
// names that were new to the session.
func (s *Session) AddCoAuthors(raw string) ([]string, error) {
	var added []string
	err := s.edit("", func() {
		for _, name := range ParseCoAuthors(raw) {
			if contains(s.coAuthors, name) {
				continue
			}
			s.coAuthors = append(s.coAuthors, name)
			added = append(added, name)
		}
	})
	return added, err
}

func (s *Session) RemoveCoAuthor(index int) error {
	var err error
	if editErr := s.edit("", func() { s.coAuthors, err = removeAt(s.coAuthors, index) }); editErr != nil {
		return editErr
	}
	return err
}

func (s *Session) SelectThumbnail(file Thumbnail) error {
	if !strings.HasPrefix(file.ContentType, "image/") || len(file.Data) == 0 {
		return ErrInvalidThumbnail
	}
	return s.edit("", func() {
		copied := file
		copied.Data = append([]byte(nil), file.Data...)
		s.thumbnail = &copied
	})
}

func (s *Session) ClearThumbnail() error {
	return s.edit("", func() { s.thumbnail = nil })
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := State{
		ID:         s.id,
		ArticleID:  s.articleID,
		Mode:       s.rep.Mode(),
		Title:      s.title,
		Source:     s.source,
		Tags:       append([]string{}, s.tags...),
		CoAuthors:  append([]string{}, s.coAuthors...),
		ImageURL:   s.imageURL,
		Status:     s.status,
		Submitting: s.submitting,
		Closed:     s.closed,
	}
	if rich, ok := s.rep.(Rich); ok {
		state.HTML = rich.HTML
	}
	if s.thumbnail != nil {
		state.Thumbnail = s.thumbnail.Name
	}
	return state
}

// edit applies fn under the lock and then notifies the change hook. A
// non-empty mode restricts the edit to that surface.
func (s *Session) edit(mode Mode, fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if mode != "" && s.rep.Mode() != mode {
		s.mu.Unlock()
		return ErrWrongMode
	}
	fn()
	s.touchLocked()
	hook := s.onChange
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (s *Session) touchLocked() {
	s.updatedAt = time.Now().UTC()
}

func (s *Session) setOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}
