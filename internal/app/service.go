package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"kgr/api/internal/auth"
	"kgr/api/internal/autosave"
	"kgr/api/internal/config"
	"kgr/api/internal/editor"
	"kgr/api/internal/export"
	"kgr/api/internal/history"
	"kgr/api/internal/markup"
	"kgr/api/internal/media"
	"kgr/api/internal/notify"
	"kgr/api/internal/rbac"
	"kgr/api/internal/search"
	"kgr/api/internal/store"
)

type dataStore interface {
	Ping(context.Context) error
	EnsureProfile(context.Context, string, string, string) (store.Profile, error)
	GetProfile(context.Context, string) (store.Profile, error)
	GetProfileByUsername(context.Context, string) (store.Profile, error)
	UsernameAvailable(context.Context, string, string) (bool, error)
	UpdateProfile(context.Context, store.Profile) error
	ListProfiles(context.Context) ([]store.Profile, error)
	SetBanned(context.Context, string, bool) error
	DeleteProfile(context.Context, string) error
	CreateArticle(context.Context, store.Article) (store.Article, error)
	UpdateArticle(context.Context, store.Article) (store.Article, error)
	GetArticle(context.Context, string) (store.Article, error)
	ListPublished(context.Context, int, int) ([]store.Article, error)
	ListByUser(context.Context, string, string) ([]store.Article, error)
	ListAll(context.Context) ([]store.Article, error)
	SetArticleStatus(context.Context, string, string) error
	DeleteArticle(context.Context, string) error
	IncrementViews(context.Context, string) (int64, error)
	Stats(context.Context) (store.Stats, error)
	InsertNotification(context.Context, string, string, string) (store.Notification, error)
	InsertNotificationForAll(context.Context, string, string) (int64, error)
	ListNotifications(context.Context, string) ([]store.Notification, error)
	CountUnread(context.Context, string) (int, error)
	MarkAllRead(context.Context, string) error
	MarkRead(context.Context, string, string) error
	CreateReport(context.Context, string, string, string) (store.Report, error)
	ListReports(context.Context) ([]store.Report, error)
	HideArticle(context.Context, string, string) (bool, error)
	UnhideArticle(context.Context, string, string) (bool, error)
	FollowUser(context.Context, string, string) (bool, error)
	UnfollowUser(context.Context, string, string) (bool, error)
	InsertNavigation(context.Context, store.NavEntry) (store.NavEntry, error)
	ListNavigation(context.Context, string, int) ([]store.NavEntry, error)
}

type draftStore interface {
	Save(context.Context, string, autosave.Draft) error
	Load(context.Context, string) (autosave.Draft, error)
	Clear(context.Context, string) error
}

type revisionLog interface {
	Record(articleID, content, author, message string) (history.Revision, bool, error)
	History(articleID string, limit int) ([]history.Revision, error)
	ContentAt(articleID, hash string) (string, history.Revision, error)
	Remove(articleID string) error
}

type articleSearch interface {
	Search(context.Context, search.Query) search.Response
	IndexArticle(search.ArticleRecord)
	RemoveArticle(string)
}

type thumbnailUploader interface {
	UploadThumbnail(context.Context, string, media.File) (string, error)
}

type notifier interface {
	Publish(context.Context, notify.Notification) error
	Broadcast(context.Context, notify.Notification) error
}

type socketServer interface {
	ServeWebSocket(w http.ResponseWriter, r *http.Request, userID string, checkOrigin func(*http.Request) bool)
}

type exporter interface {
	Export(ctx context.Context, articleID string, format export.Format) (*export.Result, error)
}

type htmlRenderer interface {
	Render(source string) string
}

// Deps are the backing services of a Service. Only Store is required; a nil
// dependency switches the matching feature off.
type Deps struct {
	Store    *store.PostgresStore
	Drafts   *autosave.RedisStore
	History  *history.Service
	Search   *search.Service
	Uploader *media.Uploader
	Hub      *notify.Hub
	Exporter *export.Service
}

type Service struct {
	store     dataStore
	drafts    draftStore
	history   revisionLog
	search    articleSearch
	uploader  thumbnailUploader
	notifier  notifier
	sockets   socketServer
	exporter  exporter
	verifier  *auth.Verifier
	converter editor.Converter
	reader    htmlRenderer
	sessions  *editor.Registry
	maxUpload int64
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(cfg config.Config, deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	readerOpts := []markup.RendererOption{markup.WithHeadingIDs()}
	if cfg.SanitizeHTML {
		readerOpts = append(readerOpts, markup.WithSanitizer(markup.ReaderPolicy()))
	}
	s := &Service{
		store:     deps.Store,
		verifier:  auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		converter: markup.NewRenderer(),
		reader:    markup.NewRenderer(readerOpts...),
		maxUpload: cfg.MaxThumbnailBytes,
		logger:    logger.Named("app"),
		now:       time.Now,
	}
	if deps.Drafts != nil {
		s.drafts = deps.Drafts
	}
	if deps.History != nil {
		s.history = deps.History
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Uploader != nil {
		s.uploader = deps.Uploader
	}
	if deps.Hub != nil {
		s.notifier = deps.Hub
		s.sockets = deps.Hub
	}
	if deps.Exporter != nil {
		s.exporter = deps.Exporter
	}
	s.sessions = editor.NewRegistry(cfg.EditorSessionTTL, cfg.AutosaveDelay, s.autosaveDraft)
	return s
}

// Caller is the authenticated user behind a request.
type Caller struct {
	UserID    string
	Name      string
	Username  string
	Role      rbac.Role
	Interests []string
}

func (c Caller) can(action rbac.Action) bool {
	return rbac.Can(c.Role, action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Authenticate verifies the Authorization header and loads the caller's
// profile, creating it on first sight.
func (s *Service) Authenticate(ctx context.Context, header string) (Caller, error) {
	identity, err := s.verifier.FromHeader(header)
	if err != nil {
		return Caller{}, err
	}
	profile, err := s.store.EnsureProfile(ctx, identity.UserID, identity.FullName, "")
	if err != nil {
		return Caller{}, err
	}
	if profile.Banned {
		return Caller{}, domainError(http.StatusForbidden, "ACCOUNT_BANNED", "This account has been banned", nil)
	}
	name := profile.DisplayName()
	if profile.FullName == "" && profile.Username == "" {
		name = firstNonEmpty(identity.FullName, emailName(identity.Email), name)
	}
	return Caller{
		UserID:    profile.ID,
		Name:      name,
		Username:  profile.Username,
		Role:      rbac.Normalize(profile.Role),
		Interests: profile.Interests,
	}, nil
}

// RunSweeper evicts idle editor sessions until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Debug("evicted idle editor sessions", zap.Int("count", n))
			}
		}
	}
}

func emailName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
