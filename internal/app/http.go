package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"kgr/api/internal/export"
	"kgr/api/internal/rbac"
	"kgr/api/internal/search"
)

type HTTPServer struct {
	service     *Service
	corsOrigins []string
	logger      *zap.Logger
}

// NewHTTPServer serves the API for service. corsOrigin is a comma separated
// origin list; "*" allows any.
func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	var origins []string
	for _, origin := range strings.Split(corsOrigin, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &HTTPServer{service: service, corsOrigins: origins, logger: logger.Named("http")}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(noStore)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/markup/render", s.handleRenderMarkup)
		r.Post("/markup/markdown", s.handleMarkdown)
		r.Post("/markup/graphs", s.handleGraphs)
		r.Get("/search", s.handleSearch)
		r.With(s.optionalCaller).Get("/articles", s.handleListArticles)
		r.With(s.optionalCaller).Get("/articles/{id}", s.handleGetArticle)
		r.Get("/notifications/ws", s.handleNotificationSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.requireCaller)

			r.Get("/me", s.handleMe)
			r.Put("/me", s.handleUpdateMe)
			r.Get("/me/articles", s.handleMyArticles)
			r.Get("/me/preferences", s.handlePreferences)
			r.Get("/me/following", s.handleFollowing)
			r.Get("/profiles/username-available", s.handleUsernameAvailable)
			r.Get("/feed", s.handleFeed)
			r.Post("/profiles/{id}/follow", s.handleFollow)
			r.Delete("/profiles/{id}/follow", s.handleUnfollow)
			r.Post("/navigation", s.handleLogNavigation)

			r.Route("/editor/sessions", s.editorRoutes)

			r.Patch("/articles/{id}/status", s.handleArticleStatus)
			r.Delete("/articles/{id}", s.handleDeleteArticle)
			r.Get("/articles/{id}/history", s.handleArticleHistory)
			r.Get("/articles/{id}/history/{hash}", s.handleArticleRevision)
			r.Get("/articles/{id}/export", s.handleExportArticle)
			r.Post("/articles/{id}/reports", s.handleReportArticle)
			r.Post("/articles/{id}/hide", s.handleHideArticle)
			r.Delete("/articles/{id}/hide", s.handleUnhideArticle)

			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/read", s.handleMarkNotificationsRead)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAction(rbac.ActionModerate))
				r.Get("/stats", s.handleAdminStats)
				r.Get("/users", s.handleAdminUsers)
				r.Post("/users/{id}/ban", s.handleBanUser)
				r.Delete("/users/{id}", s.handleDeleteUser)
				r.Get("/users/{id}/navigation", s.handleAdminNavigation)
				r.Delete("/users/{id}/hidden/{articleID}", s.handleAdminUnhideArticle)
				r.Get("/export", s.handleAdminExport)
				r.Get("/articles", s.handleAdminArticles)
				r.Get("/reports", s.handleAdminReports)
				r.Post("/notifications", s.handleSendNotification)
			})
		})
	})
	return r
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(started)),
			zap.String("remote_addr", r.RemoteAddr),
		}
		if status >= 500 {
			s.logger.Error("request failed", fields...)
			return
		}
		s.logger.Info("request", fields...)
	})
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type callerKey struct{}

func withCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func callerFrom(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}

func (s *HTTPServer) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.service.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}

// optionalCaller attaches the caller when a valid token is present and lets
// anonymous requests through.
func (s *HTTPServer) optionalCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) != "" {
			if caller, err := s.service.Authenticate(r.Context(), r.Header.Get("Authorization")); err == nil {
				r = r.WithContext(withCaller(r.Context(), caller))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requireAction(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := callerFrom(r.Context())
			if !ok || !caller.can(action) {
				s.logger.Info("access denied",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("user_id", caller.UserID),
					zap.String("role", string(caller.Role)),
					zap.String("action", string(action)),
				)
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// mustCaller returns the caller set by requireCaller.
func mustCaller(r *http.Request) Caller {
	caller, _ := callerFrom(r.Context())
	return caller
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

// decodeValid decodes the JSON body into target and runs its validate tags.
func decodeValid(r *http.Request, target any) error {
	if err := decodeBody(r, target); err != nil {
		return domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
	}
	return validateStruct(target)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleRenderMarkup(w http.ResponseWriter, r *http.Request) {
	var body SourceInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.service.RenderMarkup(body))
}

func (s *HTTPServer) handleMarkdown(w http.ResponseWriter, r *http.Request) {
	var body HTMLInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": s.service.MarkdownFromHTML(body)})
}

func (s *HTTPServer) handleGraphs(w http.ResponseWriter, r *http.Request) {
	var body SourceInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": s.service.Graphs(body)})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := pageParams(r)
	resp := s.service.Search(r.Context(), search.Query{
		Text:   strings.TrimSpace(query.Get("q")),
		Tag:    strings.TrimSpace(query.Get("tag")),
		Limit:  limit,
		Offset: offset,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleListArticles(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	var caller *Caller
	if c, ok := callerFrom(r.Context()); ok {
		caller = &c
	}
	cards, err := s.service.Articles(r.Context(), caller, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cards})
}

func (s *HTTPServer) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	var caller *Caller
	if c, ok := callerFrom(r.Context()); ok {
		caller = &c
	}
	view, err := s.service.Article(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.Me(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var body UpdateProfileInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	profile, err := s.service.UpdateMe(r.Context(), mustCaller(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handleMyArticles(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.MyArticles(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cards})
}

func (s *HTTPServer) handleUsernameAvailable(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	ok, err := s.service.UsernameAvailable(r.Context(), mustCaller(r), username)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": username, "available": ok})
}

func (s *HTTPServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.Feed(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cards})
}

func (s *HTTPServer) handleArticleStatus(w http.ResponseWriter, r *http.Request) {
	var body StatusInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	article, err := s.service.SetArticleStatus(r.Context(), mustCaller(r), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": article.ID, "status": article.Status})
}

func (s *HTTPServer) handleDeleteArticle(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteArticle(r.Context(), mustCaller(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleArticleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	revisions, err := s.service.ArticleHistory(r.Context(), mustCaller(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": revisions})
}

func (s *HTTPServer) handleArticleRevision(w http.ResponseWriter, r *http.Request) {
	view, err := s.service.ArticleRevision(r.Context(), mustCaller(r), chi.URLParam(r, "id"), chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleExportArticle(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.ExportArticle(r.Context(), mustCaller(r), chi.URLParam(r, "id"), format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, result)
}

func writeAttachment(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleReportArticle(w http.ResponseWriter, r *http.Request) {
	var body ReportInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.service.ReportArticle(r.Context(), mustCaller(r), chi.URLParam(r, "id"), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": report.ID})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Notifications(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *HTTPServer) handleMarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	var body MarkReadInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.service.MarkNotificationsRead(r.Context(), mustCaller(r), body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleNotificationSocket streams notifications over a websocket. Browsers
// cannot set headers on the upgrade request, so the token may also come in
// the access_token query parameter.
func (s *HTTPServer) handleNotificationSocket(w http.ResponseWriter, r *http.Request) {
	if s.service.sockets == nil {
		writeError(w, http.StatusServiceUnavailable, "NOTIFICATIONS_UNAVAILABLE", "Realtime notifications are not configured", nil)
		return
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			header = "Bearer " + token
		}
	}
	caller, err := s.service.Authenticate(r.Context(), header)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.service.sockets.ServeWebSocket(w, r, caller.UserID, s.checkOrigin)
}

func (s *HTTPServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func pageParams(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit, _ = strconv.Atoi(query.Get("limit"))
	offset, _ = strconv.Atoi(query.Get("offset"))
	if limit < 0 {
		limit = 0
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
