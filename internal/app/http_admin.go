package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.AdminStats(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.AdminUsers(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (s *HTTPServer) handleBanUser(w http.ResponseWriter, r *http.Request) {
	body := BanInput{Banned: true}
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	userID := chi.URLParam(r, "id")
	if err := s.service.BanUser(r.Context(), mustCaller(r), userID, body); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": userID, "banned": body.Banned})
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteUser(r.Context(), mustCaller(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAdminArticles(w http.ResponseWriter, r *http.Request) {
	cards, err := s.service.AdminArticles(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": cards})
}

func (s *HTTPServer) handleAdminReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.service.AdminReports(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reports})
}

func (s *HTTPServer) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var body SendNotificationInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	sent, err := s.service.SendNotification(r.Context(), mustCaller(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sent": sent})
}

func (s *HTTPServer) handleAdminNavigation(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r)
	entries, err := s.service.AdminNavigation(r.Context(), mustCaller(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *HTTPServer) handleAdminUnhideArticle(w http.ResponseWriter, r *http.Request) {
	userID, articleID := chi.URLParam(r, "id"), chi.URLParam(r, "articleID")
	changed, err := s.service.AdminUnhideArticle(r.Context(), mustCaller(r), userID, articleID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "articleId": articleID, "changed": changed})
}

func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.AdminExport(r.Context(), mustCaller(r), r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeAttachment(w, result)
}
