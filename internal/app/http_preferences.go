package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handlePreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.service.Preferences(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *HTTPServer) handleFollowing(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.service.Following(r.Context(), mustCaller(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": profiles})
}

func (s *HTTPServer) handleHideArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := s.service.HideArticle(r.Context(), mustCaller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articleId": id, "hidden": true, "changed": changed})
}

func (s *HTTPServer) handleUnhideArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := s.service.UnhideArticle(r.Context(), mustCaller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"articleId": id, "hidden": false, "changed": changed})
}

func (s *HTTPServer) handleFollow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := s.service.FollowUser(r.Context(), mustCaller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": id, "following": true, "changed": changed})
}

func (s *HTTPServer) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	changed, err := s.service.UnfollowUser(r.Context(), mustCaller(r), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": id, "following": false, "changed": changed})
}

func (s *HTTPServer) handleLogNavigation(w http.ResponseWriter, r *http.Request) {
	var body NavigationInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	entry, err := s.service.LogNavigation(r.Context(), mustCaller(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
