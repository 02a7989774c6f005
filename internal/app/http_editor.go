package app

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"kgr/api/internal/editor"
	"kgr/api/internal/media"
)

// multipartOverhead leaves room for form boundaries and headers on top of the
// thumbnail size limit.
const multipartOverhead = 64 << 10

func (s *HTTPServer) editorRoutes(r chi.Router) {
	r.Post("/", s.handleOpenEditor)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", s.handleEditorState)
		r.Delete("/", s.handleCloseEditor)
		r.Put("/mode", s.handleSwitchMode)
		r.Put("/source", s.handleEditSource)
		r.Put("/rich", s.handleEditRich)
		r.Put("/title", s.handleSetTitle)
		r.Post("/tags", s.handleAddTag)
		r.Delete("/tags/{index}", s.handleRemoveTag)
		r.Post("/coauthors", s.handleAddCoAuthors)
		r.Delete("/coauthors/{index}", s.handleRemoveCoAuthor)
		r.Put("/thumbnail", s.handleSelectThumbnail)
		r.Delete("/thumbnail", s.handleClearThumbnail)
		r.Post("/submit", s.handleSubmit)
	})
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func indexParam(r *http.Request) (int, error) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		return 0, domainError(http.StatusBadRequest, "INVALID_REQUEST", "index must be a number", nil)
	}
	return index, nil
}

func (s *HTTPServer) writeState(w http.ResponseWriter, r *http.Request, status int, state editor.State, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, state)
}

func (s *HTTPServer) handleOpenEditor(w http.ResponseWriter, r *http.Request) {
	var body OpenEditorInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.OpenEditor(r.Context(), mustCaller(r), body)
	s.writeState(w, r, http.StatusCreated, state, err)
}

func (s *HTTPServer) handleEditorState(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.EditorState(mustCaller(r), sessionID(r))
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleCloseEditor(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseEditor(mustCaller(r), sessionID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSwitchMode(w http.ResponseWriter, r *http.Request) {
	var body SwitchModeInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.SwitchMode(mustCaller(r), sessionID(r), body)
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleEditSource(w http.ResponseWriter, r *http.Request) {
	var body EditContentInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.EditSource(mustCaller(r), sessionID(r), body)
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleEditRich(w http.ResponseWriter, r *http.Request) {
	var body EditContentInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.EditRich(mustCaller(r), sessionID(r), body)
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleSetTitle(w http.ResponseWriter, r *http.Request) {
	var body SetTitleInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.SetTitle(mustCaller(r), sessionID(r), body)
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var body AddTagInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.AddTag(mustCaller(r), sessionID(r), body)
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.RemoveTag(mustCaller(r), sessionID(r), index)
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleAddCoAuthors(w http.ResponseWriter, r *http.Request) {
	var body AddCoAuthorsInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.AddCoAuthors(mustCaller(r), sessionID(r), body)
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleRemoveCoAuthor(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.service.RemoveCoAuthor(mustCaller(r), sessionID(r), index)
	s.writeState(w, r, http.StatusOK, state, err)
}

// handleSelectThumbnail takes the image in the "file" field of a multipart
// form. The file is held by the session until submission uploads it.
func (s *HTTPServer) handleSelectThumbnail(w http.ResponseWriter, r *http.Request) {
	limit := s.service.maxUpload
	if limit <= 0 {
		limit = 5 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.fail(w, r, media.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(file, limit+1))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if n > limit {
		s.fail(w, r, media.ErrTooLarge)
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(buf.Bytes())
	}
	state, err := s.service.SelectThumbnail(mustCaller(r), sessionID(r), editor.Thumbnail{
		Name:        header.Filename,
		ContentType: contentType,
		Data:        buf.Bytes(),
	})
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleClearThumbnail(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.ClearThumbnail(mustCaller(r), sessionID(r))
	s.writeState(w, r, http.StatusOK, state, err)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitInput
	if err := decodeValid(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.Submit(r.Context(), mustCaller(r), sessionID(r), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
