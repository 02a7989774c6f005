package app

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgr/api/internal/store"
)

func newTestHandler(t *testing.T) (http.Handler, *testDeps) {
	t.Helper()
	s, deps := newTestService(t)
	return NewHTTPServer(s, "*", nil).Handler(), deps
}

func doRequest(t *testing.T, h http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSON(t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("Cache-Control"))

	rr = doRequest(t, h, http.MethodGet, "/ready", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", decodeJSON(t, rr)["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/api/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeJSON(t, rr)["code"])

	rr = doRequest(t, h, http.MethodGet, "/api/me", "Bearer not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/api/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decodeJSON(t, rr)["code"])
}

func TestEditorFlowOverHTTP(t *testing.T) {
	h, deps := newTestHandler(t)
	token := bearer(t, "u1", "Ada")

	rr := doRequest(t, h, http.MethodPost, "/api/editor/sessions", token, map[string]any{})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id, _ := decodeJSON(t, rr)["id"].(string)
	require.NotEmpty(t, id)
	base := "/api/editor/sessions/" + id

	rr = doRequest(t, h, http.MethodPut, base+"/title", token, map[string]any{"title": "Hello"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, h, http.MethodPut, base+"/source", token, map[string]any{"content": "Some *text*"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doRequest(t, h, http.MethodPut, base+"/rich", token, map[string]any{"content": "<p>x</p>"})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "WRONG_MODE", decodeJSON(t, rr)["code"])

	rr = doRequest(t, h, http.MethodPost, base+"/tags", token, map[string]any{"tag": "Go"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []any{"go"}, decodeJSON(t, rr)["tags"])

	rr = doRequest(t, h, http.MethodDelete, base+"/tags/5", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodPut, base+"/mode", token, map[string]any{"mode": "formatted"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	state := decodeJSON(t, rr)
	assert.Equal(t, "formatted", state["mode"])
	assert.Contains(t, state["html"], "<em>text</em>")

	rr = doRequest(t, h, http.MethodPost, base+"/submit", token, map[string]any{"status": "published"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	articleID, _ := decodeJSON(t, rr)["articleId"].(string)
	require.NotEmpty(t, articleID)

	article, ok := deps.store.article(articleID)
	require.True(t, ok)
	assert.Equal(t, "Hello", article.Title)
	assert.Equal(t, "Ada", article.Author)

	rr = doRequest(t, h, http.MethodGet, "/api/articles/"+articleID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	view := decodeJSON(t, rr)
	assert.Equal(t, "Hello", view["title"])
	assert.Equal(t, false, view["canEdit"])

	rr = doRequest(t, h, http.MethodGet, "/api/articles/"+articleID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSON(t, rr)["canEdit"])

	rr = doRequest(t, h, http.MethodGet, base, token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInvalidBodies(t *testing.T) {
	h, deps := newTestHandler(t)
	token := bearer(t, "u1", "Ada")
	deps.store.addArticle(store.Article{ID: "a1", UserID: "u1", Status: "draft"})

	rr := doRequest(t, h, http.MethodPost, "/api/editor/sessions", token, "{")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_BODY", decodeJSON(t, rr)["code"])

	rr = doRequest(t, h, http.MethodPatch, "/api/articles/a1/status", token, map[string]any{"status": "archived"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	payload := decodeJSON(t, rr)
	assert.Equal(t, "VALIDATION_FAILED", payload["code"])
	assert.Equal(t, "status must be one of: draft published", payload["error"])

	rr = doRequest(t, h, http.MethodPatch, "/api/articles/a1/status", token, map[string]any{"status": "published"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestAdminRoutesRequireModerator(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.store.addProfile(store.Profile{ID: "root", Role: "admin"})

	rr := doRequest(t, h, http.MethodGet, "/api/admin/stats", bearer(t, "u1", "Ada"), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/api/admin/stats", bearer(t, "root", "Root"), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, float64(2), decodeJSON(t, rr)["users"])

	rr = doRequest(t, h, http.MethodPost, "/api/admin/users/u1/ban", bearer(t, "root", "Root"), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decodeJSON(t, rr)["banned"])

	rr = doRequest(t, h, http.MethodGet, "/api/me", bearer(t, "u1", "Ada"), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "ACCOUNT_BANNED", decodeJSON(t, rr)["code"])
}

func multipartRequest(t *testing.T, path, auth, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", auth)
	return req
}

func TestSelectThumbnailMultipart(t *testing.T) {
	h, _ := newTestHandler(t)
	token := bearer(t, "u1", "Ada")

	rr := doRequest(t, h, http.MethodPost, "/api/editor/sessions", token, map[string]any{})
	require.Equal(t, http.StatusCreated, rr.Code)
	path := "/api/editor/sessions/" + decodeJSON(t, rr)["id"].(string) + "/thumbnail"

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, path, token, "notes.txt", []byte("plain words")))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())
	assert.Equal(t, "INVALID_THUMBNAIL", decodeJSON(t, rr)["code"])

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, path, token, "cover.png", png))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "cover.png", decodeJSON(t, rr)["thumbnail"])

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, multipartRequest(t, path, token, "huge.png", append(png, make([]byte, 2<<20)...)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code, rr.Body.String())

	rr = doRequest(t, h, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	_, hasThumb := decodeJSON(t, rr)["thumbnail"]
	assert.False(t, hasThumb)
}

func TestMarkupEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(t, h, http.MethodPost, "/api/markup/render", "", map[string]any{
		"source": "## Title\n\n**hi**\n\n:::graph\ntype: pie\nlabels: a, b\ndata: 1, 2\n:::",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	payload := decodeJSON(t, rr)
	assert.Contains(t, payload["html"], "<strong>hi</strong>")
	graphs, _ := payload["graphs"].([]any)
	require.Len(t, graphs, 1)
	assert.Equal(t, "pie", graphs[0].(map[string]any)["type"])

	rr = doRequest(t, h, http.MethodPost, "/api/markup/markdown", "", map[string]any{"html": "<p><strong>hi</strong></p>"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, decodeJSON(t, rr)["source"], "**hi**")

	rr = doRequest(t, h, http.MethodPost, "/api/markup/graphs", "", map[string]any{"source": "no charts"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{}, decodeJSON(t, rr)["graphs"])
}

func TestSearchEndpointPassesQuery(t *testing.T) {
	h, deps := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/api/search?q=charts&tag=go&limit=5&offset=10", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fake", decodeJSON(t, rr)["backend"])
	require.Len(t, deps.search.queries, 1)
	q := deps.search.queries[0]
	assert.Equal(t, "charts", q.Text)
	assert.Equal(t, "go", q.Tag)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 10, q.Offset)
}

func TestExportEndpointWritesAttachment(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.store.addArticle(store.Article{ID: "a1", UserID: "u1", Status: "published"})
	token := bearer(t, "u2", "Reader")

	rr := doRequest(t, h, http.MethodGet, "/api/articles/a1/export?format=odt", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/api/articles/a1/export?format=pdf", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment;"))
	assert.Equal(t, "%PDF-1.7", rr.Body.String())
}

func TestNotificationSocketUnavailableWithoutHub(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/api/notifications/ws", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHideAndFollowOverHTTP(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.store.addProfile(store.Profile{ID: "u2", FullName: "Grace"})
	deps.store.addArticle(store.Article{ID: "a1", UserID: "u2", Status: "published"})
	deps.store.addArticle(store.Article{ID: "a2", UserID: "u2", Status: "published"})
	token := bearer(t, "u1", "Ada")

	rr := doRequest(t, h, http.MethodPost, "/api/articles/a1/hide", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decodeJSON(t, rr)["changed"])

	rr = doRequest(t, h, http.MethodGet, "/api/articles", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeJSON(t, rr)["items"], 1)

	rr = doRequest(t, h, http.MethodGet, "/api/articles", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeJSON(t, rr)["items"], 2)

	rr = doRequest(t, h, http.MethodPost, "/api/profiles/u1/follow", token, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodPost, "/api/profiles/u2/follow", token, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decodeJSON(t, rr)["following"])

	rr = doRequest(t, h, http.MethodGet, "/api/me/preferences", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	prefs := decodeJSON(t, rr)
	assert.Equal(t, []any{"a1"}, prefs["hiddenArticles"])
	assert.Equal(t, []any{"u2"}, prefs["followedUsers"])

	rr = doRequest(t, h, http.MethodDelete, "/api/profiles/u2/follow", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decodeJSON(t, rr)["following"])

	rr = doRequest(t, h, http.MethodDelete, "/api/articles/a1/hide", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeJSON(t, rr)["changed"])
}

func TestNavigationEndpoint(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.store.addProfile(store.Profile{ID: "root", Role: "admin"})
	token := bearer(t, "u1", "Ada")

	rr := doRequest(t, h, http.MethodPost, "/api/navigation", token, map[string]any{"page": "basement"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_FAILED", decodeJSON(t, rr)["code"])

	rr = doRequest(t, h, http.MethodPost, "/api/navigation", token, map[string]any{"page": "viewer", "url": "/articles/a1", "ref": "home"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "viewer", decodeJSON(t, rr)["page"])

	rr = doRequest(t, h, http.MethodGet, "/api/admin/users/u1/navigation", bearer(t, "root", "Root"), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decodeJSON(t, rr)["items"], 1)
}

func TestAdminExportEndpoint(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.store.addProfile(store.Profile{ID: "root", Role: "admin"})
	deps.store.addProfile(store.Profile{ID: "u9", HiddenArticles: []string{"a1"}})
	adminToken := bearer(t, "root", "Root")

	rr := doRequest(t, h, http.MethodGet, "/api/admin/export?format=csv", bearer(t, "u1", "Ada"), nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/api/admin/export?format=xml", adminToken, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, h, http.MethodGet, "/api/admin/export?format=csv", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, `attachment; filename="kgr-users-2026-03-01.csv"`, rr.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Name,Username,Role,Articles,Views,Banned,Joined\n"))

	rr = doRequest(t, h, http.MethodGet, "/api/admin/export?format=json", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Len(t, decodeJSON(t, rr)["users"], 3)

	rr = doRequest(t, h, http.MethodDelete, "/api/admin/users/u9/hidden/a1", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, true, decodeJSON(t, rr)["changed"])
}
