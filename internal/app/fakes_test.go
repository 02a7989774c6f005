package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kgr/api/internal/auth"
	"kgr/api/internal/autosave"
	"kgr/api/internal/editor"
	"kgr/api/internal/export"
	"kgr/api/internal/history"
	"kgr/api/internal/markup"
	"kgr/api/internal/media"
	"kgr/api/internal/notify"
	"kgr/api/internal/search"
	"kgr/api/internal/store"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore keeps records in maps. The Fn fields override single methods.
type fakeStore struct {
	mu            sync.Mutex
	profiles      map[string]store.Profile
	articles      map[string]store.Article
	notifications []store.Notification
	reports       []store.Report
	navigation    []store.NavEntry
	seq           int

	getArticleFn        func(context.Context, string) (store.Article, error)
	incrementViewsFn    func(context.Context, string) (int64, error)
	insertForAllFn      func(context.Context, string, string) (int64, error)
	usernameAvailableFn func(context.Context, string, string) (bool, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: make(map[string]store.Profile),
		articles: make(map[string]store.Article),
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) addProfile(p store.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Role == "" {
		p.Role = "author"
	}
	f.profiles[p.ID] = p
}

func (f *fakeStore) addArticle(a store.Article) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.articles[a.ID] = a
}

func (f *fakeStore) article(id string) (store.Article, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	return a, ok
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) EnsureProfile(_ context.Context, id, fullName, role string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	if role == "" {
		role = "author"
	}
	p := store.Profile{ID: id, FullName: fullName, Role: role, Interests: []string{}, CreatedAt: fixedNow}
	f.profiles[id] = p
	return p, nil
}

func (f *fakeStore) GetProfile(_ context.Context, id string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetProfileByUsername(_ context.Context, username string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if strings.EqualFold(p.Username, username) {
			return p, nil
		}
	}
	return store.Profile{}, store.ErrNotFound
}

func (f *fakeStore) UsernameAvailable(ctx context.Context, username, exceptID string) (bool, error) {
	if f.usernameAvailableFn != nil {
		return f.usernameAvailableFn(ctx, username, exceptID)
	}
	p, err := f.GetProfileByUsername(ctx, username)
	if err != nil {
		return true, nil
	}
	return p.ID == exceptID, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, p store.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[p.ID]; !ok {
		return store.ErrNotFound
	}
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeStore) ListProfiles(context.Context) ([]store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Profile, 0, len(f.profiles))
	for _, p := range f.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SetBanned(_ context.Context, id string, banned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Banned = banned
	f.profiles[id] = p
	return nil
}

func (f *fakeStore) DeleteProfile(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.profiles, id)
	return nil
}

func (f *fakeStore) CreateArticle(_ context.Context, a store.Article) (store.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.CreatedAt, a.UpdatedAt = fixedNow, fixedNow
	f.articles[a.ID] = a
	return a, nil
}

func (f *fakeStore) UpdateArticle(_ context.Context, a store.Article) (store.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.articles[a.ID]; !ok {
		return store.Article{}, store.ErrNotFound
	}
	a.UpdatedAt = fixedNow
	f.articles[a.ID] = a
	return a, nil
}

func (f *fakeStore) GetArticle(ctx context.Context, id string) (store.Article, error) {
	if f.getArticleFn != nil {
		return f.getArticleFn(ctx, id)
	}
	a, ok := f.article(id)
	if !ok {
		return store.Article{}, fmt.Errorf("get article: %w", store.ErrNotFound)
	}
	return a, nil
}

func (f *fakeStore) listWhere(keep func(store.Article) bool) []store.Article {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Article
	for _, a := range f.articles {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListPublished(_ context.Context, limit, offset int) ([]store.Article, error) {
	out := f.listWhere(func(a store.Article) bool { return a.Status == store.StatusPublished })
	if offset >= len(out) {
		return []store.Article{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListByUser(_ context.Context, userID, username string) ([]store.Article, error) {
	return f.listWhere(func(a store.Article) bool {
		return a.UserID == userID || (username != "" && containsFold(a.CoAuthors, username))
	}), nil
}

func (f *fakeStore) ListAll(context.Context) ([]store.Article, error) {
	return f.listWhere(func(store.Article) bool { return true }), nil
}

func (f *fakeStore) SetArticleStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	f.articles[id] = a
	return nil
}

func (f *fakeStore) DeleteArticle(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.articles[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.articles, id)
	return nil
}

func (f *fakeStore) IncrementViews(ctx context.Context, id string) (int64, error) {
	if f.incrementViewsFn != nil {
		return f.incrementViewsFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.articles[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	a.Views++
	f.articles[id] = a
	return a.Views, nil
}

func (f *fakeStore) Stats(context.Context) (store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := store.Stats{Users: len(f.profiles), Articles: len(f.articles)}
	for _, a := range f.articles {
		if a.Status == store.StatusPublished {
			stats.Published++
		} else {
			stats.Drafts++
		}
		stats.TotalViews += a.Views
	}
	return stats, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, userID, message, link string) (store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := store.Notification{ID: f.nextID("n"), UserID: userID, Message: message, Link: link, CreatedAt: fixedNow}
	f.notifications = append(f.notifications, n)
	return n, nil
}

func (f *fakeStore) InsertNotificationForAll(ctx context.Context, message, link string) (int64, error) {
	if f.insertForAllFn != nil {
		return f.insertForAllFn(ctx, message, link)
	}
	profiles, _ := f.ListProfiles(ctx)
	for _, p := range profiles {
		if _, err := f.InsertNotification(ctx, p.ID, message, link); err != nil {
			return 0, err
		}
	}
	return int64(len(profiles)), nil
}

func (f *fakeStore) userNotifications(userID string) []store.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string) ([]store.Notification, error) {
	return f.userNotifications(userID), nil
}

func (f *fakeStore) CountUnread(_ context.Context, userID string) (int, error) {
	count := 0
	for _, n := range f.userNotifications(userID) {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkAllRead(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].UserID == userID {
			f.notifications[i].IsRead = true
		}
	}
	return nil
}

func (f *fakeStore) MarkRead(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id && f.notifications[i].UserID == userID {
			f.notifications[i].IsRead = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) CreateReport(_ context.Context, articleID, reporterID, reason string) (store.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := store.Report{ID: f.nextID("r"), ArticleID: articleID, ReporterID: reporterID, Reason: reason, CreatedAt: fixedNow}
	if a, ok := f.articles[articleID]; ok {
		r.ArticleTitle = a.Title
	}
	f.reports = append(f.reports, r)
	return r, nil
}

func (f *fakeStore) ListReports(context.Context) ([]store.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Report{}, f.reports...), nil
}

func (f *fakeStore) HideArticle(_ context.Context, userID, articleID string) (bool, error) {
	return f.updateList(userID, func(p *store.Profile) *[]string { return &p.HiddenArticles }, articleID, true)
}

func (f *fakeStore) UnhideArticle(_ context.Context, userID, articleID string) (bool, error) {
	return f.updateList(userID, func(p *store.Profile) *[]string { return &p.HiddenArticles }, articleID, false)
}

func (f *fakeStore) FollowUser(_ context.Context, userID, targetID string) (bool, error) {
	return f.updateList(userID, func(p *store.Profile) *[]string { return &p.FollowedUsers }, targetID, true)
}

func (f *fakeStore) UnfollowUser(_ context.Context, userID, targetID string) (bool, error) {
	return f.updateList(userID, func(p *store.Profile) *[]string { return &p.FollowedUsers }, targetID, false)
}

func (f *fakeStore) updateList(userID string, field func(*store.Profile) *[]string, value string, add bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return false, store.ErrNotFound
	}
	list := field(&p)
	idx := -1
	for i, v := range *list {
		if v == value {
			idx = i
			break
		}
	}
	switch {
	case add && idx < 0:
		*list = append(append([]string{}, *list...), value)
	case !add && idx >= 0:
		*list = append(append([]string{}, (*list)[:idx]...), (*list)[idx+1:]...)
	default:
		return false, nil
	}
	f.profiles[userID] = p
	return true, nil
}

func (f *fakeStore) InsertNavigation(_ context.Context, e store.NavEntry) (store.NavEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = f.nextID("nav")
	e.CreatedAt = fixedNow
	f.navigation = append(f.navigation, e)
	return e, nil
}

func (f *fakeStore) ListNavigation(_ context.Context, userID string, limit int) ([]store.NavEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.NavEntry, 0)
	for i := len(f.navigation) - 1; i >= 0 && len(out) < limit; i-- {
		if f.navigation[i].UserID == userID {
			out = append(out, f.navigation[i])
		}
	}
	return out, nil
}

type fakeDrafts struct {
	mu      sync.Mutex
	drafts  map[string]autosave.Draft
	cleared []string
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{drafts: make(map[string]autosave.Draft)}
}

func (f *fakeDrafts) Save(_ context.Context, userID string, d autosave.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[userID] = d
	return nil
}

func (f *fakeDrafts) Load(_ context.Context, userID string) (autosave.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[userID]
	if !ok {
		return autosave.Draft{}, autosave.ErrNotFound
	}
	return d, nil
}

func (f *fakeDrafts) Clear(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, userID)
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeDrafts) get(userID string) (autosave.Draft, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[userID]
	return d, ok
}

type recordedRevision struct {
	articleID, content, author string
}

type fakeHistory struct {
	mu       sync.Mutex
	recorded []recordedRevision
	removed  []string
	contents map[string]string
}

func (f *fakeHistory) Record(articleID, content, author, message string) (history.Revision, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, recordedRevision{articleID, content, author})
	return history.Revision{Hash: "abc123", Message: message, Author: author}, true, nil
}

func (f *fakeHistory) History(articleID string, limit int) ([]history.Revision, error) {
	return []history.Revision{{Hash: "abc123", ShortHash: "abc123", Message: "first"}}, nil
}

func (f *fakeHistory) ContentAt(articleID, hash string) (string, history.Revision, error) {
	content, ok := f.contents[hash]
	if !ok {
		return "", history.Revision{}, history.ErrRevisionNotFound
	}
	return content, history.Revision{Hash: hash}, nil
}

func (f *fakeHistory) Remove(articleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, articleID)
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	indexed []search.ArticleRecord
	removed []string
	queries []search.Query
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return search.Response{Results: []search.Result{{ID: "a1", Title: "Hit"}}, Total: 1, Query: q.Text, Backend: "fake"}
}

func (f *fakeSearch) IndexArticle(r search.ArticleRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, r)
}

func (f *fakeSearch) RemoveArticle(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

type fakeUploader struct {
	files []media.File
	err   error
}

func (f *fakeUploader) UploadThumbnail(_ context.Context, ownerID string, file media.File) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.files = append(f.files, file)
	return "https://cdn.test/" + ownerID + "/" + file.Name, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	published []notify.Notification
	broadcast []notify.Notification
}

func (f *fakeNotifier) Publish(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, n)
	return nil
}

func (f *fakeNotifier) Broadcast(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, n)
	return nil
}

func (f *fakeNotifier) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeExporter struct {
	calls []string
}

func (f *fakeExporter) Export(_ context.Context, articleID string, format export.Format) (*export.Result, error) {
	f.calls = append(f.calls, articleID+":"+string(format))
	return &export.Result{Data: []byte("%PDF-1.7"), Filename: "article.pdf", MimeType: "application/pdf"}, nil
}

type testDeps struct {
	store    *fakeStore
	drafts   *fakeDrafts
	history  *fakeHistory
	search   *fakeSearch
	uploader *fakeUploader
	notifier *fakeNotifier
	exporter *fakeExporter
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:    newFakeStore(),
		drafts:   newFakeDrafts(),
		history:  &fakeHistory{contents: map[string]string{}},
		search:   &fakeSearch{},
		uploader: &fakeUploader{},
		notifier: &fakeNotifier{},
		exporter: &fakeExporter{},
	}
	s := &Service{
		store:     deps.store,
		drafts:    deps.drafts,
		history:   deps.history,
		search:    deps.search,
		uploader:  deps.uploader,
		notifier:  deps.notifier,
		exporter:  deps.exporter,
		verifier:  auth.NewVerifier(testSecret, ""),
		converter: markup.NewRenderer(),
		reader:    markup.NewRenderer(markup.WithHeadingIDs()),
		maxUpload: 1 << 20,
		logger:    zap.NewNop(),
		now:       func() time.Time { return fixedNow },
	}
	s.sessions = editor.NewRegistry(time.Hour, 10*time.Millisecond, s.autosaveDraft)
	return s, deps
}

func author(id, username string) Caller {
	return Caller{UserID: id, Name: "Author " + id, Username: username, Role: "author"}
}

func admin(id string) Caller {
	return Caller{UserID: id, Name: "Admin", Role: "admin"}
}

func bearer(t *testing.T, userID, fullName string) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, "", auth.Identity{UserID: userID, FullName: fullName}, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}
