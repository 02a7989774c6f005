package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgr/api/internal/store"
)

func TestFormatViewCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{-4, "0"},
		{999, "999"},
		{1000, "1K"},
		{1500, "1.5K"},
		{12_340, "12.3K"},
		{999_999, "1M"},
		{1_000_000, "1M"},
		{1_500_000, "1.5M"},
		{2_000_000_000, "2000M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatViewCount(tt.in), "%d", tt.in)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "Just now"},
		{time.Minute, "1 minute ago"},
		{45 * time.Minute, "45 minutes ago"},
		{time.Hour, "1 hour ago"},
		{5 * time.Hour, "5 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{14 * 24 * time.Hour, "2 weeks ago"},
		{60 * 24 * time.Hour, "2 months ago"},
		{400 * 24 * time.Hour, "1 year ago"},
		{800 * 24 * time.Hour, "2 years ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRelativeTime(now.Add(-tt.ago), now), tt.ago.String())
	}
}

func TestFormatShortTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Just now", FormatShortTime(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", FormatShortTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", FormatShortTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", FormatShortTime(now.Add(-50*time.Hour), now))
}

func TestPlainTextDropsMarkupChartsAndEmbeds(t *testing.T) {
	src := "# Title\n\nHello **world**! See [docs](https://example.com).\n\n" +
		":::graph\ntype: bar\ndata: 1,2\n:::\n\n" +
		"[video](https://www.youtube.com/watch?v=dQw4w9WgXcQ)\n\n* one\n* two"
	assert.Equal(t, "Title Hello world! See docs. one two", PlainText(src))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", Excerpt("short *text*", 150))
	assert.Equal(t, "abc...", Excerpt("abc def", 4))
	assert.Equal(t, "", Excerpt("", 10))
}

func TestNewCardFallbacks(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a := store.Article{
		ID:        "a1",
		Title:     "Hello",
		Content:   "Some words here.",
		Author:    "",
		Views:     1500,
		CreatedAt: now.Add(-2 * time.Hour),
	}

	card := NewCard(a, nil, now)
	assert.Equal(t, "Unknown", card.Author)
	assert.Equal(t, "https://picsum.photos/seed/a1/320/180", card.Thumbnail)
	assert.Equal(t, "https://ui-avatars.com/api/?name=Unknown&background=random&color=fff", card.AuthorAvatar)
	assert.Equal(t, "1.5K", card.ViewsLabel)
	assert.Equal(t, "2 hours ago", card.Published)
	assert.Equal(t, 1, card.ReadingMinutes)
	assert.Equal(t, "Some words here.", card.Excerpt)
	assert.NotNil(t, card.Tags)

	a.ImageURL = "https://cdn.example/x.png"
	a.Author = "Stored Name"
	card = NewCard(a, &store.Profile{FullName: "Ada Lovelace", AvatarURL: "https://cdn.example/ada.png"}, now)
	assert.Equal(t, "Ada Lovelace", card.Author)
	assert.Equal(t, "https://cdn.example/ada.png", card.AuthorAvatar)
	assert.Equal(t, "https://cdn.example/x.png", card.Thumbnail)

	card = NewCard(a, &store.Profile{Username: "ada"}, now)
	assert.Equal(t, "Stored Name", card.Author)
}

func TestCardsUsesAuthorLookup(t *testing.T) {
	now := time.Now()
	cards := Cards([]store.Article{
		{ID: "a", UserID: "u1", Author: "fallback"},
		{ID: "b", UserID: "u2", Author: "other"},
	}, map[string]store.Profile{"u1": {FullName: "Grace"}}, now)
	require.Len(t, cards, 2)
	assert.Equal(t, "Grace", cards[0].Author)
	assert.Equal(t, "other", cards[1].Author)
}

func TestPersonalizeIsStable(t *testing.T) {
	cards := []Card{
		{ID: "1", Tags: []string{"cooking"}},
		{ID: "2", Tags: []string{"go"}},
		{ID: "3", Tags: []string{}},
		{ID: "4", Tags: []string{"music", "go"}},
	}
	got := Personalize(cards, []string{"go"})

	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"2", "4", "1", "3"}, ids)

	unchanged := Personalize([]Card{{ID: "x"}, {ID: "y"}}, nil)
	assert.Equal(t, "x", unchanged[0].ID)
}

func cardIDs(cards []Card) []string {
	ids := make([]string, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestWithoutHidden(t *testing.T) {
	cards := []Card{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	assert.Equal(t, []string{"1", "3"}, cardIDs(WithoutHidden(cards, []string{"2", "missing"})))
	assert.Equal(t, []string{"1", "2", "3"}, cardIDs(cards))
	assert.Len(t, WithoutHidden(cards, nil), 3)
}

func TestFollowedFirstRanksAboveInterests(t *testing.T) {
	cards := []Card{
		{ID: "1", AuthorID: "a", Tags: []string{"go"}},
		{ID: "2", AuthorID: "b"},
		{ID: "3", AuthorID: "c", Tags: []string{"go"}},
		{ID: "4", AuthorID: "b", Tags: []string{"go"}},
	}
	got := FollowedFirst(Personalize(cards, []string{"go"}), []string{"b"})

	assert.Equal(t, []string{"4", "2", "1", "3"}, cardIDs(got))
}

func TestNewCardCarriesAuthorID(t *testing.T) {
	card := NewCard(store.Article{ID: "a1", UserID: "u1"}, nil, time.Now())
	assert.Equal(t, "u1", card.AuthorID)
}
