// Package feed builds the article cards shown on the home feed, search
// results and profile pages.
package feed

import (
	"net/url"
	"sort"
	"time"

	"kgr/api/internal/markup"
	"kgr/api/internal/store"
)

const ExcerptLength = 150

// Card is the list view of one article.
type Card struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	AuthorID       string   `json:"authorId"`
	AuthorAvatar   string   `json:"authorAvatar"`
	Excerpt        string   `json:"excerpt"`
	Thumbnail      string   `json:"thumbnail"`
	Tags           []string `json:"tags"`
	Status         string   `json:"status"`
	Views          int64    `json:"views"`
	ViewsLabel     string   `json:"viewsLabel"`
	Published      string   `json:"published"`
	ReadingMinutes int      `json:"readingMinutes"`
}

// NewCard builds the card for an article. author may be nil when the profile
// is gone; the name stored on the article is used then.
func NewCard(a store.Article, author *store.Profile, now time.Time) Card {
	name := a.Author
	avatar := ""
	if author != nil {
		if author.FullName != "" {
			name = author.FullName
		}
		avatar = author.AvatarURL
	}
	if name == "" {
		name = "Unknown"
	}
	if avatar == "" {
		avatar = "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random&color=fff"
	}
	thumb := a.ImageURL
	if thumb == "" {
		thumb = "https://picsum.photos/seed/" + url.PathEscape(a.ID) + "/320/180"
	}
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}

	text := PlainText(a.Content)
	return Card{
		ID:             a.ID,
		Title:          a.Title,
		Author:         name,
		AuthorID:       a.UserID,
		AuthorAvatar:   avatar,
		Excerpt:        truncate(text, ExcerptLength),
		Thumbnail:      thumb,
		Tags:           tags,
		Status:         a.Status,
		Views:          a.Views,
		ViewsLabel:     FormatViewCount(a.Views),
		Published:      FormatRelativeTime(a.CreatedAt, now),
		ReadingMinutes: markup.ReadingTime(text),
	}
}

// Cards builds cards for a page of articles using the given author lookup.
func Cards(articles []store.Article, authors map[string]store.Profile, now time.Time) []Card {
	cards := make([]Card, 0, len(articles))
	for _, a := range articles {
		var author *store.Profile
		if p, ok := authors[a.UserID]; ok {
			author = &p
		}
		cards = append(cards, NewCard(a, author, now))
	}
	return cards
}

// Personalize moves cards sharing a tag with the reader's interests to the
// front, keeping the original order inside both groups.
func Personalize(cards []Card, interests []string) []Card {
	if len(interests) == 0 {
		return cards
	}
	wanted := make(map[string]struct{}, len(interests))
	for _, i := range interests {
		wanted[i] = struct{}{}
	}
	matches := func(c Card) bool {
		for _, t := range c.Tags {
			if _, ok := wanted[t]; ok {
				return true
			}
		}
		return false
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return matches(cards[i]) && !matches(cards[j])
	})
	return cards
}

// WithoutHidden drops the cards whose ids are in hidden. The input slice is
// not modified.
func WithoutHidden(cards []Card, hidden []string) []Card {
	if len(hidden) == 0 {
		return cards
	}
	skip := make(map[string]struct{}, len(hidden))
	for _, id := range hidden {
		skip[id] = struct{}{}
	}
	kept := make([]Card, 0, len(cards))
	for _, c := range cards {
		if _, ok := skip[c.ID]; !ok {
			kept = append(kept, c)
		}
	}
	return kept
}

// FollowedFirst moves cards written by followed authors to the front. Like
// Personalize it keeps the existing order inside both groups, so running it
// after Personalize ranks followed authors first and interests second.
func FollowedFirst(cards []Card, followed []string) []Card {
	if len(followed) == 0 {
		return cards
	}
	authors := make(map[string]struct{}, len(followed))
	for _, id := range followed {
		authors[id] = struct{}{}
	}
	isFollowed := func(c Card) bool {
		_, ok := authors[c.AuthorID]
		return ok
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return isFollowed(cards[i]) && !isFollowed(cards[j])
	})
	return cards
}
