package store

import "time"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

type Profile struct {
	ID        string
	Username  string
	FullName  string
	AvatarURL string
	Role      string
	Interests []string
	Banned    bool
	CreatedAt time.Time
	// HiddenArticles are article ids kept out of this user's listings.
	HiddenArticles []string
	FollowedUsers  []string
}

// DisplayName is what articles show as their author.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	if p.Username != "" {
		return p.Username
	}
	return "Anonymous"
}

type Article struct {
	ID        string
	Title     string
	Content   string
	Status    string
	UserID    string
	Author    string
	ImageURL  string
	Tags      []string
	CoAuthors []string
	Views     int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Message   string
	Link      string
	IsRead    bool
	CreatedAt time.Time
}

type Report struct {
	ID           string
	ArticleID    string
	ArticleTitle string
	ReporterID   string
	Reason       string
	CreatedAt    time.Time
}

type Stats struct {
	Users      int
	Articles   int
	Published  int
	Drafts     int
	TotalViews int64
}

// NavEntry is one page visit logged by a signed-in client.
type NavEntry struct {
	ID        string
	UserID    string
	Page      string
	URL       string
	Ref       string
	CreatedAt time.Time
}
