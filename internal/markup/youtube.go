package markup

import (
	"regexp"
	"strings"
)

var youtubePattern = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

// YouTubeID extracts the 11 character video id from any of the usual YouTube
// URL shapes (watch, short, embed, v/, user uploads).
func YouTubeID(rawURL string) (string, bool) {
	match := youtubePattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if match == nil || len(match[2]) != 11 {
		return "", false
	}
	return match[2], true
}

func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func EmbedURL(id string) string {
	return "https://www.youtube.com/embed/" + id
}

// watchID only accepts "watch" links; other YouTube URLs stay plain anchors.
func watchID(href string) (string, bool) {
	if !strings.Contains(href, "youtube.com/watch?v=") {
		return "", false
	}
	return YouTubeID(href)
}

func embedID(src string) (string, bool) {
	if !strings.Contains(src, "youtube.com/embed/") {
		return "", false
	}
	return YouTubeID(src)
}
