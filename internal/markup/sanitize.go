package markup

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var embedSrc = regexp.MustCompile(`^https://www\.youtube\.com/embed/[A-Za-z0-9_-]{11}$`)

// ReaderPolicy is the sanitizer applied to article HTML served to readers.
// User generated markup is allowed, iframes only for YouTube embeds and chart
// placeholders keep their data-config.
func ReaderPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	p.AllowElements("iframe", "canvas")
	p.AllowAttrs("src").Matching(embedSrc).OnElements("iframe")
	p.AllowAttrs("width", "height", "frameborder", "allowfullscreen").OnElements("iframe")
	p.AllowAttrs("class", "id").OnElements("div", "canvas", "h2", "h3")
	p.AllowDataAttributes()
	return p
}
