package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIDs() RendererOption {
	return WithIDGenerator(func() string { return "abc123xyz" })
}

func TestRenderParagraphsUseHardBreaks(t *testing.T) {
	r := NewRenderer()
	assert.Equal(t, "<p>line one<br>\nline two</p>\n", r.Render("line one\nline two"))
}

func TestRenderEmptySource(t *testing.T) {
	assert.Equal(t, "", NewRenderer().Render(""))
}

func TestRenderBold(t *testing.T) {
	assert.Equal(t, "<p>Some <strong>bold</strong> text</p>\n", NewRenderer().Render("Some **bold** text"))
}

func TestRenderLinksOpenInNewTab(t *testing.T) {
	out := NewRenderer().Render(`[site](https://example.com "Example")`)
	assert.Contains(t, out, `<a href="https://example.com" title="Example" target="_blank" rel="noopener">site</a>`)
}

func TestRenderAutoLinks(t *testing.T) {
	out := NewRenderer().Render("see https://example.com/docs today")
	assert.Contains(t, out, `<a href="https://example.com/docs" target="_blank" rel="noopener">https://example.com/docs</a>`)
}

func TestRenderYouTubeWatchLinkBecomesEmbed(t *testing.T) {
	r := NewRenderer()
	cases := map[string]string{
		"markdown link": "[my video](https://www.youtube.com/watch?v=dQw4w9WgXcQ)",
		"bare url":      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}
	for name, source := range cases {
		t.Run(name, func(t *testing.T) {
			out := r.Render(source)
			assert.Contains(t, out, `<iframe width="560" height="315" src="https://www.youtube.com/embed/dQw4w9WgXcQ" frameborder="0" allowfullscreen></iframe>`)
			assert.NotContains(t, out, "<a ")
			assert.NotContains(t, out, "my video")
		})
	}
}

func TestRenderNonWatchYouTubeLinkStaysAnchor(t *testing.T) {
	out := NewRenderer().Render("[short](https://youtu.be/dQw4w9WgXcQ)")
	assert.Contains(t, out, `<a href="https://youtu.be/dQw4w9WgXcQ"`)
	assert.NotContains(t, out, "<iframe")
}

func TestRenderGraphBlockPlaceholder(t *testing.T) {
	r := NewRenderer(fixedIDs())
	out := r.Render("Intro\n\n:::graph\ntitle: Growth\n\ndata: 1,2\n:::\n\nOutro")
	assert.Contains(t, out, `<div class="chart-wrapper"><canvas id="chart-abc123xyz" class="article-graph" data-config="title: Growth&#10;&#10;data: 1,2"></canvas></div>`)
	assert.Contains(t, out, "<p>Intro</p>")
	assert.Contains(t, out, "<p>Outro</p>")
}

func TestRenderGitHubFlavoredTables(t *testing.T) {
	out := NewRenderer().Render("| a | b |\n|---|---|\n| 1 | 2 |")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>1</td>")
}

func TestRenderWithSanitizerStripsScripts(t *testing.T) {
	r := NewRenderer(WithSanitizer(ReaderPolicy()))
	out := r.Render("<script>alert(1)</script>\n\nHello **there**")
	assert.NotContains(t, out, "<script")
	assert.Contains(t, out, "<strong>there</strong>")
}

func TestRenderHeadingIDsFeedOutline(t *testing.T) {
	r := NewRenderer(WithHeadingIDs())
	out := r.Render("## Intro\n\ntext\n\n### Detail\n\nmore")
	headings := Outline(out)
	require.Len(t, headings, 2)
	assert.Equal(t, Heading{Level: 2, Text: "Intro", ID: "intro"}, headings[0])
	assert.Equal(t, Heading{Level: 3, Text: "Detail", ID: "detail"}, headings[1])
}

func TestOutlineFallsBackToPositionalIDs(t *testing.T) {
	headings := Outline("<h1>Top</h1><h2>A</h2><p>x</p><h3>B</h3>")
	require.Len(t, headings, 2)
	assert.Equal(t, "section-0", headings[0].ID)
	assert.Equal(t, "section-1", headings[1].ID)
	assert.Equal(t, "B", headings[1].Text)
}

func TestReadingTime(t *testing.T) {
	assert.Equal(t, 0, ReadingTime("   "))
	assert.Equal(t, 1, ReadingTime("just a few words"))

	words := make([]byte, 0, 201*2)
	for i := 0; i < 201; i++ {
		words = append(words, 'w', ' ')
	}
	assert.Equal(t, 2, ReadingTime(string(words)))
}
