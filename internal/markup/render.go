package markup

import (
	"bytes"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Renderer turns article source text into the rich HTML shown to editors and
// readers. It is safe for concurrent use.
type Renderer struct {
	md        goldmark.Markdown
	newID     func() string
	sanitizer *bluemonday.Policy
}

type rendererConfig struct {
	newID      func() string
	sanitizer  *bluemonday.Policy
	headingIDs bool
}

type RendererOption func(*rendererConfig)

// WithIDGenerator overrides how chart placeholder ids are generated.
func WithIDGenerator(fn func() string) RendererOption {
	return func(c *rendererConfig) { c.newID = fn }
}

// WithSanitizer runs the policy over every rendered fragment.
func WithSanitizer(p *bluemonday.Policy) RendererOption {
	return func(c *rendererConfig) { c.sanitizer = p }
}

// WithHeadingIDs gives headings slug ids so an outline can link to them.
func WithHeadingIDs() RendererOption {
	return func(c *rendererConfig) { c.headingIDs = true }
}

func NewRenderer(opts ...RendererOption) *Renderer {
	cfg := rendererConfig{newID: chartID}
	for _, opt := range opts {
		opt(&cfg)
	}

	var parserOpts []parser.Option
	if cfg.headingIDs {
		parserOpts = append(parserOpts, parser.WithAutoHeadingID())
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(
			gmhtml.WithHardWraps(),
			gmhtml.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&linkRenderer{}, 500)),
		),
	)
	return &Renderer{md: md, newID: cfg.newID, sanitizer: cfg.sanitizer}
}

// Render never fails. Chart blocks become placeholders, YouTube watch links
// become embedded players and every other link opens in a new tab.
func (r *Renderer) Render(source string) string {
	if source == "" {
		return ""
	}
	prepared := ReplaceGraphBlocks(source, r.newID)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(prepared), &buf); err != nil {
		return "<p>" + html.EscapeString(source) + "</p>"
	}
	out := buf.String()
	if r.sanitizer != nil {
		out = r.sanitizer.Sanitize(out)
	}
	return out
}

// ToMarkdown lets a Renderer act as the two-way converter editors need.
func (r *Renderer) ToMarkdown(fragment string) string {
	return ToMarkdown(fragment)
}

type linkRenderer struct{}

func (r *linkRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
}

func (r *linkRenderer) renderLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Link)
	if id, ok := watchID(string(n.Destination)); ok {
		if entering {
			writeEmbed(w, id)
		}
		return ast.WalkSkipChildren, nil
	}
	if !entering {
		_, _ = w.WriteString("</a>")
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(`<a href="`)
	if !gmhtml.IsDangerousURL(n.Destination) {
		_, _ = w.Write(util.EscapeHTML(util.URLEscape(n.Destination, true)))
	}
	_ = w.WriteByte('"')
	if n.Title != nil {
		_, _ = w.WriteString(` title="`)
		_, _ = w.Write(util.EscapeHTML(n.Title))
		_ = w.WriteByte('"')
	}
	_, _ = w.WriteString(` target="_blank" rel="noopener">`)
	return ast.WalkContinue, nil
}

func (r *linkRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.AutoLink)
	if !entering {
		return ast.WalkContinue, nil
	}
	url := n.URL(source)
	if id, ok := watchID(string(url)); ok {
		writeEmbed(w, id)
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(`<a href="`)
	if n.AutoLinkType == ast.AutoLinkEmail && !bytes.HasPrefix(bytes.ToLower(url), []byte("mailto:")) {
		_, _ = w.WriteString("mailto:")
	}
	_, _ = w.Write(util.EscapeHTML(util.URLEscape(url, false)))
	_, _ = w.WriteString(`" target="_blank" rel="noopener">`)
	_, _ = w.Write(util.EscapeHTML(n.Label(source)))
	_, _ = w.WriteString("</a>")
	return ast.WalkContinue, nil
}

func writeEmbed(w util.BufWriter, id string) {
	_, _ = w.WriteString(`<iframe width="560" height="315" src="`)
	_, _ = w.WriteString(html.EscapeString(EmbedURL(id)))
	_, _ = w.WriteString(`" frameborder="0" allowfullscreen></iframe>`)
}
