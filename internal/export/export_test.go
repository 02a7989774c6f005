package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kgr/api/internal/markup"
)

type fakeArticles map[string]Article

func (f fakeArticles) ExportArticle(_ context.Context, id string) (Article, error) {
	a, ok := f[id]
	if !ok {
		return Article{}, errors.New("not found")
	}
	return a, nil
}

func newTestService(articles fakeArticles) (*Service, *string) {
	svc := NewService(articles, markup.NewRenderer(markup.WithIDGenerator(func() string { return "x1" })), nil)
	captured := new(string)
	fake := func(_ context.Context, document string) ([]byte, error) {
		*captured = document
		return []byte("binary"), nil
	}
	svc.converters = map[Format]converter{FormatPDF: fake, FormatDOCX: fake}
	return svc, captured
}

const chartArticle = "# Sales\n\nIntro text.\n\n:::graph\ntype: bar\ntitle: Quarterly\nlabels: Q1, Q2, Q3\ndata: 10, 20.5, oops\n:::\n\nOutro."

func TestExportBuildsDocumentWithChartTable(t *testing.T) {
	svc, captured := newTestService(fakeArticles{
		"a1": {ID: "a1", Title: "Sales Report: 2024!", Author: "Ada", Content: chartArticle, Tags: []string{"data"}, UpdatedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
	})

	res, err := svc.Export(context.Background(), "a1", FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, []byte("binary"), res.Data)
	assert.Equal(t, "Sales-Report-2024.pdf", res.Filename)
	assert.Equal(t, "application/pdf", res.MimeType)

	doc := *captured
	assert.Contains(t, doc, "<title>Sales Report: 2024!</title>")
	assert.Contains(t, doc, "By Ada")
	assert.Contains(t, doc, "March 5, 2024")
	assert.Contains(t, doc, "#data")
	assert.Contains(t, doc, "<caption>Quarterly (bar chart)</caption>")
	assert.Contains(t, doc, "<td>Q2</td><td>20.5</td>")
	assert.Contains(t, doc, "<td>Q3</td><td>n/a</td>")
	assert.NotContains(t, doc, "<canvas")
	assert.Contains(t, doc, "Outro.")
}

func TestExportDOCXFilenameAndMime(t *testing.T) {
	svc, _ := newTestService(fakeArticles{"a1": {Title: "", Content: "hello"}})

	res, err := svc.Export(context.Background(), "a1", FormatDOCX)
	require.NoError(t, err)
	assert.Equal(t, "article.docx", res.Filename)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", res.MimeType)
}

func TestExportErrors(t *testing.T) {
	svc, _ := newTestService(fakeArticles{})

	_, err := svc.Export(context.Background(), "a1", Format("odt"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = svc.Export(context.Background(), "missing", FormatPDF)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" DOCX ")
	require.NoError(t, err)
	assert.Equal(t, FormatDOCX, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	_, err = ParseFormat("rtf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFlattenForPrintReplacesVideoEmbeds(t *testing.T) {
	out, err := FlattenForPrint(`<p>before</p><iframe width="560" height="315" src="https://www.youtube.com/embed/dQw4w9WgXcQ" frameborder="0" allowfullscreen></iframe>`)
	require.NoError(t, err)
	assert.Equal(t, `<p>before</p><p>Video: <a href="https://www.youtube.com/watch?v=dQw4w9WgXcQ">https://www.youtube.com/watch?v=dQw4w9WgXcQ</a></p>`, out)
}

func TestFlattenForPrintLeavesOtherMarkup(t *testing.T) {
	in := `<h2>Title</h2><div class="note"><p>keep <strong>me</strong></p></div>`
	out, err := FlattenForPrint(in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Simple Title":           "Simple-Title",
		"  Trimmed  ":            "Trimmed",
		"Ünïcödé only ☃":         "ncd-only-",
		"!!!":                    "article",
		strings.Repeat("a", 80):  strings.Repeat("a", 50),
		"snake_case-and-dashes": "snake_case-and-dashes",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFilename(in), in)
	}
}
