package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/article.html
var templateFS embed.FS

var articleTemplate = template.Must(template.New("article.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/article.html"))

// TemplateData is what the article document template renders.
type TemplateData struct {
	Title          string
	Author         string
	Tags           []string
	UpdatedAt      time.Time
	ReadingMinutes int
	ContentHTML    template.HTML
}

func RenderArticleHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := articleTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
