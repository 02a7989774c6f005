package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"kgr/api/internal/markup"
)

// ArticleSource loads the article being exported.
type ArticleSource interface {
	ExportArticle(ctx context.Context, id string) (Article, error)
}

type Renderer interface {
	Render(source string) string
}

// converter turns a complete HTML document into the target file format.
type converter func(ctx context.Context, document string) ([]byte, error)

type Service struct {
	articles   ArticleSource
	renderer   Renderer
	logger     *zap.Logger
	converters map[Format]converter
}

func NewService(articles ArticleSource, renderer Renderer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		articles: articles,
		renderer: renderer,
		logger:   logger.Named("export"),
		converters: map[Format]converter{
			FormatPDF:  printPDF,
			FormatDOCX: pandocDOCX,
		},
	}
}

// Export renders the article into the requested format.
func (s *Service) Export(ctx context.Context, articleID string, format Format) (*Result, error) {
	convert, ok := s.converters[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	article, err := s.articles.ExportArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}

	document, err := s.Document(article)
	if err != nil {
		return nil, err
	}

	data, err := convert(ctx, document)
	if err != nil {
		s.logger.Warn("export failed", zap.String("article", articleID), zap.String("format", string(format)), zap.Error(err))
		return nil, err
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(article.Title) + "." + string(format),
		MimeType: mimeType(format),
	}, nil
}

// Document builds the standalone HTML document both converters consume.
func (s *Service) Document(article Article) (string, error) {
	body, err := FlattenForPrint(s.renderer.Render(article.Content))
	if err != nil {
		return "", fmt.Errorf("flatten article html: %w", err)
	}
	document, err := RenderArticleHTML(TemplateData{
		Title:          article.Title,
		Author:         article.Author,
		Tags:           article.Tags,
		UpdatedAt:      article.UpdatedAt,
		ReadingMinutes: markup.ReadingTime(article.Content),
		ContentHTML:    template.HTML(body),
	})
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return document, nil
}

func mimeType(format Format) string {
	switch format {
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/pdf"
	}
}

// sanitizeFilename keeps ASCII letters, digits, dashes and underscores,
// turning spaces into dashes, and caps the result at 50 bytes.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
		if b.Len() >= 50 {
			break
		}
	}
	if b.Len() == 0 {
		return "article"
	}
	return b.String()
}
