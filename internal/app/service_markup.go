package app

import (
	"kgr/api/internal/feed"
	"kgr/api/internal/markup"
)

type SourceInput struct {
	Source string `json:"source"`
}

type HTMLInput struct {
	HTML string `json:"html"`
}

type RenderResult struct {
	HTML           string               `json:"html"`
	Graphs         []markup.GraphConfig `json:"graphs"`
	Outline        []markup.Heading     `json:"outline"`
	ReadingMinutes int                  `json:"readingMinutes"`
}

// RenderMarkup converts source text the same way the editor does when it
// switches to the formatted surface.
func (s *Service) RenderMarkup(in SourceInput) RenderResult {
	rendered := s.converter.Render(in.Source)
	return RenderResult{
		HTML:           rendered,
		Graphs:         nonNilGraphs(markup.ExtractGraphs(in.Source)),
		Outline:        nonNilHeadings(markup.Outline(rendered)),
		ReadingMinutes: markup.ReadingTime(feed.PlainText(in.Source)),
	}
}

func (s *Service) MarkdownFromHTML(in HTMLInput) string {
	return s.converter.ToMarkdown(in.HTML)
}

func (s *Service) Graphs(in SourceInput) []markup.GraphConfig {
	return nonNilGraphs(markup.ExtractGraphs(in.Source))
}
