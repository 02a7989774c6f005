package editor

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeSource    Mode = "source"
	ModeFormatted Mode = "formatted"
)

func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeSource:
		return ModeSource, nil
	case ModeFormatted, "rich", "preview":
		return ModeFormatted, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, value)
}

// Representation is the content of the active editing surface: either the
// raw source text or the rich HTML rendered from it.
type Representation interface {
	Mode() Mode
	Content() string
	isRepresentation()
}

type Source struct {
	Text string
}

func (Source) Mode() Mode { return ModeSource }
func (s Source) Content() string { return s.Text }
func (Source) isRepresentation() {}

type Rich struct {
	HTML string
}

func (Rich) Mode() Mode { return ModeFormatted }
func (r Rich) Content() string { return r.HTML }
func (Rich) isRepresentation() {}

// Converter is the two-way text transform between the surfaces.
// *markup.Renderer satisfies it.
type Converter interface {
	Render(source string) string
	ToMarkdown(html string) string
}

// Switch maps rep onto the target mode with exactly one conversion. Asking
// for the mode rep is already in returns rep untouched so lossy conversions
// never compound.
func Switch(rep Representation, target Mode, conv Converter) Representation {
	if rep == nil {
		rep = Source{}
	}
	if rep.Mode() == target {
		return rep
	}
	switch r := rep.(type) {
	case Source:
		return Rich{HTML: conv.Render(r.Text)}
	case Rich:
		return Source{Text: conv.ToMarkdown(r.HTML)}
	}
	return rep
}
