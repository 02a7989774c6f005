// Package export turns articles into downloadable PDF and DOCX files.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts the format names used on the wire, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPDF, FormatDOCX:
		return f, nil
	case "":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// Article is the export view of a stored article.
type Article struct {
	ID        string
	Title     string
	Author    string
	Content   string
	Tags      []string
	UpdatedAt time.Time
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing means no headless Chrome binary was found.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrPandocNotFound means the pandoc binary is not on PATH.
	ErrPandocNotFound = errors.New("pandoc not found")
)
