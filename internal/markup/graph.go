package markup

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	DefaultChartType  = "line"
	DefaultChartTitle = "Data Points"
)

var graphBlockPattern = regexp.MustCompile(`:::graph([\s\S]*?):::`)

// GraphConfig is the flat key/value form of a :::graph block body. Labels and
// Data keep their raw comma separated text; LabelList and Values split them.
type GraphConfig struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Labels string `json:"labels"`
	Data   string `json:"data"`
}

// ParseGraphConfig reads "key: value" lines. Keys are case-insensitive, only
// the first colon separates key from value, and lines without a colon or with
// an unknown key are ignored.
func ParseGraphConfig(body string) GraphConfig {
	var cfg GraphConfig
	for _, line := range strings.Split(body, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		switch key {
		case "type":
			cfg.Type = value
		case "title":
			cfg.Title = value
		case "labels":
			cfg.Labels = value
		case "data":
			cfg.Data = value
		}
	}
	if cfg.Type == "" {
		cfg.Type = DefaultChartType
	}
	if cfg.Title == "" {
		cfg.Title = DefaultChartTitle
	}
	return cfg
}

func (c GraphConfig) LabelList() []string {
	if strings.TrimSpace(c.Labels) == "" {
		return []string{}
	}
	parts := strings.Split(c.Labels, ",")
	labels := make([]string, 0, len(parts))
	for _, part := range parts {
		labels = append(labels, strings.TrimSpace(part))
	}
	return labels
}

// Values parses Data as numbers. Tokens that are not numbers become NaN; the
// chart consumer decides what to do with them.
func (c GraphConfig) Values() []float64 {
	if strings.TrimSpace(c.Data) == "" {
		return []float64{}
	}
	parts := strings.Split(c.Data, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			v = math.NaN()
		}
		values = append(values, v)
	}
	return values
}

// ExtractGraphs returns the configuration of every :::graph block in source
// order.
func ExtractGraphs(source string) []GraphConfig {
	matches := graphBlockPattern.FindAllStringSubmatch(source, -1)
	configs := make([]GraphConfig, 0, len(matches))
	for _, m := range matches {
		configs = append(configs, ParseGraphConfig(strings.TrimSpace(m[1])))
	}
	return configs
}

// ReplaceGraphBlocks swaps each :::graph block for a chart placeholder whose
// data-config attribute carries the trimmed block body.
func ReplaceGraphBlocks(source string, newID func() string) string {
	if newID == nil {
		newID = chartID
	}
	return graphBlockPattern.ReplaceAllStringFunc(source, func(block string) string {
		m := graphBlockPattern.FindStringSubmatch(block)
		return "\n\n" + chartPlaceholder(newID(), strings.TrimSpace(m[1])) + "\n\n"
	})
}

func chartPlaceholder(id, config string) string {
	return `<div class="chart-wrapper"><canvas id="chart-` + html.EscapeString(id) +
		`" class="article-graph" data-config="` + escapeConfig(config) + `"></canvas></div>`
}

// escapeConfig keeps the placeholder on one line so the markdown parser sees a
// single raw HTML block even when the body has blank lines.
func escapeConfig(config string) string {
	config = strings.ReplaceAll(config, "\r", "")
	return strings.ReplaceAll(html.EscapeString(config), "\n", "&#10;")
}

func chartID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
