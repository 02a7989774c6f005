package editor

import "strings"

const MaxTags = 3

var tagReplacer = strings.NewReplacer("#", "", ",", "")

// NormalizeTag lowercases a tag and drops '#' and ',' characters.
func NormalizeTag(raw string) string {
	return strings.TrimSpace(strings.ToLower(tagReplacer.Replace(raw)))
}

// ParseCoAuthors splits comma separated handles, removing the leading '@'
// of each and skipping blanks.
func ParseCoAuthors(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(strings.Replace(strings.TrimSpace(part), "@", "", 1))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func removeAt(values []string, index int) ([]string, error) {
	if index < 0 || index >= len(values) {
		return values, ErrIndexOutOfRange
	}
	out := make([]string, 0, len(values)-1)
	out = append(out, values[:index]...)
	return append(out, values[index+1:]...), nil
}
