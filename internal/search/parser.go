package search

import (
	"regexp"
	"strings"
)

// Filter keys understood by the engine. Other keys are kept in the filter
// map but ignored.
const (
	FilterChannel   = "channel"
	FilterType      = "type"
	FilterMediaType = "media_type"
	FilterDate      = "date"
)

var filterPattern = regexp.MustCompile(`([\p{L}\p{N}_]+):(\S+)`)

// Parse splits a raw query into keywords and key:value filters. Filter
// tokens are removed from the text; keys are lowercased.
func Parse(query string) ([]string, map[string]string) {
	filters := make(map[string]string)
	rest := filterPattern.ReplaceAllStringFunc(query, func(tok string) string {
		m := filterPattern.FindStringSubmatch(tok)
		filters[strings.ToLower(m[1])] = m[2]
		return " "
	})
	return strings.Fields(rest), filters
}
