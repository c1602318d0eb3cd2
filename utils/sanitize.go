package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer      = bluemonday.UGCPolicy()
	plainSanitizer = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}

// SanitizeText strips all markup and surrounding whitespace; used for titles, names and tags.
func SanitizeText(input string) string {
	return strings.TrimSpace(plainSanitizer.Sanitize(input))
}

// SplitTags normalizes a comma separated tag list, dropping empty entries.
func SplitTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = SanitizeText(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
