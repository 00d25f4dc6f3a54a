package util

import (
	"regexp"
	"strings"
)

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a board or community name into a URL slug: lowercase,
// alphanumeric runs joined by single hyphens, at most 64 chars.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugStrip.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 64 {
		slug = strings.Trim(slug[:64], "-")
	}
	if slug == "" {
		slug = "board"
	}
	return slug
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
// Used for Telegram message previews.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
