package resourceclass

import "strings"

// Class is the cache partition a resource belongs to.
type Class string

const (
	// Static resources are long-lived assets such as scripts, styles, fonts and images.
	Static Class = "static"
	// Dynamic resources are pages and API responses.
	Dynamic Class = "dynamic"
)

// StaticExtensions lists the file extensions treated as static assets.
var StaticExtensions = []string{
	".css", ".js",
	".woff2", ".woff", ".ttf", ".eot",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
}

// IsStatic reports whether s ends with one of the static extensions (case-insensitive).
// s is matched as is, so a query string after the extension prevents a match.
func IsStatic(s string) bool {
	lower := strings.ToLower(s)
	for _, ext := range StaticExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Classify returns the class for the given URL path.
func Classify(path string) Class {
	if IsStatic(path) {
		return Static
	}
	return Dynamic
}
