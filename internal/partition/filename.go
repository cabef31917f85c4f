package partition

import (
	"strings"
	"unicode"
)

// PlaceholderName replaces a route label that has no usable characters.
const PlaceholderName = "Unnamed_Route"

const invalidChars = `\/:*?"<>|`

var replacer = strings.NewReplacer(
	`\`, "_", "/", "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// Sanitize maps a route label to a file-name stem. Characters invalid in
// file names become underscores; nothing else changes. A label made only of
// whitespace and invalid characters yields PlaceholderName.
func Sanitize(route string) string {
	usable := strings.IndexFunc(route, func(r rune) bool {
		return !unicode.IsSpace(r) && !strings.ContainsRune(invalidChars, r)
	})
	if usable < 0 {
		return PlaceholderName
	}
	return replacer.Replace(route)
}

// FileName is the output file name for route.
func FileName(route string) string { return Sanitize(route) + ".pdf" }
