package shared

import "regexp"

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	filenameWhitespace  = regexp.MustCompile(`\s+`)
)

const maxFilenameLen = 50

// SanitizeFilename replaces characters that are unsafe in filenames and
// collapses whitespace, truncating to a cross-platform safe length.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = filenameWhitespace.ReplaceAllString(name, "_")
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	return name
}
