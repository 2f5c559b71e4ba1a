package scanner

import (
	"path/filepath"
	"strings"
)

// languageMap maps the extensions the miner can parse to a language name.
var languageMap = map[string]string{
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
}

// DetectLanguage returns the language of a file extension, or "" when the
// miner cannot analyze it.
func DetectLanguage(ext string) string {
	return languageMap[strings.ToLower(ext)]
}

// IsJavaScript reports whether path names a JavaScript source file.
// Minified bundles are excluded.
func IsJavaScript(path string) bool {
	if strings.HasSuffix(strings.ToLower(path), ".min.js") {
		return false
	}
	return DetectLanguage(filepath.Ext(path)) == "javascript"
}
