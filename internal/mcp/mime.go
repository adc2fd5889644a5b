package mcp

import (
	"mime"
	"path/filepath"
	"strings"
)

// documentTypes covers formats the analyzer commonly sees that the
// platform MIME table may not know.
var documentTypes = map[string]string{
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".heic": "image/heic",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
}

// MimeTypeForPath returns the MIME type for a file path, or
// "application/octet-stream" when the extension is unknown.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "application/octet-stream"
	}
	if t, ok := documentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i > 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}
