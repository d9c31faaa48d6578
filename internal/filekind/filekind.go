// Package filekind classifies uploaded files by extension and resolves their
// MIME type.
package filekind

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/starford/nocel/internal/models"
)

const fallbackMIME = "application/octet-stream"

var kinds = map[string]models.Kind{
	".png": models.KindImage, ".jpg": models.KindImage, ".jpeg": models.KindImage,
	".gif": models.KindImage, ".webp": models.KindImage, ".svg": models.KindImage,
	".bmp": models.KindImage, ".ico": models.KindImage, ".avif": models.KindImage,

	".mp4": models.KindVideo, ".webm": models.KindVideo, ".mov": models.KindVideo,
	".avi": models.KindVideo, ".mkv": models.KindVideo, ".ogv": models.KindVideo,
	".m4v": models.KindVideo,

	".mp3": models.KindAudio, ".wav": models.KindAudio, ".ogg": models.KindAudio,
	".flac": models.KindAudio, ".m4a": models.KindAudio, ".aac": models.KindAudio,
	".opus": models.KindAudio,

	".txt": models.KindText, ".md": models.KindText, ".csv": models.KindText,
	".json": models.KindText, ".log": models.KindText, ".xml": models.KindText,
	".yaml": models.KindText, ".yml": models.KindText, ".ini": models.KindText,
	".html": models.KindText, ".css": models.KindText, ".js": models.KindText,
	".py": models.KindText, ".go": models.KindText, ".sh": models.KindText,
	".sql": models.KindText, ".toml": models.KindText,
}

// textMIME covers text extensions the platform MIME table may not know.
var textMIME = map[string]string{
	".md":   "text/markdown; charset=utf-8",
	".log":  "text/plain; charset=utf-8",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".toml": "application/toml",
	".go":   "text/plain; charset=utf-8",
	".py":   "text/x-python; charset=utf-8",
	".sh":   "text/x-shellscript; charset=utf-8",
	".ini":  "text/plain; charset=utf-8",
	".sql":  "application/sql",
}

// Classify returns the kind for a filename based on its extension.
func Classify(name string) models.Kind {
	if k, ok := kinds[strings.ToLower(filepath.Ext(name))]; ok {
		return k
	}
	return models.KindOther
}

// MIMEType resolves the MIME type from the filename. When the extension is
// unknown and head (the first bytes of the content) is non-empty the content
// is sniffed instead.
func MIMEType(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := textMIME[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	if len(head) > 0 {
		return mimetype.Detect(head).String()
	}
	return fallbackMIME
}
