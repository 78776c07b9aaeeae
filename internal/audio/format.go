package audio

import (
	"mime"
	"path"
	"sort"
	"strings"
)

// Extensions accepted for uploaded audio.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".wma":  true,
	".aac":  true,
}

var contentTypeExtensions = map[string]string{
	"audio/mpeg":          ".mp3",
	"audio/mp3":           ".mp3",
	"audio/wav":           ".wav",
	"audio/wave":          ".wav",
	"audio/x-wav":         ".wav",
	"audio/vnd.wave":      ".wav",
	"audio/mp4":           ".m4a",
	"audio/m4a":           ".m4a",
	"audio/x-m4a":         ".m4a",
	"audio/flac":          ".flac",
	"audio/x-flac":        ".flac",
	"audio/ogg":           ".ogg",
	"application/ogg":     ".ogg",
	"audio/x-ms-wma":      ".wma",
	"audio/aac":           ".aac",
	"audio/x-aac":         ".aac",
	"audio/aacp":          ".aac",
	"audio/vnd.dlna.adts": ".aac",
}

// FallbackExtension names temporary files whose format could not be inferred.
const FallbackExtension = ".tmp"

// SupportedFormats lists accepted extensions, sorted.
func SupportedFormats() []string {
	out := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extension returns the lower-cased extension of name, including the dot.
func Extension(name string) string {
	return strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
}

func IsSupportedExtension(ext string) bool {
	return supportedExtensions[strings.ToLower(ext)]
}

// ExtensionForContentType maps an audio media type to a supported extension.
func ExtensionForContentType(contentType string) (string, bool) {
	mediaType := normalizeMediaType(contentType)
	ext, ok := contentTypeExtensions[mediaType]
	return ext, ok
}

// IsAudioContentType reports whether contentType announces audio.
func IsAudioContentType(contentType string) bool {
	mediaType := normalizeMediaType(contentType)
	if strings.HasPrefix(mediaType, "audio/") {
		return true
	}
	_, ok := contentTypeExtensions[mediaType]
	return ok
}

func normalizeMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
