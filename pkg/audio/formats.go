package audio

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

// AllowedExtensions lists the upload formats accepted for transcription.
var AllowedExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".flac", ".webm", ".mp4", ".mpeg", ".aac"}

func IsAllowedExtension(fileName string) bool {
	return lo.Contains(AllowedExtensions, strings.ToLower(filepath.Ext(fileName)))
}

// IsAudioMIME accepts audio types and the mp4/webm containers recorders commonly emit.
func IsAudioMIME(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		s := m.String()
		if strings.HasPrefix(s, "audio/") || strings.HasPrefix(s, "video/mp4") || strings.HasPrefix(s, "video/webm") {
			return true
		}
	}
	return false
}

func isWAV(mt *mimetype.MIME) bool {
	return mt.Is("audio/wav")
}

// DetectMIME sniffs data, falling back to the file name extension when sniffing is
// inconclusive.
func DetectMIME(data []byte, fileName string) string {
	mt := mimetype.Detect(data)
	if IsAudioMIME(mt) {
		return mt.String()
	}
	if byExt := mimeByExtension(fileName); byExt != "" {
		return byExt
	}
	return mt.String()
}

func mimeByExtension(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".wav":
		return "audio/wav"
	case ".mp3", ".mpeg":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	default:
		return ""
	}
}

// ExtensionFor returns a file extension for a MIME type, used when naming chunk files.
func ExtensionFor(mime string) string {
	if mt := mimetype.Lookup(mime); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".bin"
}
