package ingest

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"vidrepo/internal/services"
	"vidrepo/internal/store"
)

var extensionKinds = map[string]store.AssetKind{
	".mp4":  store.KindVideo,
	".mov":  store.KindVideo,
	".mkv":  store.KindVideo,
	".webm": store.KindVideo,
	".avi":  store.KindVideo,
	".m4v":  store.KindVideo,
	".mp3":  store.KindAudio,
	".wav":  store.KindAudio,
	".m4a":  store.KindAudio,
	".aac":  store.KindAudio,
	".flac": store.KindAudio,
	".ogg":  store.KindAudio,
	".opus": store.KindAudio,
	".jpg":  store.KindImage,
	".jpeg": store.KindImage,
	".png":  store.KindImage,
	".gif":  store.KindImage,
	".webp": store.KindImage,
	".heic": store.KindImage,
}

// Classify derives the asset kind from the declared MIME type, falling back
// to the file extension. It returns the kind and the effective MIME type.
func Classify(name, mimeType string) (store.AssetKind, string, error) {
	declared := strings.ToLower(strings.TrimSpace(mimeType))
	if base, _, err := mime.ParseMediaType(declared); err == nil {
		declared = base
	}
	if kind, ok := kindFromMIME(declared); ok {
		return kind, declared, nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	if kind, ok := extensionKinds[ext]; ok {
		guessed := mime.TypeByExtension(ext)
		if base, _, err := mime.ParseMediaType(guessed); err == nil {
			guessed = base
		}
		if _, ok := kindFromMIME(guessed); !ok {
			guessed = string(kind) + "/" + strings.TrimPrefix(ext, ".")
		}
		return kind, guessed, nil
	}
	return "", "", services.Wrap(services.ErrValidation, "ingest", "classify",
		fmt.Sprintf("unsupported media type for %q (mime %q)", name, mimeType), nil)
}

func kindFromMIME(value string) (store.AssetKind, bool) {
	major, _, ok := strings.Cut(value, "/")
	if !ok {
		return "", false
	}
	return store.ParseKind(major)
}
