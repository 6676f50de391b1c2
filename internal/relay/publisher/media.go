package publisher

import (
	"bytes"
	"path"
	"strings"
)

// sniffMIME inspects magic bytes to determine an attachment's real content
// type (spec.md §4.F). Extension is used only as a fallback when the bytes
// don't match a known signature; an unrecognized file is left unsniffed so
// the caller can abandon the upload rather than guess.
func sniffMIME(data []byte, filename string) (mime string, ext string, ok bool) {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg", ".jpg", true
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png", ".png", true
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif", ".gif", true
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp", ".webp", true
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "video/mp4", ".mp4", true
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "video/webm", ".webm", true
	}

	if m, ok := extensionMIME[strings.ToLower(path.Ext(filename))]; ok {
		return m, path.Ext(filename), true
	}
	return "", "", false
}

var extensionMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

// resolveFilename reconciles the sniffed type against the declared filename
// extension, rewriting the extension when they disagree (spec.md §4.F "If
// sniffed type disagrees with extension, filename extension is rewritten to
// agree").
func resolveFilename(filename, sniffedExt string) string {
	currentExt := strings.ToLower(path.Ext(filename))
	if currentExt == sniffedExt {
		return filename
	}
	base := strings.TrimSuffix(filename, path.Ext(filename))
	if base == "" {
		base = "upload"
	}
	return base + sniffedExt
}
