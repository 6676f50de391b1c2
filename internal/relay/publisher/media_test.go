package publisher

import "testing"

func TestSniffMIME_JPEG(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	mime, ext, ok := sniffMIME(data, "photo.png")
	if !ok {
		t.Fatal("expected sniff to succeed")
	}
	if mime != "image/jpeg" || ext != ".jpg" {
		t.Errorf("expected image/jpeg .jpg, got %s %s", mime, ext)
	}
}

func TestSniffMIME_PNG(t *testing.T) {
	data := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
	mime, ext, ok := sniffMIME(data, "upload")
	if !ok || mime != "image/png" {
		t.Errorf("expected image/png, got %s ok=%v", mime, ok)
	}
	if ext != ".png" {
		t.Errorf("expected .png, got %s", ext)
	}
}

func TestSniffMIME_WEBP(t *testing.T) {
	data := append([]byte("RIFF\x00\x00\x00\x00WEBP"), []byte{0, 0}...)
	mime, _, ok := sniffMIME(data, "clip")
	if !ok || mime != "image/webp" {
		t.Errorf("expected image/webp, got %s ok=%v", mime, ok)
	}
}

func TestSniffMIME_MP4(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'}
	mime, ext, ok := sniffMIME(data, "video")
	if !ok || mime != "video/mp4" || ext != ".mp4" {
		t.Errorf("expected video/mp4 .mp4, got %s %s ok=%v", mime, ext, ok)
	}
}

func TestSniffMIME_WEBM(t *testing.T) {
	data := []byte{0x1A, 0x45, 0xDF, 0xA3, 0x01}
	mime, _, ok := sniffMIME(data, "clip")
	if !ok || mime != "video/webm" {
		t.Errorf("expected video/webm, got %s ok=%v", mime, ok)
	}
}

func TestSniffMIME_FallsBackToExtension(t *testing.T) {
	data := []byte("not a real image, just text bytes")
	mime, ext, ok := sniffMIME(data, "photo.jpg")
	if !ok || mime != "image/jpeg" || ext != ".jpg" {
		t.Errorf("expected extension fallback to image/jpeg, got %s %s ok=%v", mime, ext, ok)
	}
}

func TestSniffMIME_UnknownAbandoned(t *testing.T) {
	data := []byte("nothing recognizable")
	_, _, ok := sniffMIME(data, "mystery.bin")
	if ok {
		t.Error("expected unknown type to be unrecognized, not forced")
	}
}

func TestResolveFilename_RewritesMismatchedExtension(t *testing.T) {
	got := resolveFilename("photo.png", ".jpg")
	if got != "photo.jpg" {
		t.Errorf("expected photo.jpg, got %s", got)
	}
}

func TestResolveFilename_KeepsMatchingExtension(t *testing.T) {
	got := resolveFilename("photo.jpg", ".jpg")
	if got != "photo.jpg" {
		t.Errorf("expected unchanged photo.jpg, got %s", got)
	}
}

func TestResolveFilename_HandlesMissingBase(t *testing.T) {
	got := resolveFilename(".jpg", ".png")
	if got != "upload.png" {
		t.Errorf("expected upload.png, got %s", got)
	}
}
