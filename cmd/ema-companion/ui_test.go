package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/koscakluka/ema-companion/core/conversations"
)

func TestParseMemoryReadsCategoryPrefix(t *testing.T) {
	category, text := parseMemory("allergy: peanuts")
	if category != conversations.MemoryCategoryAllergy || text != "peanuts" {
		t.Fatalf("expected Allergy peanuts, got %q %q", category, text)
	}
}

func TestParseMemoryDefaultsToGeneral(t *testing.T) {
	category, text := parseMemory("note: walks at 7:30")
	if category != conversations.MemoryCategoryGeneral || text != "note: walks at 7:30" {
		t.Fatalf("expected General with full text, got %q %q", category, text)
	}
}

func TestReadImageRejectsNonImages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("just text"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := readImage(path); err == nil {
		t.Fatalf("expected error for non-image file")
	}
}

func TestReadImageDetectsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixel.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	image, err := readImage(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if image.MIMEType != "image/png" {
		t.Fatalf("expected image/png, got %q", image.MIMEType)
	}
}
