package duelcatalog

import (
	"os"
	"path/filepath"
	"testing"

	"pokeduel/internal/transcript"
)

func TestListCollectsHeaders(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "duel-1-20260730T000000Z")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	header := transcript.Header{
		SchemaVersion: transcript.HeaderSchemaVersion,
		DuelID:        "duel-1",
		Seed:          42,
		HostName:      "Ash",
		JoinerName:    "Gary",
		FilePointer:   "frames.jsonl.sz",
	}
	headerPath := filepath.Join(dataDir, "header.json")
	if err := transcript.WriteHeader(headerPath, header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected single entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Header.DuelID != "duel-1" || entry.Header.HostName != "Ash" || entry.Header.JoinerName != "Gary" {
		t.Fatalf("unexpected header: %+v", entry.Header)
	}
	if entry.FramesPath != filepath.Join(dataDir, "frames.jsonl.sz") {
		t.Fatalf("unexpected frames path: %q", entry.FramesPath)
	}
	if entry.StickerPath != filepath.Join(dataDir, "stickers.bin.zst") {
		t.Fatalf("unexpected sticker path: %q", entry.StickerPath)
	}

	payload, err := MarshalEntries(entries)
	if err != nil {
		t.Fatalf("MarshalEntries: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected JSON payload to be non-empty")
	}
}

func TestListRejectsMissingRoot(t *testing.T) {
	if _, err := List(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected an error for a missing root directory")
	}
}
