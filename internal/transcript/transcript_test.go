package transcript

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriterRoundTripsFramesAndHeader(t *testing.T) {
	root := t.TempDir()
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	w, err := NewWriter(root, "duel-xyz", clock)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.SetHeaderMetadata("duel-xyz", 4242, "Ash", "Gary")

	if err := w.AppendFrame("sent", "ATTACK_ANNOUNCE", []byte("move_name: Thunderbolt\nsequence_number: 1\n")); err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	if err := w.AppendFrame("received", "ACK", []byte("ack_number: 1\n")); err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}

	dir := w.Directory()
	if dir == "" {
		t.Fatal("expected a non-empty bundle directory")
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	header, err := ReadHeader(filepath.Join(dir, "header.json"))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if header.DuelID != "duel-xyz" || header.Seed != 4242 || header.HostName != "Ash" {
		t.Fatalf("unexpected header: %+v", header)
	}

	frames, err := ReadFrames(dir)
	if err != nil {
		t.Fatalf("ReadFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].MessageType != "ATTACK_ANNOUNCE" || frames[0].Direction != "sent" {
		t.Fatalf("unexpected first frame: %+v", frames[0])
	}
	if string(frames[1].Payload) != "ack_number: 1\n" {
		t.Fatalf("unexpected second frame payload: %q", frames[1].Payload)
	}
}

func TestAppendStickerReturnsIncreasingOffsets(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root, "duel-abc", nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	first, err := w.AppendSticker("Ash", []byte{0x89, 'P', 'N', 'G'})
	if err != nil {
		t.Fatalf("AppendSticker: %v", err)
	}
	second, err := w.AppendSticker("Gary", []byte{0x89, 'P', 'N', 'G', 0x00})
	if err != nil {
		t.Fatalf("AppendSticker: %v", err)
	}
	if second <= first {
		t.Fatalf("expected increasing offsets, got %d then %d", first, second)
	}
}

func TestHeaderValidateRejectsMissingFilePointer(t *testing.T) {
	h := Header{SchemaVersion: 1}
	if err := h.Validate(); err == nil {
		t.Fatal("expected an error for a missing file pointer")
	}
}
