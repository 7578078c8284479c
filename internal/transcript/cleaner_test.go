package transcript

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"pokeduel/internal/logging"
)

func writeBundle(t *testing.T, root, name string, modTime time.Time, size int) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, "frames.jsonl.sz")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(dir, modTime, modTime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func listBundles(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestCleanerEnforcesMaxBundles(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeBundle(t, tmp, "alpha-20260301T090000Z", now.Add(-3*time.Hour), 64)
	writeBundle(t, tmp, "bravo-20260301T100000Z", now.Add(-2*time.Hour), 32)
	writeBundle(t, tmp, "charlie-20260301T110000Z", now.Add(-time.Hour), 48)

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxBundles: 2}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.RunOnce()

	remaining := listBundles(t, tmp)
	if len(remaining) != 2 {
		t.Fatalf("expected 2 bundles retained, got %d (%v)", len(remaining), remaining)
	}
	if remaining[0] != "bravo-20260301T100000Z" || remaining[1] != "charlie-20260301T110000Z" {
		t.Fatalf("unexpected retained bundles: %v", remaining)
	}

	stats := cleaner.Stats()
	if stats.Bundles != 2 {
		t.Fatalf("expected stats to report 2 bundles, got %d", stats.Bundles)
	}
	if stats.LastSweep.IsZero() {
		t.Fatal("expected last sweep timestamp to be recorded")
	}
}

func TestCleanerPrunesByAge(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	writeBundle(t, tmp, "delta-20260228T090000Z", now.Add(-48*time.Hour), 16)
	writeBundle(t, tmp, "echo-20260302T080000Z", now.Add(-time.Hour), 8)

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxAge: 36 * time.Hour}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.RunOnce()

	remaining := listBundles(t, tmp)
	if len(remaining) != 1 || remaining[0] != "echo-20260302T080000Z" {
		t.Fatalf("expected only echo bundle retained, got %v", remaining)
	}
}
