// Package duelcatalog walks a transcript root and indexes every duel
// bundle's header.json, the way the teacher's replay_catalog indexes
// replay headers, adapted here to transcript.Header's duel-roster fields
// instead of replay.Header's seed/terrain fields.
package duelcatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pokeduel/internal/transcript"
)

// Entry captures a transcript header alongside its resolved bundle paths.
type Entry struct {
	HeaderPath  string            `json:"header_path"`
	FramesPath  string            `json:"frames_path"`
	StickerPath string            `json:"sticker_path"`
	Header      transcript.Header `json:"header"`
}

// List walks the directory tree and returns parsed transcript headers,
// sorted by duel ID then by bundle directory for stable CLI output.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the directory tree searching for the fixed header filename
	// every transcript.Writer.Close emits.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "header.json" {
			return nil
		}
		header, err := transcript.ReadHeader(path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(path)
		framesPath := header.FilePointer
		if !filepath.IsAbs(framesPath) {
			framesPath = filepath.Join(dir, framesPath)
		}
		entries = append(entries, Entry{
			HeaderPath:  path,
			FramesPath:  framesPath,
			StickerPath: filepath.Join(dir, "stickers.bin.zst"),
			Header:      header,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.DuelID == entries[j].Header.DuelID {
			return entries[i].HeaderPath < entries[j].HeaderPath
		}
		return entries[i].Header.DuelID < entries[j].Header.DuelID
	})
	return entries, nil
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	//1.- Marshal with indentation to keep CLI output legible for operators.
	return json.MarshalIndent(entries, "", "  ")
}
