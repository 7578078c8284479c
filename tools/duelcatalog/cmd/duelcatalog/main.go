package main

import (
	"flag"
	"fmt"
	"os"

	"pokeduel/tools/duelcatalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing transcript bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := duelcatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := duelcatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		fmt.Printf("%s vs %s (duel %s, seed %d)\n", entry.Header.HostName, entry.Header.JoinerName, entry.Header.DuelID, entry.Header.Seed)
		fmt.Printf("  frames:   %s\n", entry.FramesPath)
		fmt.Printf("  stickers: %s\n", entry.StickerPath)
		fmt.Printf("  header:   %s\n", entry.HeaderPath)
	}
}
