package transcript

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// Frame is one decoded transcript line, ready for replay or display.
type Frame struct {
	Direction   string
	LoggedAt    string
	MessageType string
	Payload     []byte
}

// ReadFrames decompresses and decodes every frame in a transcript bundle's
// frames.jsonl.sz file, in recorded order.
func ReadFrames(bundleDir string) ([]Frame, error) {
	path := filepath.Join(bundleDir, "frames.jsonl.sz")
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := snappy.NewReader(file)
	scanner := bufio.NewScanner(reader)
	//1.- Grow the buffer past bufio's 64KiB default: stickers embedded in chat
	// frames can exceed it even base64-encoded.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var frames []Frame
	for scanner.Scan() {
		var record frameRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("decode transcript line: %w", err)
		}
		payload, err := base64.StdEncoding.DecodeString(record.PayloadB64)
		if err != nil {
			return nil, fmt.Errorf("decode transcript payload: %w", err)
		}
		frames = append(frames, Frame{
			Direction:   record.Direction,
			LoggedAt:    record.LoggedAt,
			MessageType: record.MessageType,
			Payload:     payload,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return frames, nil
}
