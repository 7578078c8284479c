// Package transcript persists a duel's wire traffic and chat stickers to
// disk: a snappy-compressed JSONL log of every frame exchanged (for
// post-battle review and the spectator replay bridge), and a zstd-compressed
// blob store for sticker images sent over CHAT_MESSAGE. Both sinks follow
// the teacher's streaming-writer discipline — buffered compressed streams
// behind a mutex, flushed on an explicit cadence and at Close.
package transcript

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var directoryCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Header describes the duel a transcript belongs to, persisted once at
// Close alongside the compressed streams so catalog tooling can locate and
// label the bundle without decompressing it.
type Header struct {
	SchemaVersion int    `json:"schema_version"`
	DuelID        string `json:"duel_id"`
	Seed          int    `json:"seed"`
	HostName      string `json:"host_name"`
	JoinerName    string `json:"joiner_name"`
	FilePointer   string `json:"file_pointer"`
}

// HeaderSchemaVersion tracks the schema version for transcript headers.
const HeaderSchemaVersion = 1

// Validate ensures the header carries enough information for catalog tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if h.FilePointer == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the header as indented JSON, newline terminated.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a transcript header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}

// Writer streams every wire frame exchanged during a duel to a
// snappy-compressed JSONL log, and every sticker chat payload to a
// zstd-compressed blob file.
type Writer struct {
	mu sync.Mutex

	dir string
	now func() time.Time

	frameFile   *os.File
	frameStream *snappy.Writer

	stickerFile   *os.File
	stickerStream *zstd.Encoder
	stickerOffset int64

	header Header
}

// NewWriter prepares the transcript directory and opens both compressed
// sinks, naming the bundle directory after the duel ID and the creation
// timestamp, matching the teacher's replay bundle naming convention.
func NewWriter(root, duelID string, clock func() time.Time) (*Writer, error) {
	if root == "" {
		return nil, fmt.Errorf("transcript root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := directoryCleaner.ReplaceAllString(duelID, "")
	if cleaned == "" {
		cleaned = "duel"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	framesPath := filepath.Join(path, "frames.jsonl.sz")
	stickersPath := filepath.Join(path, "stickers.bin.zst")

	frameFile, err := os.Create(framesPath)
	if err != nil {
		return nil, err
	}
	frameStream := snappy.NewBufferedWriter(frameFile)

	stickerFile, err := os.Create(stickersPath)
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		return nil, err
	}
	stickerStream, err := zstd.NewWriter(stickerFile)
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		stickerFile.Close()
		return nil, err
	}

	return &Writer{
		dir:           path,
		now:           clock,
		frameFile:     frameFile,
		frameStream:   frameStream,
		stickerFile:   stickerFile,
		stickerStream: stickerStream,
	}, nil
}

// Directory exposes the directory backing the transcript bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeaderMetadata records duel identity for the header emitted at Close.
func (w *Writer) SetHeaderMetadata(duelID string, seed int, hostName, joinerName string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	//1.- Cache identity fields for header emission when the writer closes.
	w.header.DuelID = duelID
	w.header.Seed = seed
	w.header.HostName = hostName
	w.header.JoinerName = joinerName
}

// frameRecord is one logged line: the direction, the wire frame's message
// type, and its raw encoded bytes (base64, since the wire codec is text but
// JSON requires escaping control bytes safely).
type frameRecord struct {
	Direction   string `json:"direction"`
	LoggedAt    string `json:"logged_at"`
	MessageType string `json:"message_type"`
	PayloadB64  string `json:"payload_b64"`
}

// AppendFrame logs one wire frame (direction is "sent" or "received").
func (w *Writer) AppendFrame(direction, messageType string, raw []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	record := frameRecord{
		Direction:   direction,
		LoggedAt:    w.now().UTC().Format(time.RFC3339Nano),
		MessageType: messageType,
		PayloadB64:  base64.StdEncoding.EncodeToString(raw),
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	//1.- Write the line then flush immediately: transcripts favor durability
	// over batching since a duel's frame volume is low (one per turn phase).
	if _, err := w.frameStream.Write(line); err != nil {
		return err
	}
	if _, err := w.frameStream.Write([]byte("\n")); err != nil {
		return err
	}
	return w.frameStream.Flush()
}

// AppendSticker writes one decoded sticker image (PNG bytes) to the
// zstd-compressed blob store, returning the byte offset of its record within
// the decompressed blob stream.
func (w *Writer) AppendSticker(sender string, image []byte) (int64, error) {
	if w == nil {
		return 0, fmt.Errorf("writer not initialised")
	}
	senderBytes := []byte(sender)

	w.mu.Lock()
	defer w.mu.Unlock()

	offset := w.stickerOffset

	//1.- Length-prefix sender and image so the blob store is self-describing,
	// mirroring the teacher's length-prefixed binary frame format.
	header := make([]byte, 4+4)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(senderBytes)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(image)))
	if _, err := w.stickerStream.Write(header); err != nil {
		return 0, err
	}
	if _, err := w.stickerStream.Write(senderBytes); err != nil {
		return 0, err
	}
	if _, err := w.stickerStream.Write(image); err != nil {
		return 0, err
	}
	w.stickerOffset += int64(len(header) + len(senderBytes) + len(image))
	return offset, nil
}

// Close flushes and closes both compressed sinks, then writes the header.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	headerPath := filepath.Join(w.dir, "header.json")
	w.header.SchemaVersion = HeaderSchemaVersion
	w.header.FilePointer = "frames.jsonl.sz"
	if err := WriteHeader(headerPath, w.header); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameStream.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.stickerStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.stickerFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
