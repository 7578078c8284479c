package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default UDP address a peer binds for the duel socket.
	DefaultAddr = ":8888"

	// DefaultAckTimeout bounds how long the reliability layer waits for an ACK
	// before retransmitting a pending message.
	DefaultAckTimeout = 500 * time.Millisecond
	// DefaultRetryInterval controls how frequently the retry worker wakes to
	// scan the pending-message map.
	DefaultRetryInterval = 100 * time.Millisecond
	// DefaultMaxRetries bounds the number of retransmissions attempted before a
	// pending message is dropped silently.
	DefaultMaxRetries = 3
	// DefaultSocketPollTimeout bounds how long the receive loop blocks before
	// re-checking the running flag.
	DefaultSocketPollTimeout = time.Second

	// DefaultChatRateWindow and DefaultChatRateBurst bound how often send_chat
	// may be invoked per peer.
	DefaultChatRateWindow = time.Minute
	DefaultChatRateBurst  = 20

	// DefaultLogLevel controls verbosity for peer logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "pokeduel.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 50
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultTranscriptDir is where duel transcripts and stickers are persisted.
	DefaultTranscriptDir = "transcripts"
)

// Config captures all runtime tunables for a PokeProtocol peer.
type Config struct {
	Address           string
	AckTimeout        time.Duration
	RetryInterval     time.Duration
	MaxRetries        int
	SocketPollTimeout time.Duration

	ChatRateWindow time.Duration
	ChatRateBurst  int

	Logging LoggingConfig

	TranscriptDir       string
	SpectatorBridgeAddr string
	AdminAddr           string
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads peer configuration from environment variables, applying sane
// defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:           getString("POKEDUEL_ADDR", DefaultAddr),
		AckTimeout:        DefaultAckTimeout,
		RetryInterval:     DefaultRetryInterval,
		MaxRetries:        DefaultMaxRetries,
		SocketPollTimeout: DefaultSocketPollTimeout,
		ChatRateWindow:    DefaultChatRateWindow,
		ChatRateBurst:     DefaultChatRateBurst,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("POKEDUEL_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("POKEDUEL_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		TranscriptDir:       strings.TrimSpace(getString("POKEDUEL_TRANSCRIPT_DIR", DefaultTranscriptDir)),
		SpectatorBridgeAddr: strings.TrimSpace(os.Getenv("POKEDUEL_SPECTATOR_ADDR")),
		AdminAddr:           strings.TrimSpace(os.Getenv("POKEDUEL_ADMIN_ADDR")),
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_ACK_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_ACK_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.AckTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_RETRY_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_RETRY_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.RetryInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_MAX_RETRIES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_MAX_RETRIES must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxRetries = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_CHAT_RATE_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_CHAT_RATE_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ChatRateWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_CHAT_RATE_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_CHAT_RATE_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.ChatRateBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("POKEDUEL_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("POKEDUEL_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("POKEDUEL_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
