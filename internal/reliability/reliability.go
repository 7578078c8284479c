// Package reliability implements the stop-and-retry ACK layer that sits
// between the peer orchestrator and the raw datagram socket: sequence
// assignment, retransmission, ACK matching, and duplicate suppression.
package reliability

import (
	"sync"
	"time"

	"pokeduel/internal/config"
	"pokeduel/internal/logging"
)

// SendFunc is the construction-time callback used to transmit a payload.
// It is invoked once on send and again on every retry.
type SendFunc func(payload []byte)

type pendingMessage struct {
	payload    []byte
	sequence   int
	sentAt     time.Time
	retries    int
	maxRetries int
	timeout    time.Duration
	acked      bool
}

// Layer owns the pending-message map, the sequence counter, and the
// received-sequence set behind a single mutex, per the spec's concurrency
// model: it is the only shared-mutable component touched by the receive
// loop, the retry worker, and the application thread.
type Layer struct {
	send SendFunc
	log  *logging.Logger
	now  func() time.Time

	maxRetries    int
	timeout       time.Duration
	retryInterval time.Duration

	mu       sync.Mutex
	sequence int
	pending  map[int]*pendingMessage
	received map[int]struct{}

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Layer at construction time.
type Option func(*Layer)

// WithClock overrides the default wall-clock time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Layer) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLogger overrides the logger used for transport diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Layer) {
		if logger != nil {
			l.log = logger
		}
	}
}

// New constructs a reliability layer around the given send callback, tuned
// by cfg. The layer is idle until Start is called.
func New(send SendFunc, cfg *config.Config, opts ...Option) *Layer {
	maxRetries := config.DefaultMaxRetries
	timeout := config.DefaultAckTimeout
	retryInterval := config.DefaultRetryInterval
	if cfg != nil {
		maxRetries = cfg.MaxRetries
		timeout = cfg.AckTimeout
		retryInterval = cfg.RetryInterval
	}
	layer := &Layer{
		send:          send,
		log:           logging.L(),
		now:           time.Now,
		maxRetries:    maxRetries,
		timeout:       timeout,
		retryInterval: retryInterval,
		pending:       make(map[int]*pendingMessage),
		received:      make(map[int]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(layer)
		}
	}
	return layer
}

// Start launches the background retry worker.
func (l *Layer) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})
	l.mu.Unlock()
	go l.retryLoop()
}

// Stop signals the retry worker to exit and waits (bounded) for it to do so.
func (l *Layer) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	done := l.doneCh
	l.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

// NextSequenceNumber returns the next monotonically increasing sequence
// number, starting at 1.
func (l *Layer) NextSequenceNumber() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sequence++
	return l.sequence
}

// Send records payload as a pending message and invokes the send callback
// once. If seq is non-nil it is used verbatim (for messages whose sequence
// number was already reserved by the caller); otherwise a fresh sequence
// number is assigned.
func (l *Layer) Send(payload []byte, seq *int) int {
	var sequence int
	if seq != nil {
		sequence = *seq
	} else {
		sequence = l.NextSequenceNumber()
	}

	pending := &pendingMessage{
		payload:    payload,
		sequence:   sequence,
		sentAt:     l.now(),
		maxRetries: l.maxRetries,
		timeout:    l.timeout,
	}

	l.mu.Lock()
	l.pending[sequence] = pending
	l.mu.Unlock()

	l.send(payload)
	return sequence
}

// HandleAck marks the matching pending entry as acknowledged and removes it.
func (l *Layer) HandleAck(ackNumber int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pending, ok := l.pending[ackNumber]; ok {
		pending.acked = true
		delete(l.pending, ackNumber)
	}
}

// IsDuplicate reports whether seq was already seen on this wire, recording
// it as seen regardless. The first call for a given seq returns false.
func (l *Layer) IsDuplicate(seq int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.received[seq]; seen {
		return true
	}
	l.received[seq] = struct{}{}
	return false
}

// ResetReceivedSequences clears the received-sequence set. Called exactly
// once, immediately before entering the first WAITING_FOR_MOVE, so handshake
// sequence numbers do not collide with battle sequence numbers.
func (l *Layer) ResetReceivedSequences() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.received = make(map[int]struct{})
}

func (l *Layer) retryLoop() {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.retryTick()
		}
	}
}

func (l *Layer) retryTick() {
	now := l.now()
	type retry struct {
		payload []byte
	}
	var toRetry []retry

	l.mu.Lock()
	for seq, pending := range l.pending {
		if pending.acked {
			continue
		}
		if now.Sub(pending.sentAt) < pending.timeout {
			continue
		}
		if pending.retries < pending.maxRetries {
			pending.retries++
			pending.sentAt = now
			toRetry = append(toRetry, retry{payload: pending.payload})
		} else {
			delete(l.pending, seq)
			l.log.Warn("reliability: pending message dropped after max retries", logging.Int("sequence_number", seq))
		}
	}
	l.mu.Unlock()

	for _, r := range toRetry {
		l.send(r.payload)
	}
}
