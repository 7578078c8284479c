// Package duelsession tracks the membership of one duel: the host, at most
// one joining opponent, and any number of read-only spectators. Unlike a
// generic match lobby, the roster shape here is fixed by spec.md's Non-goal
// of "no support for more than one opponent" — capacity is a constant, not a
// configurable bound.
package duelsession

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

const envDuelID = "POKEDUEL_MATCH_ID"

// Role distinguishes the three kinds of participant a duel can hold.
type Role int

const (
	RoleHost Role = iota
	RoleJoiner
	RoleSpectator
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "HOST"
	case RoleJoiner:
		return "JOINER"
	case RoleSpectator:
		return "SPECTATOR"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrInvalidParticipantID is returned when a join request omits the participant identifier.
	ErrInvalidParticipantID = errors.New("participant id must not be empty")
	// ErrJoinerSlotTaken indicates a second opponent tried to join an already-paired duel.
	ErrJoinerSlotTaken = errors.New("duel already has an opponent")
	// ErrHostSlotTaken indicates a second host tried to register.
	ErrHostSlotTaken = errors.New("duel already has a host")
)

// Participant is one tracked member of the duel roster.
type Participant struct {
	ID       string    `json:"id"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Snapshot captures a stable, sorted view of the duel roster for observers
// (the spectator bridge, admin introspection, logging).
type Snapshot struct {
	DuelID       string        `json:"duel_id"`
	Host         *Participant  `json:"host,omitempty"`
	Joiner       *Participant  `json:"joiner,omitempty"`
	Spectators   []Participant `json:"spectators,omitempty"`
}

// Option configures optional Session behaviour at construction time.
type Option func(*Session)

// Session maintains the lifecycle of a single duel's participant roster.
type Session struct {
	mu sync.RWMutex

	id            string
	host          *Participant
	joiner        *Participant
	spectators    map[string]Participant
	now           func() time.Time
	envLookup     func(string) string
	idConfigured  bool
}

// WithClock overrides the default wall-clock time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		//1.- Allow tests to inject a deterministic time source for reproducibility.
		if clock != nil {
			s.now = clock
		}
	}
}

// WithEnvLookup injects a custom environment variable lookup mechanism.
func WithEnvLookup(lookup func(string) string) Option {
	return func(s *Session) {
		//1.- Swap the environment lookup so tests can provide deterministic values.
		s.envLookup = lookup
	}
}

// WithDuelID sets the identifier used for this duel instance.
func WithDuelID(id string) Option {
	return func(s *Session) {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			return
		}
		//1.- Record the supplied duel identifier and mark it as explicit configuration.
		s.id = trimmed
		s.idConfigured = true
	}
}

// New constructs a duel session using environment defaults when available.
func New(opts ...Option) *Session {
	session := &Session{
		spectators: make(map[string]Participant),
		now:        time.Now,
		envLookup:  os.Getenv,
	}
	//1.- Apply any caller supplied functional options prior to reading the environment.
	for _, opt := range opts {
		if opt != nil {
			opt(session)
		}
	}
	//2.- Populate the identifier from the environment when the caller did not override it.
	if !session.idConfigured && session.envLookup != nil {
		if id := strings.TrimSpace(session.envLookup(envDuelID)); id != "" {
			session.id = id
			session.idConfigured = true
		}
	}
	//3.- Ensure a deterministic identifier exists for downstream replay or telemetry.
	if strings.TrimSpace(session.id) == "" {
		session.id = session.defaultIdentifier()
	}
	return session
}

// JoinHost registers the hosting participant. Calling it twice with a
// different ID is rejected; calling it again with the same ID refreshes the
// join timestamp (reconnect).
func (s *Session) JoinHost(id string) (Snapshot, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Snapshot{}, ErrInvalidParticipantID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Reject a second, distinct host; otherwise refresh the existing host's timestamp.
	if s.host != nil && s.host.ID != trimmed {
		return Snapshot{}, ErrHostSlotTaken
	}
	s.host = &Participant{ID: trimmed, Role: RoleHost, JoinedAt: s.now()}
	return s.snapshotLocked(), nil
}

// JoinOpponent registers the single joining opponent, enforcing the
// one-opponent-only capacity.
func (s *Session) JoinOpponent(id string) (Snapshot, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Snapshot{}, ErrInvalidParticipantID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Reject a second, distinct joiner; otherwise refresh the existing joiner's timestamp.
	if s.joiner != nil && s.joiner.ID != trimmed {
		return Snapshot{}, ErrJoinerSlotTaken
	}
	s.joiner = &Participant{ID: trimmed, Role: RoleJoiner, JoinedAt: s.now()}
	return s.snapshotLocked(), nil
}

// JoinSpectator registers (or refreshes) an unlimited-capacity spectator.
func (s *Session) JoinSpectator(id string) (Snapshot, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Snapshot{}, ErrInvalidParticipantID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- Spectators have no capacity limit; track the latest join timestamp for reconnects.
	s.spectators[trimmed] = Participant{ID: trimmed, Role: RoleSpectator, JoinedAt: s.now()}
	return s.snapshotLocked(), nil
}

// Leave removes a participant from the roster regardless of role.
func (s *Session) Leave(id string) Snapshot {
	trimmed := strings.TrimSpace(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if trimmed == "" {
		return s.snapshotLocked()
	}
	//1.- Clear whichever slot the departing participant occupied.
	if s.host != nil && s.host.ID == trimmed {
		s.host = nil
	}
	if s.joiner != nil && s.joiner.ID == trimmed {
		s.joiner = nil
	}
	delete(s.spectators, trimmed)
	return s.snapshotLocked()
}

// Snapshot returns a read-only view of the current duel roster.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Ready reports whether both the host and the opponent have joined, meaning
// the handshake can proceed to BATTLE_SETUP exchange.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.host != nil && s.joiner != nil
}

func (s *Session) snapshotLocked() Snapshot {
	snapshot := Snapshot{DuelID: s.id}
	if s.host != nil {
		host := *s.host
		snapshot.Host = &host
	}
	if s.joiner != nil {
		joiner := *s.joiner
		snapshot.Joiner = &joiner
	}
	if len(s.spectators) == 0 {
		return snapshot
	}
	snapshot.Spectators = make([]Participant, 0, len(s.spectators))
	for _, p := range s.spectators {
		snapshot.Spectators = append(snapshot.Spectators, p)
	}
	//1.- Sort by ID to guarantee deterministic payloads for consumers and tests.
	sort.Slice(snapshot.Spectators, func(i, j int) bool {
		return snapshot.Spectators[i].ID < snapshot.Spectators[j].ID
	})
	return snapshot
}

func (s *Session) defaultIdentifier() string {
	if s.now == nil {
		return "duel"
	}
	stamp := s.now().UTC().Format("duel-20060102T150405")
	if strings.TrimSpace(stamp) == "" {
		//1.- Provide a predictable fallback when the clock is unavailable.
		return "duel"
	}
	return stamp
}

// String renders a compact human-readable summary, used in log lines.
func (p Participant) String() string {
	return fmt.Sprintf("%s(%s)", p.ID, p.Role)
}
