// Package peer implements the PokeProtocol orchestrator: the component that
// owns a UDP socket, a reliability.Layer, and a battle.Battle, and drives
// the handshake / setup / turn-exchange / chat / game-over protocol that
// spec.md §4.6 describes. Three peer roles share this type: Host, Joiner,
// and a read-only Spectator.
package peer

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"pokeduel/internal/battle"
	"pokeduel/internal/config"
	"pokeduel/internal/damage"
	"pokeduel/internal/duelsession"
	"pokeduel/internal/logging"
	"pokeduel/internal/model"
	"pokeduel/internal/reliability"
	"pokeduel/internal/wire"
)

// ChatReceivedFunc is invoked whenever a CHAT_MESSAGE frame is received.
// For STICKER content, image carries the raw decoded bytes and text is empty.
type ChatReceivedFunc func(sender, contentType, text string, image []byte)

// BattleUpdateFunc is invoked with a human-readable status line whenever the
// battle state advances (an attack lands, a spectator-visible announce).
type BattleUpdateFunc func(message string)

// GameOverFunc is invoked once with the winner/loser names.
type GameOverFunc func(winner, loser string)

// FrameObserverFunc is invoked for every wire frame sent or received, giving
// callers (the transcript writer, the spectator bridge) a tap into the raw
// traffic without coupling this package to either concern.
type FrameObserverFunc func(direction string, messageType wire.Kind, raw []byte)

// discoveryResult carries a DISCOVERY_RESPONSE back to a pending Discover call.
type discoveryResult struct {
	addr *net.UDPAddr
	name string
}

// Peer is one participant in a PokeProtocol duel: Host, Joiner, or Spectator.
type Peer struct {
	Name   string
	IsHost bool
	cfg    *config.Config
	log    *logging.Logger

	mu          sync.Mutex
	isSpectator bool
	conn        *net.UDPConn
	remoteAddr  *net.UDPAddr
	reliability *reliability.Layer
	session     *duelsession.Session

	// duelMu serializes every read and mutation of duel: both the receive
	// loop goroutine and the application thread (SendAttack, SendBattleSetup)
	// drive the battle state machine, and battle.Battle carries no locking
	// of its own (spec.md §5 assumes a single serializing owner).
	duelMu sync.Mutex
	duel   *battle.Battle

	seed            int
	haveSeed        bool
	myCombatant     *model.Combatant
	pendingOpponent *model.Combatant
	myBoosts        damage.Boosts
	oppBoosts       damage.Boosts
	connected       bool
	sentSetup       bool
	receivedSetup   bool
	gameOverSent    bool
	discoveryWaiter chan discoveryResult

	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	randGen      func() int
	roleOverride string

	chatLimiter *chatRateLimiter

	onChatReceived    ChatReceivedFunc
	onBattleUpdate    BattleUpdateFunc
	onGameOver        GameOverFunc
	onFrame           FrameObserverFunc
	onStickerReceived StickerReceivedFunc
}

// StickerReceivedFunc is invoked with the sender and decoded image bytes
// whenever a STICKER chat message arrives, ahead of the generic
// ChatReceivedFunc callback. Typically wired to a transcript.Writer's
// AppendSticker.
type StickerReceivedFunc func(sender string, image []byte)

// Option configures optional Peer behaviour at construction time.
type Option func(*Peer)

// WithChatReceived registers the chat callback.
func WithChatReceived(fn ChatReceivedFunc) Option { return func(p *Peer) { p.onChatReceived = fn } }

// WithBattleUpdate registers the battle-update callback.
func WithBattleUpdate(fn BattleUpdateFunc) Option { return func(p *Peer) { p.onBattleUpdate = fn } }

// WithGameOver registers the game-over callback.
func WithGameOver(fn GameOverFunc) Option { return func(p *Peer) { p.onGameOver = fn } }

// WithFrameObserver registers a tap invoked for every wire frame sent or received.
func WithFrameObserver(fn FrameObserverFunc) Option { return func(p *Peer) { p.onFrame = fn } }

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Peer) {
		if l != nil {
			p.log = l
		}
	}
}

// WithSession overrides the default duelsession.Session, letting callers
// share one session between the peer and an admin/spectator surface.
func WithSession(s *duelsession.Session) Option {
	return func(p *Peer) {
		if s != nil {
			p.session = s
		}
	}
}

// WithStickerReceived registers a sink invoked with decoded sticker image
// bytes ahead of the generic ChatReceivedFunc callback.
func WithStickerReceived(fn StickerReceivedFunc) Option {
	return func(p *Peer) { p.onStickerReceived = fn }
}

// WithPeerRole overrides the logging.PeerRoleField value derived from
// isHost, for callers that know at construction time that this peer will
// join as a read-only spectator rather than a duel participant.
func WithPeerRole(role string) Option {
	return func(p *Peer) { p.roleOverride = role }
}

// peerRole reports the logging.PeerRoleField value for a duel participant.
func peerRole(isHost bool) string {
	if isHost {
		return "host"
	}
	return "joiner"
}

// New constructs a peer. cfg may be nil to use config.Default* values.
func New(name string, isHost bool, cfg *config.Config, opts ...Option) *Peer {
	if cfg == nil {
		cfg = &config.Config{
			Address:           config.DefaultAddr,
			AckTimeout:        config.DefaultAckTimeout,
			RetryInterval:     config.DefaultRetryInterval,
			MaxRetries:        config.DefaultMaxRetries,
			SocketPollTimeout: config.DefaultSocketPollTimeout,
			ChatRateWindow:    config.DefaultChatRateWindow,
			ChatRateBurst:     config.DefaultChatRateBurst,
		}
	}
	p := &Peer{
		Name:    name,
		IsHost:  isHost,
		cfg:     cfg,
		log:     logging.L(),
		session: duelsession.New(),
		randGen: func() int { return 1 + rand.Intn(1000000) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	role := peerRole(isHost)
	if p.roleOverride != "" {
		role = p.roleOverride
	}
	_, p.log = logging.WithDuel(context.Background(),
		p.log.With(logging.String("peer", name)), p.session.Snapshot().DuelID, role)
	p.chatLimiter = newChatRateLimiter(cfg.ChatRateWindow, cfg.ChatRateBurst, nil)
	if isHost {
		p.session.JoinHost(name)
	}
	return p
}

// Snapshot reports the current duelsession roster, for admin introspection.
func (p *Peer) Snapshot() duelsession.Snapshot { return p.session.Snapshot() }

// BattlePhase reports the current battle.State as a string, or "SETUP" if no
// battle has been constructed yet.
func (p *Peer) BattlePhase() string {
	p.duelMu.Lock()
	defer p.duelMu.Unlock()
	if p.duel == nil {
		return battle.Setup.String()
	}
	return p.duel.State().String()
}

// IsConnected reports whether a HANDSHAKE_RESPONSE has been processed
// (joiner side) establishing the duel's agreed seed.
func (p *Peer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// HasReceivedOpponentSetup reports whether the opponent's BATTLE_SETUP has
// been processed yet.
func (p *Peer) HasReceivedOpponentSetup() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.receivedSetup
}

// Start binds the UDP socket, starts the reliability layer, and begins the
// receive loop.
func (p *Peer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", p.cfg.Address)
	if err != nil {
		return fmt.Errorf("resolve address %q: %w", p.cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %q: %w", p.cfg.Address, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	p.reliability = reliability.New(p.sendRaw, p.cfg, reliability.WithLogger(p.log))
	p.reliability.Start()

	go p.receiveLoop()

	p.log.Info("peer listening", logging.String("address", p.cfg.Address), logging.Bool("is_host", p.IsHost))
	return nil
}

// Stop terminates the receive loop, the reliability layer, and closes the socket.
func (p *Peer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh, conn := p.stopCh, p.doneCh, p.conn
	p.mu.Unlock()

	close(stopCh)
	if p.reliability != nil {
		p.reliability.Stop()
	}
	if conn != nil {
		conn.Close()
	}
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
	}
}

func (p *Peer) sendRaw(payload []byte) {
	p.mu.Lock()
	conn, addr := p.conn, p.remoteAddr
	p.mu.Unlock()
	if conn == nil || addr == nil {
		return
	}
	conn.WriteToUDP(payload, addr)
}

func (p *Peer) sendFrame(frame wire.Frame, seq int) {
	raw := wire.Encode(frame)
	p.reliability.Send(raw, &seq)
	if p.onFrame != nil {
		p.onFrame("sent", frame.Type(), raw)
	}
}

// sendUnreliable transmits a frame directly, bypassing the reliability
// layer. ACKs use this, since they are unsequenced and never retried, as do
// DISCOVERY_REQUEST/RESPONSE: broadcast discovery has no single remote
// address to retry against.
func (p *Peer) sendUnreliable(frame wire.Frame, addr *net.UDPAddr) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("peer not started")
	}
	raw := wire.Encode(frame)
	if _, err := conn.WriteToUDP(raw, addr); err != nil {
		return err
	}
	if p.onFrame != nil {
		p.onFrame("sent", frame.Type(), raw)
	}
	return nil
}

// setRemoteAddr records the peer's UDP endpoint once it is known, either
// from an explicit connect call or from the source of the first datagram.
func (p *Peer) setRemoteAddr(addr *net.UDPAddr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remoteAddr == nil {
		p.remoteAddr = addr
	}
}

// ConnectAsJoiner sends the initial HANDSHAKE_REQUEST to a host.
func (p *Peer) ConnectAsJoiner(hostAddr *net.UDPAddr) {
	p.mu.Lock()
	p.remoteAddr = hostAddr
	p.mu.Unlock()

	seq := p.reliability.NextSequenceNumber()
	p.sendFrame(wire.NewHandshakeRequest(seq), seq)
}

// ConnectAsSpectator sends a SPECTATOR_REQUEST to a host.
func (p *Peer) ConnectAsSpectator(hostAddr *net.UDPAddr) {
	p.mu.Lock()
	p.isSpectator = true
	p.remoteAddr = hostAddr
	p.mu.Unlock()

	seq := p.reliability.NextSequenceNumber()
	p.sendFrame(wire.NewSpectatorRequest(seq), seq)
}

// SendBattleSetup announces the local combatant choice.
func (p *Peer) SendBattleSetup(combatantName string) error {
	p.mu.Lock()
	if p.myCombatant == nil {
		c, err := model.Lookup(combatantName)
		if err != nil {
			p.mu.Unlock()
			return err
		}
		p.myCombatant = &c
		p.myBoosts = damage.Boosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
	}
	combatant := *p.myCombatant
	boosts := p.myBoosts
	haveSeed, seed := p.haveSeed, p.seed
	p.mu.Unlock()

	against := make(map[string]float64, len(model.ElementalTypes))
	for _, t := range model.ElementalTypes {
		against[t] = combatant.Against(t)
	}
	payload := wire.PokemonPayload{
		Name: combatant.Name, PokedexNumber: combatant.PokedexNumber,
		HP: combatant.HP, Attack: combatant.Attack, Defense: combatant.Defense,
		SpAttack: combatant.SpAttack, SpDefense: combatant.SpDefense, Speed: combatant.Speed,
		Type1: combatant.Type1, Type2: combatant.Type2, Against: against,
	}
	seq := p.reliability.NextSequenceNumber()
	frame, err := wire.NewBattleSetup("P2P", combatant.Name, wire.StatBoosts{
		SpecialAttackUses: boosts.SpecialAttackUses, SpecialDefenseUses: boosts.SpecialDefenseUses,
	}, payload, seq, seed, haveSeed)
	if err != nil {
		return err
	}
	p.sendFrame(frame, seq)

	p.mu.Lock()
	p.sentSetup = true
	p.mu.Unlock()

	p.maybeStartBattle()
	return nil
}

// SendAttack announces and calculates the local attack for the current turn.
func (p *Peer) SendAttack(moveName string) error {
	p.duelMu.Lock()
	defer p.duelMu.Unlock()

	duel := p.duel
	if duel == nil || !duel.CanAttack() {
		return fmt.Errorf("cannot attack at this time")
	}

	seq, err := duel.AnnounceAttack(moveName)
	if err != nil {
		return err
	}
	p.sendFrame(wire.NewAttackAnnounce(moveName, seq), seq)

	record := duel.CalculateTurn(moveName, true)
	duel.ApplyCalculation(record, true)

	calcSeq := seq + 1
	p.sendFrame(wire.NewCalculationReport(record.Attacker, record.MoveUsed, record.RemainingHealth,
		record.DamageDealt, record.DefenderHPRemaining, record.StatusMessage, calcSeq), calcSeq)

	if p.onBattleUpdate != nil {
		p.onBattleUpdate(record.StatusMessage)
	}
	p.checkGameOverLocked()
	return nil
}

// SendChat sends a text or sticker chat message, enforcing the configured
// sliding-window rate limit.
func (p *Peer) SendChat(contentType, text string, stickerImage []byte) error {
	if !p.chatLimiter.Allow() {
		return fmt.Errorf("chat rate limit exceeded")
	}
	seq := p.reliability.NextSequenceNumber()
	sticker := ""
	if contentType == string(wire.ContentSticker) {
		sticker = base64.StdEncoding.EncodeToString(stickerImage)
	}
	p.sendFrame(wire.NewChatMessage(p.Name, wire.ContentType(contentType), text, sticker, seq), seq)
	return nil
}

// Discover broadcasts a DISCOVERY_REQUEST and waits up to timeout for the
// first DISCOVERY_RESPONSE, returning the responder's address and name.
func (p *Peer) Discover(broadcastAddr *net.UDPAddr, timeout time.Duration) (*net.UDPAddr, string, error) {
	waiter := make(chan discoveryResult, 1)
	p.mu.Lock()
	p.discoveryWaiter = waiter
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.discoveryWaiter = nil
		p.mu.Unlock()
	}()

	if err := p.sendUnreliable(wire.NewDiscoveryRequest(p.Name), broadcastAddr); err != nil {
		return nil, "", err
	}

	select {
	case found := <-waiter:
		return found.addr, found.name, nil
	case <-time.After(timeout):
		return nil, "", fmt.Errorf("discovery timed out after %s", timeout)
	}
}

func (p *Peer) receiveLoop() {
	defer close(p.doneCh)
	buf := make([]byte, 4096)
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		p.conn.SetReadDeadline(time.Now().Add(p.cfg.SocketPollTimeout))
		n, addr, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-p.stopCh:
				return
			default:
				p.log.Warn("receive loop error", logging.Error(err))
				continue
			}
		}

		raw := append([]byte(nil), buf[:n]...)
		frame, err := wire.Decode(raw)
		if err != nil {
			p.log.Warn("dropping malformed frame", logging.Error(err), logging.String("remote_addr", addr.String()))
			continue
		}
		// Discovery frames are broadcast/unicast probes exchanged before a
		// remote peer is chosen; every other frame type implies the sender
		// is now this peer's duel counterpart.
		if frame.Type() != wire.DiscoveryRequest && frame.Type() != wire.DiscoveryResponse {
			p.setRemoteAddr(addr)
		}
		if p.onFrame != nil {
			p.onFrame("received", frame.Type(), raw)
		}
		p.handleFrame(frame, addr)
	}
}

// checkGameOverLocked sends GAME_OVER (once) and fires the callback if the
// battle has just reached the terminal state. Callers must already hold
// duelMu. SendAttack and every incoming handler that can conclude a turn
// (ATTACK_ANNOUNCE, CALCULATION_REPORT, CALCULATION_CONFIRM,
// RESOLUTION_REQUEST) call this immediately after applying damage, mirroring
// the reference peer's post-action GAME_OVER check.
func (p *Peer) checkGameOverLocked() {
	duel := p.duel
	p.mu.Lock()
	alreadySent := p.gameOverSent
	p.mu.Unlock()
	if duel == nil || alreadySent || duel.State() != battle.GameOver {
		return
	}
	winner, ok := duel.GetWinner()
	if !ok {
		return
	}
	var loser string
	if winner == duel.MyCombatant.Name {
		loser = duel.OpponentCombatant.Name
	} else {
		loser = duel.MyCombatant.Name
	}

	p.mu.Lock()
	p.gameOverSent = true
	p.mu.Unlock()

	seq := p.reliability.NextSequenceNumber()
	p.sendFrame(wire.NewGameOver(winner, loser, seq), seq)
	if p.onGameOver != nil {
		p.onGameOver(winner, loser)
	}
}
