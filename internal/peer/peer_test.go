package peer

import (
	"net"
	"sync"
	"testing"
	"time"

	"pokeduel/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Address:           "127.0.0.1:0",
		AckTimeout:        200 * time.Millisecond,
		RetryInterval:     10 * time.Millisecond,
		MaxRetries:        3,
		SocketPollTimeout: 50 * time.Millisecond,
		ChatRateWindow:    time.Minute,
		ChatRateBurst:     20,
	}
}

type gameOverCapture struct {
	mu            sync.Mutex
	winner, loser string
	received      bool
}

func (c *gameOverCapture) record(winner, loser string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.winner, c.loser, c.received = winner, loser, true
}

func (c *gameOverCapture) snapshot() (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.winner, c.loser, c.received
}

func startPeer(t *testing.T, name string, isHost bool, opts ...Option) *Peer {
	t.Helper()
	p := New(name, isHost, testConfig(), opts...)
	if err := p.Start(); err != nil {
		t.Fatalf("Start(%s): %v", name, err)
	}
	t.Cleanup(p.Stop)
	return p
}

func localAddr(t *testing.T, p *Peer) *net.UDPAddr {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	addr, ok := p.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("peer %s has no bound UDP address", p.Name)
	}
	return addr
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not satisfied within %s", timeout)
}

// TestFullDuelReachesGameOver drives a complete handshake, setup, and
// one-sided knockout between two in-process peers over real loopback UDP
// sockets, mirroring poke_protocol_peer.py's end-to-end flow.
func TestFullDuelReachesGameOver(t *testing.T) {
	hostOver := &gameOverCapture{}
	joinerOver := &gameOverCapture{}

	host := startPeer(t, "Ash", true, WithGameOver(hostOver.record))
	joiner := startPeer(t, "Gary", false, WithGameOver(joinerOver.record))

	joiner.ConnectAsJoiner(localAddr(t, host))
	waitFor(t, 2*time.Second, joiner.IsConnected)

	if err := host.SendBattleSetup("Pikachu"); err != nil {
		t.Fatalf("host SendBattleSetup: %v", err)
	}
	if err := joiner.SendBattleSetup("Charmander"); err != nil {
		t.Fatalf("joiner SendBattleSetup: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return host.BattlePhase() == "WAITING_FOR_MOVE" })
	waitFor(t, 2*time.Second, func() bool { return joiner.BattlePhase() == "WAITING_FOR_MOVE" })

	// Host attacks repeatedly until the battle concludes; each turn alternates
	// via the battle state machine so only the correct side ever calls
	// SendAttack successfully.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, over := hostOver.snapshot(); over {
			break
		}
		host.SendAttack("Thunderbolt")
		joiner.SendAttack("Scratch")
		time.Sleep(20 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, _, ok := hostOver.snapshot()
		return ok
	})
	winner, loser, ok := hostOver.snapshot()
	if !ok || winner == "" || loser == "" || winner == loser {
		t.Fatalf("expected a conclusive GAME_OVER, got winner=%q loser=%q ok=%v", winner, loser, ok)
	}
}

// TestChatRoundTripDeliversTextMessage exercises SendChat end-to-end and
// confirms the receiving peer's onChatReceived callback fires with the sent text.
func TestChatRoundTripDeliversTextMessage(t *testing.T) {
	var mu sync.Mutex
	var gotSender, gotText string

	host := startPeer(t, "Ash", true)
	joiner := startPeer(t, "Gary", false, WithChatReceived(func(sender, contentType, text string, image []byte) {
		mu.Lock()
		defer mu.Unlock()
		gotSender, gotText = sender, text
	}))

	joiner.ConnectAsJoiner(localAddr(t, host))
	waitFor(t, 2*time.Second, joiner.IsConnected)

	if err := host.SendChat("TEXT", "gl hf", nil); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotText != ""
	})
	mu.Lock()
	defer mu.Unlock()
	if gotSender != "Ash" || gotText != "gl hf" {
		t.Fatalf("unexpected chat delivery: sender=%q text=%q", gotSender, gotText)
	}
}

// TestSendAttackRejectedOutsideTurn confirms a peer cannot announce an
// attack before the battle has been set up.
func TestSendAttackRejectedOutsideTurn(t *testing.T) {
	host := startPeer(t, "Ash", true)
	if err := host.SendAttack("Thunderbolt"); err == nil {
		t.Fatal("expected SendAttack to fail before a battle has been set up")
	}
}

// TestDiscoverReturnsHostAddress exercises the broadcast discovery handshake.
func TestDiscoverReturnsHostAddress(t *testing.T) {
	host := startPeer(t, "Ash", true)
	joiner := startPeer(t, "Gary", false)

	addr, name, err := joiner.Discover(localAddr(t, host), time.Second)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if name != "Ash" {
		t.Fatalf("expected discovered host name Ash, got %q", name)
	}
	if addr.Port != localAddr(t, host).Port {
		t.Fatalf("expected discovery response from host's own port, got %d", addr.Port)
	}
}
