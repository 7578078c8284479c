// Command pokeduel runs one PokeProtocol peer: a host waiting for a
// challenger, a joiner connecting to a known host, or a read-only
// spectator. It wires the peer orchestrator to a transcript writer, a
// websocket spectator bridge, and a gRPC admin introspection service, the
// way the teacher's broker wires its simulation loop to gRPC and HTTP
// servers side by side in func main.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"google.golang.org/grpc"

	"pokeduel/internal/admin"
	"pokeduel/internal/config"
	"pokeduel/internal/duelsession"
	"pokeduel/internal/logging"
	"pokeduel/internal/peer"
	"pokeduel/internal/spectator"
	"pokeduel/internal/transcript"
	"pokeduel/internal/wire"
)

func main() {
	name := flag.String("name", "", "trainer name this peer presents to its opponent")
	host := flag.Bool("host", false, "run as the duel host, waiting for a joiner")
	joinAddr := flag.String("join", "", "host address to connect to, e.g. 127.0.0.1:8888 (joiner mode)")
	spectate := flag.Bool("spectate", false, "connect as a read-only spectator instead of a combatant")
	combatant := flag.String("combatant", "", "combatant name to field once connected")
	duelID := flag.String("duel-id", "", "identifier for this duel, used to label the transcript bundle")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "pokeduel: -name is required")
		os.Exit(1)
	}
	if !*host && *joinAddr == "" {
		fmt.Fprintln(os.Stderr, "pokeduel: either -host or -join=<addr> is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "pokeduel: invalid configuration:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pokeduel: failed to initialise logging:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sessionOpts := []duelsession.Option{}
	if *duelID != "" {
		sessionOpts = append(sessionOpts, duelsession.WithDuelID(*duelID))
	}
	session := duelsession.New(sessionOpts...)

	writer, err := transcript.NewWriter(cfg.TranscriptDir, session.Snapshot().DuelID, nil)
	if err != nil {
		logger.Fatal("failed to open transcript writer", logging.Error(err))
	}
	defer writer.Close()

	bridge := spectator.NewBridge(logger.With(logging.String("component", "spectator_bridge")))

	p := buildPeer(*name, *host, *spectate, cfg, session, writer, bridge, logger)

	if cfg.AdminAddr != "" {
		go serveAdmin(cfg.AdminAddr, p, logger)
	}
	if cfg.SpectatorBridgeAddr != "" {
		go serveSpectatorBridge(cfg.SpectatorBridgeAddr, bridge, logger)
	}

	if err := p.Start(); err != nil {
		logger.Fatal("failed to start peer", logging.Error(err))
	}
	defer p.Stop()

	switch {
	case *spectate:
		hostAddr, err := net.ResolveUDPAddr("udp", *joinAddr)
		if err != nil {
			logger.Fatal("invalid -join address", logging.Error(err))
		}
		p.ConnectAsSpectator(hostAddr)
	case *joinAddr != "":
		hostAddr, err := net.ResolveUDPAddr("udp", *joinAddr)
		if err != nil {
			logger.Fatal("invalid -join address", logging.Error(err))
		}
		p.ConnectAsJoiner(hostAddr)
	}

	if *combatant != "" && !*spectate {
		if err := p.SendBattleSetup(*combatant); err != nil {
			logger.Error("failed to send battle setup", logging.Error(err))
		}
	}

	runConsole(p, *spectate, logger)
}

// buildPeer wires the peer orchestrator to the transcript writer and
// spectator bridge: every sent/received frame is persisted, every battle
// update and chat line is fanned out to connected spectators, and every
// sticker payload lands in the sticker blob store.
func buildPeer(name string, isHost, isSpectator bool, cfg *config.Config, session *duelsession.Session, writer *transcript.Writer, bridge *spectator.Bridge, logger *logging.Logger) *peer.Peer {
	opts := []peer.Option{
		peer.WithLogger(logger.With(logging.String("component", "peer"))),
		peer.WithSession(session),
	}
	if isSpectator {
		opts = append(opts, peer.WithPeerRole("spectator"))
	}
	opts = append(opts,
		peer.WithFrameObserver(func(direction string, messageType wire.Kind, raw []byte) {
			if err := writer.AppendFrame(direction, string(messageType), raw); err != nil {
				logger.Warn("failed to persist transcript frame", logging.Error(err))
			}
		}),
		peer.WithBattleUpdate(func(message string) {
			bridge.Broadcast(spectator.Event{Type: "battle_update", Message: message})
		}),
		peer.WithChatReceived(func(sender, contentType, text string, image []byte) {
			if text != "" {
				bridge.Broadcast(spectator.Event{Type: "chat", Message: fmt.Sprintf("%s: %s", sender, text)})
			}
		}),
		peer.WithGameOver(func(winner, loser string) {
			bridge.Broadcast(spectator.Event{Type: "game_over", Message: fmt.Sprintf("%s defeated %s", winner, loser)})
		}),
		peer.WithStickerReceived(func(sender string, image []byte) {
			if _, err := writer.AppendSticker(sender, image); err != nil {
				logger.Warn("failed to persist sticker", logging.Error(err), logging.String("sender", sender))
			}
		}),
	)
	return peer.New(name, isHost, cfg, opts...)
}

// serveAdmin exposes the admin introspection RPC over gRPC, mirroring the
// teacher's dedicated gRPC listener running alongside the main transport.
func serveAdmin(addr string, p *peer.Peer, logger *logging.Logger) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to start admin gRPC listener", logging.Error(err), logging.String("address", addr))
		return
	}
	server := grpc.NewServer()
	admin.RegisterService(server, admin.NewService(p))
	logger.Info("admin gRPC service listening", logging.String("address", addr))
	if err := server.Serve(listener); err != nil {
		logger.Error("admin gRPC server terminated", logging.Error(err))
	}
}

// serveSpectatorBridge exposes the websocket spectator feed over HTTP.
func serveSpectatorBridge(addr string, bridge *spectator.Bridge, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/spectate", bridge)
	logger.Info("spectator bridge listening", logging.String("address", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("spectator bridge server terminated", logging.Error(err))
	}
}

// runConsole reads simple line commands from stdin so a peer can be driven
// interactively: "attack <move>" and "chat <text>" for combatants, plain
// Ctrl-D to exit for everyone.
func runConsole(p *peer.Peer, readOnly bool, logger *logging.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("pokeduel ready; commands: attack <move>, chat <text>, quit")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		switch fields[0] {
		case "quit", "exit":
			return
		case "attack":
			if readOnly || len(fields) < 2 {
				fmt.Println("attack requires a move name and is unavailable to spectators")
				continue
			}
			if err := p.SendAttack(fields[1]); err != nil {
				logger.Warn("attack rejected", logging.Error(err))
			}
		case "chat":
			if len(fields) < 2 {
				continue
			}
			if err := p.SendChat("TEXT", fields[1], nil); err != nil {
				logger.Warn("chat rejected", logging.Error(err))
			}
		case "status":
			fmt.Println(p.BattlePhase())
		default:
			fmt.Println("unrecognised command:", fields[0])
		}
	}
}
