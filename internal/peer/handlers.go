package peer

import (
	"encoding/base64"
	"net"
	"strconv"

	"pokeduel/internal/battle"
	"pokeduel/internal/damage"
	"pokeduel/internal/logging"
	"pokeduel/internal/model"
	"pokeduel/internal/wire"
)

// handleFrame is the single dispatch point for every received frame. Per
// spec.md's defensive reliability revision, duplicates are always ACKed
// (so a peer whose own ACK was lost stops retrying) but are never
// re-dispatched to the application handlers below.
func (p *Peer) handleFrame(frame wire.Frame, addr *net.UDPAddr) {
	if frame.Type() == wire.Ack {
		ackNumber, err := frame.AckNumber()
		if err != nil {
			p.log.Warn("malformed ACK frame", logging.Error(err))
			return
		}
		p.reliability.HandleAck(ackNumber)
		return
	}

	seq, err := frame.SequenceNumber()
	if err == nil {
		duplicate := p.reliability.IsDuplicate(seq)
		p.sendUnreliable(wire.NewAck(seq), addr)
		if duplicate {
			return
		}
	}

	switch frame.Type() {
	case wire.HandshakeRequest:
		p.handleHandshakeRequest(frame, addr)
	case wire.HandshakeResponse:
		p.handleHandshakeResponse(frame)
	case wire.SpectatorRequest:
		p.handleSpectatorRequest(frame, addr)
	case wire.BattleSetup:
		p.handleBattleSetup(frame)
	case wire.AttackAnnounce:
		p.handleAttackAnnounce(frame)
	case wire.DefenseAnnounce:
		// No-op beyond acknowledging receipt: both sides are now processing
		// the same turn, matching the reference peer's empty handler.
	case wire.CalculationReport:
		p.handleCalculationReport(frame)
	case wire.CalculationConfirm:
		p.handleCalculationConfirm()
	case wire.ResolutionRequest:
		p.handleResolutionRequest(frame)
	case wire.GameOver:
		p.handleGameOver(frame)
	case wire.ChatMessage:
		p.handleChatMessage(frame)
	case wire.DiscoveryRequest:
		p.handleDiscoveryRequest(frame, addr)
	case wire.DiscoveryResponse:
		p.handleDiscoveryResponse(frame, addr)
	default:
		p.log.Warn("unrecognized message_type", logging.String("message_type", string(frame.Type())))
	}
}

// handleHandshakeRequest is host-only: it agrees a seed for the duel's RNG
// stream and replies with HANDSHAKE_RESPONSE. If the local combatant has
// already been chosen, it also (re)sends BATTLE_SETUP, matching the
// reference peer's eager resend once the remote address is known.
func (p *Peer) handleHandshakeRequest(frame wire.Frame, addr *net.UDPAddr) {
	if !p.IsHost {
		return
	}
	p.setRemoteAddr(addr)

	p.mu.Lock()
	if !p.haveSeed {
		p.haveSeed = true
		p.seed = p.randGen()
	}
	seed := p.seed
	combatantSet := p.myCombatant != nil
	combatantName := ""
	if combatantSet {
		combatantName = p.myCombatant.Name
	}
	p.mu.Unlock()

	seq := p.reliability.NextSequenceNumber()
	p.sendFrame(wire.NewHandshakeResponse(seed, seq), seq)

	p.session.JoinOpponent(addr.String())

	if combatantSet {
		p.SendBattleSetup(combatantName)
	}
}

// handleHandshakeResponse is joiner-only: it records the agreed seed and
// marks the connection established.
func (p *Peer) handleHandshakeResponse(frame wire.Frame) {
	if p.IsHost {
		return
	}
	seedStr, ok := frame["seed"]
	if !ok {
		return
	}
	seed, err := strconv.Atoi(seedStr)
	if err != nil {
		p.log.Warn("malformed seed in HANDSHAKE_RESPONSE", logging.Error(err))
		return
	}

	p.mu.Lock()
	p.haveSeed = true
	p.seed = seed
	p.connected = true
	combatantSet := p.myCombatant != nil
	combatantName := ""
	if combatantSet {
		combatantName = p.myCombatant.Name
	}
	p.mu.Unlock()

	if combatantSet {
		p.SendBattleSetup(combatantName)
	}
}

// handleSpectatorRequest is host-only: spectators share the same
// HANDSHAKE_RESPONSE seed agreement as a joiner, but never get a combatant
// slot in the duel session.
func (p *Peer) handleSpectatorRequest(frame wire.Frame, addr *net.UDPAddr) {
	if !p.IsHost {
		return
	}
	p.mu.Lock()
	if !p.haveSeed {
		p.haveSeed = true
		p.seed = p.randGen()
	}
	seed := p.seed
	p.mu.Unlock()

	seq := p.reliability.NextSequenceNumber()
	p.sendFrame(wire.NewHandshakeResponse(seed, seq), seq)
	p.session.JoinSpectator(addr.String())
}

// handleBattleSetup records the opponent's combatant choice and, once both
// sides' combatants and the seed are all known, transitions the battle out
// of SETUP. This exact gate (both pokemon AND a seed) matches the reference
// peer's construction condition.
func (p *Peer) handleBattleSetup(frame wire.Frame) {
	payload, err := frame.DecodePokemon()
	if err != nil {
		p.log.Warn("malformed pokemon payload in BATTLE_SETUP", logging.Error(err))
		return
	}
	boosts, err := frame.DecodeStatBoosts()
	if err != nil {
		p.log.Warn("malformed stat_boosts in BATTLE_SETUP", logging.Error(err))
		return
	}
	opponent, err := model.Lookup(payload.Name)
	if err != nil {
		p.log.Warn("unknown opponent combatant in BATTLE_SETUP", logging.Error(err), logging.String("name", payload.Name))
		return
	}

	if seedStr, ok := frame["seed"]; ok {
		if seed, convErr := strconv.Atoi(seedStr); convErr == nil {
			p.mu.Lock()
			if !p.haveSeed {
				p.haveSeed = true
				p.seed = seed
			}
			p.mu.Unlock()
		}
	}

	p.mu.Lock()
	p.oppBoosts = damage.Boosts{SpecialAttackUses: boosts.SpecialAttackUses, SpecialDefenseUses: boosts.SpecialDefenseUses}
	p.receivedSetup = true
	p.mu.Unlock()
	p.setOpponentCombatant(opponent)

	p.maybeStartBattle()
}

// opponentCombatant is held separately from the Battle so it survives being
// learned before the Battle itself is constructed (the seed may arrive
// after the opponent's setup, or vice versa).
func (p *Peer) setOpponentCombatant(c model.Combatant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingOpponent = &c
}

// maybeStartBattle constructs the Battle (if needed) and calls SetupBattle
// once this peer knows the seed, its own combatant, and the opponent's
// combatant — and only while still in SETUP. p.mu is released before duelMu
// is taken here; elsewhere p.mu is only ever acquired while duelMu is
// already held (checkGameOverLocked, sendRaw), never the reverse.
func (p *Peer) maybeStartBattle() {
	p.mu.Lock()
	if !p.haveSeed || p.isSpectator || p.myCombatant == nil || p.pendingOpponent == nil {
		p.mu.Unlock()
		return
	}
	seed := p.seed
	isHost := p.IsHost
	myCombatant := *p.myCombatant
	opponent := *p.pendingOpponent
	myBoosts, oppBoosts := p.myBoosts, p.oppBoosts
	p.mu.Unlock()

	p.duelMu.Lock()
	defer p.duelMu.Unlock()
	if p.duel == nil {
		p.duel = battle.New(seed, isHost)
	}
	if p.duel.State() != battle.Setup {
		return
	}
	p.duel.SetupBattle(myCombatant, opponent, myBoosts, oppBoosts)
	p.reliability.ResetReceivedSequences()
}

// handleAttackAnnounce processes the opponent's turn announce: it computes
// this side's view of the same turn and reports it back, then checks for a
// just-completed game.
func (p *Peer) handleAttackAnnounce(frame wire.Frame) {
	moveName := frame["move_name"]
	p.mu.Lock()
	isSpectator := p.isSpectator
	p.mu.Unlock()

	if isSpectator {
		if p.onBattleUpdate != nil {
			p.onBattleUpdate("Opponent used " + moveName + "!")
		}
		return
	}

	p.duelMu.Lock()
	defer p.duelMu.Unlock()
	duel := p.duel
	if duel == nil {
		return
	}

	seq, err := duel.ReceiveAttackAnnounce(moveName)
	if err != nil {
		p.log.Warn("rejected ATTACK_ANNOUNCE", logging.Error(err))
		return
	}
	p.sendFrame(wire.NewDefenseAnnounce(seq), seq)

	record := duel.CalculateTurn(moveName, false)
	duel.ApplyCalculation(record, false)

	calcSeq := seq + 1
	p.sendFrame(wire.NewCalculationReport(record.Attacker, record.MoveUsed, record.RemainingHealth,
		record.DamageDealt, record.DefenderHPRemaining, record.StatusMessage, calcSeq), calcSeq)

	if p.onBattleUpdate != nil {
		p.onBattleUpdate(record.StatusMessage)
	}
	p.checkGameOverLocked()
}

// handleCalculationReport applies the reported calculation to the calc slot
// opposite this side's own calculation, then compares the two. On agreement
// it confirms the turn; on mismatch it sends a RESOLUTION_REQUEST carrying
// the MyCalc slot, which on both sides holds the attacker's calculation, and
// the turn advances when the opponent's RESOLUTION_REQUEST arrives.
func (p *Peer) handleCalculationReport(frame wire.Frame) {
	p.mu.Lock()
	isSpectator := p.isSpectator
	p.mu.Unlock()

	if isSpectator {
		if p.onBattleUpdate != nil {
			p.onBattleUpdate(frame["status_message"])
		}
		return
	}

	record, err := decodeCalculationReport(frame)
	if err != nil {
		p.log.Warn("malformed CALCULATION_REPORT", logging.Error(err))
		return
	}
	// CONFIRM/RESOLUTION_REQUEST continue the report's own sequence line
	// (report_seq + 1), matching poke_protocol_peer.py's single numbering
	// scheme, rather than drawing from reliability.Layer's independent
	// counter: that counter also serves out-of-band sends (SendChat), and
	// letting it advance a second, uncorrelated cadence on the same
	// pending-map/dedup-set keyspace risks a later CALCULATION_REPORT
	// colliding with an earlier CONFIRM/RESOLUTION_REQUEST sequence number
	// and being dropped as a false-positive duplicate.
	reportSeq, err := frame.SequenceNumber()
	if err != nil {
		p.log.Warn("CALCULATION_REPORT missing sequence_number", logging.Error(err))
		return
	}
	seq := reportSeq + 1

	p.duelMu.Lock()
	defer p.duelMu.Unlock()
	duel := p.duel
	if duel == nil {
		return
	}

	// The local calculation sits in MyCalc when this side attacked and in
	// OppCalc when it defended; the incoming report fills the other slot.
	isOpponentAttacker := record.Attacker == duel.OpponentCombatant.Name
	duel.ApplyCalculation(record, isOpponentAttacker)

	if duel.CalculationsMatch() {
		p.sendFrame(wire.NewCalculationConfirm(seq), seq)
		duel.ConfirmCalculation()
		p.checkGameOverLocked()
		return
	}

	if duel.MyCalc == nil {
		return
	}
	p.sendFrame(wire.NewResolutionRequest(duel.MyCalc.Attacker, duel.MyCalc.MoveUsed,
		duel.MyCalc.DamageDealt, duel.MyCalc.DefenderHPRemaining, seq), seq)
}

// handleCalculationConfirm advances the turn once the opponent has
// confirmed agreement.
func (p *Peer) handleCalculationConfirm() {
	p.mu.Lock()
	isSpectator := p.isSpectator
	p.mu.Unlock()
	if isSpectator {
		return
	}

	p.duelMu.Lock()
	defer p.duelMu.Unlock()
	if p.duel == nil {
		return
	}
	p.duel.ConfirmCalculation()
	p.checkGameOverLocked()
}

// handleResolutionRequest unconditionally adopts the sender's authoritative
// calculation and confirms, implementing battle.AdoptIncoming — the
// generalization of the reference peer's unconditional-accept behavior on a
// mismatch resolution.
func (p *Peer) handleResolutionRequest(frame wire.Frame) {
	p.mu.Lock()
	isSpectator := p.isSpectator
	p.mu.Unlock()
	if isSpectator {
		return
	}

	p.duelMu.Lock()
	defer p.duelMu.Unlock()
	duel := p.duel
	if duel == nil {
		return
	}

	attacker := frame["attacker"]
	moveUsed := frame["move_used"]
	damageDealt, _ := strconv.Atoi(frame["damage_dealt"])
	defenderHPRemaining, _ := strconv.Atoi(frame["defender_hp_remaining"])

	record := battle.CalculationRecord{
		Attacker:            attacker,
		MoveUsed:            moveUsed,
		DamageDealt:         damageDealt,
		DefenderHPRemaining: defenderHPRemaining,
	}
	duel.AdoptIncoming(record)
	duel.ConfirmCalculation()
	p.checkGameOverLocked()
}

// handleGameOver reports the final outcome once, whichever side announced it first.
func (p *Peer) handleGameOver(frame wire.Frame) {
	p.mu.Lock()
	alreadySent := p.gameOverSent
	p.gameOverSent = true
	p.mu.Unlock()
	if alreadySent {
		return
	}
	if p.onGameOver != nil {
		p.onGameOver(frame["winner"], frame["loser"])
	}
}

// handleChatMessage decodes an incoming chat frame, persisting STICKER
// payloads through the registered sticker sink before notifying the
// onChatReceived callback.
func (p *Peer) handleChatMessage(frame wire.Frame) {
	sender := frame["sender_name"]
	contentType := frame["content_type"]
	if contentType == "" {
		contentType = string(wire.ContentText)
	}
	text := frame["message_text"]

	var image []byte
	if contentType == string(wire.ContentSticker) {
		raw, ok := frame["sticker_data"]
		if ok {
			decoded, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				p.log.Warn("malformed sticker_data", logging.Error(err))
			} else {
				image = decoded
				if p.onStickerReceived != nil {
					p.onStickerReceived(sender, image)
				}
			}
		}
	}

	if p.onChatReceived != nil {
		p.onChatReceived(sender, contentType, text, image)
	}
}

// handleDiscoveryRequest is host-only: it answers a broadcast discovery
// probe with this host's own listening address details.
func (p *Peer) handleDiscoveryRequest(frame wire.Frame, addr *net.UDPAddr) {
	if !p.IsHost {
		return
	}
	p.mu.Lock()
	port := 0
	if p.conn != nil {
		if udpAddr, ok := p.conn.LocalAddr().(*net.UDPAddr); ok {
			port = udpAddr.Port
		}
	}
	combatantName := ""
	if p.myCombatant != nil {
		combatantName = p.myCombatant.Name
	}
	p.mu.Unlock()

	p.sendUnreliable(wire.NewDiscoveryResponse(p.Name, port, combatantName), addr)
}

// handleDiscoveryResponse delivers the first DISCOVERY_RESPONSE to a
// pending Discover call, if one is outstanding.
func (p *Peer) handleDiscoveryResponse(frame wire.Frame, addr *net.UDPAddr) {
	p.mu.Lock()
	waiter := p.discoveryWaiter
	p.mu.Unlock()
	if waiter == nil {
		return
	}
	select {
	case waiter <- discoveryResult{addr: addr, name: frame["host_name"]}:
	default:
	}
}

func decodeCalculationReport(frame wire.Frame) (battle.CalculationRecord, error) {
	remainingHealth, err := strconv.Atoi(frame["remaining_health"])
	if err != nil {
		return battle.CalculationRecord{}, err
	}
	damageDealt, err := strconv.Atoi(frame["damage_dealt"])
	if err != nil {
		return battle.CalculationRecord{}, err
	}
	defenderHPRemaining, err := strconv.Atoi(frame["defender_hp_remaining"])
	if err != nil {
		return battle.CalculationRecord{}, err
	}
	return battle.CalculationRecord{
		Attacker:            frame["attacker"],
		MoveUsed:            frame["move_used"],
		RemainingHealth:     remainingHealth,
		DamageDealt:         damageDealt,
		DefenderHPRemaining: defenderHPRemaining,
		StatusMessage:       frame["status_message"],
	}, nil
}
