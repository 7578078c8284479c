// Package wire implements the PokeProtocol text-frame codec: newline
// terminated "key: value" lines, one frame per datagram, UTF-8 throughout.
package wire

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the recognized message_type values.
type Kind string

const (
	HandshakeRequest  Kind = "HANDSHAKE_REQUEST"
	HandshakeResponse Kind = "HANDSHAKE_RESPONSE"
	SpectatorRequest  Kind = "SPECTATOR_REQUEST"
	BattleSetup       Kind = "BATTLE_SETUP"
	AttackAnnounce    Kind = "ATTACK_ANNOUNCE"
	DefenseAnnounce   Kind = "DEFENSE_ANNOUNCE"
	CalculationReport Kind = "CALCULATION_REPORT"
	CalculationConfirm Kind = "CALCULATION_CONFIRM"
	ResolutionRequest Kind = "RESOLUTION_REQUEST"
	GameOver          Kind = "GAME_OVER"
	ChatMessage       Kind = "CHAT_MESSAGE"
	Ack               Kind = "ACK"
	HostAnnouncement  Kind = "HOST_ANNOUNCEMENT"
	DiscoveryRequest  Kind = "DISCOVERY_REQUEST"
	DiscoveryResponse Kind = "DISCOVERY_RESPONSE"
)

// ErrMalformedFrame is returned when a datagram cannot be parsed into a frame.
var ErrMalformedFrame = fmt.Errorf("malformed frame")

// Frame is a parsed message: an unordered set of string fields keyed by name.
// Nested JSON fields (stat_boosts, pokemon) are kept as raw strings and
// decoded on demand by callers that know the expected shape.
type Frame map[string]string

// Type returns the frame's message_type field.
func (f Frame) Type() Kind { return Kind(f["message_type"]) }

// SequenceNumber parses the sequence_number field. ACK frames carry
// ack_number instead and have no sequence_number.
func (f Frame) SequenceNumber() (int, error) {
	raw, ok := f["sequence_number"]
	if !ok {
		return 0, fmt.Errorf("%w: missing sequence_number", ErrMalformedFrame)
	}
	return strconv.Atoi(raw)
}

// AckNumber parses the ack_number field of an ACK frame.
func (f Frame) AckNumber() (int, error) {
	raw, ok := f["ack_number"]
	if !ok {
		return 0, fmt.Errorf("%w: missing ack_number", ErrMalformedFrame)
	}
	return strconv.Atoi(raw)
}

// Decode parses a single frame out of datagram bytes. Malformed lines
// (missing the ':' separator) are skipped rather than failing the whole
// frame, matching the permissive line-oriented parser this format was
// distilled from; a frame with no message_type is rejected outright.
func Decode(data []byte) (Frame, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("%w: empty datagram", ErrMalformedFrame)
	}
	frame := make(Frame)
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		frame[key] = value
	}
	if frame["message_type"] == "" {
		return nil, fmt.Errorf("%w: missing message_type", ErrMalformedFrame)
	}
	return frame, nil
}

// Encode serializes a frame into newline-terminated "key: value" lines.
// Field order is sorted for determinism; the wire format treats fields as
// unordered so this has no semantic effect.
func Encode(frame Frame) []byte {
	keys := make([]string, 0, len(frame))
	for key := range frame {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %s", key, frame[key]))
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func itoa(n int) string { return strconv.Itoa(n) }

// NewHandshakeRequest builds a HANDSHAKE_REQUEST frame.
func NewHandshakeRequest(seq int) Frame {
	return Frame{"message_type": string(HandshakeRequest), "sequence_number": itoa(seq)}
}

// NewHandshakeResponse builds a HANDSHAKE_RESPONSE frame carrying the agreed seed.
func NewHandshakeResponse(seed, seq int) Frame {
	return Frame{
		"message_type":    string(HandshakeResponse),
		"seed":            itoa(seed),
		"sequence_number": itoa(seq),
	}
}

// NewSpectatorRequest builds a SPECTATOR_REQUEST frame.
func NewSpectatorRequest(seq int) Frame {
	return Frame{"message_type": string(SpectatorRequest), "sequence_number": itoa(seq)}
}

// StatBoosts mirrors the recognized boost-counter keys.
type StatBoosts struct {
	SpecialAttackUses  int `json:"special_attack_uses"`
	SpecialDefenseUses int `json:"special_defense_uses"`
}

// PokemonPayload is the nested JSON stat block carried on BATTLE_SETUP.
type PokemonPayload struct {
	Name          string             `json:"name"`
	PokedexNumber int                `json:"pokedex_number"`
	HP            int                `json:"hp"`
	Attack        int                `json:"attack"`
	Defense       int                `json:"defense"`
	SpAttack      int                `json:"sp_attack"`
	SpDefense     int                `json:"sp_defense"`
	Speed         int                `json:"speed"`
	Type1         string             `json:"type1"`
	Type2         string             `json:"type2,omitempty"`
	Against       map[string]float64 `json:"against"`
}

// NewBattleSetup builds a BATTLE_SETUP frame. seed is optional; pass
// hasSeed=false to omit it.
func NewBattleSetup(communicationMode, pokemonName string, boosts StatBoosts, pokemon PokemonPayload, seq int, seed int, hasSeed bool) (Frame, error) {
	boostsJSON, err := json.Marshal(boosts)
	if err != nil {
		return nil, fmt.Errorf("encode stat_boosts: %w", err)
	}
	pokemonJSON, err := json.Marshal(pokemon)
	if err != nil {
		return nil, fmt.Errorf("encode pokemon: %w", err)
	}
	frame := Frame{
		"message_type":       string(BattleSetup),
		"communication_mode": communicationMode,
		"pokemon_name":       pokemonName,
		"stat_boosts":        string(boostsJSON),
		"pokemon":            string(pokemonJSON),
		"sequence_number":    itoa(seq),
	}
	if hasSeed {
		frame["seed"] = itoa(seed)
	}
	return frame, nil
}

// DecodeStatBoosts parses the stat_boosts JSON field of a BATTLE_SETUP frame.
func (f Frame) DecodeStatBoosts() (StatBoosts, error) {
	var boosts StatBoosts
	raw, ok := f["stat_boosts"]
	if !ok {
		return boosts, fmt.Errorf("%w: missing stat_boosts", ErrMalformedFrame)
	}
	if err := json.Unmarshal([]byte(raw), &boosts); err != nil {
		return boosts, fmt.Errorf("%w: stat_boosts: %v", ErrMalformedFrame, err)
	}
	return boosts, nil
}

// DecodePokemon parses the pokemon JSON field of a BATTLE_SETUP frame.
func (f Frame) DecodePokemon() (PokemonPayload, error) {
	var payload PokemonPayload
	raw, ok := f["pokemon"]
	if !ok {
		return payload, fmt.Errorf("%w: missing pokemon", ErrMalformedFrame)
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, fmt.Errorf("%w: pokemon: %v", ErrMalformedFrame, err)
	}
	return payload, nil
}

// NewAttackAnnounce builds an ATTACK_ANNOUNCE frame.
func NewAttackAnnounce(moveName string, seq int) Frame {
	return Frame{
		"message_type":    string(AttackAnnounce),
		"move_name":       moveName,
		"sequence_number": itoa(seq),
	}
}

// NewDefenseAnnounce builds a DEFENSE_ANNOUNCE frame.
func NewDefenseAnnounce(seq int) Frame {
	return Frame{"message_type": string(DefenseAnnounce), "sequence_number": itoa(seq)}
}

// NewCalculationReport builds a CALCULATION_REPORT frame.
func NewCalculationReport(attacker, moveUsed string, remainingHealth, damageDealt, defenderHPRemaining int, statusMessage string, seq int) Frame {
	return Frame{
		"message_type":          string(CalculationReport),
		"attacker":              attacker,
		"move_used":             moveUsed,
		"remaining_health":      itoa(remainingHealth),
		"damage_dealt":          itoa(damageDealt),
		"defender_hp_remaining": itoa(defenderHPRemaining),
		"status_message":        statusMessage,
		"sequence_number":       itoa(seq),
	}
}

// NewCalculationConfirm builds a CALCULATION_CONFIRM frame.
func NewCalculationConfirm(seq int) Frame {
	return Frame{"message_type": string(CalculationConfirm), "sequence_number": itoa(seq)}
}

// NewResolutionRequest builds a RESOLUTION_REQUEST frame.
func NewResolutionRequest(attacker, moveUsed string, damageDealt, defenderHPRemaining int, seq int) Frame {
	return Frame{
		"message_type":          string(ResolutionRequest),
		"attacker":              attacker,
		"move_used":             moveUsed,
		"damage_dealt":          itoa(damageDealt),
		"defender_hp_remaining": itoa(defenderHPRemaining),
		"sequence_number":       itoa(seq),
	}
}

// NewGameOver builds a GAME_OVER frame.
func NewGameOver(winner, loser string, seq int) Frame {
	return Frame{
		"message_type":    string(GameOver),
		"winner":          winner,
		"loser":           loser,
		"sequence_number": itoa(seq),
	}
}

// ContentType enumerates CHAT_MESSAGE payload kinds.
type ContentType string

const (
	ContentText    ContentType = "TEXT"
	ContentSticker ContentType = "STICKER"
)

// NewChatMessage builds a CHAT_MESSAGE frame. Exactly one of messageText or
// stickerData (base64 PNG) should be non-empty, matching contentType.
func NewChatMessage(senderName string, contentType ContentType, messageText, stickerData string, seq int) Frame {
	frame := Frame{
		"message_type":    string(ChatMessage),
		"sender_name":     senderName,
		"content_type":    string(contentType),
		"sequence_number": itoa(seq),
	}
	switch contentType {
	case ContentText:
		if messageText != "" {
			frame["message_text"] = messageText
		}
	case ContentSticker:
		if stickerData != "" {
			frame["sticker_data"] = stickerData
		}
	}
	return frame
}

// NewHostAnnouncement builds a HOST_ANNOUNCEMENT frame for broadcast discovery.
func NewHostAnnouncement(hostName string, port int, pokemonName string) Frame {
	frame := Frame{
		"message_type": string(HostAnnouncement),
		"host_name":    hostName,
		"port":         itoa(port),
	}
	if pokemonName != "" {
		frame["pokemon_name"] = pokemonName
	}
	return frame
}

// NewDiscoveryRequest builds a DISCOVERY_REQUEST frame.
func NewDiscoveryRequest(joinerName string) Frame {
	return Frame{"message_type": string(DiscoveryRequest), "joiner_name": joinerName}
}

// NewDiscoveryResponse builds a DISCOVERY_RESPONSE frame.
func NewDiscoveryResponse(hostName string, port int, pokemonName string) Frame {
	frame := Frame{
		"message_type": string(DiscoveryResponse),
		"host_name":    hostName,
		"port":         itoa(port),
	}
	if pokemonName != "" {
		frame["pokemon_name"] = pokemonName
	}
	return frame
}

// NewAck builds an ACK frame. ACK frames carry ack_number, never sequence_number.
func NewAck(ackNumber int) Frame {
	return Frame{"message_type": string(Ack), "ack_number": itoa(ackNumber)}
}
