// Package battle implements the lockstep turn state machine: the sequence
// of phases (SETUP -> WAITING_FOR_MOVE -> PROCESSING_TURN -> GAME_OVER) both
// peers drive in unison from identical inputs.
package battle

import (
	"errors"

	"pokeduel/internal/damage"
	"pokeduel/internal/model"
)

// State tags the battle's current phase.
type State int

const (
	Setup State = iota
	WaitingForMove
	ProcessingTurn
	GameOver
)

func (s State) String() string {
	switch s {
	case Setup:
		return "SETUP"
	case WaitingForMove:
		return "WAITING_FOR_MOVE"
	case ProcessingTurn:
		return "PROCESSING_TURN"
	case GameOver:
		return "GAME_OVER"
	default:
		return "UNKNOWN"
	}
}

// Errors surfaced by illegal operations; callers translate these into the
// application-precondition error kind documented in spec.md §7.
var (
	ErrNotMyTurn       = errors.New("not my turn to attack")
	ErrReceivedOnMyTurn = errors.New("received attack announce when it is my turn")
	ErrNotSetUp        = errors.New("battle has not been set up")
)

// CalculationRecord is the tuple both peers exchange and compare for a turn.
// Equality for lockstep convergence is checked on Attacker, MoveUsed,
// DamageDealt and DefenderHPRemaining only; RemainingHealth (the attacker's
// own HP, unaffected by its own move) is
// carried for observability but excluded from the comparison, per spec.md's
// resolved Open Question.
type CalculationRecord struct {
	Attacker            string
	MoveUsed            string
	RemainingHealth     int
	DamageDealt         int
	DefenderHPRemaining int
	StatusMessage       string
}

// matches reports whether two records agree on the disambiguating fields.
func (r CalculationRecord) matches(other CalculationRecord) bool {
	return r.Attacker == other.Attacker &&
		r.MoveUsed == other.MoveUsed &&
		r.DamageDealt == other.DamageDealt &&
		r.DefenderHPRemaining == other.DefenderHPRemaining
}

// Battle is one peer's view of a lockstep duel. It is mutated only by the
// state machine, under the discipline described in spec.md §5: never
// concurrently, always from the receive loop or the application thread.
type Battle struct {
	state State

	MyCombatant       model.Combatant
	OpponentCombatant model.Combatant

	MyCurrentHP       int
	OpponentCurrentHP int

	MyBoosts       damage.Boosts
	OpponentBoosts damage.Boosts

	IsHost    bool
	IsMyTurn  bool

	CurrentSequence int
	CurrentMove     string

	MyCalc  *CalculationRecord
	OppCalc *CalculationRecord

	engine *damage.Engine
}

// New constructs a battle engine seeded at handshake time. The battle starts
// in SETUP; is_my_turn is derived from isHost once SetupBattle runs.
func New(seed int, isHost bool) *Battle {
	return &Battle{
		state:  Setup,
		IsHost: isHost,
		engine: damage.NewEngine(seed),
	}
}

// State returns the current phase tag.
func (b *Battle) State() State { return b.state }

// SetupBattle transitions SETUP -> WAITING_FOR_MOVE, initializing HP to base
// HP and copying the supplied boost counters.
func (b *Battle) SetupBattle(my, opponent model.Combatant, myBoosts, opponentBoosts damage.Boosts) {
	b.MyCombatant = my
	b.OpponentCombatant = opponent
	b.MyCurrentHP = my.HP
	b.OpponentCurrentHP = opponent.HP
	b.MyBoosts = myBoosts
	b.OpponentBoosts = opponentBoosts
	b.IsMyTurn = b.IsHost
	b.state = WaitingForMove
}

// CanAttack reports whether the local peer may call AnnounceAttack.
func (b *Battle) CanAttack() bool {
	return b.state == WaitingForMove && b.IsMyTurn
}

// AnnounceAttack transitions WAITING_FOR_MOVE -> PROCESSING_TURN on the local
// announce, returning the sequence number owned by this turn.
func (b *Battle) AnnounceAttack(moveName string) (int, error) {
	if !b.CanAttack() {
		return 0, ErrNotMyTurn
	}
	b.CurrentSequence++
	b.CurrentMove = moveName
	b.state = ProcessingTurn
	return b.CurrentSequence, nil
}

// ReceiveAttackAnnounce transitions WAITING_FOR_MOVE -> PROCESSING_TURN on
// receipt of the opponent's announce.
func (b *Battle) ReceiveAttackAnnounce(moveName string) (int, error) {
	if b.IsMyTurn {
		return 0, ErrReceivedOnMyTurn
	}
	b.CurrentSequence++
	b.CurrentMove = moveName
	b.state = ProcessingTurn
	return b.CurrentSequence, nil
}

// CalculateTurn runs the damage formula for the current move, from the
// perspective of whichever side is attacking, and stores the resulting
// record in the matching calc slot.
func (b *Battle) CalculateTurn(moveName string, isAttacker bool) CalculationRecord {
	move := model.LookupMove(moveName)

	var attacker, defender model.Combatant
	var attackerBoosts, defenderBoosts *damage.Boosts
	if isAttacker {
		attacker, defender = b.MyCombatant, b.OpponentCombatant
		attackerBoosts, defenderBoosts = &b.MyBoosts, &b.OpponentBoosts
	} else {
		attacker, defender = b.OpponentCombatant, b.MyCombatant
		attackerBoosts, defenderBoosts = &b.OpponentBoosts, &b.MyBoosts
	}

	result := b.engine.Calculate(attacker, defender, moveName, move, attackerBoosts, defenderBoosts)

	var remainingHealth, defenderHPRemaining int
	if isAttacker {
		defenderHPRemaining = damage.ApplyDamage(b.OpponentCurrentHP, result.DamageDealt)
		remainingHealth = b.MyCurrentHP
	} else {
		defenderHPRemaining = damage.ApplyDamage(b.MyCurrentHP, result.DamageDealt)
		remainingHealth = b.OpponentCurrentHP
	}

	record := CalculationRecord{
		Attacker:            attacker.Name,
		MoveUsed:            moveName,
		RemainingHealth:     remainingHealth,
		DamageDealt:         result.DamageDealt,
		DefenderHPRemaining: defenderHPRemaining,
		StatusMessage:       result.StatusMessage,
	}

	if isAttacker {
		b.MyCalc = &record
	} else {
		b.OppCalc = &record
	}
	return record
}

// ApplyCalculation stores an incoming calculation record into the named slot
// and applies its damage to the appropriate HP field.
func (b *Battle) ApplyCalculation(record CalculationRecord, isMyCalc bool) {
	if isMyCalc {
		b.MyCalc = &record
		if record.Attacker == b.MyCombatant.Name {
			b.OpponentCurrentHP = record.DefenderHPRemaining
		} else {
			b.MyCurrentHP = record.DefenderHPRemaining
		}
		return
	}
	b.OppCalc = &record
	if record.Attacker == b.OpponentCombatant.Name {
		b.MyCurrentHP = record.DefenderHPRemaining
	} else {
		b.OpponentCurrentHP = record.DefenderHPRemaining
	}
}

// CalculationsMatch reports whether both calc slots are populated and agree
// on the disambiguating fields.
func (b *Battle) CalculationsMatch() bool {
	if b.MyCalc == nil || b.OppCalc == nil {
		return false
	}
	return b.MyCalc.matches(*b.OppCalc)
}

// AdoptIncoming implements the "accept incoming" mismatch resolution policy:
// it overwrites both local calc slots with the authoritative record and
// applies its damage, without recomputing the RNG. The peer calls it only
// when a RESOLUTION_REQUEST arrives; a peer that detects a mismatch itself
// sends RESOLUTION_REQUEST and adopts nothing until the opponent's request
// reaches it. This diverges from the original
// peer's silent no-op on mismatch; spec.md designates it the defensive
// revision this implementation follows.
func (b *Battle) AdoptIncoming(record CalculationRecord) {
	b.MyCalc = &record
	b.OppCalc = &record
	if record.Attacker == b.MyCombatant.Name {
		b.OpponentCurrentHP = record.DefenderHPRemaining
	} else {
		b.MyCurrentHP = record.DefenderHPRemaining
	}
}

// ConfirmCalculation advances PROCESSING_TURN once both calc slots agree:
// to GAME_OVER if either HP has reached zero, otherwise back to
// WAITING_FOR_MOVE with the turn flipped and the calc slots cleared. A turn
// announced at sequence N also uses N+1 (report) and N+2 (confirm), so the
// next turn starts at N+3.
// Returns false (no transition) if the calculations do not yet match.
func (b *Battle) ConfirmCalculation() bool {
	if !b.CalculationsMatch() {
		return false
	}
	if b.MyCurrentHP <= 0 || b.OpponentCurrentHP <= 0 {
		b.state = GameOver
		return true
	}
	b.CurrentSequence += 2
	b.IsMyTurn = !b.IsMyTurn
	b.state = WaitingForMove
	b.MyCalc = nil
	b.OppCalc = nil
	return true
}

// GetWinner returns the winning combatant's name once the battle has reached
// GAME_OVER; ok is false otherwise.
func (b *Battle) GetWinner() (name string, ok bool) {
	if b.state != GameOver {
		return "", false
	}
	if b.MyCurrentHP <= 0 {
		return b.OpponentCombatant.Name, true
	}
	if b.OpponentCurrentHP <= 0 {
		return b.MyCombatant.Name, true
	}
	return "", false
}
