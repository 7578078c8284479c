// Package damage implements the deterministic damage formula shared by both
// peers: a pure function of (attacker, defender, move, stat boosts, one RNG
// draw) to (damage dealt, status message). Both peers must compute
// bit-identical results from identical inputs for the lockstep to converge.
package damage

import (
	"fmt"
	"math"
	"math/rand"

	"pokeduel/internal/model"
)

// Level is fixed at 50 for every calculation, per the wire contract.
const Level = 50

// Boosts tracks the mutable special-attack/special-defense boost counters
// for one side of a battle. A physical move never consults or mutates these.
type Boosts struct {
	SpecialAttackUses  int
	SpecialDefenseUses int
}

// Engine wraps one seeded RNG stream shared between both combatants' turns.
// It is the only cross-call mutable state visible to the damage formula; a
// single draw is consumed per call, in the documented position, so that both
// peers (seeded identically at handshake) draw the same value for the same
// turn.
type Engine struct {
	rng *rand.Rand
}

// NewEngine constructs a damage engine seeded with the handshake-agreed seed.
func NewEngine(seed int) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(int64(seed)))}
}

// Result is the outcome of one damage calculation.
type Result struct {
	DamageDealt   int
	StatusMessage string
}

// Calculate computes damage dealt by attacker against defender using the
// given move, consulting and mutating the boost counters, and returns the
// damage along with a human-readable status message. moveName is the literal
// move name the caller announced and is independent of move: an unrecognized
// move name still resolves to model.DefaultMove's type/power/category for the
// formula, but the status message must read back the name the caller
// actually attempted, not the table entry it fell back to. The RNG stream is
// consumed exactly once, at the position documented in spec.md: after
// resolving type effectiveness, before the final formula evaluation.
func (e *Engine) Calculate(attacker, defender model.Combatant, moveName string, move model.Move, attackerBoosts, defenderBoosts *Boosts) Result {
	//1.- Select the attacking/defending stat pair by damage category.
	var attackerStat, defenderStat int
	switch move.Category {
	case model.Physical:
		attackerStat = attacker.Attack
		defenderStat = defender.Defense
	default:
		attackerStat = attacker.SpAttack
		defenderStat = defender.SpDefense
	}

	//2.- Special moves alone consult the boost counters; physical moves ignore them.
	if move.Category == model.Special {
		if attackerBoosts != nil && attackerBoosts.SpecialAttackUses > 0 {
			attackerStat = int(float64(attackerStat) * 1.5)
			attackerBoosts.SpecialAttackUses--
		}
		if defenderBoosts != nil && defenderBoosts.SpecialDefenseUses > 0 {
			defenderStat = int(float64(defenderStat) * 1.5)
			defenderBoosts.SpecialDefenseUses--
		}
	}

	//3.- Type effectiveness is already the dual-type combined product.
	effectiveness := defender.Against(move.Type)

	//4.- Exactly one RNG draw per calculation, in [0.85, 1.0).
	randomFactor := 0.85 + e.rng.Float64()*0.15

	//5.- Evaluate the formula and truncate to integer exactly once more, at the end.
	raw := ((2*float64(Level)/5 + 2) * move.Power * float64(attackerStat) / float64(defenderStat) / 50 + 2) * effectiveness * randomFactor
	damageDealt := int(math.Floor(raw))

	return Result{
		DamageDealt:   damageDealt,
		StatusMessage: statusMessage(attacker.Name, moveName, effectiveness),
	}
}

// ApplyDamage clamps current HP minus damage at zero.
func ApplyDamage(currentHP, damageDealt int) int {
	remaining := currentHP - damageDealt
	if remaining < 0 {
		return 0
	}
	return remaining
}

func statusMessage(attackerName, moveName string, effectiveness float64) string {
	suffix := ""
	switch {
	case effectiveness == 0:
		suffix = " It had no effect!"
	case effectiveness <= 0.5:
		suffix = " It's not very effective..."
	case effectiveness >= 2.0:
		suffix = " It was super effective!"
	}
	return fmt.Sprintf("%s used %s!%s", attackerName, moveName, suffix)
}
