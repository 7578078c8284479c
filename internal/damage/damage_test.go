package damage

import (
	"strings"
	"testing"

	"pokeduel/internal/model"
)

func TestCalculateIsDeterministicForFixedSeed(t *testing.T) {
	pikachu, err := model.Lookup("Pikachu")
	if err != nil {
		t.Fatalf("lookup Pikachu: %v", err)
	}
	charmander, err := model.Lookup("Charmander")
	if err != nil {
		t.Fatalf("lookup Charmander: %v", err)
	}
	move := model.LookupMove("Thunderbolt")

	run := func() Result {
		engine := NewEngine(12345)
		attackerBoosts := &Boosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
		defenderBoosts := &Boosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
		return engine.Calculate(pikachu, charmander, "Thunderbolt", move, attackerBoosts, defenderBoosts)
	}

	first := run()
	second := run()
	if first != second {
		t.Fatalf("expected identical results for the same seed, got %+v vs %+v", first, second)
	}
	if first.DamageDealt <= 0 {
		t.Fatalf("expected positive damage, got %d", first.DamageDealt)
	}
}

func TestCalculateConsumesExactlyOneRNGDraw(t *testing.T) {
	pikachu, _ := model.Lookup("Pikachu")
	charmander, _ := model.Lookup("Charmander")
	move := model.LookupMove("Thunderbolt")

	engine := NewEngine(1)
	boosts := &Boosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
	engine.Calculate(pikachu, charmander, "Thunderbolt", move, boosts, boosts)
	stateAfterFirst := engine.rng.Int63()

	engine2 := NewEngine(1)
	boosts2 := &Boosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
	engine2.Calculate(pikachu, charmander, "Thunderbolt", move, boosts2, boosts2)
	stateAfterSecond := engine2.rng.Int63()

	if stateAfterFirst != stateAfterSecond {
		t.Fatalf("expected RNG stream to advance identically for identical calls")
	}
}

func TestSpecialBoostAppliesOnceAndDecrements(t *testing.T) {
	pikachu, _ := model.Lookup("Pikachu")
	charmander, _ := model.Lookup("Charmander")
	move := model.LookupMove("Thunderbolt")

	engine := NewEngine(7)
	attackerBoosts := &Boosts{SpecialAttackUses: 1, SpecialDefenseUses: 0}
	defenderBoosts := &Boosts{SpecialAttackUses: 0, SpecialDefenseUses: 0}
	engine.Calculate(pikachu, charmander, "Thunderbolt", move, attackerBoosts, defenderBoosts)

	if attackerBoosts.SpecialAttackUses != 0 {
		t.Fatalf("expected special_attack_uses to decrement to 0, got %d", attackerBoosts.SpecialAttackUses)
	}
}

func TestPhysicalMoveIgnoresBoosts(t *testing.T) {
	pikachu, _ := model.Lookup("Pikachu")
	charmander, _ := model.Lookup("Charmander")
	move := model.LookupMove("Tackle")

	engine := NewEngine(9)
	attackerBoosts := &Boosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
	engine.Calculate(pikachu, charmander, "Tackle", move, attackerBoosts, attackerBoosts)
	if attackerBoosts.SpecialAttackUses != 5 {
		t.Fatalf("expected physical move to leave boosts untouched, got %d", attackerBoosts.SpecialAttackUses)
	}
}

func TestZeroEffectivenessYieldsNoEffectMessage(t *testing.T) {
	gengar, err := model.Lookup("Gengar")
	if err != nil {
		t.Fatalf("lookup Gengar: %v", err)
	}
	snorlax, err := model.Lookup("Snorlax")
	if err != nil {
		t.Fatalf("lookup Snorlax: %v", err)
	}
	move := model.Move{Name: "Mystery Move", Type: "normal", Power: 40, Category: model.Physical}

	engine := NewEngine(3)
	boosts := &Boosts{}
	result := engine.Calculate(snorlax, gengar, move.Name, move, boosts, boosts)
	if result.DamageDealt != 0 {
		t.Fatalf("expected zero damage against an immune type, got %d", result.DamageDealt)
	}
	want := "Snorlax used Mystery Move! It had no effect!"
	if result.StatusMessage != want {
		t.Fatalf("expected status message %q, got %q", want, result.StatusMessage)
	}
}

// TestCalculateReportsLiteralMoveNameForUnrecognizedMove guards against
// deriving the status message from the table-resolved model.Move instead of
// the caller's literal move name: LookupMove falls back to DefaultMove
// ("Tackle") for any unrecognized name, but the status text must still read
// back what the caller actually announced.
func TestCalculateReportsLiteralMoveNameForUnrecognizedMove(t *testing.T) {
	pikachu, _ := model.Lookup("Pikachu")
	charmander, _ := model.Lookup("Charmander")
	literalName := "Thunder Fang"
	move := model.LookupMove(literalName)
	if move != model.DefaultMove {
		t.Fatalf("expected %q to fall back to DefaultMove, got %+v", literalName, move)
	}

	engine := NewEngine(3)
	boosts := &Boosts{}
	result := engine.Calculate(pikachu, charmander, literalName, move, boosts, boosts)
	if !strings.Contains(result.StatusMessage, literalName) {
		t.Fatalf("expected status message to contain the literal move name %q, got %q", literalName, result.StatusMessage)
	}
	if strings.Contains(result.StatusMessage, move.Name) && move.Name != literalName {
		t.Fatalf("expected status message not to use the table-resolved move name %q, got %q", move.Name, result.StatusMessage)
	}
}

func TestApplyDamageClampsAtZero(t *testing.T) {
	if got := ApplyDamage(10, 15); got != 0 {
		t.Fatalf("expected clamped result 0, got %d", got)
	}
	if got := ApplyDamage(10, 4); got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}
}
