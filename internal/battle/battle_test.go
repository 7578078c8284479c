package battle

import (
	"testing"

	"pokeduel/internal/damage"
	"pokeduel/internal/model"
)

func setupTestBattle(t *testing.T, isHost bool) *Battle {
	t.Helper()
	pikachu, err := model.Lookup("Pikachu")
	if err != nil {
		t.Fatalf("lookup Pikachu: %v", err)
	}
	charmander, err := model.Lookup("Charmander")
	if err != nil {
		t.Fatalf("lookup Charmander: %v", err)
	}
	b := New(12345, isHost)
	boosts := damage.Boosts{SpecialAttackUses: 5, SpecialDefenseUses: 5}
	b.SetupBattle(pikachu, charmander, boosts, boosts)
	return b
}

func TestSetupBattleInitializesState(t *testing.T) {
	b := setupTestBattle(t, true)
	if b.State() != WaitingForMove {
		t.Fatalf("expected WAITING_FOR_MOVE after setup, got %s", b.State())
	}
	if !b.IsMyTurn {
		t.Fatal("expected host to move first")
	}
	if b.MyCurrentHP != b.MyCombatant.HP || b.OpponentCurrentHP != b.OpponentCombatant.HP {
		t.Fatal("expected HP initialized to base HP")
	}
}

func TestCanAttackRequiresWaitingAndTurn(t *testing.T) {
	host := setupTestBattle(t, true)
	if !host.CanAttack() {
		t.Fatal("expected host to be able to attack first")
	}
	joiner := setupTestBattle(t, false)
	if joiner.CanAttack() {
		t.Fatal("expected joiner to not be able to attack first")
	}
}

func TestAnnounceAttackRejectsWhenNotMyTurn(t *testing.T) {
	joiner := setupTestBattle(t, false)
	if _, err := joiner.AnnounceAttack("Thunderbolt"); err != ErrNotMyTurn {
		t.Fatalf("expected ErrNotMyTurn, got %v", err)
	}
}

func TestHappyTurnFlipsIsMyTurnAndReducesHP(t *testing.T) {
	host := setupTestBattle(t, true)
	// Quick Attack deals at most 24 to Charmander's 39 HP, so the turn ends
	// without a knockout regardless of the RNG draw.
	seq, err := host.AnnounceAttack("Quick Attack")
	if err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected sequence 1, got %d", seq)
	}
	if host.State() != ProcessingTurn {
		t.Fatalf("expected PROCESSING_TURN, got %s", host.State())
	}

	myCalc := host.CalculateTurn("Quick Attack", true)
	oppCalc := myCalc // simulate the opponent computing byte-identical results
	host.ApplyCalculation(oppCalc, false)

	if !host.CalculationsMatch() {
		t.Fatal("expected calculations to match when both records are identical")
	}

	startingOppHP := host.OpponentCombatant.HP
	if !host.ConfirmCalculation() {
		t.Fatal("expected ConfirmCalculation to succeed")
	}
	if host.State() != WaitingForMove {
		t.Fatalf("expected WAITING_FOR_MOVE after confirm, got %s", host.State())
	}
	if host.IsMyTurn {
		t.Fatal("expected turn to flip to the opponent")
	}
	if host.OpponentCurrentHP >= startingOppHP {
		t.Fatal("expected opponent HP to decrease")
	}
	if host.MyCalc != nil || host.OppCalc != nil {
		t.Fatal("expected calc slots to be cleared after confirm")
	}
}

func TestMismatchAdoptsIncomingValues(t *testing.T) {
	host := setupTestBattle(t, true)
	if _, err := host.AnnounceAttack("Thunderbolt"); err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}
	host.CalculateTurn("Thunderbolt", true)

	incoming := CalculationRecord{
		Attacker:            host.MyCombatant.Name,
		MoveUsed:            "Thunderbolt",
		DamageDealt:         50,
		DefenderHPRemaining: host.OpponentCombatant.HP - 50,
	}
	host.AdoptIncoming(incoming)

	if !host.CalculationsMatch() {
		t.Fatal("expected adopted records to match")
	}
	if host.OpponentCurrentHP != incoming.DefenderHPRemaining {
		t.Fatalf("expected opponent HP %d, got %d", incoming.DefenderHPRemaining, host.OpponentCurrentHP)
	}
}

func TestConfirmCalculationTransitionsToGameOver(t *testing.T) {
	host := setupTestBattle(t, true)
	if _, err := host.AnnounceAttack("Thunderbolt"); err != nil {
		t.Fatalf("AnnounceAttack: %v", err)
	}
	record := CalculationRecord{
		Attacker:            host.MyCombatant.Name,
		MoveUsed:            "Thunderbolt",
		DamageDealt:         host.OpponentCombatant.HP,
		DefenderHPRemaining: 0,
	}
	host.ApplyCalculation(record, true)
	host.ApplyCalculation(record, false)

	if !host.ConfirmCalculation() {
		t.Fatal("expected ConfirmCalculation to succeed")
	}
	if host.State() != GameOver {
		t.Fatalf("expected GAME_OVER, got %s", host.State())
	}
	winner, ok := host.GetWinner()
	if !ok {
		t.Fatal("expected a winner once the game is over")
	}
	if winner != host.MyCombatant.Name {
		t.Fatalf("expected winner %q, got %q", host.MyCombatant.Name, winner)
	}
}

func TestCalculationsMatchExcludesRemainingHealth(t *testing.T) {
	host := setupTestBattle(t, true)
	base := CalculationRecord{Attacker: "Pikachu", MoveUsed: "Thunderbolt", DamageDealt: 20, DefenderHPRemaining: 15}
	mine := base
	mine.RemainingHealth = 35
	theirs := base
	theirs.RemainingHealth = 999
	host.MyCalc = &mine
	host.OppCalc = &theirs
	if !host.CalculationsMatch() {
		t.Fatal("expected records with differing remaining_health to still match")
	}
}
