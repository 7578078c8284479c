package model

import (
	"errors"
	"testing"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	lower, err := Lookup("pikachu")
	if err != nil {
		t.Fatalf("Lookup(pikachu): %v", err)
	}
	mixed, err := Lookup("PiKaChU")
	if err != nil {
		t.Fatalf("Lookup(PiKaChU): %v", err)
	}
	if lower.Name != mixed.Name || lower.Name != "Pikachu" {
		t.Fatalf("expected both lookups to resolve to Pikachu, got %q and %q", lower.Name, mixed.Name)
	}
}

func TestLookupUnknownCombatantReturnsSentinel(t *testing.T) {
	_, err := Lookup("Missingno")
	if err == nil {
		t.Fatal("expected an error for an unknown combatant")
	}
	if !errors.Is(err, ErrUnknownCombatant) {
		t.Fatalf("expected error to wrap ErrUnknownCombatant, got %v", err)
	}
}

func TestLookupByPokedexNumber(t *testing.T) {
	byName, err := Lookup("Charmander")
	if err != nil {
		t.Fatalf("Lookup(Charmander): %v", err)
	}
	byNumber, err := LookupByPokedexNumber(byName.PokedexNumber)
	if err != nil {
		t.Fatalf("LookupByPokedexNumber(%d): %v", byName.PokedexNumber, err)
	}
	if byNumber.Name != "Charmander" {
		t.Fatalf("expected Charmander, got %q", byNumber.Name)
	}
}

func TestAgainstDefaultsToNeutralForUnknownType(t *testing.T) {
	pikachu, err := Lookup("Pikachu")
	if err != nil {
		t.Fatalf("Lookup(Pikachu): %v", err)
	}
	if got := pikachu.Against("made_up_type"); got != 1.0 {
		t.Fatalf("expected neutral multiplier for an unrecognized type, got %v", got)
	}
}

func TestAllReturnsNonEmptyCatalog(t *testing.T) {
	combatants, err := All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(combatants) == 0 {
		t.Fatal("expected the embedded catalog to contain at least one combatant")
	}
}
