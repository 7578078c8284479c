// Package model holds the immutable combatant and move data consulted by the
// damage and battle packages. Data is loaded once from embedded JSON and never
// mutated afterward.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "embed"
)

// ElementalTypes enumerates the 18 recognized elemental types, in the order
// the embedded catalog and wire JSON expect.
var ElementalTypes = []string{
	"bug", "dark", "dragon", "electric", "fairy", "fighting", "fire", "flying",
	"ghost", "grass", "ground", "ice", "normal", "poison", "psychic", "rock",
	"steel", "water",
}

// Combatant is an immutable Pokemon stat block. Instances are never mutated
// after construction; they are shared by reference between the catalog and
// any number of battle states.
type Combatant struct {
	Name           string             `json:"name"`
	PokedexNumber  int                `json:"pokedex_number"`
	HP             int                `json:"hp"`
	Attack         int                `json:"attack"`
	Defense        int                `json:"defense"`
	SpAttack       int                `json:"sp_attack"`
	SpDefense      int                `json:"sp_defense"`
	Speed          int                `json:"speed"`
	Type1          string             `json:"type1"`
	Type2          string             `json:"type2,omitempty"`
	AgainstTable   map[string]float64 `json:"against"`
}

// Against returns the stored incoming-damage multiplier for moveType. The
// table already represents the dual-type product; callers must not multiply
// it again. Unknown move types default to 1.0.
func (c Combatant) Against(moveType string) float64 {
	if c.AgainstTable == nil {
		return 1.0
	}
	if multiplier, ok := c.AgainstTable[strings.ToLower(moveType)]; ok {
		return multiplier
	}
	return 1.0
}

type combatantFile struct {
	Combatants []Combatant `json:"combatants"`
}

//go:embed combatants.json
var combatantPayload []byte

var (
	catalogOnce sync.Once
	catalogByName   map[string]Combatant
	catalogByNumber map[int]Combatant
	catalogErr      error
)

func loadCatalog() {
	var decoded combatantFile
	catalogErr = json.Unmarshal(combatantPayload, &decoded)
	if catalogErr != nil {
		return
	}
	catalogByName = make(map[string]Combatant, len(decoded.Combatants))
	catalogByNumber = make(map[int]Combatant, len(decoded.Combatants))
	for _, combatant := range decoded.Combatants {
		catalogByName[strings.ToLower(combatant.Name)] = combatant
		catalogByNumber[combatant.PokedexNumber] = combatant
	}
}

// ErrUnknownCombatant is returned when a requested combatant name has no
// catalog entry.
var ErrUnknownCombatant = fmt.Errorf("unknown combatant")

// Lookup resolves a combatant by case-insensitive name from the embedded
// catalog.
func Lookup(name string) (Combatant, error) {
	catalogOnce.Do(loadCatalog)
	if catalogErr != nil {
		return Combatant{}, catalogErr
	}
	combatant, ok := catalogByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Combatant{}, fmt.Errorf("%w: %q", ErrUnknownCombatant, name)
	}
	return combatant, nil
}

// LookupByPokedexNumber resolves a combatant by its pokedex number.
func LookupByPokedexNumber(number int) (Combatant, error) {
	catalogOnce.Do(loadCatalog)
	if catalogErr != nil {
		return Combatant{}, catalogErr
	}
	combatant, ok := catalogByNumber[number]
	if !ok {
		return Combatant{}, fmt.Errorf("%w: #%d", ErrUnknownCombatant, number)
	}
	return combatant, nil
}

// All returns every catalog entry, sorted by pokedex number is not
// guaranteed; callers that need stable ordering should sort the result.
func All() ([]Combatant, error) {
	catalogOnce.Do(loadCatalog)
	if catalogErr != nil {
		return nil, catalogErr
	}
	combatants := make([]Combatant, 0, len(catalogByName))
	for _, combatant := range catalogByName {
		combatants = append(combatants, combatant)
	}
	return combatants, nil
}
