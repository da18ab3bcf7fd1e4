package game

import (
	"fmt"
	"strings"
)

type DebtTerms struct {
	Principal        int64
	QuarterlyPayment int64
	InterestRate     float64
}

type GenerationRules struct {
	DurationMin         int
	DurationMax         int
	GoldPerDifficulty   int64
	MaterialPool        []string
	MaxMaterialQuantity int
}

// Rules carries the balance knobs a session is built from.
type Rules struct {
	QuarterLengthDays  int
	StartingGold       int64
	StartingReputation int
	Debt               DebtTerms
	RosterCapacity     int
	RecruitCost        int64
	DefaultStats       Stats
	DefaultLoyalty     int
	InitialQuests      int
	Generation         GenerationRules
	Equipment          []Equipment
}

func DefaultRules() Rules {
	return Rules{
		QuarterLengthDays:  DefaultQuarterLengthDays,
		StartingGold:       1500,
		StartingReputation: 30,
		Debt: DebtTerms{
			Principal:        10000,
			QuarterlyPayment: 500,
			InterestRate:     0.05,
		},
		RosterCapacity: 6,
		RecruitCost:    300,
		DefaultStats:   NewStats(5, 5, 5),
		DefaultLoyalty: 60,
		InitialQuests:  4,
		Generation: GenerationRules{
			DurationMin:         2,
			DurationMax:         7,
			GoldPerDifficulty:   100,
			MaterialPool:        []string{"herb", "iron_ore", "monster_hide", "ancient_scroll", "mana_crystal"},
			MaxMaterialQuantity: 3,
		},
		Equipment: []Equipment{
			{ID: "compass", Name: "Surveyor's Compass", Cost: 150, Bonuses: NewStats(2, 0, 0)},
			{ID: "longsword", Name: "Longsword", Cost: 200, Bonuses: NewStats(0, 3, 0)},
			{ID: "ledger", Name: "Bound Ledger", Cost: 120, Bonuses: NewStats(0, 0, 2)},
			{ID: "field-kit", Name: "Field Kit", Cost: 260, Bonuses: NewStats(2, 1, 1)},
		},
	}
}

func (r Rules) Validate() error {
	var problems []string
	if r.QuarterLengthDays <= 0 {
		problems = append(problems, "quarter length must be > 0")
	}
	if r.StartingGold < 0 {
		problems = append(problems, "starting gold must be >= 0")
	}
	if r.StartingReputation < ReputationMin || r.StartingReputation > ReputationMax {
		problems = append(problems, "starting reputation out of range")
	}
	if r.Debt.Principal < 0 || r.Debt.QuarterlyPayment <= 0 || r.Debt.InterestRate < 0 {
		problems = append(problems, "debt terms need principal >= 0, payment > 0, rate >= 0")
	}
	if r.RosterCapacity <= 0 {
		problems = append(problems, "roster capacity must be > 0")
	}
	if r.RecruitCost < 0 {
		problems = append(problems, "recruit cost must be >= 0")
	}
	for _, v := range r.DefaultStats {
		if v < StatMin || v > StatMax {
			problems = append(problems, "default stats must lie in [1,20]")
			break
		}
	}
	if r.DefaultLoyalty < LoyaltyMin || r.DefaultLoyalty > LoyaltyMax {
		problems = append(problems, "default loyalty out of range")
	}
	if r.InitialQuests < 0 {
		problems = append(problems, "initial quests must be >= 0")
	}
	g := r.Generation
	if g.DurationMin < 1 || g.DurationMax < g.DurationMin {
		problems = append(problems, "generation duration range invalid")
	}
	if g.GoldPerDifficulty < 0 {
		problems = append(problems, "gold per difficulty must be >= 0")
	}
	if len(g.MaterialPool) == 0 || g.MaxMaterialQuantity < 1 {
		problems = append(problems, "generation needs a material pool and max quantity >= 1")
	}
	seen := map[string]bool{}
	for _, e := range r.Equipment {
		if err := validateEquipment(e); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if e.ID == "" || seen[e.ID] {
			problems = append(problems, fmt.Sprintf("equipment id %q missing or duplicated", e.ID))
		}
		seen[e.ID] = true
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid rules: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EquipmentByID looks up a catalog item.
func (r Rules) EquipmentByID(id string) (Equipment, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, e := range r.Equipment {
		if e.ID == id {
			return e, true
		}
	}
	return Equipment{}, false
}

func validateEquipment(e Equipment) error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidEquipment)
	}
	if e.Cost < 0 {
		return fmt.Errorf("%w: %s cost must be >= 0", ErrInvalidEquipment, e.Name)
	}
	for i, v := range e.Bonuses {
		if v < 0 {
			return fmt.Errorf("%w: %s has negative %s bonus", ErrInvalidEquipment, e.Name, StatType(i))
		}
	}
	return nil
}
