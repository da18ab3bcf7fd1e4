package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"guildhall/internal/game"
)

var ErrInvalidBalance = errors.New("invalid balance")

// Balance holds gameplay balance configuration
type Balance struct {
	QuarterLengthDays  int                `yaml:"quarter_length_days" json:"quarter_length_days"`
	StartingGold       int64              `yaml:"starting_gold" json:"starting_gold"`
	StartingReputation int                `yaml:"starting_reputation" json:"starting_reputation"`
	Debt               DebtBalance        `yaml:"debt" json:"debt"`
	Roster             RosterBalance      `yaml:"roster" json:"roster"`
	Quests             QuestBalance       `yaml:"quests" json:"quests"`
	Equipment          []EquipmentBalance `yaml:"equipment" json:"equipment"`
}

type DebtBalance struct {
	Principal        int64   `yaml:"principal" json:"principal"`
	QuarterlyPayment int64   `yaml:"quarterly_payment" json:"quarterly_payment"`
	InterestRate     float64 `yaml:"interest_rate" json:"interest_rate"`
}

type RosterBalance struct {
	Capacity       int         `yaml:"capacity" json:"capacity"`
	RecruitCost    int64       `yaml:"recruit_cost" json:"recruit_cost"`
	DefaultStats   StatBalance `yaml:"default_stats" json:"default_stats"`
	DefaultLoyalty int         `yaml:"default_loyalty" json:"default_loyalty"`
}

type StatBalance struct {
	Exploration int `yaml:"exploration" json:"exploration"`
	Combat      int `yaml:"combat" json:"combat"`
	Admin       int `yaml:"admin" json:"admin"`
}

type QuestBalance struct {
	Initial             int      `yaml:"initial" json:"initial"`
	DurationMin         int      `yaml:"duration_min" json:"duration_min"`
	DurationMax         int      `yaml:"duration_max" json:"duration_max"`
	GoldPerDifficulty   int64    `yaml:"gold_per_difficulty" json:"gold_per_difficulty"`
	MaterialPool        []string `yaml:"material_pool" json:"material_pool"`
	MaxMaterialQuantity int      `yaml:"max_material_quantity" json:"max_material_quantity"`
}

type EquipmentBalance struct {
	ID      string      `yaml:"id" json:"id"`
	Name    string      `yaml:"name" json:"name"`
	Cost    int64       `yaml:"cost" json:"cost"`
	Bonuses StatBalance `yaml:"bonuses" json:"bonuses"`
}

// Default returns the default balance configuration
func Default() Balance {
	return FromRules(game.DefaultRules())
}

// Casual eases the debt for players who want to explore the board.
func Casual() Balance {
	b := Default()
	b.StartingGold = 2500
	b.Debt.QuarterlyPayment = 350
	b.Debt.InterestRate = 0.03
	b.Roster.DefaultLoyalty = 70
	return b
}

// Hard tightens the purse strings.
func Hard() Balance {
	b := Default()
	b.StartingGold = 900
	b.Debt.Principal = 15000
	b.Debt.QuarterlyPayment = 800
	b.Debt.InterestRate = 0.08
	b.Roster.RecruitCost = 450
	b.Roster.DefaultLoyalty = 45
	return b
}

func Preset(name string) (Balance, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "normal":
		return Default(), nil
	case "casual":
		return Casual(), nil
	case "hard":
		return Hard(), nil
	default:
		return Balance{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidBalance, name)
	}
}

// LoadBalance starts from the named preset and overlays the YAML file at path,
// if any. The result is validated before it is returned.
func LoadBalance(preset, path string) (Balance, error) {
	b, err := Preset(preset)
	if err != nil {
		return Balance{}, err
	}
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Balance{}, fmt.Errorf("read balance: %w", err)
		}
		if err := yaml.Unmarshal(raw, &b); err != nil {
			return Balance{}, fmt.Errorf("%w: %v", ErrInvalidBalance, err)
		}
	}
	if err := b.Validate(); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func (b Balance) Validate() error {
	if err := b.Rules().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBalance, err)
	}
	return nil
}

func (b Balance) Rules() game.Rules {
	r := game.Rules{
		QuarterLengthDays:  b.QuarterLengthDays,
		StartingGold:       b.StartingGold,
		StartingReputation: b.StartingReputation,
		Debt: game.DebtTerms{
			Principal:        b.Debt.Principal,
			QuarterlyPayment: b.Debt.QuarterlyPayment,
			InterestRate:     b.Debt.InterestRate,
		},
		RosterCapacity: b.Roster.Capacity,
		RecruitCost:    b.Roster.RecruitCost,
		DefaultStats:   b.Roster.DefaultStats.stats(),
		DefaultLoyalty: b.Roster.DefaultLoyalty,
		InitialQuests:  b.Quests.Initial,
		Generation: game.GenerationRules{
			DurationMin:         b.Quests.DurationMin,
			DurationMax:         b.Quests.DurationMax,
			GoldPerDifficulty:   b.Quests.GoldPerDifficulty,
			MaterialPool:        append([]string(nil), b.Quests.MaterialPool...),
			MaxMaterialQuantity: b.Quests.MaxMaterialQuantity,
		},
	}
	for _, e := range b.Equipment {
		r.Equipment = append(r.Equipment, game.Equipment{
			ID:      strings.ToLower(strings.TrimSpace(e.ID)),
			Name:    e.Name,
			Cost:    e.Cost,
			Bonuses: e.Bonuses.stats(),
		})
	}
	return r
}

func FromRules(r game.Rules) Balance {
	b := Balance{
		QuarterLengthDays:  r.QuarterLengthDays,
		StartingGold:       r.StartingGold,
		StartingReputation: r.StartingReputation,
		Debt: DebtBalance{
			Principal:        r.Debt.Principal,
			QuarterlyPayment: r.Debt.QuarterlyPayment,
			InterestRate:     r.Debt.InterestRate,
		},
		Roster: RosterBalance{
			Capacity:       r.RosterCapacity,
			RecruitCost:    r.RecruitCost,
			DefaultStats:   statBalance(r.DefaultStats),
			DefaultLoyalty: r.DefaultLoyalty,
		},
		Quests: QuestBalance{
			Initial:             r.InitialQuests,
			DurationMin:         r.Generation.DurationMin,
			DurationMax:         r.Generation.DurationMax,
			GoldPerDifficulty:   r.Generation.GoldPerDifficulty,
			MaterialPool:        append([]string(nil), r.Generation.MaterialPool...),
			MaxMaterialQuantity: r.Generation.MaxMaterialQuantity,
		},
	}
	for _, e := range r.Equipment {
		b.Equipment = append(b.Equipment, EquipmentBalance{ID: e.ID, Name: e.Name, Cost: e.Cost, Bonuses: statBalance(e.Bonuses)})
	}
	return b
}

func (s StatBalance) stats() game.Stats {
	return game.NewStats(s.Exploration, s.Combat, s.Admin)
}

func statBalance(s game.Stats) StatBalance {
	return StatBalance{
		Exploration: s.Get(game.StatExploration),
		Combat:      s.Get(game.StatCombat),
		Admin:       s.Get(game.StatAdmin),
	}
}
