package game

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

const (
	primaryShareNum   = 7
	primaryShareDenom = 10

	goldSpreadMin = 0.8
	goldSpreadMax = 1.2

	dropChanceMin = 0.3
	dropChanceMax = 0.9

	reputationPerDifficulty = 5
)

var questTitles = [questTypeCount][]string{
	QuestExploration: {"Chart the Sunken Road", "Scout the Briar Wood", "Map the Old Mines", "Survey the Salt Flats"},
	QuestCombat:      {"Clear the Goblin Warren", "Escort the Grain Caravan", "Hunt the Marsh Drake", "Break the Bandit Camp"},
	QuestAdmin:       {"Audit the Toll House", "Settle the Merchant Dispute", "Catalogue the Archive", "Draft the Harbor Charter"},
}

type Generator struct {
	rules GenerationRules
	rng   Rand
	newID func() string
}

func NewGenerator(rules GenerationRules, rng Rand) *Generator {
	return &Generator{rules: rules, rng: rng, newID: uuid.NewString}
}

// Generate builds a fresh quest. The result always passes ValidateQuest.
func (g *Generator) Generate(difficulty int, qt QuestType) (Quest, error) {
	if difficulty < DifficultyMin || difficulty > DifficultyMax {
		return Quest{}, fmt.Errorf("%w: difficulty %d outside [%d,%d]", ErrInvalidQuest, difficulty, DifficultyMin, DifficultyMax)
	}
	if !qt.Valid() {
		return Quest{}, fmt.Errorf("%w: unknown type %d", ErrInvalidQuest, int(qt))
	}

	q := Quest{
		ID:               g.newID(),
		Type:             qt,
		Difficulty:       difficulty,
		Duration:         g.between(g.rules.DurationMin, g.rules.DurationMax),
		ReputationImpact: difficulty * reputationPerDifficulty,
		State:            QuestStateAvailable,
	}
	titles := questTitles[qt]
	q.Name = fmt.Sprintf("%s (rank %d)", titles[g.rng.Intn(len(titles))], difficulty)

	spread := goldSpreadMin + g.rng.Float64()*(goldSpreadMax-goldSpreadMin)
	q.RewardGold = int64(math.Round(float64(int64(difficulty)*g.rules.GoldPerDifficulty) * spread))

	total := difficulty * PointsPerDifficulty
	primary := total * primaryShareNum / primaryShareDenom
	q.Required[qt.PrimaryStat()] = primary
	q.Required[qt.SecondaryStat()] += total - primary

	slots := difficulty/2 + 1
	for i := 0; i < slots; i++ {
		pool := g.rules.MaterialPool
		q.Materials = append(q.Materials, MaterialReward{
			MaterialID: pool[g.rng.Intn(len(pool))],
			Quantity:   g.between(1, g.rules.MaxMaterialQuantity),
			DropChance: math.Round((dropChanceMin+g.rng.Float64()*(dropChanceMax-dropChanceMin))*100) / 100,
		})
	}
	return q, nil
}

// Random picks a type and a difficulty the guild's reputation can unlock.
func (g *Generator) Random(reputation int) (Quest, error) {
	maxDifficulty := clampInt(1+reputation/25, DifficultyMin, DifficultyMax)
	difficulty := g.between(DifficultyMin, maxDifficulty)
	qt := QuestType(g.rng.Intn(int(questTypeCount)))
	return g.Generate(difficulty, qt)
}

func (g *Generator) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}
