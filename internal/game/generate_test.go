package game

import (
	mathrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidQuests(t *testing.T) {
	rules := DefaultRules().Generation
	g := NewGenerator(rules, mathrand.New(mathrand.NewSource(7)))

	for difficulty := DifficultyMin; difficulty <= DifficultyMax; difficulty++ {
		for _, qt := range AllQuestTypes() {
			q, err := g.Generate(difficulty, qt)
			require.NoError(t, err)
			require.NoError(t, ValidateQuest(q))

			assert.GreaterOrEqual(t, q.Duration, rules.DurationMin)
			assert.LessOrEqual(t, q.Duration, rules.DurationMax)
			assert.Equal(t, difficulty*5, q.ReputationImpact)

			base := float64(int64(difficulty) * rules.GoldPerDifficulty)
			assert.GreaterOrEqual(t, float64(q.RewardGold), base*0.8-1)
			assert.LessOrEqual(t, float64(q.RewardGold), base*1.2+1)

			total := difficulty * PointsPerDifficulty
			assert.Equal(t, total*7/10, q.Required[qt.PrimaryStat()])
			assert.Equal(t, total-total*7/10, q.Required[qt.SecondaryStat()])

			require.Len(t, q.Materials, difficulty/2+1)
			for _, m := range q.Materials {
				assert.Contains(t, rules.MaterialPool, m.MaterialID)
				assert.GreaterOrEqual(t, m.DropChance, 0.3)
				assert.LessOrEqual(t, m.DropChance, 0.9)
				assert.GreaterOrEqual(t, m.Quantity, 1)
				assert.LessOrEqual(t, m.Quantity, rules.MaxMaterialQuantity)
			}
		}
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	g := NewGenerator(DefaultRules().Generation, &seqRand{})
	_, err := g.Generate(0, QuestCombat)
	require.ErrorIs(t, err, ErrInvalidQuest)
	_, err = g.Generate(3, QuestType(9))
	require.ErrorIs(t, err, ErrInvalidQuest)
}

func TestRandomFollowsReputation(t *testing.T) {
	g := NewGenerator(DefaultRules().Generation, mathrand.New(mathrand.NewSource(11)))
	for i := 0; i < 50; i++ {
		q, err := g.Random(0)
		require.NoError(t, err)
		assert.Equal(t, 1, q.Difficulty)
	}
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		q, err := g.Random(100)
		require.NoError(t, err)
		seen[q.Difficulty] = true
	}
	assert.True(t, seen[5], "full reputation unlocks rank 5")
}
