package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildhall/internal/game"
)

func writeBalance(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "balance.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultMatchesRules(t *testing.T) {
	assert.Equal(t, game.DefaultRules(), Default().Rules())
	require.NoError(t, Default().Validate())
	require.NoError(t, Casual().Validate())
	require.NoError(t, Hard().Validate())
}

func TestLoadBalanceOverlay(t *testing.T) {
	path := writeBalance(t, `
quarter_length_days: 30
debt:
  quarterly_payment: 750
roster:
  default_stats:
    combat: 8
equipment:
  - id: Lantern
    name: Storm Lantern
    cost: 90
    bonuses:
      exploration: 1
`)
	b, err := LoadBalance("", path)
	require.NoError(t, err)
	assert.Equal(t, 30, b.QuarterLengthDays)
	assert.Equal(t, int64(750), b.Debt.QuarterlyPayment)
	assert.Equal(t, int64(10000), b.Debt.Principal, "unset keys keep the preset value")
	assert.Equal(t, 8, b.Roster.DefaultStats.Combat)
	assert.Equal(t, 5, b.Roster.DefaultStats.Admin)

	rules := b.Rules()
	require.Len(t, rules.Equipment, 1)
	item, ok := rules.EquipmentByID("lantern")
	require.True(t, ok)
	assert.Equal(t, game.NewStats(1, 0, 0), item.Bonuses)
}

func TestLoadBalanceRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"quarter":   "quarter_length_days: 0\n",
		"payment":   "debt:\n  quarterly_payment: 0\n",
		"stats":     "roster:\n  default_stats:\n    admin: 25\n",
		"duration":  "quests:\n  duration_min: 5\n  duration_max: 2\n",
		"syntax":    "debt: [\n",
		"equipment": "equipment:\n  - id: a\n    name: A\n    cost: 1\n  - id: a\n    name: B\n    cost: 1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadBalance("default", writeBalance(t, body))
			require.ErrorIs(t, err, ErrInvalidBalance)
		})
	}
}

func TestPreset(t *testing.T) {
	b, err := Preset("HARD")
	require.NoError(t, err)
	assert.Equal(t, Hard(), b)

	_, err = Preset("nightmare")
	require.ErrorIs(t, err, ErrInvalidBalance)

	_, err = LoadBalance("default", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
