package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// seqRand replays fixed draws; once exhausted it returns 0.5 and 0.
type seqRand struct {
	floats []float64
	ints   []int
}

func (r *seqRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0.5
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *seqRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func seqIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// sampleQuest is the difficulty-3 quest used throughout: 5 days, 500 gold, +20 reputation.
func sampleQuest() Quest {
	return Quest{
		ID:               "q-sample",
		Name:             "Clear the Goblin Warren",
		Type:             QuestCombat,
		Difficulty:       3,
		Duration:         5,
		RewardGold:       500,
		ReputationImpact: 20,
		Required:         NewStats(9, 21, 0),
	}
}

func testParty(id string, stats Stats, loyalty int) Party {
	return Party{ID: id, Name: "Party " + id, Stats: stats, Loyalty: loyalty, Available: loyalty > UnavailableLoyalty}
}

type sessionFixture struct {
	sess *Session
	rec  *Recorder
	rng  *seqRand
}

func newFixture(t *testing.T, mutate func(*Rules)) sessionFixture {
	t.Helper()
	rules := DefaultRules()
	if mutate != nil {
		mutate(&rules)
	}
	rec := &Recorder{}
	rng := &seqRand{}
	sess, err := NewSession("s-1", rules, WithRand(rng), WithBus(NewBus(rec)), WithClock(fixedClock), WithIDs(seqIDs("id")))
	require.NoError(t, err)
	return sessionFixture{sess: sess, rec: rec, rng: rng}
}

func restoreFixture(t *testing.T, rules Rules, snap Snapshot) sessionFixture {
	t.Helper()
	rec := &Recorder{}
	rng := &seqRand{}
	sess, err := Restore("s-1", rules, snap, WithRand(rng), WithBus(NewBus(rec)), WithClock(fixedClock), WithIDs(seqIDs("id")))
	require.NoError(t, err)
	return sessionFixture{sess: sess, rec: rec, rng: rng}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, 0, len(events))
	for _, e := range events {
		out = append(out, e.Kind())
	}
	return out
}
