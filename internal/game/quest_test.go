package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSuccessRate(t *testing.T) {
	q := sampleQuest()

	weak := testParty("p-weak", NewStats(5, 5, 5), 60)
	assert.InDelta(t, 0.2+0.55*(10.0/30.0)-0.12, CalculateSuccessRate(q, weak), 1e-9)

	strong := testParty("p-strong", NewStats(20, 20, 20), 60)
	assert.InDelta(t, 0.2+0.55*(38.0/30.0)-0.12, CalculateSuccessRate(q, strong), 1e-9)

	zero := q
	zero.Required = Stats{}
	assert.Equal(t, 1.0, CalculateSuccessRate(zero, weak))
}

func TestCalculateSuccessRateMonotonic(t *testing.T) {
	q := sampleQuest()
	prev := -1.0
	for combat := 1; combat <= 20; combat++ {
		rate := CalculateSuccessRate(q, testParty("p", NewStats(5, combat, 5), 60))
		if rate < prev {
			t.Fatalf("rate fell from %v to %v at combat %d", prev, rate, combat)
		}
		prev = rate
	}

	p := testParty("p", NewStats(10, 10, 10), 60)
	easy, hard := q, q
	easy.Difficulty = 1
	hard.Difficulty = 5
	if CalculateSuccessRate(hard, p) >= CalculateSuccessRate(easy, p) {
		t.Fatalf("harder quest should lower the odds")
	}
	for _, d := range []int{1, 3, 5} {
		q.Difficulty = d
		rate := CalculateSuccessRate(q, testParty("p", NewStats(1, 1, 1), 0))
		if rate < 0 || rate > 1 {
			t.Fatalf("rate %v out of [0,1]", rate)
		}
	}
}

func TestEquipmentCountsAboveCap(t *testing.T) {
	p := testParty("p", NewStats(5, 20, 5), 60)
	p.Equipment = []Equipment{{ID: "longsword", Name: "Longsword", Cost: 200, Bonuses: NewStats(0, 3, 0)}}
	assert.Equal(t, 23, p.EffectiveStats()[StatCombat])
	assert.Equal(t, 20, p.Stats[StatCombat])

	bare := p
	bare.Equipment = nil
	assert.Greater(t, CalculateSuccessRate(sampleQuest(), p), CalculateSuccessRate(sampleQuest(), bare))
}

func TestBaseSuccessRate(t *testing.T) {
	q := sampleQuest()
	assert.InDelta(t, 0.65, q.BaseSuccessRate(), 1e-9)
}

func TestRollSuccess(t *testing.T) {
	rng := &seqRand{floats: []float64{0.2, 0.65, 0.9}}
	for _, want := range []struct {
		ok   bool
		roll float64
	}{{true, 0.2}, {false, 0.65}, {false, 0.9}} {
		ok, roll := RollSuccess(rng, 0.65)
		assert.Equal(t, want.ok, ok)
		assert.InDelta(t, want.roll, roll, 1e-9)
	}
}

func TestQuestStateTerminal(t *testing.T) {
	assert.True(t, QuestStateCompleted.Terminal())
	assert.True(t, QuestStateFailed.Terminal())
	assert.False(t, QuestStateAvailable.Terminal())
	assert.False(t, QuestStateInProgress.Terminal())
}

func TestRollMaterialsIndependent(t *testing.T) {
	entries := []MaterialReward{
		{MaterialID: "herb", Quantity: 2, DropChance: 0.5},
		{MaterialID: "iron_ore", Quantity: 1, DropChance: 0.5},
		{MaterialID: "herb", Quantity: 3, DropChance: 0.3},
	}
	rng := &seqRand{floats: []float64{0.1, 0.95, 0.3}}
	got := RollMaterials(rng, entries)
	assert.Equal(t, map[string]int{"herb": 5}, got)
}

func TestValidateQuest(t *testing.T) {
	require.NoError(t, ValidateQuest(sampleQuest()))

	tests := map[string]func(*Quest){
		"difficulty":    func(q *Quest) { q.Difficulty = 6 },
		"duration":      func(q *Quest) { q.Duration = 0 },
		"reward":        func(q *Quest) { q.RewardGold = -1 },
		"stat total":    func(q *Quest) { q.Required = NewStats(1, 1, 1) },
		"negative stat": func(q *Quest) { q.Required = NewStats(-1, 31, 0) },
		"material id": func(q *Quest) {
			q.Materials = []MaterialReward{{Quantity: 1, DropChance: 0.5}}
		},
		"quantity": func(q *Quest) {
			q.Materials = []MaterialReward{{MaterialID: "herb", DropChance: 0.5}}
		},
		"drop chance": func(q *Quest) {
			q.Materials = []MaterialReward{{MaterialID: "herb", Quantity: 1, DropChance: 1.5}}
		},
		"name": func(q *Quest) { q.Name = " " },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			q := sampleQuest()
			mutate(&q)
			err := ValidateQuest(q)
			require.ErrorIs(t, err, ErrInvalidQuest)
		})
	}
}

func TestBoardAddRejectsNonAvailable(t *testing.T) {
	b := NewBoard()
	q := sampleQuest()
	q.State = QuestStateInProgress
	_, _, err := b.Add(q)
	require.ErrorIs(t, err, ErrInvalidQuest)
	assert.Empty(t, b.List())

	_, events, err := b.Add(sampleQuest())
	require.NoError(t, err)
	assert.Equal(t, []EventKind{KindQuestAdded}, kinds(events))

	_, _, err = b.Add(sampleQuest())
	require.ErrorIs(t, err, ErrInvalidQuest, "duplicate id")
}

func TestQuestLifecycleExample(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)
	goldBefore := f.sess.State().Gold
	repBefore := f.sess.State().Reputation

	q, err := f.sess.AssignQuest("q-sample", party.ID)
	require.NoError(t, err)
	assert.Equal(t, QuestStateAssigned, q.State)
	assert.Equal(t, party.ID, q.AssignedParty)
	p, _ := f.sess.roster.Get(party.ID)
	assert.False(t, p.Available)
	assert.Equal(t, 1, p.LastQuestDay)

	q, err = f.sess.StartQuest("q-sample")
	require.NoError(t, err)
	assert.Equal(t, 1, q.StartDay)
	assert.False(t, q.IsReadyToComplete(5))
	assert.True(t, q.IsReadyToComplete(6))

	res, err := f.sess.CompleteQuest("q-sample", true)
	require.NoError(t, err)
	assert.True(t, res.Outcome.Success)
	assert.Equal(t, int64(500), res.Outcome.Gold)
	assert.Equal(t, 20, res.Outcome.ReputationDelta)
	assert.Equal(t, 30, res.Experience)

	st := f.sess.State()
	assert.Equal(t, goldBefore+500, st.Gold)
	assert.Equal(t, repBefore+20, st.Reputation)
	p, _ = f.sess.roster.Get(party.ID)
	assert.True(t, p.Available)
	assert.Equal(t, 30, p.Experience)
	assert.False(t, f.sess.board.Busy(party.ID))

	_, err = f.sess.CompleteQuest("q-sample", true)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, goldBefore+500, f.sess.State().Gold, "no double reward")
}

func TestQuestFailureOutcome(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	q := sampleQuest()
	q.Materials = []MaterialReward{{MaterialID: "herb", Quantity: 2, DropChance: 1}}
	_, err = f.sess.AddQuest(q)
	require.NoError(t, err)
	_, err = f.sess.AssignQuest(q.ID, party.ID)
	require.NoError(t, err)
	_, err = f.sess.StartQuest(q.ID)
	require.NoError(t, err)
	goldBefore := f.sess.State().Gold

	res, err := f.sess.CompleteQuest(q.ID, false)
	require.NoError(t, err)
	assert.False(t, res.Outcome.Success)
	assert.Zero(t, res.Outcome.Gold)
	assert.Equal(t, -10, res.Outcome.ReputationDelta)
	assert.Len(t, res.Outcome.Materials, 1, "configured entries ride along unrolled")
	assert.Empty(t, res.Granted)
	assert.Equal(t, goldBefore, f.sess.State().Gold)
	assert.Equal(t, 20, f.sess.State().Reputation)
	assert.Empty(t, f.sess.Snapshot().Inventory)

	stored, _ := f.sess.board.Get(q.ID)
	assert.Equal(t, QuestStateFailed, stored.State)
}

func TestInvalidTransitionsLeaveQuestUntouched(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)

	check := func(step string, op func() error) {
		t.Helper()
		before, _ := f.sess.board.Get("q-sample")
		err := op()
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s: expected invalid transition, got %v", step, err)
		}
		after, _ := f.sess.board.Get("q-sample")
		assert.Equal(t, before, after, step)
	}

	check("start available", func() error { _, err := f.sess.StartQuest("q-sample"); return err })
	check("unassign available", func() error { _, err := f.sess.UnassignQuest("q-sample"); return err })
	check("complete available", func() error { _, err := f.sess.CompleteQuest("q-sample", true); return err })

	_, err = f.sess.AssignQuest("q-sample", party.ID)
	require.NoError(t, err)
	check("complete assigned", func() error { _, err := f.sess.CompleteQuest("q-sample", true); return err })
	check("assign assigned", func() error { _, err := f.sess.AssignQuest("q-sample", party.ID); return err })

	_, err = f.sess.StartQuest("q-sample")
	require.NoError(t, err)
	check("unassign in progress", func() error { _, err := f.sess.UnassignQuest("q-sample"); return err })
	check("start in progress", func() error { _, err := f.sess.StartQuest("q-sample"); return err })

	_, err = f.sess.AssignQuest("missing", party.ID)
	require.ErrorIs(t, err, ErrQuestNotFound)
}

func TestAssignRequiresAvailableParty(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)

	_, _, err = f.sess.ModifyLoyalty(party.ID, -45)
	require.NoError(t, err)
	_, err = f.sess.AssignQuest("q-sample", party.ID)
	require.ErrorIs(t, err, ErrPartyUnavailable)
	q, _ := f.sess.board.Get("q-sample")
	assert.Equal(t, QuestStateAvailable, q.State)

	_, err = f.sess.AssignQuest("q-sample", "nobody")
	require.ErrorIs(t, err, ErrPartyNotFound)
}

func TestUnassignReleasesParty(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)
	_, err = f.sess.AssignQuest("q-sample", party.ID)
	require.NoError(t, err)

	q, err := f.sess.UnassignQuest("q-sample")
	require.NoError(t, err)
	assert.Equal(t, QuestStateAvailable, q.State)
	assert.Empty(t, q.AssignedParty)
	p, _ := f.sess.roster.Get(party.ID)
	assert.True(t, p.Available)
}

func TestDaysRemaining(t *testing.T) {
	q := sampleQuest()
	assert.Equal(t, 5, q.DaysRemaining(40), "not started")

	q.State = QuestStateInProgress
	q.StartDay = 3
	assert.Equal(t, 3, q.DaysRemaining(5))
	assert.Equal(t, 3, q.DaysRemaining(5))
	assert.Equal(t, 0, q.DaysRemaining(8))
	assert.Equal(t, 0, q.DaysRemaining(50))
}

func TestRemoveQuest(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)
	_, err = f.sess.AssignQuest("q-sample", party.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.sess.RemoveQuest("q-sample"), ErrInvalidTransition)
	_, err = f.sess.UnassignQuest("q-sample")
	require.NoError(t, err)
	require.NoError(t, f.sess.RemoveQuest("q-sample"))
	require.ErrorIs(t, f.sess.RemoveQuest("q-sample"), ErrQuestNotFound)
}

func TestReadyOnFiresOnce(t *testing.T) {
	b := NewBoard()
	_, _, err := b.Add(sampleQuest())
	require.NoError(t, err)
	_, _, err = b.Assign("q-sample", testParty("p-1", NewStats(5, 5, 5), 60))
	require.NoError(t, err)
	_, _, err = b.Start("q-sample", 2)
	require.NoError(t, err)

	assert.Empty(t, b.ReadyOn(6))
	assert.Equal(t, []Event{QuestReady{QuestID: "q-sample", Day: 7}}, b.ReadyOn(7))
	assert.Empty(t, b.ReadyOn(8))
}
