package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortQuarters(r *Rules) { r.QuarterLengthDays = 3 }

func TestNewSessionDefaults(t *testing.T) {
	f := newFixture(t, nil)
	st := f.sess.State()
	assert.Equal(t, GameState{Day: 1, Quarter: 1, Gold: 1500, Reputation: 30}, st)

	status := f.sess.Status()
	assert.Equal(t, "s-1", status.SessionID)
	assert.Equal(t, 90, status.DaysToQuarter)
	assert.Equal(t, int64(10000), status.Debt.Balance)
	assert.Equal(t, DebtActive, status.Debt.State)
	assert.Equal(t, 6, status.RosterCapacity)
}

func TestNewSessionRejectsBadRules(t *testing.T) {
	rules := DefaultRules()
	rules.QuarterLengthDays = 0
	_, err := NewSession("s", rules)
	require.Error(t, err)
}

func TestAdvanceDayQuarterBoundary(t *testing.T) {
	f := newFixture(t, shortQuarters)

	for day := 2; day <= 3; day++ {
		st, err := f.sess.AdvanceDay()
		require.NoError(t, err)
		assert.Equal(t, day, st.Day)
		assert.Equal(t, 1, st.Quarter)
	}
	assert.Equal(t, 1, f.sess.Status().DaysToQuarter)
	f.rec.Events = nil

	st, err := f.sess.AdvanceDay()
	require.NoError(t, err)
	assert.Equal(t, 4, st.Day)
	assert.Equal(t, 2, st.Quarter)
	assert.Equal(t, int64(1000), st.Gold)
	assert.Equal(t, []EventKind{KindDayAdvanced, KindQuarterAdvanced, KindGoldChanged, KindPaymentMade}, kinds(f.rec.Events))
	assert.Equal(t, int64(9625), f.sess.Snapshot().Debt.Balance)
	assert.Equal(t, 3, f.sess.Status().DaysToQuarter)
}

func TestGameOverStopsEverything(t *testing.T) {
	f := newFixture(t, func(r *Rules) {
		shortQuarters(r)
		r.StartingGold = 300
	})
	_, err := f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)
	_, _ = f.sess.AdvanceDay()
	_, _ = f.sess.AdvanceDay()
	f.rec.Events = nil

	st, err := f.sess.AdvanceDay()
	require.NoError(t, err)
	assert.Equal(t, GameOverInsufficientFunds, st.GameOver)
	assert.Equal(t, int64(300), st.Gold)
	assert.Equal(t, DebtOverdue, f.sess.Snapshot().Debt.State)
	assert.Equal(t, []EventKind{KindDayAdvanced, KindQuarterAdvanced, KindGameOver}, kinds(f.rec.Events))

	before := f.sess.Snapshot()
	_, err = f.sess.AdvanceDay()
	require.ErrorIs(t, err, ErrGameOver)
	_, err = f.sess.MakeManualPayment(100)
	require.ErrorIs(t, err, ErrGameOver)
	_, err = f.sess.GenerateQuest(1, QuestAdmin)
	require.ErrorIs(t, err, ErrGameOver)
	require.ErrorIs(t, f.sess.RemoveQuest("q-sample"), ErrGameOver)
	assert.Equal(t, before, f.sess.Snapshot())
}

func TestDebtCheckPreemptsReadySignals(t *testing.T) {
	rules := DefaultRules()
	shortQuarters(&rules)
	q := sampleQuest()
	q.Duration = 2
	q.State = QuestStateInProgress
	q.AssignedParty = "p-1"
	q.StartDay = 2
	p := testParty("p-1", NewStats(5, 5, 5), 60)
	p.Available = false

	snap := Snapshot{
		State:   GameState{Day: 3, Quarter: 1, Gold: 100, Reputation: 30},
		Debt:    Debt{Balance: 10000, QuarterlyPayment: 500, InterestRate: 0.05, State: DebtActive},
		Parties: []Party{p},
		Quests:  []Quest{q},
	}
	f := restoreFixture(t, rules, snap)

	_, err := f.sess.AdvanceDay()
	require.NoError(t, err)
	assert.NotContains(t, kinds(f.rec.Events), KindQuestReady)
	assert.Contains(t, kinds(f.rec.Events), KindGameOver)

	_, err = f.sess.CompleteQuest(q.ID, true)
	require.ErrorIs(t, err, ErrGameOver)
}

func TestReadySignalOnDay(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	q := sampleQuest()
	q.Duration = 2
	_, err = f.sess.AddQuest(q)
	require.NoError(t, err)
	_, err = f.sess.AssignQuest(q.ID, party.ID)
	require.NoError(t, err)
	_, err = f.sess.StartQuest(q.ID)
	require.NoError(t, err)

	f.rec.Events = nil
	_, _ = f.sess.AdvanceDay()
	_, _ = f.sess.AdvanceDay()
	assert.Contains(t, f.rec.Events, Event(QuestReady{QuestID: q.ID, Day: 3}))

	status := f.sess.Status()
	require.Len(t, status.Quests, 1)
	assert.True(t, status.Quests[0].Ready)
	assert.Zero(t, status.Quests[0].DaysRemaining)
}

func TestResolveQuestRollsAndGrantsMaterials(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	q := sampleQuest()
	q.Materials = []MaterialReward{
		{MaterialID: "herb", Quantity: 2, DropChance: 0.6},
		{MaterialID: "iron_ore", Quantity: 1, DropChance: 0.2},
	}
	_, err = f.sess.AddQuest(q)
	require.NoError(t, err)
	_, err = f.sess.AssignQuest(q.ID, party.ID)
	require.NoError(t, err)
	_, err = f.sess.StartQuest(q.ID)
	require.NoError(t, err)

	// roll, then one draw per material entry
	f.rng.floats = []float64{0.01, 0.5, 0.9}
	f.rec.Events = nil
	res, err := f.sess.ResolveQuest(q.ID)
	require.NoError(t, err)
	assert.True(t, res.Outcome.Success)
	assert.InDelta(t, 0.01, res.Roll, 1e-9)
	assert.Equal(t, map[string]int{"herb": 2}, res.Granted)
	assert.Equal(t, map[string]int{"herb": 2}, f.sess.Snapshot().Inventory)
	assert.Equal(t, []EventKind{KindQuestCompleted, KindGoldChanged, KindReputationChanged, KindMaterialsGranted}, kinds(f.rec.Events))
}

func TestResolveQuestCanFail(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)
	_, err = f.sess.AssignQuest("q-sample", party.ID)
	require.NoError(t, err)

	_, err = f.sess.ResolveQuest("q-sample")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.sess.StartQuest("q-sample")
	require.NoError(t, err)
	f.rng.floats = []float64{0.99}
	res, err := f.sess.ResolveQuest("q-sample")
	require.NoError(t, err)
	assert.False(t, res.Outcome.Success)
	assert.Equal(t, 9, res.Experience)
}

func TestLoyaltyCollapse(t *testing.T) {
	f := newFixture(t, nil)
	idle, err := f.sess.RecruitParty("Idle Hands")
	require.NoError(t, err)
	busy, err := f.sess.RecruitParty("Road Crew")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)
	_, err = f.sess.AssignQuest("q-sample", busy.ID)
	require.NoError(t, err)

	p, disbanded, err := f.sess.ModifyLoyalty(idle.ID, -100)
	require.NoError(t, err)
	assert.True(t, disbanded)
	assert.Zero(t, p.Loyalty)
	_, err = f.sess.roster.Get(idle.ID)
	require.ErrorIs(t, err, ErrPartyNotFound)

	_, disbanded, err = f.sess.ModifyLoyalty(busy.ID, -100)
	require.NoError(t, err)
	assert.False(t, disbanded, "a party out on a quest finishes it first")
	_, err = f.sess.roster.Get(busy.ID)
	require.NoError(t, err)
}

func TestHugeLoyaltyRaiseKeepsIdleParty(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Lucky Few")
	require.NoError(t, err)

	p, disbanded, err := f.sess.ModifyLoyalty(party.ID, math.MaxInt)
	require.NoError(t, err)
	assert.False(t, disbanded)
	assert.Equal(t, LoyaltyMax, p.Loyalty)
	assert.True(t, p.Available)
}

func TestDisbandParty(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)
	_, err = f.sess.AssignQuest("q-sample", party.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.sess.DisbandParty(party.ID), ErrPartyBusy)
	_, err = f.sess.UnassignQuest("q-sample")
	require.NoError(t, err)
	require.NoError(t, f.sess.DisbandParty(party.ID))
	require.ErrorIs(t, f.sess.DisbandParty(party.ID), ErrPartyNotFound)
}

func TestUpdateAvailabilityAfterLoyaltyRecovers(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, _, err = f.sess.ModifyLoyalty(party.ID, -50)
	require.NoError(t, err)
	_, _, err = f.sess.ModifyLoyalty(party.ID, 40)
	require.NoError(t, err)

	changed, err := f.sess.UpdateAvailability()
	require.NoError(t, err)
	assert.Equal(t, []string{party.ID}, changed)
}

func TestPurchaseEquipmentFromCatalog(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)

	p, err := f.sess.PurchaseEquipment(party.ID, "Longsword")
	require.NoError(t, err)
	assert.Equal(t, 8, p.EffectiveStats()[StatCombat])
	assert.Equal(t, int64(1000), f.sess.State().Gold)

	_, err = f.sess.PurchaseEquipment(party.ID, "trebuchet")
	require.ErrorIs(t, err, ErrInvalidEquipment)
}

func TestEstimateAndBestMatch(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.AddQuest(sampleQuest())
	require.NoError(t, err)

	rate, err := f.sess.Estimate("q-sample", party.ID)
	require.NoError(t, err)
	best, bestRate, err := f.sess.BestMatch("q-sample")
	require.NoError(t, err)
	assert.Equal(t, party.ID, best.ID)
	assert.Equal(t, rate, bestRate)

	_, err = f.sess.AssignQuest("q-sample", party.ID)
	require.NoError(t, err)
	_, _, err = f.sess.BestMatch("q-sample")
	require.ErrorIs(t, err, ErrPartyUnavailable)
}

func TestSeedBoard(t *testing.T) {
	f := newFixture(t, nil)
	quests, err := f.sess.SeedBoard(4)
	require.NoError(t, err)
	require.Len(t, quests, 4)
	for _, q := range quests {
		require.NoError(t, ValidateQuest(q))
		assert.Equal(t, QuestStateAvailable, q.State)
		assert.LessOrEqual(t, q.Difficulty, 2, "reputation 30 unlocks rank 2 at most")
	}
	assert.Len(t, f.sess.Status().Quests, 4)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t, nil)
	party, err := f.sess.RecruitParty("Iron Wolves")
	require.NoError(t, err)
	_, err = f.sess.PurchaseEquipment(party.ID, "compass")
	require.NoError(t, err)
	q := sampleQuest()
	q.Materials = []MaterialReward{{MaterialID: "herb", Quantity: 1, DropChance: 1}}
	_, err = f.sess.AddQuest(q)
	require.NoError(t, err)
	_, err = f.sess.AssignQuest(q.ID, party.ID)
	require.NoError(t, err)
	_, err = f.sess.StartQuest(q.ID)
	require.NoError(t, err)
	_, err = f.sess.MakeManualPayment(200)
	require.NoError(t, err)
	_, err = f.sess.AdvanceDay()
	require.NoError(t, err)

	snap := f.sess.Snapshot()
	restored := restoreFixture(t, DefaultRules(), snap)
	assert.Equal(t, f.sess.Status(), restored.sess.Status())

	_, err = restored.sess.AssignQuest(q.ID, party.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = restored.sess.CompleteQuest(q.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.sess.Snapshot().Inventory["herb"])
}

func TestRestoreRejectsInconsistentSnapshots(t *testing.T) {
	base := func() Snapshot {
		return Snapshot{
			State: GameState{Day: 10, Quarter: 1, Gold: 100, Reputation: 30},
			Debt:  Debt{Balance: 100, QuarterlyPayment: 50, InterestRate: 0.05, State: DebtActive},
		}
	}
	tests := map[string]func(*Snapshot){
		"quarter mismatch": func(s *Snapshot) { s.State.Quarter = 2 },
		"negative gold":    func(s *Snapshot) { s.State.Gold = -1 },
		"bad stat":         func(s *Snapshot) { s.Parties = []Party{testParty("p", NewStats(0, 5, 5), 50)} },
		"orphan quest": func(s *Snapshot) {
			q := sampleQuest()
			q.State, q.AssignedParty, q.StartDay = QuestStateInProgress, "ghost", 2
			s.Quests = []Quest{q}
		},
		"paid with balance":     func(s *Snapshot) { s.Debt.State = DebtPaid },
		"inventory":             func(s *Snapshot) { s.Inventory = map[string]int{"herb": -2} },
		"overdue while playing": func(s *Snapshot) { s.Debt.State = DebtOverdue },
		"benched party available": func(s *Snapshot) {
			p := testParty("p", NewStats(5, 5, 5), 15)
			p.Available = true
			s.Parties = []Party{p}
		},
		"party on quest available": func(s *Snapshot) {
			s.Parties = []Party{testParty("p", NewStats(5, 5, 5), 60)}
			q := sampleQuest()
			q.State, q.AssignedParty = QuestStateAssigned, "p"
			s.Quests = []Quest{q}
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			snap := base()
			mutate(&snap)
			_, err := Restore("s", DefaultRules(), snap)
			require.ErrorIs(t, err, ErrInvalidSnapshot)
		})
	}
}

func TestRestoreOverdueEndedSession(t *testing.T) {
	snap := Snapshot{
		State: GameState{Day: 91, Quarter: 2, Gold: 10, Reputation: 30, GameOver: GameOverInsufficientFunds},
		Debt:  Debt{Balance: 100, QuarterlyPayment: 50, InterestRate: 0.05, State: DebtOverdue},
	}
	f := restoreFixture(t, DefaultRules(), snap)
	_, err := f.sess.RecruitParty("Too Late")
	require.ErrorIs(t, err, ErrGameOver)
}

func TestRestoreKeepsQuarterLength(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 70; i++ {
		_, err := f.sess.AdvanceDay()
		require.NoError(t, err)
	}
	snap := f.sess.Snapshot()
	assert.Equal(t, DefaultQuarterLengthDays, snap.QuarterLengthDays)

	rules := DefaultRules()
	rules.QuarterLengthDays = 60
	restored := restoreFixture(t, rules, snap)
	st := restored.sess.Status()
	assert.Equal(t, 71, st.State.Day)
	assert.Equal(t, 1, st.State.Quarter)
	assert.Equal(t, f.sess.Status().DaysToQuarter, st.DaysToQuarter)

	snap.QuarterLengthDays = 0
	_, err := Restore("s-1", rules, snap)
	require.ErrorIs(t, err, ErrInvalidSnapshot, "older snapshots fall back to the configured length")
}
