package game

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	snaps     map[string]Snapshot
	keys      map[string]bool
	saveError error
}

func newFakeStore() *fakeStore {
	return &fakeStore{snaps: map[string]Snapshot{}, keys: map[string]bool{}}
}

func (f *fakeStore) Create(_ context.Context, id string, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.snaps[id]; ok {
		return fmt.Errorf("session %s exists", id)
	}
	f.snaps[id] = snap
	return nil
}

func (f *fakeStore) Load(_ context.Context, id string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[id]
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}
	return snap, nil
}

func (f *fakeStore) Update(_ context.Context, id, key, _ string, fn func(Snapshot) (Snapshot, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[id]
	if !ok {
		return ErrSessionNotFound
	}
	if key != "" && f.keys[id+"/"+key] {
		return ErrDuplicateIdempotency
	}
	next, err := fn(snap)
	if err != nil {
		return err
	}
	if f.saveError != nil {
		return f.saveError
	}
	if key != "" {
		f.keys[id+"/"+key] = true
	}
	f.snaps[id] = next
	return nil
}

func (f *fakeStore) ListActive(_ context.Context, limit int) ([]Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Summary
	for id, snap := range f.snaps {
		if snap.State.GameOver == "" {
			out = append(out, Summarize(id, snap))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestService(t *testing.T, mutate func(*Rules)) (*Service, *fakeStore, *Recorder) {
	t.Helper()
	rules := DefaultRules()
	if mutate != nil {
		mutate(&rules)
	}
	store := newFakeStore()
	rec := &Recorder{}
	svc := NewService(store, rules, NewBus(rec), nil)
	svc.rng = &seqRand{}
	return svc, store, rec
}

func TestServiceNewGame(t *testing.T) {
	svc, store, rec := newTestService(t, nil)
	ctx := context.Background()

	status, err := svc.NewGame(ctx, NewGameInput{SessionID: "guild-1"})
	require.NoError(t, err)
	assert.Equal(t, "guild-1", status.SessionID)
	assert.Len(t, status.Quests, 4)
	assert.Len(t, rec.Events, 4)
	assert.Contains(t, store.snaps, "guild-1")

	_, err = svc.NewGame(ctx, NewGameInput{SessionID: "guild-1"})
	require.Error(t, err)
	assert.Len(t, rec.Events, 4, "nothing published for a failed create")

	loaded, err := svc.Status(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, status, loaded)
}

func TestServicePublishesOnlyAfterSave(t *testing.T) {
	svc, store, rec := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.NewGame(ctx, NewGameInput{SessionID: "g"})
	require.NoError(t, err)
	rec.Events = nil

	store.saveError = errors.New("disk full")
	_, err = svc.RecruitParty(ctx, RecruitInput{SessionID: "g", Name: "Iron Wolves"})
	require.Error(t, err)
	assert.Empty(t, rec.Events)
	assert.Equal(t, int64(1500), store.snaps["g"].State.Gold)

	store.saveError = nil
	p, err := svc.RecruitParty(ctx, RecruitInput{SessionID: "g", Name: "Iron Wolves"})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{KindGoldChanged, KindPartyRecruited}, kinds(rec.Events))
	assert.Equal(t, p, store.snaps["g"].Parties[0])
}

func TestServiceIdempotency(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.NewGame(ctx, NewGameInput{SessionID: "g"})
	require.NoError(t, err)

	_, err = svc.MakePayment(ctx, PaymentInput{SessionID: "g", Amount: 100, IdempotencyKey: "k-1"})
	require.NoError(t, err)
	_, err = svc.MakePayment(ctx, PaymentInput{SessionID: "g", Amount: 100, IdempotencyKey: "k-1"})
	require.ErrorIs(t, err, ErrDuplicateIdempotency)
	assert.Equal(t, int64(9900), store.snaps["g"].Debt.Balance)

	_, err = svc.MakePayment(ctx, PaymentInput{SessionID: "g", Amount: 0, IdempotencyKey: "k-2"})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestServiceQuestFlow(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.NewGame(ctx, NewGameInput{SessionID: "g"})
	require.NoError(t, err)

	p, err := svc.RecruitParty(ctx, RecruitInput{SessionID: "g", Name: "Iron Wolves"})
	require.NoError(t, err)
	q, err := svc.AddQuest(ctx, AddQuestInput{SessionID: "g", Quest: sampleQuest()})
	require.NoError(t, err)

	rate, err := svc.Estimate(ctx, "g", q.ID, p.ID)
	require.NoError(t, err)
	assert.Greater(t, rate, 0.0)

	_, err = svc.AssignQuest(ctx, AssignInput{SessionID: "g", QuestID: q.ID, PartyID: p.ID})
	require.NoError(t, err)
	_, err = svc.StartQuest(ctx, QuestInput{SessionID: "g", QuestID: q.ID})
	require.NoError(t, err)
	st, err := svc.AdvanceDays(ctx, AdvanceInput{SessionID: "g", Days: 5})
	require.NoError(t, err)
	assert.Equal(t, 6, st.Day)

	res, err := svc.CompleteQuest(ctx, CompleteInput{SessionID: "g", QuestID: q.ID, Success: true})
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.Outcome.Gold)

	status, err := svc.Status(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, int64(1500-300+500), status.State.Gold)
	assert.True(t, status.Parties[0].Available)
}

func TestServiceAdvanceStopsAtGameOver(t *testing.T) {
	svc, _, _ := newTestService(t, func(r *Rules) {
		r.QuarterLengthDays = 3
		r.StartingGold = 100
	})
	ctx := context.Background()
	_, err := svc.NewGame(ctx, NewGameInput{SessionID: "g"})
	require.NoError(t, err)

	st, err := svc.AdvanceDays(ctx, AdvanceInput{SessionID: "g", Days: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, st.Day)
	assert.Equal(t, GameOverInsufficientFunds, st.GameOver)

	_, err = svc.AdvanceDays(ctx, AdvanceInput{SessionID: "g", Days: 1})
	require.ErrorIs(t, err, ErrGameOver)

	active, err := svc.ListActive(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestServiceAdvanceAll(t *testing.T) {
	svc, store, _ := newTestService(t, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := svc.NewGame(ctx, NewGameInput{SessionID: id})
		require.NoError(t, err)
	}

	n, err := svc.AdvanceAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.snaps["a"].State.Day)
	assert.Equal(t, 2, store.snaps["b"].State.Day)
}

func TestServiceUnknownSession(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	_, err := svc.Status(context.Background(), "nope")
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.RecruitParty(context.Background(), RecruitInput{})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestServiceGenerateQuest(t *testing.T) {
	svc, _, _ := newTestService(t, func(r *Rules) { r.InitialQuests = 0 })
	ctx := context.Background()
	_, err := svc.NewGame(ctx, NewGameInput{SessionID: "g"})
	require.NoError(t, err)

	q, err := svc.GenerateQuest(ctx, GenerateInput{SessionID: "g", Difficulty: 4, Type: QuestAdmin})
	require.NoError(t, err)
	assert.Equal(t, 4, q.Difficulty)
	assert.Equal(t, QuestAdmin, q.Type)

	q, err = svc.GenerateQuest(ctx, GenerateInput{SessionID: "g"})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Difficulty)

	status, err := svc.Status(ctx, "g")
	require.NoError(t, err)
	assert.Len(t, status.Quests, 2)
}
