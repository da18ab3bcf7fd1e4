package game

import (
	"fmt"
	"maps"
	mathrand "math/rand"
	"sync"
	"time"
)

const (
	xpPerDifficultySuccess = 10
	xpPerDifficultyFailure = 3
)

// Session owns one game: clock, roster, quest board, debt and inventory.
// Every trigger runs under a single lock and publishes its events when done.
type Session struct {
	mu sync.Mutex

	id        string
	rules     Rules
	state     GameState
	roster    *Roster
	board     *Board
	ledger    *Ledger
	gen       *Generator
	inventory map[string]int

	rng Rand
	bus *Bus
	now func() time.Time
}

type Option func(*sessionOptions)

type sessionOptions struct {
	rng   Rand
	now   func() time.Time
	bus   *Bus
	newID func() string
}

func WithRand(r Rand) Option {
	return func(o *sessionOptions) { o.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(o *sessionOptions) { o.now = now }
}

func WithBus(b *Bus) Option {
	return func(o *sessionOptions) { o.bus = b }
}

// WithIDs replaces uuid generation for parties, quests and equipment.
func WithIDs(newID func() string) Option {
	return func(o *sessionOptions) { o.newID = newID }
}

// Resolution is what a completed quest actually paid out.
type Resolution struct {
	Outcome    QuestOutcome   `json:"outcome"`
	Granted    map[string]int `json:"granted,omitempty"`
	Experience int            `json:"experience"`
	Roll       float64        `json:"roll,omitempty"`
	Rate       float64        `json:"rate,omitempty"`
}

func NewSession(id string, rules Rules, opts ...Option) (*Session, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	s := build(id, rules, opts)
	s.state = GameState{
		Day:        1,
		Quarter:    1,
		Gold:       rules.StartingGold,
		Reputation: ClampReputation(rules.StartingReputation),
	}
	return s, nil
}

// Restore rebuilds a session from a snapshot taken by Snapshot. A quarter
// length stored in the snapshot overrides the one in rules.
func Restore(id string, rules Rules, snap Snapshot, opts ...Option) (*Session, error) {
	if snap.QuarterLengthDays > 0 {
		rules.QuarterLengthDays = snap.QuarterLengthDays
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	st := snap.State
	if st.Day < 1 || st.Quarter != QuarterForDay(st.Day, rules.QuarterLengthDays) {
		return nil, fmt.Errorf("%w: day %d does not fall in quarter %d", ErrInvalidSnapshot, st.Day, st.Quarter)
	}
	if st.Gold < 0 {
		return nil, fmt.Errorf("%w: negative gold", ErrInvalidSnapshot)
	}
	if st.Reputation < ReputationMin || st.Reputation > ReputationMax {
		return nil, fmt.Errorf("%w: reputation %d out of range", ErrInvalidSnapshot, st.Reputation)
	}

	s := build(id, rules, opts)
	s.state = st
	if err := s.roster.load(snap.Parties); err != nil {
		return nil, err
	}
	if err := s.board.load(snap.Quests, s.roster); err != nil {
		return nil, err
	}
	if err := s.ledger.load(snap.Debt); err != nil {
		return nil, err
	}
	if snap.Debt.State == DebtOverdue && st.GameOver == "" {
		return nil, fmt.Errorf("%w: overdue debt on a running session", ErrInvalidSnapshot)
	}
	for k, v := range snap.Inventory {
		if k == "" || v < 0 {
			return nil, fmt.Errorf("%w: inventory entry %q=%d", ErrInvalidSnapshot, k, v)
		}
		s.inventory[k] = v
	}
	return s, nil
}

func build(id string, rules Rules, opts []Option) *Session {
	o := sessionOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = mathrand.New(mathrand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		id:        id,
		rules:     rules,
		roster:    NewRoster(rules),
		board:     NewBoard(),
		ledger:    NewLedger(rules.Debt, o.now),
		gen:       NewGenerator(rules.Generation, o.rng),
		inventory: map[string]int{},
		rng:       o.rng,
		bus:       o.bus,
		now:       o.now,
	}
	if o.newID != nil {
		s.roster.newID = o.newID
		s.board.newID = o.newID
		s.gen.newID = o.newID
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:     s.state,
		Debt:      s.ledger.Debt(),
		Parties:   s.roster.List(),
		Quests:    s.board.List(),
		Inventory: maps.Clone(s.inventory),

		QuarterLengthDays: s.rules.QuarterLengthDays,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	quests := s.board.List()
	views := make([]QuestView, 0, len(quests))
	for _, q := range quests {
		views = append(views, QuestView{
			Quest:         q,
			DaysRemaining: q.DaysRemaining(s.state.Day),
			Ready:         q.IsReadyToComplete(s.state.Day),
			BaseSuccess:   q.BaseSuccessRate(),
		})
	}
	qlen := s.rules.QuarterLengthDays
	return Status{
		SessionID:      s.id,
		State:          s.state,
		Debt:           s.ledger.Debt(),
		DaysToQuarter:  s.state.Quarter*qlen + 1 - s.state.Day,
		Parties:        s.roster.List(),
		Quests:         views,
		Inventory:      maps.Clone(s.inventory),
		RosterCapacity: s.roster.Capacity(),
	}
}

// AdvanceDay moves the clock forward one day. On a quarter boundary the debt is
// settled before anything else, and a failed payment ends the game.
func (s *Session) AdvanceDay() (GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return GameState{}, err
	}

	s.state.Day++
	events := []Event{DayAdvanced{Day: s.state.Day}}
	if q := QuarterForDay(s.state.Day, s.rules.QuarterLengthDays); q != s.state.Quarter {
		s.state.Quarter = q
		events = append(events, QuarterAdvanced{Quarter: q, Day: s.state.Day})
		events = append(events, s.ledger.ProcessQuarter(&s.state)...)
	}
	if s.state.GameOver == "" {
		events = append(events, s.board.ReadyOn(s.state.Day)...)
	}
	s.publish(events)
	return s.state, nil
}

func (s *Session) AssignQuest(questID, partyID string) (Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Quest{}, err
	}
	if _, err := s.board.Get(questID); err != nil {
		return Quest{}, err
	}
	p, err := s.roster.Get(partyID)
	if err != nil {
		return Quest{}, err
	}
	q, events, err := s.board.Assign(questID, p)
	if err != nil {
		return Quest{}, err
	}
	s.roster.reserve(partyID, s.state.Day)
	s.publish(events)
	return q, nil
}

func (s *Session) UnassignQuest(questID string) (Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Quest{}, err
	}
	q, partyID, events, err := s.board.Unassign(questID)
	if err != nil {
		return Quest{}, err
	}
	s.roster.release(partyID)
	s.publish(events)
	return q, nil
}

// StartQuest sends the assigned party out on the current day.
func (s *Session) StartQuest(questID string) (Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Quest{}, err
	}
	q, events, err := s.board.Start(questID, s.state.Day)
	if err != nil {
		return Quest{}, err
	}
	s.publish(events)
	return q, nil
}

// CompleteQuest resolves an in-progress quest with the verdict the caller decided.
func (s *Session) CompleteQuest(questID string, success bool) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Resolution{}, err
	}
	return s.complete(questID, success)
}

// ResolveQuest rolls the party's estimated odds and completes the quest with the result.
func (s *Session) ResolveQuest(questID string) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Resolution{}, err
	}
	q, err := s.board.Get(questID)
	if err != nil {
		return Resolution{}, err
	}
	if q.State != QuestStateInProgress {
		return Resolution{}, wrongState(&q, QuestStateInProgress)
	}
	p, err := s.roster.Get(q.AssignedParty)
	if err != nil {
		return Resolution{}, err
	}
	rate := CalculateSuccessRate(q, p)
	success, roll := RollSuccess(s.rng, rate)
	res, err := s.complete(questID, success)
	if err != nil {
		return Resolution{}, err
	}
	res.Roll, res.Rate = roll, rate
	return res, nil
}

func (s *Session) complete(questID string, success bool) (Resolution, error) {
	q, err := s.board.Get(questID)
	if err != nil {
		return Resolution{}, err
	}
	out, events, err := s.board.Complete(questID, success)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{Outcome: out}
	s.roster.release(out.PartyID)
	if success {
		res.Experience = q.Difficulty * xpPerDifficultySuccess
	} else {
		res.Experience = q.Difficulty * xpPerDifficultyFailure
	}
	s.roster.addExperience(out.PartyID, res.Experience)

	if out.Gold > 0 {
		events = append(events, earn(&s.state, out.Gold))
	}
	if ev, ok := s.adjustReputation(out.ReputationDelta); ok {
		events = append(events, ev)
	}
	if success {
		granted := RollMaterials(s.rng, out.Materials)
		if len(granted) > 0 {
			for k, v := range granted {
				s.inventory[k] += v
			}
			res.Granted = granted
			events = append(events, MaterialsGranted{QuestID: questID, Materials: maps.Clone(granted)})
		}
	}
	s.publish(events)
	return res, nil
}

func (s *Session) adjustReputation(delta int) (Event, bool) {
	before := s.state.Reputation
	s.state.Reputation = ClampReputation(before + delta)
	if s.state.Reputation == before {
		return nil, false
	}
	return ReputationChanged{Delta: s.state.Reputation - before, Total: s.state.Reputation}, true
}

func (s *Session) MakeManualPayment(amount int64) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Payment{}, err
	}
	p, events, err := s.ledger.MakePayment(&s.state, amount)
	if err != nil {
		return Payment{}, err
	}
	s.publish(events)
	return p, nil
}

func (s *Session) RecruitParty(name string) (Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Party{}, err
	}
	p, events, err := s.roster.Recruit(&s.state, name)
	if err != nil {
		return Party{}, err
	}
	s.publish(events)
	return p, nil
}

func (s *Session) TrainParty(partyID string, stat StatType, cost int64) (Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Party{}, err
	}
	p, events, err := s.roster.Train(&s.state, partyID, stat, cost)
	if err != nil {
		return Party{}, err
	}
	s.publish(events)
	return p, nil
}

// PurchaseEquipment buys a catalog item for a party.
func (s *Session) PurchaseEquipment(partyID, itemID string) (Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Party{}, err
	}
	item, ok := s.rules.EquipmentByID(itemID)
	if !ok {
		return Party{}, fmt.Errorf("%w: unknown item %q", ErrInvalidEquipment, itemID)
	}
	p, events, err := s.roster.PurchaseEquipment(&s.state, partyID, item)
	if err != nil {
		return Party{}, err
	}
	s.publish(events)
	return p, nil
}

// ModifyLoyalty shifts a party's loyalty. A party whose loyalty hits zero while
// idle walks out; the second return reports that.
func (s *Session) ModifyLoyalty(partyID string, delta int) (Party, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Party{}, false, err
	}
	p, events, err := s.roster.ModifyLoyalty(partyID, delta)
	if err != nil {
		return Party{}, false, err
	}
	disbanded := false
	if p.Loyalty == LoyaltyMin && !s.board.Busy(partyID) {
		more, err := s.roster.Remove(partyID, "loyalty collapsed")
		if err != nil {
			return Party{}, false, err
		}
		events = append(events, more...)
		disbanded = true
	}
	s.publish(events)
	return p, disbanded, nil
}

// UpdateAvailability re-evaluates every party and returns the ids that changed.
func (s *Session) UpdateAvailability() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return nil, err
	}
	return s.roster.UpdateAvailability(s.board.Busy), nil
}

func (s *Session) DisbandParty(partyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return err
	}
	if qid, busy := s.board.QuestFor(partyID); busy {
		return fmt.Errorf("%w: %s holds quest %s", ErrPartyBusy, partyID, qid)
	}
	events, err := s.roster.Remove(partyID, "disbanded")
	if err != nil {
		return err
	}
	s.publish(events)
	return nil
}

func (s *Session) AddQuest(q Quest) (Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Quest{}, err
	}
	out, events, err := s.board.Add(q)
	if err != nil {
		return Quest{}, err
	}
	s.publish(events)
	return out, nil
}

func (s *Session) RemoveQuest(questID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return err
	}
	events, err := s.board.Remove(questID)
	if err != nil {
		return err
	}
	s.publish(events)
	return nil
}

// GenerateQuest rolls a new quest and posts it on the board.
func (s *Session) GenerateQuest(difficulty int, qt QuestType) (Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return Quest{}, err
	}
	q, err := s.gen.Generate(difficulty, qt)
	if err != nil {
		return Quest{}, err
	}
	return s.post(q)
}

// SeedBoard posts n quests sized to the guild's current reputation.
func (s *Session) SeedBoard(n int) ([]Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.playing(); err != nil {
		return nil, err
	}
	out := make([]Quest, 0, n)
	for i := 0; i < n; i++ {
		q, err := s.gen.Random(s.state.Reputation)
		if err != nil {
			return nil, err
		}
		posted, err := s.post(q)
		if err != nil {
			return nil, err
		}
		out = append(out, posted)
	}
	return out, nil
}

func (s *Session) post(q Quest) (Quest, error) {
	out, events, err := s.board.Add(q)
	if err != nil {
		return Quest{}, err
	}
	s.publish(events)
	return out, nil
}

// Estimate is the success odds partyID would have on questID. It never mutates.
func (s *Session) Estimate(questID, partyID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.board.Get(questID)
	if err != nil {
		return 0, err
	}
	p, err := s.roster.Get(partyID)
	if err != nil {
		return 0, err
	}
	return CalculateSuccessRate(q, p), nil
}

// BestMatch finds the available party most likely to clear questID.
func (s *Session) BestMatch(questID string) (Party, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.board.Get(questID)
	if err != nil {
		return Party{}, 0, err
	}
	p, rate, ok := s.roster.BestMatch(q)
	if !ok {
		return Party{}, 0, fmt.Errorf("%w: nobody is free for %s", ErrPartyUnavailable, questID)
	}
	return p, rate, nil
}

func (s *Session) playing() error {
	if s.state.GameOver != "" {
		return fmt.Errorf("%w: %s", ErrGameOver, s.state.GameOver)
	}
	return nil
}

func (s *Session) publish(events []Event) {
	s.bus.Publish(s.id, events...)
}
