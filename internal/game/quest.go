package game

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	successFloor         = 0.2
	successPerCoverage   = 0.55
	successPerDifficulty = 0.04
	maxCoveragePerStat   = 2.0
)

// Rand is the subset of *math/rand.Rand the engine draws from.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// BaseSuccessRate is the quest-configured base odds, before any party is considered.
func (q Quest) BaseSuccessRate() float64 {
	return 0.5 + float64(q.Difficulty)*0.05
}

// CalculateSuccessRate estimates how likely p is to clear q. Surplus on a stat counts
// up to twice its requirement; harder quests shave the odds.
func CalculateSuccessRate(q Quest, p Party) float64 {
	required := q.Required.Total()
	if required <= 0 {
		return 1
	}
	eff := p.EffectiveStats()
	covered := 0.0
	for i, need := range q.Required {
		if need <= 0 {
			continue
		}
		covered += clampFloat(float64(eff[i]), 0, maxCoveragePerStat*float64(need))
	}
	coverage := covered / float64(required)
	rate := successFloor + successPerCoverage*coverage - successPerDifficulty*float64(q.Difficulty)
	return clampFloat(rate, 0, 1)
}

// RollSuccess draws once against rate and returns the draw with the verdict.
func RollSuccess(rng Rand, rate float64) (bool, float64) {
	roll := rng.Float64()
	return roll < rate, roll
}

// RollMaterials rolls each reward entry independently against its drop chance.
func RollMaterials(rng Rand, entries []MaterialReward) map[string]int {
	out := map[string]int{}
	for _, m := range entries {
		if rng.Float64() <= m.DropChance {
			out[m.MaterialID] += m.Quantity
		}
	}
	return out
}

func ValidateQuest(q Quest) error {
	var problems []string
	if strings.TrimSpace(q.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !q.Type.Valid() {
		problems = append(problems, "unknown type")
	}
	if q.Difficulty < DifficultyMin || q.Difficulty > DifficultyMax {
		problems = append(problems, fmt.Sprintf("difficulty %d outside [%d,%d]", q.Difficulty, DifficultyMin, DifficultyMax))
	}
	if q.Duration < 1 {
		problems = append(problems, "duration must be >= 1 day")
	}
	if q.RewardGold < 0 {
		problems = append(problems, "reward gold must be >= 0")
	}
	if q.ReputationImpact < 0 {
		problems = append(problems, "reputation impact must be >= 0")
	}
	for i, v := range q.Required {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("required %s is negative", StatType(i)))
		}
	}
	if want := q.Difficulty * PointsPerDifficulty; q.Required.Total() != want {
		problems = append(problems, fmt.Sprintf("required stats total %d, want %d", q.Required.Total(), want))
	}
	for _, m := range q.Materials {
		if strings.TrimSpace(m.MaterialID) == "" {
			problems = append(problems, "material id is required")
		}
		if m.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("material %q quantity must be > 0", m.MaterialID))
		}
		if m.DropChance < 0 || m.DropChance > 1 {
			problems = append(problems, fmt.Sprintf("material %q drop chance outside [0,1]", m.MaterialID))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidQuest, strings.Join(problems, "; "))
	}
	return nil
}

// Board owns quests and tracks which party holds which quest.
type Board struct {
	quests      map[string]*Quest
	order       []string
	assignments map[string]string
	newID       func() string
}

func NewBoard() *Board {
	return &Board{
		quests:      map[string]*Quest{},
		assignments: map[string]string{},
		newID:       uuid.NewString,
	}
}

func (b *Board) Get(id string) (Quest, error) {
	q, ok := b.quests[id]
	if !ok {
		return Quest{}, fmt.Errorf("%w: %s", ErrQuestNotFound, id)
	}
	return q.clone(), nil
}

func (b *Board) List() []Quest {
	out := make([]Quest, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.quests[id].clone())
	}
	return out
}

// QuestFor reports the quest a party currently holds.
func (b *Board) QuestFor(partyID string) (string, bool) {
	for qid, pid := range b.assignments {
		if pid == partyID {
			return qid, true
		}
	}
	return "", false
}

func (b *Board) Busy(partyID string) bool {
	_, ok := b.QuestFor(partyID)
	return ok
}

// Add registers a new quest. Definitions are validated here, never at use time.
func (b *Board) Add(q Quest) (Quest, []Event, error) {
	if q.State == "" {
		q.State = QuestStateAvailable
	}
	if q.State != QuestStateAvailable || q.AssignedParty != "" || q.StartDay != 0 {
		return Quest{}, nil, fmt.Errorf("%w: new quests must be available and unassigned", ErrInvalidQuest)
	}
	if err := ValidateQuest(q); err != nil {
		return Quest{}, nil, err
	}
	if q.ID == "" {
		q.ID = b.newID()
	}
	if _, exists := b.quests[q.ID]; exists {
		return Quest{}, nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidQuest, q.ID)
	}
	q = q.clone()
	b.quests[q.ID] = &q
	b.order = append(b.order, q.ID)
	return q.clone(), []Event{QuestAdded{Quest: q.clone()}}, nil
}

// Remove drops a quest that nobody is working on.
func (b *Board) Remove(id string) ([]Event, error) {
	q, ok := b.quests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQuestNotFound, id)
	}
	if q.State != QuestStateAvailable && !q.State.Terminal() {
		return nil, fmt.Errorf("%w: quest %s is %s", ErrInvalidTransition, id, q.State)
	}
	delete(b.quests, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return []Event{QuestRemoved{QuestID: id}}, nil
}

func (b *Board) Assign(questID string, p Party) (Quest, []Event, error) {
	q, ok := b.quests[questID]
	if !ok {
		return Quest{}, nil, fmt.Errorf("%w: %s", ErrQuestNotFound, questID)
	}
	if q.State != QuestStateAvailable {
		return Quest{}, nil, wrongState(q, QuestStateAvailable)
	}
	if !p.Available || b.Busy(p.ID) {
		return Quest{}, nil, fmt.Errorf("%w: %s", ErrPartyUnavailable, p.ID)
	}
	q.State = QuestStateAssigned
	q.AssignedParty = p.ID
	b.assignments[q.ID] = p.ID
	ev := QuestAssigned{QuestID: q.ID, PartyID: p.ID, EstimatedSuccess: CalculateSuccessRate(*q, p)}
	return q.clone(), []Event{ev}, nil
}

// Unassign returns the quest to the board. The caller owns restoring the party.
func (b *Board) Unassign(questID string) (Quest, string, []Event, error) {
	q, ok := b.quests[questID]
	if !ok {
		return Quest{}, "", nil, fmt.Errorf("%w: %s", ErrQuestNotFound, questID)
	}
	if q.State != QuestStateAssigned {
		return Quest{}, "", nil, wrongState(q, QuestStateAssigned)
	}
	partyID := q.AssignedParty
	q.State = QuestStateAvailable
	q.AssignedParty = ""
	delete(b.assignments, q.ID)
	return q.clone(), partyID, []Event{QuestUnassigned{QuestID: q.ID, PartyID: partyID}}, nil
}

func (b *Board) Start(questID string, day int) (Quest, []Event, error) {
	q, ok := b.quests[questID]
	if !ok {
		return Quest{}, nil, fmt.Errorf("%w: %s", ErrQuestNotFound, questID)
	}
	if q.State != QuestStateAssigned {
		return Quest{}, nil, wrongState(q, QuestStateAssigned)
	}
	q.State = QuestStateInProgress
	q.StartDay = day
	return q.clone(), []Event{QuestStarted{QuestID: q.ID, PartyID: q.AssignedParty, Day: day}}, nil
}

// Complete resolves an in-progress quest with a caller-supplied verdict. Material
// entries in the outcome are the configured ones; rolling them is up to the caller.
func (b *Board) Complete(questID string, success bool) (QuestOutcome, []Event, error) {
	q, ok := b.quests[questID]
	if !ok {
		return QuestOutcome{}, nil, fmt.Errorf("%w: %s", ErrQuestNotFound, questID)
	}
	if q.State != QuestStateInProgress {
		return QuestOutcome{}, nil, wrongState(q, QuestStateInProgress)
	}
	out := QuestOutcome{
		QuestID:   q.ID,
		PartyID:   q.AssignedParty,
		Success:   success,
		Materials: append([]MaterialReward(nil), q.Materials...),
	}
	if success {
		q.State = QuestStateCompleted
		out.Gold = q.RewardGold
		out.ReputationDelta = q.ReputationImpact
	} else {
		q.State = QuestStateFailed
		out.ReputationDelta = FailurePenalty(q.ReputationImpact)
	}
	delete(b.assignments, q.ID)
	return out, []Event{QuestCompleted{Outcome: cloneOutcome(out)}}, nil
}

// ReadyOn lists in-progress quests whose duration runs out exactly on day.
func (b *Board) ReadyOn(day int) []Event {
	var out []Event
	for _, id := range b.order {
		q := b.quests[id]
		if q.State == QuestStateInProgress && day-q.StartDay == q.Duration {
			out = append(out, QuestReady{QuestID: id, Day: day})
		}
	}
	return out
}

func (b *Board) load(quests []Quest, roster *Roster) error {
	for _, q := range quests {
		if q.ID == "" || b.quests[q.ID] != nil {
			return fmt.Errorf("%w: quest id %q missing or duplicated", ErrInvalidSnapshot, q.ID)
		}
		if err := ValidateQuest(q); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		switch q.State {
		case QuestStateAssigned, QuestStateInProgress:
			p, err := roster.Get(q.AssignedParty)
			if err != nil {
				return fmt.Errorf("%w: quest %s held by unknown party", ErrInvalidSnapshot, q.ID)
			}
			if p.Available {
				return fmt.Errorf("%w: party %s is on quest %s but marked available", ErrInvalidSnapshot, p.ID, q.ID)
			}
			if b.Busy(q.AssignedParty) {
				return fmt.Errorf("%w: party %s holds two quests", ErrInvalidSnapshot, q.AssignedParty)
			}
			b.assignments[q.ID] = q.AssignedParty
		case QuestStateAvailable, QuestStateCompleted, QuestStateFailed:
		default:
			return fmt.Errorf("%w: quest %s has unknown state %q", ErrInvalidSnapshot, q.ID, q.State)
		}
		cp := q.clone()
		b.quests[q.ID] = &cp
		b.order = append(b.order, q.ID)
	}
	return nil
}

func wrongState(q *Quest, want QuestState) error {
	return fmt.Errorf("%w: quest %s is %s, want %s", ErrInvalidTransition, q.ID, q.State, want)
}

func cloneOutcome(o QuestOutcome) QuestOutcome {
	o.Materials = append([]MaterialReward(nil), o.Materials...)
	return o
}
