package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type StatType int

const (
	StatExploration StatType = iota
	StatCombat
	StatAdmin

	statCount
)

var statNames = [statCount]string{"exploration", "combat", "admin"}

// AllStats lists every StatType in index order.
func AllStats() []StatType {
	return []StatType{StatExploration, StatCombat, StatAdmin}
}

func (s StatType) Valid() bool {
	return s >= 0 && s < statCount
}

func (s StatType) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stat(%d)", int(s))
	}
	return statNames[s]
}

func ParseStatType(v string) (StatType, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range statNames {
		if name == v {
			return StatType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stat %q", v)
}

func (s StatType) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown stat %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *StatType) UnmarshalText(b []byte) error {
	v, err := ParseStatType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Stats is a fixed record indexed by StatType.
type Stats [statCount]int

func NewStats(exploration, combat, admin int) Stats {
	return Stats{StatExploration: exploration, StatCombat: combat, StatAdmin: admin}
}

func (s Stats) Get(t StatType) int {
	return s[t]
}

func (s Stats) Add(o Stats) Stats {
	for i := range s {
		s[i] += o[i]
	}
	return s
}

func (s Stats) Total() int {
	total := 0
	for _, v := range s {
		total += v
	}
	return total
}

func (s Stats) MarshalJSON() ([]byte, error) {
	out := make(map[string]int, statCount)
	for i, v := range s {
		out[statNames[i]] = v
	}
	return json.Marshal(out)
}

func (s *Stats) UnmarshalJSON(b []byte) error {
	var in map[string]int
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	var out Stats
	for k, v := range in {
		t, err := ParseStatType(k)
		if err != nil {
			return err
		}
		out[t] = v
	}
	*s = out
	return nil
}

type QuestType int

const (
	QuestExploration QuestType = iota
	QuestCombat
	QuestAdmin

	questTypeCount
)

var questTypeNames = [questTypeCount]string{"exploration", "combat", "admin"}

// questStatWeights maps a quest type to its primary and secondary stat.
var questStatWeights = [questTypeCount][2]StatType{
	QuestExploration: {StatExploration, StatCombat},
	QuestCombat:      {StatCombat, StatExploration},
	QuestAdmin:       {StatAdmin, StatExploration},
}

func AllQuestTypes() []QuestType {
	return []QuestType{QuestExploration, QuestCombat, QuestAdmin}
}

func (t QuestType) Valid() bool {
	return t >= 0 && t < questTypeCount
}

func (t QuestType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("quest_type(%d)", int(t))
	}
	return questTypeNames[t]
}

func (t QuestType) PrimaryStat() StatType {
	return questStatWeights[t][0]
}

func (t QuestType) SecondaryStat() StatType {
	return questStatWeights[t][1]
}

func ParseQuestType(v string) (QuestType, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range questTypeNames {
		if name == v {
			return QuestType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown quest type %q", v)
}

func (t QuestType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown quest type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *QuestType) UnmarshalText(b []byte) error {
	v, err := ParseQuestType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type QuestState string

const (
	QuestStateAvailable  QuestState = "available"
	QuestStateAssigned   QuestState = "assigned"
	QuestStateInProgress QuestState = "in_progress"
	QuestStateCompleted  QuestState = "completed"
	QuestStateFailed     QuestState = "failed"
)

func (s QuestState) Terminal() bool {
	return s == QuestStateCompleted || s == QuestStateFailed
}

type Equipment struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Cost    int64  `json:"cost"`
	Bonuses Stats  `json:"bonuses"`
}

type Party struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Stats        Stats       `json:"stats"`
	Loyalty      int         `json:"loyalty"`
	Available    bool        `json:"available"`
	Equipment    []Equipment `json:"equipment,omitempty"`
	Experience   int         `json:"experience"`
	LastQuestDay int         `json:"last_quest_day,omitempty"`
}

// EffectiveStats adds equipment bonuses to base stats. The result is not capped.
func (p Party) EffectiveStats() Stats {
	out := p.Stats
	for _, e := range p.Equipment {
		out = out.Add(e.Bonuses)
	}
	return out
}

func (p Party) clone() Party {
	p.Equipment = append([]Equipment(nil), p.Equipment...)
	return p
}

type MaterialReward struct {
	MaterialID string  `json:"material_id"`
	Quantity   int     `json:"quantity"`
	DropChance float64 `json:"drop_chance"`
}

type Quest struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Type             QuestType        `json:"type"`
	Difficulty       int              `json:"difficulty"`
	Duration         int              `json:"duration"`
	RewardGold       int64            `json:"reward_gold"`
	ReputationImpact int              `json:"reputation_impact"`
	Required         Stats            `json:"required"`
	Materials        []MaterialReward `json:"materials,omitempty"`
	AssignedParty    string           `json:"assigned_party,omitempty"`
	StartDay         int              `json:"start_day,omitempty"`
	State            QuestState       `json:"state"`
}

// IsReadyToComplete reports whether the quest's duration has elapsed by day.
func (q Quest) IsReadyToComplete(day int) bool {
	return q.State == QuestStateInProgress && day-q.StartDay >= q.Duration
}

// DaysRemaining never goes below zero.
func (q Quest) DaysRemaining(day int) int {
	if q.State != QuestStateInProgress {
		return q.Duration
	}
	left := q.Duration - (day - q.StartDay)
	if left < 0 {
		return 0
	}
	return left
}

func (q Quest) clone() Quest {
	q.Materials = append([]MaterialReward(nil), q.Materials...)
	return q
}

type DebtState string

const (
	DebtActive  DebtState = "active"
	DebtPaid    DebtState = "paid"
	DebtOverdue DebtState = "overdue"
)

type Payment struct {
	Day          int       `json:"day"`
	Quarter      int       `json:"quarter"`
	At           time.Time `json:"at"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Interest     int64     `json:"interest,omitempty"`
	Manual       bool      `json:"manual,omitempty"`
}

type Debt struct {
	Balance          int64     `json:"balance"`
	QuarterlyPayment int64     `json:"quarterly_payment"`
	InterestRate     float64   `json:"interest_rate"`
	State            DebtState `json:"state"`
	History          []Payment `json:"history,omitempty"`
}

func (d Debt) clone() Debt {
	d.History = append([]Payment(nil), d.History...)
	return d
}

type GameState struct {
	Day        int    `json:"day"`
	Quarter    int    `json:"quarter"`
	Gold       int64  `json:"gold"`
	Reputation int    `json:"reputation"`
	GameOver   string `json:"game_over,omitempty"`
}

// QuestOutcome is the unrolled result announced when a quest resolves.
type QuestOutcome struct {
	QuestID         string           `json:"quest_id"`
	PartyID         string           `json:"party_id"`
	Success         bool             `json:"success"`
	Gold            int64            `json:"gold"`
	ReputationDelta int              `json:"reputation_delta"`
	Materials       []MaterialReward `json:"materials,omitempty"`
}

// Snapshot holds everything a session needs to be rebuilt.
type Snapshot struct {
	State     GameState      `json:"state"`
	Debt      Debt           `json:"debt"`
	Parties   []Party        `json:"parties"`
	Quests    []Quest        `json:"quests"`
	Inventory map[string]int `json:"inventory,omitempty"`
	// QuarterLengthDays pins the quarter length the session started with.
	QuarterLengthDays int `json:"quarter_length_days,omitempty"`
}

// Status is the read model returned to callers.
type Status struct {
	SessionID      string         `json:"session_id"`
	State          GameState      `json:"state"`
	Debt           Debt           `json:"debt"`
	DaysToQuarter  int            `json:"days_to_quarter"`
	Parties        []Party        `json:"parties"`
	Quests         []QuestView    `json:"quests"`
	Inventory      map[string]int `json:"inventory,omitempty"`
	RosterCapacity int            `json:"roster_capacity"`
}

type QuestView struct {
	Quest
	DaysRemaining int     `json:"days_remaining"`
	Ready         bool    `json:"ready"`
	BaseSuccess   float64 `json:"base_success"`
}
