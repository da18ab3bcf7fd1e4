package game

import "sync"

type EventKind string

const (
	KindQuestAdded         EventKind = "quest_added"
	KindQuestRemoved       EventKind = "quest_removed"
	KindQuestAssigned      EventKind = "quest_assigned"
	KindQuestUnassigned    EventKind = "quest_unassigned"
	KindQuestStarted       EventKind = "quest_started"
	KindQuestCompleted     EventKind = "quest_completed"
	KindQuestReady         EventKind = "quest_ready"
	KindPartyRecruited     EventKind = "party_recruited"
	KindPartyTrained       EventKind = "party_trained"
	KindLoyaltyChanged     EventKind = "loyalty_changed"
	KindEquipmentPurchased EventKind = "equipment_purchased"
	KindPartyDisbanded     EventKind = "party_disbanded"
	KindPaymentMade        EventKind = "payment_made"
	KindDebtPaidOff        EventKind = "debt_paid_off"
	KindDayAdvanced        EventKind = "day_advanced"
	KindQuarterAdvanced    EventKind = "quarter_advanced"
	KindGameOver           EventKind = "game_over"
	KindGoldChanged        EventKind = "gold_changed"
	KindReputationChanged  EventKind = "reputation_changed"
	KindMaterialsGranted   EventKind = "materials_granted"
)

// Event is a completed, valid state change. Payloads are copies.
type Event interface {
	Kind() EventKind
}

type QuestAdded struct{ Quest Quest }
type QuestRemoved struct{ QuestID string }

type QuestAssigned struct {
	QuestID          string
	PartyID          string
	EstimatedSuccess float64
}

type QuestUnassigned struct {
	QuestID string
	PartyID string
}

type QuestStarted struct {
	QuestID string
	PartyID string
	Day     int
}

type QuestCompleted struct{ Outcome QuestOutcome }

type QuestReady struct {
	QuestID string
	Day     int
}

type PartyRecruited struct{ Party Party }

type PartyTrained struct {
	PartyID  string
	Stat     StatType
	Gain     int
	NewValue int
}

type LoyaltyChanged struct {
	PartyID   string
	Delta     int
	Loyalty   int
	Available bool
}

type EquipmentPurchased struct {
	PartyID string
	Item    Equipment
}

type PartyDisbanded struct {
	PartyID string
	Reason  string
}

type PaymentMade struct{ Payment Payment }
type DebtPaidOff struct{ Day int }

type DayAdvanced struct{ Day int }

type QuarterAdvanced struct {
	Quarter int
	Day     int
}

type GameOver struct {
	Reason string
	Day    int
}

type GoldChanged struct {
	Delta int64
	Total int64
}

type ReputationChanged struct {
	Delta int
	Total int
}

type MaterialsGranted struct {
	QuestID   string
	Materials map[string]int
}

func (QuestAdded) Kind() EventKind         { return KindQuestAdded }
func (QuestRemoved) Kind() EventKind       { return KindQuestRemoved }
func (QuestAssigned) Kind() EventKind      { return KindQuestAssigned }
func (QuestUnassigned) Kind() EventKind    { return KindQuestUnassigned }
func (QuestStarted) Kind() EventKind       { return KindQuestStarted }
func (QuestCompleted) Kind() EventKind     { return KindQuestCompleted }
func (QuestReady) Kind() EventKind         { return KindQuestReady }
func (PartyRecruited) Kind() EventKind     { return KindPartyRecruited }
func (PartyTrained) Kind() EventKind       { return KindPartyTrained }
func (LoyaltyChanged) Kind() EventKind     { return KindLoyaltyChanged }
func (EquipmentPurchased) Kind() EventKind { return KindEquipmentPurchased }
func (PartyDisbanded) Kind() EventKind     { return KindPartyDisbanded }
func (PaymentMade) Kind() EventKind        { return KindPaymentMade }
func (DebtPaidOff) Kind() EventKind        { return KindDebtPaidOff }
func (DayAdvanced) Kind() EventKind        { return KindDayAdvanced }
func (QuarterAdvanced) Kind() EventKind    { return KindQuarterAdvanced }
func (GameOver) Kind() EventKind           { return KindGameOver }
func (GoldChanged) Kind() EventKind        { return KindGoldChanged }
func (ReputationChanged) Kind() EventKind  { return KindReputationChanged }
func (MaterialsGranted) Kind() EventKind   { return KindMaterialsGranted }

type Subscriber interface {
	Handle(sessionID string, e Event)
}

type SubscriberFunc func(sessionID string, e Event)

func (f SubscriberFunc) Handle(sessionID string, e Event) { f(sessionID, e) }

// Bus fans events out to an explicit list of subscribers in registration order.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewBus(subs ...Subscriber) *Bus {
	return &Bus{subs: append([]Subscriber(nil), subs...)}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()
}

func (b *Bus) Publish(sessionID string, events ...Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, e := range events {
		for _, s := range subs {
			s.Handle(sessionID, e)
		}
	}
}

// Recorder buffers events; the service flushes it only after a save commits.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Handle(_ string, e Event) {
	r.Events = append(r.Events, e)
}
