package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists session snapshots. Update must run fn against the latest
// snapshot with no concurrent writer on the same session, claim idemKey (when
// non-empty) in the same unit of work, and persist nothing if fn fails.
type Store interface {
	Create(ctx context.Context, id string, snap Snapshot) error
	Load(ctx context.Context, id string) (Snapshot, error)
	Update(ctx context.Context, id, idemKey, action string, fn func(Snapshot) (Snapshot, error)) error
	ListActive(ctx context.Context, limit int) ([]Summary, error)
}

// Summary is the scalar view of a session kept next to its snapshot.
type Summary struct {
	ID               string    `json:"id"`
	Day              int       `json:"day"`
	Quarter          int       `json:"quarter"`
	Gold             int64     `json:"gold"`
	Reputation       int       `json:"reputation"`
	DebtBalance      int64     `json:"debt_balance"`
	QuarterlyPayment int64     `json:"quarterly_payment"`
	GameOver         string    `json:"game_over,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func Summarize(id string, snap Snapshot) Summary {
	return Summary{
		ID:               id,
		Day:              snap.State.Day,
		Quarter:          snap.State.Quarter,
		Gold:             snap.State.Gold,
		Reputation:       snap.State.Reputation,
		DebtBalance:      snap.Debt.Balance,
		QuarterlyPayment: snap.Debt.QuarterlyPayment,
		GameOver:         snap.State.GameOver,
	}
}

type Service struct {
	store Store
	rules Rules
	bus   *Bus
	log   *slog.Logger
	rng   Rand
}

func NewService(store Store, rules Rules, bus *Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Service{
		store: store,
		rules: rules,
		bus:   bus,
		log:   logger,
		rng:   &lockedRand{r: mathrand.New(mathrand.NewSource(time.Now().UnixNano()))},
	}
}

func (s *Service) Rules() Rules { return s.rules }

type NewGameInput struct {
	SessionID string
}

// NewGame starts a session with the configured balance and an initial quest board.
func (s *Service) NewGame(ctx context.Context, in NewGameInput) (Status, error) {
	id := strings.TrimSpace(in.SessionID)
	if id == "" {
		id = uuid.NewString()
	}
	rec := &Recorder{}
	sess, err := NewSession(id, s.rules, WithRand(s.rng), WithBus(NewBus(rec)))
	if err != nil {
		return Status{}, err
	}
	if _, err := sess.SeedBoard(s.rules.InitialQuests); err != nil {
		return Status{}, err
	}
	if err := s.store.Create(ctx, id, sess.Snapshot()); err != nil {
		return Status{}, err
	}
	s.log.Info("session created", "session_id", id, "quests", s.rules.InitialQuests)
	s.bus.Publish(id, rec.Events...)
	return sess.Status(), nil
}

func (s *Service) Status(ctx context.Context, sessionID string) (Status, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return Status{}, err
	}
	return sess.Status(), nil
}

func (s *Service) ListActive(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListActive(ctx, limit)
}

type AdvanceInput struct {
	SessionID      string
	Days           int
	IdempotencyKey string
}

// AdvanceDays ticks the clock up to Days times, stopping early if the game ends.
func (s *Service) AdvanceDays(ctx context.Context, in AdvanceInput) (GameState, error) {
	if in.Days <= 0 {
		in.Days = 1
	}
	if in.Days > 365 {
		return GameState{}, fmt.Errorf("%w: at most 365 days per call", ErrInvalidAmount)
	}
	var out GameState
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "advance", func(sess *Session) error {
		for i := 0; i < in.Days; i++ {
			st, err := sess.AdvanceDay()
			if err != nil {
				return err
			}
			out = st
			if st.GameOver != "" {
				break
			}
		}
		return nil
	})
	return out, err
}

type QuestInput struct {
	SessionID      string
	QuestID        string
	IdempotencyKey string
}

type AssignInput struct {
	SessionID      string
	QuestID        string
	PartyID        string
	IdempotencyKey string
}

func (s *Service) AssignQuest(ctx context.Context, in AssignInput) (Quest, error) {
	var out Quest
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "assign", func(sess *Session) (err error) {
		out, err = sess.AssignQuest(in.QuestID, in.PartyID)
		return err
	})
	return out, err
}

func (s *Service) UnassignQuest(ctx context.Context, in QuestInput) (Quest, error) {
	var out Quest
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "unassign", func(sess *Session) (err error) {
		out, err = sess.UnassignQuest(in.QuestID)
		return err
	})
	return out, err
}

func (s *Service) StartQuest(ctx context.Context, in QuestInput) (Quest, error) {
	var out Quest
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "start", func(sess *Session) (err error) {
		out, err = sess.StartQuest(in.QuestID)
		return err
	})
	return out, err
}

type CompleteInput struct {
	SessionID      string
	QuestID        string
	Success        bool
	IdempotencyKey string
}

func (s *Service) CompleteQuest(ctx context.Context, in CompleteInput) (Resolution, error) {
	var out Resolution
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "complete", func(sess *Session) (err error) {
		out, err = sess.CompleteQuest(in.QuestID, in.Success)
		return err
	})
	return out, err
}

// ResolveQuest rolls the outcome instead of taking it from the caller.
func (s *Service) ResolveQuest(ctx context.Context, in QuestInput) (Resolution, error) {
	var out Resolution
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "resolve", func(sess *Session) (err error) {
		out, err = sess.ResolveQuest(in.QuestID)
		return err
	})
	return out, err
}

type AddQuestInput struct {
	SessionID      string
	Quest          Quest
	IdempotencyKey string
}

func (s *Service) AddQuest(ctx context.Context, in AddQuestInput) (Quest, error) {
	var out Quest
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "add_quest", func(sess *Session) (err error) {
		out, err = sess.AddQuest(in.Quest)
		return err
	})
	return out, err
}

func (s *Service) RemoveQuest(ctx context.Context, in QuestInput) error {
	return s.apply(ctx, in.SessionID, in.IdempotencyKey, "remove_quest", func(sess *Session) error {
		return sess.RemoveQuest(in.QuestID)
	})
}

type GenerateInput struct {
	SessionID string
	// Difficulty 0 lets the guild's reputation pick difficulty and type.
	Difficulty     int
	Type           QuestType
	IdempotencyKey string
}

func (s *Service) GenerateQuest(ctx context.Context, in GenerateInput) (Quest, error) {
	var out Quest
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "generate", func(sess *Session) error {
		if in.Difficulty == 0 {
			qs, err := sess.SeedBoard(1)
			if err != nil {
				return err
			}
			out = qs[0]
			return nil
		}
		q, err := sess.GenerateQuest(in.Difficulty, in.Type)
		out = q
		return err
	})
	return out, err
}

type PaymentInput struct {
	SessionID      string
	Amount         int64
	IdempotencyKey string
}

func (s *Service) MakePayment(ctx context.Context, in PaymentInput) (Payment, error) {
	if in.Amount <= 0 {
		return Payment{}, ErrInvalidAmount
	}
	var out Payment
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "payment", func(sess *Session) (err error) {
		out, err = sess.MakeManualPayment(in.Amount)
		return err
	})
	return out, err
}

type RecruitInput struct {
	SessionID      string
	Name           string
	IdempotencyKey string
}

func (s *Service) RecruitParty(ctx context.Context, in RecruitInput) (Party, error) {
	var out Party
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "recruit", func(sess *Session) (err error) {
		out, err = sess.RecruitParty(in.Name)
		return err
	})
	return out, err
}

type TrainInput struct {
	SessionID      string
	PartyID        string
	Stat           StatType
	Cost           int64
	IdempotencyKey string
}

func (s *Service) TrainParty(ctx context.Context, in TrainInput) (Party, error) {
	var out Party
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "train", func(sess *Session) (err error) {
		out, err = sess.TrainParty(in.PartyID, in.Stat, in.Cost)
		return err
	})
	return out, err
}

type EquipInput struct {
	SessionID      string
	PartyID        string
	ItemID         string
	IdempotencyKey string
}

func (s *Service) PurchaseEquipment(ctx context.Context, in EquipInput) (Party, error) {
	var out Party
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "equip", func(sess *Session) (err error) {
		out, err = sess.PurchaseEquipment(in.PartyID, in.ItemID)
		return err
	})
	return out, err
}

type LoyaltyInput struct {
	SessionID      string
	PartyID        string
	Delta          int
	IdempotencyKey string
}

type LoyaltyResult struct {
	Party     Party `json:"party"`
	Disbanded bool  `json:"disbanded"`
}

func (s *Service) ModifyLoyalty(ctx context.Context, in LoyaltyInput) (LoyaltyResult, error) {
	var out LoyaltyResult
	err := s.apply(ctx, in.SessionID, in.IdempotencyKey, "loyalty", func(sess *Session) (err error) {
		out.Party, out.Disbanded, err = sess.ModifyLoyalty(in.PartyID, in.Delta)
		return err
	})
	return out, err
}

type PartyInput struct {
	SessionID      string
	PartyID        string
	IdempotencyKey string
}

func (s *Service) DisbandParty(ctx context.Context, in PartyInput) error {
	return s.apply(ctx, in.SessionID, in.IdempotencyKey, "disband", func(sess *Session) error {
		return sess.DisbandParty(in.PartyID)
	})
}

func (s *Service) UpdateAvailability(ctx context.Context, sessionID, idemKey string) ([]string, error) {
	var out []string
	err := s.apply(ctx, sessionID, idemKey, "availability", func(sess *Session) (err error) {
		out, err = sess.UpdateAvailability()
		return err
	})
	return out, err
}

func (s *Service) Estimate(ctx context.Context, sessionID, questID, partyID string) (float64, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return sess.Estimate(questID, partyID)
}

func (s *Service) BestMatch(ctx context.Context, sessionID, questID string) (Party, float64, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return Party{}, 0, err
	}
	return sess.BestMatch(questID)
}

// AdvanceAll ticks every active session one day. Failures are logged per session
// and do not stop the sweep.
func (s *Service) AdvanceAll(ctx context.Context) (int, error) {
	sessions, err := s.store.ListActive(ctx, 500)
	if err != nil {
		return 0, err
	}
	advanced := 0
	for _, sum := range sessions {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}
		st, err := s.AdvanceDays(ctx, AdvanceInput{SessionID: sum.ID, Days: 1})
		if err != nil {
			if !errors.Is(err, ErrGameOver) {
				s.log.Error("advance session failed", "session_id", sum.ID, "err", err)
			}
			continue
		}
		advanced++
		if st.GameOver != "" {
			s.log.Warn("session ended", "session_id", sum.ID, "day", st.Day, "reason", st.GameOver)
		}
	}
	return advanced, nil
}

func (s *Service) load(ctx context.Context, sessionID string) (*Session, error) {
	snap, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Restore(sessionID, s.rules, snap, WithRand(s.rng))
}

// apply runs op against the stored session and publishes its events only after
// the store committed the new snapshot.
func (s *Service) apply(ctx context.Context, sessionID, idemKey, action string, op func(*Session) error) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: empty id", ErrSessionNotFound)
	}
	rec := &Recorder{}
	err := s.store.Update(ctx, sessionID, strings.TrimSpace(idemKey), action, func(snap Snapshot) (Snapshot, error) {
		rec.Events = nil
		sess, err := Restore(sessionID, s.rules, snap, WithRand(s.rng), WithBus(NewBus(rec)))
		if err != nil {
			return Snapshot{}, err
		}
		if err := op(sess); err != nil {
			return Snapshot{}, err
		}
		return sess.Snapshot(), nil
	})
	if err != nil {
		return err
	}
	s.bus.Publish(sessionID, rec.Events...)
	return nil
}

// lockedRand shares one source across concurrent requests.
type lockedRand struct {
	mu sync.Mutex
	r  *mathrand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
