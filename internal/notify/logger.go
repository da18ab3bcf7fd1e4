// Package notify holds game.Subscriber implementations that report events
// outside the core: structured logs, prometheus metrics and a Discord channel.
package notify

import (
	"log/slog"

	"guildhall/internal/game"
)

// Logger writes every event to slog at info level.
type Logger struct {
	log *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{log: logger}
}

func (l *Logger) Handle(sessionID string, e game.Event) {
	args := append([]any{"session_id", sessionID, "kind", string(e.Kind())}, eventAttrs(e)...)
	if e.Kind() == game.KindGameOver {
		l.log.Warn("game event", args...)
		return
	}
	l.log.Info("game event", args...)
}

func eventAttrs(e game.Event) []any {
	switch ev := e.(type) {
	case game.QuestAdded:
		return []any{"quest_id", ev.Quest.ID, "difficulty", ev.Quest.Difficulty, "type", ev.Quest.Type.String()}
	case game.QuestRemoved:
		return []any{"quest_id", ev.QuestID}
	case game.QuestAssigned:
		return []any{"quest_id", ev.QuestID, "party_id", ev.PartyID, "estimated_success", ev.EstimatedSuccess}
	case game.QuestUnassigned:
		return []any{"quest_id", ev.QuestID, "party_id", ev.PartyID}
	case game.QuestStarted:
		return []any{"quest_id", ev.QuestID, "party_id", ev.PartyID, "day", ev.Day}
	case game.QuestCompleted:
		return []any{"quest_id", ev.Outcome.QuestID, "party_id", ev.Outcome.PartyID, "success", ev.Outcome.Success, "gold", ev.Outcome.Gold}
	case game.QuestReady:
		return []any{"quest_id", ev.QuestID, "day", ev.Day}
	case game.PartyRecruited:
		return []any{"party_id", ev.Party.ID, "name", ev.Party.Name}
	case game.PartyTrained:
		return []any{"party_id", ev.PartyID, "stat", ev.Stat.String(), "gain", ev.Gain, "value", ev.NewValue}
	case game.LoyaltyChanged:
		return []any{"party_id", ev.PartyID, "delta", ev.Delta, "loyalty", ev.Loyalty, "available", ev.Available}
	case game.EquipmentPurchased:
		return []any{"party_id", ev.PartyID, "item", ev.Item.ID}
	case game.PartyDisbanded:
		return []any{"party_id", ev.PartyID, "reason", ev.Reason}
	case game.PaymentMade:
		return []any{"amount", ev.Payment.Amount, "balance", ev.Payment.BalanceAfter, "manual", ev.Payment.Manual}
	case game.DebtPaidOff:
		return []any{"day", ev.Day}
	case game.DayAdvanced:
		return []any{"day", ev.Day}
	case game.QuarterAdvanced:
		return []any{"quarter", ev.Quarter, "day", ev.Day}
	case game.GameOver:
		return []any{"reason", ev.Reason, "day", ev.Day}
	case game.GoldChanged:
		return []any{"delta", ev.Delta, "total", ev.Total}
	case game.ReputationChanged:
		return []any{"delta", ev.Delta, "total", ev.Total}
	case game.MaterialsGranted:
		return []any{"quest_id", ev.QuestID, "materials", ev.Materials}
	default:
		return nil
	}
}
