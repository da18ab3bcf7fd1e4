package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"guildhall/internal/game"
)

type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type discordMessage struct {
	sessionID string
	text      string
}

// Discord posts the notable events of every session to one channel. Handle
// never blocks the game: messages queue up and are dropped when the queue is full.
type Discord struct {
	sender  messageSender
	channel string
	log     *slog.Logger
	queue   chan discordMessage
}

// NewDiscord opens a bot session for token. Call Run to start delivery.
func NewDiscord(token, channelID string, logger *slog.Logger) (*Discord, error) {
	dg, err := discordgo.New("Bot " + strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return newDiscord(dg, channelID, logger), nil
}

func newDiscord(sender messageSender, channelID string, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		sender:  sender,
		channel: channelID,
		log:     logger,
		queue:   make(chan discordMessage, 64),
	}
}

func (d *Discord) Handle(sessionID string, e game.Event) {
	text, ok := discordText(e)
	if !ok {
		return
	}
	select {
	case d.queue <- discordMessage{sessionID: sessionID, text: text}:
	default:
		d.log.Warn("discord queue full, dropping message", "session_id", sessionID, "kind", string(e.Kind()))
	}
}

// Run delivers queued messages until ctx is cancelled.
func (d *Discord) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			content := fmt.Sprintf("**[%s]** %s", msg.sessionID, msg.text)
			if _, err := d.sender.ChannelMessageSend(d.channel, content, discordgo.WithContext(ctx)); err != nil {
				d.log.Error("discord send failed", "session_id", msg.sessionID, "err", err)
			}
		}
	}
}

func discordText(e game.Event) (string, bool) {
	switch ev := e.(type) {
	case game.GameOver:
		return fmt.Sprintf("The guild has fallen on day %d: %s.", ev.Day, ev.Reason), true
	case game.DebtPaidOff:
		return fmt.Sprintf("Debt cleared on day %d. The guild is free.", ev.Day), true
	case game.QuestCompleted:
		if ev.Outcome.Success {
			return fmt.Sprintf("Quest %s succeeded for %d gold.", ev.Outcome.QuestID, ev.Outcome.Gold), true
		}
		return fmt.Sprintf("Quest %s failed (reputation %d).", ev.Outcome.QuestID, ev.Outcome.ReputationDelta), true
	case game.PartyDisbanded:
		return fmt.Sprintf("Party %s left the guild: %s.", ev.PartyID, ev.Reason), true
	default:
		return "", false
	}
}
