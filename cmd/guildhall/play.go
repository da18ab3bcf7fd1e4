package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cl "guildhall/internal/cli"
	"guildhall/internal/game"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newPlayCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Run the guild from an interactive dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal() {
				return errors.New("play needs an interactive terminal")
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(newPlayModel(g.client(), id), tea.WithAltScreen()).Run()
			return err
		},
	}
}

type playKeys struct {
	Day     key.Binding
	Week    key.Binding
	Assign  key.Binding
	Resolve key.Binding
	Post    key.Binding
	Pay     key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k playKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Day, k.Assign, k.Resolve, k.Help, k.Quit}
}

func (k playKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Day, k.Week, k.Refresh},
		{k.Assign, k.Resolve, k.Post},
		{k.Pay, k.Help, k.Quit},
	}
}

var defaultPlayKeys = playKeys{
	Day:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next day")),
	Week:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "skip a week")),
	Assign:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "send best party")),
	Resolve: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resolve ready quest")),
	Post:    key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "post new quest")),
	Pay:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pay one installment")),
	Refresh: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type statusMsg struct{ status game.Status }

type noteMsg struct{ text string }

type errMsg struct{ err error }

type playModel struct {
	client    *cl.Client
	sessionID string
	status    game.Status
	loaded    bool
	note      string
	err       error
	busy      bool
	keys      playKeys
	help      help.Model
}

func newPlayModel(client *cl.Client, sessionID string) playModel {
	return playModel{
		client:    client,
		sessionID: sessionID,
		keys:      defaultPlayKeys,
		help:      help.New(),
		busy:      true,
	}
}

func (m playModel) Init() tea.Cmd {
	return m.refresh()
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil
	case statusMsg:
		m.status, m.loaded, m.busy = msg.status, true, false
		return m, nil
	case noteMsg:
		m.note, m.err = msg.text, nil
		return m, m.refresh()
	case errMsg:
		m.err, m.busy = msg.err, false
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m playModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	switch {
	case key.Matches(msg, m.keys.Refresh):
		cmd = m.refresh()
	case key.Matches(msg, m.keys.Day):
		cmd = m.advance(1)
	case key.Matches(msg, m.keys.Week):
		cmd = m.advance(7)
	case key.Matches(msg, m.keys.Assign):
		cmd = m.assignBest()
	case key.Matches(msg, m.keys.Resolve):
		cmd = m.resolveReady()
	case key.Matches(msg, m.keys.Post):
		cmd = m.post()
	case key.Matches(msg, m.keys.Pay):
		cmd = m.pay()
	default:
		return m, nil
	}
	m.busy = true
	return m, cmd
}

func (m playModel) View() string {
	if !m.loaded {
		if m.err != nil {
			return fmt.Sprintf("Could not load guild %s: %v\n\n%s", m.sessionID, m.err, m.help.View(m.keys))
		}
		return "Opening the guild ledger...\n"
	}
	var b strings.Builder
	b.WriteString(statusPanel(m.status))
	b.WriteString("\n\n")

	b.WriteString(titleStyle.Render("Parties"))
	b.WriteString("\n")
	if len(m.status.Parties) == 0 {
		b.WriteString(labelStyle.Render("  none yet, recruit from the CLI"))
		b.WriteString("\n")
	}
	for _, p := range m.status.Parties {
		state := "ready"
		if !p.Available {
			state = "away"
		}
		eff := p.EffectiveStats()
		fmt.Fprintf(&b, "  %-20s E%-3d C%-3d A%-3d loyalty %-3d %s\n", truncate(p.Name, 20),
			eff.Get(game.StatExploration), eff.Get(game.StatCombat), eff.Get(game.StatAdmin), p.Loyalty, state)
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Quest board"))
	b.WriteString("\n")
	for _, q := range m.status.Quests {
		note := string(q.State)
		switch {
		case q.Ready:
			note = "ready"
		case q.State == game.QuestStateInProgress:
			note = fmt.Sprintf("%d days left", q.DaysRemaining)
		}
		fmt.Fprintf(&b, "  %-26s %-11s d%d %5dg  %s\n", truncate(q.Name, 26), q.Type, q.Difficulty, q.RewardGold, note)
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(alertStyle.Render(m.err.Error()))
	case m.busy:
		b.WriteString(labelStyle.Render("working..."))
	case m.note != "":
		b.WriteString(m.note)
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m playModel) refresh() tea.Cmd {
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		st, err := client.Status(ctx, id)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg{st}
	}
}

func (m playModel) advance(days int) tea.Cmd {
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		st, err := client.Advance(ctx, id, days, "")
		if err != nil {
			return errMsg{err}
		}
		if st.GameOver != "" {
			return noteMsg{"The bank has seized the guild."}
		}
		return noteMsg{fmt.Sprintf("Day %d dawns.", st.Day)}
	}
}

func (m playModel) assignBest() tea.Cmd {
	questID, ok := nextOpenQuest(m.status)
	if !ok {
		return func() tea.Msg { return noteMsg{"No open quests on the board."} }
	}
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		match, err := client.BestMatch(ctx, id, questID)
		if err != nil {
			return errMsg{err}
		}
		if _, err := client.AssignQuest(ctx, id, questID, match.Party.ID, ""); err != nil {
			return errMsg{err}
		}
		if _, err := client.StartQuest(ctx, id, questID, ""); err != nil {
			return errMsg{err}
		}
		return noteMsg{fmt.Sprintf("%s set out with %.0f%% odds.", match.Party.Name, match.SuccessRate*100)}
	}
}

func (m playModel) resolveReady() tea.Cmd {
	questID, ok := nextReadyQuest(m.status)
	if !ok {
		return func() tea.Msg { return noteMsg{"No quest is ready to resolve."} }
	}
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		res, err := client.ResolveQuest(ctx, id, questID, "")
		if err != nil {
			return errMsg{err}
		}
		if res.Outcome.Success {
			return noteMsg{fmt.Sprintf("Success! +%d gold.", res.Outcome.Gold)}
		}
		return noteMsg{fmt.Sprintf("The party failed (%+d reputation).", res.Outcome.ReputationDelta)}
	}
}

func (m playModel) post() tea.Cmd {
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		q, err := client.GenerateQuest(ctx, id, 0, "", "")
		if err != nil {
			return errMsg{err}
		}
		return noteMsg{"Posted: " + q.Name}
	}
}

func (m playModel) pay() tea.Cmd {
	amount := installment(m.status)
	if amount <= 0 {
		return func() tea.Msg { return noteMsg{"Nothing to pay."} }
	}
	client, id := m.client, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		p, err := client.Pay(ctx, id, amount, "")
		if err != nil {
			return errMsg{err}
		}
		return noteMsg{fmt.Sprintf("Paid %d. Debt now %d.", p.Amount, p.BalanceAfter)}
	}
}

// nextOpenQuest is the first quest nobody has been assigned to.
func nextOpenQuest(s game.Status) (string, bool) {
	for _, q := range s.Quests {
		if q.State == game.QuestStateAvailable {
			return q.ID, true
		}
	}
	return "", false
}

func nextReadyQuest(s game.Status) (string, bool) {
	for _, q := range s.Quests {
		if q.Ready {
			return q.ID, true
		}
	}
	return "", false
}

func installment(s game.Status) int64 {
	if s.Debt.State != game.DebtActive {
		return 0
	}
	return min(s.Debt.QuarterlyPayment, s.Debt.Balance)
}
