package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	cl "guildhall/internal/cli"
	"guildhall/internal/game"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	alertStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt(label string, min, max int) (int, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(text)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min || v > max {
			printWarn(fmt.Sprintf("Value must be between %d and %d", min, max))
			continue
		}
		return v, nil
	}
}

// promptQuest asks for every field of a hand-written quest. Required stats
// must add up to difficulty x 10.
func promptQuest() (game.Quest, error) {
	var q game.Quest
	var err error
	if q.Name, err = promptRequired("Quest name"); err != nil {
		return q, err
	}
	typeName, err := promptChoice("Type", []string{"exploration", "combat", "admin"}, "combat")
	if err != nil {
		return q, err
	}
	if q.Type, err = game.ParseQuestType(typeName); err != nil {
		return q, err
	}
	if q.Difficulty, err = promptInt("Difficulty", game.DifficultyMin, game.DifficultyMax); err != nil {
		return q, err
	}
	if q.Duration, err = promptInt("Duration (days)", 1, 365); err != nil {
		return q, err
	}
	gold, err := promptInt("Reward gold", 0, 1_000_000)
	if err != nil {
		return q, err
	}
	q.RewardGold = int64(gold)
	if q.ReputationImpact, err = promptInt("Reputation impact", 0, game.ReputationMax); err != nil {
		return q, err
	}
	printInfo(fmt.Sprintf("Required stats must total %d.", q.Difficulty*game.PointsPerDifficulty))
	for _, s := range game.AllStats() {
		v, err := promptInt("Required "+s.String(), 0, q.Difficulty*game.PointsPerDifficulty)
		if err != nil {
			return q, err
		}
		q.Required[s] = v
	}
	return q, nil
}

func renderStatus(s game.Status) {
	if isTerminal() {
		fmt.Println(statusPanel(s))
	} else {
		renderStatusPlain(s)
	}
	renderRoster(s.Parties, s.RosterCapacity)
	renderBoard(s.Quests)
	if len(s.Inventory) > 0 {
		fmt.Println()
		accent.Println("Storeroom")
		for _, k := range sortedKeys(s.Inventory) {
			fmt.Printf("  %-16s %d\n", k, s.Inventory[k])
		}
	}
}

// statusPanel is the boxed headline shared by `status` and `play`.
func statusPanel(s game.Status) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Guild %s", s.SessionID)),
		fmt.Sprintf("%s %d   %s %d   %s %d",
			labelStyle.Render("Day"), s.State.Day,
			labelStyle.Render("Quarter"), s.State.Quarter,
			labelStyle.Render("Next payment in"), s.DaysToQuarter),
		fmt.Sprintf("%s %d   %s %d/100",
			labelStyle.Render("Gold"), s.State.Gold,
			labelStyle.Render("Reputation"), s.State.Reputation),
		fmt.Sprintf("%s %d (%s, %d due per quarter at %.1f%%)",
			labelStyle.Render("Debt"), s.Debt.Balance, s.Debt.State,
			s.Debt.QuarterlyPayment, s.Debt.InterestRate*100),
	}
	if s.State.GameOver != "" {
		lines = append(lines, alertStyle.Render("GAME OVER: "+s.State.GameOver))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func renderStatusPlain(s game.Status) {
	accent.Printf("\n== GUILD %s ==\n", s.SessionID)
	fmt.Printf("Day:                %d (quarter %d, payment in %d days)\n", s.State.Day, s.State.Quarter, s.DaysToQuarter)
	fmt.Printf("Gold:               %d\n", s.State.Gold)
	fmt.Printf("Reputation:         %d/100\n", s.State.Reputation)
	fmt.Printf("Debt:               %d (%s)\n", s.Debt.Balance, s.Debt.State)
	fmt.Printf("Quarterly Payment:  %d at %.1f%%\n", s.Debt.QuarterlyPayment, s.Debt.InterestRate*100)
	if s.State.GameOver != "" {
		danger.Printf("GAME OVER: %s\n", s.State.GameOver)
	}
}

func renderRoster(parties []game.Party, capacity int) {
	fmt.Println()
	accent.Printf("Roster (%d/%d)\n", len(parties), capacity)
	if len(parties) == 0 {
		printInfo("No parties yet. Recruit one with `guildhall party recruit`.")
		return
	}
	fmt.Printf("%-10s %-20s %5s %5s %5s %8s %5s %s\n", "ID", "NAME", "EXP", "CMB", "ADM", "LOYALTY", "XP", "STATUS")
	for _, p := range parties {
		eff := p.EffectiveStats()
		state := success.Sprint("ready")
		if !p.Available {
			state = warn.Sprint("unavailable")
		}
		fmt.Printf("%-10s %-20s %5d %5d %5d %8d %5d %s\n",
			truncate(p.ID, 10), truncate(p.Name, 20),
			eff.Get(game.StatExploration), eff.Get(game.StatCombat), eff.Get(game.StatAdmin),
			p.Loyalty, p.Experience, state)
	}
}

func renderBoard(quests []game.QuestView) {
	fmt.Println()
	accent.Println("Quest Board")
	if len(quests) == 0 {
		printInfo("The board is empty. Try `guildhall quest generate`.")
		return
	}
	fmt.Printf("%-10s %-28s %-11s %4s %5s %7s %-12s %s\n", "ID", "NAME", "TYPE", "DIFF", "DAYS", "GOLD", "STATE", "NOTE")
	for _, q := range quests {
		note := ""
		switch {
		case q.Ready:
			note = success.Sprint("ready to resolve")
		case q.State == game.QuestStateInProgress:
			note = fmt.Sprintf("%d days left", q.DaysRemaining)
		case q.AssignedParty != "":
			note = "party " + q.AssignedParty
		}
		fmt.Printf("%-10s %-28s %-11s %4d %5d %7d %-12s %s\n",
			truncate(q.ID, 10), truncate(q.Name, 28), q.Type, q.Difficulty, q.Duration, q.RewardGold, q.State, note)
	}
}

func renderSessions(rows []game.Summary) {
	accent.Println("Active guilds")
	if len(rows) == 0 {
		printInfo("No active sessions.")
		return
	}
	fmt.Printf("%-38s %5s %4s %8s %5s %9s\n", "ID", "DAY", "QTR", "GOLD", "REP", "DEBT")
	for _, r := range rows {
		fmt.Printf("%-38s %5d %4d %8d %5d %9d\n", r.ID, r.Day, r.Quarter, r.Gold, r.Reputation, r.DebtBalance)
	}
}

func renderGameState(st game.GameState) {
	fmt.Printf("Day %d, quarter %d. Gold %d, reputation %d.\n", st.Day, st.Quarter, st.Gold, st.Reputation)
	if st.GameOver != "" {
		danger.Printf("GAME OVER: %s\n", st.GameOver)
	}
}

func renderCatalog(c cl.Catalog) {
	accent.Println("Guild terms")
	fmt.Printf("Recruit cost:       %d\n", c.RecruitCost)
	fmt.Printf("Roster capacity:    %d\n", c.RosterCapacity)
	fmt.Printf("Quarter length:     %d days\n", c.QuarterLengthDays)
	fmt.Println()
	accent.Println("Equipment")
	fmt.Printf("%-12s %-22s %6s %5s %5s %5s\n", "ID", "NAME", "COST", "EXP", "CMB", "ADM")
	for _, e := range c.Equipment {
		fmt.Printf("%-12s %-22s %6d %+5d %+5d %+5d\n", e.ID, truncate(e.Name, 22), e.Cost,
			e.Bonuses.Get(game.StatExploration), e.Bonuses.Get(game.StatCombat), e.Bonuses.Get(game.StatAdmin))
	}
}

func renderQuest(q game.Quest) {
	fmt.Printf("%s %s [%s, difficulty %d, %d days, %d gold] %s\n",
		accent.Sprint(q.ID), q.Name, q.Type, q.Difficulty, q.Duration, q.RewardGold, q.State)
	if q.AssignedParty != "" {
		fmt.Printf("  assigned to %s\n", q.AssignedParty)
	}
}

func renderParty(p game.Party) {
	eff := p.EffectiveStats()
	fmt.Printf("%s %s  exp %d  cmb %d  adm %d  loyalty %d",
		accent.Sprint(p.ID), p.Name,
		eff.Get(game.StatExploration), eff.Get(game.StatCombat), eff.Get(game.StatAdmin), p.Loyalty)
	if !p.Available {
		fmt.Print(warn.Sprint("  (unavailable)"))
	}
	fmt.Println()
}

func renderResolution(r game.Resolution) {
	if r.Outcome.Success {
		success.Printf("Quest %s succeeded: +%d gold, %+d reputation.\n", r.Outcome.QuestID, r.Outcome.Gold, r.Outcome.ReputationDelta)
	} else {
		danger.Printf("Quest %s failed: %+d reputation.\n", r.Outcome.QuestID, r.Outcome.ReputationDelta)
	}
	if r.Rate > 0 {
		fmt.Printf("  odds %s, rolled %.2f\n", colorizeRate(r.Rate), r.Roll)
	}
	for _, k := range sortedKeys(r.Granted) {
		fmt.Printf("  found %d x %s\n", r.Granted[k], k)
	}
	fmt.Printf("  party gained %d experience\n", r.Experience)
}

func colorizeRate(rate float64) string {
	text := fmt.Sprintf("%.0f%%", rate*100)
	switch {
	case rate >= 0.7:
		return success.Sprint(text)
	case rate >= 0.4:
		return warn.Sprint(text)
	default:
		return danger.Sprint(text)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
