package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "guildhall/internal/cli"
	"guildhall/internal/config"
	"guildhall/internal/game"
	"guildhall/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type globals struct {
	apiBase   string
	token     string
	sessionID string
}

func main() {
	_ = config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	g := &globals{apiBase: cfg.APIBaseURL, token: cfg.APIToken}

	root := &cobra.Command{
		Use:          "guildhall",
		Short:        "Run the front desk of an indebted adventurers' guild",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.apiBase, "api", g.apiBase, "API base URL")
	root.PersistentFlags().StringVar(&g.sessionID, "session", "", "session id (defaults to the active session)")

	root.AddCommand(
		newNewCmd(g),
		newUseCmd(),
		newSessionsCmd(g),
		newStatusCmd(g),
		newAdvanceCmd(g),
		newPayCmd(g),
		newCatalogCmd(g),
		newAvailabilityCmd(g),
		newQuestCmd(g),
		newPartyCmd(g),
		newSyncCmd(g),
		newPlayCmd(g),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (g *globals) client() *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(g.apiBase), "/"), g.token)
}

func (g *globals) session() (string, error) {
	if id := strings.TrimSpace(g.sessionID); id != "" {
		return id, nil
	}
	s, err := cl.LoadSession()
	if err != nil {
		return "", err
	}
	return s.SessionID, nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newNewCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "new [session-id]",
		Short: "Open a new guild and make it the active session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			status, err := g.client().NewGame(ctx, id)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.ActiveSession{SessionID: status.SessionID, APIBase: g.apiBase}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Guild %s opened. The bank expects its first payment on day %d.", status.SessionID, status.State.Day+status.DaysToQuarter))
			renderStatus(status)
			return nil
		},
	}
}

func newUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <session-id>",
		Short: "Switch the active session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.SaveSession(cl.ActiveSession{SessionID: args[0]}); err != nil {
				return err
			}
			printSuccess("Active session: " + args[0])
			return nil
		},
	}
}

func newSessionsCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List guilds still in business",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := g.client().ListSessions(ctx, limit)
			if err != nil {
				return err
			}
			renderSessions(out)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")
	return cmd
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show gold, debt, roster and quest board",
		Aliases: []string{"dash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			status, err := g.client().Status(ctx, id)
			if err != nil {
				return err
			}
			renderStatus(status)
			return nil
		},
	}
}

func newAdvanceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "advance [days]",
		Short: "Let days pass",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			days := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("days must be a positive whole number")
				}
				days = n
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			st, err := g.client().Advance(ctx, id, days, idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.SessionPath(id, "/advance"),
				Body:           map[string]any{"days": days},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			renderGameState(st)
			return nil
		},
	}
}

func newPayCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <amount>",
		Short: "Pay down the debt early",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive whole number of gold")
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			p, err := g.client().Pay(ctx, id, amount, idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.SessionPath(id, "/payments"),
				Body:           map[string]any{"amount": amount},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Paid %d gold. Remaining debt: %d.", p.Amount, p.BalanceAfter))
			if p.BalanceAfter == 0 {
				printSuccess("The debt is cleared!")
			}
			return nil
		},
	}
}

func newCatalogCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Show equipment prices and guild terms",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			c, err := g.client().Catalog(ctx)
			if err != nil {
				return err
			}
			renderCatalog(c)
			return nil
		},
	}
}

func newAvailabilityCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "availability",
		Short: "Re-check which parties are fit to take quests",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			changed, err := g.client().UpdateAvailability(ctx, id, idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.SessionPath(id, "/availability"),
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			if len(changed) == 0 {
				printInfo("No availability changes.")
				return nil
			}
			printSuccess("Availability changed for: " + strings.Join(changed, ", "))
			return nil
		},
	}
}

func newQuestCmd(g *globals) *cobra.Command {
	quest := &cobra.Command{
		Use:     "quest",
		Short:   "Quest board commands",
		Aliases: []string{"quests"},
	}
	quest.AddCommand(
		newQuestGenerateCmd(g),
		newQuestAddCmd(g),
		newQuestAssignCmd(g),
		newQuestSimpleCmd(g, "unassign", "Take the party off a quest"),
		newQuestSimpleCmd(g, "start", "Send the assigned party out"),
		newQuestCompleteCmd(g),
		newQuestResolveCmd(g),
		newQuestEstimateCmd(g),
		newQuestBestCmd(g),
		newQuestRemoveCmd(g),
	)
	return quest
}

func newQuestGenerateCmd(g *globals) *cobra.Command {
	var difficulty int
	var questType string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Post a freshly generated quest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if questType != "" {
				if _, err := game.ParseQuestType(questType); err != nil {
					return err
				}
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			q, err := g.client().GenerateQuest(ctx, id, difficulty, questType, idem)
			body := map[string]any{"difficulty": difficulty}
			if questType != "" {
				body["type"] = questType
			}
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.SessionPath(id, "/quests/generate"),
				Body:           body,
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			renderQuest(q)
			return nil
		},
	}
	cmd.Flags().IntVar(&difficulty, "difficulty", 0, "difficulty 1-5 (0 picks from reputation)")
	cmd.Flags().StringVar(&questType, "type", "", "exploration, combat or admin")
	return cmd
}

func newQuestAddCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "add",
		Short: "Post a hand-written quest",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := promptQuest()
			if err != nil {
				return err
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			out, err := g.client().AddQuest(ctx, id, q, uuid.NewString())
			if err != nil {
				return err
			}
			renderQuest(out)
			return nil
		},
	}
}

func newQuestAssignCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <quest-id> <party-id>",
		Short: "Put a party on a quest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			q, err := g.client().AssignQuest(ctx, id, args[0], args[1], idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.QuestPath(id, args[0], "/assign"),
				Body:           map[string]any{"party_id": args[1]},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			renderQuest(q)
			return nil
		},
	}
}

// newQuestSimpleCmd covers the body-less quest transitions.
func newQuestSimpleCmd(g *globals, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <quest-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := g.client()
			var q game.Quest
			if action == "start" {
				q, err = client.StartQuest(ctx, id, args[0], idem)
			} else {
				q, err = client.UnassignQuest(ctx, id, args[0], idem)
			}
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.QuestPath(id, args[0], "/"+action),
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			renderQuest(q)
			return nil
		},
	}
}

func newQuestCompleteCmd(g *globals) *cobra.Command {
	var failed bool
	cmd := &cobra.Command{
		Use:   "complete <quest-id>",
		Short: "Record a quest result you decided yourself",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := g.client().CompleteQuest(ctx, id, args[0], !failed, idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.QuestPath(id, args[0], "/complete"),
				Body:           map[string]any{"success": !failed},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			renderResolution(res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "record the quest as failed")
	return cmd
}

func newQuestResolveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <quest-id>",
		Short: "Roll the dice on a quest in progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := g.client().ResolveQuest(ctx, id, args[0], uuid.NewString())
			if err != nil {
				return err
			}
			renderResolution(res)
			return nil
		},
	}
}

func newQuestEstimateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate <quest-id> <party-id>",
		Short: "Show the odds a party has on a quest",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			est, err := g.client().Estimate(ctx, id, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Party %s on quest %s: %s\n", args[1], args[0], colorizeRate(est.SuccessRate))
			return nil
		},
	}
}

func newQuestBestCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "best <quest-id>",
		Short: "Find the available party with the best odds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			m, err := g.client().BestMatch(ctx, id, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Best match: %s (%s) at %s\n", m.Party.Name, m.Party.ID, colorizeRate(m.SuccessRate))
			return nil
		},
	}
}

func newQuestRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <quest-id>",
		Short: "Take a quest off the board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			err = g.client().RemoveQuest(ctx, id, args[0], idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodDelete,
				Path:           cl.QuestPath(id, args[0], ""),
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			printSuccess("Quest removed.")
			return nil
		},
	}
}

func newPartyCmd(g *globals) *cobra.Command {
	party := &cobra.Command{
		Use:     "party",
		Short:   "Roster commands",
		Aliases: []string{"parties"},
	}
	party.AddCommand(
		newPartyRecruitCmd(g),
		newPartyTrainCmd(g),
		newPartyEquipCmd(g),
		newPartyLoyaltyCmd(g),
		newPartyDisbandCmd(g),
	)
	return party
}

func newPartyRecruitCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "recruit [name]",
		Short: "Hire a new party",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				var err error
				if name, err = promptRequired("Party name"); err != nil {
					return err
				}
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			p, err := g.client().Recruit(ctx, id, name, idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.SessionPath(id, "/parties"),
				Body:           map[string]any{"name": name},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s joined the guild as %s.", p.Name, p.ID))
			return nil
		},
	}
}

func newPartyTrainCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "train <party-id> <stat> <gold>",
		Short: "Spend gold to raise one stat",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := game.ParseStatType(args[1]); err != nil {
				return err
			}
			cost, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || cost <= 0 {
				return fmt.Errorf("gold must be a positive whole number")
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			p, err := g.client().Train(ctx, id, args[0], args[1], cost, idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.PartyPath(id, args[0], "/train"),
				Body:           map[string]any{"stat": args[1], "cost": cost},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			renderParty(p)
			return nil
		},
	}
}

func newPartyEquipCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "equip <party-id> <item-id>",
		Short: "Buy equipment from the catalog for a party",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			p, err := g.client().Equip(ctx, id, args[0], args[1], idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.PartyPath(id, args[0], "/equip"),
				Body:           map[string]any{"item_id": args[1]},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			renderParty(p)
			return nil
		},
	}
}

func newPartyLoyaltyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "loyalty <party-id> <delta>",
		Short: "Adjust a party's loyalty",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta must be a whole number")
			}
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := g.client().Loyalty(ctx, id, args[0], delta, idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodPost,
				Path:           cl.PartyPath(id, args[0], "/loyalty"),
				Body:           map[string]any{"delta": delta},
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			if res.Disbanded {
				printWarn(fmt.Sprintf("%s lost all faith in the guild and left.", res.Party.Name))
				return nil
			}
			renderParty(res.Party)
			return nil
		},
	}
}

func newPartyDisbandCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "disband <party-id>",
		Short: "Dismiss an idle party",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := g.session()
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := requestContext(cmd)
			defer cancel()
			err = g.client().Disband(ctx, id, args[0], idem)
			if queued, err := queueOnNetworkError(err, syncq.Command{
				Method:         http.MethodDelete,
				Path:           cl.PartyPath(id, args[0], ""),
				IdempotencyKey: idem,
			}); queued || err != nil {
				return err
			}
			printSuccess("Party disbanded.")
			return nil
		},
	}
}

func newSyncCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while the server was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			res, err := syncq.Flush(ctx, g.client())
			if err != nil {
				return err
			}
			for _, f := range res.Failed {
				printError(fmt.Sprintf("Rejected %s %s: %v", f.Command.Method, f.Command.Path, f.Err))
			}
			msg := fmt.Sprintf("Sync complete: replayed=%d rejected=%d remaining=%d", res.Sent, len(res.Failed), res.Remaining)
			if res.Remaining > 0 {
				printWarn(msg + " (server still unreachable)")
				return nil
			}
			printSuccess(msg)
			return nil
		},
	}
}

// queueOnNetworkError parks c in the offline queue when err is a transport
// failure. API rejections are returned unchanged.
func queueOnNetworkError(err error, c syncq.Command) (bool, error) {
	if err == nil {
		return false, nil
	}
	if !cl.IsOffline(err) {
		return false, err
	}
	if qerr := syncq.Push(c); qerr != nil {
		return false, fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn("Server unreachable. Command queued; run `guildhall sync` when back online.")
	return true, nil
}
