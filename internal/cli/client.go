package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"guildhall/internal/game"
	"guildhall/internal/syncq"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsOffline reports whether err means the request never reached the server,
// so the command is safe to queue for a later sync.
func IsOffline(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Catalog struct {
	Equipment         []game.Equipment `json:"equipment"`
	RecruitCost       int64            `json:"recruit_cost"`
	RosterCapacity    int              `json:"roster_capacity"`
	QuarterLengthDays int              `json:"quarter_length_days"`
	Debt              game.DebtTerms   `json:"debt"`
}

type Estimate struct {
	PartyID     string  `json:"party_id"`
	SuccessRate float64 `json:"success_rate"`
}

type Match struct {
	Party       game.Party `json:"party"`
	SuccessRate float64    `json:"success_rate"`
}

func (c *Client) Catalog(ctx context.Context) (Catalog, error) {
	var out Catalog
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/catalog", nil, &out, "")
	return out, err
}

func (c *Client) NewGame(ctx context.Context, sessionID string) (game.Status, error) {
	var out game.Status
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/sessions", map[string]any{"session_id": sessionID}, &out, "")
	return out, err
}

func (c *Client) ListSessions(ctx context.Context, limit int) ([]game.Summary, error) {
	var out struct {
		Sessions []game.Summary `json:"sessions"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/v1/sessions?limit=%d", limit), nil, &out, "")
	return out.Sessions, err
}

func (c *Client) Status(ctx context.Context, sessionID string) (game.Status, error) {
	var out game.Status
	err := c.jsonRequest(ctx, http.MethodGet, SessionPath(sessionID, ""), nil, &out, "")
	return out, err
}

func (c *Client) Advance(ctx context.Context, sessionID string, days int, idem string) (game.GameState, error) {
	var out game.GameState
	err := c.jsonRequest(ctx, http.MethodPost, SessionPath(sessionID, "/advance"), map[string]any{"days": days}, &out, idem)
	return out, err
}

func (c *Client) UpdateAvailability(ctx context.Context, sessionID, idem string) ([]string, error) {
	var out struct {
		Changed []string `json:"changed"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, SessionPath(sessionID, "/availability"), nil, &out, idem)
	return out.Changed, err
}

func (c *Client) Pay(ctx context.Context, sessionID string, amount int64, idem string) (game.Payment, error) {
	var out game.Payment
	err := c.jsonRequest(ctx, http.MethodPost, SessionPath(sessionID, "/payments"), map[string]any{"amount": amount}, &out, idem)
	return out, err
}

func (c *Client) AddQuest(ctx context.Context, sessionID string, q game.Quest, idem string) (game.Quest, error) {
	var out game.Quest
	err := c.jsonRequest(ctx, http.MethodPost, SessionPath(sessionID, "/quests"), q, &out, idem)
	return out, err
}

func (c *Client) GenerateQuest(ctx context.Context, sessionID string, difficulty int, questType, idem string) (game.Quest, error) {
	body := map[string]any{"difficulty": difficulty}
	if questType != "" {
		body["type"] = questType
	}
	var out game.Quest
	err := c.jsonRequest(ctx, http.MethodPost, SessionPath(sessionID, "/quests/generate"), body, &out, idem)
	return out, err
}

func (c *Client) RemoveQuest(ctx context.Context, sessionID, questID, idem string) error {
	return c.jsonRequest(ctx, http.MethodDelete, QuestPath(sessionID, questID, ""), nil, nil, idem)
}

func (c *Client) AssignQuest(ctx context.Context, sessionID, questID, partyID, idem string) (game.Quest, error) {
	var out game.Quest
	err := c.jsonRequest(ctx, http.MethodPost, QuestPath(sessionID, questID, "/assign"), map[string]any{"party_id": partyID}, &out, idem)
	return out, err
}

func (c *Client) UnassignQuest(ctx context.Context, sessionID, questID, idem string) (game.Quest, error) {
	var out game.Quest
	err := c.jsonRequest(ctx, http.MethodPost, QuestPath(sessionID, questID, "/unassign"), nil, &out, idem)
	return out, err
}

func (c *Client) StartQuest(ctx context.Context, sessionID, questID, idem string) (game.Quest, error) {
	var out game.Quest
	err := c.jsonRequest(ctx, http.MethodPost, QuestPath(sessionID, questID, "/start"), nil, &out, idem)
	return out, err
}

func (c *Client) CompleteQuest(ctx context.Context, sessionID, questID string, success bool, idem string) (game.Resolution, error) {
	var out game.Resolution
	err := c.jsonRequest(ctx, http.MethodPost, QuestPath(sessionID, questID, "/complete"), map[string]any{"success": success}, &out, idem)
	return out, err
}

func (c *Client) ResolveQuest(ctx context.Context, sessionID, questID, idem string) (game.Resolution, error) {
	var out game.Resolution
	err := c.jsonRequest(ctx, http.MethodPost, QuestPath(sessionID, questID, "/resolve"), nil, &out, idem)
	return out, err
}

func (c *Client) Estimate(ctx context.Context, sessionID, questID, partyID string) (Estimate, error) {
	var out Estimate
	path := QuestPath(sessionID, questID, "/estimate") + "?party_id=" + url.QueryEscape(partyID)
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) BestMatch(ctx context.Context, sessionID, questID string) (Match, error) {
	var out Match
	err := c.jsonRequest(ctx, http.MethodGet, QuestPath(sessionID, questID, "/best-match"), nil, &out, "")
	return out, err
}

func (c *Client) Recruit(ctx context.Context, sessionID, name, idem string) (game.Party, error) {
	var out game.Party
	err := c.jsonRequest(ctx, http.MethodPost, SessionPath(sessionID, "/parties"), map[string]any{"name": name}, &out, idem)
	return out, err
}

func (c *Client) Train(ctx context.Context, sessionID, partyID, stat string, cost int64, idem string) (game.Party, error) {
	var out game.Party
	err := c.jsonRequest(ctx, http.MethodPost, PartyPath(sessionID, partyID, "/train"), map[string]any{
		"stat": stat,
		"cost": cost,
	}, &out, idem)
	return out, err
}

func (c *Client) Equip(ctx context.Context, sessionID, partyID, itemID, idem string) (game.Party, error) {
	var out game.Party
	err := c.jsonRequest(ctx, http.MethodPost, PartyPath(sessionID, partyID, "/equip"), map[string]any{"item_id": itemID}, &out, idem)
	return out, err
}

func (c *Client) Loyalty(ctx context.Context, sessionID, partyID string, delta int, idem string) (game.LoyaltyResult, error) {
	var out game.LoyaltyResult
	err := c.jsonRequest(ctx, http.MethodPost, PartyPath(sessionID, partyID, "/loyalty"), map[string]any{"delta": delta}, &out, idem)
	return out, err
}

func (c *Client) Disband(ctx context.Context, sessionID, partyID, idem string) error {
	return c.jsonRequest(ctx, http.MethodDelete, PartyPath(sessionID, partyID, ""), nil, nil, idem)
}

// Do sends a raw request; sync uses it to replay queued commands.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, in, &out, idem)
	return out, err
}

// Send replays one queued command. Transport failures come back as syncq.ErrOffline.
func (c *Client) Send(ctx context.Context, cmd syncq.Command) error {
	_, err := c.Do(ctx, cmd.Method, cmd.Path, cmd.Body, cmd.IdempotencyKey)
	if IsOffline(err) {
		return fmt.Errorf("%w: %v", syncq.ErrOffline, err)
	}
	return err
}

// SessionPath, QuestPath and PartyPath build the API paths the client calls, so
// queued commands replay against the same routes.
func SessionPath(sessionID, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(sessionID) + suffix
}

func QuestPath(sessionID, questID, suffix string) string {
	return SessionPath(sessionID, "/quests/"+url.PathEscape(questID)+suffix)
}

func PartyPath(sessionID, partyID, suffix string) string {
	return SessionPath(sessionID, "/parties/"+url.PathEscape(partyID)+suffix)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(raw))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
