package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"guildhall/internal/config"
	"guildhall/internal/game"
	"guildhall/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type Server struct {
	cfg     config.APIConfig
	log     *slog.Logger
	game    *game.Service
	metrics *notify.Metrics
	mux     *chi.Mux
}

// New wires the routes. metrics may be nil, in which case /metrics is not served.
func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service, metrics *notify.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		game:    gameSvc,
		metrics: metrics,
		mux:     chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/catalog", s.handleCatalog)
		r.Post("/sessions", s.handleNewGame)
		r.Get("/sessions", s.handleListSessions)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Post("/advance", s.handleAdvance)
			r.Post("/availability", s.handleAvailability)
			r.Post("/payments", s.handlePayment)

			r.Post("/quests", s.handleAddQuest)
			r.Post("/quests/generate", s.handleGenerateQuest)
			r.Delete("/quests/{quest_id}", s.handleRemoveQuest)
			r.Post("/quests/{quest_id}/assign", s.handleAssign)
			r.Post("/quests/{quest_id}/unassign", s.handleUnassign)
			r.Post("/quests/{quest_id}/start", s.handleStart)
			r.Post("/quests/{quest_id}/complete", s.handleComplete)
			r.Post("/quests/{quest_id}/resolve", s.handleResolve)
			r.Get("/quests/{quest_id}/estimate", s.handleEstimate)
			r.Get("/quests/{quest_id}/best-match", s.handleBestMatch)

			r.Post("/parties", s.handleRecruit)
			r.Delete("/parties/{party_id}", s.handleDisband)
			r.Post("/parties/{party_id}/train", s.handleTrain)
			r.Post("/parties/{party_id}/equip", s.handleEquip)
			r.Post("/parties/{party_id}/loyalty", s.handleLoyalty)
		})
	})
}

// requestLog logs each request and counts it against its route pattern.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.ObserveRequest(route, status)
		}
		s.log.Debug("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	rules := s.game.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment":           rules.Equipment,
		"recruit_cost":        rules.RecruitCost,
		"roster_capacity":     rules.RosterCapacity,
		"quarter_length_days": rules.QuarterLengthDays,
		"debt":                rules.Debt,
	})
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.NewGame(r.Context(), game.NewGameInput{SessionID: in.SessionID})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	out, err := s.game.ListActive(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	in := struct {
		Days int `json:"days"`
	}{Days: 1}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AdvanceDays(r.Context(), game.AdvanceInput{
		SessionID:      chi.URLParam(r, "id"),
		Days:           in.Days,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.UpdateAvailability(r.Context(), chi.URLParam(r, "id"), idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": out})
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.MakePayment(r.Context(), game.PaymentInput{
		SessionID:      chi.URLParam(r, "id"),
		Amount:         in.Amount,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddQuest(w http.ResponseWriter, r *http.Request) {
	var in game.Quest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AddQuest(r.Context(), game.AddQuestInput{
		SessionID:      chi.URLParam(r, "id"),
		Quest:          in,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGenerateQuest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Difficulty int    `json:"difficulty"`
		Type       string `json:"type"`
	}
	if err := decodeOptionalJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var qt game.QuestType
	if strings.TrimSpace(in.Type) != "" {
		parsed, err := game.ParseQuestType(in.Type)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		qt = parsed
	}
	out, err := s.game.GenerateQuest(r.Context(), game.GenerateInput{
		SessionID:      chi.URLParam(r, "id"),
		Difficulty:     in.Difficulty,
		Type:           qt,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleRemoveQuest(w http.ResponseWriter, r *http.Request) {
	if err := s.game.RemoveQuest(r.Context(), questInput(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var in struct {
		PartyID string `json:"party_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.AssignQuest(r.Context(), game.AssignInput{
		SessionID:      chi.URLParam(r, "id"),
		QuestID:        chi.URLParam(r, "quest_id"),
		PartyID:        in.PartyID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUnassign(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.UnassignQuest(r.Context(), questInput(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.StartQuest(r.Context(), questInput(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Success bool `json:"success"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.CompleteQuest(r.Context(), game.CompleteInput{
		SessionID:      chi.URLParam(r, "id"),
		QuestID:        chi.URLParam(r, "quest_id"),
		Success:        in.Success,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.ResolveQuest(r.Context(), questInput(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	partyID := strings.TrimSpace(r.URL.Query().Get("party_id"))
	if partyID == "" {
		writeError(w, http.StatusBadRequest, "party_id is required")
		return
	}
	rate, err := s.game.Estimate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "quest_id"), partyID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"party_id": partyID, "success_rate": rate})
}

func (s *Server) handleBestMatch(w http.ResponseWriter, r *http.Request) {
	party, rate, err := s.game.BestMatch(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "quest_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"party": party, "success_rate": rate})
}

func (s *Server) handleRecruit(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.RecruitParty(r.Context(), game.RecruitInput{
		SessionID:      chi.URLParam(r, "id"),
		Name:           in.Name,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDisband(w http.ResponseWriter, r *http.Request) {
	err := s.game.DisbandParty(r.Context(), game.PartyInput{
		SessionID:      chi.URLParam(r, "id"),
		PartyID:        chi.URLParam(r, "party_id"),
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Stat string `json:"stat"`
		Cost int64  `json:"cost"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stat, err := game.ParseStatType(in.Stat)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.TrainParty(r.Context(), game.TrainInput{
		SessionID:      chi.URLParam(r, "id"),
		PartyID:        chi.URLParam(r, "party_id"),
		Stat:           stat,
		Cost:           in.Cost,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEquip(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ItemID string `json:"item_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.PurchaseEquipment(r.Context(), game.EquipInput{
		SessionID:      chi.URLParam(r, "id"),
		PartyID:        chi.URLParam(r, "party_id"),
		ItemID:         in.ItemID,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLoyalty(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Delta int `json:"delta"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.game.ModifyLoyalty(r.Context(), game.LoyaltyInput{
		SessionID:      chi.URLParam(r, "id"),
		PartyID:        chi.URLParam(r, "party_id"),
		Delta:          in.Delta,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func questInput(r *http.Request) game.QuestInput {
	return game.QuestInput{
		SessionID:      chi.URLParam(r, "id"),
		QuestID:        chi.URLParam(r, "quest_id"),
		IdempotencyKey: idempotencyKey(r),
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound), errors.Is(err, game.ErrQuestNotFound), errors.Is(err, game.ErrPartyNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrDuplicateIdempotency), errors.Is(err, game.ErrTxConflict), errors.Is(err, game.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidTransition), errors.Is(err, game.ErrPartyBusy),
		errors.Is(err, game.ErrPartyUnavailable), errors.Is(err, game.ErrRosterFull),
		errors.Is(err, game.ErrDebtClosed), errors.Is(err, game.ErrStatAtMax):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrGameOver):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrInvalidQuest), errors.Is(err, game.ErrInvalidEquipment),
		errors.Is(err, game.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body and leaves out untouched.
func decodeOptionalJSON(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := decodeJSON(r, out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
