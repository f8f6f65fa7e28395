// Package handlers exposes the minigame and progression operations over
// HTTP. Responses carry a flat JSON shape with an "ok" flag; expected game
// states (weekly gate hit, invalid submissions) are reported as named
// results, not opaque failures.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/centsible/backend/internal/analytics"
	"github.com/centsible/backend/internal/api/middleware"
	"github.com/centsible/backend/internal/game"
	"github.com/centsible/backend/internal/game/categories"
	"github.com/centsible/backend/internal/game/detective"
	"github.com/centsible/backend/internal/game/quiz"
	"github.com/centsible/backend/internal/period"
	"github.com/centsible/backend/internal/progression"
)

// GamesHandler routes the three minigames plus the shared progression
// endpoints.
type GamesHandler struct {
	categories *categories.Game
	detective  *detective.Game
	quiz       *quiz.Game
	prog       *progression.Engine
	rollups    *analytics.Service
	periods    period.Policy
	now        func() time.Time
	log        zerolog.Logger
}

// New creates the handler set.
func New(cat *categories.Game, det *detective.Game, qz *quiz.Game, prog *progression.Engine, rollups *analytics.Service, log zerolog.Logger) *GamesHandler {
	return &GamesHandler{
		categories: cat,
		detective:  det,
		quiz:       qz,
		prog:       prog,
		rollups:    rollups,
		periods:    period.Default(),
		now:        time.Now,
		log:        log,
	}
}

// UsePeriod overrides the weekly gate boundary used for next_available
// hints. It must match the policy the games were configured with.
func (h *GamesHandler) UsePeriod(p period.Policy) { h.periods = p }

// Register mounts all routes on the mux. Authenticated routes require the
// verified user-id header; /ranks and /health stay public.
func (h *GamesHandler) Register(mux *http.ServeMux) {
	authed := func(method string, fn http.HandlerFunc) http.Handler {
		return middleware.Auth(requireMethod(method, fn))
	}

	mux.Handle("/api/games/financial-categories/start", authed(http.MethodPost, h.CategoriesStart))
	mux.Handle("/api/games/financial-categories/match", authed(http.MethodPost, h.CategoriesMatch))
	mux.Handle("/api/games/financial-categories/state", authed(http.MethodGet, h.CategoriesState))

	mux.Handle("/api/games/spend-detective/start", authed(http.MethodPost, h.DetectiveStart))
	mux.Handle("/api/games/spend-detective/submit", authed(http.MethodPost, h.DetectiveSubmit))
	mux.Handle("/api/games/spend-detective/state", authed(http.MethodGet, h.DetectiveState))

	mux.Handle("/api/games/quiz/new", authed(http.MethodPost, h.QuizNew))
	mux.Handle("/api/games/quiz/answer", authed(http.MethodPost, h.QuizAnswer))
	mux.Handle("/api/games/quiz/complete", authed(http.MethodPost, h.QuizComplete))
	mux.Handle("/api/games/quiz/submit", authed(http.MethodPost, h.QuizSubmit))
	mux.Handle("/api/games/quiz/state", authed(http.MethodGet, h.QuizState))

	mux.Handle("/api/analytics/summary", authed(http.MethodGet, h.AnalyticsSummary))

	mux.Handle("/api/games/profile", authed(http.MethodGet, h.Profile))
	mux.Handle("/api/games/stats", authed(http.MethodGet, h.Stats))
	mux.Handle("/api/games/leaderboard", authed(http.MethodGet, h.Leaderboard))

	mux.HandleFunc("/api/games/ranks", requireMethod(http.MethodGet, h.Ranks))
}

func requireMethod(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		fn(w, r)
	}
}

// writeOK flattens a result struct into the response envelope with ok=true.
func writeOK(w http.ResponseWriter, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	body := map[string]interface{}{}
	if err := json.Unmarshal(raw, &body); err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	body["ok"] = true
	middleware.WriteJSON(w, http.StatusOK, body)
}

// writeGameError maps the game error taxonomy onto HTTP. The weekly gate is
// a 200 with ok=false: for the client it is a normal outcome, not a failure.
func (h *GamesHandler) writeGameError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, game.ErrAlreadyPlayed):
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"ok":             false,
			"already_played": true,
			"error":          "Already played this week. Come back next Monday!",
			"next_available": h.periods.Key(h.periods.Next(h.now())),
		})
	case errors.Is(err, game.ErrInvalidArgument):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrNoActiveRound),
		errors.Is(err, game.ErrRoundComplete),
		errors.Is(err, game.ErrRoundIncomplete),
		errors.Is(err, game.ErrAlreadyAnswered),
		errors.Is(err, game.ErrAlreadyMatched):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("game operation failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// CategoriesStart handles POST /api/games/financial-categories/start.
func (h *GamesHandler) CategoriesStart(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.categories.Start(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// CategoriesMatch handles POST /api/games/financial-categories/match.
func (h *GamesHandler) CategoriesMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryID string `json:"category_id"`
		AmountID   string `json:"amount_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CategoryID == "" || req.AmountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "category_id and amount_id required")
		return
	}

	uid := middleware.UserID(r.Context())
	res, err := h.categories.Match(r.Context(), uid, req.CategoryID, req.AmountID)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// CategoriesState handles GET /api/games/financial-categories/state.
func (h *GamesHandler) CategoriesState(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.categories.State(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// DetectiveStart handles POST /api/games/spend-detective/start.
func (h *GamesHandler) DetectiveStart(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.detective.Start(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// DetectiveSubmit handles POST /api/games/spend-detective/submit.
func (h *GamesHandler) DetectiveSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SelectedIDs []string `json:"selected_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	uid := middleware.UserID(r.Context())
	res, err := h.detective.Submit(r.Context(), uid, req.SelectedIDs)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// DetectiveState handles GET /api/games/spend-detective/state.
func (h *GamesHandler) DetectiveState(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.detective.State(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// QuizNew handles POST /api/games/quiz/new.
func (h *GamesHandler) QuizNew(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.quiz.NewSet(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// QuizAnswer handles POST /api/games/quiz/answer.
func (h *GamesHandler) QuizAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID    string `json:"question_id"`
		SelectedIndex *int   `json:"selected_index"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.QuestionID == "" || req.SelectedIndex == nil {
		middleware.WriteError(w, http.StatusBadRequest, "question_id and selected_index required")
		return
	}

	uid := middleware.UserID(r.Context())
	res, err := h.quiz.Answer(r.Context(), uid, req.QuestionID, *req.SelectedIndex)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// QuizComplete handles POST /api/games/quiz/complete.
func (h *GamesHandler) QuizComplete(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.quiz.Complete(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// QuizSubmit handles POST /api/games/quiz/submit, the deprecated batch path.
func (h *GamesHandler) QuizSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers []int `json:"answers"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	uid := middleware.UserID(r.Context())
	res, err := h.quiz.SubmitBatch(r.Context(), uid, req.Answers)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// QuizState handles GET /api/games/quiz/state.
func (h *GamesHandler) QuizState(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.quiz.State(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// AnalyticsSummary handles GET /api/analytics/summary: the current period's
// spending rollup.
func (h *GamesHandler) AnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.rollups.Summary(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// Profile handles GET /api/games/profile: the unified progression view.
func (h *GamesHandler) Profile(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	res, err := h.prog.Profile(r.Context(), uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	writeOK(w, res)
}

// Ranks handles GET /api/games/ranks. Public: the ladder is not per-user.
func (h *GamesHandler) Ranks(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"ranks": progression.RankList(),
	})
}

// Leaderboard handles GET /api/games/leaderboard?limit=N.
func (h *GamesHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 100 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	entries, err := h.prog.Leaderboard(r.Context(), limit)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"leaderboard": entries,
	})
}

// Stats handles GET /api/games/stats: progression plus a per-game overview
// for the games landing page.
func (h *GamesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := middleware.UserID(ctx)

	profile, err := h.prog.Profile(ctx, uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	catState, err := h.categories.State(ctx, uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	detState, err := h.detective.State(ctx, uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}
	quizState, err := h.quiz.State(ctx, uid)
	if err != nil {
		h.writeGameError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"progression": profile,
		"games": map[string]interface{}{
			"financial_categories": map[string]interface{}{
				"streak":           catState.Streak,
				"has_active_round": catState.HasActiveRound,
			},
			"spend_detective": map[string]interface{}{
				"streak":           detState.Streak,
				"can_play":         detState.CanPlayThisPeriod,
				"has_active_round": detState.HasActiveRound,
			},
			"smart_saver_quiz": map[string]interface{}{
				"streak":           quizState.Streak,
				"difficulty":       quizState.Difficulty,
				"can_play":         quizState.CanPlayThisPeriod,
				"has_active_round": quizState.HasActiveRound,
			},
		},
	})
}
