package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/centsible/backend/internal/analytics"
	"github.com/centsible/backend/internal/api/middleware"
	"github.com/centsible/backend/internal/domain"
	"github.com/centsible/backend/internal/game/categories"
	"github.com/centsible/backend/internal/game/detective"
	"github.com/centsible/backend/internal/game/quiz"
	"github.com/centsible/backend/internal/logger"
	"github.com/centsible/backend/internal/messages"
	"github.com/centsible/backend/internal/progression"
	"github.com/centsible/backend/internal/store/inmemory"
)

func newTestServer(t *testing.T) (*http.ServeMux, *inmemory.Store) {
	t.Helper()
	st := inmemory.New()
	log := logger.Discard()
	prog := progression.NewEngine(st, log)
	msgs := messages.NewStaticPool()

	h := New(
		categories.New(st, st, prog, msgs, log),
		detective.New(st, st, prog, log),
		quiz.New(st, st, prog, msgs, log),
		prog,
		analytics.New(st, log),
		log,
	)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux, st
}

func doRequest(mux *http.ServeMux, method, path, uid, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if uid != "" {
		req.Header.Set(middleware.UserHeader, uid)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAuthRequired(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/api/games/profile", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	body := decode(t, rec)
	if body["ok"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/api/games/quiz/new", "u1", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestRanks_Public(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/api/games/ranks", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	ranks, ok := body["ranks"].([]interface{})
	if !ok || len(ranks) != 6 {
		t.Errorf("ranks = %v", body["ranks"])
	}
}

func TestCategoriesStart_LowSpendEnvelope(t *testing.T) {
	mux, _ := newTestServer(t)

	// No transactions at all: the insufficient-signal branch still succeeds.
	rec := doRequest(mux, http.MethodPost, "/api/games/financial-categories/start", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["ok"] != true {
		t.Fatalf("body = %v", body)
	}
	if body["can_play"] != false {
		t.Errorf("can_play = %v, want false", body["can_play"])
	}
	if body["xp_awarded"] != float64(100) {
		t.Errorf("xp_awarded = %v, want 100", body["xp_awarded"])
	}
	if body["message"] == nil || body["message"] == "" {
		t.Error("missing encouragement message")
	}
}

func TestCategoriesMatch_Validation(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doRequest(mux, http.MethodPost, "/api/games/financial-categories/match", "u1", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want 400", rec.Code)
	}

	rec = doRequest(mux, http.MethodPost, "/api/games/financial-categories/match", "u1",
		`{"category_id":"cat_0","amount_id":"amt_0"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("no round: status = %d, want 409", rec.Code)
	}
}

func TestDetective_WeeklyGateEnvelope(t *testing.T) {
	mux, st := newTestServer(t)

	// A near-empty history triggers the insufficient reward, which sets the
	// weekly gate.
	st.SeedTransactions("u1", []domain.Transaction{
		{ID: "t1", Date: civil.DateOf(time.Now().AddDate(0, 0, -2)), Amount: 20, MerchantName: "Corner Deli"},
	})

	rec := doRequest(mux, http.MethodPost, "/api/games/spend-detective/start", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("first start: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["insufficient_data"] != true || body["xp_awarded"] != float64(120) {
		t.Fatalf("first start body = %v", body)
	}

	rec = doRequest(mux, http.MethodPost, "/api/games/spend-detective/start", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("gated start: status = %d, want 200", rec.Code)
	}
	body = decode(t, rec)
	if body["ok"] != false || body["already_played"] != true {
		t.Errorf("gated start body = %v", body)
	}
	if body["next_available"] == nil {
		t.Error("gated start missing next_available")
	}
}

func TestQuizAnswer_Validation(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doRequest(mux, http.MethodPost, "/api/games/quiz/answer", "u1", `{"question_id":"q1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing index: status = %d, want 400", rec.Code)
	}

	rec = doRequest(mux, http.MethodPost, "/api/games/quiz/answer", "u1",
		`{"question_id":"q1","selected_index":0}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("no round: status = %d, want 409", rec.Code)
	}
}

func TestLeaderboard_LimitValidation(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doRequest(mux, http.MethodGet, "/api/games/leaderboard?limit=0", "u1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0: status = %d, want 400", rec.Code)
	}

	rec = doRequest(mux, http.MethodGet, "/api/games/leaderboard", "u1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("default limit: status = %d, want 200", rec.Code)
	}
}

func TestProfileAndStats(t *testing.T) {
	mux, _ := newTestServer(t)

	// Play the categories insufficient branch to create a profile.
	doRequest(mux, http.MethodPost, "/api/games/financial-categories/start", "u1", "")

	rec := doRequest(mux, http.MethodGet, "/api/games/profile", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["total_xp"] != float64(100) {
		t.Errorf("total_xp = %v, want 100", body["total_xp"])
	}

	rec = doRequest(mux, http.MethodGet, "/api/games/stats", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: status = %d", rec.Code)
	}
	body = decode(t, rec)
	games, ok := body["games"].(map[string]interface{})
	if !ok {
		t.Fatalf("stats body = %v", body)
	}
	for _, key := range []string{"financial_categories", "spend_detective", "smart_saver_quiz"} {
		if _, ok := games[key]; !ok {
			t.Errorf("stats missing game %q", key)
		}
	}
	cat, _ := games["financial_categories"].(map[string]interface{})
	if cat["streak"] != float64(1) {
		t.Errorf("categories streak = %v, want 1", cat["streak"])
	}
}

func TestAnalyticsSummary(t *testing.T) {
	mux, st := newTestServer(t)

	// Dated today, so it always falls inside the current period.
	st.SeedTransactions("u1", []domain.Transaction{
		{ID: "t1", Date: civil.DateOf(time.Now().UTC()), Amount: 42.50, CategoryPrimary: "FOOD_AND_DRINK"},
	})

	rec := doRequest(mux, http.MethodGet, "/api/analytics/summary", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["ok"] != true {
		t.Errorf("ok = %v", body["ok"])
	}
	if body["total"] != 42.50 {
		t.Errorf("total = %v, want 42.5", body["total"])
	}
	if body["transaction_count"] != float64(1) {
		t.Errorf("transaction_count = %v, want 1", body["transaction_count"])
	}
	top, _ := body["top_category"].(map[string]interface{})
	if top["name"] != "dining" {
		t.Errorf("top category = %v", top)
	}
}
