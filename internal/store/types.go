// Package store defines the typed document contracts shared by the games and
// the progression engine, plus the interfaces a backing document store must
// implement. All durable state lives here; no game keeps state in process
// memory between calls.
package store

import (
	"time"
)

// Game document keys. One GameState document exists per (user, game).
const (
	GameFinancialCategories = "financial_categories"
	GameSpendDetective      = "spend_detective"
	GameSmartSaverQuiz      = "smart_saver_quiz"
)

// HistoryLimit bounds the per-game round history kept inline on GameState.
const HistoryLimit = 10

// GameState is the durable per-user, per-game document: the stats that
// survive rounds plus at most one in-flight round.
type GameState struct {
	Streak           int            `firestore:"streak"`
	Difficulty       string         `firestore:"difficulty,omitempty"` // quiz only
	LastPlayedPeriod string         `firestore:"last_played_period,omitempty"`
	LastSummary      *RoundSummary  `firestore:"last_summary,omitempty"`
	History          []RoundSummary `firestore:"history,omitempty"`
	Round            *Round         `firestore:"round,omitempty"`
	UpdatedAt        time.Time      `firestore:"updated_at"`
}

// RoundSummary is the archived outcome of one completed round.
type RoundSummary struct {
	RoundID          string    `firestore:"round_id"`
	Period           string    `firestore:"period"`
	Correct          int       `firestore:"correct"`
	Total            int       `firestore:"total"`
	Accuracy         float64   `firestore:"accuracy"`
	XPEarned         int       `firestore:"xp_earned"`
	StreakMaintained bool      `firestore:"streak_maintained"`
	Difficulty       string    `firestore:"difficulty,omitempty"`
	CompletedAt      time.Time `firestore:"completed_at"`
}

// Round is the single in-flight round for a (user, game) pair. Exactly one of
// the game-specific variants is non-nil; which one is implied by the game
// document the round lives in, but the tagged shape keeps every round
// statically checked.
type Round struct {
	ID         string           `firestore:"id"`
	Period     string           `firestore:"period"`
	StartedAt  time.Time        `firestore:"started_at"`
	Categories *CategoriesRound `firestore:"categories,omitempty"`
	Detective  *DetectiveRound  `firestore:"detective,omitempty"`
	Quiz       *QuizRound       `firestore:"quiz,omitempty"`
}

// CategoriesRound holds Financial Categories round content. TruthMap is the
// server-side ground truth and is never sent to the client.
type CategoriesRound struct {
	CategoryTiles  []CategoryTile     `firestore:"category_tiles"`
	AmountTiles    []AmountTile       `firestore:"amount_tiles"`
	Amounts        map[string]float64 `firestore:"amounts"`   // category key -> weekly spend
	TruthMap       map[string]string  `firestore:"truth_map"` // category tile id -> amount tile id
	TriesRemaining int                `firestore:"tries_remaining"`
	Matched        []MatchPair        `firestore:"matched,omitempty"`
}

// CategoryTile is one label tile shown to the player.
type CategoryTile struct {
	ID       string `firestore:"id"`
	Label    string `firestore:"label"`
	Category string `firestore:"category"`
}

// AmountTile is one dollar-amount tile shown to the player.
type AmountTile struct {
	ID    string  `firestore:"id"`
	Value float64 `firestore:"value"`
	Label string  `firestore:"label"`
}

// MatchPair records one confirmed category->amount match.
type MatchPair struct {
	CategoryID string `firestore:"category_id"`
	AmountID   string `firestore:"amount_id"`
}

// DetectiveRound holds Spend Detective round content. AnomalyIDs and Reasons
// are ground truth; Transactions is the redacted view shown to the player.
type DetectiveRound struct {
	Transactions   []DetectiveTxn      `firestore:"transactions"`
	AnomalyIDs     []string            `firestore:"anomaly_ids"`
	Reasons        map[string][]string `firestore:"reasons"`
	Simulated      []string            `firestore:"simulated,omitempty"` // ids of fabricated anomalies
	TriesRemaining int                 `firestore:"tries_remaining"`
	Found          []string            `firestore:"found,omitempty"`
	FalsePositives []string            `firestore:"false_positives,omitempty"`
}

// DetectiveTxn is the player-visible shape of a round transaction.
type DetectiveTxn struct {
	ID       string  `firestore:"id"`
	Date     string  `firestore:"date"`
	Merchant string  `firestore:"merchant"`
	Amount   float64 `firestore:"amount"`
	Category string  `firestore:"category"`
}

// QuizRound holds Smart Saver Quiz round content, including the correct
// indexes (server-side only).
type QuizRound struct {
	Difficulty string         `firestore:"difficulty"`
	Questions  []QuizQuestion `firestore:"questions"`
	Answers    []QuizAnswer   `firestore:"answers,omitempty"`
}

// QuizQuestion is one generated question with its ground-truth answer index.
type QuizQuestion struct {
	ID           string   `firestore:"id"`
	Type         string   `firestore:"type"`
	Prompt       string   `firestore:"prompt"`
	Choices      []string `firestore:"choices"`
	CorrectIndex int      `firestore:"correct_index"`
	Meta         QuizMeta `firestore:"meta"`
}

// QuizMeta carries the numbers a question was generated from, used to build
// explanations. Fields are populated per question type.
type QuizMeta struct {
	Category   string  `firestore:"category,omitempty"`
	Amount     float64 `firestore:"amount,omitempty"`
	Pct        float64 `firestore:"pct,omitempty"`
	ThisAmount float64 `firestore:"this_amount,omitempty"`
	LastAmount float64 `firestore:"last_amount,omitempty"`
	PctChange  float64 `firestore:"pct_change,omitempty"`
	Total      float64 `firestore:"total,omitempty"`
	TargetSave float64 `firestore:"target_save,omitempty"`
}

// QuizAnswer records one graded answer.
type QuizAnswer struct {
	QuestionID    string    `firestore:"question_id"`
	SelectedIndex int       `firestore:"selected_index"`
	CorrectIndex  int       `firestore:"correct_index"`
	Correct       bool      `firestore:"correct"`
	XPEarned      int       `firestore:"xp_earned"`
	AnsweredAt    time.Time `firestore:"answered_at"`
}

// Rank is the cached rank tier stored on a profile. The authoritative value
// is always recomputable from TotalXP.
type Rank struct {
	Name      string `firestore:"name"`
	Color     string `firestore:"color"`
	Tier      string `firestore:"tier"`
	Threshold int    `firestore:"threshold"`
}

// Profile is the per-user progression document shared by all games. It is
// mutated only through the progression engine.
type Profile struct {
	TotalXP      int       `firestore:"total_xp"`
	Level        int       `firestore:"level"`
	Rank         Rank      `firestore:"rank"`
	GamesPlayed  int       `firestore:"games_played"`
	LastXPSource string    `firestore:"last_xp_source,omitempty"`
	LastXPAmount int       `firestore:"last_xp_amount,omitempty"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

// RankedProfile pairs a profile with its owner, for leaderboard reads.
type RankedProfile struct {
	UserID string
	Profile
}
