// Package quiz implements the Smart Saver Quiz minigame: five generated
// multiple-choice questions about the player's own spending, with an
// adaptive difficulty ladder.
package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/centsible/backend/internal/domain"
	"github.com/centsible/backend/internal/game"
	"github.com/centsible/backend/internal/messages"
	"github.com/centsible/backend/internal/period"
	"github.com/centsible/backend/internal/progression"
	"github.com/centsible/backend/internal/store"
)

const (
	questionsPerRound = 5
	minTxnsRequired   = 5

	xpPerCorrect = 20
	fullRoundXP  = 100

	// streakAccuracy keeps a streak alive; the advance/demote thresholds move
	// the difficulty ladder over the last historyWindow rounds.
	streakAccuracy   = 0.60
	advanceThreshold = 0.80
	demoteThreshold  = 0.40
	historyWindow    = 5

	source    = "quiz"
	sourceLow = "quiz_low_data"

	instructions = "Answer questions about your spending this week. +20 XP per correct answer!"
)

// Difficulty tiers, in ladder order.
const (
	difficultyBasic        = "basic"
	difficultyIntermediate = "intermediate"
	difficultyAdvanced     = "advanced"
)

var difficultyLadder = []string{difficultyBasic, difficultyIntermediate, difficultyAdvanced}

// Game is the Smart Saver Quiz engine.
type Game struct {
	store   store.Store
	txns    store.TransactionReader
	prog    *progression.Engine
	msgs    messages.Generator
	periods period.Policy
	now     func() time.Time
	rng     *rand.Rand
	log     zerolog.Logger
}

// New creates the game on top of the shared store and progression engine.
func New(st store.Store, txns store.TransactionReader, prog *progression.Engine, msgs messages.Generator, log zerolog.Logger) *Game {
	return &Game{
		store:   st,
		txns:    txns,
		prog:    prog,
		msgs:    msgs,
		periods: period.Default(),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
	}
}

// UsePeriod overrides the weekly gate boundary.
func (g *Game) UsePeriod(p period.Policy) { g.periods = p }

// PublicQuestion is the client-facing question shape; the correct index and
// generation meta stay server-side.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Prompt  string   `json:"question"`
	Choices []string `json:"choices"`
}

// NewSetResult is the outcome of NewSet: a question set or the low-data
// reward.
type NewSetResult struct {
	CanPlay        bool             `json:"can_play"`
	RoundID        string           `json:"round_id,omitempty"`
	Difficulty     string           `json:"difficulty,omitempty"`
	Questions      []PublicQuestion `json:"questions,omitempty"`
	TotalQuestions int              `json:"total_questions,omitempty"`
	Instructions   string           `json:"instructions,omitempty"`

	InsufficientData   bool                   `json:"insufficient_data,omitempty"`
	Message            string                 `json:"message,omitempty"`
	XPAwarded          int                    `json:"xp_awarded,omitempty"`
	Progression        *game.ProgressionDelta `json:"progression,omitempty"`
	Streak             int                    `json:"streak,omitempty"`
	TransactionsFound  int                    `json:"transactions_found,omitempty"`
	TransactionsNeeded int                    `json:"transactions_needed,omitempty"`
}

// NewSet generates the weekly question set from the last two weeks of
// spending. Fewer than five transactions this week is rewarded as a
// disciplined week instead of blocking the user.
func (g *Game) NewSet(ctx context.Context, uid string) (*NewSetResult, error) {
	now := g.now()
	week := g.periods.Key(now)

	st, err := g.store.GameState(ctx, uid, store.GameSmartSaverQuiz)
	if err != nil {
		return nil, fmt.Errorf("quiz new set: read state: %w", err)
	}
	if st.LastPlayedPeriod == week {
		return nil, game.ErrAlreadyPlayed
	}

	difficulty := st.Difficulty
	if !validDifficulty(difficulty) {
		difficulty = difficultyBasic
	}

	thisWeekTxns, lastWeekTxns, err := g.fetchWindows(ctx, uid, now)
	if err != nil {
		return nil, fmt.Errorf("quiz new set: fetch transactions: %w", err)
	}

	if len(thisWeekTxns) < minTxnsRequired {
		return g.rewardLowData(ctx, uid, week, len(thisWeekTxns))
	}

	thisWeek := game.SpendByCategory(thisWeekTxns)
	lastWeek := game.SpendByCategory(lastWeekTxns)
	questions := g.generateQuestions(difficulty, thisWeek, lastWeek)

	round := &store.Round{
		ID:        uuid.NewString(),
		Period:    week,
		StartedAt: now,
		Quiz: &store.QuizRound{
			Difficulty: difficulty,
			Questions:  questions,
		},
	}

	err = g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSmartSaverQuiz)
		if err != nil {
			return err
		}
		if st.LastPlayedPeriod == week {
			return game.ErrAlreadyPlayed
		}
		st.Round = round
		st.UpdatedAt = now
		return tx.SetGameState(uid, store.GameSmartSaverQuiz, st)
	})
	if err != nil {
		return nil, err
	}

	public := make([]PublicQuestion, len(questions))
	for i, q := range questions {
		public[i] = PublicQuestion{ID: q.ID, Type: q.Type, Prompt: q.Prompt, Choices: q.Choices}
	}

	g.log.Info().Str("user_id", uid).Str("round_id", round.ID).
		Str("difficulty", difficulty).Msg("smart saver quiz set generated")

	return &NewSetResult{
		CanPlay:        true,
		RoundID:        round.ID,
		Difficulty:     difficulty,
		Questions:      public,
		TotalQuestions: len(public),
		Instructions:   instructions,
	}, nil
}

func (g *Game) fetchWindows(ctx context.Context, uid string, now time.Time) (thisWeek, lastWeek []domain.Transaction, err error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		thisWeek, err = g.txns.Fetch(ctx, uid,
			civil.DateOf(now.AddDate(0, 0, -7)), civil.DateOf(now.AddDate(0, 0, 1)))
		return err
	})
	eg.Go(func() error {
		var err error
		lastWeek, err = g.txns.Fetch(ctx, uid,
			civil.DateOf(now.AddDate(0, 0, -14)), civil.DateOf(now.AddDate(0, 0, -7)))
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return thisWeek, lastWeek, nil
}

func (g *Game) rewardLowData(ctx context.Context, uid, week string, found int) (*NewSetResult, error) {
	now := g.now()
	msg := g.msgs.LowSpend(ctx)

	var res NewSetResult
	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSmartSaverQuiz)
		if err != nil {
			return err
		}
		if st.LastPlayedPeriod == week {
			return game.ErrAlreadyPlayed
		}
		award, err := g.prog.AwardIn(tx, uid, fullRoundXP, sourceLow)
		if err != nil {
			return err
		}
		st.Streak++
		st.LastPlayedPeriod = week
		st.UpdatedAt = now
		if err := tx.SetGameState(uid, store.GameSmartSaverQuiz, st); err != nil {
			return err
		}

		res = NewSetResult{
			InsufficientData:   true,
			Message:            msg,
			XPAwarded:          fullRoundXP,
			Progression:        game.DeltaFrom(award),
			Streak:             st.Streak,
			TransactionsFound:  found,
			TransactionsNeeded: minTxnsRequired,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info().Str("user_id", uid).Int("xp", fullRoundXP).
		Msg("smart saver quiz: low data, full reward")
	return &res, nil
}

// AnswerResult is the immediate feedback for one answered question.
type AnswerResult struct {
	Correct           bool   `json:"is_correct"`
	CorrectIndex      int    `json:"correct_index"`
	SelectedIndex     int    `json:"selected_index"`
	Explanation       string `json:"explanation"`
	XPEarned          int    `json:"xp_earned"`
	QuestionsAnswered int    `json:"questions_answered"`
	TotalQuestions    int    `json:"total_questions"`
	QuizComplete      bool   `json:"quiz_complete"`
}

// Answer grades a single question and records the answer. XP is tallied per
// answer but only awarded when the round completes.
func (g *Game) Answer(ctx context.Context, uid, questionID string, selectedIndex int) (*AnswerResult, error) {
	if questionID == "" || selectedIndex < 0 {
		return nil, fmt.Errorf("%w: question_id and a non-negative selected_index are required", game.ErrInvalidArgument)
	}

	now := g.now()
	var res AnswerResult

	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSmartSaverQuiz)
		if err != nil {
			return err
		}
		if st.Round == nil || st.Round.Quiz == nil {
			return game.ErrNoActiveRound
		}
		qr := st.Round.Quiz

		var question *store.QuizQuestion
		for i := range qr.Questions {
			if qr.Questions[i].ID == questionID {
				question = &qr.Questions[i]
				break
			}
		}
		if question == nil {
			return fmt.Errorf("%w: unknown question %q", game.ErrInvalidArgument, questionID)
		}
		if selectedIndex >= len(question.Choices) {
			return fmt.Errorf("%w: selected_index %d out of range", game.ErrInvalidArgument, selectedIndex)
		}
		for _, a := range qr.Answers {
			if a.QuestionID == questionID {
				return fmt.Errorf("%w: %s", game.ErrAlreadyAnswered, questionID)
			}
		}

		correct := selectedIndex == question.CorrectIndex
		xp := 0
		if correct {
			xp = xpPerCorrect
		}
		qr.Answers = append(qr.Answers, store.QuizAnswer{
			QuestionID:    questionID,
			SelectedIndex: selectedIndex,
			CorrectIndex:  question.CorrectIndex,
			Correct:       correct,
			XPEarned:      xp,
			AnsweredAt:    now,
		})
		st.UpdatedAt = now

		res = AnswerResult{
			Correct:           correct,
			CorrectIndex:      question.CorrectIndex,
			SelectedIndex:     selectedIndex,
			Explanation:       buildExplanation(*question, correct),
			XPEarned:          xp,
			QuestionsAnswered: len(qr.Answers),
			TotalQuestions:    len(qr.Questions),
			QuizComplete:      len(qr.Answers) >= len(qr.Questions),
		}
		return tx.SetGameState(uid, store.GameSmartSaverQuiz, st)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CompleteResult is the outcome of finalizing a fully answered round.
type CompleteResult struct {
	Score             int                    `json:"score"`
	Total             int                    `json:"total"`
	Accuracy          float64                `json:"accuracy"`
	XPEarned          int                    `json:"xp_earned"`
	Progression       *game.ProgressionDelta `json:"progression,omitempty"`
	Streak            int                    `json:"streak"`
	StreakMaintained  bool                   `json:"streak_maintained"`
	DifficultyBefore  string                 `json:"difficulty_before"`
	DifficultyAfter   string                 `json:"difficulty_after"`
	DifficultyChanged bool                   `json:"difficulty_changed"`
}

// Complete finalizes a round after every question has been answered: the XP
// award, streak update, history append, difficulty adjustment, and weekly
// gate all commit in one store transaction.
func (g *Game) Complete(ctx context.Context, uid string) (*CompleteResult, error) {
	now := g.now()
	var res CompleteResult

	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSmartSaverQuiz)
		if err != nil {
			return err
		}
		if st.Round == nil || st.Round.Quiz == nil {
			return game.ErrNoActiveRound
		}
		qr := st.Round.Quiz
		if len(qr.Answers) < len(qr.Questions) {
			return fmt.Errorf("%w: %d/%d answered", game.ErrRoundIncomplete, len(qr.Answers), len(qr.Questions))
		}

		correct, xp := 0, 0
		for _, a := range qr.Answers {
			if a.Correct {
				correct++
			}
			xp += a.XPEarned
		}
		return g.finalize(tx, uid, &st, now, correct, xp, &res)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (g *Game) finalize(tx store.Tx, uid string, st *store.GameState, now time.Time, correct, xp int, res *CompleteResult) error {
	qr := st.Round.Quiz
	total := len(qr.Questions)
	accuracy := game.Accuracy(correct, total)
	maintained := accuracy >= streakAccuracy
	before := qr.Difficulty

	if xp > 0 {
		award, err := g.prog.AwardIn(tx, uid, xp, source)
		if err != nil {
			return err
		}
		res.Progression = game.DeltaFrom(award)
	}

	if maintained {
		st.Streak++
	} else {
		st.Streak = 0
	}

	summary := store.RoundSummary{
		RoundID:          st.Round.ID,
		Period:           st.Round.Period,
		Correct:          correct,
		Total:            total,
		Accuracy:         accuracy,
		XPEarned:         xp,
		StreakMaintained: maintained,
		Difficulty:       before,
		CompletedAt:      now,
	}
	st.History = game.AppendHistory(st.History, summary)

	after := adjustDifficulty(before, st.History)

	st.Difficulty = after
	st.LastPlayedPeriod = st.Round.Period
	st.LastSummary = &summary
	st.Round = nil
	st.UpdatedAt = now

	*res = CompleteResult{
		Score:             correct,
		Total:             total,
		Accuracy:          accuracy,
		XPEarned:          xp,
		Progression:       res.Progression,
		Streak:            st.Streak,
		StreakMaintained:  maintained,
		DifficultyBefore:  before,
		DifficultyAfter:   after,
		DifficultyChanged: after != before,
	}

	g.log.Info().Str("user_id", uid).Str("round_id", summary.RoundID).
		Int("correct", correct).Int("xp", xp).
		Str("difficulty", after).Msg("smart saver quiz complete")

	return tx.SetGameState(uid, store.GameSmartSaverQuiz, *st)
}

// adjustDifficulty moves one rung on the ladder based on average accuracy
// over the last historyWindow rounds. Fewer than historyWindow rounds keeps
// the current tier.
func adjustDifficulty(current string, history []store.RoundSummary) string {
	if len(history) < historyWindow {
		return current
	}
	recent := history[len(history)-historyWindow:]
	var sum float64
	for _, h := range recent {
		sum += h.Accuracy
	}
	avg := sum / float64(len(recent))

	idx := 0
	for i, d := range difficultyLadder {
		if d == current {
			idx = i
		}
	}
	switch {
	case avg >= advanceThreshold && idx < len(difficultyLadder)-1:
		return difficultyLadder[idx+1]
	case avg < demoteThreshold && idx > 0:
		return difficultyLadder[idx-1]
	default:
		return current
	}
}

// BatchAnswerResult is one graded answer in a batch submission.
type BatchAnswerResult struct {
	ID           string `json:"id"`
	Correct      bool   `json:"correct"`
	YourAnswer   int    `json:"your_answer"`
	CorrectIndex int    `json:"correct_index"`
}

// BatchResult is the outcome of the batch submission path.
type BatchResult struct {
	CompleteResult
	Results      []BatchAnswerResult `json:"results"`
	Explanations []string            `json:"explanations"`
}

// SubmitBatch grades all answers at once and finalizes the round.
//
// Deprecated: kept for older clients; use Answer plus Complete for immediate
// per-question feedback.
func (g *Game) SubmitBatch(ctx context.Context, uid string, answers []int) (*BatchResult, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: answers must not be empty", game.ErrInvalidArgument)
	}

	now := g.now()
	var res BatchResult

	err := g.store.RunUpdate(ctx, func(tx store.Tx) error {
		st, err := tx.GameState(uid, store.GameSmartSaverQuiz)
		if err != nil {
			return err
		}
		if st.Round == nil || st.Round.Quiz == nil {
			return game.ErrNoActiveRound
		}
		qr := st.Round.Quiz

		total := len(qr.Questions)
		if len(answers) < total {
			total = len(answers)
		}

		correct, xp := 0, 0
		qr.Answers = qr.Answers[:0]
		res.Results = res.Results[:0]
		res.Explanations = res.Explanations[:0]
		for i := 0; i < total; i++ {
			q := qr.Questions[i]
			isCorrect := answers[i] == q.CorrectIndex
			earned := 0
			if isCorrect {
				correct++
				earned = xpPerCorrect
				xp += earned
			}
			qr.Answers = append(qr.Answers, store.QuizAnswer{
				QuestionID:    q.ID,
				SelectedIndex: answers[i],
				CorrectIndex:  q.CorrectIndex,
				Correct:       isCorrect,
				XPEarned:      earned,
				AnsweredAt:    now,
			})
			res.Results = append(res.Results, BatchAnswerResult{
				ID:           q.ID,
				Correct:      isCorrect,
				YourAnswer:   answers[i],
				CorrectIndex: q.CorrectIndex,
			})
			res.Explanations = append(res.Explanations, buildExplanation(q, isCorrect))
		}
		return g.finalize(tx, uid, &st, now, correct, xp, &res.CompleteResult)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// QuizProgress reports how far through an active round the player is.
type QuizProgress struct {
	TotalQuestions int `json:"total_questions"`
	Answered       int `json:"answered"`
}

// StateView is the read-only game state for UI resume.
type StateView struct {
	Streak            int           `json:"streak"`
	Difficulty        string        `json:"difficulty"`
	HasActiveRound    bool          `json:"has_active_round"`
	Progress          *QuizProgress `json:"quiz_progress,omitempty"`
	CanPlayThisPeriod bool          `json:"can_play_this_period"`
	LastPlayedPeriod  string        `json:"last_played_period,omitempty"`

	RoundID   string           `json:"round_id,omitempty"`
	Questions []PublicQuestion `json:"questions,omitempty"`

	LastSummary *store.RoundSummary `json:"last_summary,omitempty"`
}

// State returns the current state without mutating anything. Correct indexes
// never leave the server while a round is live.
func (g *Game) State(ctx context.Context, uid string) (*StateView, error) {
	st, err := g.store.GameState(ctx, uid, store.GameSmartSaverQuiz)
	if err != nil {
		return nil, fmt.Errorf("quiz state: %w", err)
	}

	difficulty := st.Difficulty
	if !validDifficulty(difficulty) {
		difficulty = difficultyBasic
	}

	view := &StateView{
		Streak:            st.Streak,
		Difficulty:        difficulty,
		CanPlayThisPeriod: st.LastPlayedPeriod != g.periods.Key(g.now()),
		LastPlayedPeriod:  st.LastPlayedPeriod,
		LastSummary:       st.LastSummary,
	}
	if st.Round != nil && st.Round.Quiz != nil {
		qr := st.Round.Quiz
		view.HasActiveRound = true
		view.RoundID = st.Round.ID
		view.Progress = &QuizProgress{
			TotalQuestions: len(qr.Questions),
			Answered:       len(qr.Answers),
		}
		for _, q := range qr.Questions {
			view.Questions = append(view.Questions, PublicQuestion{
				ID: q.ID, Type: q.Type, Prompt: q.Prompt, Choices: q.Choices,
			})
		}
	}
	return view, nil
}

func validDifficulty(d string) bool {
	for _, v := range difficultyLadder {
		if v == d {
			return true
		}
	}
	return false
}
