package quiz

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/centsible/backend/internal/category"
	"github.com/centsible/backend/internal/game"
	"github.com/centsible/backend/internal/store"
)

// Question types.
const (
	typeMaxCategory      = "max_category"
	typePercentReduction = "percent_reduction"
	typeWeekComparison   = "week_comparison"
	typeTotalSpend       = "total_spend"
	typeBudgetAllocation = "budget_allocation"
)

type catSpend struct {
	cat category.Category
	amt float64
}

func sortedBySpend(spend map[category.Category]float64) []catSpend {
	out := make([]catSpend, 0, len(spend))
	for cat, amt := range spend {
		out = append(out, catSpend{cat, amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].amt != out[j].amt {
			return out[i].amt > out[j].amt
		}
		return out[i].cat < out[j].cat
	})
	return out
}

// randChoicesAround builds n dollar choices jittered around the true value,
// sorted ascending, and returns the index of the correct one.
func randChoicesAround(rng *rand.Rand, value float64, n int, jitter float64) ([]string, int) {
	correct := round2(value)
	opts := map[float64]bool{correct: true}

	for tries := 0; len(opts) < n && tries < 50; tries++ {
		delta := (rng.Float64()*2 - 1) * jitter
		cand := round2(value * (1 + delta))
		if cand != correct && cand > 0 {
			opts[cand] = true
		}
	}
	for len(opts) < n {
		opts[round2(math.Max(1.0, value+rng.Float64()*20-10))] = true
	}

	vals := make([]float64, 0, len(opts))
	for v := range opts {
		vals = append(vals, v)
	}
	sort.Float64s(vals)

	choices := make([]string, len(vals))
	correctIndex := 0
	for i, v := range vals {
		choices[i] = game.Dollars(v)
		if v == correct {
			correctIndex = i
		}
	}
	return choices, correctIndex
}

func qTopCategory(rng *rand.Rand, spend map[category.Category]float64) store.QuizQuestion {
	if len(spend) == 0 {
		spend = map[category.Category]float64{
			category.Dining:         50.0,
			category.Groceries:      80.0,
			category.Transportation: 30.0,
		}
	}
	top := sortedBySpend(spend)
	if len(top) > 4 {
		top = top[:4]
	}
	labels := make([]string, len(top))
	for i, cs := range top {
		labels[i] = cs.cat.Label()
	}
	correct := labels[0]

	rng.Shuffle(len(labels), func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })
	correctIndex := 0
	for i, l := range labels {
		if l == correct {
			correctIndex = i
		}
	}

	return store.QuizQuestion{
		Type:         typeMaxCategory,
		Prompt:       "Which category did you spend the most on this week?",
		Choices:      labels,
		CorrectIndex: correctIndex,
		Meta:         store.QuizMeta{Category: string(top[0].cat)},
	}
}

func qPercentReduction(rng *rand.Rand, cat category.Category, amount, pct float64) store.QuizQuestion {
	newAmount := round2(amount * (1 - pct))
	prompt := fmt.Sprintf("You spent %s on %s this week. If you cut %d%%, what would you spend?",
		game.Dollars(amount), cat.Label(), int(pct*100))
	choices, correctIndex := randChoicesAround(rng, newAmount, 4, 0.12)

	return store.QuizQuestion{
		Type:         typePercentReduction,
		Prompt:       prompt,
		Choices:      choices,
		CorrectIndex: correctIndex,
		Meta:         store.QuizMeta{Category: string(cat), Amount: amount, Pct: pct},
	}
}

func qWeekComparison(rng *rand.Rand, thisWeek, lastWeek map[category.Category]float64, cat category.Category) store.QuizQuestion {
	thisAmt := thisWeek[cat]
	lastAmt := lastWeek[cat]
	if lastAmt == 0 {
		// Nothing to compare against.
		return qPercentReduction(rng, cat, thisAmt, 0.15)
	}

	pctChange := (thisAmt - lastAmt) / lastAmt * 100
	correctPct := math.Round(pctChange)

	opts := map[float64]bool{correctPct: true}
	for i := 0; i < 10; i++ {
		if cand := correctPct + float64(rng.Intn(41)-20); cand != correctPct {
			opts[cand] = true
		}
	}
	vals := make([]float64, 0, len(opts))
	for v := range opts {
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	if len(vals) > 4 {
		vals = vals[:4]
	}
	if !containsFloat(vals, correctPct) {
		vals[0] = correctPct
		sort.Float64s(vals)
	}

	choices := make([]string, len(vals))
	correctIndex := 0
	for i, v := range vals {
		choices[i] = fmt.Sprintf("%+d%%", int(v))
		if v == correctPct {
			correctIndex = i
		}
	}

	prompt := fmt.Sprintf("You spent %s on %s this week vs %s last week. What's the %% change?",
		game.Dollars(thisAmt), cat.Label(), game.Dollars(lastAmt))

	return store.QuizQuestion{
		Type:         typeWeekComparison,
		Prompt:       prompt,
		Choices:      choices,
		CorrectIndex: correctIndex,
		Meta: store.QuizMeta{
			Category:   string(cat),
			ThisAmount: thisAmt,
			LastAmount: lastAmt,
			PctChange:  pctChange,
		},
	}
}

func qTotalSpend(rng *rand.Rand, spend map[category.Category]float64) store.QuizQuestion {
	total := game.TotalSpend(spend)
	choices, correctIndex := randChoicesAround(rng, total, 4, 0.15)

	return store.QuizQuestion{
		Type:         typeTotalSpend,
		Prompt:       "What was your total spending this week across all categories?",
		Choices:      choices,
		CorrectIndex: correctIndex,
		Meta:         store.QuizMeta{Total: total},
	}
}

func qBudgetAllocation(rng *rand.Rand, spend map[category.Category]float64, targetSave float64) store.QuizQuestion {
	total := game.TotalSpend(spend)
	newTotal := math.Max(0, total-targetSave)
	prompt := fmt.Sprintf("You spent %s total this week. To save %s, what should your new total be?",
		game.Dollars(total), game.Dollars(targetSave))
	choices, correctIndex := randChoicesAround(rng, newTotal, 4, 0.10)

	return store.QuizQuestion{
		Type:         typeBudgetAllocation,
		Prompt:       prompt,
		Choices:      choices,
		CorrectIndex: correctIndex,
		Meta:         store.QuizMeta{Total: total, TargetSave: targetSave},
	}
}

// generateQuestions builds exactly five questions shaped by the difficulty
// tier: basic stays on single-week arithmetic, intermediate adds week
// comparisons and saving targets, advanced leans on comparisons.
func (g *Game) generateQuestions(difficulty string, thisWeek, lastWeek map[category.Category]float64) []store.QuizQuestion {
	top := sortedBySpend(thisWeek)
	topCat := category.Dining
	if len(top) > 0 {
		topCat = top[0].cat
	}

	questions := []store.QuizQuestion{qTopCategory(g.rng, thisWeek)}

	switch difficulty {
	case difficultyBasic:
		if thisWeek[topCat] > 0 {
			questions = append(questions, qPercentReduction(g.rng, topCat, thisWeek[topCat], 0.20))
		}
		questions = append(questions, qTotalSpend(g.rng, thisWeek))
		if len(top) >= 2 && thisWeek[top[1].cat] > 0 {
			questions = append(questions, qPercentReduction(g.rng, top[1].cat, thisWeek[top[1].cat], 0.15))
		}

	case difficultyIntermediate:
		questions = append(questions, qWeekComparison(g.rng, thisWeek, lastWeek, topCat))
		if thisWeek[topCat] > 0 {
			questions = append(questions, qPercentReduction(g.rng, topCat, thisWeek[topCat], 0.25))
		}
		questions = append(questions, qBudgetAllocation(g.rng, thisWeek, round2(game.TotalSpend(thisWeek)*0.15)))

	case difficultyAdvanced:
		questions = append(questions, qWeekComparison(g.rng, thisWeek, lastWeek, topCat))
		if len(top) >= 2 {
			questions = append(questions, qWeekComparison(g.rng, thisWeek, lastWeek, top[1].cat))
		}
		questions = append(questions, qBudgetAllocation(g.rng, thisWeek, round2(game.TotalSpend(thisWeek)*0.20)))
	}

	g.rng.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})

	pcts := []float64{0.10, 0.15, 0.20, 0.25}
	for len(questions) < questionsPerRound && len(top) > 0 {
		cat := top[g.rng.Intn(len(top))].cat
		if thisWeek[cat] > 0 {
			questions = append(questions, qPercentReduction(g.rng, cat, thisWeek[cat], pcts[g.rng.Intn(len(pcts))]))
		}
	}
	if len(questions) > questionsPerRound {
		questions = questions[:questionsPerRound]
	}

	for i := range questions {
		questions[i].ID = fmt.Sprintf("q%d", i+1)
	}
	return questions
}

// buildExplanation produces per-question feedback using the stored meta.
func buildExplanation(q store.QuizQuestion, isCorrect bool) string {
	correctVal := q.Choices[q.CorrectIndex]

	switch q.Type {
	case typePercentReduction:
		pct := int(q.Meta.Pct * 100)
		amt := game.Dollars(q.Meta.Amount)
		if isCorrect {
			return fmt.Sprintf("Correct! Cutting %d%% from %s equals %s.", pct, amt, correctVal)
		}
		return fmt.Sprintf("Not quite. Cutting %d%% from %s equals %s.", pct, amt, correctVal)

	case typeMaxCategory:
		if isCorrect {
			return fmt.Sprintf("Correct! %s was your highest spending category this week.", correctVal)
		}
		return fmt.Sprintf("Actually, %s was your highest spending category this week.", correctVal)

	case typeWeekComparison:
		direction := "decreased"
		if q.Meta.PctChange > 0 {
			direction = "increased"
		}
		pct := int(math.Abs(q.Meta.PctChange))
		if isCorrect {
			return fmt.Sprintf("Correct! Your spending %s by %d%% compared to last week.", direction, pct)
		}
		return fmt.Sprintf("Your spending %s by %d%% compared to last week. The answer is %s.", direction, pct, correctVal)

	case typeTotalSpend:
		if isCorrect {
			return fmt.Sprintf("Correct! Your total spending this week was %s.", correctVal)
		}
		return fmt.Sprintf("Your total spending this week was %s.", correctVal)

	case typeBudgetAllocation:
		save := game.Dollars(q.Meta.TargetSave)
		if isCorrect {
			return fmt.Sprintf("Correct! To save %s, your new total should be %s.", save, correctVal)
		}
		return fmt.Sprintf("To save %s, your new total should be %s.", save, correctVal)
	}

	if isCorrect {
		return fmt.Sprintf("Correct! The answer is %s.", correctVal)
	}
	return fmt.Sprintf("The correct answer is %s.", correctVal)
}

func containsFloat(vals []float64, v float64) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
