// Seeds a user's transaction feed with realistic synthetic spending so the
// minigames have enough signal to play locally or in a staging project.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/centsible/backend/internal/config"
	"github.com/centsible/backend/internal/domain"
	"github.com/centsible/backend/internal/logger"
	fsstore "github.com/centsible/backend/internal/store/firestore"
)

// merchant is one synthetic spending source with a plausible amount range.
type merchant struct {
	name        string
	pfcPrimary  string
	pfcDetailed string
	minAmt      float64
	maxAmt      float64
}

var merchants = []merchant{
	{"Starbucks", "FOOD_AND_DRINK", "FOOD_AND_DRINK_COFFEE", 4.50, 8.99},
	{"Chipotle Mexican Grill", "FOOD_AND_DRINK", "FOOD_AND_DRINK_RESTAURANT", 10.50, 16.99},
	{"McDonald's", "FOOD_AND_DRINK", "FOOD_AND_DRINK_FAST_FOOD", 6.99, 12.50},
	{"Panera Bread", "FOOD_AND_DRINK", "FOOD_AND_DRINK_RESTAURANT", 9.50, 15.99},
	{"Whole Foods Market", "GENERAL_MERCHANDISE", "GENERAL_MERCHANDISE_GROCERIES", 35.00, 120.00},
	{"Trader Joe's", "GENERAL_MERCHANDISE", "GENERAL_MERCHANDISE_GROCERIES", 25.00, 85.00},
	{"Uber", "TRANSPORTATION", "TRANSPORTATION_TAXIS_AND_RIDE_SHARES", 8.00, 32.00},
	{"Shell", "TRANSPORTATION", "TRANSPORTATION_GAS", 28.00, 65.00},
	{"Netflix", "ENTERTAINMENT", "ENTERTAINMENT_TV_AND_MOVIES", 15.49, 15.49},
	{"AMC Theatres", "ENTERTAINMENT", "ENTERTAINMENT_MOVIES_AND_MUSIC", 12.00, 45.00},
	{"Amazon", "GENERAL_MERCHANDISE", "GENERAL_MERCHANDISE_ONLINE_MARKETPLACES", 12.00, 95.00},
	{"Target", "GENERAL_MERCHANDISE", "GENERAL_MERCHANDISE_DISCOUNT_STORES", 18.00, 110.00},
}

// spikes are occasional outliers that give the detective something to find.
var spikes = []merchant{
	{"Vault Jewelers", "GENERAL_MERCHANDISE", "GENERAL_MERCHANDISE_OTHER", 350.00, 900.00},
	{"Grand Palace Hotel", "TRAVEL", "TRAVEL_LODGING", 280.00, 650.00},
}

func main() {
	_ = godotenv.Load()

	var (
		uid    = flag.String("uid", "", "user id to seed (required)")
		days   = flag.Int("days", 90, "days of history to generate")
		perDay = flag.Int("per-day", 3, "average transactions per day")
		seed   = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	)
	flag.Parse()

	log := logger.New()

	if *uid == "" {
		log.Fatal().Msg("Error: --uid is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.StoreBackend != config.StoreFirestore {
		log.Fatal().Msg("Seeding requires STORE_BACKEND=firestore")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	st, err := fsstore.New(ctx, cfg.ProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Firestore")
	}
	defer st.Close()

	rng := rand.New(rand.NewSource(*seed))
	txns := generate(rng, *days, *perDay)

	log.Info().
		Str("user_id", *uid).
		Int("days", *days).
		Int("transactions", len(txns)).
		Msg("Seeding transactions")

	if err := st.SaveTransactions(ctx, *uid, txns); err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}

	fmt.Printf("Seeded %d transactions for %s.\n", len(txns), *uid)
}

// generate produces ~perDay transactions for each of the last days calendar
// days, with roughly one spending spike per two weeks.
func generate(rng *rand.Rand, days, perDay int) []domain.Transaction {
	today := civil.DateOf(time.Now().UTC())
	var out []domain.Transaction

	for d := days; d >= 1; d-- {
		date := today.AddDays(-d)
		n := 1 + rng.Intn(perDay*2) // 1 .. 2*perDay
		for i := 0; i < n; i++ {
			m := merchants[rng.Intn(len(merchants))]
			out = append(out, synth(rng, m, date))
		}
		if rng.Intn(14) == 0 {
			m := spikes[rng.Intn(len(spikes))]
			out = append(out, synth(rng, m, date))
		}
	}
	return out
}

func synth(rng *rand.Rand, m merchant, date civil.Date) domain.Transaction {
	amount := m.minAmt + rng.Float64()*(m.maxAmt-m.minAmt)
	cents, _ := decimal.NewFromFloat(amount).Round(2).Float64()
	return domain.Transaction{
		ID:               uuid.NewString(),
		Date:             date,
		Amount:           cents,
		MerchantName:     m.name,
		CategoryPrimary:  m.pfcPrimary,
		CategoryDetailed: m.pfcDetailed,
	}
}
