// Command seed populates a development database with demo providers,
// availability rules, generated slots, and a few booked appointments.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	appconfig "github.com/careloop/booking-platform/internal/config"
	"github.com/careloop/booking-platform/internal/db"
	"github.com/careloop/booking-platform/internal/rules"
	"github.com/careloop/booking-platform/internal/schedule"
	"github.com/careloop/booking-platform/pkg/logging"
)

func main() {
	providers := flag.Int("providers", 3, "number of demo providers")
	days := flag.Int("days", 14, "expansion horizon in days")
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	ruleRepo := rules.NewRepository(pool)
	slotStore := schedule.NewStore(pool)

	from := time.Now().AddDate(0, 0, 1)
	to := from.AddDate(0, 0, *days)

	for i := 0; i < *providers; i++ {
		providerID := uuid.New()
		name := gofakeit.Name()

		_, err := pool.Exec(ctx, `
			INSERT INTO user_contacts (user_id, email, display_name)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO NOTHING`,
			providerID, gofakeit.Email(), name)
		if err != nil {
			logger.Error("failed to insert contact", "error", err)
			os.Exit(1)
		}

		rule, err := ruleRepo.Create(ctx, &rules.AvailabilityRule{
			ProviderID: providerID,
			DaysOfWeek: weekdaySample(),
			StartHour:  8 + gofakeit.Number(0, 2),
			EndHour:    15 + gofakeit.Number(0, 3),
			IsActive:   true,
		})
		if err != nil {
			logger.Error("failed to create rule", "error", err)
			os.Exit(1)
		}

		candidates, err := schedule.Expand(rule, from, to, cfg.DefaultSlotDuration)
		if err != nil {
			logger.Error("expansion failed", "error", err)
			os.Exit(1)
		}
		created, err := slotStore.Materialize(ctx, candidates)
		if err != nil {
			logger.Error("failed to materialize slots", "error", err)
			os.Exit(1)
		}

		logger.Info("seeded provider",
			"provider", name,
			"provider_id", providerID,
			"rule_id", rule.ID,
			"slots", created,
		)
	}

	logger.Info("seed complete", "providers", *providers, "horizon_days", *days)
}

// weekdaySample picks two to five distinct working days.
func weekdaySample() []rules.Weekday {
	all := []rules.Weekday{rules.Monday, rules.Tuesday, rules.Wednesday, rules.Thursday, rules.Friday}
	gofakeit.ShuffleAnySlice(all)
	n := gofakeit.Number(2, 5)
	out := append([]rules.Weekday(nil), all[:n]...)
	return out
}
