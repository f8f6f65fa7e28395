// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/centsible/backend/internal/period"
)

// Store backends.
const (
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config is the server configuration.
type Config struct {
	Port      string
	ProjectID string

	// StoreBackend selects the document store: "firestore" in production,
	// "memory" for local development.
	StoreBackend string

	// GeminiModel enables generated encouragement copy when non-empty;
	// otherwise the static message pool is used.
	GeminiModel string

	// WeekAnchor and WeekLocation define the weekly play-gate boundary.
	WeekAnchor   time.Weekday
	WeekLocation *time.Location
}

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8080"),
		ProjectID:    os.Getenv("GOOGLE_CLOUD_PROJECT"),
		StoreBackend: getenv("STORE_BACKEND", StoreFirestore),
		GeminiModel:  os.Getenv("GEMINI_MODEL"),
	}

	anchor, err := parseWeekday(getenv("WEEK_ANCHOR", "monday"))
	if err != nil {
		return Config{}, err
	}
	cfg.WeekAnchor = anchor

	loc, err := time.LoadLocation(getenv("WEEK_TIMEZONE", "UTC"))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid WEEK_TIMEZONE: %w", err)
	}
	cfg.WeekLocation = loc

	return cfg, cfg.Validate()
}

// Validate reports configuration errors up front, before any client dials.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("config: GOOGLE_CLOUD_PROJECT is required with the firestore backend")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.Port == "" {
		return fmt.Errorf("config: PORT must not be empty")
	}
	return nil
}

// PeriodPolicy returns the configured weekly boundary.
func (c Config) PeriodPolicy() period.Policy {
	return period.Policy{Anchor: c.WeekAnchor, Location: c.WeekLocation}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseWeekday(s string) (time.Weekday, error) {
	days := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	if d, ok := days[strings.ToLower(s)]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("config: invalid WEEK_ANCHOR %q", s)
}
