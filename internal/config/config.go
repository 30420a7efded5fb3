package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/neexbeast/skycast/internal/forecast"
)

// Config holds everything the server reads from the environment.
type Config struct {
	DatabaseURL       string
	RedisURL          string
	OpenWeatherAPIKey string

	// OpenAIAPIKey is optional; without it no commentary is generated.
	OpenAIAPIKey string
	OpenAIModel  string

	// APIToken enables the JSON read API when set.
	APIToken string

	GeocodeUserAgent string
	Port             string

	// RefreshLocations are re-fetched every RefreshInterval in the background.
	RefreshLocations []forecast.Location
	RefreshInterval  time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		APIToken:          os.Getenv("API_TOKEN"),
		GeocodeUserAgent:  getEnv("GEOCODE_USER_AGENT", "skycast/1.0"),
		Port:              getEnv("PORT", "8080"),
	}

	var missing []string
	for _, req := range []struct{ key, val string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"OPENWEATHER_API_KEY", cfg.OpenWeatherAPIKey},
	} {
		if req.val == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	interval, err := time.ParseDuration(getEnv("REFRESH_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %w", err)
	}
	if interval < time.Minute {
		return nil, fmt.Errorf("invalid REFRESH_INTERVAL: %s is shorter than one minute", interval)
	}
	cfg.RefreshInterval = interval

	locs, err := ParseLocations(os.Getenv("REFRESH_LOCATIONS"))
	if err != nil {
		return nil, fmt.Errorf("invalid REFRESH_LOCATIONS: %w", err)
	}
	cfg.RefreshLocations = locs

	return cfg, nil
}

// ParseLocations parses "city|state|country" entries separated by ';'.
// State may be empty; city and country may not.
func ParseLocations(s string) ([]forecast.Location, error) {
	var locs []forecast.Location
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("entry %q: want city|state|country", entry)
		}
		loc := forecast.Location{
			City:    strings.TrimSpace(parts[0]),
			State:   strings.TrimSpace(parts[1]),
			Country: strings.TrimSpace(parts[2]),
		}
		if loc.City == "" || loc.Country == "" {
			return nil, fmt.Errorf("entry %q: city and country are required", entry)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
