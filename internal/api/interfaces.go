package api

import (
	"context"

	"github.com/neexbeast/skycast/internal/forecast"
)

// LocationValidator confirms a location exists before any forecast call is made.
type LocationValidator interface {
	IsValidLocation(ctx context.Context, city, state, country string) (bool, error)
}

// ForecastIngester fetches a forecast and persists its samples.
type ForecastIngester interface {
	FetchAndStore(ctx context.Context, city, state, country string) (*forecast.Result, error)
}

// ForecastRepo defines the storage reads needed by handlers.
type ForecastRepo interface {
	FindByCity(ctx context.Context, city string) ([]forecast.Record, error)
}

// Summarizer turns stored records into free-text commentary.
type Summarizer interface {
	Summarize(ctx context.Context, records []forecast.Record) (string, error)
}

// SummaryCache defines the cache operations needed by handlers.
type SummaryCache interface {
	Get(ctx context.Context, city, latest string) (string, bool, error)
	Set(ctx context.Context, city, latest, summary string) error
	Delete(ctx context.Context, city, latest string) error
}
