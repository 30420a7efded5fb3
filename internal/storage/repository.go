package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/skycast/internal/forecast"
)

// TxBeginner abstracts the subset of pgxpool.Pool used by Repository.
// Every repository call runs inside its own transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Repository provides database access for forecast records.
type Repository struct {
	db TxBeginner
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// NewRepositoryWithDB constructs a Repository with a custom TxBeginner (for tests).
func NewRepositoryWithDB(db TxBeginner) *Repository {
	return &Repository{db: db}
}

// Save inserts rec unless a record with the same city and date exists.
// It reports whether a row was inserted and, if so, fills rec.ID and
// rec.CreatedAt. Duplicates are detected by the unique constraint, so
// concurrent saves of the same sample cannot both insert.
func (r *Repository) Save(ctx context.Context, rec *forecast.Record) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("beginning transaction for city %s: %w", rec.City, err)
	}

	const q = `
		INSERT INTO forecasts (
			temperature, high_temp, low_temp, felt_temp, humidity, weather_desc,
			wind_speed, city, country_code, weather_code, forecast_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (city, forecast_date) DO NOTHING
		RETURNING id, created_at
	`

	inserted := true
	err = tx.QueryRow(ctx, q,
		rec.Temperature,
		rec.HighTemp,
		rec.LowTemp,
		rec.FeltTemp,
		rec.Humidity,
		rec.Description,
		rec.WindSpeed,
		rec.City,
		rec.CountryCode,
		rec.WeatherCode,
		rec.Date,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			_ = tx.Rollback(ctx)
			return false, fmt.Errorf("inserting forecast for city %s at %s: %w", rec.City, rec.Date, err)
		}
		// ON CONFLICT DO NOTHING returns no row for a duplicate.
		inserted = false
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return false, fmt.Errorf("committing forecast for city %s: %w", rec.City, err)
	}

	return inserted, nil
}

// FindByCity returns every stored record whose city equals city exactly,
// ordered by forecast date. It returns an empty slice when none match.
func (r *Repository) FindByCity(ctx context.Context, city string) ([]forecast.Record, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning read transaction for city %s: %w", city, err)
	}
	// Read-only: rollback releases the connection without side effects.
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		SELECT id, temperature, high_temp, low_temp, felt_temp, humidity, weather_desc,
		       wind_speed, city, country_code, weather_code, forecast_date, created_at
		FROM forecasts
		WHERE city = $1
		ORDER BY forecast_date, id
	`

	rows, err := tx.Query(ctx, q, city)
	if err != nil {
		return nil, fmt.Errorf("querying forecasts for city %s: %w", city, err)
	}
	defer rows.Close()

	results := []forecast.Record{}
	for rows.Next() {
		var rec forecast.Record
		if err := rows.Scan(
			&rec.ID,
			&rec.Temperature,
			&rec.HighTemp,
			&rec.LowTemp,
			&rec.FeltTemp,
			&rec.Humidity,
			&rec.Description,
			&rec.WindSpeed,
			&rec.City,
			&rec.CountryCode,
			&rec.WeatherCode,
			&rec.Date,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning forecast row: %w", err)
		}
		results = append(results, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating forecast rows: %w", err)
	}

	return results, nil
}
