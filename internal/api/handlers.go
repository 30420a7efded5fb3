package api

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/neexbeast/skycast/internal/forecast"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	pageTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))
	validate = validator.New()
)

// Messages shown on the page. Each failure class gets its own text.
const (
	msgInvalidInput          = "Please enter a city and country."
	msgLocationNotFound      = "Location not found."
	msgValidationUnavailable = "Location lookup is unavailable right now. Please try again later."
	msgUpstreamUnavailable   = "The forecast service is unavailable right now. Please try again later."
	msgUpstreamRejected      = "The forecast service rejected the request."
	msgParseFailure          = "The forecast service returned an unreadable response."
	msgInternal              = "Something went wrong while saving or loading the forecast."
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	geocoder   LocationValidator
	ingester   ForecastIngester
	repo       ForecastRepo
	summarizer Summarizer
	cache      SummaryCache
	log        *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
// summarizer may be nil, in which case no commentary is rendered.
func NewHandlers(geocoder LocationValidator, ingester ForecastIngester, repo ForecastRepo, summarizer Summarizer, cache SummaryCache, log *slog.Logger) *Handlers {
	return &Handlers{
		geocoder:   geocoder,
		ingester:   ingester,
		repo:       repo,
		summarizer: summarizer,
		cache:      cache,
		log:        log,
	}
}

// weatherForm is the submitted location. State is optional.
type weatherForm struct {
	City    string `validate:"required,max=100"`
	State   string `validate:"max=100"`
	Country string `validate:"required,max=100"`
}

type pageData struct {
	Title   string
	Form    weatherForm
	Error   string
	City    string
	Country string
	Records []forecast.Record
	Summary string
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// render executes the page template into a buffer first so a template error
// never leaves a half-written page behind.
func (h *Handlers) render(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		h.log.Error("rendering page failed", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Index handles GET /.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, pageData{Title: "Home"})
}

// Weather handles POST /weather.
// Validate input → geocode → fetch and store → load stored records → commentary → render.
func (h *Handlers) Weather(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Weather"}

	if err := r.ParseForm(); err != nil {
		data.Error = msgInvalidInput
		h.render(w, http.StatusBadRequest, data)
		return
	}

	data.Form = weatherForm{
		City:    strings.TrimSpace(r.PostFormValue("city")),
		State:   strings.TrimSpace(r.PostFormValue("state")),
		Country: strings.TrimSpace(r.PostFormValue("country")),
	}
	if err := validate.Struct(data.Form); err != nil {
		data.Error = msgInvalidInput
		h.render(w, http.StatusBadRequest, data)
		return
	}

	ctx := r.Context()
	city, state, country := data.Form.City, data.Form.State, data.Form.Country
	log := h.log.With("city", city, "state", state, "country", country)

	found, err := h.geocoder.IsValidLocation(ctx, city, state, country)
	if err != nil {
		log.Error("geocode failed", "err", err)
		data.Error = msgValidationUnavailable
		h.render(w, http.StatusBadGateway, data)
		return
	}
	if !found {
		data.Error = msgLocationNotFound
		h.render(w, http.StatusOK, data)
		return
	}

	res, err := h.ingester.FetchAndStore(ctx, city, state, country)
	if err != nil {
		log.Error("fetch and store failed", "err", err)
		status, msg := fetchFailure(err)
		data.Error = msg
		h.render(w, status, data)
		return
	}
	log.Info("forecast stored", "stored", res.Stored, "duplicates", res.Duplicates)

	// The API's canonical city name is what was stored, not the user's spelling.
	records, err := h.repo.FindByCity(ctx, res.City)
	if err != nil {
		log.Error("db find failed", "err", err)
		data.Error = msgInternal
		h.render(w, http.StatusInternalServerError, data)
		return
	}

	data.City = res.City
	data.Country = res.Country
	data.Records = records
	if len(records) > 0 {
		data.Summary = h.commentary(ctx, res.City, records, res.Stored > 0)
	}

	h.render(w, http.StatusOK, data)
}

// fetchFailure maps a FetchAndStore error to a status code and page message.
func fetchFailure(err error) (int, string) {
	switch {
	case errors.Is(err, forecast.ErrUpstreamUnavailable):
		return http.StatusBadGateway, msgUpstreamUnavailable
	case errors.Is(err, forecast.ErrUpstreamRejected):
		return http.StatusBadGateway, msgUpstreamRejected
	case errors.Is(err, forecast.ErrParse):
		return http.StatusBadGateway, msgParseFailure
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// commentary returns cached or freshly generated commentary for records.
// When fresh samples were just stored the cached entry is dropped and
// regenerated. Failures are logged and yield an empty string so the page
// still renders.
func (h *Handlers) commentary(ctx context.Context, city string, records []forecast.Record, fresh bool) string {
	if h.summarizer == nil {
		return ""
	}

	latest := latestDate(records)

	if fresh {
		if err := h.cache.Delete(ctx, city, latest); err != nil {
			h.log.Warn("cache delete failed", "city", city, "err", err)
		}
	} else {
		cached, ok, err := h.cache.Get(ctx, city, latest)
		if err != nil {
			h.log.Warn("cache get failed", "city", city, "err", err)
		}
		if ok {
			return cached
		}
	}

	text, err := h.summarizer.Summarize(ctx, records)
	if err != nil {
		h.log.Warn("summary generation failed", "city", city, "err", err)
		return ""
	}

	if err := h.cache.Set(ctx, city, latest, text); err != nil {
		h.log.Warn("cache set failed", "city", city, "err", err)
	}
	return text
}

// latestDate returns the greatest forecast date; dt_txt sorts lexically.
func latestDate(records []forecast.Record) string {
	var latest string
	for _, r := range records {
		if r.Date > latest {
			latest = r.Date
		}
	}
	return latest
}

// Redirect sends any unknown path back to the home page.
func Redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

// GetForecasts handles GET /api/v1/forecasts/{city}.
func (h *Handlers) GetForecasts(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")

	records, err := h.repo.FindByCity(r.Context(), city)
	if err != nil {
		h.log.Error("db find failed", "city", city, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no forecasts stored for city"})
		return
	}

	writeJSON(w, http.StatusOK, records)
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
// Returns 200 if both are reachable, 503 otherwise.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]string{"status": "ok", "db": "ok", "redis": "ok"}

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			body["db"] = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			body["redis"] = "error"
			status = http.StatusServiceUnavailable
		}

		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		writeJSON(w, status, body)
	}
}
