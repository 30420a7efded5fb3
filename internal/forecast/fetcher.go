package forecast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
)

const owmForecastDefaultURL = "https://api.openweathermap.org/data/2.5/forecast"

// RecordSaver persists a single record. It reports false when the record
// was a duplicate of an existing (city, date) pair.
type RecordSaver interface {
	Save(ctx context.Context, rec *Record) (bool, error)
}

// Fetcher downloads the multi-day forecast from OpenWeatherMap and stores every sample.
type Fetcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	store   RecordSaver
}

// NewFetcher constructs a Fetcher using the production OpenWeatherMap URL.
func NewFetcher(apiKey string, store RecordSaver) *Fetcher {
	return NewFetcherWithURL(owmForecastDefaultURL, apiKey, store)
}

// NewFetcherWithURL constructs a Fetcher pointing at a custom base URL (for tests).
func NewFetcherWithURL(baseURL, apiKey string, store RecordSaver) *Fetcher {
	return &Fetcher{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  newHTTPClient(),
		breaker: newBreaker("openweathermap"),
		store:   store,
	}
}

// BuildForecastURL returns the forecast URL for a free-text location in imperial units.
func BuildForecastURL(baseURL, city, state, country, apiKey string) string {
	v := url.Values{}
	v.Set("q", city+","+state+","+country)
	v.Set("appid", apiKey)
	v.Set("units", "imperial")
	return baseURL + "?" + v.Encode()
}

// Leaf values are pointers so an absent field can be told apart from a zero.
type owmForecastResponse struct {
	City *struct {
		Name    *string `json:"name"`
		Country *string `json:"country"`
	} `json:"city"`
	List []owmForecastEntry `json:"list"`
}

type owmForecastEntry struct {
	Main *struct {
		Temp      *float64 `json:"temp"`
		TempMax   *float64 `json:"temp_max"`
		TempMin   *float64 `json:"temp_min"`
		FeelsLike *float64 `json:"feels_like"`
		Humidity  *int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description *string `json:"description"`
		Icon        *string `json:"icon"`
	} `json:"weather"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	DtTxt *string `json:"dt_txt"`
}

// missingField returns the JSON path of the first absent required value, or "".
func (e *owmForecastEntry) missingField() string {
	switch {
	case e.Main == nil:
		return "main"
	case e.Main.Temp == nil:
		return "main.temp"
	case e.Main.TempMax == nil:
		return "main.temp_max"
	case e.Main.TempMin == nil:
		return "main.temp_min"
	case e.Main.FeelsLike == nil:
		return "main.feels_like"
	case e.Main.Humidity == nil:
		return "main.humidity"
	case len(e.Weather) == 0:
		return "weather[0]"
	case e.Weather[0].Description == nil:
		return "weather[0].description"
	case e.Weather[0].Icon == nil:
		return "weather[0].icon"
	case e.Wind == nil:
		return "wind"
	case e.Wind.Speed == nil:
		return "wind.speed"
	case e.DtTxt == nil:
		return "dt_txt"
	}
	return ""
}

// ParseForecast turns a forecast response body into one Record per list entry.
// Any entry with a missing value fails the whole document with a *ParseError.
func ParseForecast(body []byte) (*Forecast, error) {
	var raw owmForecastResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newParseError(body, err)
	}
	switch {
	case raw.City == nil:
		return nil, newParseError(body, errors.New("missing city object"))
	case raw.City.Name == nil:
		return nil, newParseError(body, errors.New("missing city.name"))
	case raw.City.Country == nil:
		return nil, newParseError(body, errors.New("missing city.country"))
	case raw.List == nil:
		return nil, newParseError(body, errors.New("missing list array"))
	}

	fc := &Forecast{
		City:    *raw.City.Name,
		Country: *raw.City.Country,
		Records: make([]Record, 0, len(raw.List)),
	}

	for i := range raw.List {
		e := &raw.List[i]
		if field := e.missingField(); field != "" {
			return nil, newParseError(body, fmt.Errorf("list[%d]: missing %s", i, field))
		}

		fc.Records = append(fc.Records, Record{
			Temperature: *e.Main.Temp,
			HighTemp:    *e.Main.TempMax,
			LowTemp:     *e.Main.TempMin,
			FeltTemp:    *e.Main.FeelsLike,
			Humidity:    *e.Main.Humidity,
			Description: *e.Weather[0].Description,
			WindSpeed:   *e.Wind.Speed,
			City:        fc.City,
			CountryCode: fc.Country,
			WeatherCode: *e.Weather[0].Icon,
			Date:        *e.DtTxt,
		})
	}

	return fc, nil
}

// FetchAndStore downloads the forecast for a location and saves every sample.
// Nothing is stored unless the whole response parses. Errors wrap
// ErrUpstreamUnavailable, ErrUpstreamRejected or ErrParse so the caller can
// tell them apart; storage errors are wrapped as-is.
func (f *Fetcher) FetchAndStore(ctx context.Context, city, state, country string) (*Result, error) {
	res, err := doGet(ctx, f.client, f.breaker, BuildForecastURL(f.baseURL, city, state, country, f.apiKey), nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) || errors.Is(err, ErrResponseTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrUpstreamRejected, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	if res.status != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrUpstreamRejected, f.breaker.Name(), &StatusError{Code: res.status})
	}

	fc, err := ParseForecast(res.body)
	if err != nil {
		return nil, err
	}

	out := &Result{City: fc.City, Country: fc.Country}
	for i := range fc.Records {
		rec := &fc.Records[i]
		inserted, err := f.store.Save(ctx, rec)
		if err != nil {
			return out, fmt.Errorf("storing forecast for %s at %s: %w", rec.City, rec.Date, err)
		}
		if inserted {
			out.Stored++
		} else {
			out.Duplicates++
		}
	}

	return out, nil
}
