package forecast

import "time"

// Record is one forecast sample for a city at a target time.
// City and Date together form the natural key.
type Record struct {
	ID          int64     `json:"id"`
	Temperature float64   `json:"temperature"`
	HighTemp    float64   `json:"high_temp"`
	LowTemp     float64   `json:"low_temp"`
	FeltTemp    float64   `json:"felt_temp"`
	Humidity    int       `json:"humidity"`
	Description string    `json:"description"`
	WindSpeed   float64   `json:"wind_speed"`
	City        string    `json:"city"`
	CountryCode string    `json:"country_code"`
	WeatherCode string    `json:"weather_code"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}

// Forecast is a parsed forecast response.
type Forecast struct {
	City    string
	Country string
	Records []Record
}

// Result summarizes one FetchAndStore call.
type Result struct {
	City       string
	Country    string
	Stored     int
	Duplicates int
}

// Location is a free-text place as entered by a user.
type Location struct {
	City    string
	State   string
	Country string
}

// String renders the location the way the forecast API expects it.
func (l Location) String() string {
	return l.City + "," + l.State + "," + l.Country
}
