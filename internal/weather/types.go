package weather

import (
	"context"
	"strings"
	"time"

	"bms-monitor/config"
)

// Provider fetches current conditions for a coordinate pair. Sites carry
// their own latitude/longitude, so the location is per call rather than
// fixed at construction.
type Provider interface {
	Current(ctx context.Context, lat, lon float64) (*Data, error)
}

type Data struct {
	Provider    string    `json:"provider"`
	Condition   string    `json:"condition"`
	Description string    `json:"description"`
	Temperature float64   `json:"temperature_c"`
	Clouds      int       `json:"clouds"`
	Rain1h      float64   `json:"rain_1h,omitempty"`
	Sunrise     time.Time `json:"sunrise"`
	Sunset      time.Time `json:"sunset"`
	ObservedAt  time.Time `json:"observed_at"`
}

func (d *Data) IsDaylight(at time.Time) bool {
	if d == nil || d.Sunrise.IsZero() || d.Sunset.IsZero() {
		return false
	}
	return at.After(d.Sunrise) && at.Before(d.Sunset)
}

// NewProvider builds the configured provider, defaulting to open-meteo
// which needs no API key.
func NewProvider(cfg config.WeatherConfig) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "openweather":
		return NewOpenWeatherClient(cfg.APIKey, cfg.Units)
	default:
		return NewOpenMeteoClient(cfg.Units)
	}
}
