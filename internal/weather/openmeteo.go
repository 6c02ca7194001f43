package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type OpenMeteoClient struct {
	units  string
	client *http.Client
}

func NewOpenMeteoClient(units string) *OpenMeteoClient {
	if units == "" {
		units = "metric"
	}
	return &OpenMeteoClient{
		units: units,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type openMeteoResponse struct {
	Current struct {
		Time          string  `json:"time"`
		Temperature   float64 `json:"temperature_2m"`
		WeatherCode   int     `json:"weather_code"`
		CloudCover    float64 `json:"cloud_cover"`
		Precipitation float64 `json:"precipitation"`
		Rain          float64 `json:"rain"`
	} `json:"current"`
	Daily struct {
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

func (c *OpenMeteoClient) Current(ctx context.Context, lat, lon float64) (*Data, error) {
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", lat))
	query.Set("longitude", fmt.Sprintf("%.6f", lon))
	query.Set("current", "temperature_2m,weather_code,cloud_cover,precipitation,rain")
	query.Set("daily", "sunrise,sunset")
	query.Set("timezone", "UTC")
	query.Set("forecast_days", "1")
	if c.units == "imperial" {
		query.Set("temperature_unit", "fahrenheit")
	}

	endpoint := url.URL{
		Scheme:   "https",
		Host:     "api.open-meteo.com",
		Path:     "/v1/forecast",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("open-meteo bad status: %s", resp.Status)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open-meteo decode: %w", err)
	}

	if payload.Current.Time == "" {
		return nil, fmt.Errorf("open-meteo current data missing")
	}

	observed, _ := time.Parse("2006-01-02T15:04", payload.Current.Time)
	observed = observed.UTC()

	var sunrise, sunset time.Time
	if len(payload.Daily.Sunrise) > 0 {
		sunrise, _ = time.Parse("2006-01-02T15:04", payload.Daily.Sunrise[0])
	}
	if len(payload.Daily.Sunset) > 0 {
		sunset, _ = time.Parse("2006-01-02T15:04", payload.Daily.Sunset[0])
	}

	condition, description := describeWeatherCode(payload.Current.WeatherCode)

	rain := payload.Current.Rain
	if payload.Current.Precipitation > rain {
		rain = payload.Current.Precipitation
	}

	return &Data{
		Provider:    "openmeteo",
		Condition:   condition,
		Description: description,
		Temperature: payload.Current.Temperature,
		Clouds:      int(payload.Current.CloudCover),
		Rain1h:      rain,
		Sunrise:     sunrise.UTC(),
		Sunset:      sunset.UTC(),
		ObservedAt:  observed,
	}, nil
}

// describeWeatherCode maps WMO weather codes onto coarse conditions.
func describeWeatherCode(code int) (string, string) {
	switch {
	case code == 0:
		return "Clear", "clear sky"
	case code <= 3:
		return "Clouds", "partly cloudy"
	case code <= 48:
		return "Fog", "fog"
	case code <= 57:
		return "Drizzle", "drizzle"
	case code <= 67:
		return "Rain", "rain"
	case code <= 77:
		return "Snow", "snow"
	case code <= 82:
		return "Rain", "rain showers"
	case code <= 86:
		return "Snow", "snow showers"
	default:
		return "Thunderstorm", "thunderstorm"
	}
}
