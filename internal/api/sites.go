package api

import (
	"net/http"
	"strconv"
	"time"

	"bms-monitor/internal/storage"
	"bms-monitor/internal/weather"

	"github.com/gin-gonic/gin"
)

// Marker statuses shown on map and alert views.
const (
	MarkerOperational = "operational"
	MarkerWarning     = "warning"
	MarkerCritical    = "critical"
	MarkerOffline     = "offline"
)

// livenessWindow is how long a site may stay silent before it is offline.
const livenessWindow = time.Hour

const weatherCacheTTL = 10 * time.Minute

type siteView struct {
	ID                 uint       `json:"id"`
	Name               string     `json:"name"`
	Status             string     `json:"status"`
	MarkerStatus       string     `json:"marker_status"`
	City               string     `json:"city"`
	State              string     `json:"state"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	BatteryCapacityKwh float64    `json:"battery_capacity_kwh"`
	SolarCapacityKw    float64    `json:"solar_capacity_kw"`
	LastSeenAt         *time.Time `json:"last_seen_at"`
	LastReadingAt      *time.Time `json:"last_reading_at"`
	OpenWarnings       int64      `json:"open_warnings"`
	OpenCriticals      int64      `json:"open_criticals"`
}

// sitesHandler lists all sites with their derived marker status. Latest
// reading times and open alert counts come from two grouped queries, not a
// per-site loop.
func (s *Server) sitesHandler(c *gin.Context) {
	ctx := c.Request.Context()

	sites, err := s.sites.ListSites(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	latest, err := s.sites.LatestReadingTimes(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	alerts, err := s.sites.OpenAlertCounts(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	views := make([]siteView, 0, len(sites))
	for _, site := range sites {
		view := siteView{
			ID:                 site.ID,
			Name:               site.Name,
			Status:             site.Status,
			City:               site.City,
			State:              site.State,
			Latitude:           site.Latitude,
			Longitude:          site.Longitude,
			BatteryCapacityKwh: site.BatteryCapacityKwh,
			SolarCapacityKw:    site.SolarCapacityKw,
			LastSeenAt:         site.LastSeenAt,
			OpenWarnings:       alerts[site.ID].Warning,
			OpenCriticals:      alerts[site.ID].Critical,
		}
		if ts, ok := latest[site.ID]; ok {
			t := ts
			view.LastReadingAt = &t
		}
		view.MarkerStatus = deriveMarkerStatus(site.LastSeenAt, view.LastReadingAt, alerts[site.ID], now)
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"sites": views})
}

// deriveMarkerStatus applies the liveness rule first: a site is offline when
// its most recent signal, across telemetry and last-seen, is older than one
// hour. Otherwise alert counts decide.
func deriveMarkerStatus(lastSeen *time.Time, lastReading *time.Time, counts storage.AlertCounts, now time.Time) string {
	newest := time.Time{}
	if lastSeen != nil {
		newest = *lastSeen
	}
	if lastReading != nil && lastReading.After(newest) {
		newest = *lastReading
	}

	if newest.IsZero() || now.Sub(newest) > livenessWindow {
		return MarkerOffline
	}
	if counts.Critical > 0 {
		return MarkerCritical
	}
	if counts.Warning > 0 {
		return MarkerWarning
	}
	return MarkerOperational
}

type cachedWeather struct {
	data *weather.Data
	at   time.Time
}

func (s *Server) siteWeatherHandler(c *gin.Context) {
	if s.weather == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Weather is not configured"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid site id"})
		return
	}

	site, err := s.sites.GetSite(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
		return
	}

	now := time.Now()
	s.weatherMu.Lock()
	if cached, ok := s.weatherCache[site.ID]; ok && now.Sub(cached.at) < weatherCacheTTL {
		s.weatherMu.Unlock()
		c.JSON(http.StatusOK, cached.data)
		return
	}
	s.weatherMu.Unlock()

	data, err := s.weather.Current(c.Request.Context(), site.Latitude, site.Longitude)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	s.weatherMu.Lock()
	s.weatherCache[site.ID] = cachedWeather{data: data, at: now}
	s.weatherMu.Unlock()
	c.JSON(http.StatusOK, data)
}
