package analytics

import "time"

// SiteFilter selects which sites a query covers. The zero value means all
// sites; use OneSite for a specific installation. This replaces the old
// string "all" sentinel at the boundary.
type SiteFilter struct {
	siteID *uint
}

func AllSites() SiteFilter {
	return SiteFilter{}
}

func OneSite(id uint) SiteFilter {
	return SiteFilter{siteID: &id}
}

func (f SiteFilter) All() bool {
	return f.siteID == nil
}

// Site returns the selected id; only meaningful when All() is false.
func (f SiteFilter) Site() uint {
	if f.siteID == nil {
		return 0
	}
	return *f.siteID
}

type Query struct {
	From  time.Time
	To    time.Time
	Sites SiteFilter
}

// KPIs are scalar reductions over the entire fetched reading set for the
// range. They are global sums/ratios, not per-day values averaged.
//
// The four *Trend fields compare against a previous period that was never
// defined; they are carried in the payload but always 0.
type KPIs struct {
	TotalGeneratedKwh  float64 `json:"total_generated_kwh"`
	TotalConsumedKwh   float64 `json:"total_consumed_kwh"`
	TotalGridImportKwh float64 `json:"total_grid_import_kwh"`
	TotalGridExportKwh float64 `json:"total_grid_export_kwh"`
	PeakDemandKw       float64 `json:"peak_demand_kw"`
	AvgBatteryLevel    float64 `json:"avg_battery_level"`
	GridIndependence   float64 `json:"grid_independence"`
	SystemEfficiency   float64 `json:"system_efficiency"`
	EnergySavings      float64 `json:"energy_savings"`

	GenerationTrend   float64 `json:"generation_trend"`
	ConsumptionTrend  float64 `json:"consumption_trend"`
	IndependenceTrend float64 `json:"independence_trend"`
	SavingsTrend      float64 `json:"savings_trend"`
}

// DailyTrend is a per-UTC-calendar-date sum of energy fields.
type DailyTrend struct {
	Date         string  `json:"date"` // YYYY-MM-DD, UTC
	GeneratedKwh float64 `json:"generated_kwh"`
	ConsumedKwh  float64 `json:"consumed_kwh"`
	ImportKwh    float64 `json:"import_kwh"`
	ExportKwh    float64 `json:"export_kwh"`
}

// HourlyTrend is a per-UTC-hour average of instantaneous power fields.
type HourlyTrend struct {
	Hour        time.Time `json:"hour"` // truncated to the hour, UTC
	SolarKw     float64   `json:"solar_kw"`
	LoadKw      float64   `json:"load_kw"`
	GridKw      float64   `json:"grid_kw"`
	ChargeLevel float64   `json:"charge_level"`
}

// BatteryPattern is the average charge/discharge behavior for one
// hour-of-day across the whole range. All 24 hours are always present.
type BatteryPattern struct {
	Hour         int     `json:"hour"`
	ChargedKw    float64 `json:"charged_kw"`
	DischargedKw float64 `json:"discharged_kw"`
	SampleCount  int     `json:"sample_count"`
}

type DistributionEntry struct {
	Name     string  `json:"name"`
	ValueKwh float64 `json:"value_kwh"`
}

// Result is the analytics payload. On failure Success is false and every
// field carries a safe zero/empty default, so consumers never null-check.
type Result struct {
	Success            bool                `json:"success"`
	Truncated          bool                `json:"truncated"`
	KPIs               KPIs                `json:"kpis"`
	DailyTrends        []DailyTrend        `json:"daily_trends"`
	HourlyTrends       []HourlyTrend       `json:"hourly_trends"`
	BatteryPatterns    []BatteryPattern    `json:"battery_patterns"`
	EnergyDistribution []DistributionEntry `json:"energy_distribution"`
}
