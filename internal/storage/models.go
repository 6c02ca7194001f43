package storage

import (
	"time"

	"gorm.io/gorm"
)

// Site statuses as stored on the record. Operational state shown on maps
// is derived separately from alerts and telemetry recency.
const (
	SiteStatusActive      = "active"
	SiteStatusInactive    = "inactive"
	SiteStatusMaintenance = "maintenance"
	SiteStatusOffline     = "offline"
)

type Site struct {
	gorm.Model
	Name   string `json:"name"`
	Status string `gorm:"default:active" json:"status"`

	// Location
	City      string  `json:"city"`
	State     string  `json:"state"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Nameplate capacities
	BatteryCapacityKwh float64 `json:"battery_capacity_kwh"`
	SolarCapacityKw    float64 `json:"solar_capacity_kw"`

	LastSeenAt *time.Time `json:"last_seen_at"`
}

// Reading is one sensor sample for one site at one instant. Rows are
// written once by ingestion and never updated; (SiteID, Timestamp) is
// unique and duplicate inserts are dropped at the storage layer.
type Reading struct {
	gorm.Model
	SiteID    uint      `gorm:"uniqueIndex:idx_readings_site_ts" json:"site_id"`
	Timestamp time.Time `gorm:"uniqueIndex:idx_readings_site_ts" json:"timestamp"`

	// Battery
	BatteryVoltage     *float64 `json:"battery_voltage_v"`
	BatteryCurrent     *float64 `json:"battery_current_a"`
	BatteryChargeLevel *float64 `json:"battery_charge_level_pct"`
	BatteryTemperature *float64 `json:"battery_temperature_c"`
	BatteryHealth      *float64 `json:"battery_health_pct"`

	// Solar
	SolarPowerKw    *float64 `json:"solar_power_kw"`
	SolarEfficiency *float64 `json:"solar_efficiency_pct"`

	// Inverter channels
	Inverter1PowerKw     *float64 `json:"inverter_1_power_kw"`
	Inverter1Efficiency  *float64 `json:"inverter_1_efficiency_pct"`
	Inverter1Temperature *float64 `json:"inverter_1_temperature_c"`
	Inverter2PowerKw     *float64 `json:"inverter_2_power_kw"`
	Inverter2Efficiency  *float64 `json:"inverter_2_efficiency_pct"`
	Inverter2Temperature *float64 `json:"inverter_2_temperature_c"`

	// Grid (signed net: positive = import, negative = export)
	GridVoltage   *float64 `json:"grid_voltage_v"`
	GridFrequency *float64 `json:"grid_frequency_hz"`
	GridImportKw  *float64 `json:"grid_import_kw"`
	GridExportKw  *float64 `json:"grid_export_kw"`
	GridPowerKw   *float64 `json:"grid_power_kw"`

	// Load
	LoadPowerKw *float64 `json:"load_power_kw"`

	// Ingestion metadata
	ReceivedAt  time.Time `json:"received_at"`
	DataQuality string    `json:"data_quality"`
}

type Alert struct {
	gorm.Model
	SiteID   uint   `gorm:"index" json:"site_id"`
	Severity string `json:"severity"` // warning or critical
	Message  string `json:"message"`
	Resolved bool   `gorm:"default:false" json:"resolved"`
}

// AlertCounts holds open alert totals for one site.
type AlertCounts struct {
	Warning  int64 `json:"warning"`
	Critical int64 `json:"critical"`
}
