package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"bms-monitor/internal/storage"

	"github.com/gin-gonic/gin/binding"
)

// MaxBatchSize is the largest number of readings accepted per request.
const MaxBatchSize = 100

const dataQualityGood = "good"

// Batch is the ingestion envelope. Sensor fields are independently optional
// and carry declared physical ranges; validation runs through the same
// binding layer the HTTP server uses.
type Batch struct {
	SiteID   uint             `json:"site_id" binding:"required"`
	Readings []ReadingPayload `json:"readings" binding:"required,min=1,max=100,dive"`
}

type ReadingPayload struct {
	Timestamp string `json:"timestamp" binding:"required"`

	BatteryVoltage     *float64 `json:"battery_voltage" binding:"omitempty,gte=0,lte=1500"`
	BatteryCurrent     *float64 `json:"battery_current" binding:"omitempty,gte=-2000,lte=2000"`
	BatteryChargeLevel *float64 `json:"battery_charge_level" binding:"omitempty,gte=0,lte=100"`
	BatteryTemperature *float64 `json:"battery_temperature" binding:"omitempty,gte=-40,lte=150"`
	BatteryHealth      *float64 `json:"battery_health" binding:"omitempty,gte=0,lte=100"`

	SolarPowerKw    *float64 `json:"solar_power_kw" binding:"omitempty,gte=0,lte=100000"`
	SolarEfficiency *float64 `json:"solar_efficiency" binding:"omitempty,gte=0,lte=100"`

	Inverter1PowerKw     *float64 `json:"inverter_1_power_kw" binding:"omitempty,gte=0,lte=100000"`
	Inverter1Efficiency  *float64 `json:"inverter_1_efficiency" binding:"omitempty,gte=0,lte=100"`
	Inverter1Temperature *float64 `json:"inverter_1_temperature" binding:"omitempty,gte=-40,lte=200"`
	Inverter2PowerKw     *float64 `json:"inverter_2_power_kw" binding:"omitempty,gte=0,lte=100000"`
	Inverter2Efficiency  *float64 `json:"inverter_2_efficiency" binding:"omitempty,gte=0,lte=100"`
	Inverter2Temperature *float64 `json:"inverter_2_temperature" binding:"omitempty,gte=-40,lte=200"`

	GridVoltage   *float64 `json:"grid_voltage" binding:"omitempty,gte=0,lte=1500"`
	GridFrequency *float64 `json:"grid_frequency" binding:"omitempty,gte=0,lte=100"`
	GridImportKw  *float64 `json:"grid_import_kw" binding:"omitempty,gte=0,lte=100000"`
	GridExportKw  *float64 `json:"grid_export_kw" binding:"omitempty,gte=0,lte=100000"`

	LoadPowerKw *float64 `json:"load_power_kw" binding:"omitempty,gte=0,lte=100000"`
}

// Result acknowledges an accepted batch. Inserted reports the number of
// readings submitted; duplicates are not distinguished in the response.
type Result struct {
	Inserted    int  `json:"inserted"`
	SiteID      uint `json:"site_id"`
	SiteUpdated bool `json:"site_updated"`
}

// Store is the slice of the storage layer ingestion needs.
type Store interface {
	SiteExists(ctx context.Context, siteID uint) (bool, error)
	InsertReadings(ctx context.Context, readings []storage.Reading) error
	TouchSite(ctx context.Context, siteID uint, at time.Time) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// NewServiceWithClock is used by tests that need a fixed receipt time.
func NewServiceWithClock(store Store, now func() time.Time) *Service {
	return &Service{store: store, now: now}
}

// Ingest validates a batch, transforms it, bulk-inserts with duplicate rows
// dropped on the (site, timestamp) key, and refreshes the site heartbeat.
// The heartbeat runs even when every row was a duplicate. The two writes are
// independent; a failure after a partial insert is surfaced as-is.
func (s *Service) Ingest(ctx context.Context, batch Batch) (*Result, error) {
	parsed, err := s.validate(batch)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.SiteExists(ctx, batch.SiteID)
	if err != nil {
		return nil, fmt.Errorf("site lookup: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("site %d: %w", batch.SiteID, ErrSiteNotFound)
	}

	now := s.now().UTC()
	readings := make([]storage.Reading, 0, len(batch.Readings))
	for i, payload := range batch.Readings {
		readings = append(readings, transform(batch.SiteID, payload, parsed[i], now))
	}

	if err := s.store.InsertReadings(ctx, readings); err != nil {
		return nil, fmt.Errorf("insert readings: %w", err)
	}

	if err := s.store.TouchSite(ctx, batch.SiteID, now); err != nil {
		return nil, fmt.Errorf("touch site: %w", err)
	}

	log.Printf("Ingested batch: site=%d readings=%d", batch.SiteID, len(batch.Readings))

	return &Result{
		Inserted:    len(batch.Readings),
		SiteID:      batch.SiteID,
		SiteUpdated: true,
	}, nil
}

// validate runs the binding rules and parses every timestamp, collecting
// per-field issues. A failing batch is rejected whole.
func (s *Service) validate(batch Batch) ([]time.Time, error) {
	var issues []FieldIssue

	if err := binding.Validator.ValidateStruct(batch); err != nil {
		issues = append(issues, IssuesFromValidator(err)...)
	}

	parsed := make([]time.Time, len(batch.Readings))
	for i, payload := range batch.Readings {
		ts, err := time.Parse(time.RFC3339, payload.Timestamp)
		if err != nil {
			issues = append(issues, FieldIssue{
				Field:   fmt.Sprintf("readings[%d].timestamp", i),
				Message: "must be an RFC 3339 timestamp",
			})
			continue
		}
		parsed[i] = ts.UTC()
	}

	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return parsed, nil
}

// transform maps a payload row onto the stored model, computing the signed
// net grid power (import minus export, only when both sensors reported) and
// stamping receipt metadata. Absent fields stay NULL.
func transform(siteID uint, payload ReadingPayload, ts time.Time, receivedAt time.Time) storage.Reading {
	reading := storage.Reading{
		SiteID:    siteID,
		Timestamp: ts,

		BatteryVoltage:     payload.BatteryVoltage,
		BatteryCurrent:     payload.BatteryCurrent,
		BatteryChargeLevel: payload.BatteryChargeLevel,
		BatteryTemperature: payload.BatteryTemperature,
		BatteryHealth:      payload.BatteryHealth,

		SolarPowerKw:    payload.SolarPowerKw,
		SolarEfficiency: payload.SolarEfficiency,

		Inverter1PowerKw:     payload.Inverter1PowerKw,
		Inverter1Efficiency:  payload.Inverter1Efficiency,
		Inverter1Temperature: payload.Inverter1Temperature,
		Inverter2PowerKw:     payload.Inverter2PowerKw,
		Inverter2Efficiency:  payload.Inverter2Efficiency,
		Inverter2Temperature: payload.Inverter2Temperature,

		GridVoltage:   payload.GridVoltage,
		GridFrequency: payload.GridFrequency,
		GridImportKw:  payload.GridImportKw,
		GridExportKw:  payload.GridExportKw,

		LoadPowerKw: payload.LoadPowerKw,

		ReceivedAt:  receivedAt,
		DataQuality: dataQualityGood,
	}

	if payload.GridImportKw != nil && payload.GridExportKw != nil {
		net := *payload.GridImportKw - *payload.GridExportKw
		reading.GridPowerKw = &net
	}

	return reading
}
