package analytics

import (
	"context"
	"log"
	"sort"
	"time"

	"bms-monitor/internal/storage"
)

const (
	// DefaultMaxRows bounds how many readings one query will load. Ranges
	// holding more rows are truncated to the earliest rows by timestamp and
	// the result is flagged.
	DefaultMaxRows = 10000

	// DefaultHourlyWindow caps the hourly trend series at a trailing week.
	DefaultHourlyWindow = 7 * 24
)

// Store is the read-only slice of the storage layer the engine needs.
type Store interface {
	ReadingsInRange(ctx context.Context, from, to time.Time, siteID *uint, limit int) ([]storage.Reading, error)
}

type Engine struct {
	store        Store
	unitRate     float64 // currency per kWh
	maxRows      int
	hourlyWindow int
}

type EngineConfig struct {
	Store        Store
	UnitRate     float64
	MaxRows      int
	HourlyWindow int
}

func NewEngine(cfg EngineConfig) *Engine {
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	window := cfg.HourlyWindow
	if window <= 0 {
		window = DefaultHourlyWindow
	}
	return &Engine{
		store:        cfg.Store,
		unitRate:     cfg.UnitRate,
		maxRows:      maxRows,
		hourlyWindow: window,
	}
}

// Summarize computes the analytics payload for a time range. It never
// returns an error to the caller: load failures resolve to a zeroed result
// with Success=false. The function is read-only.
func (e *Engine) Summarize(ctx context.Context, q Query) Result {
	var siteID *uint
	if !q.Sites.All() {
		id := q.Sites.Site()
		siteID = &id
	}

	// Fetch one row past the cap to learn whether the range was truncated.
	rows, err := e.store.ReadingsInRange(ctx, q.From, q.To, siteID, e.maxRows+1)
	if err != nil {
		log.Printf("Analytics load failed: %v", err)
		return failureResult()
	}

	truncated := false
	if len(rows) > e.maxRows {
		rows = rows[:e.maxRows]
		truncated = true
	}

	return Result{
		Success:            true,
		Truncated:          truncated,
		KPIs:               computeKPIs(rows, e.unitRate),
		DailyTrends:        dailyTrends(rows),
		HourlyTrends:       hourlyTrends(rows, e.hourlyWindow),
		BatteryPatterns:    batteryPatterns(rows),
		EnergyDistribution: energyDistribution(rows),
	}
}

func failureResult() Result {
	return Result{
		Success:            false,
		DailyTrends:        []DailyTrend{},
		HourlyTrends:       []HourlyTrend{},
		BatteryPatterns:    emptyBatteryPatterns(),
		EnergyDistribution: []DistributionEntry{},
	}
}

func computeKPIs(rows []storage.Reading, unitRate float64) KPIs {
	var kpis KPIs
	var batterySum float64
	var batteryCount int

	for _, r := range rows {
		if r.SolarPowerKw != nil {
			kpis.TotalGeneratedKwh += *r.SolarPowerKw
		}
		if r.LoadPowerKw != nil {
			kpis.TotalConsumedKwh += *r.LoadPowerKw
			if *r.LoadPowerKw > kpis.PeakDemandKw {
				kpis.PeakDemandKw = *r.LoadPowerKw
			}
		}
		if r.GridPowerKw != nil {
			if *r.GridPowerKw > 0 {
				kpis.TotalGridImportKwh += *r.GridPowerKw
			} else {
				kpis.TotalGridExportKwh += -*r.GridPowerKw
			}
		}
		if r.BatteryChargeLevel != nil {
			batterySum += *r.BatteryChargeLevel
			batteryCount++
		}
	}

	if batteryCount > 0 {
		kpis.AvgBatteryLevel = batterySum / float64(batteryCount)
	}
	if kpis.TotalConsumedKwh > 0 {
		kpis.GridIndependence = 1 - kpis.TotalGridImportKwh/kpis.TotalConsumedKwh
		kpis.SystemEfficiency = kpis.TotalGeneratedKwh / kpis.TotalConsumedKwh
	}
	kpis.EnergySavings = (kpis.TotalGeneratedKwh - kpis.TotalGridImportKwh) * unitRate

	return kpis
}

// dailyTrends sums energy fields per UTC calendar date, one entry per
// distinct date present, ascending.
func dailyTrends(rows []storage.Reading) []DailyTrend {
	buckets := make(map[string]*DailyTrend)
	for _, r := range rows {
		key := r.Timestamp.UTC().Format("2006-01-02")
		bucket, ok := buckets[key]
		if !ok {
			bucket = &DailyTrend{Date: key}
			buckets[key] = bucket
		}
		if r.SolarPowerKw != nil {
			bucket.GeneratedKwh += *r.SolarPowerKw
		}
		if r.LoadPowerKw != nil {
			bucket.ConsumedKwh += *r.LoadPowerKw
		}
		if r.GridPowerKw != nil {
			if *r.GridPowerKw > 0 {
				bucket.ImportKwh += *r.GridPowerKw
			} else {
				bucket.ExportKwh += -*r.GridPowerKw
			}
		}
	}

	trends := make([]DailyTrend, 0, len(buckets))
	for _, bucket := range buckets {
		trends = append(trends, *bucket)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Date < trends[j].Date })
	return trends
}

type hourlyAccum struct {
	solarSum, solarN   float64
	loadSum, loadN     float64
	gridSum, gridN     float64
	chargeSum, chargeN float64
}

// hourlyTrends averages instantaneous power fields per UTC hour, ascending,
// keeping only the most recent window entries.
func hourlyTrends(rows []storage.Reading, window int) []HourlyTrend {
	buckets := make(map[time.Time]*hourlyAccum)
	for _, r := range rows {
		key := r.Timestamp.UTC().Truncate(time.Hour)
		acc, ok := buckets[key]
		if !ok {
			acc = &hourlyAccum{}
			buckets[key] = acc
		}
		if r.SolarPowerKw != nil {
			acc.solarSum += *r.SolarPowerKw
			acc.solarN++
		}
		if r.LoadPowerKw != nil {
			acc.loadSum += *r.LoadPowerKw
			acc.loadN++
		}
		if r.GridPowerKw != nil {
			acc.gridSum += *r.GridPowerKw
			acc.gridN++
		}
		if r.BatteryChargeLevel != nil {
			acc.chargeSum += *r.BatteryChargeLevel
			acc.chargeN++
		}
	}

	hours := make([]time.Time, 0, len(buckets))
	for hour := range buckets {
		hours = append(hours, hour)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })

	if len(hours) > window {
		hours = hours[len(hours)-window:]
	}

	trends := make([]HourlyTrend, 0, len(hours))
	for _, hour := range hours {
		acc := buckets[hour]
		trends = append(trends, HourlyTrend{
			Hour:        hour,
			SolarKw:     safeDiv(acc.solarSum, acc.solarN),
			LoadKw:      safeDiv(acc.loadSum, acc.loadN),
			GridKw:      safeDiv(acc.gridSum, acc.gridN),
			ChargeLevel: safeDiv(acc.chargeSum, acc.chargeN),
		})
	}
	return trends
}

// batteryPatterns averages charge/discharge power per hour-of-day over the
// whole range. Battery power is voltage x current when both sensors
// reported; positive means charging. Every hour 0-23 gets an entry.
func batteryPatterns(rows []storage.Reading) []BatteryPattern {
	var chargeSum, dischargeSum [24]float64
	var counts [24]int

	for _, r := range rows {
		if r.BatteryVoltage == nil || r.BatteryCurrent == nil {
			continue
		}
		powerKw := *r.BatteryVoltage * *r.BatteryCurrent / 1000
		hour := r.Timestamp.UTC().Hour()
		if powerKw > 0 {
			chargeSum[hour] += powerKw
		} else {
			dischargeSum[hour] += -powerKw
		}
		counts[hour]++
	}

	patterns := emptyBatteryPatterns()
	for hour := 0; hour < 24; hour++ {
		patterns[hour].ChargedKw = safeDiv(chargeSum[hour], float64(counts[hour]))
		patterns[hour].DischargedKw = safeDiv(dischargeSum[hour], float64(counts[hour]))
		patterns[hour].SampleCount = counts[hour]
	}
	return patterns
}

func emptyBatteryPatterns() []BatteryPattern {
	patterns := make([]BatteryPattern, 24)
	for hour := range patterns {
		patterns[hour].Hour = hour
	}
	return patterns
}

// energyDistribution reports the source breakdown, keeping only entries
// with a positive value.
func energyDistribution(rows []storage.Reading) []DistributionEntry {
	kpis := computeKPIs(rows, 0)

	candidates := []DistributionEntry{
		{Name: "Solar Generated", ValueKwh: kpis.TotalGeneratedKwh},
		{Name: "Grid Import", ValueKwh: kpis.TotalGridImportKwh},
		{Name: "Grid Export", ValueKwh: kpis.TotalGridExportKwh},
	}

	entries := make([]DistributionEntry, 0, len(candidates))
	for _, entry := range candidates {
		if entry.ValueKwh > 0 {
			entries = append(entries, entry)
		}
	}
	return entries
}

// safeDiv yields 0 for an empty bucket instead of NaN.
func safeDiv(sum, n float64) float64 {
	if n == 0 {
		return 0
	}
	return sum / n
}
