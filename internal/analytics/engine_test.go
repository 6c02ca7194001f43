package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"bms-monitor/internal/storage"
)

type fakeStore struct {
	rows    []storage.Reading
	err     error
	gotSite *uint
	gotLim  int
}

func (f *fakeStore) ReadingsInRange(_ context.Context, from, to time.Time, siteID *uint, limit int) ([]storage.Reading, error) {
	f.gotSite = siteID
	f.gotLim = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func f64(v float64) *float64 {
	return &v
}

func reading(ts string, mutate func(*storage.Reading)) storage.Reading {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	r := storage.Reading{Timestamp: parsed.UTC()}
	if mutate != nil {
		mutate(&r)
	}
	return r
}

func newEngine(store Store, rate float64) *Engine {
	return NewEngine(EngineConfig{Store: store, UnitRate: rate})
}

func TestSummarizeEmptySet(t *testing.T) {
	engine := newEngine(&fakeStore{}, 0.35)
	result := engine.Summarize(context.Background(), Query{
		From:  time.Now().Add(-time.Hour),
		To:    time.Now(),
		Sites: AllSites(),
	})

	if !result.Success {
		t.Fatal("expected success on empty set")
	}
	if result.KPIs.PeakDemandKw != 0 || result.KPIs.AvgBatteryLevel != 0 {
		t.Fatalf("expected zero peak/avg, got %+v", result.KPIs)
	}
	if result.KPIs.GridIndependence != 0 || result.KPIs.SystemEfficiency != 0 {
		t.Fatalf("expected zero ratios, got %+v", result.KPIs)
	}
	if len(result.DailyTrends) != 0 || len(result.HourlyTrends) != 0 {
		t.Fatalf("expected empty trends, got %d daily %d hourly", len(result.DailyTrends), len(result.HourlyTrends))
	}
	if len(result.BatteryPatterns) != 24 {
		t.Fatalf("expected 24 battery patterns, got %d", len(result.BatteryPatterns))
	}
	if len(result.EnergyDistribution) != 0 {
		t.Fatalf("expected empty distribution, got %d", len(result.EnergyDistribution))
	}
}

func TestDailyBucketsUseUTCDate(t *testing.T) {
	store := &fakeStore{rows: []storage.Reading{
		reading("2025-01-01T23:00:00Z", func(r *storage.Reading) { r.SolarPowerKw = f64(2) }),
		reading("2025-01-02T01:00:00Z", func(r *storage.Reading) { r.SolarPowerKw = f64(3) }),
	}}
	result := newEngine(store, 0).Summarize(context.Background(), Query{
		From: mustTime("2025-01-01T00:00:00Z"), To: mustTime("2025-01-03T00:00:00Z"),
	})

	if len(result.DailyTrends) != 2 {
		t.Fatalf("expected 2 daily entries, got %d", len(result.DailyTrends))
	}
	if result.DailyTrends[0].Date != "2025-01-01" || result.DailyTrends[0].GeneratedKwh != 2 {
		t.Fatalf("bad first entry: %+v", result.DailyTrends[0])
	}
	if result.DailyTrends[1].Date != "2025-01-02" || result.DailyTrends[1].GeneratedKwh != 3 {
		t.Fatalf("bad second entry: %+v", result.DailyTrends[1])
	}
}

func TestGridImportExportSplit(t *testing.T) {
	store := &fakeStore{rows: []storage.Reading{
		reading("2025-03-01T10:00:00Z", func(r *storage.Reading) { r.GridPowerKw = f64(-5) }),
		reading("2025-03-01T11:00:00Z", func(r *storage.Reading) { r.GridPowerKw = f64(8) }),
	}}
	result := newEngine(store, 0).Summarize(context.Background(), Query{
		From: mustTime("2025-03-01T00:00:00Z"), To: mustTime("2025-03-02T00:00:00Z"),
	})

	if result.KPIs.TotalGridImportKwh != 8 {
		t.Fatalf("expected import 8, got %v", result.KPIs.TotalGridImportKwh)
	}
	if result.KPIs.TotalGridExportKwh != 5 {
		t.Fatalf("expected export 5, got %v", result.KPIs.TotalGridExportKwh)
	}

	// Distribution keeps only positive entries; solar is absent here.
	for _, entry := range result.EnergyDistribution {
		if entry.Name == "Solar Generated" {
			t.Fatalf("zero-valued entry leaked into distribution: %+v", entry)
		}
	}
	if len(result.EnergyDistribution) != 2 {
		t.Fatalf("expected 2 distribution entries, got %d", len(result.EnergyDistribution))
	}
}

func TestKPIRatiosAndSavings(t *testing.T) {
	store := &fakeStore{rows: []storage.Reading{
		reading("2025-03-01T10:00:00Z", func(r *storage.Reading) {
			r.SolarPowerKw = f64(6)
			r.LoadPowerKw = f64(10)
			r.GridPowerKw = f64(4)
			r.BatteryChargeLevel = f64(80)
		}),
		reading("2025-03-01T11:00:00Z", func(r *storage.Reading) {
			r.SolarPowerKw = f64(4)
			r.LoadPowerKw = f64(5)
			r.GridPowerKw = f64(2)
			r.BatteryChargeLevel = f64(60)
		}),
	}}
	result := newEngine(store, 0.5).Summarize(context.Background(), Query{
		From: mustTime("2025-03-01T00:00:00Z"), To: mustTime("2025-03-02T00:00:00Z"),
	})

	kpis := result.KPIs
	if kpis.TotalGeneratedKwh != 10 || kpis.TotalConsumedKwh != 15 {
		t.Fatalf("bad totals: %+v", kpis)
	}
	if kpis.PeakDemandKw != 10 {
		t.Fatalf("expected peak 10, got %v", kpis.PeakDemandKw)
	}
	if kpis.AvgBatteryLevel != 70 {
		t.Fatalf("expected avg battery 70, got %v", kpis.AvgBatteryLevel)
	}
	if math.Abs(kpis.GridIndependence-(1-6.0/15.0)) > 1e-9 {
		t.Fatalf("bad independence: %v", kpis.GridIndependence)
	}
	if math.Abs(kpis.SystemEfficiency-10.0/15.0) > 1e-9 {
		t.Fatalf("bad efficiency: %v", kpis.SystemEfficiency)
	}
	if math.Abs(kpis.EnergySavings-(10-6)*0.5) > 1e-9 {
		t.Fatalf("bad savings: %v", kpis.EnergySavings)
	}
	// Comparison-period trends are a known gap; always zero.
	if kpis.GenerationTrend != 0 || kpis.ConsumptionTrend != 0 || kpis.IndependenceTrend != 0 || kpis.SavingsTrend != 0 {
		t.Fatalf("trend fields must be zero: %+v", kpis)
	}
}

func TestHourlyTrendsTruncateToWindow(t *testing.T) {
	start := mustTime("2025-04-01T00:00:00Z")
	var rows []storage.Reading
	for i := 0; i < 10*24; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		rows = append(rows, storage.Reading{
			Timestamp:   ts,
			LoadPowerKw: f64(float64(i)),
		})
	}
	store := &fakeStore{rows: rows}
	result := newEngine(store, 0).Summarize(context.Background(), Query{
		From: start, To: start.Add(10 * 24 * time.Hour),
	})

	if len(result.HourlyTrends) != 168 {
		t.Fatalf("expected 168 hourly entries, got %d", len(result.HourlyTrends))
	}
	wantFirst := start.Add(time.Duration(10*24-168) * time.Hour)
	if !result.HourlyTrends[0].Hour.Equal(wantFirst) {
		t.Fatalf("expected first hour %v, got %v", wantFirst, result.HourlyTrends[0].Hour)
	}
	last := result.HourlyTrends[len(result.HourlyTrends)-1]
	if !last.Hour.Equal(start.Add(time.Duration(10*24-1) * time.Hour)) {
		t.Fatalf("unexpected last hour %v", last.Hour)
	}
}

func TestHourlyTrendsAverageWithinHour(t *testing.T) {
	store := &fakeStore{rows: []storage.Reading{
		reading("2025-04-01T09:05:00Z", func(r *storage.Reading) { r.LoadPowerKw = f64(4) }),
		reading("2025-04-01T09:35:00Z", func(r *storage.Reading) { r.LoadPowerKw = f64(8) }),
	}}
	result := newEngine(store, 0).Summarize(context.Background(), Query{
		From: mustTime("2025-04-01T00:00:00Z"), To: mustTime("2025-04-02T00:00:00Z"),
	})

	if len(result.HourlyTrends) != 1 {
		t.Fatalf("expected 1 hourly entry, got %d", len(result.HourlyTrends))
	}
	if result.HourlyTrends[0].LoadKw != 6 {
		t.Fatalf("expected hourly average 6, got %v", result.HourlyTrends[0].LoadKw)
	}
}

func TestBatteryPatternAlwaysHas24Hours(t *testing.T) {
	store := &fakeStore{rows: []storage.Reading{
		reading("2025-05-01T13:00:00Z", func(r *storage.Reading) {
			r.BatteryVoltage = f64(400)
			r.BatteryCurrent = f64(10) // charging at 4 kW
		}),
		reading("2025-05-02T13:00:00Z", func(r *storage.Reading) {
			r.BatteryVoltage = f64(400)
			r.BatteryCurrent = f64(-20) // discharging at 8 kW
		}),
	}}
	result := newEngine(store, 0).Summarize(context.Background(), Query{
		From: mustTime("2025-05-01T00:00:00Z"), To: mustTime("2025-05-03T00:00:00Z"),
	})

	if len(result.BatteryPatterns) != 24 {
		t.Fatalf("expected 24 entries, got %d", len(result.BatteryPatterns))
	}
	for hour, pattern := range result.BatteryPatterns {
		if pattern.Hour != hour {
			t.Fatalf("entry %d reports hour %d", hour, pattern.Hour)
		}
		if hour != 13 && (pattern.ChargedKw != 0 || pattern.DischargedKw != 0) {
			t.Fatalf("hour %d should be zero: %+v", hour, pattern)
		}
	}

	at13 := result.BatteryPatterns[13]
	if at13.SampleCount != 2 {
		t.Fatalf("expected 2 samples at hour 13, got %d", at13.SampleCount)
	}
	if math.Abs(at13.ChargedKw-2) > 1e-9 { // 4 kW over 2 samples
		t.Fatalf("expected charged 2, got %v", at13.ChargedKw)
	}
	if math.Abs(at13.DischargedKw-4) > 1e-9 { // 8 kW over 2 samples
		t.Fatalf("expected discharged 4, got %v", at13.DischargedKw)
	}
}

func TestSummarizeSurfacesTruncation(t *testing.T) {
	start := mustTime("2025-06-01T00:00:00Z")
	var rows []storage.Reading
	for i := 0; i < 6; i++ {
		rows = append(rows, storage.Reading{
			Timestamp:    start.Add(time.Duration(i) * time.Minute),
			SolarPowerKw: f64(1),
		})
	}
	store := &fakeStore{rows: rows}
	engine := NewEngine(EngineConfig{Store: store, MaxRows: 5})

	result := engine.Summarize(context.Background(), Query{From: start, To: start.Add(time.Hour)})

	if !result.Truncated {
		t.Fatal("expected truncated flag")
	}
	if result.KPIs.TotalGeneratedKwh != 5 {
		t.Fatalf("expected only capped rows summed, got %v", result.KPIs.TotalGeneratedKwh)
	}
	if store.gotLim != 6 {
		t.Fatalf("expected store asked for cap+1 rows, got %d", store.gotLim)
	}
}

func TestSummarizeFailureIsZeroedNotThrown(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	result := newEngine(store, 0.35).Summarize(context.Background(), Query{
		From: mustTime("2025-06-01T00:00:00Z"), To: mustTime("2025-06-02T00:00:00Z"),
	})

	if result.Success {
		t.Fatal("expected success=false")
	}
	if result.KPIs != (KPIs{}) {
		t.Fatalf("expected zeroed KPIs, got %+v", result.KPIs)
	}
	if result.DailyTrends == nil || result.HourlyTrends == nil || result.EnergyDistribution == nil {
		t.Fatal("failure shape must carry empty, non-nil slices")
	}
	if len(result.BatteryPatterns) != 24 {
		t.Fatalf("failure shape must keep 24 pattern entries, got %d", len(result.BatteryPatterns))
	}
}

func TestSiteFilterReachesStore(t *testing.T) {
	store := &fakeStore{}
	engine := newEngine(store, 0)

	engine.Summarize(context.Background(), Query{Sites: AllSites()})
	if store.gotSite != nil {
		t.Fatalf("all-sites query must not filter, got %v", *store.gotSite)
	}

	engine.Summarize(context.Background(), Query{Sites: OneSite(7)})
	if store.gotSite == nil || *store.gotSite != 7 {
		t.Fatal("expected site filter 7 passed to store")
	}
}

func mustTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return parsed.UTC()
}
