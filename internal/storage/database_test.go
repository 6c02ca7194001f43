package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bms-monitor/config"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func f64(v float64) *float64 {
	return &v
}

func TestInsertReadingsIgnoresDuplicates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	site := Site{Name: "Test", Status: SiteStatusActive}
	if err := db.CreateSite(ctx, &site); err != nil {
		t.Fatalf("create site: %v", err)
	}

	ts := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	first := []Reading{{SiteID: site.ID, Timestamp: ts, SolarPowerKw: f64(3)}}
	if err := db.InsertReadings(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Same key with a new row: the duplicate is dropped, the new row lands.
	second := []Reading{
		{SiteID: site.ID, Timestamp: ts, SolarPowerKw: f64(99)},
		{SiteID: site.ID, Timestamp: ts.Add(5 * time.Minute), SolarPowerKw: f64(4)},
	}
	if err := db.InsertReadings(ctx, second); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	rows, err := db.ReadingsInRange(ctx, ts.Add(-time.Hour), ts.Add(time.Hour), &site.ID, 0)
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after duplicate resend, got %d", len(rows))
	}
	if *rows[0].SolarPowerKw != 3 {
		t.Fatalf("duplicate must not overwrite, got %v", *rows[0].SolarPowerKw)
	}
}

func TestReadingsInRangeOrderAndLimit(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	site := Site{Name: "Test"}
	if err := db.CreateSite(ctx, &site); err != nil {
		t.Fatalf("create site: %v", err)
	}

	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	var readings []Reading
	for i := 5; i > 0; i-- { // insert out of order
		readings = append(readings, Reading{SiteID: site.ID, Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	if err := db.InsertReadings(ctx, readings); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := db.ReadingsInRange(ctx, base, base.Add(time.Hour), nil, 3)
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected limit of 3 rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp.Before(rows[i-1].Timestamp) {
			t.Fatal("rows must be ascending by timestamp")
		}
	}
}

func TestTouchSiteUpdatesLiveness(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	site := Site{Name: "Test"}
	if err := db.CreateSite(ctx, &site); err != nil {
		t.Fatalf("create site: %v", err)
	}
	if site.LastSeenAt != nil {
		t.Fatal("new site should have no last-seen")
	}

	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	if err := db.TouchSite(ctx, site.ID, at); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := db.GetSite(ctx, site.ID)
	if err != nil {
		t.Fatalf("get site: %v", err)
	}
	if got.LastSeenAt == nil || !got.LastSeenAt.Equal(at) {
		t.Fatalf("expected last seen %v, got %v", at, got.LastSeenAt)
	}
}

func TestGroupedSiteQueries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	siteA := Site{Name: "A"}
	siteB := Site{Name: "B"}
	for _, s := range []*Site{&siteA, &siteB} {
		if err := db.CreateSite(ctx, s); err != nil {
			t.Fatalf("create site: %v", err)
		}
	}

	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	err := db.InsertReadings(ctx, []Reading{
		{SiteID: siteA.ID, Timestamp: base},
		{SiteID: siteA.ID, Timestamp: base.Add(time.Hour)},
		{SiteID: siteB.ID, Timestamp: base.Add(30 * time.Minute)},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	latest, err := db.LatestReadingTimes(ctx)
	if err != nil {
		t.Fatalf("latest times: %v", err)
	}
	if !latest[siteA.ID].Equal(base.Add(time.Hour)) {
		t.Fatalf("site A latest wrong: %v", latest[siteA.ID])
	}
	if !latest[siteB.ID].Equal(base.Add(30 * time.Minute)) {
		t.Fatalf("site B latest wrong: %v", latest[siteB.ID])
	}

	alerts := []Alert{
		{SiteID: siteA.ID, Severity: "critical", Message: "cell over-temp"},
		{SiteID: siteA.ID, Severity: "warning", Message: "low SOH"},
		{SiteID: siteA.ID, Severity: "warning", Message: "resolved one", Resolved: true},
		{SiteID: siteB.ID, Severity: "warning", Message: "inverter derated"},
	}
	for i := range alerts {
		if err := db.db.Create(&alerts[i]).Error; err != nil {
			t.Fatalf("create alert: %v", err)
		}
	}

	counts, err := db.OpenAlertCounts(ctx)
	if err != nil {
		t.Fatalf("alert counts: %v", err)
	}
	if counts[siteA.ID].Critical != 1 || counts[siteA.ID].Warning != 1 {
		t.Fatalf("site A counts wrong: %+v", counts[siteA.ID])
	}
	if counts[siteB.ID].Warning != 1 || counts[siteB.ID].Critical != 0 {
		t.Fatalf("site B counts wrong: %+v", counts[siteB.ID])
	}
}
