package storage

import (
	"context"
	"fmt"
	"time"

	"bms-monitor/config"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "", "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.Path), gormCfg)
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&Site{}, &Reading{}, &Alert{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) SiteExists(ctx context.Context, siteID uint) (bool, error) {
	var count int64
	result := d.db.WithContext(ctx).Model(&Site{}).Where("id = ?", siteID).Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

func (d *Database) GetSite(ctx context.Context, siteID uint) (*Site, error) {
	var site Site
	result := d.db.WithContext(ctx).First(&site, siteID)
	if result.Error != nil {
		return nil, result.Error
	}
	return &site, nil
}

func (d *Database) ListSites(ctx context.Context) ([]Site, error) {
	var sites []Site
	result := d.db.WithContext(ctx).Order("id asc").Find(&sites)
	if result.Error != nil {
		return nil, result.Error
	}
	return sites, nil
}

func (d *Database) CreateSite(ctx context.Context, site *Site) error {
	return d.db.WithContext(ctx).Create(site).Error
}

// InsertReadings bulk-inserts a transformed batch. Rows that collide on
// (site_id, timestamp) are silently skipped so device re-sends stay
// idempotent without application-level locking.
func (d *Database) InsertReadings(ctx context.Context, readings []Reading) error {
	if len(readings) == 0 {
		return nil
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "site_id"}, {Name: "timestamp"}},
			DoNothing: true,
		}).
		Create(&readings).Error
}

// TouchSite refreshes a site's liveness timestamps. Called on every accepted
// batch, including all-duplicate ones, as a heartbeat.
func (d *Database) TouchSite(ctx context.Context, siteID uint, at time.Time) error {
	return d.db.WithContext(ctx).Model(&Site{}).
		Where("id = ?", siteID).
		Updates(map[string]interface{}{
			"last_seen_at": at,
			"updated_at":   at,
		}).Error
}

// ReadingsInRange loads readings with from <= timestamp <= to, ascending,
// capped at limit rows. siteID of nil means all sites.
func (d *Database) ReadingsInRange(ctx context.Context, from, to time.Time, siteID *uint, limit int) ([]Reading, error) {
	query := d.db.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp asc")
	if siteID != nil {
		query = query.Where("site_id = ?", *siteID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var readings []Reading
	result := query.Find(&readings)
	if result.Error != nil {
		return nil, result.Error
	}
	return readings, nil
}

// LatestReadingTimes returns the newest reading timestamp per site in a
// single grouped query. Site listing uses this instead of per-site lookups.
// The self-join keeps the scanned column a real timestamp on both drivers.
func (d *Database) LatestReadingTimes(ctx context.Context) (map[uint]time.Time, error) {
	var rows []Reading
	result := d.db.WithContext(ctx).Raw(`
		SELECT r.* FROM readings r
		JOIN (SELECT site_id, MAX(timestamp) AS ts FROM readings GROUP BY site_id) m
		ON r.site_id = m.site_id AND r.timestamp = m.ts`).
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	latest := make(map[uint]time.Time, len(rows))
	for _, row := range rows {
		latest[row.SiteID] = row.Timestamp
	}
	return latest, nil
}

type alertRow struct {
	SiteID   uint
	Severity string
	Total    int64
}

// OpenAlertCounts returns unresolved alert counts per site, grouped by
// severity, again as one query across all sites.
func (d *Database) OpenAlertCounts(ctx context.Context) (map[uint]AlertCounts, error) {
	var rows []alertRow
	result := d.db.WithContext(ctx).Model(&Alert{}).
		Select("site_id, severity, COUNT(*) as total").
		Where("resolved = ?", false).
		Group("site_id").
		Group("severity").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	counts := make(map[uint]AlertCounts, len(rows))
	for _, row := range rows {
		c := counts[row.SiteID]
		switch row.Severity {
		case "critical":
			c.Critical = row.Total
		case "warning":
			c.Warning = row.Total
		}
		counts[row.SiteID] = c
	}
	return counts, nil
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
