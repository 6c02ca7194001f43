package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bms-monitor/config"
	"bms-monitor/internal/analytics"
	"bms-monitor/internal/api"
	"bms-monitor/internal/ingest"
	"bms-monitor/internal/mqtt"
	"bms-monitor/internal/storage"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bms-monitor",
		Short: "BMS site monitor",
		Long:  "Telemetry ingestion and analytics service for distributed battery/solar sites",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (*storage.Database, error) {
	db, err := storage.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the monitoring service",
		Long:  "Start the ingest API, analytics endpoints, and MQTT subscriber",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			log.Printf("Database ready (driver=%s)", cfg.Database.Driver)

			service := ingest.NewService(db)

			engine := analytics.NewEngine(analytics.EngineConfig{
				Store:        db,
				UnitRate:     cfg.Analytics.UnitRate,
				MaxRows:      cfg.Analytics.MaxRows,
				HourlyWindow: cfg.Analytics.HourlyWindowHrs,
			})

			// MQTT ingest transport
			subscriber, err := mqtt.NewSubscriber(mqtt.SubscriberConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
				Service:     service,
			})
			if err != nil {
				log.Printf("Warning: MQTT connection failed: %v", err)
			} else if cfg.MQTT.Enabled {
				log.Printf("MQTT connected to %s", cfg.MQTT.Broker)
				if err := subscriber.Subscribe(); err != nil {
					log.Printf("Warning: MQTT subscribe failed: %v", err)
				}
			}

			// Handle signals
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:     cfg.API.Port,
					Ingestor: service,
					Engine:   engine,
					Sites:    db,
					Weather:  &cfg.Weather,
				})

				go func() {
					if err := server.Start(); err != nil {
						log.Printf("API server error: %v", err)
					}
				}()
			}

			log.Println("BMS Monitor started. Press Ctrl+C to stop.")

			<-sigChan
			log.Println("Shutting down...")

			if subscriber != nil {
				subscriber.Close()
			}
			if server != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(ctx); err != nil {
					log.Printf("API shutdown error: %v", err)
				}
			}

			return nil
		},
	}
}

func reportCmd() *cobra.Command {
	var fromStr, toStr, siteStr string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run the aggregation once and print the payload",
		Long:  "Compute KPIs, trends, and patterns for a time range and print JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			to := time.Now().UTC()
			if toStr != "" {
				if to, err = time.Parse(time.RFC3339, toStr); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}
			from := to.AddDate(0, 0, -7)
			if fromStr != "" {
				if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
			}

			filter := analytics.AllSites()
			if siteStr != "" && siteStr != "all" {
				var id uint64
				if _, err := fmt.Sscanf(siteStr, "%d", &id); err != nil {
					return fmt.Errorf("invalid --site: %s", siteStr)
				}
				filter = analytics.OneSite(uint(id))
			}

			engine := analytics.NewEngine(analytics.EngineConfig{
				Store:        db,
				UnitRate:     cfg.Analytics.UnitRate,
				MaxRows:      cfg.Analytics.MaxRows,
				HourlyWindow: cfg.Analytics.HourlyWindowHrs,
			})

			result := engine.Summarize(cmd.Context(), analytics.Query{
				From:  from,
				To:    to,
				Sites: filter,
			})

			output, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(output))

			return nil
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "range start (RFC 3339, default 7 days ago)")
	cmd.Flags().StringVar(&toStr, "to", "", "range end (RFC 3339, default now)")
	cmd.Flags().StringVar(&siteStr, "site", "all", "site id or 'all'")

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo sites",
		Long:  "Create a few demo sites for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			sites := []storage.Site{
				{Name: "Austin HQ", Status: storage.SiteStatusActive, City: "Austin", State: "TX", Latitude: 30.2672, Longitude: -97.7431, BatteryCapacityKwh: 500, SolarCapacityKw: 250},
				{Name: "Phoenix Depot", Status: storage.SiteStatusActive, City: "Phoenix", State: "AZ", Latitude: 33.4484, Longitude: -112.0740, BatteryCapacityKwh: 750, SolarCapacityKw: 400},
				{Name: "Denver Yard", Status: storage.SiteStatusMaintenance, City: "Denver", State: "CO", Latitude: 39.7392, Longitude: -104.9903, BatteryCapacityKwh: 300, SolarCapacityKw: 150},
			}

			for i := range sites {
				if err := db.CreateSite(cmd.Context(), &sites[i]); err != nil {
					return fmt.Errorf("failed to create site %q: %w", sites[i].Name, err)
				}
				fmt.Printf("Created site %d: %s\n", sites[i].ID, sites[i].Name)
			}

			return nil
		},
	}
}
