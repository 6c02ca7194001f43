package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

type APIConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	Path   string `mapstructure:"path"`   // sqlite file path
	DSN    string `mapstructure:"dsn"`    // postgres connection string
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type WeatherConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
	Units    string `mapstructure:"units"`
}

type AnalyticsConfig struct {
	UnitRate        float64 `mapstructure:"unit_rate"` // currency per kWh
	Currency        string  `mapstructure:"currency"`
	MaxRows         int     `mapstructure:"max_rows"`
	HourlyWindowHrs int     `mapstructure:"hourly_window_hours"`
}

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/bms-monitor")
	}

	// Set defaults
	viper.SetDefault("api.port", 8046)
	viper.SetDefault("api.enabled", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./bms.db")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "bms")
	viper.SetDefault("mqtt.client_id", "bms-monitor")
	viper.SetDefault("weather.enabled", false)
	viper.SetDefault("weather.provider", "openmeteo")
	viper.SetDefault("weather.api_key", "")
	viper.SetDefault("weather.units", "metric")
	viper.SetDefault("analytics.unit_rate", 0.35)
	viper.SetDefault("analytics.currency", "USD")
	viper.SetDefault("analytics.max_rows", 10000)
	viper.SetDefault("analytics.hourly_window_hours", 168)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
