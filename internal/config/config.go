// Package config loads application configuration from file and environment
// and owns the global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Quality  QualityConfig  `yaml:"quality" mapstructure:"quality"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Boundary BoundaryConfig `yaml:"boundary" mapstructure:"boundary"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// QualityConfig holds the anomaly-detection thresholds.
type QualityConfig struct {
	ClusterRadiusM  float64 `yaml:"cluster_radius_m" mapstructure:"cluster_radius_m"`
	LowLOIMinutes   float64 `yaml:"low_loi_minutes" mapstructure:"low_loi_minutes"`
	HighLOIMinutes  float64 `yaml:"high_loi_minutes" mapstructure:"high_loi_minutes"`
	DayStartHour    int     `yaml:"day_start_hour" mapstructure:"day_start_hour"`
	DayEndHour      int     `yaml:"day_end_hour" mapstructure:"day_end_hour"`
	ShortGapSeconds int     `yaml:"short_gap_seconds" mapstructure:"short_gap_seconds"`
	ClusterWorkers  int     `yaml:"cluster_workers" mapstructure:"cluster_workers"`
	RulesFile       string  `yaml:"rules_file" mapstructure:"rules_file"`
}

// IngestConfig configures export fetching and parsing.
type IngestConfig struct {
	Charset        string  `yaml:"charset" mapstructure:"charset"`
	Delimiter      string  `yaml:"delimiter" mapstructure:"delimiter"`
	SheetName      string  `yaml:"sheet_name" mapstructure:"sheet_name"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	FTPUser        string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword    string  `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// BoundaryConfig configures administrative boundary loading.
type BoundaryConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	StateKey string `yaml:"state_key" mapstructure:"state_key"`
	AreaKey  string `yaml:"area_key" mapstructure:"area_key"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FIELDQC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("quality.cluster_radius_m", 5.0)
	v.SetDefault("quality.low_loi_minutes", 10.0)
	v.SetDefault("quality.high_loi_minutes", 60.0)
	v.SetDefault("quality.day_start_hour", 7)
	v.SetDefault("quality.day_end_hour", 20)
	v.SetDefault("quality.short_gap_seconds", 60)
	v.SetDefault("quality.cluster_workers", 4)
	v.SetDefault("ingest.charset", "utf-8")
	v.SetDefault("ingest.delimiter", ",")
	v.SetDefault("ingest.timeout_secs", 30)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.requests_per_sec", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fieldqc.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
