package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full runtime configuration of a forecast run.
type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Forecast      ForecastConfig      `mapstructure:"forecast"`
	BusinessRules BusinessRulesConfig `mapstructure:"business_rules"`
	Models        ModelsConfig        `mapstructure:"models"`
	Ingestion     IngestionConfig     `mapstructure:"ingestion"`
	Export        ExportConfig        `mapstructure:"export"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
}

// ForecastConfig controls period ordering, seasonality and the numeric
// thresholds of the forecasting pipeline.
type ForecastConfig struct {
	Periods             []string           `mapstructure:"periods"`
	TargetPeriod        string             `mapstructure:"target_period"`
	SeasonalFactors     map[string]float64 `mapstructure:"seasonal_factors"`
	LowVolumeThreshold  float64            `mapstructure:"low_volume_threshold"`
	VolatilityThreshold float64            `mapstructure:"volatility_threshold"`
	MinDataQuality      float64            `mapstructure:"min_data_quality"`
	MinTrainingSamples  int                `mapstructure:"min_training_samples"`
	BaseConfidence      float64            `mapstructure:"base_confidence"`
	ConfidenceFloor     float64            `mapstructure:"confidence_floor"`
	ConfidenceCeiling   float64            `mapstructure:"confidence_ceiling"`
	RandomSeed          int64              `mapstructure:"random_seed"`
	TestFraction        float64            `mapstructure:"test_fraction"`
}

// SeasonalFactor returns the factor configured for a period label. Keys are
// matched case-insensitively since viper folds map keys to lower case.
func (c ForecastConfig) SeasonalFactor(label string) (float64, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	for k, v := range c.SeasonalFactors {
		if strings.ToLower(k) == key {
			return v, true
		}
	}
	return 0, false
}

// BusinessRulesConfig holds the item-level rules applied during extraction.
type BusinessRulesConfig struct {
	CriticalKeywords    []string           `mapstructure:"critical_keywords"`
	SeasonalKeywords    []string           `mapstructure:"seasonal_keywords"`
	CategoryMultipliers map[string]float64 `mapstructure:"category_multipliers"`
}

// CategoryMultiplier returns the multiplier for a category, 1.0 when unknown.
func (c BusinessRulesConfig) CategoryMultiplier(category string) float64 {
	key := strings.ToLower(strings.TrimSpace(category))
	for k, v := range c.CategoryMultipliers {
		if strings.ToLower(k) == key {
			return v
		}
	}
	return 1.0
}

type ModelsConfig struct {
	Forest   ForestConfig   `mapstructure:"forest"`
	Boosting BoostingConfig `mapstructure:"boosting"`
	Ridge    RidgeConfig    `mapstructure:"ridge"`
	Workers  int            `mapstructure:"workers"`
}

type ForestConfig struct {
	Trees           int `mapstructure:"trees"`
	MaxDepth        int `mapstructure:"max_depth"`
	MinSamplesSplit int `mapstructure:"min_samples_split"`
	MinSamplesLeaf  int `mapstructure:"min_samples_leaf"`
}

type BoostingConfig struct {
	Stages          int     `mapstructure:"stages"`
	MaxDepth        int     `mapstructure:"max_depth"`
	LearningRate    float64 `mapstructure:"learning_rate"`
	MinSamplesSplit int     `mapstructure:"min_samples_split"`
}

type RidgeConfig struct {
	Alpha float64 `mapstructure:"alpha"`
}

type IngestionConfig struct {
	InputDir    string `mapstructure:"input_dir"`
	FilePattern string `mapstructure:"file_pattern"`
}

type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	CSV       bool   `mapstructure:"csv"`
	Postgres  bool   `mapstructure:"postgres"`
	Redis     bool   `mapstructure:"redis"`
}

type ServerConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      string `mapstructure:"ttl"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Exporter       string `mapstructure:"exporter"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPLogs       bool   `mapstructure:"otlp_logs"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// BindFlags attaches command line flags to their configuration keys. Flags
// take precedence over the config file and environment.
func BindFlags(flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"input":         "ingestion.input_dir",
		"output":        "export.output_dir",
		"target-period": "forecast.target_period",
		"periods":       "forecast.periods",
		"log-level":     "log_level",
		"serve":         "server.enabled",
		"port":          "server.port",
		"seed":          "forecast.random_seed",
	}
	for flag, key := range bindings {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load reads config.yaml from ./configs or the working directory, applies
// defaults and STOCKCAST_* environment overrides, and validates the result.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvPrefix("stockcast")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)
	for i, p := range config.Forecast.Periods {
		config.Forecast.Periods[i] = strings.TrimSpace(p)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the forecast settings for values the pipeline cannot run with.
func (c *Config) Validate() error {
	f := c.Forecast
	if len(f.Periods) == 0 {
		return fmt.Errorf("forecast.periods must list at least one period")
	}
	if f.TargetPeriod == "" {
		return fmt.Errorf("forecast.target_period is required")
	}
	if _, ok := f.SeasonalFactor(f.TargetPeriod); !ok {
		return fmt.Errorf("no seasonal factor configured for target period %q", f.TargetPeriod)
	}
	for k, v := range f.SeasonalFactors {
		if v <= 0 {
			return fmt.Errorf("seasonal factor for %s must be positive, got %.2f", k, v)
		}
	}
	if f.ConfidenceFloor > f.ConfidenceCeiling {
		return fmt.Errorf("confidence floor %.1f exceeds ceiling %.1f", f.ConfidenceFloor, f.ConfidenceCeiling)
	}
	if f.TestFraction <= 0 || f.TestFraction >= 1 {
		return fmt.Errorf("forecast.test_fraction must be in (0,1), got %.2f", f.TestFraction)
	}
	if c.Redis.TTL != "" {
		if _, err := time.ParseDuration(c.Redis.TTL); err != nil {
			return fmt.Errorf("invalid redis ttl: %w", err)
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")

	viper.SetDefault("forecast.periods", []string{"Jan", "Feb", "Mar", "Apr", "May"})
	viper.SetDefault("forecast.target_period", "Jun")
	viper.SetDefault("forecast.seasonal_factors", map[string]float64{
		"Jan": 1.0, "Feb": 0.95, "Mar": 1.1, "Apr": 1.05, "May": 1.0, "Jun": 0.85,
	})
	viper.SetDefault("forecast.low_volume_threshold", 10.0)
	viper.SetDefault("forecast.volatility_threshold", 1.5)
	viper.SetDefault("forecast.min_data_quality", 0.2)
	viper.SetDefault("forecast.min_training_samples", 15)
	viper.SetDefault("forecast.base_confidence", 70.0)
	viper.SetDefault("forecast.confidence_floor", 15.0)
	viper.SetDefault("forecast.confidence_ceiling", 95.0)
	viper.SetDefault("forecast.random_seed", 42)
	viper.SetDefault("forecast.test_fraction", 0.2)

	viper.SetDefault("business_rules.critical_keywords", []string{"first aid", "safety", "emergency", "sanitizer"})
	viper.SetDefault("business_rules.seasonal_keywords", []string{"ice cream", "hot chocolate", "coconut water"})
	viper.SetDefault("business_rules.category_multipliers", map[string]float64{
		"HK Chemical": 0.8, "Food Items": 1.2, "Safety Items": 1.1, "Office Supplies": 0.9,
	})

	viper.SetDefault("models.forest.trees", 200)
	viper.SetDefault("models.forest.max_depth", 15)
	viper.SetDefault("models.forest.min_samples_split", 2)
	viper.SetDefault("models.forest.min_samples_leaf", 1)
	viper.SetDefault("models.boosting.stages", 150)
	viper.SetDefault("models.boosting.max_depth", 8)
	viper.SetDefault("models.boosting.learning_rate", 0.1)
	viper.SetDefault("models.boosting.min_samples_split", 3)
	viper.SetDefault("models.ridge.alpha", 0.5)
	viper.SetDefault("models.workers", 0)

	viper.SetDefault("ingestion.input_dir", "data")
	viper.SetDefault("ingestion.file_pattern", "*.csv")

	viper.SetDefault("export.output_dir", "output")
	viper.SetDefault("export.csv", true)
	viper.SetDefault("export.postgres", false)
	viper.SetDefault("export.redis", false)

	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "stockcast")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", "168h")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.exporter", "stdout")
	viper.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.otlp_logs", false)
	viper.SetDefault("telemetry.service_name", "stockcast")
	viper.SetDefault("telemetry.service_version", "1.0.0")

	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", 0)
}
