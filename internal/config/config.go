package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/signalbench/internal/backtest"
	"github.com/newthinker/signalbench/internal/core"
	"github.com/newthinker/signalbench/internal/resample"
	"github.com/newthinker/signalbench/internal/storage/archive"
	"github.com/newthinker/signalbench/internal/strategy"
	"github.com/spf13/viper"
)

// DateLayout is the layout of configured dates.
const DateLayout = "2006-01-02"

type Config struct {
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Universes  map[string][]string       `mapstructure:"universes"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Data       DataConfig                `mapstructure:"data"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Database   DatabaseConfig            `mapstructure:"database"`
	Server     ServerConfig              `mapstructure:"server"`
	Metrics    MetricsConfig             `mapstructure:"metrics"`
	Log        LogConfig                 `mapstructure:"log"`
}

// BacktestConfig holds the simulation parameters.
type BacktestConfig struct {
	Start          string   `mapstructure:"start"`
	End            string   `mapstructure:"end"`
	InitialCapital float64  `mapstructure:"initial_capital"`
	StopLossPct    float64  `mapstructure:"stop_loss_pct"`
	PeriodsPerYear float64  `mapstructure:"periods_per_year"`
	Timezone       string   `mapstructure:"timezone"`
	WeekEnd        string   `mapstructure:"week_end"`
	Concurrency    int      `mapstructure:"concurrency"`
	Strategies     []string `mapstructure:"strategies"`
}

type StrategyConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

// DataConfig selects the history source and its guards.
type DataConfig struct {
	Provider         string        `mapstructure:"provider"` // "yahoo" or "csv"
	CSVDir           string        `mapstructure:"csv_dir"`
	BaseURL          string        `mapstructure:"base_url"`
	VolatilitySymbol string        `mapstructure:"volatility_symbol"`
	RateLimitRPS     float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
	Cache            CacheConfig   `mapstructure:"cache"`
}

// CacheConfig configures the Redis history cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// DatabaseConfig configures the Postgres metrics sink.
type DatabaseConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DSN          string        `mapstructure:"dsn"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type ServerConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	APIKey      string        `mapstructure:"api_key"`
	JobTTLHours int           `mapstructure:"job_ttl_hours"`
	MaxJobs     int           `mapstructure:"max_jobs"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backtest: BacktestConfig{
			Start:          "2005-01-01",
			End:            "2023-12-31",
			InitialCapital: 1_000_000,
			StopLossPct:    0.02,
			PeriodsPerYear: 52,
			Timezone:       "America/New_York",
			WeekEnd:        "sunday",
			Concurrency:    4,
		},
		Universes: map[string][]string{
			"sector": {"XLF", "XLE", "XLK", "XLV", "XLI", "XLP", "XLY", "XLB", "XLU", "XLRE"},
			"bond":   {"AGG", "BND", "TLT", "IEF", "LQD", "HYG", "EMB", "MUB", "BNDX", "VCIT"},
		},
		Data: DataConfig{
			Provider:         "yahoo",
			CSVDir:           "data/raw",
			VolatilitySymbol: "^VIX",
			RateLimitRPS:     2,
			RateLimitBurst:   1,
			Timeout:          30 * time.Second,
			FailureThreshold: 3,
			BreakerTimeout:   60 * time.Second,
			Cache: CacheConfig{
				Addr: "localhost:6379",
				TTL:  24 * time.Hour,
			},
		},
		Storage: StorageConfig{
			Type: archive.TypeLocalFS,
			Path: "data",
		},
		Database: DatabaseConfig{
			QueryTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 24,
			MaxJobs:     100,
			JobTimeout:  5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	bt := c.Backtest
	if _, _, err := bt.Range(); err != nil {
		return err
	}
	if _, err := bt.Calendar(); err != nil {
		return err
	}
	if bt.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %v", bt.InitialCapital))
	}
	if bt.StopLossPct < 0 || bt.StopLossPct >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("stop_loss_pct must be in [0, 1), got %v", bt.StopLossPct))
	}
	if bt.PeriodsPerYear <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("periods_per_year must be positive, got %v", bt.PeriodsPerYear))
	}
	if bt.Concurrency < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("concurrency must be at least 1, got %d", bt.Concurrency))
	}

	switch c.Data.Provider {
	case "yahoo":
	case "csv":
		if c.Data.CSVDir == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.csv_dir required for the csv provider"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown data provider %q", c.Data.Provider))
	}
	if c.Data.RateLimitRPS < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rate_limit_rps cannot be negative, got %v", c.Data.RateLimitRPS))
	}
	if c.Data.Cache.Enabled && c.Data.Cache.Addr == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("data.cache.addr required when cache is enabled"))
	}

	switch c.Storage.Type {
	case archive.TypeLocalFS:
	case archive.TypeS3:
		if c.Storage.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("storage.s3.bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.Database.Enabled && c.Database.DSN == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("database.dsn required when database is enabled"))
	}

	for name, symbols := range c.Universes {
		if len(symbols) == 0 {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("universe %q is empty", name))
		}
	}

	return nil
}

// Range parses the configured start and end dates.
func (b BacktestConfig) Range() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, b.Start)
	if err != nil {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.start: %w", err))
	}
	end, err := time.Parse(DateLayout, b.End)
	if err != nil {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.end: %w", err))
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("backtest.end %s before start %s", b.End, b.Start))
	}
	return start, end, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Calendar resolves the timezone and week anchor.
func (b BacktestConfig) Calendar() (resample.Calendar, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return resample.Calendar{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.timezone: %w", err))
	}
	day, ok := weekdays[strings.ToLower(b.WeekEnd)]
	if !ok {
		return resample.Calendar{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("backtest.week_end %q", b.WeekEnd))
	}
	return resample.Calendar{Location: loc, WeekEnd: day}, nil
}

// Options builds the simulation options.
func (c *Config) Options() (backtest.Options, error) {
	cal, err := c.Backtest.Calendar()
	if err != nil {
		return backtest.Options{}, err
	}
	return backtest.Options{
		InitialCapital:   c.Backtest.InitialCapital,
		StopLossPct:      c.Backtest.StopLossPct,
		PeriodsPerYear:   c.Backtest.PeriodsPerYear,
		Calendar:         cal,
		VolatilitySymbol: c.Data.VolatilitySymbol,
	}, nil
}

// Archive returns the archive storage config.
func (s StorageConfig) Archive() archive.Config {
	return archive.Config{
		Type: s.Type,
		Path: s.Path,
		S3: archive.S3Config{
			Bucket:    s.S3.Bucket,
			Endpoint:  s.S3.Endpoint,
			Region:    s.S3.Region,
			AccessKey: s.S3.AccessKey,
			SecretKey: s.S3.SecretKey,
			Prefix:    s.S3.Prefix,
		},
	}
}

// StrategyConfigs converts the strategies section for the engine.
func (c *Config) StrategyConfigs() map[string]strategy.Config {
	out := make(map[string]strategy.Config, len(c.Strategies))
	for name, sc := range c.Strategies {
		out[name] = strategy.Config{Enabled: sc.Enabled, Params: sc.Params}
	}
	return out
}

// Universe returns the symbols of a named universe.
func (c *Config) Universe(name string) ([]string, error) {
	symbols, ok := c.Universes[name]
	if !ok {
		names := make([]string, 0, len(c.Universes))
		for n := range c.Universes {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown universe %q (have %s)", name, strings.Join(names, ", ")))
	}
	return symbols, nil
}
