package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string `env:"PORT" envDefault:"8080"`
	DatabaseURL    string `env:"DB_DSN"`
	AutoMigrate    bool   `env:"AUTO_MIGRATE" envDefault:"false"`
	JWTSecret      string `env:"JWT_SECRET"`
	CredentialsKey string `env:"CREDENTIALS_KEY"`
	Timezone       string `env:"TIMEZONE" envDefault:"Europe/Amsterdam"`

	RateLimitPerMinute     int `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	RateLimitBurst         int `env:"RATE_LIMIT_BURST" envDefault:"30"`
	UserRateLimitPerMinute int `env:"USER_RATE_LIMIT_PER_MIN" envDefault:"600"`
	UserRateLimitBurst     int `env:"USER_RATE_LIMIT_BURST" envDefault:"120"`

	Music     MusicConfig
	Ledger    LedgerConfig
	Relay     RelayConfig
	Telemetry TelemetryConfig

	PlayersStopCron  string `env:"PLAYERS_STOP_CRON" envDefault:"0 2 * * *"`
	PlayersStartCron string `env:"PLAYERS_START_CRON"`
	MinimizeCron     string `env:"MINIMIZE_CRON" envDefault:"30 3 * * *"`
}

type MusicConfig struct {
	APIURL          string        `env:"MUSIC_API_URL" envDefault:"https://api.spotify.com/v1"`
	Timeout         time.Duration `env:"MUSIC_TIMEOUT" envDefault:"5s"`
	CacheTTL        time.Duration `env:"MUSIC_CACHE_TTL" envDefault:"5s"`
	SearchInterval  time.Duration `env:"MUSIC_SEARCH_INTERVAL" envDefault:"1s"`
	SearchBurst     int           `env:"MUSIC_SEARCH_BURST" envDefault:"5"`
	RequestsPerHour int           `env:"MUSIC_REQUESTS_PER_HOUR" envDefault:"0"`
}

type LedgerConfig struct {
	Provider  string        `env:"LEDGER_PROVIDER" envDefault:"log"`
	URL       string        `env:"LEDGER_URL"`
	Token     string        `env:"LEDGER_TOKEN"`
	Timeout   time.Duration `env:"LEDGER_TIMEOUT" envDefault:"5s"`
	BatchSize int           `env:"LEDGER_BATCH_SIZE" envDefault:"50"`
	Cron      string        `env:"LEDGER_CRON" envDefault:"* * * * *"`
}

type RelayConfig struct {
	PollInterval time.Duration `env:"RELAY_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"RELAY_BATCH_SIZE" envDefault:"100"`
}

type TelemetryConfig struct {
	Environment string  `env:"TOSTI_ENV" envDefault:"development"`
	SampleRatio float64 `env:"TRACE_SAMPLE_RATIO" envDefault:"1"`
}

// Load reads .env when present and then the process environment, which
// wins over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Ledger.BatchSize <= 0 {
		cfg.Ledger.BatchSize = 50
	}
	return cfg, nil
}

func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
