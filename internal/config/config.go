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
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// hosts allowed to open websockets from a browser, e.g. "localhost:*"
	WSOriginPatterns []string `env:"WS_ORIGIN_PATTERNS" envSeparator:","`

	RoundDuration     time.Duration `env:"ROUND_DURATION" envDefault:"5m"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"1s"`
	SweepConcurrency  int           `env:"SWEEP_CONCURRENCY" envDefault:"8"`
	IdeasPerRound     int           `env:"IDEAS_PER_ROUND" envDefault:"3"`
	DefaultRoundCount int           `env:"DEFAULT_ROUND_COUNT" envDefault:"5"`
	TeamSize          int           `env:"TEAM_SIZE" envDefault:"6"`

	JWTSecret    string `env:"JWT_SECRET"`
	AllowDevAuth bool   `env:"ALLOW_DEV_AUTH" envDefault:"true"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int    `env:"REDIS_DB" envDefault:"0"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX" envDefault:"brainstorm:session:"`

	SeedFile       string `env:"SEED_FILE"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.RoundDuration <= 0 {
		return fmt.Errorf("ROUND_DURATION must be positive, got %s", c.RoundDuration)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.SweepInterval >= c.RoundDuration {
		return fmt.Errorf("SWEEP_INTERVAL (%s) must be shorter than ROUND_DURATION (%s)", c.SweepInterval, c.RoundDuration)
	}
	if c.SweepConcurrency <= 0 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be positive, got %d", c.SweepConcurrency)
	}
	if c.IdeasPerRound <= 0 {
		return fmt.Errorf("IDEAS_PER_ROUND must be positive, got %d", c.IdeasPerRound)
	}
	if c.DefaultRoundCount <= 0 {
		return fmt.Errorf("DEFAULT_ROUND_COUNT must be positive, got %d", c.DefaultRoundCount)
	}
	if c.TeamSize < 2 {
		return fmt.Errorf("TEAM_SIZE must be at least 2, got %d", c.TeamSize)
	}
	if c.JWTSecret == "" && !c.AllowDevAuth {
		return fmt.Errorf("JWT_SECRET is required when ALLOW_DEV_AUTH is false")
	}
	return nil
}
