package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"quiz-arena/internal/domain"
	"quiz-arena/internal/telemetry"
)

// EnvPrefix prefixes every environment override, e.g. ARENA_REDIS_ADDR.
const EnvPrefix = "ARENA_"

type Config struct {
	Server    ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Log       LogConfig        `yaml:"log" envPrefix:"LOG_"`
	Redis     RedisConfig      `yaml:"redis" envPrefix:"REDIS_"`
	Postgres  PostgresConfig   `yaml:"postgres" envPrefix:"POSTGRES_"`
	Quiz      QuizConfig       `yaml:"quiz" envPrefix:"QUIZ_"`
	Session   SessionConfig    `yaml:"session" envPrefix:"SESSION_"`
	Auth      AuthConfig       `yaml:"auth" envPrefix:"AUTH_"`
	Telemetry telemetry.Config `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

type ServerConfig struct {
	Port         string `yaml:"port" env:"PORT"`
	ReadTimeout  string `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout string `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

type LogConfig struct {
	Format string `yaml:"format" env:"FORMAT"`
	Level  string `yaml:"level" env:"LEVEL"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	TTL      string `yaml:"ttl" env:"TTL"`
}

type PostgresConfig struct {
	URL         string `yaml:"url" env:"URL"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

type QuizConfig struct {
	TTL string `yaml:"ttl" env:"TTL"`
	// SeedFile is a YAML list of quizzes. With Postgres configured they are upserted at startup.
	SeedFile string `yaml:"seed_file" env:"SEED_FILE"`
}

// SessionConfig holds engine timings and the defaults applied to new sessions.
type SessionConfig struct {
	IdleTimeout      string               `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	Retention        string               `yaml:"retention" env:"RETENTION"`
	RetryDelay       string               `yaml:"retry_delay" env:"RETRY_DELAY"`
	DefaultTimeLimit string               `yaml:"default_time_limit" env:"DEFAULT_TIME_LIMIT"`
	Scoring          domain.ScoringConfig `yaml:"scoring"`
}

type AuthConfig struct {
	OpenRegistration bool     `yaml:"open_registration" env:"OPEN_REGISTRATION"`
	Admins           []string `yaml:"admins" env:"ADMINS" envSeparator:","`
}

// Load reads YAML config from path, then applies ARENA_* environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// SessionDefaults returns settings for a session whose creator supplied none.
func (c Config) SessionDefaults() domain.SessionSettings {
	scoring := c.Session.Scoring
	if scoring == (domain.ScoringConfig{}) {
		scoring = domain.ScoringConfig{
			BasePoints:           1000,
			TimePenaltyPerSecond: 10,
			PerfectScoreBonus:    500,
		}
	}
	return domain.SessionSettings{
		Kind:             domain.KindStandard,
		Scoring:          scoring,
		DefaultTimeLimit: TTLDuration(c.Session.DefaultTimeLimit, 20*time.Second),
	}
}
