package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	RedisAddr         string
	AdmissionBackend  string
	AdmissionRedisKey string

	HTTPAddr        string
	JWTAccessSecret string
	ChannelID       int64

	PopRandomQueue     bool
	RandomMapRotation  bool
	AFKTime            time.Duration
	MapRotationPeriod  time.Duration
	ReAddDelay         time.Duration
	MapVoteThreshold   int
	TickInterval       time.Duration
	SlowTickInterval   time.Duration
	NotifyRatePerSec   float64
	NotifyBufferLength int

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DBDriver:           "postgres",
		DBPort:             "5432",
		SQLitePath:         "pickup.sqlite",
		RedisAddr:          "localhost:6379",
		AdmissionBackend:   "memory",
		AdmissionRedisKey:  "pickup:admissions",
		HTTPAddr:           ":8080",
		PopRandomQueue:     true,
		AFKTime:            45 * time.Minute,
		MapRotationPeriod:  60 * time.Minute,
		ReAddDelay:         30 * time.Second,
		MapVoteThreshold:   7,
		TickInterval:       time.Second,
		SlowTickInterval:   time.Minute,
		NotifyRatePerSec:   5,
		NotifyBufferLength: 256,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads a .env file (unless ENV_CHEK is set, as in deployed containers) and
// applies environment overrides on top of Default.
func Load() (Config, error) {
	if os.Getenv("ENV_CHEK") == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Empty values keep the default.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	p := parser{getenv: getenv}

	p.str("DB_DRIVER", &cfg.DBDriver)
	p.str("DB_HOST", &cfg.DBHost)
	p.str("DB_PORT", &cfg.DBPort)
	p.str("DB_USER", &cfg.DBUser)
	p.str("DB_PASSWORD", &cfg.DBPassword)
	p.str("DB_NAME", &cfg.DBName)
	p.str("SQLITE_PATH", &cfg.SQLitePath)
	p.str("REDIS_ADDR", &cfg.RedisAddr)
	p.str("ADMISSION_BACKEND", &cfg.AdmissionBackend)
	p.str("ADMISSION_REDIS_KEY", &cfg.AdmissionRedisKey)
	p.str("HTTP_ADDR", &cfg.HTTPAddr)
	p.str("JWT_ACCESS_SECRET", &cfg.JWTAccessSecret)
	p.int64("CHANNEL_ID", &cfg.ChannelID)
	p.bool("POP_RANDOM_QUEUE", &cfg.PopRandomQueue)
	p.bool("RANDOM_MAP_ROTATION", &cfg.RandomMapRotation)
	p.minutes("AFK_TIME_MINUTES", &cfg.AFKTime)
	p.minutes("MAP_ROTATION_MINUTES", &cfg.MapRotationPeriod)
	p.seconds("RE_ADD_DELAY_SECONDS", &cfg.ReAddDelay)
	p.int("MAP_VOTE_THRESHOLD", &cfg.MapVoteThreshold)
	p.duration("TICK_INTERVAL", &cfg.TickInterval)
	p.duration("SLOW_TICK_INTERVAL", &cfg.SlowTickInterval)
	p.float("NOTIFY_RATE", &cfg.NotifyRatePerSec)
	p.int("NOTIFY_BUFFER", &cfg.NotifyBufferLength)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("LOG_FORMAT", &cfg.LogFormat)
	p.str("LOG_FILE", &cfg.LogFile)

	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the scheduler cannot run with.
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.AdmissionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown ADMISSION_BACKEND %q", c.AdmissionBackend)
	}
	if c.TickInterval < time.Second || c.SlowTickInterval < time.Second {
		return errors.New("config: tick intervals must be at least one second")
	}
	if c.AFKTime <= 0 || c.MapRotationPeriod <= 0 {
		return errors.New("config: AFK_TIME_MINUTES and MAP_ROTATION_MINUTES must be positive")
	}
	if c.MapVoteThreshold < 1 {
		return errors.New("config: MAP_VOTE_THRESHOLD must be at least 1")
	}
	if c.NotifyRatePerSec <= 0 || c.NotifyBufferLength < 1 {
		return errors.New("config: NOTIFY_RATE and NOTIFY_BUFFER must be positive")
	}
	return nil
}

// PostgresDSN formats the connection string the way the gorm postgres driver expects.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	v := p.getenv(key)
	return v, v != ""
}

func (p *parser) fail(key, v string, err error) {
	p.err = fmt.Errorf("config: invalid %s=%q: %w", key, v, err)
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.lookup(key); ok {
		*dst = v
	}
}

func (p *parser) bool(key string, dst *bool) {
	if v, ok := p.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (p *parser) int(key string, dst *int) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) int64(key string, dst *int64) {
	if v, ok := p.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (p *parser) float(key string, dst *float64) {
	if v, ok := p.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (p *parser) minutes(key string, dst *time.Duration) {
	var n int
	if _, ok := p.lookup(key); !ok {
		return
	}
	p.int(key, &n)
	if p.err == nil {
		*dst = time.Duration(n) * time.Minute
	}
}

func (p *parser) seconds(key string, dst *time.Duration) {
	var n int
	if _, ok := p.lookup(key); !ok {
		return
	}
	p.int(key, &n)
	if p.err == nil {
		*dst = time.Duration(n) * time.Second
	}
}

func (p *parser) duration(key string, dst *time.Duration) {
	if v, ok := p.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.fail(key, v, err)
			return
		}
		*dst = d
	}
}
